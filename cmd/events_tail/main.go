package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docchat-be/internal/config"
	"docchat-be/pkg/events"
	pktNats "docchat-be/pkg/nats"

	"github.com/fatih/color"
)

// Tails the event bus. Useful to verify turn completion, sweeper and
// spending events while exercising the API by hand.
func main() {
	cfg := config.Load()

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer sub.Close()

	err = sub.Subscribe("events.>", "events-tail", func(ctx context.Context, event events.Event) error {
		color.Yellow("── %s", event.EventType())
		for key, value := range event.Payload() {
			color.White("   %s: %v", key, value)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	color.Green("Tailing events.> (Ctrl+C to stop)")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
