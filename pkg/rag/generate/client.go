package generate

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/breaker"
	"docchat-be/pkg/rag/ragerr"
)

// outcome classifies a provider failure for retry policy.
type outcome int

const (
	outcomeRetryable outcome = iota // 5xx-class, exponential backoff
	outcomeRateLimited              // 429, fixed wait then retry
	outcomeFatal                    // auth/config, never retried
)

var statusCodePattern = regexp.MustCompile(`status (\d{3})`)

func classify(err error) outcome {
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 429:
			return outcomeRateLimited
		case code == 401 || code == 403:
			return outcomeFatal
		case code >= 500:
			return outcomeRetryable
		default:
			return outcomeFatal
		}
	}
	// Network-level failures without a status are treated as transient.
	return outcomeRetryable
}

type Options struct {
	Timeout       time.Duration // per non-streaming provider call
	StreamCeiling time.Duration // hard wall for one streamed turn
	MaxAttempts   int
	BaseWait      time.Duration // doubled per retry
	RateLimitWait time.Duration // fixed wait on provider 429
}

// Client wraps the generation provider with a per-call timeout,
// backoff retry for transient failures and circuit-breaker admission.
// Raw provider errors never leave this package.
type Client struct {
	provider llm.LLMProvider
	breaker  *breaker.CircuitBreaker
	opts     Options
	logger   logger.ILogger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(provider llm.LLMProvider, cb *breaker.CircuitBreaker, opts Options, log logger.ILogger) *Client {
	return &Client{
		provider: provider,
		breaker:  cb,
		opts:     opts,
		logger:   log,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Complete runs a non-streaming completion, used for summaries and
// session titles.
func (c *Client) Complete(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	var result string
	err := c.withRetries(ctx, func(attemptCtx context.Context) error {
		callCtx, cancel := context.WithTimeout(attemptCtx, c.opts.Timeout)
		defer cancel()
		text, err := c.provider.Chat(callCtx, history, opts...)
		if err != nil {
			return err
		}
		result = text
		return nil
	}, func() bool { return true })
	return result, err
}

// Stream runs a streaming completion under the stream ceiling. Deltas
// are forwarded as they arrive. A failed attempt is retried only while
// nothing has been emitted yet; once tokens have reached the caller the
// error surfaces with the partial text.
func (c *Client) Stream(ctx context.Context, history []llm.Message, onDelta func(delta string), opts ...llm.Option) (string, llm.Usage, error) {
	var (
		full  string
		usage llm.Usage
	)

	streamCtx, cancel := context.WithTimeout(ctx, c.opts.StreamCeiling)
	defer cancel()

	err := c.withRetries(streamCtx, func(attemptCtx context.Context) error {
		text, u, err := c.provider.ChatStream(attemptCtx, history, func(delta string) {
			full += delta
			if onDelta != nil {
				onDelta(delta)
			}
		}, opts...)
		if err != nil {
			// Keep the delta-accumulated text; a provider that returns
			// "" alongside its error must not re-enable retry after
			// tokens already reached the caller.
			return err
		}
		full = text
		usage = u
		return nil
	}, func() bool { return full == "" })

	return full, usage, err
}

// withRetries runs fn through the breaker with the retry policy.
// canRetry gates whether another attempt is still safe.
func (c *Client) withRetries(ctx context.Context, fn func(ctx context.Context) error, canRetry func() bool) error {
	wait := c.opts.BaseWait

	for attempt := 1; ; attempt++ {
		if err := c.breaker.Allow(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			c.breaker.RecordSuccess()
			return nil
		}
		c.breaker.RecordFailure()

		if errors.Is(err, context.DeadlineExceeded) {
			return ragerr.ErrProviderTimeout
		}
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}

		kind := classify(err)
		if c.logger != nil {
			c.logger.Error("GenerationClient", "Provider call failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
		}

		if kind == outcomeFatal {
			return ragerr.NewProviderError("The assistant is unable to respond right now.", err)
		}
		if attempt >= c.opts.MaxAttempts || !canRetry() {
			return ragerr.NewProviderError("The assistant failed to generate a response. Please try again.", err)
		}

		delay := wait
		if kind == outcomeRateLimited {
			delay = c.opts.RateLimitWait
		} else {
			wait *= 2
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			if errors.Is(sleepErr, context.DeadlineExceeded) {
				return ragerr.ErrProviderTimeout
			}
			return sleepErr
		}
	}
}
