package stream

// EventType discriminates the variants of the answer stream.
type EventType string

const (
	EventToken  EventType = "token"
	EventSource EventType = "source"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event is the tagged union carried over the SSE boundary. Exactly one
// payload field is set, matching Type.
type Event struct {
	Type   EventType    `json:"-"`
	Token  *TokenData   `json:"token,omitempty"`
	Source *SourceData  `json:"source,omitempty"`
	Done   *DoneData    `json:"done,omitempty"`
	Error  *ErrorData   `json:"error,omitempty"`
}

type TokenData struct {
	Content string `json:"content"`
}

type SourceData struct {
	ChunkId    string  `json:"chunk_id"`
	DocumentId string  `json:"document_id"`
	Similarity float64 `json:"similarity"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`
	TokenCount int     `json:"token_count"`
}

type DoneData struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CachedTokens     int     `json:"cached_tokens"`
	TokenCount       int     `json:"token_count"`
	CostUSD          float64 `json:"cost_usd"`
	Cached           bool    `json:"cached"`
}

type ErrorData struct {
	Message         string `json:"message"`
	PartialResponse string `json:"partial_response,omitempty"`
}

// Token builds a token event.
func Token(content string) Event {
	return Event{Type: EventToken, Token: &TokenData{Content: content}}
}

// Source builds a source-attribution event.
func Source(d SourceData) Event {
	return Event{Type: EventSource, Source: &d}
}

// Done builds the successful terminal event.
func Done(d DoneData) Event {
	d.TokenCount = d.PromptTokens + d.CompletionTokens
	return Event{Type: EventDone, Done: &d}
}

// Error builds the failure terminal event. partial carries whatever text
// had streamed before the failure; it is never discarded.
func Error(message, partial string) Event {
	return Event{Type: EventError, Error: &ErrorData{Message: message, PartialResponse: partial}}
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Payload returns the JSON-serialisable body for SSE framing.
func (e Event) Payload() interface{} {
	switch e.Type {
	case EventToken:
		return e.Token
	case EventSource:
		return e.Source
	case EventDone:
		return e.Done
	case EventError:
		return e.Error
	}
	return nil
}
