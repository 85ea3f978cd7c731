package prompt

import (
	"strings"
	"testing"

	"docchat-be/internal/dto"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/retriever"

	"github.com/google/uuid"
)

func TestSystemInstructionOnlyOnFirstTurn(t *testing.T) {
	b := NewBuilder()

	first := b.Build("question", nil, nil, nil)
	if first[0].Role != "system" {
		t.Fatalf("first turn must open with the system instruction, got role %q", first[0].Role)
	}

	history := []llm.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	later := b.Build("question", nil, nil, history)
	for _, m := range later {
		if m.Role == "system" {
			t.Fatal("system instruction must be omitted once history exists")
		}
	}
	if later[0].Content != "earlier question" {
		t.Errorf("history must lead the payload, got %q", later[0].Content)
	}
}

func TestChunksLabeledBySource(t *testing.T) {
	b := NewBuilder()
	docId := uuid.New()

	result := &retriever.RetrievalResult{
		Chunks: []retriever.RetrievedChunk{
			{DocumentId: docId, Text: "first passage", StartChar: 0, EndChar: 13},
			{DocumentId: docId, Text: "second passage", StartChar: 13, EndChar: 27},
		},
	}
	messages := b.Build("what is this about?", result, nil, nil)

	userMsg := messages[len(messages)-1].Content
	if !strings.Contains(userMsg, "[Source 1 | document "+docId.String()) {
		t.Errorf("missing first source label in:\n%s", userMsg)
	}
	if !strings.Contains(userMsg, "[Source 2 | document ") {
		t.Errorf("missing second source label")
	}
	if !strings.Contains(userMsg, "Question: what is this about?") {
		t.Errorf("query must close the user message")
	}
}

func TestNoContextNotice(t *testing.T) {
	b := NewBuilder()

	messages := b.Build("What is AI?", &retriever.RetrievalResult{}, nil, nil)
	userMsg := messages[len(messages)-1].Content
	if !strings.Contains(userMsg, "No relevant context was found") {
		t.Errorf("empty retrieval must carry the no-context notice, got:\n%s", userMsg)
	}
}

func TestFocusSurroundingTextIncluded(t *testing.T) {
	b := NewBuilder()
	focus := &dto.FocusContextDTO{
		DocumentId:      uuid.New(),
		StartChar:       10,
		EndChar:         90,
		SurroundingText: "the paragraph under the cursor",
	}

	messages := b.Build("explain this", nil, focus, nil)
	userMsg := messages[len(messages)-1].Content
	if !strings.Contains(userMsg, "the paragraph under the cursor") {
		t.Errorf("surrounding text missing from prompt")
	}
}
