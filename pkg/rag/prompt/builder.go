package prompt

import (
	"fmt"
	"strings"

	"docchat-be/internal/constant"
	"docchat-be/internal/dto"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/retriever"
)

const systemInstruction = `You are a document-grounded assistant. Answer strictly from the provided context passages. If the context does not contain the answer, say so plainly instead of guessing. Cite the source document when it helps the reader.`

const noContextNotice = "No relevant context was found in the available documents for this question. Say so, and answer only from general knowledge if appropriate."

// Builder assembles the role-tagged message list for one turn.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build constructs the provider payload. The system instruction is sent
// only on the first turn of a session; once history is non-empty it is
// omitted so the provider can reuse its cached prompt prefix.
func (b *Builder) Build(query string, result *retriever.RetrievalResult, focus *dto.FocusContextDTO, history []llm.Message) []llm.Message {
	var messages []llm.Message

	if len(history) == 0 {
		messages = append(messages, llm.Message{Role: constant.ChatMessageRoleSystem, Content: systemInstruction})
	}
	messages = append(messages, history...)

	var sb strings.Builder
	if result == nil || len(result.Chunks) == 0 {
		sb.WriteString(noContextNotice)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Context passages:\n\n")
		for i, chunk := range result.Chunks {
			fmt.Fprintf(&sb, "[Source %d | document %s | chars %d-%d]\n%s\n\n",
				i+1, chunk.DocumentId, chunk.StartChar, chunk.EndChar, chunk.Text)
		}
	}

	if focus != nil && focus.SurroundingText != "" {
		fmt.Fprintf(&sb, "The user is currently looking at this passage:\n%s\n\n", focus.SurroundingText)
	}

	fmt.Fprintf(&sb, "Question: %s", query)

	messages = append(messages, llm.Message{Role: constant.ChatMessageRoleUser, Content: sb.String()})
	return messages
}
