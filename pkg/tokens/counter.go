package tokens

import (
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Counter estimates token counts for budget decisions. It uses the
// cl100k_base encoding and falls back to a character heuristic when the
// codec is unavailable.
type Counter struct {
	codec tokenizer.Codec
}

func NewCounter() *Counter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return &Counter{}
	}
	return &Counter{codec: codec}
}

// Count returns the token count for a piece of text.
func (c *Counter) Count(text string) int {
	if c.codec != nil {
		if n, err := c.codec.Count(text); err == nil {
			return n
		}
	}
	// Rough heuristic: one token per ~4 characters of English text.
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return n/4 + 1
}

// CountMessages sums the token cost of a chat payload, including the
// per-message role and separator overhead.
func (c *Counter) CountMessages(contents []string) int {
	total := 3
	for _, content := range contents {
		total += 4
		total += c.Count(content)
	}
	return total
}
