package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/rag/ragerr"

	"github.com/google/uuid"
)

// injectionPatterns match known prompt-injection markers. Matching is
// case-insensitive over the sanitized message text.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(prior|previous)\s+(instructions|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(above|before)`),
	regexp.MustCompile(`(?i)<\|?(system|im_start|im_end|endoftext)\|?>`),
	regexp.MustCompile(`(?i)\[/?(INST|SYS)\]`),
	regexp.MustCompile(`(?i)^\s*(system|assistant)\s*:`),
}

type InputValidator struct {
	maxMessageChars     int
	maxFocusRangeChars  int
	maxSurroundingChars int
	logger              logger.ILogger
}

func NewInputValidator(maxMessageChars, maxFocusRangeChars, maxSurroundingChars int, log logger.ILogger) *InputValidator {
	return &InputValidator{
		maxMessageChars:     maxMessageChars,
		maxFocusRangeChars:  maxFocusRangeChars,
		maxSurroundingChars: maxSurroundingChars,
		logger:              log,
	}
}

// ValidateMessage bounds, sanitizes and screens a user message. The
// returned text has control characters stripped (newline, carriage
// return and tab survive).
func (v *InputValidator) ValidateMessage(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &ragerr.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(trimmed) > v.maxMessageChars {
		return "", &ragerr.ValidationError{Field: "message", Reason: "exceeds maximum length"}
	}

	sanitized := stripControlChars(trimmed)

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(sanitized) {
			if v.logger != nil {
				v.logger.Warn("InputValidator", "Suspected prompt injection rejected", map[string]interface{}{
					"pattern": pattern.String(),
				})
			}
			return "", &ragerr.InjectionSuspected{Pattern: pattern.String()}
		}
	}

	return sanitized, nil
}

// ValidateFocus checks the structural shape of a focus hint. The
// surrounding text is truncated rather than rejected.
func (v *InputValidator) ValidateFocus(focus *dto.FocusContextDTO) (*dto.FocusContextDTO, error) {
	if focus == nil {
		return nil, nil
	}
	if focus.DocumentId == uuid.Nil {
		return nil, &ragerr.ValidationError{Field: "focus_context.document_id", Reason: "must be a valid identifier"}
	}
	if focus.StartChar < 0 || focus.EndChar < 0 {
		return nil, &ragerr.ValidationError{Field: "focus_context", Reason: "offsets must be non-negative"}
	}
	if focus.StartChar >= focus.EndChar {
		return nil, &ragerr.ValidationError{Field: "focus_context", Reason: "start_char must be less than end_char"}
	}
	if focus.EndChar-focus.StartChar > v.maxFocusRangeChars {
		return nil, &ragerr.ValidationError{Field: "focus_context", Reason: "range too wide"}
	}

	out := *focus
	out.SurroundingText = stripControlChars(out.SurroundingText)
	if surrounding := []rune(out.SurroundingText); len(surrounding) > v.maxSurroundingChars {
		out.SurroundingText = string(surrounding[:v.maxSurroundingChars])
	}
	return &out, nil
}

// ValidateSessionId parses the path segment into a UUID.
func (v *InputValidator) ValidateSessionId(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, &ragerr.ValidationError{Field: "session_id", Reason: "must be a valid UUID"}
	}
	return parsed, nil
}

func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
