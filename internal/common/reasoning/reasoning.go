// Package reasoning is the language-model capability shared by the classifier,
// the planners and the answer synthesizer.
package reasoning

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrRateLimited = errors.New("REASONING_RATE_LIMITED")
	ErrUnavailable = errors.New("REASONING_UNAVAILABLE")
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Prompt struct {
	System string
	User   string
}

// Constraints shape the completion. Labels, when set, restrict a text answer to
// one of the given values; callers still validate the result.
type Constraints struct {
	Format    Format
	Labels    []string
	MaxTokens int
}

type Reasoner interface {
	Complete(ctx context.Context, prompt Prompt, c Constraints) (string, error)
}

// Func adapts a plain function to Reasoner.
type Func func(ctx context.Context, prompt Prompt, c Constraints) (string, error)

func (f Func) Complete(ctx context.Context, prompt Prompt, c Constraints) (string, error) {
	return f(ctx, prompt, c)
}

// ExtractJSON pulls the outermost JSON object out of a model answer, tolerating
// markdown code fences and leading prose.
func ExtractJSON(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

