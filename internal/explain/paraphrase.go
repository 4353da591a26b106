// Package explain memoizes natural-language risk explanations and
// wraps the optional paraphraser capability behind a bounded call.
package explain

import (
	"context"
	"strings"
	"time"
)

// Paraphraser is the optional external rewording capability. It may
// be absent (nil), slow, or failing; it is never trusted to add
// facts. Implementations live outside this module.
type Paraphraser interface {
	Paraphrase(ctx context.Context, prompt string) (string, error)
}

// DefaultParaphraseTimeout bounds how long a caller waits for a
// paraphrase before falling back to templated text.
const DefaultParaphraseTimeout = 2 * time.Second

// ClampRunes truncates s to at most n runes, never splitting a
// multi-byte sequence.
func ClampRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// TryParaphrase calls p under a hard deadline. Absence, error,
// timeout, or an empty result all report ok=false so callers fall
// back to their deterministic text.
func TryParaphrase(ctx context.Context, p Paraphraser, prompt string, timeout time.Duration) (string, bool) {
	if p == nil {
		return "", false
	}
	if timeout <= 0 {
		timeout = DefaultParaphraseTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := p.Paraphrase(callCtx, prompt)
		ch <- result{text: text, err: err}
	}()

	select {
	case <-callCtx.Done():
		return "", false
	case res := <-ch:
		if res.err != nil {
			return "", false
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return "", false
		}
		return text, true
	}
}
