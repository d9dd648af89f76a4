// Package budget estimates prompt size in tokens and trims conversation
// history to fit a limit. Completion backends use different tokenizers, so
// the estimate is a character heuristic: 1 token ≈ 4 characters, counted in
// runes so that non-Latin study material is not over-counted.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost most chat APIs charge.
	messageOverhead = 4
)

// Estimate returns a rough token count for s. Any non-empty string costs at
// least one token.
func Estimate(s string) int {
	runes := utf8.RuneCountInString(s)
	n := runes / charsPerToken
	if n == 0 && runes > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs, summing
// role, content and framing overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed + history fits
// within maxTokens. fixed (system instruction and the current grounded
// question) is never trimmed. A non-positive maxTokens disables trimming.
//
// History is dropped a whole exchange at a time: after trimming, the
// remaining slice never starts with an assistant reply whose question was
// cut. If even an empty history exceeds the budget, an empty slice is
// returned and the caller decides whether to warn.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 && fixedTokens+EstimateMessages(history) > maxTokens {
		history = history[1:]
		for len(history) > 0 && history[0].Role == schema.Assistant {
			history = history[1:]
		}
	}
	return history
}
