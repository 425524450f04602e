package domain

import "context"

type tokenUsageKey struct{}

// TokenUsage collects chat model token usage for a single request.
// The caller puts a mutable pointer into the context before calling the model;
// the transport adds to it after each completion.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	Calls            int
}

// Total returns prompt plus completion tokens.
func (u *TokenUsage) Total() int {
	if u == nil {
		return 0
	}
	return u.PromptTokens + u.CompletionTokens
}

// NewContextWithUsage returns a context with a usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// Add records one completion. Safe on a nil receiver.
func (u *TokenUsage) Add(prompt, completion int) {
	if u != nil {
		u.PromptTokens += prompt
		u.CompletionTokens += completion
		u.Calls++
	}
}
