package budget

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/metrics"
)

// LLM is the chat model being guarded.
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// GuardedLLM checks the budget before each completion and records the tokens it used.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type GuardedLLM struct {
	inner   LLM
	tracker *Tracker
	logger  *zap.Logger
}

// NewGuardedLLM wraps inner with tracker.
func NewGuardedLLM(inner LLM, tracker *Tracker, logger *zap.Logger) *GuardedLLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GuardedLLM{inner: inner, tracker: tracker, logger: logger}
	g.publish()
	return g
}

// Model returns the inner model name.
func (g *GuardedLLM) Model() string { return g.inner.Model() }

// Complete checks the budget, delegates, then records usage reported by the transport.
func (g *GuardedLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := g.tracker.Check(ctx); err != nil {
		g.logger.Warn("Budget exceeded", zap.String("model", g.inner.Model()), zap.Error(err))
		return "", fmt.Errorf("budget check: %w", err)
	}

	outer := domain.UsageFromContext(ctx)
	inner, usage := domain.NewContextWithUsage(ctx)
	answer, err := g.inner.Complete(inner, system, prompt)
	if usage.Calls > 0 {
		outer.Add(usage.PromptTokens, usage.CompletionTokens)
	}
	if total := usage.Total(); total > 0 {
		g.tracker.Record(int64(total))
		g.publish()
	}
	if err != nil {
		return "", err
	}
	return answer, nil
}

// Snapshot returns the tracker state.
func (g *GuardedLLM) Snapshot() Snapshot { return g.tracker.Snapshot() }

func (g *GuardedLLM) publish() {
	s := g.tracker.Snapshot()
	remaining := metrics.LLMBudgetTokensRemaining
	remaining.WithLabelValues(s.Model, "daily").Set(float64(s.DailyRemaining))
	remaining.WithLabelValues(s.Model, "monthly").Set(float64(s.MonthlyRemaining))
}
