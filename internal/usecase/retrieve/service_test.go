package retrieve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/perf"
	"github.com/kailas-cloud/vaultctx/internal/transport/memvault"
	"github.com/kailas-cloud/vaultctx/internal/transport/vaulthttp"
	"github.com/kailas-cloud/vaultctx/internal/usecase/aggregate"
	"github.com/kailas-cloud/vaultctx/internal/usecase/boost"
)

// --- Mocks ---

type mockInspector struct{}

func (mockInspector) GetCacheStats() vaulthttp.CacheStats {
	return vaulthttp.CacheStats{Entries: 3, MaxEntries: 10, Hits: 7}
}

func (mockInspector) GetCircuitBreakerState() vaulthttp.BreakerSnapshot {
	return vaulthttp.BreakerSnapshot{State: vaulthttp.StateOpen, StateName: "open", ConsecutiveFailures: 5}
}

// --- Helpers ---

const (
	docA = "Performance optimization starts with measuring. Profile first, then apply the optimization " +
		"where performance actually matters."
	docB = "Grocery list for the weekend: apples, bread, cheese and coffee."
)

func newService(v *memvault.Vault, mon *perf.Monitor, stages Stages) *Service {
	agg := aggregate.New(v, mon, aggregate.DefaultConfig(), nil)
	return New(agg, mon, nil, stages, DefaultConfig(), nil)
}

func fixedCandidates(bPath string) []domain.Candidate {
	return []domain.Candidate{
		{File: domain.FileInfo{Path: "notes/a.md", Content: docA}, RelevanceScore: 1},
		{File: domain.FileInfo{Path: bPath, Content: docB}, RelevanceScore: 0.5},
	}
}

func candidatePaths(cs []domain.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.File.Path
	}
	return out
}

func sourcePaths(ctx domain.Context) []string {
	out := make([]string, len(ctx.Sources))
	for i, s := range ctx.Sources {
		out[i] = s.Path
	}
	return out
}

// --- Tests ---

func TestProcess_PerformanceOptimizationScenario(t *testing.T) {
	svc := newService(memvault.New(nil), perf.NewMonitor(), Stages{})

	q, err := svc.Stages().Composer.Compose("performance optimization", nil)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	for _, want := range []string{"performance", "optimization", "desempenho", "rendimento"} {
		if !slices.Contains(q.Tokens, want) {
			t.Errorf("expected token %q in %v", want, q.Tokens)
		}
	}

	cands, ctx := svc.Process(q, fixedCandidates("notes/b.md"))

	if len(cands) != 2 {
		t.Fatalf("dedup should keep both documents, got %v", candidatePaths(cands))
	}
	if cands[0].File.Path != "notes/a.md" || cands[0].RelevanceScore <= cands[1].RelevanceScore {
		t.Errorf("doc A must score strictly higher: %+v", cands)
	}
	if !slices.Contains(sourcePaths(ctx), "notes/a.md") {
		t.Errorf("sources should include doc A, got %v", sourcePaths(ctx))
	}
	if ctx.TokenCount <= 0 || ctx.TokenCount > svc.Stages().Assembler.Config().MaxTokens {
		t.Errorf("unexpected token count %d", ctx.TokenCount)
	}
}

func TestProcess_BoostPatternReranks(t *testing.T) {
	b := boost.New(boost.Config{NoDefaults: true})
	if err := b.AddPathPattern(boost.PathPattern{Pattern: "README", Multiplier: 1, Bonus: 10}); err != nil {
		t.Fatal(err)
	}
	svc := newService(memvault.New(nil), perf.NewMonitor(), Stages{Booster: b})

	q, _ := svc.Stages().Composer.Compose("performance optimization", nil)
	cands, _ := svc.Process(q, fixedCandidates("README.md"))

	if cands[0].File.Path != "README.md" {
		t.Errorf("boosted README should rank first, got %v", candidatePaths(cands))
	}
}

func TestProcess_Idempotent(t *testing.T) {
	svc := newService(memvault.New(nil), perf.NewMonitor(), Stages{})
	q, _ := svc.Stages().Composer.Compose("performance optimization", nil)
	in := fixedCandidates("notes/b.md")

	firstCands, firstCtx := svc.Process(q, in)
	for i := 0; i < 5; i++ {
		cands, ctx := svc.Process(q, in)
		if !slices.Equal(candidatePaths(cands), candidatePaths(firstCands)) {
			t.Fatalf("ordering changed: %v vs %v", candidatePaths(cands), candidatePaths(firstCands))
		}
		if ctx.Text != firstCtx.Text {
			t.Fatal("context text changed between runs")
		}
	}
}

func TestProcess_DuplicateKeepsFirstAcrossRuns(t *testing.T) {
	svc := newService(memvault.New(nil), perf.NewMonitor(), Stages{})
	q, _ := svc.Stages().Composer.Compose("performance optimization", nil)
	in := []domain.Candidate{
		{File: domain.FileInfo{Path: "copy-one.md", Content: docA}},
		{File: domain.FileInfo{Path: "copy-two.md", Content: docA}},
		{File: domain.FileInfo{Path: "notes/b.md", Content: docB}},
	}

	for run := range 200 {
		cands, ctx := svc.Process(q, in)
		if cands[0].File.Path != "copy-one.md" || slices.Contains(candidatePaths(cands), "copy-two.md") {
			t.Fatalf("run %d: expected copy-one.md as the kept duplicate, got %v", run, candidatePaths(cands))
		}
		if !strings.HasPrefix(ctx.Text, "## copy-one.md") {
			t.Fatalf("run %d: context starts with %q", run, ctx.Text[:min(len(ctx.Text), 20)])
		}
	}
}

func TestRetrieve_EndToEnd(t *testing.T) {
	v := memvault.New(map[string]memvault.Note{
		"notes/perf.md":    {Content: docA},
		"notes/grocery.md": {Content: docB},
		"README.md":        {Content: "Vault overview. See notes for performance work."},
	})
	mon := perf.NewMonitor()
	svc := newService(v, mon, Stages{})

	res, err := svc.RetrieveWithOptions(context.Background(), "performance optimization", Options{Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded {
		t.Error("should not be degraded")
	}
	if slices.Contains(candidatePaths(res.Candidates), "notes/grocery.md") {
		t.Errorf("unrelated note should not be a candidate: %v", candidatePaths(res.Candidates))
	}
	if !slices.Contains(sourcePaths(res.Context), "notes/perf.md") {
		t.Errorf("expected notes/perf.md in sources, got %v", sourcePaths(res.Context))
	}

	for _, op := range []string{OpRetrieve, OpCompose, aggregate.OpAggregate, OpRank, OpBoost, OpDedup, OpAssemble} {
		if m, ok := mon.Metric(op); !ok || m.Count != 1 {
			t.Errorf("%s: expected one recorded call, got %+v", op, m)
		}
	}
}

func TestRetrieve_Validation(t *testing.T) {
	svc := newService(memvault.New(nil), perf.NewMonitor(), Stages{})

	tests := []struct {
		name  string
		query string
		limit int
	}{
		{"empty query", "", 5},
		{"punctuation only", "?!", 5},
		{"zero limit", "performance", 0},
		{"negative limit", "performance", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Retrieve(context.Background(), tt.query, tt.limit)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRetrieve_NoResultsIsNotAnError(t *testing.T) {
	svc := newService(memvault.New(nil), perf.NewMonitor(), Stages{})
	ctx, err := svc.Retrieve(context.Background(), "nothing matches", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.TokenCount != 0 || len(ctx.Sources) != 0 {
		t.Errorf("expected empty context, got %+v", ctx)
	}
}

func TestRetrieve_DegradedAndStrict(t *testing.T) {
	v := memvault.New(map[string]memvault.Note{"a.md": {Content: docA}})
	v.SetError(&domain.UpstreamUnavailableError{Op: "search", Attempts: 3, Err: domain.ErrNetwork})
	mon := perf.NewMonitor()
	svc := newService(v, mon, Stages{})

	res, err := svc.RetrieveWithOptions(context.Background(), "performance", Options{Limit: 3})
	if err != nil {
		t.Fatalf("degraded retrieval should not fail: %v", err)
	}
	if !res.Degraded || res.Context.TokenCount != 0 {
		t.Errorf("expected empty degraded result, got %+v", res)
	}
	if m, _ := mon.Metric(aggregate.OpDegraded); m.Count != 1 {
		t.Errorf("degradation should be recorded, got %+v", m)
	}

	_, err = svc.RetrieveWithOptions(context.Background(), "performance", Options{Limit: 3, Strict: true})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("strict mode should surface the error, got %v", err)
	}
}

func TestRetrieve_MaxTokensOverride(t *testing.T) {
	v := memvault.New(map[string]memvault.Note{"notes/perf.md": {Content: docA}})
	svc := newService(v, perf.NewMonitor(), Stages{})

	res, err := svc.RetrieveWithOptions(context.Background(), "performance", Options{Limit: 1, MaxTokens: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Context.TokenCount > 3 {
		t.Errorf("budget exceeded: %d", res.Context.TokenCount)
	}
}

func TestRetrieve_Concurrent(t *testing.T) {
	notes := make(map[string]memvault.Note)
	for i := 0; i < 10; i++ {
		notes[fmt.Sprintf("notes/%d.md", i)] = memvault.Note{
			Content:  fmt.Sprintf("performance note %d about optimization and tuning", i),
			Modified: time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
		}
	}
	mon := perf.NewMonitor()
	svc := newService(memvault.New(notes), mon, Stages{})

	first, err := svc.Retrieve(context.Background(), "performance optimization", 5)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Retrieve(context.Background(), "performance optimization", 5)
			if err != nil {
				errs <- err
				return
			}
			if got.Text != first.Text {
				errs <- errors.New("concurrent retrieval returned a different context")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if m, _ := mon.Metric(OpRetrieve); m.Count != 21 || m.Errors != 0 {
		t.Errorf("expected 21 clean retrievals, got %+v", m)
	}
}

func TestStats(t *testing.T) {
	mon := perf.NewMonitor()
	agg := aggregate.New(memvault.New(nil), mon, aggregate.DefaultConfig(), nil)
	svc := New(agg, mon, mockInspector{}, Stages{}, Config{}, nil)

	if _, err := svc.Retrieve(context.Background(), "performance", 3); err != nil {
		t.Fatal(err)
	}

	st := svc.GetStats()
	if st.Cache.Hits != 7 || st.Breaker.StateName != "open" {
		t.Errorf("inspector state not reported: %+v", st)
	}
	if st.Ranking.K1 != 1.5 || st.Dedup.Threshold != 0.85 || st.Context.MaxTokens != 4000 {
		t.Errorf("unexpected stage settings: %+v", st)
	}
	if st.Report.TotalCount == 0 || st.Report.Health != perf.Good {
		t.Errorf("unexpected report: %+v", st.Report)
	}

	noInspector := newService(memvault.New(nil), perf.NewMonitor(), Stages{})
	if s := noInspector.GetCircuitBreakerState(); s.State != vaulthttp.StateClosed || s.StateName != "closed" {
		t.Errorf("expected closed breaker without inspector, got %+v", s)
	}
}
