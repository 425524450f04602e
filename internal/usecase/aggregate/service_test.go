package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/perf"
	"github.com/kailas-cloud/vaultctx/internal/transport/memvault"
)

// --- Mocks ---

// mockVault serves fixed hits and lets Get fail per path.
type mockVault struct {
	hits      map[string][]domain.SearchHit
	searchErr error
	getErr    map[string]error
	inner     *memvault.Vault
	queries   []string
}

func (m *mockVault) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	m.queries = append(m.queries, query)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.hits[query], nil
}

func (m *mockVault) Get(ctx context.Context, path string) (domain.Response, error) {
	if err := m.getErr[path]; err != nil {
		return domain.Response{}, err
	}
	return m.inner.Get(ctx, path)
}

var unavailable = &domain.UpstreamUnavailableError{Op: "search", Attempts: 3, Err: domain.ErrNetwork}

func compose(terms []string, expansions []string, filters map[string]string) domain.ComposedQuery {
	return domain.ComposedQuery{
		Raw:        "raw",
		Tokens:     append(append([]string(nil), terms...), expansions...),
		Expansions: expansions,
		Filters:    filters,
	}
}

func testVault() *memvault.Vault {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return memvault.New(map[string]memvault.Note{
		"work/perf.md":      {Content: "performance optimization notes", Tags: []string{"infra"}, Modified: now},
		"work/tuning.md":    {Content: "performance tuning", Modified: now},
		"home/garden.md":    {Content: "garden performance of tomatoes", Modified: now},
		"work/desemp.txt":   {Content: "desempenho do sistema", Modified: now},
		"work/unrelated.md": {Content: "lunch menu", Modified: now},
	})
}

// --- Tests ---

func TestAggregate_MergesAndScores(t *testing.T) {
	mon := perf.NewMonitor()
	svc := New(testVault(), mon, Config{}, nil)

	q := compose([]string{"performance"}, []string{"desempenho"}, nil)
	res, err := svc.Aggregate(context.Background(), q, 10, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if len(res.Candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(res.Candidates))
	}
	for i, c := range res.Candidates {
		if want := 1 / float64(1+i); c.RelevanceScore != want {
			t.Errorf("candidate %d: expected score %v, got %v", i, want, c.RelevanceScore)
		}
		if c.File.Content == "" || c.File.Path == "" {
			t.Errorf("candidate %d not fetched: %+v", i, c.File)
		}
	}
	if res.Candidates[3].File.Path != "work/desemp.txt" {
		t.Errorf("expansion hits should follow phrase hits, got %s", res.Candidates[3].File.Path)
	}
	if m, ok := mon.Metric(OpAggregate); !ok || m.Count != 1 || m.Errors != 0 {
		t.Errorf("unexpected aggregate metric: %+v", m)
	}
}

func TestAggregate_TruncatesToLimit(t *testing.T) {
	v := testVault()
	svc := New(v, perf.NewMonitor(), Config{}, nil)

	res, err := svc.Aggregate(context.Background(), compose([]string{"performance"}, nil, nil), 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(res.Candidates))
	}
	if v.Calls("get") != 2 {
		t.Errorf("only the kept hits should be fetched, got %d gets", v.Calls("get"))
	}
}

func TestAggregate_SearchQueries(t *testing.T) {
	m := &mockVault{inner: memvault.New(nil)}
	svc := New(m, perf.NewMonitor(), Config{MaxQueries: 4}, nil)

	q := compose([]string{"performance", "optimization"}, []string{"desempenho", "rendimento", "extra"}, nil)
	if _, err := svc.Aggregate(context.Background(), q, 5, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"performance optimization", "performance", "optimization", "desempenho"}
	if len(m.queries) != len(want) {
		t.Fatalf("expected queries %v, got %v", want, m.queries)
	}
	for i := range want {
		if m.queries[i] != want[i] {
			t.Errorf("query %d: expected %q, got %q", i, want[i], m.queries[i])
		}
	}
}

func TestAggregate_Filters(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]string
		want    []string
	}{
		{"path prefix", map[string]string{domain.FilterPath: "WORK/"}, []string{"work/perf.md", "work/tuning.md", "work/desemp.txt"}},
		{"extension", map[string]string{domain.FilterExt: "txt"}, []string{"work/desemp.txt"}},
		{"tag", map[string]string{domain.FilterTag: "infra"}, []string{"work/perf.md"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(testVault(), perf.NewMonitor(), Config{}, nil)
			q := compose([]string{"performance"}, []string{"desempenho"}, tc.filters)
			res, err := svc.Aggregate(context.Background(), q, 10, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := make(map[string]bool)
			for _, c := range res.Candidates {
				got[c.File.Path] = true
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for _, p := range tc.want {
				if !got[p] {
					t.Errorf("missing %s in %v", p, got)
				}
			}
		})
	}
}

func TestAggregate_InvalidLimit(t *testing.T) {
	svc := New(testVault(), perf.NewMonitor(), Config{}, nil)
	for _, limit := range []int{0, -3} {
		_, err := svc.Aggregate(context.Background(), compose([]string{"x"}, nil, nil), limit, false)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("limit %d: expected ErrValidation, got %v", limit, err)
		}
	}
}

func TestAggregate_DegradesWhenUnavailable(t *testing.T) {
	v := testVault()
	v.SetError(unavailable)
	mon := perf.NewMonitor()
	svc := New(v, mon, Config{}, nil)

	res, err := svc.Aggregate(context.Background(), compose([]string{"performance"}, nil, nil), 5, false)
	if err != nil {
		t.Fatalf("degradation must not be an error, got %v", err)
	}
	if !res.Degraded || len(res.Candidates) != 0 {
		t.Fatalf("expected empty degraded result, got %+v", res)
	}
	if m, ok := mon.Metric(OpDegraded); !ok || m.Errors != 1 {
		t.Errorf("degradation should be recorded, got %+v", m)
	}
}

func TestAggregate_StrictSurfacesError(t *testing.T) {
	v := testVault()
	v.SetError(unavailable)
	svc := New(v, perf.NewMonitor(), Config{}, nil)

	_, err := svc.Aggregate(context.Background(), compose([]string{"performance"}, nil, nil), 5, true)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestAggregate_PartialOnGetFailure(t *testing.T) {
	m := &mockVault{
		inner: testVault(),
		hits: map[string][]domain.SearchHit{
			"performance": {{Path: "work/perf.md"}, {Path: "work/tuning.md"}, {Path: "home/garden.md"}},
		},
		getErr: map[string]error{"work/tuning.md": unavailable},
	}
	svc := New(m, perf.NewMonitor(), Config{}, nil)

	res, err := svc.Aggregate(context.Background(), compose([]string{"performance"}, nil, nil), 5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Degraded || len(res.Candidates) != 1 || res.Candidates[0].File.Path != "work/perf.md" {
		t.Fatalf("expected partial degraded result, got %+v", res)
	}
}

func TestAggregate_SkipsMissingNotes(t *testing.T) {
	m := &mockVault{
		inner: testVault(),
		hits: map[string][]domain.SearchHit{
			"performance": {{Path: "gone.md"}, {Path: "work/perf.md"}},
		},
	}
	svc := New(m, perf.NewMonitor(), Config{}, nil)

	res, err := svc.Aggregate(context.Background(), compose([]string{"performance"}, nil, nil), 5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded || res.Skipped != 1 || len(res.Candidates) != 1 {
		t.Fatalf("expected one skipped note, got %+v", res)
	}
	if res.Candidates[0].RelevanceScore != 1 {
		t.Errorf("rank should count kept candidates only, got %v", res.Candidates[0].RelevanceScore)
	}
}

func TestAggregate_NonUpstreamSearchError(t *testing.T) {
	m := &mockVault{inner: testVault(), searchErr: &domain.StatusError{Op: "search", StatusCode: 401}}
	svc := New(m, perf.NewMonitor(), Config{}, nil)

	_, err := svc.Aggregate(context.Background(), compose([]string{"x"}, nil, nil), 5, false)
	var se *domain.StatusError
	if !errors.As(err, &se) || se.StatusCode != 401 {
		t.Fatalf("expected auth error to surface, got %v", err)
	}
}
