package rank

import (
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

func cand(path, content string, score float64) domain.Candidate {
	return domain.Candidate{File: domain.FileInfo{Path: path, Content: content}, RelevanceScore: score}
}

func paths(cs []domain.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.File.Path
	}
	return out
}

func TestRankCandidates_OrdersByRelevance(t *testing.T) {
	r := New(DefaultParams())
	in := []domain.Candidate{
		cand("b.md", "gardening tips for spring", 1),
		cand("a.md", "performance optimization: measure performance before optimization", 0.5),
		cand("c.md", "a note on performance", 0.33),
	}

	out := r.RankCandidates([]string{"performance", "optimization", "desempenho"}, in)
	if len(out) != len(in) {
		t.Fatalf("length changed: %d -> %d", len(in), len(out))
	}
	if got := paths(out); got[0] != "a.md" || got[1] != "c.md" || got[2] != "b.md" {
		t.Fatalf("unexpected order %v", got)
	}
	if out[2].RelevanceScore != 0 {
		t.Errorf("doc without query terms must score 0, got %v", out[2].RelevanceScore)
	}
	if in[0].File.Path != "b.md" || in[0].RelevanceScore != 1 {
		t.Error("input slice must not be modified")
	}
}

func TestRankCandidates_SortedDescending(t *testing.T) {
	r := New(Params{})
	in := []domain.Candidate{
		cand("1", "x y z", 0), cand("2", "x x", 0), cand("3", "", 0),
		cand("4", "y", 0), cand("5", "x y x y", 0), cand("6", "q", 0),
	}
	out := r.RankCandidates([]string{"x", "y"}, in)
	for i := 1; i < len(out); i++ {
		if out[i-1].RelevanceScore < out[i].RelevanceScore {
			t.Fatalf("not sorted at %d: %v", i, out)
		}
	}
}

func TestRankCandidates_StableTies(t *testing.T) {
	r := New(DefaultParams())
	in := []domain.Candidate{
		cand("first", "alpha beta", 9),
		cand("second", "alpha beta", 1),
		cand("third", "gamma", 5),
		cand("fourth", "alpha beta", 3),
	}
	out := r.RankCandidates([]string{"alpha"}, in)
	want := []string{"first", "second", "fourth", "third"}
	for i, p := range paths(out) {
		if p != want[i] {
			t.Fatalf("expected %v, got %v", want, paths(out))
		}
	}
}

func TestRankCandidates_EmptyContentBatch(t *testing.T) {
	r := New(DefaultParams())
	in := []domain.Candidate{cand("a", "", 0.9), cand("b", "  ", 0.1), cand("c", "!!!", 0.5)}

	out := r.RankCandidates([]string{"anything"}, in)
	for i, c := range out {
		if c.RelevanceScore != 0 || math.IsNaN(c.RelevanceScore) {
			t.Errorf("candidate %d: expected 0, got %v", i, c.RelevanceScore)
		}
		if c.File.Path != in[i].File.Path {
			t.Errorf("zero batch must keep input order, got %v", paths(out))
		}
	}
}

func TestRankCandidates_EmptyInput(t *testing.T) {
	r := New(DefaultParams())
	if out := r.RankCandidates([]string{"x"}, nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out)
	}
}

func TestRankCandidates_DuplicateQueryTokens(t *testing.T) {
	r := New(DefaultParams())
	in := []domain.Candidate{cand("a", "go tips", 0), cand("b", "rust", 0)}

	once := r.RankCandidates([]string{"go"}, in)
	twice := r.RankCandidates([]string{"go", "GO", "go"}, in)
	if once[0].RelevanceScore != twice[0].RelevanceScore {
		t.Errorf("duplicate tokens must not inflate scores: %v vs %v", once[0].RelevanceScore, twice[0].RelevanceScore)
	}
}

func TestRankCandidates_Deterministic(t *testing.T) {
	r := New(DefaultParams())
	in := []domain.Candidate{
		cand("a", "performance tuning guide", 0),
		cand("b", "tuning performance performance", 0),
		cand("c", "unrelated", 0),
	}
	first := r.RankCandidates([]string{"performance", "tuning"}, in)
	for range 10 {
		again := r.RankCandidates([]string{"performance", "tuning"}, in)
		for i := range first {
			if first[i].File.Path != again[i].File.Path || first[i].RelevanceScore != again[i].RelevanceScore {
				t.Fatal("ranking must be deterministic")
			}
		}
	}
}

func TestRankCandidates_EqualContentStableAcrossRuns(t *testing.T) {
	r := New(DefaultParams())
	content := "performance optimization desempenho rendimento speed latency throughput tuning cache profile"
	in := []domain.Candidate{
		cand("copy-one.md", content, 0),
		cand("copy-two.md", content, 0),
		cand("other.md", "performance notes about latency and cache misses", 0),
		cand("noise.md", "grocery list", 0),
	}
	tokens := []string{
		"performance", "optimization", "desempenho", "rendimento", "speed",
		"latency", "throughput", "tuning", "cache", "profile",
	}

	first := r.RankCandidates(tokens, in)
	if first[0].File.Path != "copy-one.md" || first[1].File.Path != "copy-two.md" {
		t.Fatalf("equal scores must keep input order, got %v", paths(first))
	}
	if first[0].RelevanceScore != first[1].RelevanceScore {
		t.Fatalf("equal content must score equally: %v vs %v", first[0].RelevanceScore, first[1].RelevanceScore)
	}
	for run := range 300 {
		again := r.RankCandidates(tokens, in)
		for i := range first {
			if again[i].File.Path != first[i].File.Path || again[i].RelevanceScore != first[i].RelevanceScore {
				t.Fatalf("run %d: got %v (%v), want %v (%v)",
					run, paths(again), again[i].RelevanceScore, paths(first), first[i].RelevanceScore)
			}
		}
	}
}

func TestRankCandidates_KnownScore(t *testing.T) {
	r := New(Params{K1: 1.2, B: 0})
	in := []domain.Candidate{cand("a", "x", 0), cand("b", "y", 0)}

	out := r.RankCandidates([]string{"x"}, in)
	// N=2, df=1: idf = ln(1 + 1.5/1.5) = ln 2; tf=1, b=0: 1*(2.2)/(1+1.2) = 1
	if want := math.Log(2); math.Abs(out[0].RelevanceScore-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, out[0].RelevanceScore)
	}
}

func TestSetParameters(t *testing.T) {
	r := New(DefaultParams())
	if err := r.SetParameters(2, 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := r.Parameters(); p.K1 != 2 || p.B != 0.5 {
		t.Errorf("unexpected params %+v", p)
	}

	tests := []struct{ k1, b float64 }{{-1, 0.5}, {1, -0.1}, {1, 1.1}, {math.NaN(), 0.5}, {math.Inf(1), 0.5}}
	for _, tc := range tests {
		if err := r.SetParameters(tc.k1, tc.b); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("SetParameters(%v, %v): expected ErrValidation, got %v", tc.k1, tc.b, err)
		}
	}
	if p := r.Parameters(); p.K1 != 2 || p.B != 0.5 {
		t.Errorf("rejected params must not be applied, got %+v", p)
	}
}

func TestSetParameters_ChangesScores(t *testing.T) {
	r := New(DefaultParams())
	in := []domain.Candidate{cand("long", "x a b c d e f g h", 0), cand("short", "x", 0), cand("none", "z", 0)}

	before := r.RankCandidates([]string{"x"}, in)
	_ = r.SetParameters(1.5, 0)
	after := r.RankCandidates([]string{"x"}, in)

	if before[0].File.Path != "short" {
		t.Errorf("length normalization should favour the short doc, got %v", paths(before))
	}
	if after[0].RelevanceScore != after[1].RelevanceScore {
		t.Errorf("b=0 disables length normalization: %v vs %v", after[0].RelevanceScore, after[1].RelevanceScore)
	}
}

func TestNew_InvalidParamsFallBack(t *testing.T) {
	if p := New(Params{K1: -5, B: 3}).Parameters(); p != DefaultParams() {
		t.Errorf("expected defaults, got %+v", p)
	}
}
