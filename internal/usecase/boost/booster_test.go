package boost

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

func cand(path string, score float64, modified time.Time) domain.Candidate {
	return domain.Candidate{File: domain.FileInfo{Path: path, Modified: modified}, RelevanceScore: score}
}

func TestBoost_PatternOutranksIdenticalScore(t *testing.T) {
	b := New(Config{Now: fixedNow})
	for _, score := range []float64{0, 0.3, 2} {
		in := []domain.Candidate{
			cand("notes/setup.md", score, time.Time{}),
			cand("project/README.md", score, time.Time{}),
		}
		out := b.BoostCandidates(in)
		if out[0].File.Path != "project/README.md" {
			t.Errorf("score %v: README should outrank, got %s first", score, out[0].File.Path)
		}
		if out[0].RelevanceScore <= out[1].RelevanceScore {
			t.Errorf("score %v: README must be strictly higher: %v vs %v", score, out[0].RelevanceScore, out[1].RelevanceScore)
		}
	}
}

func TestBoost_PatternIsCaseInsensitive(t *testing.T) {
	b := New(Config{Now: fixedNow})
	out := b.BoostCandidates([]domain.Candidate{cand("docs/readme.md", 1, time.Time{})})
	if want := 1*1.5 + 0.1; out[0].RelevanceScore != want {
		t.Errorf("expected %v, got %v", want, out[0].RelevanceScore)
	}
}

func TestBoost_AddPathPattern(t *testing.T) {
	b := New(Config{NoDefaults: true, Now: fixedNow})
	if err := b.AddPathPattern(PathPattern{Pattern: "archive/", Multiplier: 0.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AddPathPattern(PathPattern{Pattern: "index", Multiplier: 2, Bonus: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := b.BoostCandidates([]domain.Candidate{
		cand("archive/old.md", 1, time.Time{}),
		cand("plain.md", 0.8, time.Time{}),
		cand("archive/index.md", 1, time.Time{}),
	})

	want := map[string]float64{"archive/old.md": 0.5, "plain.md": 0.8, "archive/index.md": 2}
	for _, c := range out {
		if c.RelevanceScore != want[c.File.Path] {
			t.Errorf("%s: expected %v, got %v", c.File.Path, want[c.File.Path], c.RelevanceScore)
		}
	}
	if out[0].File.Path != "archive/index.md" || out[2].File.Path != "archive/old.md" {
		t.Errorf("unexpected order: %v", out)
	}
}

func TestBoost_InvalidPatterns(t *testing.T) {
	b := New(Config{})
	tests := []PathPattern{
		{Pattern: "", Multiplier: 1},
		{Pattern: "x", Multiplier: 0},
		{Pattern: "x", Multiplier: -1},
		{Pattern: "x", Multiplier: math.Inf(1)},
		{Pattern: "x", Multiplier: 1, Bonus: math.NaN()},
		{Pattern: "x", Multiplier: 1, Bonus: -0.5},
	}
	for _, p := range tests {
		if err := b.AddPathPattern(p); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%+v: expected ErrValidation, got %v", p, err)
		}
	}
	if n := len(b.Patterns()); n != 1 {
		t.Errorf("only the default pattern should remain, got %d", n)
	}
}

func TestBoost_ScoresStayNonNegative(t *testing.T) {
	b := New(Config{NoDefaults: true, Patterns: []PathPattern{
		{Pattern: "drafts", Multiplier: 1, Bonus: -5},
		{Pattern: "drafts", Multiplier: 0.5},
	}})
	if n := len(b.Patterns()); n != 1 {
		t.Fatalf("negative bonus pattern must be skipped, got %d patterns", n)
	}

	in := []domain.Candidate{
		{File: domain.FileInfo{Path: "drafts/a.md"}, RelevanceScore: -0.4},
		{File: domain.FileInfo{Path: "notes/b.md"}, RelevanceScore: 0.3},
	}
	for _, c := range b.BoostCandidates(in) {
		if c.RelevanceScore < 0 {
			t.Errorf("%s: negative score %v", c.File.Path, c.RelevanceScore)
		}
	}
}

func TestBoost_RecencyMonotonic(t *testing.T) {
	b := New(Config{NoDefaults: true, RecencyWeight: 0.5, RecencyHalfLife: 24 * time.Hour, Now: fixedNow})

	ages := []time.Duration{0, time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 365 * 24 * time.Hour}
	prev := math.Inf(1)
	for _, age := range ages {
		out := b.BoostCandidates([]domain.Candidate{cand("n.md", 1, now.Add(-age))})
		if out[0].RelevanceScore > prev {
			t.Fatalf("age %s: boost increased (%v > %v)", age, out[0].RelevanceScore, prev)
		}
		prev = out[0].RelevanceScore
	}

	fresh := b.BoostCandidates([]domain.Candidate{cand("n.md", 1, now)})[0].RelevanceScore
	if fresh != 1.5 {
		t.Errorf("fresh note should get the full weight, got %v", fresh)
	}
	halved := b.BoostCandidates([]domain.Candidate{cand("n.md", 1, now.Add(-24*time.Hour))})[0].RelevanceScore
	if math.Abs(halved-1.25) > 1e-12 {
		t.Errorf("one half-life should halve the weight, got %v", halved)
	}
	future := b.BoostCandidates([]domain.Candidate{cand("n.md", 1, now.Add(time.Hour))})[0].RelevanceScore
	if future != 1.5 {
		t.Errorf("future timestamps should count as new, got %v", future)
	}
	unknown := b.BoostCandidates([]domain.Candidate{cand("n.md", 1, time.Time{})})[0].RelevanceScore
	if unknown != 1 {
		t.Errorf("unknown timestamps get no boost, got %v", unknown)
	}
}

func TestBoost_RecencyReorders(t *testing.T) {
	b := New(Config{NoDefaults: true, RecencyWeight: 1, RecencyHalfLife: time.Hour, Now: fixedNow})
	out := b.BoostCandidates([]domain.Candidate{
		cand("old.md", 1.2, now.Add(-100*time.Hour)),
		cand("new.md", 1.0, now),
	})
	if out[0].File.Path != "new.md" {
		t.Errorf("fresh note should overtake, got %s first", out[0].File.Path)
	}
}

func TestBoost_StableAndPure(t *testing.T) {
	b := New(Config{NoDefaults: true, Now: fixedNow})
	in := []domain.Candidate{cand("a", 1, time.Time{}), cand("b", 2, time.Time{}), cand("c", 1, time.Time{})}

	out := b.BoostCandidates(in)
	if out[0].File.Path != "b" || out[1].File.Path != "a" || out[2].File.Path != "c" {
		t.Errorf("ties must keep prior order, got %v", out)
	}
	if in[0].File.Path != "a" {
		t.Error("input must not be modified")
	}
	if len(b.BoostCandidates(nil)) != 0 {
		t.Error("empty input should give empty output")
	}
}
