// Package dedup collapses near-duplicate candidates to one representative per group.
package dedup

import (
	"math"
	"strings"
	"sync"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/textutil"
)

// Strategy picks the representative kept from a duplicate group.
type Strategy string

const (
	// StrategyHighestScore keeps the candidate with the best RelevanceScore.
	StrategyHighestScore Strategy = "highest-score"
	// StrategyFreshest keeps the most recently modified candidate.
	StrategyFreshest Strategy = "freshest"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyHighestScore, StrategyFreshest:
		return st, nil
	}
	return "", domain.NewValidationError("strategy", "must be one of highest-score, freshest")
}

// Config configures a Deduplicator.
type Config struct {
	Threshold   float64  `yaml:"threshold" json:"threshold"`
	Strategy    Strategy `yaml:"strategy" json:"strategy"`
	ShingleSize int      `yaml:"shingle_size" json:"shingle_size"`
}

// DefaultConfig returns threshold 0.85, highest-score, 3-word shingles.
func DefaultConfig() Config {
	return Config{Threshold: 0.85, Strategy: StrategyHighestScore, ShingleSize: 3}
}

// Deduplicator is safe for concurrent use.
type Deduplicator struct {
	mu          sync.RWMutex
	threshold   float64
	strategy    Strategy
	shingleSize int
}

// New creates a Deduplicator. Zero or invalid fields take their defaults.
func New(cfg Config) *Deduplicator {
	def := DefaultConfig()
	d := &Deduplicator{threshold: def.Threshold, strategy: def.Strategy, shingleSize: def.ShingleSize}
	if validThreshold(cfg.Threshold) {
		d.threshold = cfg.Threshold
	}
	if st, err := ParseStrategy(string(cfg.Strategy)); err == nil {
		d.strategy = st
	}
	if cfg.ShingleSize > 0 {
		d.shingleSize = cfg.ShingleSize
	}
	return d
}

// SetSimilarityThreshold sets the similarity at or above which two candidates are duplicates.
func (d *Deduplicator) SetSimilarityThreshold(t float64) error {
	if !validThreshold(t) {
		return domain.NewValidationError("threshold", "must be within (0, 1]")
	}
	d.mu.Lock()
	d.threshold = t
	d.mu.Unlock()
	return nil
}

// SetStrategy selects how the representative of a group is chosen.
func (d *Deduplicator) SetStrategy(s string) error {
	st, err := ParseStrategy(s)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.strategy = st
	d.mu.Unlock()
	return nil
}

// Config returns the current settings.
func (d *Deduplicator) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Config{Threshold: d.threshold, Strategy: d.strategy, ShingleSize: d.shingleSize}
}

// DeduplicateCandidates groups candidates whose similarity reaches the threshold and keeps one per group.
// Retained candidates keep their input order. Candidates with empty content are never grouped.
func (d *Deduplicator) DeduplicateCandidates(candidates []domain.Candidate) []domain.Candidate {
	cfg := d.Config()
	n := len(candidates)
	if n < 2 {
		return append([]domain.Candidate(nil), candidates...)
	}

	docs := make([]doc, n)
	for i, c := range candidates {
		docs[i] = newDoc(c.File.Content, cfg.ShingleSize)
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if similarity(docs[i], docs[j]) >= cfg.Threshold {
				uf.union(i, j)
			}
		}
	}

	// best[root] is the index of the group representative.
	best := make(map[int]int, n)
	for i := range candidates {
		root := uf.find(i)
		cur, ok := best[root]
		if !ok || prefer(cfg.Strategy, candidates[i], candidates[cur]) {
			best[root] = i
		}
	}

	out := make([]domain.Candidate, 0, len(best))
	for i, c := range candidates {
		if best[uf.find(i)] == i {
			out = append(out, c)
		}
	}
	return out
}

// Similarity returns the similarity of two contents using k-word shingles.
func Similarity(a, b string, k int) float64 {
	if k <= 0 {
		k = DefaultConfig().ShingleSize
	}
	return similarity(newDoc(a, k), newDoc(b, k))
}

// prefer reports whether a should replace the current representative b. Ties keep b, the earlier item.
func prefer(s Strategy, a, b domain.Candidate) bool {
	if s == StrategyFreshest {
		if !a.File.Modified.Equal(b.File.Modified) {
			return a.File.Modified.After(b.File.Modified)
		}
	}
	return a.RelevanceScore > b.RelevanceScore
}

func validThreshold(t float64) bool {
	return t > 0 && t <= 1 && !math.IsNaN(t)
}

type doc struct {
	normalized string
	shingles   map[string]struct{}
}

func newDoc(content string, k int) doc {
	tokens := textutil.Tokenize(content)
	if len(tokens) == 0 {
		return doc{}
	}
	d := doc{normalized: strings.Join(tokens, " "), shingles: make(map[string]struct{})}
	if len(tokens) < k {
		d.shingles[d.normalized] = struct{}{}
		return d
	}
	for i := 0; i+k <= len(tokens); i++ {
		d.shingles[strings.Join(tokens[i:i+k], " ")] = struct{}{}
	}
	return d
}

// similarity is 1 for identical normalized text, otherwise the Jaccard overlap of shingle sets.
func similarity(a, b doc) float64 {
	if a.normalized == "" || b.normalized == "" {
		return 0
	}
	if a.normalized == b.normalized {
		return 1
	}
	small, large := a.shingles, b.shingles
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a.shingles) + len(b.shingles) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
