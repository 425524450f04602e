// Package rank scores candidates with BM25 over the current batch.
package rank

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/textutil"
)

// Params are the BM25 free parameters.
type Params struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// DefaultParams returns k1=1.5, b=0.75.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// Validate checks k1 >= 0 and 0 <= b <= 1.
func (p Params) Validate() error {
	if p.K1 < 0 || math.IsNaN(p.K1) || math.IsInf(p.K1, 0) {
		return domain.NewValidationError("k1", "must be a finite number >= 0")
	}
	if p.B < 0 || p.B > 1 || math.IsNaN(p.B) {
		return domain.NewValidationError("b", "must be within [0, 1]")
	}
	return nil
}

// Ranker is safe for concurrent use; SetParameters affects subsequent calls only.
type Ranker struct {
	mu sync.RWMutex
	p  Params
}

// New creates a Ranker. Invalid params fall back to DefaultParams.
func New(p Params) *Ranker {
	if p == (Params{}) || p.Validate() != nil {
		p = DefaultParams()
	}
	return &Ranker{p: p}
}

// SetParameters tunes k1 and b.
func (r *Ranker) SetParameters(k1, b float64) error {
	p := Params{K1: k1, B: b}
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
	return nil
}

// Parameters returns the current parameters.
func (r *Ranker) Parameters() Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.p
}

// RankCandidates replaces every RelevanceScore with its BM25 score against tokens and returns the
// candidates sorted descending. IDF is computed over this batch only. Ties keep input order.
// The input slice is not modified.
func (r *Ranker) RankCandidates(tokens []string, candidates []domain.Candidate) []domain.Candidate {
	p := r.Parameters()
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)
	if len(out) == 0 {
		return out
	}

	order, terms := uniqueTerms(tokens)
	docs := make([]map[string]int, len(out))
	lengths := make([]int, len(out))
	df := make(map[string]int, len(terms))
	total := 0

	for i, c := range out {
		words := textutil.Tokenize(c.File.Content)
		lengths[i] = len(words)
		total += len(words)

		tf := make(map[string]int)
		for _, w := range words {
			if _, ok := terms[w]; ok {
				tf[w]++
			}
		}
		for t := range tf {
			df[t]++
		}
		docs[i] = tf
	}

	avgDocLen := float64(total) / float64(len(out))
	n := float64(len(out))
	for i := range out {
		if avgDocLen == 0 {
			out[i].RelevanceScore = 0
			continue
		}
		var score float64
		norm := p.K1 * (1 - p.B + p.B*float64(lengths[i])/avgDocLen)
		// Summed in query order so equal inputs give bit-identical scores.
		for _, t := range order {
			f, ok := docs[i][t]
			if !ok {
				continue
			}
			tf := float64(f)
			score += idf(n, float64(df[t])) * tf * (p.K1 + 1) / (tf + norm)
		}
		out[i].RelevanceScore = score
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// idf is the Lucene form of BM25 IDF; it stays positive even when every document has the term.
func idf(n, df float64) float64 {
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// uniqueTerms returns the lower-cased terms in first-seen order and as a set.
func uniqueTerms(tokens []string) ([]string, map[string]struct{}) {
	order := make([]string, 0, len(tokens))
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := set[t]; ok {
			continue
		}
		set[t] = struct{}{}
		order = append(order, t)
	}
	return order, set
}
