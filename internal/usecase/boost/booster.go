// Package boost adjusts candidate scores from path patterns and note age.
package boost

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// PathPattern boosts candidates whose path contains Pattern (case-insensitive):
// score = score*Multiplier + Bonus.
type PathPattern struct {
	Pattern    string  `yaml:"pattern" json:"pattern"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
	Bonus      float64 `yaml:"bonus" json:"bonus"`
}

// Validate checks the pattern is usable.
func (p PathPattern) Validate() error {
	if strings.TrimSpace(p.Pattern) == "" {
		return domain.NewValidationError("pattern", "must not be empty")
	}
	if p.Multiplier <= 0 || math.IsNaN(p.Multiplier) || math.IsInf(p.Multiplier, 0) {
		return domain.NewValidationError("multiplier", "must be a finite number > 0")
	}
	if p.Bonus < 0 || math.IsNaN(p.Bonus) || math.IsInf(p.Bonus, 0) {
		return domain.NewValidationError("bonus", "must be a finite number >= 0")
	}
	return nil
}

// DefaultPatterns favours README files.
func DefaultPatterns() []PathPattern {
	return []PathPattern{{Pattern: "README", Multiplier: 1.5, Bonus: 0.1}}
}

// Config configures a Booster.
type Config struct {
	Patterns   []PathPattern
	NoDefaults bool
	// RecencyWeight is the extra multiplier a just-modified note gets; it halves every RecencyHalfLife.
	RecencyWeight   float64
	RecencyHalfLife time.Duration
	Now             func() time.Time
}

// DefaultConfig returns README patterns and a 0.2 recency weight with a 30 day half-life.
func DefaultConfig() Config {
	return Config{RecencyWeight: 0.2, RecencyHalfLife: 30 * 24 * time.Hour}
}

// Booster is safe for concurrent use.
type Booster struct {
	mu       sync.RWMutex
	patterns []PathPattern
	weight   float64
	halfLife time.Duration
	now      func() time.Time
}

// New creates a Booster. Invalid patterns in cfg are skipped.
func New(cfg Config) *Booster {
	b := &Booster{
		weight:   math.Max(cfg.RecencyWeight, 0),
		halfLife: cfg.RecencyHalfLife,
		now:      cfg.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if !cfg.NoDefaults {
		b.patterns = append(b.patterns, DefaultPatterns()...)
	}
	for _, p := range cfg.Patterns {
		_ = b.AddPathPattern(p)
	}
	return b
}

// AddPathPattern registers a pattern. Patterns stack when several match.
func (b *Booster) AddPathPattern(p PathPattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.patterns = append(b.patterns, p)
	b.mu.Unlock()
	return nil
}

// Patterns returns a copy of the registered patterns.
func (b *Booster) Patterns() []PathPattern {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]PathPattern(nil), b.patterns...)
}

// BoostCandidates applies path and recency boosts and re-sorts descending. Ties keep prior order.
// The input slice is not modified.
func (b *Booster) BoostCandidates(candidates []domain.Candidate) []domain.Candidate {
	patterns := b.Patterns()
	now := b.now()

	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		score := out[i].RelevanceScore
		lowerPath := strings.ToLower(out[i].File.Path)
		for _, p := range patterns {
			if strings.Contains(lowerPath, strings.ToLower(p.Pattern)) {
				score = score*p.Multiplier + p.Bonus
			}
		}
		out[i].RelevanceScore = max(0, score*b.recency(out[i].File.Modified, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// recency is 1 + weight*0.5^(age/halfLife). Unknown timestamps count as infinitely old, future ones as new.
func (b *Booster) recency(modified, now time.Time) float64 {
	if b.weight == 0 || b.halfLife <= 0 || modified.IsZero() {
		return 1
	}
	age := now.Sub(modified)
	if age < 0 {
		age = 0
	}
	return 1 + b.weight*math.Exp2(-float64(age)/float64(b.halfLife))
}
