// Package compose turns a raw query into tokens, synonym expansions and filters.
package compose

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/textutil"
)

// Config holds the initial synonym table. Keys and expansions are normalized on registration.
type Config struct {
	Synonyms map[string][]string
	// NoDefaults skips DefaultSynonyms.
	NoDefaults bool
}

// DefaultSynonyms is the built-in English/Portuguese table for common note vocabulary.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"performance":   {"desempenho", "rendimento"},
		"optimization":  {"otimização", "optimisation"},
		"error":         {"erro", "bug", "failure"},
		"bug":           {"erro", "defect"},
		"search":        {"busca", "pesquisa"},
		"note":          {"nota"},
		"meeting":       {"reunião"},
		"project":       {"projeto"},
		"task":          {"tarefa", "todo"},
		"documentation": {"documentação", "docs"},
		"config":        {"configuration", "settings"},
		"test":          {"teste"},
		"database":      {"db", "banco"},
	}
}

var filterKeys = map[string]struct{}{
	domain.FilterPath: {},
	domain.FilterExt:  {},
	domain.FilterTag:  {},
}

// Composer is safe for concurrent use; AddSynonyms may run while queries are composed.
type Composer struct {
	mu       sync.RWMutex
	synonyms map[string][]string
}

// New creates a Composer.
func New(cfg Config) *Composer {
	c := &Composer{synonyms: make(map[string][]string)}
	if !cfg.NoDefaults {
		for term, exp := range DefaultSynonyms() {
			c.AddSynonyms(term, exp...)
		}
	}
	for term, exp := range cfg.Synonyms {
		c.AddSynonyms(term, exp...)
	}
	return c
}

// AddSynonyms registers expansions for term, appending to any existing set.
func (c *Composer) AddSynonyms(term string, expansions ...string) {
	key := normalizeTerm(term)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.synonyms[key]
	for _, e := range expansions {
		for _, tok := range textutil.Tokenize(e) {
			if tok != key && !slices.Contains(existing, tok) {
				existing = append(existing, tok)
			}
		}
	}
	c.synonyms[key] = existing
}

// Synonyms returns a copy of the expansions registered for term.
func (c *Composer) Synonyms(term string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.synonyms[normalizeTerm(term)]...)
}

// Compose tokenizes raw, lifts key:value filters out of it and appends synonym expansions after the
// original tokens. Explicit filters override lifted ones. When only filters carry terms, their values
// become the tokens. A query without any alphanumeric term is a validation error.
func (c *Composer) Compose(raw string, filters map[string]string) (domain.ComposedQuery, error) {
	text, values, lifted := liftFilters(raw)

	merged := make(map[string]string, len(lifted)+len(filters))
	maps.Copy(merged, lifted)
	for k, v := range filters {
		k = strings.ToLower(strings.TrimSpace(k))
		if _, ok := filterKeys[k]; !ok {
			return domain.ComposedQuery{}, domain.NewValidationError("filters", "unknown filter "+k)
		}
		if v = normalizeFilter(k, v); v != "" {
			merged[k] = v
		}
	}

	tokens := textutil.Tokenize(text)
	if len(tokens) == 0 {
		tokens = textutil.Tokenize(values)
	}
	if len(tokens) == 0 {
		return domain.ComposedQuery{}, domain.NewValidationError("query", "must contain at least one alphanumeric term")
	}

	c.mu.RLock()
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	var expansions []string
	for _, t := range tokens {
		for _, syn := range c.synonyms[t] {
			if _, dup := seen[syn]; dup {
				continue
			}
			seen[syn] = struct{}{}
			expansions = append(expansions, syn)
		}
	}
	c.mu.RUnlock()

	if len(merged) == 0 {
		merged = nil
	}
	return domain.ComposedQuery{
		Raw:        raw,
		Tokens:     append(tokens, expansions...),
		Expansions: expansions,
		Filters:    merged,
	}, nil
}

// liftFilters removes path:, ext: and tag: terms from raw. It returns the remaining text, the lifted
// values in query order and the filters.
func liftFilters(raw string) (string, string, map[string]string) {
	fields := strings.Fields(raw)
	var kept, values []string
	var lifted map[string]string

	for _, f := range fields {
		key, value, ok := strings.Cut(f, ":")
		key = strings.ToLower(key)
		if _, known := filterKeys[key]; ok && known && value != "" {
			if v := normalizeFilter(key, value); v != "" {
				if lifted == nil {
					lifted = make(map[string]string)
				}
				lifted[key] = v
				values = append(values, value)
				continue
			}
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " "), strings.Join(values, " "), lifted
}

func normalizeFilter(key, value string) string {
	value = strings.TrimSpace(value)
	switch key {
	case domain.FilterExt:
		return strings.ToLower(strings.TrimPrefix(value, "."))
	case domain.FilterTag:
		return strings.ToLower(strings.TrimPrefix(value, "#"))
	default:
		return strings.Trim(value, "/")
	}
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
