// Package aggregate gathers candidate notes for a composed query.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/domain/note"
	"github.com/kailas-cloud/vaultctx/internal/logger"
	"github.com/kailas-cloud/vaultctx/internal/metrics"
)

// Monitor operation names.
const (
	OpAggregate = "aggregate"
	OpDegraded  = "aggregate.degraded"
)

// Config tunes candidate gathering.
type Config struct {
	// Overfetch multiplies the per-search limit so filters still leave enough hits.
	Overfetch int
	// MaxQueries caps the vault searches issued per request (phrase, single terms, expansions).
	MaxQueries int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{Overfetch: 3, MaxQueries: 8}
}

// Result is the aggregation outcome. Degraded is set when the vault was unavailable and the
// candidate set is empty or partial.
type Result struct {
	Candidates []domain.Candidate
	Degraded   bool
	Searches   int
	Skipped    int
}

// Service merges vault search hits into candidates.
type Service struct {
	vault   Vault
	monitor Monitor
	cfg     Config
	logger  *zap.Logger
}

// New creates an aggregation service.
func New(vault Vault, monitor Monitor, cfg Config, logger *zap.Logger) *Service {
	def := DefaultConfig()
	if cfg.Overfetch <= 0 {
		cfg.Overfetch = def.Overfetch
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = def.MaxQueries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{vault: vault, monitor: monitor, cfg: cfg, logger: logger}
}

// Aggregate searches the vault with the query phrase, its single terms and its expansions, merges hits by
// path in first-seen order, applies filters, truncates to limit and fetches each note. The initial
// score is 1/(1+rank). When the vault is unavailable the result is empty or partial and Degraded is
// set, unless strict is true, in which case the error is returned.
func (s *Service) Aggregate(ctx context.Context, q domain.ComposedQuery, limit int, strict bool) (res Result, err error) {
	stop := s.monitor.StartTimer(OpAggregate)
	defer func() { stop(err) }()

	if limit <= 0 {
		return Result{}, domain.NewValidationError("limit", "must be positive")
	}
	log := logger.FromContextOr(ctx, s.logger)

	fetchCap := limit
	if q.Filters[domain.FilterTag] != "" {
		fetchCap = limit * s.cfg.Overfetch
	}

	var (
		order []string
		seen  = make(map[string]struct{})
	)
	for _, query := range s.searchQueries(q) {
		if len(order) >= fetchCap {
			break
		}
		hits, searchErr := s.vault.Search(ctx, query, limit*s.cfg.Overfetch)
		res.Searches++
		if searchErr != nil {
			if isUnavailable(searchErr) {
				return s.degrade(log, res, strict, fmt.Errorf("search %q: %w", query, searchErr))
			}
			return Result{}, fmt.Errorf("search %q: %w", query, searchErr)
		}
		for _, h := range hits {
			if _, dup := seen[h.Path]; dup || !matchesPath(h.Path, q.Filters) {
				continue
			}
			seen[h.Path] = struct{}{}
			order = append(order, h.Path)
		}
	}
	if len(order) > fetchCap {
		order = order[:fetchCap]
	}

	tag := q.Filters[domain.FilterTag]
	for _, p := range order {
		if len(res.Candidates) >= limit {
			break
		}
		resp, getErr := s.vault.Get(ctx, p)
		if getErr != nil {
			switch {
			case isUnavailable(getErr):
				return s.degrade(log, res, strict, fmt.Errorf("get %q: %w", p, getErr))
			case errors.Is(getErr, domain.ErrTimeout) && ctx.Err() != nil:
				return Result{}, getErr
			default:
				log.Warn("skipping candidate", zap.String("path", p), zap.Error(getErr))
				res.Skipped++
				continue
			}
		}

		file, decErr := note.Decode(p, resp)
		if decErr != nil {
			log.Warn("skipping undecodable note", zap.String("path", p), zap.Error(decErr))
			res.Skipped++
			continue
		}
		if tag != "" && !slices.Contains(file.Tags, tag) {
			continue
		}

		rank := len(res.Candidates)
		res.Candidates = append(res.Candidates, domain.Candidate{
			File:           file,
			RelevanceScore: 1 / float64(1+rank),
		})
	}

	return res, nil
}

func (s *Service) degrade(log *zap.Logger, res Result, strict bool, cause error) (Result, error) {
	s.monitor.Record(OpDegraded, 0, cause)
	if strict {
		return Result{}, cause
	}
	metrics.DegradedRetrievalsTotal.Inc()
	log.Warn("vault unavailable, returning partial candidates",
		zap.Int("candidates", len(res.Candidates)),
		zap.Error(cause),
	)
	res.Degraded = true
	return res, nil
}

// searchQueries returns the phrase, then each term when there are several, then each expansion,
// without duplicates and capped at MaxQueries.
func (s *Service) searchQueries(q domain.ComposedQuery) []string {
	terms := q.Terms()
	var out []string
	add := func(v string) {
		if v != "" && len(out) < s.cfg.MaxQueries && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	add(strings.Join(terms, " "))
	if len(terms) > 1 {
		for _, t := range terms {
			add(t)
		}
	}
	for _, e := range q.Expansions {
		add(e)
	}
	return out
}

func matchesPath(p string, filters map[string]string) bool {
	if prefix := filters[domain.FilterPath]; prefix != "" {
		if !strings.HasPrefix(strings.ToLower(p), strings.ToLower(prefix)) {
			return false
		}
	}
	if ext := filters[domain.FilterExt]; ext != "" {
		if strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) != ext {
			return false
		}
	}
	return true
}

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable)
}
