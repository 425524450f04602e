// Package retrieve runs the retrieval pipeline: compose, aggregate, rank, boost, dedup, assemble.
package retrieve

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/logger"
	"github.com/kailas-cloud/vaultctx/internal/perf"
	"github.com/kailas-cloud/vaultctx/internal/transport/vaulthttp"
	"github.com/kailas-cloud/vaultctx/internal/usecase/assemble"
	"github.com/kailas-cloud/vaultctx/internal/usecase/boost"
	"github.com/kailas-cloud/vaultctx/internal/usecase/compose"
	"github.com/kailas-cloud/vaultctx/internal/usecase/dedup"
	"github.com/kailas-cloud/vaultctx/internal/usecase/rank"
)

// Monitor operation names, one per stage plus the whole request.
const (
	OpRetrieve = "retrieve"
	OpCompose  = "compose"
	OpRank     = "rank"
	OpBoost    = "boost"
	OpDedup    = "dedup"
	OpAssemble = "assemble"
)

// Config holds request-level limits.
type Config struct {
	DefaultLimit int  `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int  `yaml:"max_limit" json:"max_limit"`
	Strict       bool `yaml:"strict" json:"strict"`
}

// DefaultConfig returns limit 10, capped at 50, non-strict.
func DefaultConfig() Config {
	return Config{DefaultLimit: 10, MaxLimit: 50}
}

// Stages bundles the pipeline components. Nil stages are built from their defaults.
type Stages struct {
	Composer     *compose.Composer
	Ranker       *rank.Ranker
	Booster      *boost.Booster
	Deduplicator *dedup.Deduplicator
	Assembler    *assemble.Assembler
}

func (s Stages) withDefaults() Stages {
	if s.Composer == nil {
		s.Composer = compose.New(compose.Config{})
	}
	if s.Ranker == nil {
		s.Ranker = rank.New(rank.DefaultParams())
	}
	if s.Booster == nil {
		s.Booster = boost.New(boost.DefaultConfig())
	}
	if s.Deduplicator == nil {
		s.Deduplicator = dedup.New(dedup.DefaultConfig())
	}
	if s.Assembler == nil {
		s.Assembler = assemble.New(assemble.DefaultConfig())
	}
	return s
}

// Options override per-request behaviour. Zero values use the service config.
type Options struct {
	Limit     int
	Strict    bool
	Filters   map[string]string
	MaxTokens int
}

// Result is the full outcome of one retrieval.
type Result struct {
	Query      domain.ComposedQuery
	Candidates []domain.Candidate
	Context    domain.Context
	Degraded   bool
	Skipped    int
	Duration   time.Duration
}

// Stats is the observability snapshot served by GetStats.
type Stats struct {
	Report  perf.Report               `json:"report"`
	Cache   vaulthttp.CacheStats      `json:"cache"`
	Breaker vaulthttp.BreakerSnapshot `json:"circuit_breaker"`
	Ranking rank.Params               `json:"ranking"`
	Dedup   dedup.Config              `json:"dedup"`
	Context assemble.Config           `json:"context"`
}

// Service is safe for concurrent use; every request owns its candidate slices.
type Service struct {
	agg       Aggregator
	monitor   Monitor
	inspector VaultInspector
	stages    Stages
	cfg       Config
	logger    *zap.Logger
}

// New creates a retrieval service. inspector may be nil.
func New(agg Aggregator, monitor Monitor, inspector VaultInspector, stages Stages, cfg Config, logger *zap.Logger) *Service {
	def := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		agg:       agg,
		monitor:   monitor,
		inspector: inspector,
		stages:    stages.withDefaults(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Retrieve builds a context block for query from at most limit notes.
func (s *Service) Retrieve(ctx context.Context, query string, limit int) (domain.Context, error) {
	if limit <= 0 {
		return domain.Context{}, domain.NewValidationError("limit", "must be positive")
	}
	res, err := s.RetrieveWithOptions(ctx, query, Options{Limit: limit})
	if err != nil {
		return domain.Context{}, err
	}
	return res.Context, nil
}

// RetrieveWithOptions runs the pipeline and returns every intermediate result.
// A degraded vault yields an empty or partial context, not an error, unless strict mode is on.
func (s *Service) RetrieveWithOptions(ctx context.Context, query string, opts Options) (res Result, err error) {
	start := time.Now()
	stop := s.monitor.StartTimer(OpRetrieve)
	defer func() { stop(err) }()

	limit := opts.Limit
	switch {
	case limit < 0:
		return Result{}, domain.NewValidationError("limit", "must be positive")
	case limit == 0:
		limit = s.cfg.DefaultLimit
	case limit > s.cfg.MaxLimit:
		limit = s.cfg.MaxLimit
	}

	stopCompose := s.monitor.StartTimer(OpCompose)
	q, err := s.stages.Composer.Compose(query, opts.Filters)
	stopCompose(err)
	if err != nil {
		return Result{}, err
	}

	agg, err := s.agg.Aggregate(ctx, q, limit, opts.Strict || s.cfg.Strict)
	if err != nil {
		return Result{}, err
	}

	candidates, assembled := s.process(q, agg.Candidates, opts.MaxTokens)

	res = Result{
		Query:      q,
		Candidates: candidates,
		Context:    assembled,
		Degraded:   agg.Degraded,
		Skipped:    agg.Skipped,
		Duration:   time.Since(start),
	}

	logger.FromContextOr(ctx, s.logger).Info("retrieval complete",
		zap.String("query", query),
		zap.Int("tokens", len(q.Tokens)),
		zap.Int("searches", agg.Searches),
		zap.Int("candidates", len(candidates)),
		zap.Int("sources", len(assembled.Sources)),
		zap.Int("context_tokens", assembled.TokenCount),
		zap.Bool("degraded", agg.Degraded),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Process runs the in-memory stages (rank, boost, dedup, assemble) over fixed candidates.
// The same query and candidates always give the same ordering and text.
func (s *Service) Process(q domain.ComposedQuery, candidates []domain.Candidate) ([]domain.Candidate, domain.Context) {
	return s.process(q, candidates, 0)
}

func (s *Service) process(q domain.ComposedQuery, candidates []domain.Candidate, maxTokens int) ([]domain.Candidate, domain.Context) {
	stop := s.monitor.StartTimer(OpRank)
	ranked := s.stages.Ranker.RankCandidates(q.Tokens, candidates)
	stop(nil)

	stop = s.monitor.StartTimer(OpBoost)
	boosted := s.stages.Booster.BoostCandidates(ranked)
	stop(nil)

	stop = s.monitor.StartTimer(OpDedup)
	unique := s.stages.Deduplicator.DeduplicateCandidates(boosted)
	stop(nil)

	asm := s.stages.Assembler
	if maxTokens > 0 && maxTokens != asm.Config().MaxTokens {
		cfg := asm.Config()
		cfg.MaxTokens = maxTokens
		asm = assemble.New(cfg)
	}
	stop = s.monitor.StartTimer(OpAssemble)
	assembled := asm.AssembleContext(q.Tokens, unique)
	stop(nil)

	return unique, assembled
}

// Stages returns the pipeline components for runtime tuning (synonyms, BM25 parameters, patterns).
func (s *Service) Stages() Stages { return s.stages }

// GenerateReport grades every recorded operation.
func (s *Service) GenerateReport() perf.Report {
	return s.monitor.GenerateReport()
}

// GetCircuitBreakerState returns the vault breaker snapshot, or a closed state without an inspector.
func (s *Service) GetCircuitBreakerState() vaulthttp.BreakerSnapshot {
	if s.inspector == nil {
		return vaulthttp.BreakerSnapshot{State: vaulthttp.StateClosed, StateName: vaulthttp.StateClosed.String()}
	}
	return s.inspector.GetCircuitBreakerState()
}

// GetStats returns the performance report, vault cache and breaker state, and stage settings.
func (s *Service) GetStats() Stats {
	st := Stats{
		Report:  s.GenerateReport(),
		Breaker: s.GetCircuitBreakerState(),
		Ranking: s.stages.Ranker.Parameters(),
		Dedup:   s.stages.Deduplicator.Config(),
		Context: s.stages.Assembler.Config(),
	}
	if s.inspector != nil {
		st.Cache = s.inspector.GetCacheStats()
	}
	return st
}
