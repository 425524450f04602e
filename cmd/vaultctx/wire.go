package main

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/config"
	"github.com/kailas-cloud/vaultctx/internal/perf"
	"github.com/kailas-cloud/vaultctx/internal/stream"
	"github.com/kailas-cloud/vaultctx/internal/transport/vaulthttp"
	"github.com/kailas-cloud/vaultctx/internal/usecase/assemble"
	"github.com/kailas-cloud/vaultctx/internal/usecase/boost"
	"github.com/kailas-cloud/vaultctx/internal/usecase/compose"
	"github.com/kailas-cloud/vaultctx/internal/usecase/dedup"
	"github.com/kailas-cloud/vaultctx/internal/usecase/rank"
	"github.com/kailas-cloud/vaultctx/internal/usecase/retrieve"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// vaultConfig maps the yaml vault and stream sections onto the client config.
func vaultConfig(cfg config.Config) vaulthttp.Config {
	v := cfg.Vault

	timeouts := make(map[string]time.Duration, len(v.TimeoutsMs))
	for op, n := range v.TimeoutsMs {
		timeouts[op] = ms(n)
	}

	ttl := time.Duration(v.Cache.TTLSec) * time.Second
	if ttl < 0 {
		ttl = 0
	}

	st := stream.DefaultConfig()
	if cfg.Stream.BufferSize > 0 {
		st.BufferSize = cfg.Stream.BufferSize
	}
	if cfg.Stream.ReadTimeoutMs > 0 {
		st.ReadTimeout = ms(cfg.Stream.ReadTimeoutMs)
	}
	if cfg.Stream.MaxRecordSize > 0 {
		st.MaxRecordSize = cfg.Stream.MaxRecordSize
	}

	return vaulthttp.Config{
		BaseURL:        v.BaseURL,
		AuthToken:      v.AuthToken,
		Timeouts:       timeouts,
		DefaultTimeout: ms(v.DefaultTimeoutMs),
		Retry: vaulthttp.RetryConfig{
			MaxAttempts:    v.Retry.MaxAttempts,
			InitialBackoff: ms(v.Retry.InitialBackoffMs),
			MaxBackoff:     ms(v.Retry.MaxBackoffMs),
			Multiplier:     v.Retry.Multiplier,
		},
		Cache:     vaulthttp.CacheConfig{TTL: ttl, MaxEntries: v.Cache.MaxEntries},
		RateLimit: vaulthttp.RateLimitConfig{RPS: v.RateLimit.RPS, Burst: v.RateLimit.Burst},
		Breaker: vaulthttp.BreakerConfig{
			FailureThreshold: v.Breaker.FailureThreshold,
			FailureRatio:     v.Breaker.FailureRatio,
			Window:           time.Duration(v.Breaker.WindowSec) * time.Second,
			Cooldown:         time.Duration(v.Breaker.CooldownSec) * time.Second,
		},
		Stream:             st,
		InsecureSkipVerify: v.InsecureSkipVerify,
	}
}

// buildStages creates the ranking pipeline stages from config.
func buildStages(cfg config.Config) (retrieve.Stages, error) {
	strategy, err := dedup.ParseStrategy(cfg.Dedup.Strategy)
	if err != nil {
		return retrieve.Stages{}, fmt.Errorf("dedup: %w", err)
	}

	patterns := make([]boost.PathPattern, 0, len(cfg.Boost.PathPatterns))
	for _, p := range cfg.Boost.PathPatterns {
		patterns = append(patterns, boost.PathPattern{Pattern: p.Pattern, Multiplier: p.Multiplier, Bonus: p.Bonus})
	}

	return retrieve.Stages{
		Composer: compose.New(compose.Config{Synonyms: cfg.Retrieval.Synonyms}),
		Ranker:   rank.New(rank.Params{K1: cfg.Ranking.K1, B: cfg.Ranking.B}),
		Booster: boost.New(boost.Config{
			Patterns:        patterns,
			NoDefaults:      cfg.Boost.NoDefaults,
			RecencyWeight:   cfg.Boost.RecencyWeight,
			RecencyHalfLife: time.Duration(cfg.Boost.RecencyHalfLifeDays * float64(24*time.Hour)),
		}),
		Deduplicator: dedup.New(dedup.Config{
			Threshold:   cfg.Dedup.Threshold,
			Strategy:    strategy,
			ShingleSize: cfg.Dedup.ShingleSize,
		}),
		Assembler: assemble.New(assemble.Config{
			MaxTokens:          cfg.Context.MaxTokens,
			ChunkSize:          cfg.Context.ChunkSize,
			MaxChunksPerSource: cfg.Context.MaxChunksPerSource,
		}),
	}, nil
}

// thresholds overlays configured limits on the monitor defaults.
func thresholds(cfg config.PerformanceConfig) map[string]perf.Threshold {
	out := make(map[string]perf.Threshold, len(cfg.Thresholds))
	for name, tc := range cfg.Thresholds {
		t := perf.DefaultThreshold()
		if tc.WarningMs > 0 {
			t.WarnLatency = time.Duration(tc.WarningMs * float64(time.Millisecond))
		}
		if tc.CriticalMs > 0 {
			t.CritLatency = time.Duration(tc.CriticalMs * float64(time.Millisecond))
		}
		if tc.WarnSuccessRate > 0 {
			t.WarnSuccessRate = tc.WarnSuccessRate
		}
		if tc.CritSuccessRate > 0 {
			t.CritSuccessRate = tc.CritSuccessRate
		}
		out[name] = t
	}
	return out
}
