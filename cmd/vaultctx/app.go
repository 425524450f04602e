package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/config"
	"github.com/kailas-cloud/vaultctx/internal/db"
	dbRedis "github.com/kailas-cloud/vaultctx/internal/db/redis"
	logpkg "github.com/kailas-cloud/vaultctx/internal/logger"
	"github.com/kailas-cloud/vaultctx/internal/metrics"
	"github.com/kailas-cloud/vaultctx/internal/perf"
	budgetrepo "github.com/kailas-cloud/vaultctx/internal/repository/budget"
	"github.com/kailas-cloud/vaultctx/internal/repository/respcache"
	openaiChat "github.com/kailas-cloud/vaultctx/internal/transport/openai"
	"github.com/kailas-cloud/vaultctx/internal/transport/vaulthttp"
	"github.com/kailas-cloud/vaultctx/internal/usecase/aggregate"
	budgetuc "github.com/kailas-cloud/vaultctx/internal/usecase/budget"
	healthuc "github.com/kailas-cloud/vaultctx/internal/usecase/health"
	"github.com/kailas-cloud/vaultctx/internal/usecase/retrieve"
	"github.com/kailas-cloud/vaultctx/internal/usecase/tools"
)

// app is the composition root shared by every subcommand.
type app struct {
	env      string
	cfg      config.Config
	logger   *zap.Logger
	store    db.Store
	vault    *vaulthttp.Client
	monitor  *perf.Monitor
	pipeline *retrieve.Service
	chat     *openaiChat.Chat
	budget   *budgetuc.Tracker
	tools    *tools.Registry
	health   *healthuc.Service
}

func loadConfig(flags *globalFlags) (string, config.Config, error) {
	env := flags.env
	if env == "" {
		env = config.GetEnv()
	}
	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return "", config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	return env, cfg, nil
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	env, cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	// Register metrics explicitly (no init())
	metrics.RegisterVaultMetrics()
	metrics.RegisterPipelineMetrics()

	a := &app{env: env, cfg: cfg, logger: logger}

	var shared vaulthttp.SharedCache
	if redisCfg := cfg.Vault.Cache.Redis; len(redisCfg.Addrs) > 0 && cfg.Vault.Cache.TTLSec > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    redisCfg.Addrs,
			Username: redisCfg.Username,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create cache store: %w", err)
		}
		if err := store.WaitForReady(ctx, time.Duration(redisCfg.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("shared cache: %w", err)
		}
		a.store = store
		shared = respcache.New(store, time.Duration(cfg.Vault.Cache.TTLSec)*time.Second, metrics.SharedCacheTotal, logger)
		logger.Info("Connected to shared cache", zap.Strings("addrs", redisCfg.Addrs))
	}

	opts := []vaulthttp.Option{vaulthttp.WithLogger(logger)}
	if shared != nil {
		opts = append(opts, vaulthttp.WithSharedCache(shared))
	}
	a.vault, err = vaulthttp.New(vaultConfig(cfg), opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	a.monitor = perf.NewMonitor(perf.WithObserver(metrics.OperationObserver{}))
	for name, t := range thresholds(cfg.Performance) {
		a.monitor.SetThreshold(name, t)
	}

	stages, err := buildStages(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	agg := aggregate.New(a.vault, a.monitor, aggregate.Config{
		Overfetch:  cfg.Retrieval.Overfetch,
		MaxQueries: cfg.Retrieval.MaxQueries,
	}, logger)
	a.pipeline = retrieve.New(agg, a.monitor, a.vault, stages, retrieve.Config{
		DefaultLimit: cfg.Retrieval.DefaultLimit,
		MaxLimit:     cfg.Retrieval.MaxLimit,
		Strict:       cfg.Retrieval.Strict,
	}, logger)

	// Pass nil interfaces, not typed nil pointers, for the optional components.
	var (
		llm        tools.LLM
		llmChecker healthuc.LLMChecker
		pinger     healthuc.Pinger
	)
	if cfg.LLM.Enabled() {
		metrics.RegisterLLMMetrics()
		a.chat = openaiChat.NewChat(&openaiChat.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Logger:      logger,
		})
		llm, llmChecker = a.chat, a.chat

		if budgetCfg := cfg.LLM.Budget; budgetCfg.Enabled() {
			action, err := budgetuc.ParseAction(budgetCfg.Action)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.budget = budgetuc.NewTracker(
				cfg.LLM.Model, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
			)
			// Counters survive restarts when the shared store is configured.
			if a.store != nil {
				a.budget.WithStore(ctx, budgetrepo.New(a.store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
			}
			llm = budgetuc.NewGuardedLLM(a.chat, a.budget, logger)
		}
	}
	if a.store != nil {
		pinger = a.store
	}

	a.tools = tools.New(a.pipeline, a.vault, llm, logger)
	a.health = healthuc.New(a.vault, pinger, llmChecker)

	logger.Debug("Pipeline ready",
		zap.String("env", env),
		zap.String("vault", cfg.Vault.BaseURL),
		zap.Bool("shared_cache", shared != nil),
		zap.Bool("llm", a.chat != nil),
		zap.Bool("llm_budget", a.budget != nil),
	)
	return a, nil
}

// Close releases the shared cache connection and flushes the logger.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}
