package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Vault.BaseURL != "https://127.0.0.1:27124" {
		t.Errorf("unexpected BaseURL %q", cfg.Vault.BaseURL)
	}
	if cfg.Vault.Retry.MaxAttempts != 3 || cfg.Vault.Retry.InitialBackoffMs != 200 ||
		cfg.Vault.Retry.MaxBackoffMs != 2000 || cfg.Vault.Retry.Multiplier != 2 {
		t.Errorf("unexpected retry defaults %+v", cfg.Vault.Retry)
	}
	if cfg.Vault.Cache.TTLSec != 300 || cfg.Vault.Cache.MaxEntries != 1000 {
		t.Errorf("unexpected cache defaults %+v", cfg.Vault.Cache)
	}
	if cfg.Vault.RateLimit.RPS != 10 {
		t.Errorf("expected RPS=10, got %g", cfg.Vault.RateLimit.RPS)
	}
	b := cfg.Vault.Breaker
	if b.FailureThreshold != 5 || b.FailureRatio != 0.5 || b.WindowSec != 60 || b.CooldownSec != 30 {
		t.Errorf("unexpected breaker defaults %+v", b)
	}
	if cfg.Ranking.K1 != 1.5 || cfg.Ranking.B != 0.75 {
		t.Errorf("unexpected ranking defaults %+v", cfg.Ranking)
	}
	if cfg.Dedup.Threshold != 0.85 || cfg.Dedup.Strategy != "highest-score" || cfg.Dedup.ShingleSize != 3 {
		t.Errorf("unexpected dedup defaults %+v", cfg.Dedup)
	}
	if cfg.Context.MaxTokens != 4000 || cfg.Context.ChunkSize != 300 {
		t.Errorf("unexpected context defaults %+v", cfg.Context)
	}
	if cfg.Retrieval.DefaultLimit != 10 || cfg.Retrieval.MaxLimit != 50 {
		t.Errorf("unexpected retrieval defaults %+v", cfg.Retrieval)
	}
	if cfg.LLM.Enabled() {
		t.Error("LLM should be disabled without a model")
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Ranking: RankingConfig{K1: 0, B: 0.5},
		Vault:   VaultConfig{Cache: CacheConfig{TTLSec: -1}, RateLimit: RateConfig{RPS: -1}},
	}
	cfg.ApplyDefaults()

	if cfg.Ranking.K1 != 0 || cfg.Ranking.B != 0.5 {
		t.Errorf("explicit ranking overwritten: %+v", cfg.Ranking)
	}
	if cfg.Vault.Cache.TTLSec != -1 {
		t.Errorf("disabled cache overwritten: %d", cfg.Vault.Cache.TTLSec)
	}
	if cfg.Vault.RateLimit.RPS != -1 {
		t.Errorf("disabled limiter overwritten: %g", cfg.Vault.RateLimit.RPS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"base url", func(c *Config) { c.Vault.BaseURL = "127.0.0.1:27124" }, "vault.base_url"},
		{"timeout", func(c *Config) { c.Vault.TimeoutsMs = map[string]int{"search": 0} }, "vault.timeouts_ms.search"},
		{"multiplier", func(c *Config) { c.Vault.Retry.Multiplier = 0.5 }, "vault.retry.multiplier"},
		{"ratio", func(c *Config) { c.Vault.Breaker.FailureRatio = 1.5 }, "failure_ratio"},
		{"limits", func(c *Config) { c.Retrieval.DefaultLimit = 100 }, "retrieval.default_limit"},
		{"b", func(c *Config) { c.Ranking.B = 2 }, "ranking.b"},
		{"k1", func(c *Config) { c.Ranking.K1 = -1 }, "ranking.k1"},
		{"recency", func(c *Config) { c.Boost.RecencyWeight = -0.1 }, "boost.recency_weight"},
		{"pattern", func(c *Config) {
			c.Boost.PathPatterns = []PathPatternConfig{{Pattern: " ", Multiplier: 1}}
		}, "boost.path_patterns[0].pattern"},
		{"pattern multiplier", func(c *Config) {
			c.Boost.PathPatterns = []PathPatternConfig{{Pattern: "index"}}
		}, "boost.path_patterns[0].multiplier"},
		{"pattern bonus", func(c *Config) {
			c.Boost.PathPatterns = []PathPatternConfig{{Pattern: "drafts", Multiplier: 1, Bonus: -1}}
		}, "boost.path_patterns[0].bonus"},
		{"threshold", func(c *Config) { c.Dedup.Threshold = 1.2 }, "dedup.threshold"},
		{"strategy", func(c *Config) { c.Dedup.Strategy = "oldest" }, "dedup.strategy"},
		{"budget action", func(c *Config) { c.LLM.Budget.Action = "block" }, "llm.budget.action"},
		{"budget limit", func(c *Config) { c.LLM.Budget.DailyTokenLimit = -1 }, "llm.budget"},
		{"perf order", func(c *Config) {
			c.Performance.Thresholds = map[string]ThresholdConfig{"rank": {WarningMs: 10, CriticalMs: 5}}
		}, "performance.thresholds.rank"},
		{"perf rate", func(c *Config) {
			c.Performance.Thresholds = map[string]ThresholdConfig{"rank": {CritSuccessRate: 2}}
		}, "success rates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("VAULTCTX_TEST_TOKEN", "secret")
	data := []byte(`
vault:
  base_url: ${VAULTCTX_TEST_URL:-http://localhost:27123}
  auth_token: ${VAULTCTX_TEST_TOKEN}
retrieval:
  synonyms:
    k8s: [kubernetes]
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vault.BaseURL != "http://localhost:27123" {
		t.Errorf("default not applied: %q", cfg.Vault.BaseURL)
	}
	if cfg.Vault.AuthToken != "secret" {
		t.Errorf("env not expanded: %q", cfg.Vault.AuthToken)
	}
	if got := cfg.Retrieval.Synonyms["k8s"]; len(got) != 1 || got[0] != "kubernetes" {
		t.Errorf("unexpected synonyms %v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Parse([]byte("dedup:\n  strategy: random\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_Local(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("local config should load: %v", err)
	}
	if cfg.Context.MaxTokens != 4000 {
		t.Errorf("expected 4000 max tokens, got %d", cfg.Context.MaxTokens)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected local, got %q", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected prod, got %q", got)
	}
}
