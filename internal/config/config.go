package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the vaultctx configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Vault       VaultConfig       `yaml:"vault"`
	Stream      StreamConfig      `yaml:"stream"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Boost       BoostConfig       `yaml:"boost"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Context     ContextConfig     `yaml:"context"`
	Performance PerformanceConfig `yaml:"performance"`
	LLM         LLMConfig         `yaml:"llm"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// VaultConfig holds the vault REST client settings.
type VaultConfig struct {
	BaseURL            string         `yaml:"base_url"`
	AuthToken          string         `yaml:"auth_token"`
	DefaultTimeoutMs   int            `yaml:"default_timeout_ms"`
	TimeoutsMs         map[string]int `yaml:"timeouts_ms"` // per operation: get, post, put, delete, search, status
	Retry              RetryConfig    `yaml:"retry"`
	Cache              CacheConfig    `yaml:"cache"`
	RateLimit          RateConfig     `yaml:"rate_limit"`
	Breaker            BreakerConfig  `yaml:"breaker"`
	InsecureSkipVerify bool           `yaml:"insecure_skip_verify"`
}

// RetryConfig holds the exponential backoff policy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier"`
}

// CacheConfig holds response cache settings. A negative TTLSec disables caching.
type CacheConfig struct {
	TTLSec     int         `yaml:"ttl_sec"`
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig enables the shared cache tier when Addrs is non-empty.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RateConfig caps outbound vault requests. A negative RPS disables the limiter.
type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	FailureRatio     float64 `yaml:"failure_ratio"`
	WindowSec        int     `yaml:"window_sec"`
	CooldownSec      int     `yaml:"cooldown_sec"`
}

// StreamConfig holds streaming response settings.
type StreamConfig struct {
	BufferSize    int `yaml:"buffer_size"`
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	MaxRecordSize int `yaml:"max_record_size"`
}

// RetrievalConfig holds pipeline limits and extra synonyms.
type RetrievalConfig struct {
	DefaultLimit int                 `yaml:"default_limit"`
	MaxLimit     int                 `yaml:"max_limit"`
	Strict       bool                `yaml:"strict"`
	Overfetch    int                 `yaml:"overfetch"`
	MaxQueries   int                 `yaml:"max_queries"`
	Synonyms     map[string][]string `yaml:"synonyms"`
}

// RankingConfig holds BM25 parameters.
type RankingConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// PathPatternConfig is one path boost rule.
type PathPatternConfig struct {
	Pattern    string  `yaml:"pattern"`
	Multiplier float64 `yaml:"multiplier"`
	Bonus      float64 `yaml:"bonus"`
}

// BoostConfig holds metadata boosting settings.
type BoostConfig struct {
	PathPatterns        []PathPatternConfig `yaml:"path_patterns"`
	NoDefaults          bool                `yaml:"no_defaults"`
	RecencyWeight       float64             `yaml:"recency_weight"`
	RecencyHalfLifeDays float64             `yaml:"recency_half_life_days"`
}

// DedupConfig holds near-duplicate removal settings.
type DedupConfig struct {
	Threshold   float64 `yaml:"threshold"`
	Strategy    string  `yaml:"strategy"` // highest-score, freshest
	ShingleSize int     `yaml:"shingle_size"`
}

// ContextConfig holds context assembly settings.
type ContextConfig struct {
	MaxTokens          int `yaml:"max_tokens"`
	ChunkSize          int `yaml:"chunk_size"`
	MaxChunksPerSource int `yaml:"max_chunks_per_source"`
}

// ThresholdConfig classifies an operation's health.
type ThresholdConfig struct {
	WarningMs       float64 `yaml:"warning_ms"`
	CriticalMs      float64 `yaml:"critical_ms"`
	WarnSuccessRate float64 `yaml:"warn_success_rate"`
	CritSuccessRate float64 `yaml:"crit_success_rate"`
}

// PerformanceConfig holds per-operation thresholds keyed by operation name.
type PerformanceConfig struct {
	Thresholds map[string]ThresholdConfig `yaml:"thresholds"`
}

// LLMConfig enables ask_vault when Model is set.
type LLMConfig struct {
	BaseURL     string       `yaml:"base_url"`
	APIKey      string       `yaml:"api_key"`
	Model       string       `yaml:"model"`
	Temperature float32      `yaml:"temperature"`
	MaxTokens   int          `yaml:"max_tokens"`
	Budget      BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds chat model token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Enabled reports whether any limit is set.
func (c BudgetConfig) Enabled() bool { return c.DailyTokenLimit > 0 || c.MonthlyTokenLimit > 0 }

// Enabled reports whether a chat model is configured.
func (c LLMConfig) Enabled() bool { return c.Model != "" }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, substitutes ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	v := &c.Vault
	if v.BaseURL == "" {
		v.BaseURL = "https://127.0.0.1:27124"
	}
	if v.DefaultTimeoutMs <= 0 {
		v.DefaultTimeoutMs = 10000
	}
	if v.Retry.MaxAttempts <= 0 {
		v.Retry.MaxAttempts = 3
	}
	if v.Retry.InitialBackoffMs <= 0 {
		v.Retry.InitialBackoffMs = 200
	}
	if v.Retry.MaxBackoffMs <= 0 {
		v.Retry.MaxBackoffMs = 2000
	}
	if v.Retry.Multiplier <= 0 {
		v.Retry.Multiplier = 2
	}
	if v.Cache.TTLSec == 0 {
		v.Cache.TTLSec = 300
	}
	if v.Cache.MaxEntries <= 0 {
		v.Cache.MaxEntries = 1000
	}
	if v.Cache.Redis.ReadinessTimeout <= 0 {
		v.Cache.Redis.ReadinessTimeout = 10
	}
	if v.RateLimit.RPS == 0 {
		v.RateLimit.RPS = 10
	}
	if v.RateLimit.Burst <= 0 {
		v.RateLimit.Burst = 10
	}
	if v.Breaker.FailureThreshold <= 0 {
		v.Breaker.FailureThreshold = 5
	}
	if v.Breaker.FailureRatio <= 0 {
		v.Breaker.FailureRatio = 0.5
	}
	if v.Breaker.WindowSec <= 0 {
		v.Breaker.WindowSec = 60
	}
	if v.Breaker.CooldownSec <= 0 {
		v.Breaker.CooldownSec = 30
	}

	if c.Stream.BufferSize <= 0 {
		c.Stream.BufferSize = 4 << 10
	}
	if c.Stream.ReadTimeoutMs <= 0 {
		c.Stream.ReadTimeoutMs = 30000
	}
	if c.Stream.MaxRecordSize <= 0 {
		c.Stream.MaxRecordSize = 8 << 20
	}

	if c.Retrieval.DefaultLimit <= 0 {
		c.Retrieval.DefaultLimit = 10
	}
	if c.Retrieval.MaxLimit <= 0 {
		c.Retrieval.MaxLimit = 50
	}
	if c.Retrieval.Overfetch <= 0 {
		c.Retrieval.Overfetch = 3
	}
	if c.Retrieval.MaxQueries <= 0 {
		c.Retrieval.MaxQueries = 8
	}

	if c.Ranking.K1 == 0 && c.Ranking.B == 0 {
		c.Ranking.K1, c.Ranking.B = 1.5, 0.75
	}

	if c.Boost.RecencyHalfLifeDays <= 0 {
		c.Boost.RecencyHalfLifeDays = 30
	}

	if c.Dedup.Threshold == 0 {
		c.Dedup.Threshold = 0.85
	}
	if c.Dedup.Strategy == "" {
		c.Dedup.Strategy = "highest-score"
	}
	if c.Dedup.ShingleSize <= 0 {
		c.Dedup.ShingleSize = 3
	}

	if c.Context.MaxTokens <= 0 {
		c.Context.MaxTokens = 4000
	}
	if c.Context.ChunkSize <= 0 {
		c.Context.ChunkSize = 300
	}
	if c.Context.MaxChunksPerSource <= 0 {
		c.Context.MaxChunksPerSource = 2
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434/v1"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.Vault.BaseURL, "http://") && !strings.HasPrefix(c.Vault.BaseURL, "https://") {
		return fmt.Errorf("vault.base_url must be an http(s) url, got %q", c.Vault.BaseURL)
	}
	for op, ms := range c.Vault.TimeoutsMs {
		if ms <= 0 {
			return fmt.Errorf("vault.timeouts_ms.%s must be positive, got %d", op, ms)
		}
	}
	if c.Vault.Retry.Multiplier < 1 {
		return fmt.Errorf("vault.retry.multiplier must be >= 1, got %g", c.Vault.Retry.Multiplier)
	}
	if c.Vault.Breaker.FailureRatio > 1 {
		return fmt.Errorf("vault.breaker.failure_ratio must be within (0, 1], got %g", c.Vault.Breaker.FailureRatio)
	}
	if c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("retrieval.default_limit %d exceeds retrieval.max_limit %d",
			c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit)
	}
	if c.Ranking.K1 < 0 {
		return fmt.Errorf("ranking.k1 must be >= 0, got %g", c.Ranking.K1)
	}
	if c.Ranking.B < 0 || c.Ranking.B > 1 {
		return fmt.Errorf("ranking.b must be within [0, 1], got %g", c.Ranking.B)
	}
	if c.Boost.RecencyWeight < 0 {
		return fmt.Errorf("boost.recency_weight must be >= 0, got %g", c.Boost.RecencyWeight)
	}
	for i, p := range c.Boost.PathPatterns {
		if strings.TrimSpace(p.Pattern) == "" {
			return fmt.Errorf("boost.path_patterns[%d].pattern is required", i)
		}
		if p.Multiplier <= 0 {
			return fmt.Errorf("boost.path_patterns[%d].multiplier must be positive, got %g", i, p.Multiplier)
		}
		if p.Bonus < 0 {
			return fmt.Errorf("boost.path_patterns[%d].bonus must be >= 0, got %g", i, p.Bonus)
		}
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be within (0, 1], got %g", c.Dedup.Threshold)
	}
	switch c.Dedup.Strategy {
	case "highest-score", "freshest":
		// ok
	default:
		return fmt.Errorf("dedup.strategy must be \"highest-score\" or \"freshest\", got %q", c.Dedup.Strategy)
	}
	switch c.LLM.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("llm.budget.action must be \"warn\" or \"reject\", got %q", c.LLM.Budget.Action)
	}
	if c.LLM.Budget.DailyTokenLimit < 0 || c.LLM.Budget.MonthlyTokenLimit < 0 {
		return fmt.Errorf("llm.budget limits must not be negative")
	}
	for op, t := range c.Performance.Thresholds {
		if t.WarningMs > 0 && t.CriticalMs > 0 && t.WarningMs > t.CriticalMs {
			return fmt.Errorf("performance.thresholds.%s.warning_ms exceeds critical_ms", op)
		}
		if t.WarnSuccessRate < 0 || t.WarnSuccessRate > 1 || t.CritSuccessRate < 0 || t.CritSuccessRate > 1 {
			return fmt.Errorf("performance.thresholds.%s success rates must be within [0, 1]", op)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
