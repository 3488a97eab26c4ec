package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Gemini       GeminiConfig       `yaml:"gemini" mapstructure:"gemini"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage" mapstructure:"alphavantage"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Narrative    NarrativeConfig    `yaml:"narrative" mapstructure:"narrative"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	Circuit      CircuitConfig      `yaml:"circuit" mapstructure:"circuit"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Symbol       SymbolConfig       `yaml:"symbol" mapstructure:"symbol"`
	Research     ResearchConfig     `yaml:"research" mapstructure:"research"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Notion       NotionConfig       `yaml:"notion" mapstructure:"notion"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// GeminiConfig holds generateContent settings for the default narrative backend.
type GeminiConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Model           string  `yaml:"model" mapstructure:"model"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	TopK            int     `yaml:"top_k" mapstructure:"top_k"`
	TopP            float64 `yaml:"top_p" mapstructure:"top_p"`
	MaxOutputTokens int     `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
}

// SearchConfig holds Custom Search settings.
type SearchConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	CX             string `yaml:"cx" mapstructure:"cx"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	TrustedDomains bool   `yaml:"trusted_domains" mapstructure:"trusted_domains"`
	MaxResults     int    `yaml:"max_results" mapstructure:"max_results"`
}

// AlphaVantageConfig holds financial data provider settings.
type AlphaVantageConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds settings for the alternate narrative backend.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NarrativeConfig selects the generation backend.
type NarrativeConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// FetchConfig configures per-provider budgets and throttles. Maps are keyed
// by provider id (search, generation, financial).
type FetchConfig struct {
	TimeoutSecs    int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DailyLimits    map[string]int `yaml:"daily_limits" mapstructure:"daily_limits"`
	MinIntervalsMs map[string]int `yaml:"min_intervals_ms" mapstructure:"min_intervals_ms"`
}

// CircuitConfig configures the per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RetryConfig configures retries of transient generation failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CacheConfig configures the symbol and financial caches.
type CacheConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"`
	RedisAddr        string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword    string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB          int    `yaml:"redis_db" mapstructure:"redis_db"`
	SymbolTTLSecs    int    `yaml:"symbol_ttl_secs" mapstructure:"symbol_ttl_secs"`
	FinancialTTLSecs int    `yaml:"financial_ttl_secs" mapstructure:"financial_ttl_secs"`
}

// SymbolConfig configures ticker ranking.
type SymbolConfig struct {
	DomesticRegion string `yaml:"domestic_region" mapstructure:"domestic_region"`
}

// ResearchConfig configures the orchestrator.
type ResearchConfig struct {
	AIInitiatives    bool `yaml:"ai_initiatives" mapstructure:"ai_initiatives"`
	AgentTimeoutSecs int  `yaml:"agent_timeout_secs" mapstructure:"agent_timeout_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NotionConfig holds the Notion token and report database.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReportDB string `yaml:"report_db" mapstructure:"report_db"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credentials default to empty so AutomaticEnv can bind them.
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1")
	v.SetDefault("gemini.model", "gemini-1.5-pro")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.top_k", 40)
	v.SetDefault("gemini.top_p", 0.95)
	v.SetDefault("gemini.max_output_tokens", 4096)
	v.SetDefault("search.key", "")
	v.SetDefault("search.cx", "")
	v.SetDefault("search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.trusted_domains", true)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("alphavantage.key", "")
	v.SetDefault("alphavantage.base_url", "https://www.alphavantage.co/query")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("narrative.backend", "gemini")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.daily_limits", map[string]int{"financial": 25, "search": 100, "generation": 0})
	v.SetDefault("fetch.min_intervals_ms", map[string]int{"financial": 12000, "search": 0, "generation": 1000})
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.symbol_ttl_secs", 600)
	v.SetDefault("cache.financial_ttl_secs", 300)
	v.SetDefault("symbol.domestic_region", "United States")
	v.SetDefault("research.ai_initiatives", true)
	v.SetDefault("research.agent_timeout_secs", 120)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "research.db")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.report_db", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys required by a command mode. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		problems = append(problems, c.storeProblems()...)
	case "research":
		problems = append(problems, c.storeProblems()...)
		switch c.Narrative.Backend {
		case "gemini", "anthropic":
		default:
			problems = append(problems, "narrative.backend must be gemini or anthropic")
		}
	case "publish":
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.ReportDB == "" {
			problems = append(problems, "notion.report_db is required")
		}
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		problems = append(problems, "cache.redis_addr is required")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
