package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/cache"
	"github.com/sells-group/research-dashboard/internal/catalog"
	"github.com/sells-group/research-dashboard/internal/config"
	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/evidence"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/financial"
	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/internal/monitoring"
	"github.com/sells-group/research-dashboard/internal/narrative"
	"github.com/sells-group/research-dashboard/internal/research"
	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/internal/runs"
	"github.com/sells-group/research-dashboard/internal/store"
	"github.com/sells-group/research-dashboard/internal/symbol"
	"github.com/sells-group/research-dashboard/pkg/alphavantage"
	"github.com/sells-group/research-dashboard/pkg/gemini"
	"github.com/sells-group/research-dashboard/pkg/google"
	"github.com/sells-group/research-dashboard/pkg/notion"
)

// appEnv holds every initialized service needed by the serve, research,
// symbol, financials, settings and runs commands.
type appEnv struct {
	Store      store.Store
	Fetch      *fetch.Client
	Resolver   *credential.Resolver
	Settings   *credential.Settings
	Symbols    *symbol.Resolver
	Financials *financial.Fetcher
	Research   *research.Orchestrator
	Recorder   *runs.Recorder
	Publisher  *runs.Publisher // nil when Notion is not configured
	Stats      *monitoring.Collector

	closers []func() error
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("env: close", zap.Error(err))
		}
	}
}

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates cfg for mode and builds the environment. Callers should
// defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, closers: []func() error{st.Close}}

	env.Resolver = credential.NewResolver(st, credential.Defaults{
		Keys: map[credential.Provider]string{
			credential.Search:     cfg.Search.Key,
			credential.Generation: generationDefault(cfg),
			credential.Financial:  cfg.AlphaVantage.Key,
		},
		SearchScope: cfg.Search.CX,
	})

	httpClient := &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second}
	env.Fetch = fetch.New(env.Resolver, fetchLimits(cfg),
		fetch.WithHTTPClient(httpClient),
		fetch.WithBreakers(resiliencePolicy(cfg).Breakers(fetch.CircuitLogger())),
	)

	env.Settings = credential.NewSettings(st, env.Fetch)
	if cfg.Narrative.Backend == "anthropic" {
		env.Settings.RegisterValidator(credential.Generation, narrative.AnthropicKeyValidator(anthropicConfig(cfg)))
	} else {
		env.Settings.RegisterValidator(credential.Generation, narrative.GeminiKeyValidator(httpClient, geminiOptions(cfg)...))
	}

	symbolCache, financialCache, closeCache, err := initCaches(ctx, cfg.Cache)
	if err != nil {
		env.Close()
		return nil, err
	}
	if closeCache != nil {
		env.closers = append(env.closers, closeCache)
	}

	cat := catalog.Default()
	av := alphavantage.NewClient(env.Fetch, alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL))
	env.Symbols = symbol.NewResolver(av, cat, symbolCache, symbol.WithDomesticRegion(cfg.Symbol.DomesticRegion))
	env.Financials = financial.NewFetcher(av, env.Fetch, env.Symbols, financialCache, cat)

	gatherer := evidence.NewGatherer(
		google.NewClient(env.Fetch, google.WithBaseURL(cfg.Search.BaseURL)),
		env.Resolver,
		cat,
		evidence.WithTrustedDomains(cfg.Search.TrustedDomains),
		evidence.WithMaxResults(cfg.Search.MaxResults),
	)
	env.Research = research.New(gatherer, newGenerator(cfg, env.Fetch),
		research.WithAIInitiatives(cfg.Research.AIInitiatives),
		research.WithAgentTimeout(time.Duration(cfg.Research.AgentTimeoutSecs)*time.Second),
		research.WithStateHook(func(company string, s research.State) {
			zap.L().Debug("research: state", zap.String("company", company), zap.String("state", s.String()))
		}),
	)
	env.Recorder = runs.NewRecorder(st, env.Research)
	env.Stats = monitoring.NewCollector(st)

	if cfg.Notion.Token != "" && cfg.Notion.ReportDB != "" {
		env.Publisher = runs.NewPublisher(st, notion.NewClient(cfg.Notion.Token), cfg.Notion.ReportDB)
	} else {
		zap.L().Debug("notion not configured, run publishing disabled")
	}

	return env, nil
}

// generationDefault is the environment key of the configured backend.
func generationDefault(c *config.Config) string {
	if c.Narrative.Backend == "anthropic" {
		return c.Anthropic.Key
	}
	return c.Gemini.Key
}

func fetchLimits(c *config.Config) map[credential.Provider]fetch.Limits {
	limits := make(map[credential.Provider]fetch.Limits, len(credential.Providers))
	for _, p := range credential.Providers {
		limits[p] = fetch.Limits{
			DailyLimit:  c.Fetch.DailyLimits[string(p)],
			MinInterval: time.Duration(c.Fetch.MinIntervalsMs[string(p)]) * time.Millisecond,
		}
	}
	return limits
}

func resiliencePolicy(c *config.Config) resilience.Policy {
	return resilience.Policy{
		MaxAttempts:      c.Retry.MaxAttempts,
		InitialBackoffMs: c.Retry.InitialBackoffMs,
		MaxBackoffMs:     c.Retry.MaxBackoffMs,
		Multiplier:       c.Retry.Multiplier,
		JitterFraction:   c.Retry.JitterFraction,
		FailureThreshold: c.Circuit.FailureThreshold,
		ResetTimeoutSecs: c.Circuit.ResetTimeoutSecs,
	}
}

func geminiOptions(c *config.Config) []gemini.Option {
	return []gemini.Option{gemini.WithBaseURL(c.Gemini.BaseURL), gemini.WithModel(c.Gemini.Model)}
}

func anthropicConfig(c *config.Config) narrative.AnthropicConfig {
	return narrative.AnthropicConfig{
		BaseURL:     c.Anthropic.BaseURL,
		Model:       c.Anthropic.Model,
		MaxTokens:   c.Anthropic.MaxTokens,
		Temperature: c.Gemini.Temperature,
	}
}

// newGenerator builds the configured narrative backend on top of fc.
func newGenerator(c *config.Config, fc *fetch.Client) narrative.Generator {
	if c.Narrative.Backend == "anthropic" {
		return narrative.NewAnthropic(fc, anthropicConfig(c), resiliencePolicy(c).Retry())
	}
	gen := gemini.GenerationConfig{
		Temperature:     c.Gemini.Temperature,
		TopK:            c.Gemini.TopK,
		TopP:            c.Gemini.TopP,
		MaxOutputTokens: c.Gemini.MaxOutputTokens,
	}
	return narrative.NewGemini(gemini.NewClient(fc, geminiOptions(c)...), gen, resiliencePolicy(c).Retry())
}

// initCaches returns the symbol and financial caches for the configured
// backend, plus a closer for the redis connection when one is opened.
func initCaches(ctx context.Context, c config.CacheConfig) (cache.Cache[string], cache.Cache[*model.FinancialSnapshot], func() error, error) {
	symbolTTL := time.Duration(c.SymbolTTLSecs) * time.Second
	financialTTL := time.Duration(c.FinancialTTLSecs) * time.Second

	if c.Backend != "redis" {
		return cache.NewMemory[string](symbolTTL), cache.NewMemory[*model.FinancialSnapshot](financialTTL), nil, nil
	}

	rdb, err := cache.DialRedis(ctx, cache.RedisOptions{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
	if err != nil {
		return nil, nil, nil, err
	}
	zap.L().Info("cache: using redis", zap.String("addr", c.RedisAddr))
	return cache.NewRedis[string](rdb, "research:symbol:", symbolTTL),
		cache.NewRedis[*model.FinancialSnapshot](rdb, "research:financial:", financialTTL),
		rdb.Close,
		nil
}
