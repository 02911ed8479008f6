package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/threadscope/internal/config"
	"github.com/threadscope/internal/database"
	"github.com/threadscope/internal/llm"
	"github.com/threadscope/internal/query"
	"github.com/threadscope/internal/store"
)

// loadConfig reads the config file named by the global --config flag.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRouter constructs the hybrid router over every provider with working
// credentials, in configured priority order. Providers that fail to
// initialize are skipped with a warning rather than crashing the process.
func buildRouter(ctx context.Context, cfg *config.Config) (*llm.Router, error) {
	var backends []llm.Backend
	for _, name := range cfg.EnabledProviders() {
		p := cfg.Providers[name]
		backend, err := llm.NewBackend(ctx, llm.BackendConfig{
			Provider:    name,
			APIKey:      p.APIKey,
			Model:       p.Model,
			BaseURL:     p.BaseURL,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		})
		if err != nil {
			log.Warn().Str("provider", name).Err(err).Msg("Skipping provider that failed to initialize")
			continue
		}
		backends = append(backends, backend)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no usable llm providers: %w", llm.ErrNoProviders)
	}
	router := llm.NewRouter(backends, llm.NewCallLog())
	if cfg.AI.RateLimit > 0 {
		router.WithLimiter(rate.NewLimiter(rate.Limit(cfg.AI.RateLimit), 1))
	}
	return router, nil
}

// buildEngine constructs the query engine from config.
func buildEngine(cfg *config.Config, router *llm.Router) *query.Engine {
	return query.NewEngine(router, query.Options{
		ChunkSize:      cfg.Query.ChunkSize,
		MaxConcurrency: cfg.Query.MaxConcurrency,
		EvidenceCap:    cfg.Query.EvidenceCap,
		CallTimeout:    cfg.AI.CallTimeout,
	})
}

// openStore connects to the shared Postgres database.
func openStore() (store.Store, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store.NewPostgresStore(db), nil
}
