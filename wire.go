package main

import (
	"context"

	"github.com/ObiAU/hfentityengine/internal/ai"
	"github.com/ObiAU/hfentityengine/internal/config"
	"github.com/ObiAU/hfentityengine/internal/enrichment"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/resolver"
	"github.com/ObiAU/hfentityengine/internal/store"
)

// openStore falls back to the in-process store when DATABASE_URL is empty.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, entities are kept in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func newCompleter(cfg *config.Config) ai.Completer {
	if cfg.OracleProvider == config.ProviderAnthropic {
		return ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.OracleModel)
	}
	return ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OracleModel)
}

func buildEnricher(cfg *config.Config, entities store.Store, log logger.Logger, opts ...enrichment.Option) (*enrichment.Enricher, error) {
	oracle := ai.NewOracle(newCompleter(cfg), cfg.OracleTimeout, log)

	projects, err := resolver.NewProjectResolver(entities, cfg.ProjectCacheSize, log)
	if err != nil {
		return nil, err
	}
	topics := resolver.NewTopicResolver(entities, oracle, cfg.DedupWindow, log)

	return enrichment.New(oracle, projects, topics, entities, log, opts...), nil
}
