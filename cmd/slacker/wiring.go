package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/slacker/internal/config"
	"github.com/tbourn/slacker/internal/domain"
	"github.com/tbourn/slacker/internal/llm"
	"github.com/tbourn/slacker/internal/repo"
	"github.com/tbourn/slacker/internal/services"
	"github.com/tbourn/slacker/internal/sysutil"
)

// loadConfig reads the environment and installs the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	return cfg, nil
}

// openStore opens the SQLite file and brings the schema up to date.
func openStore(cfg config.Config) (*gorm.DB, error) {
	opts := []repo.OpenOption{repo.WithSilentLogger()}
	if cfg.OTEL.Enabled {
		opts = append(opts, repo.WithTracing())
	}
	db, err := repo.OpenSQLite(cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// newProvider returns nil when no API key is configured; callers fall back
// to the heuristic classifier and the apology reply.
func newProvider(cfg config.Config) (llm.Provider, error) {
	if cfg.LLM.APIKey == "" {
		return nil, nil
	}
	return llm.New(cfg.LLM.Provider, llm.Options{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
}

func newClassifier(cfg config.Config, p llm.Provider) services.Classifier {
	c := services.NewClassifier(cfg.ClassifierStrategy, p, cfg.LLM.ClassifierModel)
	if cfg.ClassifierStrategy == "generative" && p == nil {
		log.Warn().Msg("generative classifier selected without an API key; every message gets the default intent")
	}
	return c
}

// pipelineConfig converts the string settings into intent tags.
func pipelineConfig(cfg config.Config) (services.PipelineConfig, error) {
	out := services.PipelineConfig{HistoryLimit: cfg.Pipeline.HistoryLimit}
	for _, s := range cfg.Pipeline.AllowedIntents {
		t, err := domain.ParseIntentTag(s)
		if err != nil {
			return out, fmt.Errorf("PIPELINE_ALLOWED_INTENTS: %w", err)
		}
		out.AllowedIntents = append(out.AllowedIntents, t)
	}
	def, err := domain.ParseIntentTag(cfg.Pipeline.DefaultIntent)
	if err != nil {
		return out, fmt.Errorf("PIPELINE_DEFAULT_INTENT: %w", err)
	}
	out.DefaultIntent = def
	return out, nil
}

// buildPipeline constructs every stage once.
func buildPipeline(cfg config.Config, db *gorm.DB) (*services.Pipeline, error) {
	pcfg, err := pipelineConfig(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		log.Warn().Str("provider", cfg.LLM.Provider).Msg("no LLM API key configured; replies will be the apology message")
	}

	classifier := newClassifier(cfg, provider)
	store := services.NewGormStateStore(db)
	generator := &services.LLMGenerator{
		Provider:      provider,
		Model:         cfg.LLM.Model,
		SystemPrompt:  cfg.SystemPrompt,
		MaxReplyRunes: cfg.GeneratorMaxReplyRune,
	}
	notifier := services.NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.APIURL, cfg.Slack.Timeout)

	log.Info().
		Str("classifier", fmt.Sprintf("%T", classifier)).
		Str("llm_provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Strs("allowed_intents", cfg.Pipeline.AllowedIntents).
		Int("history_limit", cfg.Pipeline.HistoryLimit).
		Msg("pipeline configured")

	return services.NewPipeline(classifier, store, generator, notifier, pcfg), nil
}
