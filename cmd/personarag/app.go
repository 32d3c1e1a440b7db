package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"personarag/internal/config"
	"personarag/internal/corpus"
	"personarag/internal/embedding"
	"personarag/internal/embedding/hashing"
	embopenai "personarag/internal/embedding/openai"
	"personarag/internal/embedding/tfidf"
	"personarag/internal/generation"
	"personarag/internal/generation/anthropic"
	"personarag/internal/generation/gemini"
	genopenai "personarag/internal/generation/openai"
	"personarag/internal/logging"
	"personarag/internal/service"
	"personarag/internal/summarizer"
)

type app struct {
	logger       zerolog.Logger
	store        *corpus.Store
	orchestrator *service.Orchestrator
	closeLog     func() error
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp assembles the corpus store, embedder, generator and orchestrator.
func newApp(cfg *config.AppConfig, console io.Writer) (*app, error) {
	logger, closeLog, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Console: console})
	if err != nil {
		return nil, err
	}
	embedders, err := embedderFactory(cfg.Embedder)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	store := corpus.NewStore(cfg.PersonaList(), corpus.WithLogger(logger))
	orch := service.NewOrchestrator(store, embedders, gen,
		service.WithTopK(cfg.Retrieval.TopK),
		service.WithLogger(logger),
		service.WithSummarizer(summarizer.NewFrequencySummarizer(), cfg.Summarizer.MaxSentences),
	)
	return &app{logger: logger, store: store, orchestrator: orch, closeLog: closeLog}, nil
}

func (a *app) Close() error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}

// embedderFactory returns a factory yielding one embedder per persona index.
// TF-IDF keeps corpus statistics, so it is never shared.
func embedderFactory(cfg config.EmbedderConfig) (embedding.Factory, error) {
	switch cfg.Type {
	case "hashing", "":
		dims := config.DefaultHashDimensions
		if cfg.Hashing != nil && cfg.Hashing.Dimensions > 0 {
			dims = cfg.Hashing.Dimensions
		}
		return embedding.Shared(hashing.New(dims)), nil
	case "tfidf":
		return func() (embedding.Embedder, error) { return tfidf.NewEmbedder(), nil }, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return embedding.Shared(client), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newGenerator(cfg config.GeneratorConfig) (generation.Client, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch cfg.Type {
	case "openai", "":
		return genopenai.NewClient(genopenai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Timeout:     timeout,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Timeout:     timeout,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case "gemini":
		return gemini.NewClient(gemini.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Timeout:     timeout,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}
