package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ragchat/internal/cache"
	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/local"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/generation"
	"ragchat/internal/loader"
	"ragchat/internal/logging"
	"ragchat/internal/metrics"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/pgvector"
	"ragchat/internal/vectorstore/qdrant"
)

// app is the assembled pipeline plus everything that must be released on exit.
type app struct {
	cfg     *config.AppConfig
	log     *slog.Logger
	metrics *metrics.Metrics
	svc     *service.RAGService
	closers []io.Closer
}

func buildApp(ctx context.Context, cfg *config.AppConfig, logOut io.Writer) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		log:     logging.New(logOut, cfg.Log.Level),
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := a.newEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	// the service closes the store and cache
	c, err := newCache(ctx, cfg.Cache)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a.svc = service.NewRAGService(service.Deps{
		Loader:    loader.NewFolderLoader(loader.DefaultRegistry(), a.log),
		Chunker:   ch,
		Embedder:  emb,
		Store:     store,
		Cache:     c,
		Metrics:   a.metrics,
		Logger:    a.log,
		Generator: generation.NewClient(generation.Config{
			BaseURL:     cfg.Generator.BaseURL,
			APIKeyEnv:   cfg.Generator.APIKeyEnv,
			Model:       cfg.Generator.Model,
			Temperature: cfg.Generator.Temperature,
			Timeout:     seconds(cfg.Generator.TimeoutSecs),
			MaxRetries:  cfg.Generator.MaxRetries,
			RetryDelay:  time.Duration(cfg.Generator.RetryDelayMS) * time.Millisecond,
		}),
		Summarizer: summarizer.NewFrequencySummarizer(),
	}, service.Options{
		K:                   cfg.Retriever.K,
		ScoreThreshold:      cfg.Retriever.ScoreThreshold,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		EmbedWorkers:        cfg.Embedder.Workers,
	})
	a.closers = append(a.closers, a.svc)

	a.log.Info("Pipeline ready",
		slog.String("chunker", cfg.Chunker.Type),
		slog.String("embedder", cfg.Embedder.Type),
		slog.String("vector_store", cfg.VectorStore.Type),
		slog.String("cache", cfg.Cache.Type),
		slog.String("model", cfg.Generator.Model))
	return a, nil
}

// ingest loads folder when one was given on the command line.
func (a *app) ingest(ctx context.Context, folder string) (string, error) {
	if folder == "" {
		return "", nil
	}
	report, err := a.svc.Ingest(ctx, folder)
	if err != nil {
		return "", fmt.Errorf("ingest %s: %w", folder, err)
	}
	return report.Summary, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	case "recursive", "":
		return chunker.NewRecursiveChunker(cfg.Size, cfg.Overlap)
	}
	return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
}

func (a *app) newEmbedder(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    seconds(cfg.OpenAI.TimeoutSecs),
			MaxRetries: cfg.OpenAI.MaxRetries,
		}), nil
	case "local", "":
		if cfg.Local == nil {
			return nil, errors.New("local embedder config missing")
		}
		emb, err := local.New(ctx, local.Config{Model: cfg.Local.Model, ModelDir: cfg.Local.ModelDir}, a.log)
		if err != nil {
			return nil, fmt.Errorf("local embedder: %w", err)
		}
		a.closers = append(a.closers, emb)
		return emb, nil
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
}

func newStore(ctx context.Context, cfg config.VectorStoreConfig) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    seconds(cfg.Qdrant.TimeoutSecs),
		}), nil
	case "pgvector":
		if cfg.PGVector == nil {
			return nil, errors.New("pgvector config missing")
		}
		return pgvector.NewStorage(ctx, pgvector.Config{DSN: cfg.PGVector.DSN})
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "none", "":
		return cache.Noop{}, nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis config missing")
		}
		return cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      seconds(cfg.Redis.TTLSecs),
		})
	}
	return nil, fmt.Errorf("unknown cache: %s", cfg.Type)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
