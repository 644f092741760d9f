package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/incidentreasoner/internal/config"
	"github.com/dshills/incidentreasoner/internal/embed"
	"github.com/dshills/incidentreasoner/internal/kb"
	"github.com/dshills/incidentreasoner/internal/llm"
	"github.com/dshills/incidentreasoner/internal/logging"
	"github.com/dshills/incidentreasoner/internal/pipeline"
	"github.com/dshills/incidentreasoner/internal/profile"
	"github.com/dshills/incidentreasoner/internal/websearch"
)

// newEmbedder is a package variable so tests can substitute a fake.
var newEmbedder = embed.New

// app is the wired service.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *kb.Store
	orch   *pipeline.Orchestrator
}

// loadConfig loads path and applies a non-empty profile override.
func loadConfig(path, profileName string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}
	if profileName != "" {
		if _, err := profile.Load(profileName); err != nil {
			return nil, withCode(exitCodeBadInput, err)
		}
		cfg.Profile = profileName
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}
	return logger, nil
}

// openStore opens the knowledge base index, ingesting the KB directory when
// the index is empty.
func openStore(ctx context.Context, cfg *config.Config, emb embed.Embedder, logger *zap.Logger) (*kb.Store, error) {
	store, err := kb.NewStore(cfg.Store(), emb, logger)
	if err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}
	if store.Count() > 0 {
		return store, nil
	}
	n, err := store.IngestDir(ctx, cfg.KB.Dir, cfg.KB.ChunkSize, cfg.KB.ChunkOverlap)
	if err != nil {
		return nil, withCode(exitCodeAPIError, fmt.Errorf("ingest %s: %w", cfg.KB.Dir, err))
	}
	logger.Info("knowledge base ready", zap.String("dir", cfg.KB.Dir), zap.Int("chunks", n))
	return store, nil
}

// buildApp wires every collaborator of the orchestrator from cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	prof, err := profile.Load(cfg.Profile)
	if err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}
	emb, err := newEmbedder(cfg.Embed())
	if err != nil {
		return nil, withCode(exitCodeBadInput, fmt.Errorf("embedder: %w", err))
	}
	reasoner, err := llm.NewProvider(cfg.LLM())
	if err != nil {
		return nil, withCode(exitCodeBadInput, fmt.Errorf("reasoner: %w", err))
	}
	store, err := openStore(ctx, cfg, emb, logger)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Embedder:  emb,
		Retriever: store,
		Reasoner:  reasoner,
		Profile:   prof,
		Logger:    logger.Named("pipeline"),
	}
	if cfg.WebEnabled() {
		src, err := websearch.OpenDir(cfg.Web.Dir)
		if err != nil {
			return nil, withCode(exitCodeBadInput, err)
		}
		logger.Info("fallback evidence source ready", zap.String("dir", cfg.Web.Dir), zap.Int("pages", src.Len()))
		deps.Fallback = src
	}

	orch, err := pipeline.New(deps, cfg.PipelineOptions())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store, orch: orch}, nil
}
