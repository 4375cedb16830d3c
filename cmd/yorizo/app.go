package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yorizo/yorizo/internal/agent"
	"github.com/yorizo/yorizo/internal/config"
	"github.com/yorizo/yorizo/internal/embedding"
	"github.com/yorizo/yorizo/internal/llm"
	"github.com/yorizo/yorizo/internal/logging"
	"github.com/yorizo/yorizo/internal/retriever"
	"github.com/yorizo/yorizo/internal/storage"
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     *llm.Client
	embedder   *embedding.Embedder
	repo       retriever.Repository
	store      *retriever.Store
	consultant *agent.Consultant
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(cfg.OpenAI)

	provider, err := embedding.NewProvider(cfg, client)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewEmbedder(provider, cfg.Embedding.BatchSize, cfg.Embedding.MaxRetries, logger)
	embedder.SetRateLimit(cfg.Embedding.RequestsPerSecond)

	repo, err := storage.NewRepository(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	store := retriever.NewStore(repo, embedder,
		retriever.WithLogger(logger),
		retriever.WithDefaultTopK(cfg.RAG.DefaultTopK),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		embedder:   embedder,
		repo:       repo,
		store:      store,
		consultant: agent.NewConsultant(client, store, cfg.RAG.DefaultTopK, logger),
	}, nil
}

// loadApp reads the config named by --config and wires the app
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	return a.repo.Close()
}

// indexOwner picks the owner of ingested documents: the user, else the
// company, else the configured default
func (a *app) indexOwner(user, company string) string {
	if user == "" {
		user = company
	}
	return a.ownerKey(user)
}

// ownerKey applies the configured default owner
func (a *app) ownerKey(user string) string {
	if user != "" {
		return user
	}
	return a.cfg.RAG.DefaultOwnerKey
}
