package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yorizo/yorizo/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if servePort > 0 {
			a.cfg.Server.Port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		provider, dimension := a.embedder.Describe()
		a.logger.Info("language model settings",
			zap.String("chat_model", a.client.GetChatModel()),
			zap.String("embedding_model", a.client.GetEmbeddingModel()),
			zap.String("embedding_provider", provider),
			zap.Int("embedding_dimension", dimension),
		)

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.embedder.CheckHealth(healthCtx); err != nil {
			// Document listing still works without the provider.
			a.logger.Warn("embedding provider not reachable", zap.Error(err))
		}
		cancel()

		return api.NewServer(a.cfg, a.store, a.consultant, a.logger).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override server.port")
}
