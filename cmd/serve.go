package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reactor/slackbridge/internal/config"
	"reactor/slackbridge/internal/handler"
	"reactor/slackbridge/internal/platform"
	"reactor/slackbridge/internal/reactor"
	"reactor/slackbridge/internal/repository"
	"reactor/slackbridge/internal/service"
	"reactor/slackbridge/pkg/crypto"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge (default)",
	RunE:  runServe,
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format != "json" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level
	return zc.Build()
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 3. Unlock the token cipher
	cipher, err := crypto.NewTokenCipher(
		[]byte(cfg.Keys.PublicKeyPEM),
		[]byte(cfg.Keys.PrivateKeyPEM),
		[]byte(cfg.Keys.Passphrase),
	)
	if err != nil {
		logger.Fatal("failed to load key pair", zap.Error(err))
	}

	// 4. Initialize event de-dup store
	var stateStore repository.StateStore
	switch cfg.Dedup.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		stateStore = repository.NewRedisStateStore(redisClient)
		logger.Info("using Redis de-dup store")
	case "memory":
		stateStore = repository.NewMemoryStateStore()
		logger.Info("using in-memory de-dup store")
	default:
		stateStore = repository.NewNopStateStore()
		logger.Info("event de-dup disabled")
	}

	// 5. Initialize outbound clients
	slackClient := platform.NewClient(platform.Options{
		APIBase:      cfg.Slack.APIBase,
		AuthorizeURL: cfg.Slack.AuthorizeURL,
		ClientID:     cfg.Slack.ClientID,
		ClientSecret: cfg.Slack.ClientSecret,
		Scopes:       cfg.Slack.Scopes,
		UserScopes:   cfg.Slack.UserScopes,
		FileHosts:    cfg.Slack.FileHosts,
		Timeout:      cfg.HTTP.Timeout,
	})
	reactorClient := reactor.NewClient(reactor.Options{
		APIPrefix: cfg.Reactor.APIPrefix,
		AuthToken: cfg.Reactor.AuthToken,
		Timeout:   cfg.HTTP.Timeout,
	})

	// 6. Initialize services
	dispatcher := service.NewDispatcher(logger)
	relayService := service.NewRelayService(
		slackClient, reactorClient, cipher, stateStore, dispatcher, logger,
		service.RelayOptions{
			DedupTTL:         cfg.Dedup.TTL,
			FetchConcurrency: cfg.HTTP.FetchConcurrency,
		},
	)

	// 7. Initialize handlers and router
	authHandler := handler.NewAuthHandler(relayService, slackClient.InstallURL())
	eventHandler := handler.NewEventHandler(relayService)
	postHandler := handler.NewPostHandler(relayService)
	router := handler.SetupRouter(cfg, logger, authHandler, eventHandler, postHandler)
	if cfg.Slack.SigningSecret == "" {
		logger.Warn("SLACK_SIGNING_SECRET not set, event signatures are not verified")
	}

	// 8. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// 9. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 10. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-cmd.Context().Done():
	}
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Wait(ctx); err != nil {
		logger.Warn("background forwards still running at exit", zap.Error(err))
	}
	logger.Info("server exited gracefully")
	return nil
}
