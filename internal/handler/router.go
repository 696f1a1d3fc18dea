package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reactor/slackbridge/internal/config"
	"reactor/slackbridge/internal/handler/middleware"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authHandler *AuthHandler,
	eventHandler *EventHandler,
	postHandler *PostHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORS))
	}

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// OAuth
	r.GET("/install", authHandler.Install)
	r.GET("/auth", authHandler.Callback)

	// Slack Events API
	events := []gin.HandlerFunc{}
	if cfg.Slack.SigningSecret != "" {
		events = append(events, middleware.SlackSignature(cfg.Slack.SigningSecret, nil))
	}
	events = append(events, eventHandler.Capture)
	r.POST("/event", events...)

	// Reactor → Slack
	r.POST("/post", postHandler.Post)
	r.PUT("/post", middleware.BodyLimit(cfg.Upload.MaxBytes), postHandler.Upload)

	return r
}
