package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agromongol/agrochat-server/internal/auth"
	"github.com/agromongol/agrochat-server/internal/config"
	"github.com/agromongol/agrochat-server/internal/core"
	"github.com/agromongol/agrochat-server/internal/store"
)

// NewServer builds the HTTP server with websocket and REST routes.
func NewServer(hub *core.Hub, st store.MessageStore, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{"message": "Route not found"})
	})

	ws := NewWSHandler(hub, WSOptions{
		JWT:               jwtConfig,
		AuthRequired:      cfg.Auth.Required,
		AllowedOrigins:    cfg.AllowedOrigins,
		MaxMessageBytes:   cfg.WS.MaxMessageBytes,
		MessagesPerMinute: cfg.WS.MessagesPerMinute,
	}, logger)

	api := NewAPIHandlers(hub, st, logger)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/ping", api.Ping)
		apiGroup.GET("/presence/:userId", api.Presence)

		history := apiGroup.Group("/rooms")
		if jwtConfig.Enabled() {
			history.Use(AuthMiddleware(jwtConfig, logger))
		}
		history.GET("/:roomId/messages", api.History)
	}

	// The websocket upgrade hijacks the connection after writing 101, which
	// gin's response writer refuses, so /ws bypasses the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
