package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/blob"
	"github.com/vovakirdan/famchat/internal/config"
	"github.com/vovakirdan/famchat/internal/core"
	"github.com/vovakirdan/famchat/internal/metrics"
)

const uploadsPrefix = "/uploads"

// NewServer builds the HTTP server: websocket endpoint, REST API, uploads and metrics.
func NewServer(hub *core.Hub, authService *auth.Service, blobs *blob.Disk, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	uploads := NewUploadHandler(blobs, logger)
	router.POST("/upload", uploads.Upload)
	router.Static(uploadsPrefix, blobs.Dir())

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(authService, hub.Registry(), logger)

	api := router.Group("/api")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		protected.GET("/users", userHandlers.ListUsers)
		protected.GET("/online", userHandlers.Online)
		protected.GET("/me", userHandlers.Me)
	}

	if cfg.StaticDir != "" {
		router.NoRoute(gin.WrapH(stdhttp.FileServer(stdhttp.Dir(cfg.StaticDir))))
	}

	// gin's writer refuses to hijack after the handshake is written.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
