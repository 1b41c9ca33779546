package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/blob"
	"github.com/vovakirdan/famchat/internal/config"
	"github.com/vovakirdan/famchat/internal/core"
	applog "github.com/vovakirdan/famchat/internal/log"
	"github.com/vovakirdan/famchat/internal/messaging"
	"github.com/vovakirdan/famchat/internal/ratelimit"
	"github.com/vovakirdan/famchat/internal/store"
	"github.com/vovakirdan/famchat/internal/store/mongo"
	"github.com/vovakirdan/famchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/famchat/internal/transport/http"
)

const rateWindow = time.Minute

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	publisher       *messaging.Publisher
	memLimiter      *ratelimit.Memory
	log             *zerolog.Logger
}

// OpenStore opens the configured conversation store.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StorageDriver {
	case "mongo":
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		return st, nil
	case "sqlite", "":
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("driver", cfg.StorageDriver).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	opts := core.Options{
		Store:          st,
		Directory:      authService,
		Logger:         applog.Component(logger, "hub"),
		StorageTimeout: cfg.StorageTimeout,
		HistoryLimit:   cfg.HistoryLimit,
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, rate limiter will fail open")
		}
		opts.Limiter = ratelimit.NewRedis(a.redis, cfg.RateLimitPerMinute, rateWindow, applog.Component(logger, "ratelimit"))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis rate limiter enabled")
	} else {
		a.memLimiter = ratelimit.NewMemory(cfg.RateLimitPerMinute, rateWindow)
		opts.Limiter = a.memLimiter
	}

	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.SubjectPrefix = cfg.NATSSubjectPrefix
		pub, err := messaging.Connect(natsCfg, applog.Component(logger, "nats"))
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.publisher = pub
		opts.Publisher = pub
	}

	blobs, err := blob.NewDisk(cfg.UploadDir, "/uploads", cfg.MaxUploadBytes)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	a.hub = core.NewHub(opts)
	a.server = transporthttp.NewServer(a.hub, authService, blobs, cfg, applog.Component(logger, "http"))
	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()
	if a.memLimiter != nil {
		a.memLimiter.StartSweep(hubCtx.Done())
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Stop the hub first so hijacked websocket handlers return.
		stopHub()
		<-hubDone
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	stopHub()
	<-hubDone
	a.cleanup()
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close nats")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
