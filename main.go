package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/api"
	"prism-board/domain"
	"prism-board/storage"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.JSONLogs {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer closeBackend()

	opts := storage.Options{
		QueueSize: cfg.WriteQueue,
		Retries:   cfg.WriteRetries,
		Timeout:   cfg.WriteTimeout,
		Logger:    logger,
	}
	var deduper api.Deduper
	if cfg.RedisConn != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConn))
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable at start-up; continuing")
		}
		opts.Cache = storage.NewSnapshotCache(rc, "board:snapshot", cfg.CacheTTL)
		opts.Notifiers = append(opts.Notifiers, storage.NewRedisNotifier(rc, cfg.ChangesChannel))
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	}
	if cfg.ChangeQueue != "" {
		qn, err := storage.NewQueueNotifier(cfg.StorageConn, cfg.ChangeQueue)
		if err != nil {
			logger.Fatalf("changes queue: %v", err)
		}
		opts.Notifiers = append(opts.Notifiers, qn)
	}
	store := storage.NewStore(backend, opts)
	defer store.Close()

	auth, err := newAuth(cfg)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding, api.HeaderIdempotencyKey},
	}))
	api.Register(e, domain.NewBoardService(store), store, auth, deduper, logger)

	go func() {
		logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Backend}).Info("board api listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
}

func openBackend(ctx context.Context, cfg config) (storage.Backend, func(), error) {
	nop := func() {}
	switch cfg.Backend {
	case "file":
		return storage.NewFileBackend(cfg.StorePath), nop, nil
	case "sqlite":
		b, err := storage.OpenSQLite(ctx, cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case "tables":
		b, err := storage.NewTablesBackend(cfg.StorageConn, cfg.BoardTable)
		if err != nil {
			return nil, nil, err
		}
		return b, nop, nil
	default:
		return storage.NewMemoryBackend(), nop, nil
	}
}

func newAuth(cfg config) (*api.Auth, error) {
	ac := api.AuthConfig{
		Audience: cfg.AuthAudience,
		Issuer:   cfg.AuthIssuer,
		Disabled: cfg.AuthDisabled,
	}
	switch {
	case cfg.AuthDisabled:
	case cfg.AuthSecret != "":
		ac.Secret = []byte(cfg.AuthSecret)
	default:
		jwks, err := keyfunc.Get(cfg.AuthJWKSURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			return nil, err
		}
		ac.JWKS = jwks
	}
	return api.NewAuth(ac), nil
}
