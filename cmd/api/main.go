package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/audit"
	"github.com/qdmz/webchaxun/internal/cache"
	"github.com/qdmz/webchaxun/internal/config"
	"github.com/qdmz/webchaxun/internal/database"
	"github.com/qdmz/webchaxun/internal/handlers"
	"github.com/qdmz/webchaxun/internal/jobs"
	"github.com/qdmz/webchaxun/internal/log"
	"github.com/qdmz/webchaxun/internal/repository"
	"github.com/qdmz/webchaxun/internal/security"
	"github.com/qdmz/webchaxun/internal/server"
	"github.com/qdmz/webchaxun/internal/service"
	"github.com/qdmz/webchaxun/internal/session"
	"github.com/qdmz/webchaxun/internal/storage"
)

const keyPrefix = "webchaxun:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	sessionStore, throttleCache, closeCache := buildSessionBackend(cfg, dbPool, redisClient)
	defer closeCache()

	codec, err := cookieCodec(cfg.Session, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid session keys")
	}

	resolver, err := security.NewPermissionResolver()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid permission table")
	}

	userRepo := repository.NewUserRepository(dbPool)
	fileRepo := repository.NewFileRepository(dbPool)
	hasher := security.NewPasswordHasher(cfg.Security)
	recorder := audit.NewStreamRecorder(redisClient, cfg.Redis.Stream, cfg.Redis.AuditBuffer, log.Component(logger, "audit"))

	revocations := session.NewRevocations(throttleCache, cfg.Session.Timeout+cfg.Session.Grace)
	manager := session.NewManager(sessionStore, cfg.Session.Timeout, cfg.Session.Grace, log.Component(logger, "session")).
		WithRevocations(revocations)
	throttle := security.NewLoginThrottle(throttleCache, cfg.Security.MaxLoginAttempts, cfg.Security.LockoutWindow, log.Component(logger, "throttle"))

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Config:      cfg,
		Auth:        service.NewAuthService(userRepo, hasher, throttle, manager, recorder, log.Component(logger, "auth")),
		Users:       service.NewUserService(userRepo, fileRepo, objectStore, hasher, revocations, recorder, log.Component(logger, "users")),
		Files:       service.NewFileService(fileRepo, objectStore, recorder, cfg.Upload, log.Component(logger, "files")),
		Sessions:    manager,
		CookieCodec: codec,
		CSRF:        security.NewCSRFStore(sessionStore, cfg.Security.CSRFTTL),
		Permissions: resolver,
		HealthChecks: map[string]handlers.HealthCheck{
			"postgres": dbPool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"storage":  objectStore.Ping,
		},
		Log: logger,
	})

	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	scheduler := jobs.NewScheduler(redisClient, cfg.Redis.Stream, cfg.Jobs.CleanupSchedule, log.Component(logger, "scheduler"))
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, recorder, dbPool, redisClient)
}

// buildSessionBackend picks the session store and the cache behind the
// login throttle. The memory backend keeps both in process and only suits
// a single instance.
func buildSessionBackend(cfg *config.AppConfig, db *pgxpool.Pool, client *redis.Client) (session.Store, cache.Cache, func()) {
	ttl := cfg.Session.Timeout + cfg.Session.Grace
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		mem := cache.NewMemoryCache(time.Minute)
		store := session.NewMemoryStore()
		done := make(chan struct{})
		go sweepSessions(store, done)
		return store, mem, func() {
			close(done)
			mem.Close()
		}
	case config.SessionBackendPostgres:
		return session.NewPostgresStore(db), cache.NewRedisCache(client, keyPrefix), func() {}
	default:
		return session.NewRedisStore(client, keyPrefix, ttl), cache.NewRedisCache(client, keyPrefix), func() {}
	}
}

func sweepSessions(store *session.MemoryStore, done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			_, _ = store.DeleteExpired(context.Background(), now)
		}
	}
}

func cookieCodec(cfg config.SessionConfig, logger zerolog.Logger) (*securecookie.SecureCookie, error) {
	hashKey, err := hex.DecodeString(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("session.hashkey: %w", err)
	}
	blockKey, err := hex.DecodeString(cfg.BlockKey)
	if err != nil {
		return nil, fmt.Errorf("session.blockkey: %w", err)
	}
	if len(hashKey) == 0 {
		logger.Warn().Msg("session.hashkey not set, sessions will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
	}
	if len(hashKey) < 32 {
		return nil, errors.New("session.hashkey must be at least 32 bytes")
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, errors.New("session.blockkey must be 16, 24 or 32 bytes")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int((cfg.Timeout + cfg.Grace).Seconds()))
	return codec, nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, recorder *audit.StreamRecorder, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("audit events left unpublished")
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
