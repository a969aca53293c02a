package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rmaselli/smartFleet-app-sub002/internal/config"
	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/password"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/rbac"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/auth/token"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/blob"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/catalog"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/db"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/events"
	httpinfra "github.com/rmaselli/smartFleet-app-sub002/internal/infra/http"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/logging"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/memstore"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/policyopa"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/ratelimit"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hojasd exited", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	repos, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	catalogStore, err := catalog.Open(cfg.ChecklistCatalogPath)
	if err != nil {
		return err
	}
	if cfg.ChecklistCatalogWatch && cfg.ChecklistCatalogPath != "" {
		if err := catalog.Watch(ctx, catalogStore, cfg.ChecklistCatalogPath, logger); err != nil {
			return err
		}
	}

	policy, err := buildPolicy(ctx, cfg)
	if err != nil {
		return err
	}
	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	blobs, err := buildBlobStore(cfg, logger)
	if err != nil {
		return err
	}
	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close", zap.Error(err))
		}
	}()
	limiter, closeLimiter, err := buildRateLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	deps := usecase.Deps{
		Repos:                repos,
		Catalog:              catalogStore,
		Policy:               policy,
		Hasher:               password.NewHasher(bcrypt.DefaultCost),
		Tokens:               codec,
		Events:               publisher,
		Blobs:                blobs,
		Logger:               logger,
		TokenTTL:             cfg.TokenTTL,
		ListIncludeCancelled: cfg.ListIncludeCancelled,
	}
	srv := httpinfra.NewServer(cfg, deps, limiter, health)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("hojasd listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.Bool("memory_mode", cfg.MemoryMode()),
			zap.String("policy_mode", cfg.PolicyMode),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (usecase.Repositories, httpinfra.HealthFunc, func(), error) {
	if cfg.MemoryMode() {
		logger.Warn("POSTGRES_DSN not set; using the in-memory store, data is lost on exit")
		return memstore.New().Repositories(), nil, func() {}, nil
	}
	store, err := db.NewStore(cfg, logger)
	if err != nil {
		return usecase.Repositories{}, nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close", zap.Error(err))
		}
	}
	if cfg.DBAutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			closeStore()
			return usecase.Repositories{}, nil, nil, err
		}
	}
	return store.Repositories(), store.Ping, closeStore, nil
}

func buildPolicy(ctx context.Context, cfg config.Config) (domain.AccessPolicy, error) {
	switch cfg.PolicyMode {
	case "", "static":
		return rbac.NewAuthorizer(), nil
	case "opa":
		return policyopa.NewEngine(ctx)
	}
	return nil, errors.New("unsupported POLICY_MODE " + cfg.PolicyMode)
}

func buildBlobStore(cfg config.Config, logger *zap.Logger) (domain.BlobStore, error) {
	switch cfg.BlobBackend {
	case "", "local":
		return blob.NewLocalStore(cfg.BlobLocalDir, int64(cfg.MaxPhotoBytes))
	case "s3":
		return blob.NewS3Store(blob.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3Endpoint,
			MaxBytes: int64(cfg.MaxPhotoBytes),
		}, logger)
	}
	return nil, errors.New("unsupported BLOB_BACKEND " + cfg.BlobBackend)
}

func buildPublisher(cfg config.Config, logger *zap.Logger) (domain.EventPublisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewLogPublisher(logger), nil
	}
	return events.NewAsyncProducer(cfg.KafkaBrokers,
		events.WithLogger(logger),
		events.WithTopic(cfg.KafkaTopic),
	)
}

func buildRateLimiter(ctx context.Context, cfg config.Config) (domain.RateLimiter, func(), error) {
	if cfg.LoginRateLimitRequests <= 0 {
		return nil, func() {}, nil
	}
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{}), func() {}, nil
	}
	limiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := limiter.Ping(pingCtx); err != nil {
		_ = limiter.Close()
		return nil, nil, err
	}
	return limiter, func() { _ = limiter.Close() }, nil
}
