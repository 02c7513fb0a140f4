package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/cloudsentinel/internal/audit"
	"github.com/and161185/cloudsentinel/internal/blob"
	"github.com/and161185/cloudsentinel/internal/blob/minio"
	"github.com/and161185/cloudsentinel/internal/blob/s3"
	"github.com/and161185/cloudsentinel/internal/config"
	"github.com/and161185/cloudsentinel/internal/geo"
	"github.com/and161185/cloudsentinel/internal/limiter"
	"github.com/and161185/cloudsentinel/internal/migrate"
	"github.com/and161185/cloudsentinel/internal/repository"
	"github.com/and161185/cloudsentinel/internal/repository/memory"
	"github.com/and161185/cloudsentinel/internal/repository/postgres"
	"github.com/and161185/cloudsentinel/internal/service"
)

// app is the wired engine plus what the commands need around it.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	auth   service.AuthService
	engine service.Engine

	migrate func(ctx context.Context) (int64, error)
	close   func()
}

func (a *app) Close() {
	if a.close != nil {
		a.close()
	}
	_ = a.logger.Sync()
}

// overrides are command-line values that win over the environment.
type overrides struct {
	dsn     string
	records string
	blob    string
	debug   bool
}

func (o overrides) apply(cfg *config.Config) {
	if o.dsn != "" {
		cfg.Database.DSN = o.dsn
	}
	if o.records != "" {
		cfg.RecordBackend = o.records
	}
	if o.blob != "" {
		cfg.BlobBackend = o.blob
	}
	if o.debug {
		cfg.LogLevel = "debug"
	}
}

// opener builds an app for one command invocation.
type opener func(ctx context.Context, o overrides) (*app, error)

// envOpener loads configuration from the environment.
func envOpener(ctx context.Context, o overrides) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	logger, err := newLogger(cfg.LogLevel, o.debug)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger)
}

// newLogger builds a production zap logger writing to stderr, or a
// development one when debug is set.
func newLogger(level string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.OutputPaths = []string{"stderr"}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// newApp wires repositories, blob store, limiter and services from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	a := &app{cfg: cfg, logger: logger}

	var (
		users repository.UserRepository
		files repository.FileRepository
		sink  repository.AuditRepository
		lim   limiter.Limiter
	)
	limCfg := limiter.Config{Window: cfg.Limiter.Window, MaxFails: cfg.Limiter.MaxFails, BlockFor: cfg.Limiter.BlockFor}

	switch cfg.RecordBackend {
	case config.BackendPostgres:
		db, err := postgres.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		a.close = db.Close
		users = postgres.NewUserRepo(db)
		files = postgres.NewFileRepo(db)
		sink = postgres.NewAuditRepo(db)
		lim = limiter.NewPG(db.Pool, limCfg)
		a.migrate = func(ctx context.Context) (int64, error) {
			return migrate.Up(ctx, cfg.Database.DSN, logger)
		}
	default:
		users = memory.NewUserStore()
		files = memory.NewFileStore()
		sink = memory.NewAuditStore()
		lim = limiter.NewMemory(limCfg)
		a.migrate = func(context.Context) (int64, error) { return 0, nil }
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	rules, err := geo.ParseCIDRTable(cfg.Geo.CIDRRegions)
	if err != nil {
		a.Close()
		return nil, err
	}
	resolver := geo.NewStatic(cfg.Geo.DefaultRegion, rules)

	log := audit.New(sink, audit.SystemClock, logger)
	a.auth = service.NewAuthService(users, log, lim, []byte(cfg.JWT.Secret), cfg.JWT.TTL,
		service.WithAuthResolver(resolver),
		service.WithMinPasswordLen(cfg.Policy.MinPasswordLen),
		service.WithAuthLogger(logger.Named("auth")),
	)
	a.engine = service.NewEngine(files, blob.WithTimeout(blobs, cfg.BlobTimeout), log,
		service.WithResolver(resolver),
		service.WithLimits(service.Limits{
			MinPasswordLen:    cfg.Policy.MinPasswordLen,
			MaxFileSize:       cfg.Policy.MaxFileSize,
			AllowedExtensions: cfg.Policy.AllowedExtensions,
		}),
		service.WithLogger(logger.Named("engine")),
	)
	return a, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BackendMinio:
		return minio.New(ctx, minio.Options{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Region:    cfg.Minio.Region,
			UseSSL:    cfg.Minio.UseSSL,
		})
	case config.BackendS3:
		return s3.New(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Endpoint)
	case config.BackendFS:
		return blob.NewDir(cfg.FS.Dir)
	default:
		return blob.NewMemory(), nil
	}
}
