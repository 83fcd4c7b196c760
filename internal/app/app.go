package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/timecapsule/internal/auth"
	"github.com/MrSnakeDoc/timecapsule/internal/capsule"
	"github.com/MrSnakeDoc/timecapsule/internal/config"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
	"github.com/MrSnakeDoc/timecapsule/internal/notify"
	"github.com/MrSnakeDoc/timecapsule/internal/postgres"
	"github.com/MrSnakeDoc/timecapsule/internal/prompts"
	"github.com/MrSnakeDoc/timecapsule/internal/redis"
	"github.com/MrSnakeDoc/timecapsule/internal/scheduler"
	"github.com/MrSnakeDoc/timecapsule/internal/storage"
	pgstore "github.com/MrSnakeDoc/timecapsule/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/timecapsule/internal/store/redis"
	"github.com/MrSnakeDoc/timecapsule/internal/utils"
	"github.com/MrSnakeDoc/timecapsule/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	pool        *pgxpool.Pool
	redisClient *goredis.Client
	server      *httpserver.Server
	sweeper     *scheduler.UnlockSweeper
	gc          *scheduler.GarbageCollector
	reloader    *scheduler.PromptsReloader // nil without a fallback file
}

// New connects Postgres, Redis and the bucket, then wires the workflows.
// ctx bounds the background work started here (JWKS refresh).
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: loggerClient}

	// Postgres first: nothing works without it.
	loggerClient.Info("connecting to postgres")
	pool, err := postgres.Connect(ctx, postgres.ConnectOptions{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		ConnectTimeout: cfg.DBConnectTimeout,
		RetryInterval:  cfg.DBRetryInterval,
		MaxWait:        cfg.DBMaxWait,
		PingTimeout:    cfg.DBPingTimeout,
		WarnThreshold:  cfg.DBWarnThreshold,
	}, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool

	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.DatabaseURL, loggerClient); err != nil {
			a.Close()
			return nil, err
		}
	}

	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redisClient = redisClient

	objects, err := storage.NewS3Storage(ctx, storage.Options{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		PathStyle: cfg.S3PathStyle,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	dispatcher, err := notify.New(cfg, loggerClient)
	if err != nil {
		a.Close()
		return nil, err
	}

	db := pgstore.NewStore(pool)
	cache := redisstore.NewStore(redisClient)

	var gen prompts.Generator
	if cfg.PromptsEndpoint != "" {
		gen = prompts.NewChatGenerator(cfg.PromptsEndpoint, cfg.PromptsAPIKey, cfg.PromptsModel,
			&http.Client{Timeout: cfg.PromptsTimeout})
	} else {
		loggerClient.Info("prompts endpoint not configured, serving the fallback list")
	}
	promptSvc := prompts.NewService(db, gen, prompts.Options{
		Timeout:   cfg.PromptsTimeout,
		CacheTTL:  cfg.PromptsCacheTTL,
		CacheSize: cfg.PromptsCacheSize,
	}, loggerClient)

	if cfg.PromptsFallbackFile != "" {
		a.reloader = scheduler.NewPromptsReloader(cfg.PromptsFallbackFile, promptSvc, loggerClient, cfg.PromptsReload)
	}

	capsules := capsule.NewService(db, objects, cache, cache, promptSvc, capsule.Options{
		MaxMediaSize:    cfg.MaxMediaSize,
		MaxMediaFiles:   cfg.MaxMediaN,
		UploadFanout:    cfg.UploadFanout,
		ListingCacheTTL: cfg.ListingCacheTTL,
		PresignTTL:      cfg.PresignTTL,
		DefaultTimezone: cfg.DefaultTimezone,
	}, loggerClient)

	a.sweeper = scheduler.NewUnlockSweeper(db, dispatcher, cache, loggerClient, scheduler.SweepOptions{
		Interval:   cfg.SweepInterval,
		BatchSize:  cfg.SweepBatchSize,
		Mode:       cfg.DeliveryMode,
		LeaseTTL:   cfg.SweepLeaseTTL,
		RunOnStart: cfg.SweepOnStart,

		DispatchTimeout: cfg.WebhookTimeout,
	})

	a.gc = scheduler.NewGarbageCollector(cache, objects, loggerClient, cfg.GCInterval, cfg.GCBatchSize)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:            loggerClient,
		StartTime:         time.Now(),
		Version:           version.Version,
		Commit:            version.Commit,
		BuildDate:         version.BuildDate,
		GoVersion:         version.GoVersion,
		TimeNow:           time.Now,
		AllowedCIDRS:      cfg.AllowedCIDRS,
		TrustProxy:        cfg.TrustProxy,
		CORSOrigins:       cfg.CORSOrigins,
		MaxMediaSize:      cfg.MaxMediaSize,
		MaxMediaFiles:     cfg.MaxMediaN,
		RateLimitBurst:    cfg.RateLimitBurst,
		RateLimitPerMin:   cfg.RateLimitPerMin,
		RateLimitMaxItems: cfg.RateLimitMaxItems,
		Capsules:          capsules,
		Prompts:           promptSvc,
		Sweeper:           a.sweeper,
		Verifier:          verifier,
		Profiles:          db,
		Checkers: []deps.ReadinessChecker{
			postgres.NewReadinessChecker(pool),
			cache,
			objects,
		},
	}

	a.server = httpserver.New(cfg, loggerClient, d)
	return a, nil
}

func newVerifier(ctx context.Context, cfg *config.Config) (*auth.Verifier, error) {
	opts := auth.Options{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   30 * time.Second,
	}
	if cfg.JWKSURL != "" {
		return auth.NewJWKSVerifier(ctx, cfg.JWKSURL, opts)
	}
	return auth.NewHMACVerifier(cfg.JWTSecret, opts), nil
}

// Run starts the background jobs and the HTTP server, and blocks until ctx
// is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.logger.Infof("🚀 Starting timecapsule %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start prompts reloader: %w", err)
		}
		a.logger.Info("fallback prompts loaded",
			logger.String("file", a.cfg.PromptsFallbackFile),
			logger.Duration("interval", a.cfg.PromptsReload))
	}

	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start unlock sweep: %w", err)
	}
	a.logger.Info("unlock sweep started",
		logger.Duration("interval", a.cfg.SweepInterval),
		logger.String("mode", a.cfg.DeliveryMode))

	if err := a.gc.Start(ctx); err != nil {
		a.sweeper.Stop()
		return fmt.Errorf("failed to start garbage collector: %w", err)
	}
	a.logger.Info("storage garbage collector started",
		logger.Duration("interval", a.cfg.GCInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.sweeper.Stop()
	a.gc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if runErr == nil {
		a.logger.Info("✅ timecapsule stopped cleanly")
	}
	return runErr
}

// Sweep runs a single unlock sweep, for external schedulers.
func (a *App) Sweep(ctx context.Context) (scheduler.SweepReport, error) {
	return a.sweeper.Sweep(ctx)
}

// Close releases the connections. It is safe on a partially built App.
func (a *App) Close() {
	if a.redisClient != nil {
		utils.MustClose(a.redisClient, "redis", a.logger)
		a.redisClient = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
