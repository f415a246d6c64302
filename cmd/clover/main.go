package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/artist"
	cardrepo "github.com/Ramsey-B/clover/internal/repositories/card"
	"github.com/Ramsey-B/clover/internal/repositories/syncrun"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/redis"
	cardroutes "github.com/Ramsey-B/clover/pkg/routes/card"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	syncroutes "github.com/Ramsey-B/clover/pkg/routes/sync"
	"github.com/Ramsey-B/clover/pkg/scryfall"
	cloversync "github.com/Ramsey-B/clover/pkg/sync"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clover: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return err
	}
	defer zapLogger.Sync() // nolint:errcheck
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		provider, err := tracing.NewProvider(ctx, tracing.ProviderConfig{
			ServiceName: cfg.AppName,
			Environment: cfg.Environment,
			OTLP: &exporters.OTLPConfig{
				Endpoint: cfg.OTLPEndpoint,
				Protocol: cfg.OTLPProtocol,
				Insecure: cfg.OTLPInsecure,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("failed to shut down tracer provider")
			}
		}()
	}

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlxDB.Close()
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	db := database.NewDatabaseInstance(sqlxDB, logger)

	if err := migrateDatabase(cfg, logger, sqlxDB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	guardian := database.NewGuardian(db, cfg.DatabaseReconnectRetryCount, logger)

	artistRepo := artist.NewRepository(db, logger)
	cardRepo := cardrepo.NewRepository(db, logger, cfg.SyncInsertPageSize)
	runRepo := syncrun.NewRepository(db, logger)

	scryfallClient := scryfall.NewClient(scryfall.Config{
		BaseURL:   cfg.ScryfallAPIBaseURL,
		UserAgent: cfg.ScryfallUserAgent,
		Timeout:   cfg.ScryfallHTTPTimeout,
	}, logger)

	runnerCfg := cloversync.RunnerConfig{
		BulkDataType:   cfg.ScryfallBulkDataType,
		BatchSize:      cfg.SyncBatchSize,
		ErrorThreshold: cfg.SyncErrorThreshold,
	}

	var runner *cloversync.Runner
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		runner = cloversync.NewRunner(runnerCfg, scryfallClient, guardian, cardRepo, artistRepo, runRepo, producer, logger)
	} else {
		runner = cloversync.NewRunner(runnerCfg, scryfallClient, guardian, cardRepo, artistRepo, runRepo, nil, logger)
	}

	var locker cloversync.Locker
	var checker *health.Checker
	if cfg.RedisEnabled {
		redisClient, err := redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		locker = &redisLocker{locker: redis.NewLocker(redisClient, "")}
		checker = health.NewChecker(db, redisClient, version)
	} else {
		checker = health.NewChecker(db, nil, version)
	}

	manager := cloversync.NewManager(cloversync.ManagerConfig{
		LockTTL: cfg.SyncLockTTL,
	}, runner, runRepo, locker, logger)

	e := newServer(cfg, logger)
	checker.RegisterRoutes(e)
	syncroutes.NewHandler(manager, runRepo).RegisterRoutes(e)
	cardroutes.NewHandler(cardRepo, artistRepo).RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.WithField("address", addr).Infof("Starting %s", cfg.AppName)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	checker.SetReady(true)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.PrettyLogs {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newServer(cfg *config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	return e
}

func migrateDatabase(cfg *config.Config, logger ectologger.Logger, sqlxDB *sqlx.DB) error {
	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return service.Migrate(cfg.DatabaseName, driver)
}

// redisLocker adapts the Redis lock to the sync manager, which only needs a
// release callback for the lock it acquired.
type redisLocker struct {
	locker *redis.Locker
}

func (r *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := r.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
