package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/grayleopard/safeswap/config"
	"github.com/grayleopard/safeswap/internal/handlers"
	listingrepo "github.com/grayleopard/safeswap/internal/repositories/listing"
	recallrepo "github.com/grayleopard/safeswap/internal/repositories/recall"
	"github.com/grayleopard/safeswap/internal/services/ingestion"
	"github.com/grayleopard/safeswap/pkg/database"
	"github.com/grayleopard/safeswap/pkg/health"
	"github.com/grayleopard/safeswap/pkg/kafka"
	"github.com/grayleopard/safeswap/pkg/middleware"
	"github.com/grayleopard/safeswap/pkg/recall"
	"github.com/grayleopard/safeswap/pkg/recall/registry"
	"github.com/grayleopard/safeswap/pkg/redis"
	"github.com/grayleopard/safeswap/pkg/startup"
	"github.com/grayleopard/safeswap/pkg/tracing"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		ServiceName: cfg.AppName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Enabled:     cfg.OTLPEnabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to shut down tracing")
		}
	}()

	policy, err := ingestion.ParsePolicy(cfg.RecallPolicy)
	if err != nil {
		return err
	}

	var (
		db            *sqlx.DB
		redisClient   *redis.Client
		kafkaProducer *kafka.Producer
	)

	deps := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	deps.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			conn, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, databaseDSN(cfg))
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			conn.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			conn.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			conn.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			driver, err := postgres.WithInstance(conn.DB, &postgres.Config{})
			if err != nil {
				return fmt.Errorf("failed to create migration driver: %w", err)
			}

			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			db = conn
			return nil
		},
		stop: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	})
	deps.AddDependency(&dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			client, err := redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			redisClient = client
			return nil
		},
		stop: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
	})
	deps.AddDependency(&dependency{
		name: "kafka",
		start: func(ctx context.Context) error {
			kafkaProducer = kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaListingEventsTopic), logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if kafkaProducer == nil {
				return nil
			}
			return kafkaProducer.Close()
		},
	})

	if err := deps.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("failed to stop dependencies")
		}
	}()

	dbInstance := database.NewDatabaseInstance(db, logger)
	recallRepo := recallrepo.NewRepository(dbInstance, logger)
	listingRepo := listingrepo.NewRepository(dbInstance, logger)

	registryClient := registry.NewClient(registry.Config{
		BaseURL: cfg.RecallRegistryBaseURL,
		Timeout: cfg.RecallRegistryTimeout,
	}, logger)
	resolver := recall.NewResolver(logger, recallRepo, registryClient)

	ingestionSvc := ingestion.NewService(logger, resolver, listingRepo, kafkaProducer, policy)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(db, redisClient.Redis(), version)
	checker.RegisterRoutes(e)
	checker.SetReady(true)

	api := e.Group("/api/v1")
	handlers.NewListingHandler(ingestionSvc, listingRepo, logger).RegisterRoutes(api)
	handlers.NewRecallHandler(resolver, recallRepo, redisClient, cfg.RecentRecallsCacheTTL, logger).RegisterRoutes(api)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) ectologger.Logger {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}

	return zapadapter.NewZapEctoLogger(zapLogger.With(zap.String("app", cfg.AppName)), nil)
}

func databaseDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)
}

// dependency adapts a start/stop closure pair to the startup interface
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
