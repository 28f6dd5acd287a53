package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/config"
	"github.com/AnthoniusHendriyanto/identity-service/db"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/handler"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/repository/memory"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/repository/postgres"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/repository/sqlite"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/service"
	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
	"github.com/AnthoniusHendriyanto/identity-service/internal/notification"
	"github.com/AnthoniusHendriyanto/identity-service/internal/notification/kafka"
	"github.com/AnthoniusHendriyanto/identity-service/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	if err := cfg.ValidateStorage(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("identity-service: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, "identity-service", cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}()

	userRepo, closeRepo, err := newUserRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	dispatcher := notification.NewDispatcher(publisher, logger, cfg.NotifyTimeout)
	userService := service.NewUserService(
		userRepo,
		service.NewBcryptHasher(cfg.BcryptCost),
		service.NewOTPGenerator(),
		dispatcher,
		cfg.AuthPolicy(),
	)
	authHandler := handler.NewAuthHandler(userService, logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(handler.NewCORS(cfg.CORSOrigins))
	handler.RegisterRoutes(app, authHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "listening", "port", cfg.Port, "storage", cfg.StorageDriver, "kafka", cfg.KafkaEnabled())
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "http shutdown failed", "error", err)
		}
		// Pending notifications get a chance to reach the broker.
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "notifications still in flight at shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info(context.Background(), "stopped")
	return nil
}

func newUserRepository(ctx context.Context, cfg *config.Config) (domain.UserRepository, func(), error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := db.NewPostgresPool(ctx, cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			return nil, nil, err
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewPostgresRepository(pool), pool.Close, nil

	case config.StorageSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewRepository(sqlDB), func() { _ = sqlDB.Close() }, nil

	case config.StorageMemory:
		return memory.NewRepository(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func newPublisher(cfg *config.Config, logger logging.Logger) (notification.Publisher, func()) {
	if !cfg.KafkaEnabled() {
		logger.Warn(context.Background(), "KAFKA_BROKER not set, OTP events are only logged")
		return notification.NewLogPublisher(logger), func() {}
	}

	producer := kafka.NewProducer(kafkaConfig(cfg))
	return producer, func() {
		if err := producer.Close(); err != nil {
			logger.Warn(context.Background(), "kafka producer close failed", "error", err)
		}
	}
}

func kafkaConfig(cfg *config.Config) kafka.Config {
	return kafka.Config{
		Broker:   cfg.Kafka.Broker,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		Username: cfg.Kafka.Username,
		Password: cfg.Kafka.Password,
		TLS:      cfg.Kafka.TLS,
	}
}
