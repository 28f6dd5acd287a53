// Command mailer consumes OTP events from Kafka and delivers them over SMTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AnthoniusHendriyanto/identity-service/config"
	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
	"github.com/AnthoniusHendriyanto/identity-service/internal/notification/kafka"
	"github.com/AnthoniusHendriyanto/identity-service/internal/notification/mail"
	"github.com/AnthoniusHendriyanto/identity-service/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if !cfg.KafkaEnabled() {
		log.Fatalf("Missing required config: %s", "KAFKA_BROKER")
	}
	if cfg.SMTP.Host == "" {
		log.Fatalf("Missing required config: %s", "SMTP_HOST")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("mailer: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, "identity-mailer", cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	renderer, err := mail.NewRenderer()
	if err != nil {
		return err
	}

	from := cfg.MailFrom
	if from == "" {
		from = cfg.SMTP.Username
	}
	sender := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     from,
		FromName: cfg.MailFromName,
	})

	consumer := kafka.NewConsumer(kafka.Config{
		Broker:   cfg.Kafka.Broker,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		Username: cfg.Kafka.Username,
		Password: cfg.Kafka.Password,
		TLS:      cfg.Kafka.TLS,
	}, mail.NewHandler(renderer, sender, logger, cfg.MailMaxRetries), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "consuming", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return consumer.Close()
	})

	return g.Wait()
}
