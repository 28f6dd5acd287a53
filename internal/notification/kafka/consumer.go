package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

// Handler processes one message value. A returned error is logged and the
// message is still committed; handlers own their retries.
type Handler interface {
	HandleMessage(ctx context.Context, value []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	handler Handler
	log     logging.Logger
	backoff backoff.BackOff
}

func NewConsumer(cfg Config, handler Handler, log logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Broker},
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		Dialer:   cfg.dialer(),
	})
	return newConsumer(reader, handler, log)
}

func newConsumer(r messageReader, handler Handler, log logging.Logger) *Consumer {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	return &Consumer{
		reader:  r,
		handler: handler,
		log:     log.With("component", "kafka-consumer"),
		backoff: b,
	}
}

// Run reads until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			wait := c.backoff.NextBackOff()
			c.log.Error(ctx, "failed to fetch message", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		c.backoff.Reset()

		c.log.Debug(ctx, "message received", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

		if err := c.handler.HandleMessage(ctx, msg.Value); err != nil {
			c.log.Error(ctx, "handler failed", "offset", msg.Offset, "error", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error(ctx, "failed to commit message", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
