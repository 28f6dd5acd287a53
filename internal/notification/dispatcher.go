package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
)

const DefaultTimeout = 5 * time.Second

// Publisher moves an encoded event onto the delivery channel.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Dispatcher implements domain.Notifier. Each notification is published on its
// own goroutine; failures are logged and never reach the caller.
type Dispatcher struct {
	publisher Publisher
	log       logging.Logger
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ domain.Notifier = (*Dispatcher)(nil)

func NewDispatcher(publisher Publisher, log logging.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		publisher: publisher,
		log:       log.With("component", "notification"),
		timeout:   timeout,
	}
}

func (d *Dispatcher) NotifyOTP(ctx context.Context, n domain.OTPNotification) {
	payload, err := json.Marshal(NewOTPEvent(n))
	if err != nil {
		d.log.Error(ctx, "failed to encode otp event", "user_id", n.UserID, "error", err)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn(ctx, "dispatcher closed, dropping otp notification", "user_id", n.UserID)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	// The request context is usually cancelled as soon as the handler returns.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	go func() {
		defer d.wg.Done()
		defer cancel()

		if err := d.publisher.Publish(sendCtx, []byte(n.UserID), payload); err != nil {
			d.log.Error(sendCtx, "failed to publish otp notification",
				"user_id", n.UserID, "template", n.Template, "error", err)
			return
		}
		d.log.Debug(sendCtx, "otp notification published", "user_id", n.UserID, "template", n.Template)
	}()
}

// Close stops accepting notifications and waits for in-flight ones or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogPublisher stands in for a broker in local development. It records that a
// notification happened without its code.
type LogPublisher struct {
	log logging.Logger
}

func NewLogPublisher(log logging.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, key, value []byte) error {
	var event OTPEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.log.Info(ctx, "otp notification (no broker configured)",
		"user_id", string(key), "email", event.Email, "template", event.Template, "expires_at", event.ExpiresAt)
	return nil
}
