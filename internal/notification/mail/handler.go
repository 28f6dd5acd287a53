package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
	"github.com/AnthoniusHendriyanto/identity-service/internal/notification"
	"github.com/cenkalti/backoff/v5"
)

const DefaultMaxRetries = 5

// Handler consumes OTP events and delivers them by mail.
type Handler struct {
	renderer   *Renderer
	sender     Sender
	log        logging.Logger
	maxTries   uint
	newBackOff func() backoff.BackOff
}

type HandlerOption func(*Handler)

// WithBackOff replaces the exponential retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) HandlerOption {
	return func(h *Handler) {
		h.newBackOff = newBackOff
	}
}

func NewHandler(renderer *Renderer, sender Sender, log logging.Logger, maxRetries int, opts ...HandlerOption) *Handler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	h := &Handler{
		renderer: renderer,
		sender:   sender,
		log:      log.With("component", "mailer"),
		maxTries: uint(maxRetries),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleMessage returns nil for malformed events so they are dropped, and the
// last delivery error once retries are exhausted.
func (h *Handler) HandleMessage(ctx context.Context, value []byte) error {
	var event notification.OTPEvent
	if err := json.Unmarshal(value, &event); err != nil {
		h.log.Warn(ctx, "dropping malformed otp event", "error", err)
		return nil
	}
	if err := event.Validate(); err != nil {
		h.log.Warn(ctx, "dropping invalid otp event", "user_id", event.UserID, "error", err)
		return nil
	}

	subject, body, err := h.renderer.Render(event.Template, event.Code, event.ExpiresAt)
	if err != nil {
		h.log.Warn(ctx, "dropping otp event", "user_id", event.UserID, "template", event.Template, "error", err)
		return nil
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := h.sender.Send(ctx, event.Email, subject, body)
		if err != nil && isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(h.newBackOff()),
		backoff.WithMaxTries(h.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			h.log.Warn(ctx, "mail delivery failed, retrying", "user_id", event.UserID, "error", err, "retry_in", wait)
		}),
	)
	if err != nil {
		h.log.Error(ctx, "mail delivery failed", "user_id", event.UserID, "template", event.Template, "attempts", attempt, "error", err)
		return fmt.Errorf("deliver otp to user %s: %w", event.UserID, err)
	}

	h.log.Info(ctx, "otp mail sent", "user_id", event.UserID, "template", event.Template, "attempts", attempt)
	return nil
}

// 5xx replies mean the server will never accept this message.
func isPermanent(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code >= 500
}
