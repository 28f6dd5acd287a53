// Package notification hands OTP deliveries off to the mail worker.
package notification

import (
	"errors"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
)

// OTPEvent is the wire format shared by the API server and the mail worker.
type OTPEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Template  string    `json:"template"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewOTPEvent(n domain.OTPNotification) OTPEvent {
	return OTPEvent{
		UserID:    n.UserID,
		Email:     n.To,
		Template:  n.Template,
		Code:      n.Code,
		ExpiresAt: n.ExpiresAt,
	}
}

func (e OTPEvent) Validate() error {
	switch {
	case e.Email == "":
		return errors.New("event has no recipient")
	case e.Code == "":
		return errors.New("event has no code")
	case e.Template == "":
		return errors.New("event has no template")
	}
	return nil
}
