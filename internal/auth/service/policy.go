package service

import (
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
)

const (
	DefaultOTPValidity      = 10 * time.Minute
	DefaultOTPCooldown      = 60 * time.Second
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
)

// Policy holds the time-based rules of the OTP and login state machine.
type Policy struct {
	OTPValidity      time.Duration
	OTPCooldown      time.Duration
	LockoutThreshold int
	LockoutWindow    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		OTPValidity:      DefaultOTPValidity,
		OTPCooldown:      DefaultOTPCooldown,
		LockoutThreshold: DefaultLockoutThreshold,
		LockoutWindow:    DefaultLockoutWindow,
	}
}

func (p Policy) withDefaults() Policy {
	if p.OTPValidity <= 0 {
		p.OTPValidity = DefaultOTPValidity
	}
	if p.OTPCooldown <= 0 {
		p.OTPCooldown = DefaultOTPCooldown
	}
	if p.LockoutThreshold <= 0 {
		p.LockoutThreshold = DefaultLockoutThreshold
	}
	if p.LockoutWindow <= 0 {
		p.LockoutWindow = DefaultLockoutWindow
	}
	return p
}

// cooldownRemaining is zero when a new OTP may be issued, otherwise the wait
// left, capped at the full cooldown.
func (p Policy) cooldownRemaining(u *domain.User, now time.Time) time.Duration {
	if u.OTPCooldownAt == nil {
		return 0
	}
	elapsed := now.Sub(*u.OTPCooldownAt)
	if elapsed >= p.OTPCooldown {
		return 0
	}
	if elapsed < 0 {
		return p.OTPCooldown
	}
	return p.OTPCooldown - elapsed
}

// loginGuard returns the failure count to continue from and, when the account
// is locked, how long the lock still holds. An expired lock resets the count
// in memory only.
func (p Policy) loginGuard(u *domain.User, now time.Time) (failed int, locked time.Duration) {
	failed = u.FailedLoginCount
	if failed < p.LockoutThreshold {
		return failed, 0
	}
	if u.LastFailedLoginAt != nil {
		elapsed := now.Sub(*u.LastFailedLoginAt)
		if elapsed < p.LockoutWindow {
			if elapsed < 0 {
				return failed, p.LockoutWindow
			}
			return failed, p.LockoutWindow - elapsed
		}
	}
	return 0, 0
}
