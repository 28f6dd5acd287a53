package domain

import "time"

type User struct {
	ID           string
	FullName     string
	Phone        string
	Email        string
	PasswordHash string
	Professional string

	OTPCode       *string
	OTPExpiresAt  *time.Time
	OTPCooldownAt *time.Time

	IsVerified        bool
	FailedLoginCount  int
	LastFailedLoginAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasChallenge reports whether an OTP is pending for the user.
func (u *User) HasChallenge() bool {
	return u.OTPCode != nil && u.OTPExpiresAt != nil
}

// UserFilter selects a user by any of its unique fields. Empty fields are
// ignored; when both are set a record matching either one is returned.
type UserFilter struct {
	Email string
	Phone string
}

// OTPState replaces all three OTP columns at once. Nil fields clear the column.
type OTPState struct {
	Code       *string
	ExpiresAt  *time.Time
	CooldownAt *time.Time
}

// LoginGuard replaces the failed-login bookkeeping.
type LoginGuard struct {
	FailedCount  int
	LastFailedAt *time.Time
}

// UserChanges is a partial update applied atomically to one record.
// Nil groups are left untouched. MarkVerified only ever sets the flag.
type UserChanges struct {
	OTP          *OTPState
	MarkVerified bool
	LoginGuard   *LoginGuard
}

// Apply mutates u in memory the same way a store applies the update.
func (c UserChanges) Apply(u *User) {
	if c.OTP != nil {
		u.OTPCode = c.OTP.Code
		u.OTPExpiresAt = c.OTP.ExpiresAt
		u.OTPCooldownAt = c.OTP.CooldownAt
	}
	if c.MarkVerified {
		u.IsVerified = true
	}
	if c.LoginGuard != nil {
		u.FailedLoginCount = c.LoginGuard.FailedCount
		u.LastFailedLoginAt = c.LoginGuard.LastFailedAt
	}
}

// OTP templates understood by the mail worker.
const (
	TemplateRegistrationOTP = "otp.registration"
	TemplateRequestedOTP    = "otp.request"
)

// OTPNotification is the intent to deliver a code to a user.
type OTPNotification struct {
	UserID    string
	To        string
	Template  string
	Code      string
	ExpiresAt time.Time
}
