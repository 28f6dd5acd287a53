package domain

//go:generate mockgen -destination=../../mocks/mock_user_repository.go -package=mocks github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain UserRepository
//go:generate mockgen -destination=../../mocks/mock_credentials.go -package=mocks github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain PasswordHasher,OTPGenerator,Notifier

import "context"

type UserRepository interface {
	// FindOne returns nil, nil when no user matches.
	FindOne(ctx context.Context, filter UserFilter) (*User, error)
	Insert(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, id string, changes UserChanges) (*User, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

type OTPGenerator interface {
	Generate() (string, error)
}

// Notifier hands an OTP to the delivery channel without waiting for it.
type Notifier interface {
	NotifyOTP(ctx context.Context, n OTPNotification)
}
