package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/dto"
	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/AnthoniusHendriyanto/identity-service/internal/auth/service"

const dummyPassword = "identity-service:no-such-account"

type UserService struct {
	repo     domain.UserRepository
	hasher   domain.PasswordHasher
	otp      domain.OTPGenerator
	notifier domain.Notifier
	policy   Policy

	clock  func() time.Time
	newID  func() string
	locks  *keyedMutex
	tracer trace.Tracer

	dummyOnce   sync.Once
	dummyDigest string
}

type Option func(*UserService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *UserService) {
		s.clock = clock
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *UserService) {
		s.newID = newID
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *UserService) {
		s.tracer = tp.Tracer(tracerName)
	}
}

func NewUserService(
	repo domain.UserRepository,
	hasher domain.PasswordHasher,
	otp domain.OTPGenerator,
	notifier domain.Notifier,
	policy Policy,
	opts ...Option,
) *UserService {
	s := &UserService{
		repo:     repo,
		hasher:   hasher,
		otp:      otp,
		notifier: notifier,
		policy:   policy.withDefaults(),
		clock:    time.Now,
		newID:    uuid.NewString,
		locks:    newKeyedMutex(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) Policy() Policy {
	return s.policy
}

func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (out *dto.RegisterOutput, err error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Register")
	defer func() { endSpan(span, err) }()

	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(emailKey(input.Email), phoneKey(input.Phone))
	defer unlock()

	existing, err := s.repo.FindOne(ctx, domain.UserFilter{Email: input.Email, Phone: input.Phone})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, autherror.ErrConflict
	}

	hashedPassword, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := s.otp.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.policy.OTPValidity)

	user := &domain.User{
		ID:            s.newID(),
		FullName:      input.FullName,
		Phone:         input.Phone,
		Email:         input.Email,
		PasswordHash:  hashedPassword,
		Professional:  input.Professional,
		OTPCode:       &code,
		OTPExpiresAt:  &expiresAt,
		OTPCooldownAt: &now,
		IsVerified:    false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.Insert(ctx, user)
	if err != nil {
		if errors.Is(err, autherror.ErrConflict) {
			return nil, autherror.ErrConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.notifier.NotifyOTP(ctx, domain.OTPNotification{
		UserID:    created.ID,
		To:        created.Email,
		Template:  domain.TemplateRegistrationOTP,
		Code:      code,
		ExpiresAt: expiresAt,
	})

	return &dto.RegisterOutput{
		Message:             "User registered, verification pending",
		User:                dto.NewUserOutput(created),
		VerificationPending: true,
	}, nil
}

func (s *UserService) RequestOTP(ctx context.Context, input dto.RequestOTPInput) (err error) {
	ctx, span := s.tracer.Start(ctx, "UserService.RequestOTP")
	defer func() { endSpan(span, err) }()

	email := dto.NormalizeEmail(input.Email)
	if email == "" {
		return autherror.Validation("email is required")
	}

	unlock := s.locks.Lock(emailKey(email))
	defer unlock()

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return autherror.ErrNotFound
	}

	now := s.now()
	if wait := s.policy.cooldownRemaining(user, now); wait > 0 {
		return autherror.Cooldown(wait)
	}

	code, err := s.otp.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	expiresAt := now.Add(s.policy.OTPValidity)

	updated, err := s.repo.Update(ctx, user.ID, domain.UserChanges{
		OTP: &domain.OTPState{Code: &code, ExpiresAt: &expiresAt, CooldownAt: &now},
	})
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	s.notifier.NotifyOTP(ctx, domain.OTPNotification{
		UserID:    updated.ID,
		To:        updated.Email,
		Template:  domain.TemplateRequestedOTP,
		Code:      code,
		ExpiresAt: expiresAt,
	})

	return nil
}

func (s *UserService) VerifyOTP(ctx context.Context, input dto.VerifyOTPInput) (out *dto.UserOutput, err error) {
	ctx, span := s.tracer.Start(ctx, "UserService.VerifyOTP")
	defer func() { endSpan(span, err) }()

	email := dto.NormalizeEmail(input.Email)
	if email == "" {
		return nil, autherror.Validation("email is required")
	}

	unlock := s.locks.Lock(emailKey(email))
	defer unlock()

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherror.ErrNotFound
	}

	if !user.HasChallenge() {
		return nil, autherror.ErrNoChallenge
	}

	now := s.now()
	if now.After(*user.OTPExpiresAt) {
		// The expired code is burned even though the call fails.
		_, err := s.repo.Update(ctx, user.ID, domain.UserChanges{
			OTP: &domain.OTPState{CooldownAt: user.OTPCooldownAt},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clear expired otp: %w", err)
		}
		return nil, autherror.ErrExpired
	}

	submitted := strings.TrimSpace(input.OTP)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(*user.OTPCode)) != 1 {
		return nil, autherror.ErrMismatch
	}

	updated, err := s.repo.Update(ctx, user.ID, domain.UserChanges{
		OTP:          &domain.OTPState{},
		MarkVerified: true,
		LoginGuard:   &domain.LoginGuard{FailedCount: 0, LastFailedAt: user.LastFailedLoginAt},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark user verified: %w", err)
	}

	output := dto.NewUserOutput(updated)
	return &output, nil
}

func (s *UserService) Login(ctx context.Context, input dto.LoginInput) (out *dto.UserOutput, err error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Login")
	defer func() { endSpan(span, err) }()

	email := dto.NormalizeEmail(input.Email)
	if email == "" {
		return nil, autherror.ErrInvalidCredentials
	}

	unlock := s.locks.Lock(emailKey(email))
	defer unlock()

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Spend the same hashing work as a wrong password.
		s.hasher.Verify(input.Password, s.unknownAccountDigest())
		return nil, autherror.ErrInvalidCredentials
	}

	now := s.now()
	failed, lockedFor := s.policy.loginGuard(user, now)
	if lockedFor > 0 {
		return nil, autherror.Locked(lockedFor)
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		_, err := s.repo.Update(ctx, user.ID, domain.UserChanges{
			LoginGuard: &domain.LoginGuard{FailedCount: failed + 1, LastFailedAt: &now},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record login attempt: %w", err)
		}
		return nil, autherror.ErrInvalidCredentials
	}

	if !user.IsVerified {
		return nil, autherror.ErrUnverified
	}

	updated, err := s.repo.Update(ctx, user.ID, domain.UserChanges{
		LoginGuard: &domain.LoginGuard{FailedCount: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}

	output := dto.NewUserOutput(updated)
	return &output, nil
}

func (s *UserService) findByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.repo.FindOne(ctx, domain.UserFilter{Email: email})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

// unknownAccountDigest is hashed on first use so it carries the hasher's cost.
func (s *UserService) unknownAccountDigest() string {
	s.dummyOnce.Do(func() {
		if digest, err := s.hasher.Hash(dummyPassword); err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

func (s *UserService) now() time.Time {
	return s.clock().UTC()
}

func emailKey(email string) string {
	return "email:" + email
}

func phoneKey(phone string) string {
	return "phone:" + phone
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(otelcodes.Error, string(autherror.CodeOf(err)))
	}
	span.End()
}
