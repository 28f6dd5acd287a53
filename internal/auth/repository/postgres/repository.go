package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id, full_name, phone, email, password_hash, professional,
	otp_code, otp_expires_at, otp_cooldown_at,
	is_verified, failed_login_count, last_failed_login_at,
	created_at, updated_at`

// DB is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	db  DB
	now func() time.Time
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) FindOne(ctx context.Context, filter domain.UserFilter) (*domain.User, error) {
	if filter.Email == "" && filter.Phone == "" {
		return nil, nil
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2)
		LIMIT 1;
	`
	user, err := scanUser(r.db.QueryRow(ctx, query, filter.Email, filter.Phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, user *domain.User) (*domain.User, error) {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}

	query := `
		INSERT INTO users (
			id, full_name, phone, email, password_hash, professional,
			otp_code, otp_expires_at, otp_cooldown_at,
			is_verified, failed_login_count, last_failed_login_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID, user.FullName, user.Phone, user.Email, user.PasswordHash, user.Professional,
		user.OTPCode, user.OTPExpiresAt, user.OTPCooldownAt,
		user.IsVerified, user.FailedLoginCount, user.LastFailedLoginAt,
		createdAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, autherror.ErrConflict
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return created, nil
}

// Update applies all change groups in one statement so the record is never
// observed half-written.
func (r *PostgresRepository) Update(ctx context.Context, id string, changes domain.UserChanges) (*domain.User, error) {
	var (
		otp   domain.OTPState
		guard domain.LoginGuard
	)
	if changes.OTP != nil {
		otp = *changes.OTP
	}
	if changes.LoginGuard != nil {
		guard = *changes.LoginGuard
	}

	query := `
		UPDATE users SET
			otp_code = CASE WHEN $2 THEN $3 ELSE otp_code END,
			otp_expires_at = CASE WHEN $2 THEN $4 ELSE otp_expires_at END,
			otp_cooldown_at = CASE WHEN $2 THEN $5 ELSE otp_cooldown_at END,
			is_verified = is_verified OR $6,
			failed_login_count = CASE WHEN $7 THEN $8 ELSE failed_login_count END,
			last_failed_login_at = CASE WHEN $7 THEN $9 ELSE last_failed_login_at END,
			updated_at = $10
		WHERE id = $1
		RETURNING ` + userColumns

	updated, err := scanUser(r.db.QueryRow(ctx, query,
		id,
		changes.OTP != nil, otp.Code, otp.ExpiresAt, otp.CooldownAt,
		changes.MarkVerified,
		changes.LoginGuard != nil, guard.FailedCount, guard.LastFailedAt,
		r.now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autherror.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user %s: %w", id, err)
	}

	return updated, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.FullName, &u.Phone, &u.Email, &u.PasswordHash, &u.Professional,
		&u.OTPCode, &u.OTPExpiresAt, &u.OTPCooldownAt,
		&u.IsVerified, &u.FailedLoginCount, &u.LastFailedLoginAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
