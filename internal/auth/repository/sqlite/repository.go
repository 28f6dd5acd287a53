// Package sqlite stores users in a single SQLite file via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const userColumns = `id, full_name, phone, email, password_hash, professional,
	otp_code, otp_expires_at, otp_cooldown_at,
	is_verified, failed_login_count, last_failed_login_at,
	created_at, updated_at`

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository expects a database already migrated by db.OpenSQLite.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) FindOne(ctx context.Context, filter domain.UserFilter) (*domain.User, error) {
	if filter.Email == "" && filter.Phone == "" {
		return nil, nil
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE (?1 <> '' AND email = ?1) OR (?2 <> '' AND phone = ?2)
		LIMIT 1;
	`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, filter.Email, filter.Phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (r *Repository) Insert(ctx context.Context, user *domain.User) (*domain.User, error) {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	query := `
		INSERT INTO users (
			id, full_name, phone, email, password_hash, professional,
			otp_code, otp_expires_at, otp_cooldown_at,
			is_verified, failed_login_count, last_failed_login_at,
			created_at, updated_at
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?13)
		RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.ID, user.FullName, user.Phone, user.Email, user.PasswordHash, user.Professional,
		nullString(user.OTPCode), nullCeilMillis(user.OTPExpiresAt), nullMillis(user.OTPCooldownAt),
		user.IsVerified, user.FailedLoginCount, nullMillis(user.LastFailedLoginAt),
		toMillis(createdAt),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, autherror.ErrConflict
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return created, nil
}

func (r *Repository) Update(ctx context.Context, id string, changes domain.UserChanges) (*domain.User, error) {
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
			otp_code = CASE WHEN ?2 THEN ?3 ELSE otp_code END,
			otp_expires_at = CASE WHEN ?2 THEN ?4 ELSE otp_expires_at END,
			otp_cooldown_at = CASE WHEN ?2 THEN ?5 ELSE otp_cooldown_at END,
			is_verified = (is_verified OR ?6),
			failed_login_count = CASE WHEN ?7 THEN ?8 ELSE failed_login_count END,
			last_failed_login_at = CASE WHEN ?7 THEN ?9 ELSE last_failed_login_at END,
			updated_at = ?10
		WHERE id = ?1
		RETURNING ` + userColumns

	updated, err := scanUser(r.db.QueryRowContext(ctx, query,
		id,
		changes.OTP != nil, nullString(otp.Code), nullCeilMillis(otp.ExpiresAt), nullMillis(otp.CooldownAt),
		changes.MarkVerified,
		changes.LoginGuard != nil, guard.FailedCount, nullMillis(guard.LastFailedAt),
		toMillis(r.now()),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, autherror.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return updated, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u                           domain.User
		otpCode                     sql.NullString
		otpExpiresAt, otpCooldownAt sql.NullInt64
		lastFailedAt                sql.NullInt64
		createdAt, updatedAt        int64
	)
	err := row.Scan(
		&u.ID, &u.FullName, &u.Phone, &u.Email, &u.PasswordHash, &u.Professional,
		&otpCode, &otpExpiresAt, &otpCooldownAt,
		&u.IsVerified, &u.FailedLoginCount, &lastFailedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if otpCode.Valid {
		u.OTPCode = &otpCode.String
	}
	u.OTPExpiresAt = fromNullMillis(otpExpiresAt)
	u.OTPCooldownAt = fromNullMillis(otpCooldownAt)
	u.LastFailedLoginAt = fromNullMillis(lastFailedAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)

	return &u, nil
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

// nullCeilMillis rounds up so a stored expiry never lands before the issued one.
func nullCeilMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	ms := toMillis(*value)
	if value.Sub(fromMillis(ms)) > 0 {
		ms++
	}
	return sql.NullInt64{Int64: ms, Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
