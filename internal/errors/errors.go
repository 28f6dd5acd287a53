// Package errors defines the closed set of failures the authentication core
// can return. Callers branch on Code (or errors.Is against the sentinels)
// instead of parsing messages.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code is a stable, machine-checkable error identifier.
type Code string

const (
	CodeValidation         Code = "VALIDATION_FAILED"
	CodeConflict           Code = "CONFLICT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeCooldown           Code = "OTP_COOLDOWN"
	CodeNoChallenge        Code = "OTP_NO_CHALLENGE"
	CodeExpired            Code = "OTP_EXPIRED"
	CodeMismatch           Code = "OTP_MISMATCH"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeLocked             Code = "ACCOUNT_LOCKED"
	CodeUnverified         Code = "UNVERIFIED"
	CodeInternal           Code = "INTERNAL"
)

// Error is the single error type produced by the auth core.
type Error struct {
	Code    Code
	Message string
	// RetryAfter is set for cooldown and lockout failures.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (e *Error) RetryAfterSeconds() int {
	return ceilSeconds(e.RetryAfter)
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrValidation         = New(CodeValidation, "invalid input")
	ErrConflict           = New(CodeConflict, "user already exists with this email or phone")
	ErrNotFound           = New(CodeNotFound, "user not found")
	ErrCooldown           = New(CodeCooldown, "otp requested too recently")
	ErrNoChallenge        = New(CodeNoChallenge, "no pending otp for this account")
	ErrExpired            = New(CodeExpired, "otp has expired, request a new one")
	ErrMismatch           = New(CodeMismatch, "invalid otp")
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid credentials")
	ErrLocked             = New(CodeLocked, "too many failed login attempts, try again later")
	ErrUnverified         = New(CodeUnverified, "account not verified, complete otp verification first")
	ErrInternal           = New(CodeInternal, "internal error")
)

// Validation builds a validation failure with a field-specific message.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Cooldown builds a cooldown failure whose message embeds the wait time.
func Cooldown(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeCooldown,
		Message:    fmt.Sprintf("please wait %d seconds before requesting a new otp", ceilSeconds(retryAfter)),
		RetryAfter: retryAfter,
	}
}

// Locked builds a lockout failure that remembers when the window ends.
func Locked(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeLocked,
		Message:    ErrLocked.Message,
		RetryAfter: retryAfter,
	}
}

// CodeOf extracts the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
