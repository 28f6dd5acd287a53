package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/handler"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/repository/memory"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/service"
	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
	"github.com/AnthoniusHendriyanto/identity-service/internal/mocks"
	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type codeInbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *codeInbox) NotifyOTP(_ context.Context, n domain.OTPNotification) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[n.To] = n.Code
}

func (i *codeInbox) code(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

type testApp struct {
	app   *fiber.App
	inbox *codeInbox
	now   time.Time
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{
		inbox: &codeInbox{codes: map[string]string{}},
		now:   time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	svc := service.NewUserService(
		memory.NewRepository(),
		service.NewBcryptHasher(bcrypt.MinCost),
		service.NewOTPGenerator(),
		ta.inbox,
		service.DefaultPolicy(),
		service.WithClock(func() time.Time { return ta.now }),
	)

	ta.app = fiber.New()
	ta.app.Use(handler.NewCORS("*"))
	handler.RegisterRoutes(ta.app, handler.NewAuthHandler(svc, logging.Discard()))
	return ta
}

func (ta *testApp) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded), string(data))
	return resp, decoded
}

var alice = map[string]string{
	"fullName":     "Alice",
	"phone":        "+15550001",
	"email":        "alice@example.com",
	"password":     "P@ssw0rd",
	"professional": "engineer",
}

func TestRegister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)

		resp, body := ta.post(t, "/api/v1/auth/register", alice)

		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, true, body["verification_pending"])
		user := body["user"].(map[string]any)
		assert.Equal(t, "alice@example.com", user["email"])
		assert.NotContains(t, user, "password")
		assert.NotContains(t, user, "passwordHash")
		assert.NotContains(t, user, "otp")
	})

	t.Run("duplicate", func(t *testing.T) {
		ta := newTestApp(t)
		ta.post(t, "/api/v1/auth/register", alice)

		resp, body := ta.post(t, "/api/v1/auth/register", alice)

		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
		assert.Equal(t, string(autherror.CodeConflict), body["code"])
		assert.Equal(t, "user already exists with this email or phone", body["error"])
	})

	t.Run("bad request", func(t *testing.T) {
		ta := newTestApp(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/json")
		resp, err := ta.app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing field", func(t *testing.T) {
		ta := newTestApp(t)

		resp, body := ta.post(t, "/api/v1/auth/register", map[string]string{"email": "a@x.com"})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, string(autherror.CodeValidation), body["code"])
	})
}

func TestRequestOTP(t *testing.T) {
	ta := newTestApp(t)
	ta.post(t, "/api/v1/auth/register", alice)

	resp, body := ta.post(t, "/api/v1/auth/request-otp", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
	assert.EqualValues(t, 60, body["retry_after"])
	assert.Equal(t, string(autherror.CodeCooldown), body["code"])

	ta.now = ta.now.Add(time.Minute)
	resp, body = ta.post(t, "/api/v1/auth/request-otp", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "OTP sent", body["message"])

	resp, _ = ta.post(t, "/api/v1/auth/request-otp", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestVerifyOTP(t *testing.T) {
	ta := newTestApp(t)
	ta.post(t, "/api/v1/auth/register", alice)
	code := ta.inbox.code("alice@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	resp, body := ta.post(t, "/api/v1/auth/verify-otp", map[string]string{"email": "alice@example.com", "otp": wrong})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(autherror.CodeMismatch), body["code"])

	resp, body = ta.post(t, "/api/v1/auth/verify-otp", map[string]string{"email": "alice@example.com", "otp": code})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["user"].(map[string]any)["isVerified"])

	resp, body = ta.post(t, "/api/v1/auth/verify-otp", map[string]string{"email": "alice@example.com", "otp": code})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(autherror.CodeNoChallenge), body["code"])
}

func TestVerifyOTP_Expired(t *testing.T) {
	ta := newTestApp(t)
	ta.post(t, "/api/v1/auth/register", alice)
	code := ta.inbox.code("alice@example.com")

	ta.now = ta.now.Add(service.DefaultOTPValidity + time.Millisecond)
	resp, body := ta.post(t, "/api/v1/auth/verify-otp", map[string]string{"email": "alice@example.com", "otp": code})

	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
	assert.Equal(t, string(autherror.CodeExpired), body["code"])
}

func TestLogin(t *testing.T) {
	ta := newTestApp(t)
	ta.post(t, "/api/v1/auth/register", alice)
	creds := map[string]string{"email": "alice@example.com", "password": "P@ssw0rd"}

	resp, body := ta.post(t, "/api/v1/auth/login", creds)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(autherror.CodeUnverified), body["code"])

	ta.post(t, "/api/v1/auth/verify-otp", map[string]string{"email": "alice@example.com", "otp": ta.inbox.code("alice@example.com")})

	resp, body = ta.post(t, "/api/v1/auth/login", creds)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful", body["message"])

	bad := map[string]string{"email": "alice@example.com", "password": "nope"}
	for i := 0; i < service.DefaultLockoutThreshold; i++ {
		resp, body = ta.post(t, "/api/v1/auth/login", bad)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid credentials", body["error"])
	}

	resp, body = ta.post(t, "/api/v1/auth/login", creds)
	assert.Equal(t, fiber.StatusLocked, resp.StatusCode)
	assert.Equal(t, string(autherror.CodeLocked), body["code"])
	assert.Equal(t, "900", resp.Header.Get(fiber.HeaderRetryAfter))

	resp, body = ta.post(t, "/api/v1/auth/login", map[string]string{"email": "ghost@example.com", "password": "nope"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid credentials", body["error"])
}

func TestInternalErrorsAreMasked(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockUserRepository(ctrl)
	repo.EXPECT().FindOne(gomock.Any(), gomock.Any()).Return(nil, errors.New("pq: password authentication failed for user app"))

	svc := service.NewUserService(repo, mocks.NewMockPasswordHasher(ctrl), mocks.NewMockOTPGenerator(ctrl), mocks.NewMockNotifier(ctrl), service.DefaultPolicy())
	app := fiber.New()
	handler.RegisterRoutes(app, handler.NewAuthHandler(svc, logging.Discard()))
	ta := &testApp{app: app}

	resp, body := ta.post(t, "/api/v1/auth/login", map[string]string{"email": "alice@example.com", "password": "x"})

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, string(autherror.CodeInternal), body["code"])
	assert.Equal(t, "internal error", body["error"])
}

func TestStatusFor(t *testing.T) {
	tests := map[autherror.Code]int{
		autherror.CodeValidation:         400,
		autherror.CodeConflict:           409,
		autherror.CodeNotFound:           404,
		autherror.CodeCooldown:           429,
		autherror.CodeNoChallenge:        400,
		autherror.CodeExpired:            410,
		autherror.CodeMismatch:           400,
		autherror.CodeInvalidCredentials: 401,
		autherror.CodeLocked:             423,
		autherror.CodeUnverified:         403,
		autherror.CodeInternal:           500,
		autherror.Code("SOMETHING_NEW"):  500,
	}
	for code, want := range tests {
		assert.Equal(t, want, handler.StatusFor(code), code)
	}
}
