package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/dto"
	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/service"
	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
	"github.com/AnthoniusHendriyanto/identity-service/internal/mocks"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestUserService_RecordsSpans(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockUserRepository(ctrl)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	hasher := mocks.NewMockPasswordHasher(ctrl)
	hasher.EXPECT().Hash(gomock.Any()).Return("dummy-digest", nil)
	hasher.EXPECT().Verify("pw", "dummy-digest").Return(false)

	s := service.NewUserService(
		repo,
		hasher,
		mocks.NewMockOTPGenerator(ctrl),
		mocks.NewMockNotifier(ctrl),
		service.DefaultPolicy(),
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithTracerProvider(tp),
	)

	repo.EXPECT().FindOne(gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := s.Login(context.Background(), dto.LoginInput{Email: "ghost@example.com", Password: "pw"})
	require.ErrorIs(t, err, autherror.ErrInvalidCredentials)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "UserService.Login", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, string(autherror.CodeInvalidCredentials), spans[0].Status().Description)
}
