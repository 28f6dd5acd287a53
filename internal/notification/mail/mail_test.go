package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
	"github.com/AnthoniusHendriyanto/identity-service/internal/logging"
	"github.com/AnthoniusHendriyanto/identity-service/internal/notification"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	calls    int
	failures []error
	to       string
	subject  string
	body     string
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	s.to, s.subject, s.body = to, subject, body
	return nil
}

func newTestHandler(t *testing.T, sender Sender, maxRetries int) *Handler {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return NewHandler(r, sender, logging.Discard(), maxRetries,
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
}

func eventPayload(t *testing.T, template string) []byte {
	t.Helper()
	b, err := json.Marshal(notification.OTPEvent{
		UserID:    "user-1",
		Email:     "alice@example.com",
		Template:  template,
		Code:      "482913",
		ExpiresAt: time.Date(2025, 3, 14, 9, 10, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return b
}

func TestRenderer_KnownTemplates(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for _, id := range []string{domain.TemplateRegistrationOTP, domain.TemplateRequestedOTP} {
		subject, body, err := r.Render(id, "482913", time.Date(2025, 3, 14, 9, 10, 0, 0, time.UTC))
		require.NoError(t, err, id)
		assert.NotEmpty(t, subject)
		assert.Contains(t, body, "482913")
		assert.Contains(t, body, "09:10 UTC")
	}

	_, _, err = r.Render("password.reset", "1", time.Now())
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestHandler_Delivers(t *testing.T) {
	sender := &fakeSender{}
	h := newTestHandler(t, sender, 3)

	require.NoError(t, h.HandleMessage(context.Background(), eventPayload(t, domain.TemplateRegistrationOTP)))

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "alice@example.com", sender.to)
	assert.Equal(t, "Verify your email", sender.subject)
	assert.Contains(t, sender.body, "482913")
}

func TestHandler_RetriesTransientFailures(t *testing.T) {
	sender := &fakeSender{failures: []error{errors.New("connection reset"), errors.New("timeout")}}
	h := newTestHandler(t, sender, 5)

	require.NoError(t, h.HandleMessage(context.Background(), eventPayload(t, domain.TemplateRequestedOTP)))
	assert.Equal(t, 3, sender.calls)
}

func TestHandler_GivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("connection refused")
	sender := &fakeSender{failures: []error{boom, boom, boom, boom}}
	h := newTestHandler(t, sender, 3)

	err := h.HandleMessage(context.Background(), eventPayload(t, domain.TemplateRequestedOTP))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, sender.calls)
}

func TestHandler_PermanentSMTPRejection(t *testing.T) {
	rejected := &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	sender := &fakeSender{failures: []error{rejected}}
	h := newTestHandler(t, sender, 5)

	err := h.HandleMessage(context.Background(), eventPayload(t, domain.TemplateRequestedOTP))
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, sender.calls)
}

func TestHandler_DropsMalformedEvents(t *testing.T) {
	sender := &fakeSender{}
	h := newTestHandler(t, sender, 3)
	ctx := context.Background()

	assert.NoError(t, h.HandleMessage(ctx, []byte("not json")))
	assert.NoError(t, h.HandleMessage(ctx, []byte(`{"email":"a@x.com"}`)))
	assert.NoError(t, h.HandleMessage(ctx, eventPayload(t, "password.reset")))
	assert.Zero(t, sender.calls)
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@example.com", "Identity", "alice@example.com", "Hi", "<p>x</p>"))

	assert.True(t, strings.HasPrefix(msg, "From: Identity <noreply@example.com>\r\n"))
	assert.Contains(t, msg, "To: alice@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hi\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>x</p>"))

	bare := string(buildMessage("noreply@example.com", "", "a@x.com", "Hi", ""))
	assert.Contains(t, bare, "From: noreply@example.com\r\n")
}

// fakeSMTPServer accepts one plaintext session and records the DATA payload.
func fakeSMTPServer(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "MAIL", "RCPT":
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				lines, _ := tp.ReadDotLines()
				out <- strings.Join(lines, "\n")
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	return ln.Addr().String(), out
}

func TestSMTPSender_Send(t *testing.T) {
	addr, data := fakeSMTPServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "noreply@example.com", FromName: "Identity"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Send(ctx, "alice@example.com", "Verify your email", "<p>482913</p>"))

	select {
	case got := <-data:
		assert.Contains(t, got, "Subject: Verify your email")
		assert.Contains(t, got, "<p>482913</p>")
	case <-time.After(time.Second):
		t.Fatal("server did not receive DATA")
	}
}

func TestSMTPSender_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, From: "noreply@example.com"})
	err = s.Send(context.Background(), "a@x.com", "s", "b")
	assert.ErrorContains(t, err, "failed to dial smtp server")
}
