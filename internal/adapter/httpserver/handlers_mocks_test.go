package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/projectpulse/internal/domain"
	"github.com/pscheid92/projectpulse/internal/platform/config"
	"github.com/pscheid92/projectpulse/internal/realtime"
)

// --- Mock implementations ---

type mockMessageService struct {
	sendMessageFn          func(ctx context.Context, senderID, conversationID int64, content string) (domain.DeliveryRecord, error)
	conversationMessagesFn func(ctx context.Context, userID, conversationID int64) ([]domain.DeliveryRecord, error)
	unreadCountFn          func(ctx context.Context, userID int64) (int64, error)
	unreadByConversationFn func(ctx context.Context, userID int64) (map[int64]int64, error)
	markConversationReadFn func(ctx context.Context, userID, conversationID int64) (int64, error)
	notifyFn               func(ctx context.Context, userIDs []int64, kind, message string, data map[string]any) (int, error)
}

var errNotImplemented = errors.New("not implemented")

func (m *mockMessageService) SendMessage(ctx context.Context, senderID, conversationID int64, content string) (domain.DeliveryRecord, error) {
	if m.sendMessageFn != nil {
		return m.sendMessageFn(ctx, senderID, conversationID, content)
	}
	return domain.DeliveryRecord{}, errNotImplemented
}

func (m *mockMessageService) ConversationMessages(ctx context.Context, userID, conversationID int64) ([]domain.DeliveryRecord, error) {
	if m.conversationMessagesFn != nil {
		return m.conversationMessagesFn(ctx, userID, conversationID)
	}
	return nil, errNotImplemented
}

func (m *mockMessageService) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	if m.unreadCountFn != nil {
		return m.unreadCountFn(ctx, userID)
	}
	return 0, errNotImplemented
}

func (m *mockMessageService) UnreadByConversation(ctx context.Context, userID int64) (map[int64]int64, error) {
	if m.unreadByConversationFn != nil {
		return m.unreadByConversationFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockMessageService) MarkConversationRead(ctx context.Context, userID, conversationID int64) (int64, error) {
	if m.markConversationReadFn != nil {
		return m.markConversationReadFn(ctx, userID, conversationID)
	}
	return 0, errNotImplemented
}

func (m *mockMessageService) Notify(ctx context.Context, userIDs []int64, kind, message string, data map[string]any) (int, error) {
	if m.notifyFn != nil {
		return m.notifyFn(ctx, userIDs, kind, message, data)
	}
	return 0, errNotImplemented
}

// --- Test server ---

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	*Server
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, svc messageService, opts ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		Port:          "0",
		UserHeader:    "X-User-ID",
		WriteTimeout:  time.Second,
		SendRateLimit: 100,
		SendRateBurst: 100,

		MaxStreams:         100,
		StreamConnectRate:  100,
		StreamConnectBurst: 100,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	clock := clockwork.NewFakeClockAt(testStart)
	srv := NewServer(cfg, svc, realtime.NewRegistry(clock, nil), realtime.NewPresence(), clock, prometheus.NewRegistry(), nil)
	return &testServer{Server: srv, clock: clock}
}

func withSendRate(limit float64, burst int) func(*config.Config) {
	return func(cfg *config.Config) {
		cfg.SendRateLimit = limit
		cfg.SendRateBurst = burst
	}
}

// do runs a request through the full echo stack as userID (0 = anonymous).
func (s *testServer) do(method, path string, userID int64, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}
