package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/projectpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseFrame struct {
	event string
	data  string
}

// readSSEFrame reads lines until a blank line ends one event.
func readSSEFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var frame sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			return frame
		case strings.HasPrefix(line, "event: "):
			frame.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, ":"):
			frame.event = "comment"
			frame.data = strings.TrimSpace(strings.TrimPrefix(line, ":"))
		}
	}
}

func openSSE(t *testing.T, ctx context.Context, baseURL string, userID string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/sse/subscribe", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", userID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSSESubscribe_StreamsEvents(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp := openSSE(t, ctx, ts.URL, "7")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, max-age=0, must-revalidate", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	r := bufio.NewReader(resp.Body)
	established := readSSEFrame(t, r)
	assert.Equal(t, domain.EventConnectionEstablished, established.event)
	assert.Contains(t, established.data, `"userId":7`)
	require.True(t, srv.registry.IsOnline(7))

	require.True(t, srv.registry.Push(7, domain.Event{
		Name: domain.EventUnreadCountChanged,
		Data: domain.UnreadCountChanged{ConversationID: 3, Count: 2},
	}))
	frame := readSSEFrame(t, r)
	assert.Equal(t, domain.EventUnreadCountChanged, frame.event)
	assert.JSONEq(t, `{"conversationId":3,"count":2}`, frame.data)

	sent, pruned := srv.registry.Heartbeat(context.Background())
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, sseFrame{event: "comment", data: "heartbeat"}, readSSEFrame(t, r))
}

func TestSSESubscribe_ClientDisconnectUnregisters(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	resp := openSSE(t, ctx, ts.URL, "7")
	readSSEFrame(t, bufio.NewReader(resp.Body))
	require.True(t, srv.registry.IsOnline(7))

	cancel()

	assert.Eventually(t, func() bool { return !srv.registry.IsOnline(7) }, 5*time.Second, 10*time.Millisecond)
}

func TestSSESubscribe_ReplacementEndsOldStream(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	ctx := context.Background()
	first := openSSE(t, ctx, ts.URL, "7")
	firstReader := bufio.NewReader(first.Body)
	readSSEFrame(t, firstReader)

	second := openSSE(t, ctx, ts.URL, "7")
	secondReader := bufio.NewReader(second.Body)
	readSSEFrame(t, secondReader)

	// The first handler returns once its connection is closed, ending the body.
	_, err := firstReader.ReadString('\n')
	assert.Error(t, err)

	require.True(t, srv.registry.Push(7, domain.Event{Name: domain.EventNotification, Data: map[string]string{"kind": "x"}}))
	assert.Equal(t, domain.EventNotification, readSSEFrame(t, secondReader).event)
	assert.Equal(t, 1, srv.registry.Count())
}

func TestSSESubscribe_RequiresUser(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})

	rec := srv.do(http.MethodGet, "/api/sse/subscribe", 0, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, srv.registry.IsOnline(0))
}

func dialWS(t *testing.T, baseURL, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("X-User-ID", userID)

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/ws/subscribe"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWSFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWSSubscribe_StreamsEvents(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, "9")

	established := readWSFrame(t, conn)
	assert.Equal(t, domain.EventConnectionEstablished, established.Event)
	var payload domain.ConnectionEstablished
	require.NoError(t, json.Unmarshal(established.Data, &payload))
	assert.Equal(t, int64(9), payload.UserID)

	require.True(t, srv.registry.Push(9, domain.Event{
		Name: domain.EventConversationMarkedRead,
		Data: domain.ConversationMarkedRead{ConversationID: 3},
	}))
	frame := readWSFrame(t, conn)
	assert.Equal(t, domain.EventConversationMarkedRead, frame.Event)
	assert.JSONEq(t, `{"conversationId":3}`, string(frame.Data))
}

func TestWSSubscribe_HeartbeatIsPing(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, "9")
	readWSFrame(t, conn)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		pinged <- struct{}{}
		return nil
	})
	go func() {
		// Control frames are only processed while reading.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent, _ := srv.registry.Heartbeat(context.Background())
	assert.Equal(t, 1, sent)

	select {
	case <-pinged:
	case <-time.After(5 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestWSSubscribe_ClientCloseUnregisters(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, "9")
	readWSFrame(t, conn)
	require.True(t, srv.registry.IsOnline(9))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return !srv.registry.IsOnline(9) }, 5*time.Second, 10*time.Millisecond)
}

// brokenStream accepts headers but fails every body write, like a client
// that went away right after the request.
type brokenStream struct {
	header http.Header
	code   int
}

func (b *brokenStream) Header() http.Header       { return b.header }
func (b *brokenStream) WriteHeader(code int)      { b.code = code }
func (b *brokenStream) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (b *brokenStream) Flush()                    {}

func TestSSESubscribe_FailedInitialPushEndsStream(t *testing.T) {
	srv := newTestServer(t, &mockMessageService{})
	w := &brokenStream{header: http.Header{}}
	req := httptest.NewRequest(http.MethodGet, "/api/sse/subscribe", nil)
	req.Header.Set("X-User-ID", "7")

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.echo.ServeHTTP(w, req)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler kept the stream open after the initial push failed")
	}
	// Headers were already committed, so the failure cannot change the status.
	assert.Equal(t, http.StatusOK, w.code)
	assert.False(t, srv.registry.IsOnline(7))
	assert.Equal(t, 0, srv.registry.Count())
}
