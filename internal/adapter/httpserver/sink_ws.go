package httpserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/projectpulse/internal/realtime"
)

// wsFrame is the text frame carrying one event.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsSink writes events as JSON text frames and heartbeats as ping frames.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

var _ realtime.Sink = (*wsSink)(nil)

func newWSSink(conn *websocket.Conn, writeTimeout time.Duration) *wsSink {
	return &wsSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *wsSink) WriteEvent(name string, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(wsFrame{Event: name, Data: data}); err != nil {
		return fmt.Errorf("failed to write websocket frame: %w", err)
	}
	return nil
}

func (s *wsSink) WriteHeartbeat() error {
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("failed to write websocket ping: %w", err)
	}
	return nil
}

// Close sends a normal close frame before dropping the socket, which also
// ends the handler's read loop.
func (s *wsSink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}
