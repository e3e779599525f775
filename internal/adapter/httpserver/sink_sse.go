package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pscheid92/projectpulse/internal/realtime"
)

// sseSink writes Server-Sent Events frames to a streaming response.
type sseSink struct {
	w            io.Writer
	rc           *http.ResponseController
	writeTimeout time.Duration
}

var _ realtime.Sink = (*sseSink)(nil)

func newSSESink(w http.ResponseWriter, writeTimeout time.Duration) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}
}

func (s *sseSink) WriteEvent(name string, data []byte) error {
	return s.write(func() error {
		_, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
		return err
	})
}

// WriteHeartbeat sends a comment line, which EventSource clients ignore.
func (s *sseSink) WriteHeartbeat() error {
	return s.write(func() error {
		_, err := io.WriteString(s.w, ": heartbeat\n\n")
		return err
	})
}

// Close is a no-op; the handler ends the response once the connection is done.
func (s *sseSink) Close() error {
	return nil
}

func (s *sseSink) write(frame func() error) error {
	// Deadlines are wall-clock on the socket.
	if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := frame(); err != nil {
		return fmt.Errorf("failed to write sse frame: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush sse frame: %w", err)
	}
	return nil
}
