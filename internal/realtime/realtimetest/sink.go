// Package realtimetest provides an in-memory realtime.Sink for tests.
package realtimetest

import (
	"encoding/json"
	"errors"
	"sync"
)

var ErrBroken = errors.New("sink broken")

// Event is one recorded WriteEvent call.
type Event struct {
	Name string
	Data json.RawMessage
}

// Sink records everything written to it. Failures can be switched on per
// write kind to simulate a peer that went away.
type Sink struct {
	mu             sync.Mutex
	events         []Event
	heartbeats     int
	failEvents     bool
	failHeartbeats bool
	closed         bool
}

func NewSink() *Sink { return &Sink{} }

// NewBrokenSink fails every write.
func NewBrokenSink() *Sink { return &Sink{failEvents: true, failHeartbeats: true} }

func (s *Sink) WriteEvent(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEvents {
		return ErrBroken
	}
	s.events = append(s.events, Event{Name: name, Data: append(json.RawMessage(nil), data...)})
	return nil
}

func (s *Sink) WriteHeartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHeartbeats {
		return ErrBroken
	}
	s.heartbeats++
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Break makes every following write fail.
func (s *Sink) Break() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEvents = true
	s.failHeartbeats = true
}

// FailHeartbeats makes heartbeats fail while events still succeed.
func (s *Sink) FailHeartbeats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failHeartbeats = true
}

func (s *Sink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// EventsNamed returns recorded events with the given name, in order.
func (s *Sink) EventsNamed(name string) []Event {
	var out []Event
	for _, ev := range s.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Sink) Heartbeats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats
}

func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
