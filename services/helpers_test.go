package services

import (
	"context"
	"meet-relay/contract"
	"meet-relay/domain/event"
	"meet-relay/errors"
	"sync"

	"github.com/samber/lo"
)

// sink is an in-memory channel. Once closed it refuses events like a dead socket.
type sink struct {
	mu     sync.Mutex
	events []event.Event
	closed bool
	code   contract.CloseCode
	reason string
	// onEvent runs after each accepted event, outside the lock.
	onEvent func(e event.Event)
}

var _ contract.Channel = (*sink)(nil)

func (s *sink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrChannelClosed
	}
	s.events = append(s.events, e)
	onEvent := s.onEvent
	s.mu.Unlock()

	if onEvent != nil {
		onEvent(e)
	}
	return nil
}

func (s *sink) Close(code contract.CloseCode, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrChannelClosed
	}
	s.closed = true
	s.code = code
	s.reason = reason
	return nil
}

func (s *sink) RemoteAddr() string { return "test" }

func (s *sink) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *sink) OfType(t event.Type) []event.Event {
	return lo.Filter(s.Events(), func(e event.Event, _ int) bool { return e.Type == t })
}

// Errors returns the text of every error event received.
func (s *sink) Errors() []string {
	return lo.Map(s.OfType(event.ErrorType), func(e event.Event, _ int) string {
		return e.Payload.(event.Error).Message
	})
}

func (s *sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *sink) Closed() (bool, contract.CloseCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.code
}
