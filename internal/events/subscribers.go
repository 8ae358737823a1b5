package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
)

const subscriberBufferSize = 64

// SubscriberWriter fans events out to in-process subscribers (the SSE layer).
// Delivery is non-blocking: a subscriber whose channel is full misses the
// event instead of stalling the bus.
type SubscriberWriter struct {
	lock        sync.RWMutex
	subscribers map[uuid.UUID]chan api.Event
}

func NewSubscriberWriter() *SubscriberWriter {
	return &SubscriberWriter{
		subscribers: make(map[uuid.UUID]chan api.Event),
	}
}

// Subscribe registers a new observer. The returned cancel function must be
// called when the observer goes away.
func (s *SubscriberWriter) Subscribe() (<-chan api.Event, func()) {
	id := uuid.New()
	ch := make(chan api.Event, subscriberBufferSize)

	s.lock.Lock()
	s.subscribers[id] = ch
	s.lock.Unlock()

	cancel := func() {
		s.lock.Lock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
		s.lock.Unlock()
	}
	return ch, cancel
}

func (s *SubscriberWriter) Write(_ context.Context, _ string, e api.Event) error {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
			zap.S().Named("monitor_bus").Debugw("dropping event for slow subscriber", "subscriber", id)
		}
	}
	return nil
}

func (s *SubscriberWriter) Close(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	return nil
}

// MultiWriter delivers each event to every underlying writer.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(ctx context.Context, topic string, e api.Event) error {
	for _, w := range m.writers {
		if err := w.Write(ctx, topic, e); err != nil {
			zap.S().Named("monitor_bus").Warnw("writer failed", "error", err)
		}
	}
	return nil
}

func (m *MultiWriter) Close(ctx context.Context) error {
	var firstErr error
	for _, w := range m.writers {
		if err := w.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
