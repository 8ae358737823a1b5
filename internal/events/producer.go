// Package events is the monitor bus: a buffered, fire-and-forget fan-out of
// job transition and progress events. Publishing never blocks the FSM; slow
// subscribers are dropped rather than back-pressuring the core.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/plotterd/plotterd/api/v1alpha1"
)

const (
	TransitionMessageKind string = "plotterd.events.transition"
	ProgressMessageKind   string = "plotterd.events.progress"
	defaultTopic          string = "plotterd.events"
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e api.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with a buffer.
// The buffer stores pending events so the caller is never blocked if the
// writer takes time to deliver.
type EventProducer struct {
	buffer           *buffer
	startConsumingCh chan any
	doneCh           chan any
	writer           Writer
	topic            string
}

// ProducerOption customizes an EventProducer at construction time.
type ProducerOption func(e *EventProducer)

// WithTopic overrides the topic passed to the writer on every delivery.
func WithTopic(topic string) ProducerOption {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

func NewEventProducer(w Writer, opts ...ProducerOption) *EventProducer {
	ep := &EventProducer{
		buffer: newBuffer(),
		// Buffered so a wake sent between the consumer's empty check and
		// its select is never lost.
		startConsumingCh: make(chan any, 1),
		doneCh:           make(chan any),
		writer:           w,
		topic:            defaultTopic,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

// PublishTransition pushes a committed transition onto the bus. Errors are
// logged only; a transition is never failed by its event.
func (ep *EventProducer) PublishTransition(e api.Event) {
	e.Type = api.EventTypeTransition
	ep.publish(TransitionMessageKind, e)
}

// PublishProgress pushes an in-flight progress update onto the bus.
func (ep *EventProducer) PublishProgress(e api.Event) {
	e.Type = api.EventTypeProgress
	ep.publish(ProgressMessageKind, e)
}

func (ep *EventProducer) publish(kind string, e api.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		zap.S().Named("event_producer").Errorw("failed to encode event", "error", err)
		return
	}

	ep.buffer.PushBack(&message{Kind: kind, Data: data})

	// Wake on every publish. The channel holds one pending wake, so either
	// this send lands or a wake is already queued for the consumer.
	select {
	case ep.startConsumingCh <- struct{}{}:
	default:
	}
}

func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		ep.doneCh <- struct{}{}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		zap.S().Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")

	return nil
}

func (ep *EventProducer) run() {
	for {
		select {
		case <-ep.doneCh:
			return
		default:
		}

		if ep.buffer.Size() == 0 {
			select {
			case <-ep.startConsumingCh:
			case <-ep.doneCh:
				return
			}
		}

		msg := ep.buffer.Pop()
		if msg == nil {
			continue
		}

		var e api.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			zap.S().Named("event_producer").Errorw("dropping malformed event", "error", err)
			continue
		}

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			zap.S().Named("event_producer").Errorw("failed to deliver event", "error", err, "event", e)
		}
	}
}
