package events

import (
	"context"

	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
)

// StdoutWriter logs every event through the global logger. It is the
// fallback sink while no monitor client is connected.
type StdoutWriter struct{}

func (s *StdoutWriter) Write(_ context.Context, topic string, e api.Event) error {
	zap.S().Named("events").Infow("event",
		"topic", topic, "type", e.Type, "job", e.JobId,
		"to", e.ToState, "fraction", e.Fraction)
	return nil
}

func (s *StdoutWriter) Close(_ context.Context) error {
	return nil
}
