package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/store"
)

// Checklist returns the configured pre-flight items merged with the job's
// recorded state. Items never touched by the operator show as not done.
func (s *JobService) Checklist(ctx context.Context, jobID uuid.UUID) ([]api.ChecklistItem, error) {
	if _, err := s.store.Job().Get(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}

	stored, err := s.store.Checklist().List(ctx, jobID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(stored))
	for i := range stored {
		done[stored[i].Key] = stored[i].Done
	}

	out := make([]api.ChecklistItem, 0, len(s.cfg.Plotter.ChecklistItems))
	for _, key := range s.cfg.Plotter.ChecklistItems {
		out = append(out, api.ChecklistItem{Key: key, Done: done[key]})
	}
	return out, nil
}

// SetChecklistItem records an operator toggling a pre-flight item. Unknown
// keys are rejected so typos cannot silently satisfy the pre-arm guard.
func (s *JobService) SetChecklistItem(ctx context.Context, jobID uuid.UUID, key string, done bool) error {
	if !funk.ContainsString(s.cfg.Plotter.ChecklistItems, key) {
		return errors.Errorf("unknown checklist item %q", key)
	}
	if _, err := s.store.Job().Get(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(jobID)
		}
		return err
	}
	return s.store.Checklist().SetItem(ctx, jobID, key, done)
}
