package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

// Setup holds the physical expectations read from the configuration source.
type Setup struct {
	PaperSize        string
	PaperOrientation string
}

// PhysicalSetup compares the job's required paper and pen-layer assignments
// against the configured device state. Mismatches fail with an
// expected-vs-actual reason usable for user-facing messages.
type PhysicalSetup struct {
	store store.Store
	setup Setup
}

func NewPhysicalSetup(s store.Store, setup Setup) *PhysicalSetup {
	return &PhysicalSetup{store: s, setup: setup}
}

func (g *PhysicalSetup) Name() string { return "physical_setup" }

func (g *PhysicalSetup) Check(ctx context.Context, job *model.Job) Result {
	if job.PaperRef != g.setup.PaperSize {
		return fail(g.Name(),
			fmt.Sprintf("paper mismatch: job requires %q, device is loaded with %q", job.PaperRef, g.setup.PaperSize),
			map[string]string{"expected": job.PaperRef, "actual": g.setup.PaperSize})
	}

	if job.PaperOrientation != "" && job.PaperOrientation != g.setup.PaperOrientation {
		return fail(g.Name(),
			fmt.Sprintf("orientation mismatch: job requires %q, device is set to %q", job.PaperOrientation, g.setup.PaperOrientation),
			map[string]string{"expected": job.PaperOrientation, "actual": g.setup.PaperOrientation})
	}

	for i := range job.Layers {
		layer := &job.Layers[i]
		if layer.PenID == nil {
			return fail(g.Name(),
				fmt.Sprintf("layer %q has no pen assigned", layer.Name),
				map[string]string{"layer": layer.ID.String()})
		}
		if _, err := g.store.Pen().Get(ctx, *layer.PenID); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return fail(g.Name(),
					fmt.Sprintf("layer %q references unknown pen %s", layer.Name, layer.PenID),
					map[string]string{"layer": layer.ID.String(), "pen": layer.PenID.String()})
			}
			return fail(g.Name(), fmt.Sprintf("cannot verify pen for layer %q: %v", layer.Name, err), nil)
		}
	}

	return pass(g.Name())
}
