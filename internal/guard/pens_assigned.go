package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

// PensAssigned requires every layer to carry a known pen before the plan is
// optimized. Catching an unassigned layer here avoids spending optimizer time
// on a job that cannot be armed.
type PensAssigned struct {
	store store.Store
}

func NewPensAssigned(s store.Store) *PensAssigned {
	return &PensAssigned{store: s}
}

func (g *PensAssigned) Name() string { return "pens_assigned" }

func (g *PensAssigned) Check(ctx context.Context, job *model.Job) Result {
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
