package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

// Checklist fails unless every configured pre-flight item (paper secured,
// origin set, pen tested, ...) is marked complete for the job.
type Checklist struct {
	checklist store.Checklist
	required  []string
}

func NewChecklist(c store.Checklist, required []string) *Checklist {
	return &Checklist{checklist: c, required: required}
}

func (g *Checklist) Name() string { return "checklist" }

func (g *Checklist) Check(ctx context.Context, job *model.Job) Result {
	missing, err := g.checklist.Missing(ctx, job.ID, g.required)
	if err != nil {
		return fail(g.Name(), fmt.Sprintf("cannot read checklist: %v", err), nil)
	}

	if len(missing) > 0 {
		return fail(g.Name(),
			fmt.Sprintf("pre-flight checklist incomplete: %s", strings.Join(missing, ", ")),
			map[string]string{"missing": strings.Join(missing, ",")})
	}

	return pass(g.Name())
}
