// Package guard implements the precondition checks that gate job state
// transitions. Guards are registered into named categories; the FSM binds
// each transition target to zero or more categories.
package guard

import (
	"context"

	"github.com/plotterd/plotterd/internal/store/model"
)

type Outcome string

const (
	OutcomePass     Outcome = "PASS"
	OutcomeSoftFail Outcome = "SOFT_FAIL"
	OutcomeFail     Outcome = "FAIL"
)

// Guard categories. A transition runs every guard of every category bound
// to it.
const (
	CategoryPreOptimize = "pre_optimize"
	CategoryPreArm      = "pre_arm"
	CategoryPrePlot     = "pre_plot"
)

// Result is the outcome of a single guard check. Reason is human readable
// and suitable for direct CLI/UI display; Context carries structured
// expected-vs-actual detail.
type Result struct {
	Guard   string            `json:"guard"`
	Outcome Outcome           `json:"outcome"`
	Reason  string            `json:"reason,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

type Guard interface {
	Name() string
	Check(ctx context.Context, job *model.Job) Result
}

type Registry struct {
	categories map[string][]Guard
}

func NewRegistry() *Registry {
	return &Registry{categories: make(map[string][]Guard)}
}

func (r *Registry) Register(category string, g Guard) {
	r.categories[category] = append(r.categories[category], g)
}

// Check runs every guard in the given categories against the job and returns
// all results, FAIL included. Guards never mutate the job.
func (r *Registry) Check(ctx context.Context, categories []string, job *model.Job) []Result {
	var results []Result
	for _, category := range categories {
		for _, g := range r.categories[category] {
			results = append(results, g.Check(ctx, job))
		}
	}
	return results
}

// FirstFailure returns the first FAIL result, if any. SOFT_FAIL never blocks.
func FirstFailure(results []Result) (Result, bool) {
	for _, res := range results {
		if res.Outcome == OutcomeFail {
			return res, true
		}
	}
	return Result{}, false
}

func pass(name string) Result {
	return Result{Guard: name, Outcome: OutcomePass}
}

func fail(name, reason string, context map[string]string) Result {
	return Result{Guard: name, Outcome: OutcomeFail, Reason: reason, Context: context}
}

func softFail(name, reason string) Result {
	return Result{Guard: name, Outcome: OutcomeSoftFail, Reason: reason}
}
