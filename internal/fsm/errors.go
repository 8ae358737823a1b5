package fsm

import (
	"fmt"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/guard"
)

// ErrTransitionRejected is returned when the requested target state is not in
// the allowed set for the job's current state. A caller error; never retried.
type ErrTransitionRejected struct {
	From api.JobState
	To   api.JobState
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// ErrGuardFailed is returned when a guard blocks a transition. Result carries
// the guard's structured reason for user-facing messages.
type ErrGuardFailed struct {
	Result guard.Result
}

func (e *ErrGuardFailed) Error() string {
	return fmt.Sprintf("guard %s failed: %s", e.Result.Guard, e.Result.Reason)
}
