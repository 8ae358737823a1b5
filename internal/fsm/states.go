package fsm

import (
	api "github.com/plotterd/plotterd/api/v1alpha1"
)

// allowedTransitions is the single authority on which transitions exist.
// Callers never enforce this themselves; Transition rejects anything not
// listed here.
//
// NEW and QUEUED are entry states. The NEW/QUEUED -> READY fast path is for
// pristine, pre-optimized input that skips analysis and optimization.
var allowedTransitions = map[api.JobState][]api.JobState{
	api.JobStateNew:       {api.JobStateAnalyzed, api.JobStateReady},
	api.JobStateQueued:    {api.JobStateAnalyzed, api.JobStateReady},
	api.JobStateAnalyzed:  {api.JobStateOptimized, api.JobStateFailed},
	api.JobStateOptimized: {api.JobStateReady, api.JobStateFailed},
	api.JobStateReady:     {api.JobStateQueued, api.JobStateArmed},
	api.JobStateArmed:     {api.JobStatePlotting, api.JobStateFailed},
	api.JobStatePlotting:  {api.JobStateCompleted, api.JobStatePaused, api.JobStateAborted, api.JobStateFailed},
	api.JobStatePaused:    {api.JobStatePlotting, api.JobStateAborted},
	api.JobStateCompleted: {},
	api.JobStateAborted:   {},
	api.JobStateFailed:    {},
}

// Allowed reports whether from -> to is a defined transition.
func Allowed(from, to api.JobState) bool {
	for _, target := range allowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the legal target states for a given state.
func AllowedTargets(from api.JobState) []api.JobState {
	return allowedTransitions[from]
}
