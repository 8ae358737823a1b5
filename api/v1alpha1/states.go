package v1alpha1

// JobState is the lifecycle state of a plot job.
type JobState string

const (
	JobStateNew       JobState = "new"
	JobStateQueued    JobState = "queued"
	JobStateAnalyzed  JobState = "analyzed"
	JobStateOptimized JobState = "optimized"
	JobStateReady     JobState = "ready"
	JobStateArmed     JobState = "armed"
	JobStatePlotting  JobState = "plotting"
	JobStatePaused    JobState = "paused"
	JobStateCompleted JobState = "completed"
	JobStateAborted   JobState = "aborted"
	JobStateFailed    JobState = "failed"
)

// JobStates lists every defined state. Used by the exhaustive transition tests
// and the state gauge collector.
var JobStates = []JobState{
	JobStateNew,
	JobStateQueued,
	JobStateAnalyzed,
	JobStateOptimized,
	JobStateReady,
	JobStateArmed,
	JobStatePlotting,
	JobStatePaused,
	JobStateCompleted,
	JobStateAborted,
	JobStateFailed,
}

func StringToJobState(s string) JobState {
	for _, state := range JobStates {
		if s == string(state) {
			return state
		}
	}
	return JobStateNew
}

// IsTerminal reports whether the state is final. Terminal jobs are immutable
// except for recovery annotating a failure reason.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateAborted, JobStateFailed:
		return true
	}
	return false
}

// RequiresHeartbeat reports whether a job in this state holds the device and
// must keep its liveness timestamp fresh.
func (s JobState) RequiresHeartbeat() bool {
	switch s {
	case JobStateArmed, JobStatePlotting, JobStatePaused:
		return true
	}
	return false
}

// PlanMode selects how the multi-pen planner orders layers.
type PlanMode string

const (
	// PlanModePreserveOrder keeps the original document order. Used when
	// ink-overlap correctness matters more than plotting speed.
	PlanModePreserveOrder PlanMode = "preserve_order"
	// PlanModeOptimize groups layers by pen to minimize physical pen swaps.
	PlanModeOptimize PlanMode = "optimize"
)
