// Package recovery reconciles jobs the daemon left mid-flight: after a crash
// or power loss, jobs stuck in ARMED, PLOTTING or PAUSED with a stale
// heartbeat are either normalized to a resumable state or safely aborted.
package recovery

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/executor"
	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

type Manager struct {
	store       store.Store
	machine     *fsm.Machine
	exec        *executor.Executor
	lease       *executor.Lease
	gracePeriod time.Duration
	log         *zap.SugaredLogger
}

func NewManager(s store.Store, machine *fsm.Machine, exec *executor.Executor, lease *executor.Lease, gracePeriod time.Duration) *Manager {
	return &Manager{
		store:       s,
		machine:     machine,
		exec:        exec,
		lease:       lease,
		gracePeriod: gracePeriod,
		log:         zap.S().Named("recovery"),
	}
}

// DetectInterrupted lists jobs in a device-holding state whose heartbeat is
// older than the grace period. Read-only: detection never mutates anything.
func (m *Manager) DetectInterrupted(ctx context.Context) (model.JobList, error) {
	cutoff := time.Now().Add(-m.gracePeriod)
	filter := store.NewJobQueryFilter().
		ByState(string(api.JobStateArmed), string(api.JobStatePlotting), string(api.JobStatePaused)).
		ByHeartbeatOlderThan(cutoff)
	return m.store.Job().List(ctx, filter, store.NewJobQueryOptions().WithSortOrder(store.SortByUpdatedTime))
}

// StartupScan runs detection and recovers every interrupted job. Called once
// when the daemon boots, before the API starts accepting lifecycle requests.
func (m *Manager) StartupScan(ctx context.Context) error {
	jobs, err := m.DetectInterrupted(ctx)
	if err != nil {
		return errors.Wrap(err, "detecting interrupted jobs")
	}
	for i := range jobs {
		if err := m.Recover(ctx, &jobs[i]); err != nil {
			m.log.Errorw("recovering interrupted job failed",
				"job_id", jobs[i].ID, "state", jobs[i].State, "error", err)
		}
	}
	return nil
}

// Recover normalizes one interrupted job:
//
//   - ARMED jobs never started plotting; they are safe-aborted.
//   - PLOTTING jobs are moved to PAUSED so the operator can inspect the
//     physical result before resuming. The device lease is re-acquired.
//   - PAUSED jobs only get their lease back.
//
// Jobs whose journal tail disagrees with their state, or whose plot artifact
// is gone, cannot be trusted and are forced to FAILED (ABORTED for PAUSED,
// which has no failed edge). Recover is idempotent: a job already normalized
// or terminal is left alone.
func (m *Manager) Recover(ctx context.Context, job *model.Job) error {
	state := api.JobState(job.State)
	if state.IsTerminal() {
		return nil
	}

	if err := m.validate(ctx, job); err != nil {
		m.log.Warnw("interrupted job failed validation",
			"job_id", job.ID, "state", job.State, "reason", err)
		return m.exec.Fail(ctx, job.ID, "recovery: "+err.Error())
	}

	switch state {
	case api.JobStateArmed:
		return m.exec.SafeAbort(ctx, job.ID, "recovery: device was armed when the daemon stopped")

	case api.JobStatePlotting:
		if !m.lease.TryAcquire(job.ID) {
			return errors.Errorf("device lease is held by another job")
		}
		_, err := m.machine.Transition(ctx, job.ID, api.JobStatePaused, "recovered after interruption", map[string]string{
			"recovery.last_layer_idx": strconv.Itoa(job.LastLayerIdx),
		})
		if err != nil {
			m.lease.Release(job.ID)
			return err
		}
		m.log.Infow("interrupted plot paused for inspection",
			"job_id", job.ID, "last_layer_idx", job.LastLayerIdx)
		return nil

	case api.JobStatePaused:
		if !m.lease.TryAcquire(job.ID) {
			return errors.Errorf("device lease is held by another job")
		}
		return nil

	default:
		return nil
	}
}

// validate cross-checks the journal tail against the job state and verifies
// the plot artifact still exists.
func (m *Manager) validate(ctx context.Context, job *model.Job) error {
	last, err := m.store.Journal().Last(ctx, job.ID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return errors.New("job has no journal")
		}
		return err
	}
	if last.ToState != job.State {
		return errors.Errorf("journal tail records state %s, job is in %s", last.ToState, job.State)
	}

	if job.OptimizedPath != "" {
		if _, err := os.Stat(job.OptimizedPath); err != nil {
			return errors.Errorf("plot artifact %s is gone", job.OptimizedPath)
		}
	}
	return nil
}
