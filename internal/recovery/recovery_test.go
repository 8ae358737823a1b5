package recovery_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/config"
	"github.com/plotterd/plotterd/internal/executor"
	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/guard"
	"github.com/plotterd/plotterd/internal/recovery"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

type fixture struct {
	store store.Store
	mgr   *recovery.Manager
	lease *executor.Lease
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.InitDB(config.NewDefault())
	require.NoError(t, err)
	s := store.NewStore(db)
	require.NoError(t, s.InitialMigration())
	t.Cleanup(func() { s.Close() })

	machine := fsm.NewMachine(s, guard.NewRegistry(), nil, nil)
	lease := executor.NewLease()
	exec := executor.New(s, machine, executor.NewSimDevice(0), lease, nil, nil, time.Second)
	mgr := recovery.NewManager(s, machine, exec, lease, time.Minute)

	return &fixture{store: s, mgr: mgr, lease: lease}
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(executor.Artifact{})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "plot.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// seedJob creates a job with a matching journal tail and the given heartbeat.
func (f *fixture) seedJob(t *testing.T, state api.JobState, heartbeat time.Time, artifactPath string) uuid.UUID {
	t.Helper()
	hb := heartbeat
	job := model.Job{
		ID:            uuid.New(),
		Name:          "interrupted",
		State:         string(state),
		PaperRef:      "a4",
		PlanMode:      "preserve_order",
		SourcePath:    artifactPath,
		OptimizedPath: artifactPath,
		HeartbeatAt:   &hb,
	}
	created, err := f.store.Job().Create(context.Background(), job)
	require.NoError(t, err)

	_, err = f.store.Journal().Append(context.Background(), model.JournalEntry{
		JobID: created.ID, ToState: string(state), Reason: "seed",
	})
	require.NoError(t, err)
	return created.ID
}

func TestDetectInterruptedIsReadOnly(t *testing.T) {
	f := newFixture(t)
	artifact := writeArtifact(t)

	stale := f.seedJob(t, api.JobStatePlotting, time.Now().Add(-time.Hour), artifact)
	f.seedJob(t, api.JobStatePlotting, time.Now(), artifact)
	f.seedJob(t, api.JobStateReady, time.Now().Add(-time.Hour), artifact)

	interrupted, err := f.mgr.DetectInterrupted(context.Background())
	require.NoError(t, err)
	require.Len(t, interrupted, 1)
	require.Equal(t, stale, interrupted[0].ID)

	// Detection must not have changed the job.
	job, err := f.store.Job().Get(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStatePlotting), job.State)
}

func TestRecoverPausesInterruptedPlot(t *testing.T) {
	f := newFixture(t)
	artifact := writeArtifact(t)
	id := f.seedJob(t, api.JobStatePlotting, time.Now().Add(-time.Hour), artifact)

	job, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Recover(context.Background(), job))

	got, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStatePaused), got.State)

	holder, held := f.lease.Holder()
	require.True(t, held)
	require.Equal(t, id, holder)

	// Journal still matches the state after recovery.
	last, err := f.store.Journal().Last(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, got.State, last.ToState)
}

func TestRecoverAbortsArmedJob(t *testing.T) {
	f := newFixture(t)
	artifact := writeArtifact(t)
	id := f.seedJob(t, api.JobStateArmed, time.Now().Add(-time.Hour), artifact)

	job, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Recover(context.Background(), job))

	got, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStateFailed), got.State)
}

func TestRecoverAbortsWhenArtifactIsGone(t *testing.T) {
	f := newFixture(t)
	id := f.seedJob(t, api.JobStatePaused, time.Now().Add(-time.Hour), "/nonexistent/plot.json")

	job, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Recover(context.Background(), job))

	got, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStateAborted), got.State)
}

func TestRecoverFailsOnJournalMismatch(t *testing.T) {
	f := newFixture(t)
	artifact := writeArtifact(t)
	id := f.seedJob(t, api.JobStatePlotting, time.Now().Add(-time.Hour), artifact)

	// Fake a torn write: journal tail says paused, job says plotting.
	_, err := f.store.Journal().Append(context.Background(), model.JournalEntry{
		JobID: id, ToState: string(api.JobStatePaused), Reason: "torn",
	})
	require.NoError(t, err)

	job, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Recover(context.Background(), job))

	got, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStateFailed), got.State)
}

func TestRecoverIsIdempotent(t *testing.T) {
	f := newFixture(t)
	artifact := writeArtifact(t)
	id := f.seedJob(t, api.JobStatePaused, time.Now().Add(-time.Hour), artifact)

	for i := 0; i < 2; i++ {
		job, err := f.store.Job().Get(context.Background(), id)
		require.NoError(t, err)
		require.NoError(t, f.mgr.Recover(context.Background(), job))
	}

	got, err := f.store.Job().Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStatePaused), got.State)
	holder, held := f.lease.Holder()
	require.True(t, held)
	require.Equal(t, id, holder)
}

func TestStartupScanRecoversEverything(t *testing.T) {
	f := newFixture(t)
	artifact := writeArtifact(t)

	plotting := f.seedJob(t, api.JobStatePlotting, time.Now().Add(-time.Hour), artifact)
	armed := f.seedJob(t, api.JobStateArmed, time.Now().Add(-time.Hour), artifact)

	require.NoError(t, f.mgr.StartupScan(context.Background()))

	got, err := f.store.Job().Get(context.Background(), plotting)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStatePaused), got.State)

	got, err = f.store.Job().Get(context.Background(), armed)
	require.NoError(t, err)
	require.Equal(t, string(api.JobStateFailed), got.State)
}
