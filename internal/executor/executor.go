// Package executor drives the physical plot: it walks the planned layer
// order segment by segment, keeps the job heartbeat fresh, and reacts to
// pause/abort requests between segments.
package executor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	jitterbug "github.com/lthibault/jitterbug/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/events"
	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/pkg/metrics"
)

// Camera is the recording collaborator the executor notifies on safe-abort.
type Camera interface {
	StopRecording(ctx context.Context, jobID string) error
}

type controlRequest int

const (
	controlNone controlRequest = iota
	controlPause
	controlResume
	controlAbort
)

// session is one running plot. The loop goroutine owns all device calls;
// control requests are observed between segments, so reaction latency is
// bounded by single-segment travel time.
type session struct {
	jobID uuid.UUID

	mu      sync.Mutex
	request controlRequest
	reason  string
	wake    chan struct{}
	done    chan struct{}
}

func (s *session) setRequest(r controlRequest, reason string) {
	s.mu.Lock()
	s.request = r
	s.reason = reason
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *session) takeRequest() (controlRequest, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, reason := s.request, s.reason
	s.request = controlNone
	return r, reason
}

type Executor struct {
	store   store.Store
	machine *fsm.Machine
	device  Device
	lease   *Lease
	bus     *events.EventProducer
	camera  Camera

	heartbeatInterval time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*session

	log *zap.SugaredLogger
}

func New(s store.Store, machine *fsm.Machine, device Device, lease *Lease, bus *events.EventProducer, camera Camera, heartbeatInterval time.Duration) *Executor {
	return &Executor{
		store:             s,
		machine:           machine,
		device:            device,
		lease:             lease,
		bus:               bus,
		camera:            camera,
		heartbeatInterval: heartbeatInterval,
		sessions:          make(map[uuid.UUID]*session),
		log:               zap.S().Named("executor"),
	}
}

// Start begins plotting a job that is already in the PLOTTING state. The plot
// runs on its own goroutine; Start returns once the session is registered.
func (e *Executor) Start(ctx context.Context, jobID uuid.UUID) error {
	e.mu.Lock()
	if _, running := e.sessions[jobID]; running {
		e.mu.Unlock()
		return errors.Errorf("job %s is already plotting", jobID)
	}
	sess := &session{
		jobID: jobID,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	e.sessions[jobID] = sess
	e.mu.Unlock()

	go e.run(ctx, sess)
	return nil
}

// Pause requests a pause. The loop confirms it by transitioning the job to
// PAUSED once the in-flight segment completes.
func (e *Executor) Pause(jobID uuid.UUID, reason string) error {
	sess, ok := e.session(jobID)
	if !ok {
		return errors.Errorf("job %s has no running plot", jobID)
	}
	sess.setRequest(controlPause, reason)
	return nil
}

// Resume wakes a paused session. The loop transitions the job back to
// PLOTTING and continues from the layer it stopped at.
func (e *Executor) Resume(jobID uuid.UUID) error {
	sess, ok := e.session(jobID)
	if !ok {
		return errors.Errorf("job %s has no running plot", jobID)
	}
	sess.setRequest(controlResume, "")
	return nil
}

// Abort requests an abort and blocks until the session has parked the device
// and released the lease.
func (e *Executor) Abort(ctx context.Context, jobID uuid.UUID, reason string) error {
	sess, ok := e.session(jobID)
	if !ok {
		// No running session: the job may be ARMED or orphaned after a
		// crash. Park and finalize directly.
		return e.SafeAbort(ctx, jobID, reason)
	}
	sess.setRequest(controlAbort, reason)
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) session(jobID uuid.UUID) (*session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[jobID]
	return s, ok
}

func (e *Executor) dropSession(sess *session) {
	e.mu.Lock()
	delete(e.sessions, sess.jobID)
	e.mu.Unlock()
	close(sess.done)
}

func (e *Executor) run(ctx context.Context, sess *session) {
	defer e.dropSession(sess)

	job, err := e.store.Job().Get(ctx, sess.jobID)
	if err != nil {
		e.log.Errorw("plot session cannot load job", "job_id", sess.jobID, "error", err)
		return
	}

	artifact, err := LoadArtifact(job.OptimizedPath)
	if err != nil {
		e.fail(ctx, job.ID, err.Error())
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.heartbeatLoop(hbCtx, job.ID)

	order := job.PlotOrderIDs()
	orderIndexByID := make(map[uuid.UUID]int, len(job.Layers))
	for i := range job.Layers {
		orderIndexByID[job.Layers[i].ID] = job.Layers[i].OrderIndex
	}

	totalSegments := artifact.TotalSegments()
	plotted := e.segmentsBefore(artifact, order, orderIndexByID, job.LastLayerIdx)

	for idx := job.LastLayerIdx; idx < len(order); idx++ {
		layer := artifact.LayerFor(order[idx], orderIndexByID[order[idx]])
		if layer == nil {
			e.fail(ctx, job.ID, "plot artifact is missing layer "+order[idx].String())
			return
		}

		for _, seg := range layer.Segments {
			switch req, reason := sess.takeRequest(); req {
			case controlAbort:
				e.finalize(ctx, job.ID, api.JobStateAborted, reason)
				return
			case controlPause:
				if !e.pauseUntilResumed(ctx, sess, job.ID, reason) {
					return
				}
			}

			if err := e.plotSegment(ctx, seg); err != nil {
				if ctx.Err() != nil {
					// Daemon shutdown: leave the job PLOTTING with a
					// stale heartbeat for recovery to pick up.
					e.log.Warnw("plot interrupted by shutdown", "job_id", job.ID)
					return
				}
				e.fail(ctx, job.ID, "device error: "+err.Error())
				return
			}
			plotted++
			metrics.IncreaseSegmentsMetric()
		}

		// Progress is committed per layer so a crash resumes at a layer
		// boundary, never mid-layer.
		if err := e.store.Job().UpdateProgress(ctx, job.ID, idx+1); err != nil {
			e.log.Errorw("progress update failed", "job_id", job.ID, "error", err)
		}
		e.publishProgress(job.ID, plotted, totalSegments, idx+1)
	}

	if err := e.device.PenUp(ctx); err != nil {
		e.log.Warnw("pen up after plot failed", "job_id", job.ID, "error", err)
	}
	if err := e.device.Home(ctx); err != nil {
		e.log.Warnw("homing after plot failed", "job_id", job.ID, "error", err)
	}

	if _, err := e.machine.Transition(ctx, job.ID, api.JobStateCompleted, "plot finished", nil); err != nil {
		e.log.Errorw("completion transition failed", "job_id", job.ID, "error", err)
		return
	}
	e.lease.Release(job.ID)
	e.stopRecording(ctx, job.ID)
}

// pauseUntilResumed transitions the job to PAUSED and blocks until resumed or
// aborted. Returns false when the session must stop.
func (e *Executor) pauseUntilResumed(ctx context.Context, sess *session, jobID uuid.UUID, reason string) bool {
	if err := e.device.PenUp(ctx); err != nil {
		e.log.Warnw("pen up on pause failed", "job_id", jobID, "error", err)
	}
	if _, err := e.machine.Transition(ctx, jobID, api.JobStatePaused, reason, nil); err != nil {
		e.log.Errorw("pause transition failed", "job_id", jobID, "error", err)
		return true
	}

	// The pending request is inspected before blocking: the wake channel may
	// still hold the token from the pause request itself, and a resume can
	// land between two checks. A wake with no new request just loops.
	for {
		switch req, reqReason := sess.takeRequest(); req {
		case controlAbort:
			e.finalize(ctx, jobID, api.JobStateAborted, reqReason)
			return false
		case controlResume:
			if _, err := e.machine.Transition(ctx, jobID, api.JobStatePlotting, "resumed", nil); err != nil {
				e.log.Errorw("resume transition failed", "job_id", jobID, "error", err)
				break
			}
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-sess.wake:
		}
	}
}

func (e *Executor) plotSegment(ctx context.Context, seg Segment) error {
	if err := e.device.PenUp(ctx); err != nil {
		return err
	}
	if err := e.device.MoveTo(ctx, seg.X1, seg.Y1); err != nil {
		return err
	}
	if err := e.device.PenDown(ctx); err != nil {
		return err
	}
	return e.device.MoveTo(ctx, seg.X2, seg.Y2)
}

func (e *Executor) heartbeatLoop(ctx context.Context, jobID uuid.UUID) {
	t := jitterbug.New(e.heartbeatInterval, &jitterbug.Norm{Stdev: 100 * time.Millisecond, Mean: 0})
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := e.store.Job().UpdateHeartbeat(ctx, jobID, time.Now()); err != nil {
				e.log.Warnw("heartbeat update failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (e *Executor) publishProgress(jobID uuid.UUID, plotted, total, lastLayerIdx int) {
	if e.bus == nil {
		return
	}
	fraction := 0.0
	if total > 0 {
		fraction = float64(plotted) / float64(total)
	}
	e.bus.PublishProgress(api.Event{
		JobId:    jobID,
		Fraction: fraction,
		Metadata: map[string]string{
			"last_layer_idx": strconv.Itoa(lastLayerIdx),
		},
	})
}

func (e *Executor) segmentsBefore(artifact *Artifact, order []uuid.UUID, orderIndexByID map[uuid.UUID]int, lastLayerIdx int) int {
	n := 0
	for i := 0; i < lastLayerIdx && i < len(order); i++ {
		if l := artifact.LayerFor(order[i], orderIndexByID[order[i]]); l != nil {
			n += len(l.Segments)
		}
	}
	return n
}

// fail parks the device and moves the job to FAILED.
func (e *Executor) fail(ctx context.Context, jobID uuid.UUID, reason string) {
	e.finalize(ctx, jobID, api.JobStateFailed, reason)
}

// SafeAbort parks the device and finalizes a non-running job: an ARMED job,
// or one orphaned by a crash. ARMED jobs land in FAILED because they never
// started plotting; everything else lands in ABORTED. Already-terminal jobs
// are left untouched, so repeated calls are safe.
func (e *Executor) SafeAbort(ctx context.Context, jobID uuid.UUID, reason string) error {
	job, err := e.store.Job().Get(ctx, jobID)
	if err != nil {
		return err
	}
	state := api.JobState(job.State)
	if state.IsTerminal() {
		return nil
	}

	target := api.JobStateAborted
	if state == api.JobStateArmed {
		target = api.JobStateFailed
	}
	e.finalize(ctx, jobID, target, reason)
	return nil
}

// Fail parks the device and forces the job to FAILED where the transition
// table permits it; PAUSED has no failed edge, so paused jobs end up ABORTED.
// Used by recovery when a job's record cannot be trusted. Idempotent like
// SafeAbort.
func (e *Executor) Fail(ctx context.Context, jobID uuid.UUID, reason string) error {
	job, err := e.store.Job().Get(ctx, jobID)
	if err != nil {
		return err
	}
	state := api.JobState(job.State)
	if state.IsTerminal() {
		return nil
	}

	target := api.JobStateFailed
	if state == api.JobStatePaused {
		target = api.JobStateAborted
	}
	e.finalize(ctx, jobID, target, reason)
	return nil
}

// finalize is the single exit path for every non-completion end of a plot:
// pen up, home, terminal transition, lease release, recording stop. Device
// park errors are logged but never block the terminal transition.
func (e *Executor) finalize(ctx context.Context, jobID uuid.UUID, target api.JobState, reason string) {
	if err := e.device.PenUp(ctx); err != nil {
		e.log.Warnw("pen up on abort failed", "job_id", jobID, "error", err)
	}
	if err := e.device.Home(ctx); err != nil {
		e.log.Warnw("homing on abort failed", "job_id", jobID, "error", err)
	}

	if _, err := e.machine.Transition(ctx, jobID, target, reason, nil); err != nil {
		e.log.Errorw("terminal transition failed",
			"job_id", jobID, "target", target, "error", err)
	}
	e.lease.Release(jobID)
	e.stopRecording(ctx, jobID)
}

func (e *Executor) stopRecording(ctx context.Context, jobID uuid.UUID) {
	if e.camera == nil {
		return
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.camera.StopRecording(stopCtx, jobID.String()); err != nil {
		e.log.Warnw("stopping recording failed", "job_id", jobID, "error", err)
	}
}
