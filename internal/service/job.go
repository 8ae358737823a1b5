package service

import (
	"context"
	"math"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/config"
	"github.com/plotterd/plotterd/internal/executor"
	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/optimizer"
	"github.com/plotterd/plotterd/internal/planner"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

// JobService coordinates the job lifecycle: it owns every composite
// operation that spans the state machine plus another collaborator (the
// optimizer binary, the device lease, the execution loop).
type JobService struct {
	store   store.Store
	machine *fsm.Machine
	exec    *executor.Executor
	lease   *executor.Lease
	opt     optimizer.Optimizer
	cfg     *config.Config
	log     *zap.SugaredLogger
}

func NewJobService(s store.Store, machine *fsm.Machine, exec *executor.Executor, lease *executor.Lease, opt optimizer.Optimizer, cfg *config.Config) *JobService {
	return &JobService{
		store:   s,
		machine: machine,
		exec:    exec,
		lease:   lease,
		opt:     opt,
		cfg:     cfg,
		log:     zap.S().Named("service"),
	}
}

// CreateJob persists the job in NEW together with its genesis journal entry,
// in one transaction. Every job has a journal from the moment it exists.
func (s *JobService) CreateJob(ctx context.Context, create *api.JobCreate) (*api.Job, error) {
	job := model.NewJobFromApiCreateResource(create)
	if create.Pristine {
		// Pre-optimized artifact: the external optimizer run is skipped
		// later and the source is plotted as-is.
		job.OptimizedPath = job.SourcePath
	}

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	created, err := s.store.Job().Create(txCtx, *job)
	if err != nil {
		_, _ = store.Rollback(txCtx)
		return nil, err
	}
	genesis := model.JournalEntry{
		JobID:   created.ID,
		ToState: string(api.JobStateNew),
		Reason:  "created",
	}
	if _, err := s.store.Journal().Append(txCtx, genesis); err != nil {
		_, _ = store.Rollback(txCtx)
		return nil, err
	}
	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}

	s.log.Infow("job created", "job_id", created.ID, "name", created.Name, "layers", len(created.Layers))
	out := JobToApi(created)
	return &out, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	out := JobToApi(job)
	return &out, nil
}

func (s *JobService) ListJobs(ctx context.Context, states []string) (api.JobList, error) {
	filter := store.NewJobQueryFilter()
	if len(states) > 0 {
		filter = filter.ByState(states...)
	}
	jobs, err := s.store.Job().List(ctx, filter, store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		return nil, err
	}
	return JobListToApi(jobs), nil
}

// DeleteJob removes a job and its layers. Jobs holding the device must be
// aborted first.
func (s *JobService) DeleteJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(id)
		}
		return err
	}
	if api.JobState(job.State).RequiresHeartbeat() {
		return NewErrJobNotDeletable(id, job.State)
	}
	return s.store.Job().Delete(ctx, id)
}

// AnalyzeJob reads the source artifact, derives per-layer geometry counters
// and moves the job to ANALYZED. Valid from NEW and from QUEUED, so a
// re-queued job can be re-analyzed after its artifact changed.
func (s *JobService) AnalyzeJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	artifact, err := executor.LoadArtifact(job.SourcePath)
	if err != nil {
		failed, ferr := s.machine.Transition(ctx, id, api.JobStateFailed, "analysis: "+err.Error(), nil)
		if ferr != nil {
			return nil, ferr
		}
		out := JobToApi(failed)
		return &out, nil
	}

	for i := range job.Layers {
		s.analyzeLayer(&job.Layers[i], artifact)
	}
	if _, err := s.store.Job().Update(ctx, job); err != nil {
		return nil, err
	}

	updated, err := s.machine.Transition(ctx, id, api.JobStateAnalyzed, "analysis complete", nil)
	if err != nil {
		return nil, err
	}
	out := JobToApi(updated)
	return &out, nil
}

func (s *JobService) analyzeLayer(layer *model.Layer, artifact *executor.Artifact) {
	var f model.LayerFeatures
	if al := artifact.LayerFor(layer.ID, layer.OrderIndex); al != nil {
		f.SegmentCount = len(al.Segments)
		// Each segment is one pen-down stroke, so lifts equal segments.
		f.PenLiftCount = len(al.Segments)
		for _, seg := range al.Segments {
			f.PathLengthMM += math.Hypot(seg.X2-seg.X1, seg.Y2-seg.Y1)
		}
	}
	layer.SetFeatureStats(f)
}

// ApplyOptimizations runs the planner (ANALYZED -> OPTIMIZED), invokes the
// external optimizer on the source artifact, and finishes at READY. Planner
// rejection surfaces as a guard failure; an optimizer crash fails the job.
func (s *JobService) ApplyOptimizations(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.machine.Transition(ctx, id, api.JobStateOptimized, "plan computed", nil)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	if job.OptimizedPath == "" {
		dst := filepath.Join(s.cfg.Plotter.WorkDir, "optimized-"+id.String()+".json")
		if err := s.opt.Optimize(ctx, job.SourcePath, dst, s.cfg.Plotter.OptimizerPreset); err != nil {
			failed, ferr := s.machine.Transition(ctx, id, api.JobStateFailed, "optimizer: "+err.Error(), nil)
			if ferr != nil {
				return nil, ferr
			}
			out := JobToApi(failed)
			return &out, nil
		}
		job.OptimizedPath = dst
		if _, err := s.store.Job().Update(ctx, job); err != nil {
			return nil, err
		}
	}

	ready, err := s.machine.Transition(ctx, id, api.JobStateReady, "optimization complete", nil)
	if err != nil {
		return nil, err
	}
	out := JobToApi(ready)
	return &out, nil
}

// QueueJob parks a READY job back in the queue.
func (s *JobService) QueueJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	return s.transition(ctx, id, api.JobStateQueued, "returned to queue")
}

// ArmJob acquires the device lease and moves the job to ARMED. The pre-arm
// guards (physical setup, checklist, device idle) run inside the transition;
// the lease is released again if any of them block it.
func (s *JobService) ArmJob(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	if !s.lease.TryAcquire(id) {
		holder, _ := s.lease.Holder()
		return nil, NewErrDeviceBusy(holder)
	}

	job, err := s.machine.Transition(ctx, id, api.JobStateArmed, "armed", nil)
	if err != nil {
		s.lease.Release(id)
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	out := JobToApi(job)
	return &out, nil
}

// StartPlot moves an ARMED job to PLOTTING and hands it to the execution
// loop.
func (s *JobService) StartPlot(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.machine.Transition(ctx, id, api.JobStatePlotting, "plot started", nil)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if err := s.exec.Start(context.WithoutCancel(ctx), id); err != nil {
		return nil, err
	}
	out := JobToApi(job)
	return &out, nil
}

// PauseJob requests a pause; the execution loop confirms it within one
// segment.
func (s *JobService) PauseJob(ctx context.Context, id uuid.UUID, reason string) error {
	if reason == "" {
		reason = "paused by operator"
	}
	return s.exec.Pause(id, reason)
}

// ResumeJob continues a paused plot. A job paused by a live session is woken
// in place; a job recovered after a restart gets a fresh session.
func (s *JobService) ResumeJob(ctx context.Context, id uuid.UUID) error {
	if err := s.exec.Resume(id); err == nil {
		return nil
	}

	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(id)
		}
		return err
	}
	if !s.lease.TryAcquire(job.ID) {
		holder, _ := s.lease.Holder()
		return NewErrDeviceBusy(holder)
	}
	if _, err := s.machine.Transition(ctx, id, api.JobStatePlotting, "resumed", nil); err != nil {
		return err
	}
	return s.exec.Start(context.WithoutCancel(ctx), id)
}

// AbortJob safely aborts a job in any device-holding state: pen up, home,
// terminal state, lease released. Aborting a terminal job is a no-op.
func (s *JobService) AbortJob(ctx context.Context, id uuid.UUID, reason string) error {
	if reason == "" {
		reason = "aborted by operator"
	}
	if err := s.exec.Abort(ctx, id, reason); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(id)
		}
		return err
	}
	return nil
}

// PlanPreview runs the planner in the requested mode without touching the
// job. Used by the UI to show the swap count a mode switch would buy.
func (s *JobService) PlanPreview(ctx context.Context, id uuid.UUID, mode api.PlanMode) (*api.PlanPreview, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if mode == "" {
		mode = api.PlanMode(job.PlanMode)
	}

	estimate := planner.NewTravelEstimator(planner.DefaultSpeedMMS, planner.DefaultLiftSeconds)
	plan, err := planner.Compute(job.Layers, mode, estimate, s.cfg.Plotter.PenChangeOverheadSeconds)
	if err != nil {
		return nil, err
	}
	return &api.PlanPreview{
		Mode:             mode,
		PlotOrder:        plan.PlotOrder,
		DistinctPens:     planner.DistinctPens(job.Layers),
		EstimatedSwaps:   plan.EstimatedSwaps,
		EstimatedSeconds: plan.EstimatedSeconds,
	}, nil
}

// Journal returns the job's full transition history in append order.
func (s *JobService) Journal(ctx context.Context, id uuid.UUID) ([]api.JournalEntry, error) {
	if _, err := s.store.Job().Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	entries, err := s.store.Journal().List(ctx, id)
	if err != nil {
		return nil, err
	}
	return JournalToApi(entries), nil
}

// AssignPen binds a pen to a layer. Assignments are only meaningful before
// planning; the planner re-runs on the next optimization pass.
func (s *JobService) AssignPen(ctx context.Context, jobID, layerID, penID uuid.UUID) (*api.Layer, error) {
	if _, err := s.store.Pen().Get(ctx, penID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrPenNotFound(penID)
		}
		return nil, err
	}
	layer, err := s.store.Job().AssignPen(ctx, layerID, penID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrLayerNotFound(layerID)
		}
		return nil, err
	}
	out := LayerToApi(layer)
	return &out, nil
}

func (s *JobService) transition(ctx context.Context, id uuid.UUID, target api.JobState, reason string) (*api.Job, error) {
	job, err := s.machine.Transition(ctx, id, target, reason, nil)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	out := JobToApi(job)
	return &out, nil
}
