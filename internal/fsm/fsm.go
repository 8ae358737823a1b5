// Package fsm implements the job lifecycle state machine. Every job
// mutation flows through Machine.Transition: guards gate it, the journal
// records it, hooks and the monitor bus react to it.
package fsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/events"
	"github.com/plotterd/plotterd/internal/guard"
	"github.com/plotterd/plotterd/internal/hook"
	"github.com/plotterd/plotterd/internal/planner"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
	"github.com/plotterd/plotterd/pkg/metrics"
)

type Machine struct {
	store    store.Store
	guards   *guard.Registry
	hooks    *hook.Runner
	bus      *events.EventProducer
	bindings map[api.JobState][]string

	estimator         planner.Estimator
	penChangeOverhead float64

	// Transitions are serialized per job: the allowed-set and guard checks
	// read state before the commit transaction, so two concurrent
	// transitions on one job must not interleave between check and commit.
	jobMu    sync.Mutex
	jobLocks map[uuid.UUID]*sync.Mutex
}

type MachineOption func(*Machine)

// WithGuardBindings overrides the default target-state to guard-category map.
func WithGuardBindings(bindings map[api.JobState][]string) MachineOption {
	return func(m *Machine) {
		m.bindings = bindings
	}
}

func WithEstimator(estimator planner.Estimator, penChangeOverheadSeconds float64) MachineOption {
	return func(m *Machine) {
		m.estimator = estimator
		m.penChangeOverhead = penChangeOverheadSeconds
	}
}

func NewMachine(s store.Store, guards *guard.Registry, hooks *hook.Runner, bus *events.EventProducer, opts ...MachineOption) *Machine {
	m := &Machine{
		store:  s,
		guards: guards,
		hooks:  hooks,
		bus:    bus,
		bindings: map[api.JobState][]string{
			api.JobStateOptimized: {guard.CategoryPreOptimize},
			api.JobStateArmed:     {guard.CategoryPreArm},
			api.JobStatePlotting:  {guard.CategoryPrePlot},
		},
		jobLocks: make(map[uuid.UUID]*sync.Mutex),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) lockJob(jobID uuid.UUID) func() {
	m.jobMu.Lock()
	l, ok := m.jobLocks[jobID]
	if !ok {
		l = &sync.Mutex{}
		m.jobLocks[jobID] = l
	}
	m.jobMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Transition moves the job to the target state.
//
// Order of operations: allowed-set check, guards (and the planner when
// entering OPTIMIZED), then journal append and state commit as one store
// transaction, then hooks and the monitor bus. Hook and bus failures never
// roll back the transition; a crash between journal append and commit leaves
// the journal tail unmatched, which recovery treats as attempted-but-not-
// confirmed.
func (m *Machine) Transition(ctx context.Context, jobID uuid.UUID, target api.JobState, reason string, meta map[string]string) (*model.Job, error) {
	defer m.lockJob(jobID)()

	job, err := m.store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	from := api.JobState(job.State)
	if !Allowed(from, target) {
		return nil, &ErrTransitionRejected{From: from, To: target}
	}

	metadata := make(map[string]string, len(meta)+4)
	for k, v := range meta {
		metadata[k] = v
	}

	results := m.guards.Check(ctx, m.bindings[target], job)
	for _, res := range results {
		metrics.IncreaseGuardOutcomesMetric(res.Guard, string(res.Outcome))
		metadata["guard."+res.Guard] = string(res.Outcome)
		if res.Outcome == guard.OutcomeSoftFail {
			zap.S().Named("fsm").Warnw("guard degraded", "job_id", jobID, "guard", res.Guard, "reason", res.Reason)
			metadata["guard."+res.Guard+".reason"] = res.Reason
		}
	}
	if failure, failed := guard.FirstFailure(results); failed {
		metadata["guard."+failure.Guard+".reason"] = failure.Reason
		return nil, &ErrGuardFailed{Result: failure}
	}

	var plan *planner.Plan
	if target == api.JobStateOptimized {
		p, err := planner.Compute(job.Layers, api.PlanMode(job.PlanMode), m.estimator, m.penChangeOverhead)
		if err != nil {
			return nil, &ErrGuardFailed{Result: guard.Result{
				Guard:   "planner",
				Outcome: guard.OutcomeFail,
				Reason:  err.Error(),
			}}
		}
		plan = &p
		metadata["planner.estimated_swaps"] = fmt.Sprintf("%d", p.EstimatedSwaps)
		metadata["planner.estimated_seconds"] = fmt.Sprintf("%.1f", p.EstimatedSeconds)
		metrics.ObservePenSwapsEstimatedMetric(p.EstimatedSwaps)
	}

	entry, err := m.commit(ctx, job, from, target, reason, metadata, plan)
	if err != nil {
		return nil, err
	}

	metrics.IncreaseTransitionsMetric(string(from), string(target))
	m.runHooks(ctx, job, target, reason)
	if m.bus != nil {
		m.bus.PublishTransition(api.Event{
			JobId:     job.ID,
			Seq:       entry.Seq,
			FromState: from,
			ToState:   target,
			Metadata:  metadata,
			Timestamp: entry.CreatedAt,
		})
	}

	zap.S().Named("fsm").Infow("transition committed",
		"job_id", jobID, "from", from, "to", target, "reason", reason)
	return job, nil
}

// commit appends the journal entry and flips the job state in one store
// transaction. The journal entry is written first: on crash an unmatched
// journal tail means the transition was attempted, never that it completed.
func (m *Machine) commit(ctx context.Context, job *model.Job, from, target api.JobState, reason string, metadata map[string]string, plan *planner.Plan) (*model.JournalEntry, error) {
	txCtx, err := m.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	journalEntry := model.JournalEntry{
		JobID:     job.ID,
		FromState: string(from),
		ToState:   string(target),
		Reason:    reason,
	}
	journalEntry.SetMetadata(metadata)

	entry, err := m.store.Journal().Append(txCtx, journalEntry)
	if err != nil {
		_, _ = store.Rollback(txCtx)
		return nil, err
	}

	job.State = string(target)
	job.StateReason = reason
	if target.RequiresHeartbeat() {
		now := time.Now()
		job.HeartbeatAt = &now
	} else {
		job.HeartbeatAt = nil
	}
	if plan != nil {
		job.SetPlotOrder(plan.PlotOrder)
		job.EstimatedSwaps = &plan.EstimatedSwaps
		job.EstimatedSeconds = &plan.EstimatedSeconds
		if err := m.store.Job().MarkLayersPlanned(txCtx, job.ID); err != nil {
			_, _ = store.Rollback(txCtx)
			return nil, err
		}
		for i := range job.Layers {
			job.Layers[i].Planned = true
		}
	}

	if _, err := m.store.Job().Update(txCtx, job); err != nil {
		_, _ = store.Rollback(txCtx)
		return nil, err
	}

	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}
	return entry, nil
}

func (m *Machine) runHooks(ctx context.Context, job *model.Job, target api.JobState, reason string) {
	if m.hooks == nil {
		return
	}

	jobPath := job.SourcePath
	if job.OptimizedPath != "" {
		jobPath = job.OptimizedPath
	}
	vars := hook.Vars{
		JobID:   job.ID.String(),
		JobPath: jobPath,
		State:   string(target),
	}
	if target == api.JobStateFailed || target == api.JobStateAborted {
		vars.Error = reason
	}
	m.hooks.Run(ctx, target, vars)
}
