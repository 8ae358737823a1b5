// Package hook dispatches post-transition side effects: shell commands,
// scripts and webhooks. Hooks run after the transition is committed and are
// strictly best-effort: a failing or hanging hook is logged and never rolls
// back or stalls the FSM.
package hook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/pkg/metrics"
)

// Vars are the substitution variables available to hook actions.
type Vars struct {
	JobID   string
	JobPath string
	State   string
	Error   string
}

func (v Vars) expand(s string) string {
	return strings.NewReplacer(
		"{job_id}", v.JobID,
		"{job_path}", v.JobPath,
		"{state}", v.State,
		"{error}", v.Error,
	).Replace(s)
}

type Action interface {
	// Execute runs the side effect. The context carries the hook deadline.
	Execute(ctx context.Context, vars Vars) error
	Describe() string
}

type Hook struct {
	TriggerState api.JobState
	Action       Action
}

type Runner struct {
	hooks   []Hook
	timeout time.Duration
}

func NewRunner(hooks []Hook, timeout time.Duration) *Runner {
	return &Runner{hooks: hooks, timeout: timeout}
}

// Run executes every hook registered for the state. Synchronous relative to
// the caller, but each action is bounded by the runner timeout so a hanging
// external command cannot hold the device lock.
func (r *Runner) Run(ctx context.Context, state api.JobState, vars Vars) {
	for _, h := range r.hooks {
		if h.TriggerState != state {
			continue
		}

		hookCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := h.Action.Execute(hookCtx, vars)
		cancel()

		if err != nil {
			metrics.IncreaseHookFailuresMetric(h.Action.Describe())
			zap.S().Named("hook").Warnw("hook failed",
				"state", state, "action", h.Action.Describe(), "job_id", vars.JobID, "error", err)
			continue
		}
		zap.S().Named("hook").Debugw("hook executed",
			"state", state, "action", h.Action.Describe(), "job_id", vars.JobID)
	}
}

// ParseSpec parses a configured hook of the form
// "<state>=<command|script|webhook>:<target>".
func ParseSpec(spec string) (Hook, error) {
	stateStr, actionStr, found := strings.Cut(spec, "=")
	if !found {
		return Hook{}, fmt.Errorf("invalid hook spec %q: missing '='", spec)
	}

	state := api.StringToJobState(stateStr)
	if string(state) != stateStr {
		return Hook{}, fmt.Errorf("invalid hook spec %q: unknown state %q", spec, stateStr)
	}

	kind, target, found := strings.Cut(actionStr, ":")
	if !found || target == "" {
		return Hook{}, fmt.Errorf("invalid hook spec %q: missing action target", spec)
	}

	switch kind {
	case "command":
		return Hook{TriggerState: state, Action: &CommandAction{Command: target}}, nil
	case "script":
		return Hook{TriggerState: state, Action: &ScriptAction{Path: target}}, nil
	case "webhook":
		return Hook{TriggerState: state, Action: NewWebhookAction(target)}, nil
	default:
		return Hook{}, fmt.Errorf("invalid hook spec %q: unknown action kind %q", spec, kind)
	}
}

// ParseSpecs parses the configured hook list, skipping empty entries.
func ParseSpecs(specs []string) ([]Hook, error) {
	var hooks []Hook
	for _, spec := range specs {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		h, err := ParseSpec(spec)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}
