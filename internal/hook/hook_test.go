package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	api "github.com/plotterd/plotterd/api/v1alpha1"
)

func TestVarsExpand(t *testing.T) {
	vars := Vars{
		JobID:   "7b0c",
		JobPath: "/work/plot.json",
		State:   "completed",
		Error:   "",
	}

	got := vars.expand("notify {job_id} {state} {job_path} err={error}")
	require.Equal(t, "notify 7b0c completed /work/plot.json err=", got)
}

func TestVarsExpandLeavesUnknownPlaceholders(t *testing.T) {
	vars := Vars{JobID: "x"}
	require.Equal(t, "{nope} x", vars.expand("{nope} {job_id}"))
}

func TestParseSpec(t *testing.T) {
	h, err := ParseSpec("completed=command:notify-send done {job_id}")
	require.NoError(t, err)
	require.Equal(t, api.JobStateCompleted, h.TriggerState)
	require.IsType(t, &CommandAction{}, h.Action)

	h, err = ParseSpec("failed=script:/etc/plotterd/on-fail.sh")
	require.NoError(t, err)
	require.Equal(t, api.JobStateFailed, h.TriggerState)
	require.IsType(t, &ScriptAction{}, h.Action)

	h, err = ParseSpec("plotting=webhook:http://localhost:9000/hooks/{job_id}")
	require.NoError(t, err)
	require.Equal(t, api.JobStatePlotting, h.TriggerState)
	require.IsType(t, &WebhookAction{}, h.Action)
}

func TestParseSpecRejectsMalformedInput(t *testing.T) {
	for _, spec := range []string{
		"no-equals-sign",
		"sideways=command:echo hi", // unknown state
		"completed=telepathy:target",
		"completed=command:",
	} {
		_, err := ParseSpec(spec)
		require.Errorf(t, err, "spec %q should be rejected", spec)
	}
}

func TestParseSpecsSkipsEmptyEntries(t *testing.T) {
	hooks, err := ParseSpecs([]string{"", "  ", "completed=command:true"})
	require.NoError(t, err)
	require.Len(t, hooks, 1)
}

type recordingAction struct {
	calls    int
	deadline bool
	vars     Vars
}

func (a *recordingAction) Describe() string { return "recording" }

func (a *recordingAction) Execute(ctx context.Context, vars Vars) error {
	a.calls++
	_, a.deadline = ctx.Deadline()
	a.vars = vars
	return nil
}

func TestRunnerFiltersByTriggerState(t *testing.T) {
	onDone := &recordingAction{}
	onFail := &recordingAction{}
	r := NewRunner([]Hook{
		{TriggerState: api.JobStateCompleted, Action: onDone},
		{TriggerState: api.JobStateFailed, Action: onFail},
	}, time.Second)

	vars := Vars{JobID: "j1", State: "completed"}
	r.Run(context.Background(), api.JobStateCompleted, vars)

	require.Equal(t, 1, onDone.calls)
	require.Equal(t, 0, onFail.calls)
	require.Equal(t, vars, onDone.vars)
	require.True(t, onDone.deadline, "hook context must carry the runner timeout")
}

type hangingAction struct{}

func (hangingAction) Describe() string { return "hanging" }

func (hangingAction) Execute(ctx context.Context, _ Vars) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerBoundsHangingHooks(t *testing.T) {
	r := NewRunner([]Hook{
		{TriggerState: api.JobStateCompleted, Action: hangingAction{}},
	}, 50*time.Millisecond)

	start := time.Now()
	r.Run(context.Background(), api.JobStateCompleted, Vars{JobID: "j1"})
	require.Less(t, time.Since(start), time.Second, "runner must not wait past the hook timeout")
}

func TestWebhookActionPostsSubstitutedPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	action := NewWebhookAction(srv.URL + "/hooks/{job_id}")
	err := action.Execute(context.Background(), Vars{JobID: "j1", JobPath: "/w/p.json", State: "completed"})
	require.NoError(t, err)

	require.Equal(t, "/hooks/j1", gotPath)
	require.Equal(t, "j1", gotBody["job_id"])
	require.Equal(t, "completed", gotBody["state"])
}

func TestWebhookActionTreatsHTTPErrorAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	action := NewWebhookAction(srv.URL)
	err := action.Execute(context.Background(), Vars{JobID: "j1"})
	require.Error(t, err)
}
