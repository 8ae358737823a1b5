package hook

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-resty/resty/v2"
)

// CommandAction runs a shell command line after variable substitution.
type CommandAction struct {
	Command string
}

func (a *CommandAction) Describe() string { return "command:" + a.Command }

func (a *CommandAction) Execute(ctx context.Context, vars Vars) error {
	expanded := vars.expand(a.Command)
	fields := strings.Fields(expanded)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %q: %w (output: %s)", expanded, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ScriptAction executes a script file, passing the substitution variables as
// arguments.
type ScriptAction struct {
	Path string
}

func (a *ScriptAction) Describe() string { return "script:" + a.Path }

func (a *ScriptAction) Execute(ctx context.Context, vars Vars) error {
	cmd := exec.CommandContext(ctx, a.Path, vars.JobID, vars.JobPath, vars.State, vars.Error)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("script %q: %w (output: %s)", a.Path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// WebhookAction POSTs the substitution variables as JSON to a URL. The URL
// itself is also templated.
type WebhookAction struct {
	URL    string
	client *resty.Client
}

func NewWebhookAction(url string) *WebhookAction {
	return &WebhookAction{
		URL:    url,
		client: resty.New(),
	}
}

func (a *WebhookAction) Describe() string { return "webhook:" + a.URL }

func (a *WebhookAction) Execute(ctx context.Context, vars Vars) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"job_id":   vars.JobID,
			"job_path": vars.JobPath,
			"state":    vars.State,
			"error":    vars.Error,
		}).
		Post(vars.expand(a.URL))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s", resp.Status())
	}
	return nil
}
