package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/plotterd/plotterd/internal/store/model"
)

// Recorder is the narrow read interface to the camera/recording collaborator.
type Recorder interface {
	Healthy(ctx context.Context) error
}

// CameraHealth soft-fails when the recording collaborator is unreachable.
// Recording is best-effort; plotting is never gated on it.
type CameraHealth struct {
	recorder Recorder
}

func NewCameraHealth(recorder Recorder) *CameraHealth {
	return &CameraHealth{recorder: recorder}
}

func (g *CameraHealth) Name() string { return "camera_health" }

func (g *CameraHealth) Check(ctx context.Context, _ *model.Job) Result {
	if g.recorder == nil {
		return pass(g.Name())
	}
	if err := g.recorder.Healthy(ctx); err != nil {
		return softFail(g.Name(), fmt.Sprintf("camera unreachable, plot will not be recorded: %v", err))
	}
	return pass(g.Name())
}

// HTTPRecorder probes a camera service health endpoint.
type HTTPRecorder struct {
	client *resty.Client
}

func NewHTTPRecorder(baseURL string) *HTTPRecorder {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(2 * time.Second)
	return &HTTPRecorder{client: client}
}

func (r *HTTPRecorder) Healthy(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("camera health returned %s", resp.Status())
	}
	return nil
}

// StopRecording asks the camera service to finalize the recording for a job.
// Used by safe-abort; errors are reported but non-fatal.
func (r *HTTPRecorder) StopRecording(ctx context.Context, jobID string) error {
	resp, err := r.client.R().SetContext(ctx).Post("/recordings/" + jobID + "/stop")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("camera stop returned %s", resp.Status())
	}
	return nil
}
