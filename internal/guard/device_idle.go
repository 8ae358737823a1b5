package guard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

// LeaseView is the read side of the exclusive device lease owned by the
// execution loop.
type LeaseView interface {
	Holder() (uuid.UUID, bool)
}

// DeviceStatus reports whether the device driver is reachable. Satisfied
// by the executor's Device.
type DeviceStatus interface {
	Connected() bool
}

// DeviceIdle fails when the driver is unreachable or another job holds the
// device. The serial plotter is a global exclusive resource: at most one job
// may be armed or plotting at any time.
type DeviceIdle struct {
	lease  LeaseView
	store  store.Store
	device DeviceStatus
}

func NewDeviceIdle(lease LeaseView, s store.Store, device DeviceStatus) *DeviceIdle {
	return &DeviceIdle{lease: lease, store: s, device: device}
}

func (g *DeviceIdle) Name() string { return "device_idle" }

func (g *DeviceIdle) Check(ctx context.Context, job *model.Job) Result {
	if g.device != nil && !g.device.Connected() {
		return fail(g.Name(),
			"device driver is unreachable; reconnect and retry",
			map[string]string{"connected": "false"})
	}

	if holder, held := g.lease.Holder(); held && holder != job.ID {
		return fail(g.Name(),
			fmt.Sprintf("device is claimed by job %s", holder),
			map[string]string{"holder": holder.String()})
	}

	active, err := g.store.Job().List(ctx,
		store.NewJobQueryFilter().ByState(string(api.JobStateArmed), string(api.JobStatePlotting)),
		nil)
	if err != nil {
		return fail(g.Name(), fmt.Sprintf("cannot verify device ownership: %v", err), nil)
	}

	for i := range active {
		if active[i].ID != job.ID {
			return fail(g.Name(),
				fmt.Sprintf("job %s is currently %s", active[i].ID, active[i].State),
				map[string]string{"holder": active[i].ID.String(), "holder_state": active[i].State})
		}
	}

	return pass(g.Name())
}
