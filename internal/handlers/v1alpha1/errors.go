package v1alpha1

import (
	"net/http"

	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/planner"
	"github.com/plotterd/plotterd/internal/service"
)

// statusFor maps domain errors onto HTTP status codes. Guard failures and
// rejected transitions are conflicts: the request was well-formed, the
// machine just is not in a state to honor it.
func statusFor(err error) int {
	switch err.(type) {
	case *service.ErrResourceNotFound:
		return http.StatusNotFound
	case *service.ErrDuplicateResource:
		return http.StatusConflict
	case *service.ErrDeviceBusy, *service.ErrJobNotDeletable:
		return http.StatusConflict
	case *fsm.ErrTransitionRejected, *fsm.ErrGuardFailed:
		return http.StatusConflict
	case *planner.ErrUnassignedPen:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
