package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrPenNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "pen")
}

func NewErrLayerNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "layer")
}

type ErrDuplicateResource struct {
	error
}

func NewErrDuplicatePen(name string) *ErrDuplicateResource {
	return &ErrDuplicateResource{fmt.Errorf("a pen named %q already exists", name)}
}

type ErrDeviceBusy struct {
	error
}

func NewErrDeviceBusy(holder uuid.UUID) *ErrDeviceBusy {
	return &ErrDeviceBusy{fmt.Errorf("device lease is held by job %s", holder)}
}

type ErrJobNotDeletable struct {
	error
}

func NewErrJobNotDeletable(id uuid.UUID, state string) *ErrJobNotDeletable {
	return &ErrJobNotDeletable{fmt.Errorf("job %s is %s and holds the device; abort it before deleting", id, state)}
}
