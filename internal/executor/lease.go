package executor

import (
	"sync"

	"github.com/google/uuid"
)

// Lease is the single-holder device lease. Only the job holding the lease may
// drive the device; arming acquires it and every terminal transition releases
// it.
type Lease struct {
	mu     sync.Mutex
	holder uuid.UUID
	held   bool
}

func NewLease() *Lease {
	return &Lease{}
}

// TryAcquire grants the lease to jobID if it is free or already held by the
// same job. Returns false when another job holds it.
func (l *Lease) TryAcquire(jobID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held && l.holder != jobID {
		return false
	}
	l.holder = jobID
	l.held = true
	return true
}

// Release frees the lease only if jobID is the current holder. Releasing an
// unheld or foreign lease is a no-op, which keeps abort paths idempotent.
func (l *Lease) Release(jobID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held && l.holder == jobID {
		l.held = false
		l.holder = uuid.Nil
	}
}

func (l *Lease) Holder() (uuid.UUID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder, l.held
}
