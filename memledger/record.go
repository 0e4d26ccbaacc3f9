package memledger

import (
	"sync/atomic"
	"time"
	"weak"
)

// Size units that can be used to define ledger budgets.
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
	GB uint64 = 1 << 30
)

// Priority tiers that the eviction policy distinguishes. Records below
// ProtectedPriorityTier can be evicted when idle; records at or above it are
// only removed by explicit release, by a liveness sweep, or during
// defragmentation.
const (
	DefaultPriorityTier   = 1
	ProtectedPriorityTier = 2
)

// A Handle is a non-owning reference to a tracked payload. Resolve returns
// the payload and whether it is still alive. Resolving a Handle must never
// extend the payload's lifetime.
type Handle interface {
	Resolve() (payload any, alive bool)
}

// An OwnedPayload is a Handle over a payload whose lifetime is controlled by
// an external owner. The owner calls Invalidate when it destroys the payload;
// the ledger then observes the handle as dead.
type OwnedPayload struct {
	payload atomic.Pointer[any]
}

// NewOwnedPayload wraps a payload into an owner-invalidated handle.
func NewOwnedPayload(payload any) *OwnedPayload {
	p := &OwnedPayload{}
	p.payload.Store(&payload)

	return p
}

// Resolve returns the payload if the owner has not invalidated it.
func (p *OwnedPayload) Resolve() (any, bool) {
	v := p.payload.Load()
	if v == nil {
		return nil, false
	}

	return *v, true
}

// Invalidate marks the payload as destroyed and drops the reference to it.
func (p *OwnedPayload) Invalidate() {
	p.payload.Store(nil)
}

// A WeakHandle observes a garbage-collected payload through a weak pointer.
// The handle reports the payload as dead once the payload has been collected.
type WeakHandle[T any] struct {
	ptr weak.Pointer[T]
}

// NewWeakHandle derives a weak handle from a payload pointer.
func NewWeakHandle[T any](payload *T) WeakHandle[T] {
	return WeakHandle[T]{ptr: weak.Make(payload)}
}

// Resolve returns the payload if it has not been collected yet.
func (h WeakHandle[T]) Resolve() (any, bool) {
	p := h.ptr.Value()
	if p == nil {
		return nil, false
	}

	return p, true
}

// An AllocationRecord is the accounting state the ledger keeps for one
// tracked payload. SizeBytes is fixed at creation. UsedBytes starts equal to
// SizeBytes and is only revised when the payload owner reports utilization
// through SetUsedBytes.
type AllocationRecord struct {
	ID             string
	SizeBytes      uint64
	UsedBytes      uint64
	LastAccessedAt time.Time
	PriorityTier   int
	Payload        Handle
}
