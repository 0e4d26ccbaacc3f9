// Package memledger implements a budget-constrained allocation tracker with
// priority-and-recency eviction, liveness-based reclamation, and on-demand
// defragmentation. The ledger accounts for the memory cost of logical objects
// (reservoir states, membrane systems, training batches) without owning them;
// payloads stay with their true owners and the ledger observes them through
// non-owning handles.
package memledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/deeptree/echosim/hooking"
)

// A Ledger maps ids to allocation records and guarantees that the sum of the
// tracked sizes never exceeds its budget. All operations are synchronous and
// run to completion under a single lock; hooks fire after the lock is
// released, on the calling goroutine, in operation order.
//
// Hooks must be registered before the ledger is shared across goroutines.
type Ledger struct {
	hooking.HookableBase

	name          string
	budgetBytes   uint64
	idleThreshold time.Duration
	sweepInterval time.Duration
	clock         Clock

	mu             sync.Mutex
	records        map[string]*AllocationRecord
	totalAllocated uint64
	totalUsed      uint64
	terminated     bool

	stopSweep chan struct{}
	sweepWG   sync.WaitGroup
}

// Name returns the name of the ledger.
func (l *Ledger) Name() string {
	return l.name
}

// BudgetBytes returns the maximum aggregate size the ledger may track.
func (l *Ledger) BudgetBytes() uint64 {
	return l.budgetBytes
}

// Allocate inserts a record for a payload, evicting other records if the
// budget requires it. If id is already tracked, the old record is treated as
// released before the new one is inserted. A negative priorityTier selects
// DefaultPriorityTier. Callers must not assume any record other than the one
// they are creating survives the call.
func (l *Ledger) Allocate(
	id string,
	sizeBytes uint64,
	payload Handle,
	priorityTier int,
) error {
	if sizeBytes == 0 {
		panic(fmt.Sprintf("allocation %s must have a positive size", id))
	}

	if priorityTier < 0 {
		priorityTier = DefaultPriorityTier
	}

	l.mu.Lock()

	if l.terminated {
		l.mu.Unlock()
		return ErrLedgerTerminated
	}

	var events []event
	err := l.allocateLocked(id, sizeBytes, payload, priorityTier, &events)

	l.mu.Unlock()
	l.emit(events)

	return err
}

func (l *Ledger) allocateLocked(
	id string,
	sizeBytes uint64,
	payload Handle,
	priorityTier int,
	events *[]event,
) error {
	if old, exists := l.records[id]; exists {
		l.removeLocked(old)
	}

	if l.totalAllocated+sizeBytes > l.budgetBytes {
		l.freeUpSpaceLocked(sizeBytes, events)
	}

	if l.totalAllocated+sizeBytes > l.budgetBytes {
		return ErrInsufficientBudget
	}

	rec := &AllocationRecord{
		ID:             id,
		SizeBytes:      sizeBytes,
		UsedBytes:      sizeBytes,
		LastAccessedAt: l.clock.Now(),
		PriorityTier:   priorityTier,
		Payload:        payload,
	}
	l.records[id] = rec
	l.totalAllocated += sizeBytes
	l.totalUsed += sizeBytes

	*events = append(*events, event{
		pos:  HookPosAllocated,
		item: AllocatedInfo{ID: id, SizeBytes: sizeBytes},
	})

	return nil
}

// Access resolves the payload tracked under id and refreshes the record's
// recency. If the payload has been destroyed by its owner, the record is
// removed and ErrReclaimed is returned; the id is gone afterwards.
func (l *Ledger) Access(id string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminated {
		return nil, ErrLedgerTerminated
	}

	rec, exists := l.records[id]
	if !exists {
		return nil, ErrNotFound
	}

	payload, alive := rec.Payload.Resolve()
	if !alive {
		l.removeLocked(rec)
		return nil, ErrReclaimed
	}

	rec.LastAccessedAt = l.clock.Now()

	return payload, nil
}

// Release removes the record tracked under id. The payload itself is left to
// its owner.
func (l *Ledger) Release(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminated {
		return ErrLedgerTerminated
	}

	rec, exists := l.records[id]
	if !exists {
		return ErrNotFound
	}

	l.removeLocked(rec)

	return nil
}

// SetUsedBytes records how much of an allocation the payload owner actually
// uses. The ledger never revises UsedBytes on its own; without this call the
// fragmentation ratio stays zero and Defragment never triggers.
func (l *Ledger) SetUsedBytes(id string, usedBytes uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminated {
		return ErrLedgerTerminated
	}

	rec, exists := l.records[id]
	if !exists {
		return ErrNotFound
	}

	if usedBytes > rec.SizeBytes {
		return fmt.Errorf(
			"used bytes %d exceed the %d-byte allocation %s",
			usedBytes, rec.SizeBytes, id)
	}

	l.totalUsed -= rec.UsedBytes
	rec.UsedBytes = usedBytes
	l.totalUsed += usedBytes

	return nil
}

// Snapshot returns a copy of every record currently in the ledger.
func (l *Ledger) Snapshot() ([]AllocationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminated {
		return nil, ErrLedgerTerminated
	}

	records := make([]AllocationRecord, 0, len(l.records))
	for _, rec := range l.records {
		records = append(records, *rec)
	}

	return records, nil
}

// Destroy stops the sweep worker, clears all records, and marks the ledger
// as terminated. A sweep in flight is allowed to finish before Destroy
// returns. Every operation invoked afterwards fails with
// ErrLedgerTerminated.
func (l *Ledger) Destroy() error {
	l.mu.Lock()

	if l.terminated {
		l.mu.Unlock()
		return ErrLedgerTerminated
	}

	l.terminated = true
	l.records = make(map[string]*AllocationRecord)
	l.totalAllocated = 0
	l.totalUsed = 0

	l.mu.Unlock()

	if l.stopSweep != nil {
		close(l.stopSweep)
		l.sweepWG.Wait()
	}

	l.emit([]event{{pos: HookPosDestroyed}})

	return nil
}

// removeLocked deletes a record and reverses its contribution to the
// aggregates.
func (l *Ledger) removeLocked(rec *AllocationRecord) {
	delete(l.records, rec.ID)
	l.totalAllocated -= rec.SizeBytes
	l.totalUsed -= rec.UsedBytes
}

func (l *Ledger) emit(events []event) {
	for _, e := range events {
		l.InvokeHook(hooking.HookCtx{
			Domain: l,
			Pos:    e.pos,
			Item:   e.item,
		})
	}
}
