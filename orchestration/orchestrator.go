// Package orchestration hosts the collaborator-side policy around a ledger.
// The ledger reports what happened; deciding when to compact is the
// orchestrator's job.
package orchestration

import (
	"sync"

	"github.com/deeptree/echosim/hooking"
	"github.com/deeptree/echosim/memledger"
)

// An Orchestrator subscribes to a ledger's sweep results and invokes
// defragmentation from its own goroutine when the observed fragmentation
// ratio exceeds its limit.
type Orchestrator struct {
	ledger             *memledger.Ledger
	fragmentationLimit float64

	sweepSignal chan struct{}
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator with the default fragmentation
// limit of 0.3.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		fragmentationLimit: 0.3,
		sweepSignal:        make(chan struct{}, 1),
		stop:               make(chan struct{}),
	}
}

// WithFragmentationLimit sets the fragmentation ratio above which the
// orchestrator compacts the ledger.
func (o *Orchestrator) WithFragmentationLimit(limit float64) *Orchestrator {
	o.fragmentationLimit = limit
	return o
}

// RegisterLedger registers the ledger to orchestrate.
func (o *Orchestrator) RegisterLedger(l *memledger.Ledger) {
	o.ledger = l
}

// Func watches the ledger's events. Sweep completions are coalesced into a
// signal for the policy loop; everything else is ignored.
func (o *Orchestrator) Func(ctx hooking.HookCtx) {
	if ctx.Pos != memledger.HookPosSweepComplete {
		return
	}

	select {
	case o.sweepSignal <- struct{}{}:
	default:
	}
}

// Start subscribes to the ledger and launches the policy loop.
func (o *Orchestrator) Start() {
	o.ledger.AcceptHook(o)

	o.wg.Add(1)
	go o.run()
}

// Stop ends the policy loop. The ledger itself keeps running.
func (o *Orchestrator) Stop() {
	close(o.stop)
	o.wg.Wait()
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	for {
		select {
		case <-o.sweepSignal:
			o.maybeDefragment()
		case <-o.stop:
			return
		}
	}
}

func (o *Orchestrator) maybeDefragment() {
	stats, err := o.ledger.GetStats()
	if err != nil {
		return
	}

	if stats.FragmentationRatio <= o.fragmentationLimit {
		return
	}

	_, _ = o.ledger.Defragment()
}
