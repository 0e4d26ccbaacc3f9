package memledger

import "time"

// A Builder creates ledgers.
type Builder struct {
	budgetBytes   uint64
	idleThreshold time.Duration
	sweepInterval time.Duration
	clock         Clock
}

// MakeBuilder returns a Builder with the default parameters.
func MakeBuilder() Builder {
	return Builder{
		budgetBytes:   4 * GB,
		idleThreshold: 300 * time.Second,
		sweepInterval: 60 * time.Second,
		clock:         wallClock{},
	}
}

// WithBudgetBytes sets the maximum aggregate size the ledger may track.
func (b Builder) WithBudgetBytes(budgetBytes uint64) Builder {
	b.budgetBytes = budgetBytes
	return b
}

// WithIdleThreshold sets how long a low-priority record must sit unaccessed
// before the eviction policy may remove it.
func (b Builder) WithIdleThreshold(threshold time.Duration) Builder {
	b.idleThreshold = threshold
	return b
}

// WithSweepInterval sets the period of the background liveness sweep. A zero
// interval disables the sweep worker; callers then drive SweepNow directly.
func (b Builder) WithSweepInterval(interval time.Duration) Builder {
	b.sweepInterval = interval
	return b
}

// WithClock sets the time source of the ledger.
func (b Builder) WithClock(clock Clock) Builder {
	b.clock = clock
	return b
}

// Build creates the ledger and starts its sweep worker.
func (b Builder) Build(name string) *Ledger {
	l := &Ledger{
		name:          name,
		budgetBytes:   b.budgetBytes,
		idleThreshold: b.idleThreshold,
		sweepInterval: b.sweepInterval,
		clock:         b.clock,
		records:       make(map[string]*AllocationRecord),
	}

	if l.sweepInterval > 0 {
		l.stopSweep = make(chan struct{})
		l.sweepWG.Add(1)
		go l.sweepLoop()
	}

	return l
}
