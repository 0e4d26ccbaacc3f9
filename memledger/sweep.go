package memledger

import "time"

// SweepNow runs one liveness sweep pass. Every record whose handle no longer
// resolves is removed; live records are never touched regardless of priority
// or idleness. If anything was removed, HookPosSweepComplete fires with the
// freed byte count.
func (l *Ledger) SweepNow() (uint64, error) {
	l.mu.Lock()

	if l.terminated {
		l.mu.Unlock()
		return 0, ErrLedgerTerminated
	}

	var freed uint64
	removed := 0
	for _, rec := range l.records {
		if _, alive := rec.Payload.Resolve(); alive {
			continue
		}

		l.removeLocked(rec)
		freed += rec.SizeBytes
		removed++
	}

	var events []event
	if removed > 0 {
		events = append(events, event{
			pos:  HookPosSweepComplete,
			item: SweepInfo{FreedBytes: freed, RecordsRemoved: removed},
		})
	}

	l.mu.Unlock()
	l.emit(events)

	return freed, nil
}

// sweepLoop drives the periodic liveness sweep until Destroy closes the stop
// channel.
func (l *Ledger) sweepLoop() {
	defer l.sweepWG.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = l.SweepNow()
		case <-l.stopSweep:
			return
		}
	}
}
