package memledger

import "sort"

// defragmentThreshold is the fragmentation ratio below which Defragment
// returns without touching the ledger.
const defragmentThreshold = 0.2

// Defragment rebuilds the ledger from its live records. Records with dead
// handles are dropped rather than carried forward. The survivors are
// reinserted through the regular allocation path in descending priority
// order, so the highest-priority records are the least likely to be evicted
// during reinsertion; a low-priority record that no longer fits is dropped,
// which is accepted behavior rather than an error. Reinsertion resets each
// record's recency and used bytes, which is what restores the accounting
// consistency the fragmentation ratio measures.
func (l *Ledger) Defragment() (Stats, error) {
	l.mu.Lock()

	if l.terminated {
		l.mu.Unlock()
		return Stats{}, ErrLedgerTerminated
	}

	stats := l.statsLocked()
	if stats.FragmentationRatio < defragmentThreshold {
		l.mu.Unlock()
		return stats, nil
	}

	survivors := make([]*AllocationRecord, 0, len(l.records))
	for _, rec := range l.records {
		if _, alive := rec.Payload.Resolve(); alive {
			survivors = append(survivors, rec)
		}
	}

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].PriorityTier != survivors[j].PriorityTier {
			return survivors[i].PriorityTier > survivors[j].PriorityTier
		}
		return survivors[j].LastAccessedAt.Before(survivors[i].LastAccessedAt)
	})

	l.records = make(map[string]*AllocationRecord)
	l.totalAllocated = 0
	l.totalUsed = 0

	var events []event
	for _, rec := range survivors {
		_ = l.allocateLocked(
			rec.ID, rec.SizeBytes, rec.Payload, rec.PriorityTier, &events)
	}

	stats = l.statsLocked()
	events = append(events, event{
		pos:  HookPosDefragmentComplete,
		item: DefragmentInfo{Stats: stats},
	})

	l.mu.Unlock()
	l.emit(events)

	return stats, nil
}
