package memledger

import "sort"

// freeUpSpaceLocked walks the eviction candidates in policy order and removes
// records until requiredBytes have been freed or the candidates run out.
// Candidates are ordered ascending by (priority tier, last access time), so
// the lowest tier goes first and, within a tier, the least recently accessed
// record goes first.
//
// A candidate whose handle is already dead is removed unconditionally; it
// costs nothing to drop stale bookkeeping. A live candidate is only evicted
// if it sits below ProtectedPriorityTier and has been idle longer than the
// idle threshold. Records already freed stay freed even when the walk ends
// short of requiredBytes; eviction is a side effect on the shared ledger, not
// transactional with the triggering allocation.
func (l *Ledger) freeUpSpaceLocked(requiredBytes uint64, events *[]event) uint64 {
	candidates := make([]*AllocationRecord, 0, len(l.records))
	for _, rec := range l.records {
		candidates = append(candidates, rec)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].PriorityTier != candidates[j].PriorityTier {
			return candidates[i].PriorityTier < candidates[j].PriorityTier
		}
		return candidates[i].LastAccessedAt.Before(candidates[j].LastAccessedAt)
	})

	now := l.clock.Now()

	var freed uint64
	for _, rec := range candidates {
		if freed >= requiredBytes {
			break
		}

		if _, alive := rec.Payload.Resolve(); !alive {
			l.removeLocked(rec)
			freed += rec.SizeBytes
			continue
		}

		if rec.PriorityTier >= ProtectedPriorityTier {
			continue
		}

		if now.Sub(rec.LastAccessedAt) <= l.idleThreshold {
			continue
		}

		l.removeLocked(rec)
		freed += rec.SizeBytes

		*events = append(*events, event{
			pos:  HookPosFreed,
			item: FreedInfo{ID: rec.ID, SizeBytes: rec.SizeBytes},
		})
	}

	return freed
}
