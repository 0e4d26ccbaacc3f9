package memledger

// Stats is a point-in-time summary of the ledger's accounting. Two calls to
// GetStats with no mutation in between return identical values.
type Stats struct {
	TotalAllocated     uint64
	TotalUsed          uint64
	BlockCount         int
	FragmentationRatio float64
	AverageUtilization float64
}

// GetStats reports the current accounting aggregates. It is a pure read.
func (l *Ledger) GetStats() (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminated {
		return Stats{}, ErrLedgerTerminated
	}

	return l.statsLocked(), nil
}

func (l *Ledger) statsLocked() Stats {
	stats := Stats{
		TotalAllocated: l.totalAllocated,
		TotalUsed:      l.totalUsed,
		BlockCount:     len(l.records),
	}

	if l.totalAllocated > 0 {
		stats.FragmentationRatio =
			1 - float64(l.totalUsed)/float64(l.totalAllocated)
	}

	if l.budgetBytes > 0 {
		stats.AverageUtilization =
			float64(l.totalUsed) / float64(l.budgetBytes)
	}

	return stats
}
