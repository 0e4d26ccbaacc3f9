package recording

import (
	"time"

	"github.com/deeptree/echosim/hooking"
	"github.com/deeptree/echosim/memledger"
)

// Tables written by the LedgerEventRecorder.
const (
	AllocationTable      = "ledger_allocations"
	EvictionTable        = "ledger_evictions"
	SweepTable           = "ledger_sweeps"
	DefragmentationTable = "ledger_defragmentations"
)

type allocationRow struct {
	Time         string
	Ledger       string
	AllocationID string
	SizeBytes    uint64
}

type evictionRow struct {
	Time         string
	Ledger       string
	AllocationID string
	SizeBytes    uint64
}

type sweepRow struct {
	Time           string
	Ledger         string
	FreedBytes     uint64
	RecordsRemoved int
}

type defragmentationRow struct {
	Time               string
	Ledger             string
	TotalAllocated     uint64
	TotalUsed          uint64
	BlockCount         int
	FragmentationRatio float64
	AverageUtilization float64
}

// A LedgerEventRecorder is a hook that persists ledger events through a
// DataRecorder. Register it on a ledger with AcceptHook.
type LedgerEventRecorder struct {
	recorder DataRecorder
}

// NewLedgerEventRecorder creates the recorder and its tables.
func NewLedgerEventRecorder(recorder DataRecorder) *LedgerEventRecorder {
	recorder.CreateTable(AllocationTable, allocationRow{})
	recorder.CreateTable(EvictionTable, evictionRow{})
	recorder.CreateTable(SweepTable, sweepRow{})
	recorder.CreateTable(DefragmentationTable, defragmentationRow{})

	return &LedgerEventRecorder{recorder: recorder}
}

// Func translates ledger hook events into table rows.
func (r *LedgerEventRecorder) Func(ctx hooking.HookCtx) {
	ledgerName := ""
	if named, ok := ctx.Domain.(interface{ Name() string }); ok {
		ledgerName = named.Name()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	switch ctx.Pos {
	case memledger.HookPosAllocated:
		info := ctx.Item.(memledger.AllocatedInfo)
		r.recorder.InsertData(AllocationTable, allocationRow{
			Time:         now,
			Ledger:       ledgerName,
			AllocationID: info.ID,
			SizeBytes:    info.SizeBytes,
		})
	case memledger.HookPosFreed:
		info := ctx.Item.(memledger.FreedInfo)
		r.recorder.InsertData(EvictionTable, evictionRow{
			Time:         now,
			Ledger:       ledgerName,
			AllocationID: info.ID,
			SizeBytes:    info.SizeBytes,
		})
	case memledger.HookPosSweepComplete:
		info := ctx.Item.(memledger.SweepInfo)
		r.recorder.InsertData(SweepTable, sweepRow{
			Time:           now,
			Ledger:         ledgerName,
			FreedBytes:     info.FreedBytes,
			RecordsRemoved: info.RecordsRemoved,
		})
	case memledger.HookPosDefragmentComplete:
		info := ctx.Item.(memledger.DefragmentInfo)
		r.recorder.InsertData(DefragmentationTable, defragmentationRow{
			Time:               now,
			Ledger:             ledgerName,
			TotalAllocated:     info.Stats.TotalAllocated,
			TotalUsed:          info.Stats.TotalUsed,
			BlockCount:         info.Stats.BlockCount,
			FragmentationRatio: info.Stats.FragmentationRatio,
			AverageUtilization: info.Stats.AverageUtilization,
		})
	case memledger.HookPosDestroyed:
		r.recorder.Flush()
	}
}
