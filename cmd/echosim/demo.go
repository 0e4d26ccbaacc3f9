package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/deeptree/echosim/hooking"
	"github.com/deeptree/echosim/memledger"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a synthetic workload against a small ledger.",
	Long: `The demo allocates reservoir states and training batches into a ` +
		`tiny ledger, then walks through eviction, liveness reclamation, ` +
		`and compaction while printing every ledger event.`,
	Run: func(_ *cobra.Command, _ []string) {
		runDemo()
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

type printingHook struct{}

func (printingHook) Func(ctx hooking.HookCtx) {
	fmt.Printf("[%s] %+v\n", ctx.Pos.Name, ctx.Item)
}

func runDemo() {
	ledger := memledger.MakeBuilder().
		WithBudgetBytes(2 * memledger.KB).
		WithIdleThreshold(0).
		WithSweepInterval(0).
		Build("DemoLedger")
	ledger.AcceptHook(printingHook{})

	// Reservoir states stay protected; training batches come and go.
	reservoirState := make([]float64, 64)
	reservoir := &reservoirState
	mustAllocate(ledger, "reservoir-0", 512,
		memledger.NewWeakHandle(reservoir), memledger.ProtectedPriorityTier)

	batches := make([]*memledger.OwnedPayload, 3)
	for i := range batches {
		batches[i] = memledger.NewOwnedPayload(make([]byte, 512))
		mustAllocate(ledger, fmt.Sprintf("batch-%d", i), 512, batches[i], 0)
	}

	printStats(ledger, "after initial allocations")

	// The batch owner retires one batch; the next access reclaims it.
	batches[0].Invalidate()
	if _, err := ledger.Access("batch-0"); err != nil {
		fmt.Printf("access batch-0: %v\n", err)
	}

	// Budget pressure evicts the idle batches, never the reservoir.
	mustAllocate(ledger, "batch-new", 1024,
		memledger.NewOwnedPayload(make([]byte, 1024)), 1)
	printStats(ledger, "after eviction")

	// Owners report partial utilization, then compaction rebuilds the
	// ledger.
	if err := ledger.SetUsedBytes("batch-new", 256); err != nil {
		fmt.Printf("set used bytes: %v\n", err)
	}
	if _, err := ledger.Defragment(); err != nil {
		fmt.Printf("defragment: %v\n", err)
	}
	printStats(ledger, "after compaction")

	_ = ledger.Destroy()

	// The reservoir is tracked through a weak handle; keep the strong
	// reference alive until the ledger is done with it.
	runtime.KeepAlive(reservoir)
}

func mustAllocate(
	ledger *memledger.Ledger,
	id string,
	sizeBytes uint64,
	payload memledger.Handle,
	tier int,
) {
	err := ledger.Allocate(id, sizeBytes, payload, tier)
	if err != nil {
		fmt.Printf("allocate %s: %v\n", id, err)
	}
}

func printStats(ledger *memledger.Ledger, label string) {
	stats, err := ledger.GetStats()
	if err != nil {
		fmt.Printf("stats %s: %v\n", label, err)
		return
	}

	fmt.Printf("%s: %d blocks, %d/%d bytes, fragmentation %.2f\n",
		label, stats.BlockCount, stats.TotalUsed, stats.TotalAllocated,
		stats.FragmentationRatio)
}
