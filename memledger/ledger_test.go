package memledger

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/deeptree/echosim/hooking"
)

type collectorHook struct {
	events []hooking.HookCtx
}

func (h *collectorHook) Func(ctx hooking.HookCtx) {
	h.events = append(h.events, ctx)
}

func (h *collectorHook) byPos(pos *hooking.HookPos) []hooking.HookCtx {
	var matched []hooking.HookCtx
	for _, ctx := range h.events {
		if ctx.Pos == pos {
			matched = append(matched, ctx)
		}
	}
	return matched
}

var _ = Describe("Ledger", func() {
	var (
		mockCtrl  *gomock.Controller
		clock     *MockClock
		now       time.Time
		ledger    *Ledger
		collector *collectorHook
	)

	alive := func(id string) Handle {
		return NewOwnedPayload("payload-" + id)
	}

	blockCount := func() int {
		stats, err := ledger.GetStats()
		Expect(err).NotTo(HaveOccurred())
		return stats.BlockCount
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = NewMockClock(mockCtrl)
		now = time.Unix(1000, 0)
		clock.EXPECT().
			Now().
			DoAndReturn(func() time.Time { return now }).
			AnyTimes()

		ledger = MakeBuilder().
			WithBudgetBytes(1000).
			WithIdleThreshold(300 * time.Second).
			WithSweepInterval(0).
			WithClock(clock).
			Build("Ledger")

		collector = &collectorHook{}
		ledger.AcceptHook(collector)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("when allocating", func() {
		It("should track the record and emit an Allocated event", func() {
			err := ledger.Allocate("x", 600, alive("x"), DefaultPriorityTier)

			Expect(err).NotTo(HaveOccurred())
			stats, _ := ledger.GetStats()
			Expect(stats.TotalAllocated).To(Equal(uint64(600)))
			Expect(stats.TotalUsed).To(Equal(uint64(600)))
			Expect(stats.BlockCount).To(Equal(1))
			Expect(stats.AverageUtilization).To(BeNumerically("~", 0.6, 1e-9))

			allocated := collector.byPos(HookPosAllocated)
			Expect(allocated).To(HaveLen(1))
			Expect(allocated[0].Item).To(
				Equal(AllocatedInfo{ID: "x", SizeBytes: 600}))
		})

		It("should panic on a zero-sized allocation", func() {
			Expect(func() {
				_ = ledger.Allocate("x", 0, alive("x"), DefaultPriorityTier)
			}).To(Panic())
		})

		It("should fall back to the default tier for negative tiers", func() {
			err := ledger.Allocate("x", 100, alive("x"), -1)

			Expect(err).NotTo(HaveOccurred())
			records, _ := ledger.Snapshot()
			Expect(records).To(HaveLen(1))
			Expect(records[0].PriorityTier).To(Equal(DefaultPriorityTier))
		})

		It("should replace an existing record with the same id", func() {
			Expect(ledger.Allocate("x", 600, alive("x"), 0)).To(Succeed())

			err := ledger.Allocate("x", 700, alive("x"), ProtectedPriorityTier)

			Expect(err).NotTo(HaveOccurred())
			stats, _ := ledger.GetStats()
			Expect(stats.TotalAllocated).To(Equal(uint64(700)))
			Expect(stats.BlockCount).To(Equal(1))
		})

		It("should fail when no record is eviction-eligible", func() {
			Expect(ledger.Allocate("x", 600, alive("x"), 1)).To(Succeed())

			err := ledger.Allocate("y", 500, alive("y"), 1)

			Expect(err).To(MatchError(ErrInsufficientBudget))
			stats, _ := ledger.GetStats()
			Expect(stats.TotalAllocated).To(Equal(uint64(600)))
			Expect(stats.BlockCount).To(Equal(1))
		})

		It("should evict an idle low-priority record to make room", func() {
			Expect(ledger.Allocate("x", 600, alive("x"), 0)).To(Succeed())
			now = now.Add(301 * time.Second)

			err := ledger.Allocate("y", 500, alive("y"), 1)

			Expect(err).NotTo(HaveOccurred())
			freed := collector.byPos(HookPosFreed)
			Expect(freed).To(HaveLen(1))
			Expect(freed[0].Item).To(Equal(FreedInfo{ID: "x", SizeBytes: 600}))

			_, err = ledger.Access("x")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should drop dead-handle records without policy judgment", func() {
			payload := NewOwnedPayload("x")
			Expect(ledger.Allocate("x", 600, payload, 1)).To(Succeed())
			payload.Invalidate()

			err := ledger.Allocate("y", 500, alive("y"), 1)

			Expect(err).NotTo(HaveOccurred())
			Expect(collector.byPos(HookPosFreed)).To(BeEmpty())
			Expect(blockCount()).To(Equal(1))
		})
	})

	Context("when evicting under budget pressure", func() {
		BeforeEach(func() {
			Expect(ledger.Allocate("a", 250, alive("a"), 0)).To(Succeed())
			now = now.Add(10 * time.Second)
			Expect(ledger.Allocate("b", 250, alive("b"), 0)).To(Succeed())
			now = now.Add(10 * time.Second)
			Expect(ledger.Allocate("c", 250, alive("c"), 1)).To(Succeed())
			now = now.Add(10 * time.Second)
			Expect(ledger.Allocate("d", 250, alive("d"), 2)).To(Succeed())
			now = now.Add(400 * time.Second)
		})

		It("should evict the oldest lowest-tier record first", func() {
			err := ledger.Allocate("e", 250, alive("e"), 1)

			Expect(err).NotTo(HaveOccurred())
			freed := collector.byPos(HookPosFreed)
			Expect(freed).To(HaveLen(1))
			Expect(freed[0].Item).To(Equal(FreedInfo{ID: "a", SizeBytes: 250}))

			_, err = ledger.Access("b")
			Expect(err).NotTo(HaveOccurred())
			_, err = ledger.Access("d")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should never evict protected records and keep partial evictions",
			func() {
				err := ledger.Allocate("e", 1000, alive("e"), 1)

				Expect(err).To(MatchError(ErrInsufficientBudget))

				// a, b, and c were freed before the walk came up short, and
				// they stay freed.
				Expect(collector.byPos(HookPosFreed)).To(HaveLen(3))
				Expect(blockCount()).To(Equal(1))

				_, err = ledger.Access("d")
				Expect(err).NotTo(HaveOccurred())
			})
	})

	Context("when accessing", func() {
		It("should fail for an unknown id", func() {
			_, err := ledger.Access("missing")

			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should return the payload of a live record", func() {
			handle := NewMockHandle(mockCtrl)
			handle.EXPECT().Resolve().Return("the-payload", true).AnyTimes()
			Expect(ledger.Allocate("x", 100, handle, 1)).To(Succeed())

			payload, err := ledger.Access("x")

			Expect(err).NotTo(HaveOccurred())
			Expect(payload).To(Equal("the-payload"))
		})

		It("should refresh recency so the record survives eviction", func() {
			Expect(ledger.Allocate("x", 600, alive("x"), 0)).To(Succeed())
			now = now.Add(301 * time.Second)
			_, err := ledger.Access("x")
			Expect(err).NotTo(HaveOccurred())

			err = ledger.Allocate("y", 500, alive("y"), 1)

			Expect(err).To(MatchError(ErrInsufficientBudget))
		})

		It("should reclaim a record whose payload is gone", func() {
			payload := NewOwnedPayload("x")
			Expect(ledger.Allocate("x", 100, payload, 1)).To(Succeed())
			payload.Invalidate()

			_, err := ledger.Access("x")
			Expect(err).To(MatchError(ErrReclaimed))
			Expect(blockCount()).To(Equal(0))

			_, err = ledger.Access("x")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Context("when releasing", func() {
		It("should remove the record", func() {
			Expect(ledger.Allocate("x", 100, alive("x"), 1)).To(Succeed())

			Expect(ledger.Release("x")).To(Succeed())

			Expect(ledger.Release("x")).To(MatchError(ErrNotFound))
			Expect(blockCount()).To(Equal(0))
		})
	})

	Context("when sweeping", func() {
		It("should remove every dead record in one pass", func() {
			dead := []*OwnedPayload{
				NewOwnedPayload("a"),
				NewOwnedPayload("b"),
				NewOwnedPayload("c"),
			}
			Expect(ledger.Allocate("a", 100, dead[0], 1)).To(Succeed())
			Expect(ledger.Allocate("b", 200, dead[1], 2)).To(Succeed())
			Expect(ledger.Allocate("c", 300, dead[2], 0)).To(Succeed())
			Expect(ledger.Allocate("live", 150, alive("live"), 1)).To(Succeed())
			for _, p := range dead {
				p.Invalidate()
			}
			Expect(blockCount()).To(Equal(4))

			freed, err := ledger.SweepNow()

			Expect(err).NotTo(HaveOccurred())
			Expect(freed).To(Equal(uint64(600)))
			Expect(blockCount()).To(Equal(1))

			swept := collector.byPos(HookPosSweepComplete)
			Expect(swept).To(HaveLen(1))
			Expect(swept[0].Item).To(
				Equal(SweepInfo{FreedBytes: 600, RecordsRemoved: 3}))
		})

		It("should emit nothing when every record is live", func() {
			Expect(ledger.Allocate("x", 100, alive("x"), 1)).To(Succeed())

			freed, err := ledger.SweepNow()

			Expect(err).NotTo(HaveOccurred())
			Expect(freed).To(Equal(uint64(0)))
			Expect(collector.byPos(HookPosSweepComplete)).To(BeEmpty())
		})
	})

	Context("when reading stats", func() {
		It("should return identical results without intervening mutation",
			func() {
				Expect(ledger.Allocate("x", 400, alive("x"), 1)).To(Succeed())
				Expect(ledger.SetUsedBytes("x", 100)).To(Succeed())

				first, err := ledger.GetStats()
				Expect(err).NotTo(HaveOccurred())
				second, err := ledger.GetStats()
				Expect(err).NotTo(HaveOccurred())

				Expect(second).To(Equal(first))
				Expect(first.FragmentationRatio).To(
					BeNumerically("~", 0.75, 1e-9))
			})

		It("should report zero fragmentation for an empty ledger", func() {
			stats, err := ledger.GetStats()

			Expect(err).NotTo(HaveOccurred())
			Expect(stats.FragmentationRatio).To(BeZero())
			Expect(stats.AverageUtilization).To(BeZero())
		})
	})

	Context("when reporting used bytes", func() {
		It("should reject a value above the allocation size", func() {
			Expect(ledger.Allocate("x", 100, alive("x"), 1)).To(Succeed())

			err := ledger.SetUsedBytes("x", 101)

			Expect(err).To(HaveOccurred())
			stats, _ := ledger.GetStats()
			Expect(stats.TotalUsed).To(Equal(uint64(100)))
		})
	})

	Context("when destroyed", func() {
		It("should reject every further operation", func() {
			Expect(ledger.Allocate("x", 100, alive("x"), 1)).To(Succeed())

			Expect(ledger.Destroy()).To(Succeed())

			Expect(collector.byPos(HookPosDestroyed)).To(HaveLen(1))
			Expect(ledger.Allocate("y", 1, alive("y"), 1)).
				To(MatchError(ErrLedgerTerminated))
			_, err := ledger.Access("x")
			Expect(err).To(MatchError(ErrLedgerTerminated))
			Expect(ledger.Release("x")).To(MatchError(ErrLedgerTerminated))
			_, err = ledger.GetStats()
			Expect(err).To(MatchError(ErrLedgerTerminated))
			_, err = ledger.SweepNow()
			Expect(err).To(MatchError(ErrLedgerTerminated))
			_, err = ledger.Defragment()
			Expect(err).To(MatchError(ErrLedgerTerminated))
			Expect(ledger.Destroy()).To(MatchError(ErrLedgerTerminated))
		})
	})
})

var _ = Describe("Ledger with a background sweep", func() {
	It("should reclaim dead records without being asked", func() {
		ledger := MakeBuilder().
			WithBudgetBytes(1000).
			WithSweepInterval(5 * time.Millisecond).
			Build("BackgroundLedger")
		defer func() { _ = ledger.Destroy() }()

		payload := NewOwnedPayload("x")
		Expect(ledger.Allocate("x", 100, payload, 1)).To(Succeed())
		payload.Invalidate()

		Eventually(func() int {
			stats, err := ledger.GetStats()
			Expect(err).NotTo(HaveOccurred())
			return stats.BlockCount
		}).Should(Equal(0))
	})
})
