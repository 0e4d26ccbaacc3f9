package memledger

import "github.com/deeptree/echosim/hooking"

// HookPosAllocated triggers after a record is inserted into the ledger.
var HookPosAllocated = &hooking.HookPos{Name: "Allocated"}

// HookPosFreed triggers after the eviction policy removes a live record to
// make room for an allocation.
var HookPosFreed = &hooking.HookPos{Name: "Freed"}

// HookPosSweepComplete triggers after a liveness sweep that removed at least
// one record.
var HookPosSweepComplete = &hooking.HookPos{Name: "SweepComplete"}

// HookPosDefragmentComplete triggers after the compactor rebuilds the ledger.
var HookPosDefragmentComplete = &hooking.HookPos{Name: "DefragmentComplete"}

// HookPosDestroyed triggers once when the ledger is torn down.
var HookPosDestroyed = &hooking.HookPos{Name: "Destroyed"}

// AllocatedInfo is the hook item attached to HookPosAllocated.
type AllocatedInfo struct {
	ID        string
	SizeBytes uint64
}

// FreedInfo is the hook item attached to HookPosFreed.
type FreedInfo struct {
	ID        string
	SizeBytes uint64
}

// SweepInfo is the hook item attached to HookPosSweepComplete.
type SweepInfo struct {
	FreedBytes     uint64
	RecordsRemoved int
}

// DefragmentInfo is the hook item attached to HookPosDefragmentComplete.
type DefragmentInfo struct {
	Stats Stats
}

// event is an emission staged during a mutating operation. Hooks fire after
// the ledger lock is released, in the order the events were staged.
type event struct {
	pos  *hooking.HookPos
	item any
}
