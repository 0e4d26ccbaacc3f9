package memledger

import "time"

// A Clock tells the current time. The ledger only compares times it obtained
// from the same Clock, so any monotonic source works.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}
