package attempt

import "sync/atomic"

// Gate is the single-shot latch in front of the reporter. Whoever acquires
// it first owns the outbound submission call; everybody else backs off.
type Gate struct {
	busy atomic.Bool
}

// Acquire takes the latch. It returns false when a submission is in flight.
func (g *Gate) Acquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the latch after a failed or finished call.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Busy reports whether a submission is in flight.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}

// ManualAllowed tells whether a candidate-initiated submission may proceed.
// Once time is up the completeness rule no longer applies.
func ManualAllowed(answered, total int, expired bool) bool {
	return expired || answered == total
}
