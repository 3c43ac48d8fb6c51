package core

import "github.com/benbjohnson/clock"

// Clock is the time source of a Queue. Window timers, the timeout race and
// timestamps in task history all go through it, so tests can substitute a
// *clock.Mock and advance time by hand.
type Clock = clock.Clock

// NewClock returns a Clock backed by the runtime's wall clock.
func NewClock() Clock {
	return clock.New()
}
