package asyncqueue

import "github.com/Swind/go-async-queue/core"

// New creates a Queue from opts. Start from DefaultOptions: Concurrency and
// IntervalCap must be >= 1 (use Unbounded to lift either limit).
func New(opts Options) (*Queue, error) {
	return core.NewQueue(opts)
}

// NewDefault creates an unbounded, auto-started Queue.
func NewDefault() *Queue {
	q, err := core.NewQueue(core.DefaultOptions())
	if err != nil {
		// DefaultOptions always validates.
		panic(err)
	}
	return q
}
