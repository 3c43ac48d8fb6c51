package core

// Rate limiting counts task starts per window of q.interval. A window is
// opened by the first start after the limiter went quiet and is rolled over
// by a periodic timer while tasks are pending or running. When the store
// drains the timer is torn down, but intervalEnd and intervalCount are
// kept: a task submitted before the old window ends is still held to that
// window's cap, and a one-shot resume timer rolls the window over at its
// real end.

func (q *Queue) intervalAllowsLocked() bool {
	return q.intervalIgnored || q.intervalCount < q.intervalCap
}

// isIntervalPausedLocked reports whether a window is still in progress
// without a periodic timer behind it. An elapsed window is rolled over on
// the spot; an unfinished one gets a resume timer for its remaining time.
func (q *Queue) isIntervalPausedLocked() bool {
	if q.intervalIgnored || q.intervalActive {
		return false
	}

	delay := q.intervalEnd.Sub(q.clock.Now())
	if delay <= 0 {
		q.resetIntervalCountLocked()
		return false
	}

	if q.resumeTimer == nil {
		q.resumeGen++
		gen := q.resumeGen
		q.resumeTimer = q.clock.AfterFunc(delay, func() { q.onResumeInterval(gen) })
	}
	return true
}

func (q *Queue) initializeIntervalLocked() {
	if q.intervalIgnored || q.intervalActive {
		return
	}

	q.intervalActive = true
	q.intervalEnd = q.clock.Now().Add(q.interval)
	q.intervalGen++
	gen := q.intervalGen
	q.intervalTimer = q.clock.AfterFunc(q.interval, func() { q.onIntervalTick(gen) })
}

func (q *Queue) stopIntervalLocked() {
	if q.intervalTimer != nil {
		q.intervalTimer.Stop()
		q.intervalTimer = nil
	}
	q.intervalActive = false
	// Invalidate a tick that already fired and is waiting for mu.
	q.intervalGen++
}

func (q *Queue) resetIntervalCountLocked() {
	if q.carryover {
		q.intervalCount = q.running
		return
	}
	q.intervalCount = 0
}

func (q *Queue) onIntervalTick(gen uint64) {
	q.mu.Lock()
	if !q.intervalActive || gen != q.intervalGen {
		q.mu.Unlock()
		return
	}

	if q.intervalCount == 0 && q.running == 0 {
		// Nothing started in the window that just ended and nothing runs.
		q.stopIntervalLocked()
		q.logger.Debug("rate limit window timer stopped", F("queue", q.Name()), F("reason", "quiet"))
	} else {
		q.intervalEnd = q.clock.Now().Add(q.interval)
		q.intervalTimer = q.clock.AfterFunc(q.interval, func() { q.onIntervalTick(gen) })
	}

	q.onIntervalLocked()
	q.mu.Unlock()

	q.flush()
}

func (q *Queue) onResumeInterval(gen uint64) {
	q.mu.Lock()
	if q.resumeTimer == nil || gen != q.resumeGen {
		q.mu.Unlock()
		return
	}
	q.resumeTimer = nil

	q.onIntervalLocked()
	if !q.store.IsEmpty() || q.running > 0 {
		q.initializeIntervalLocked()
	}
	q.mu.Unlock()

	q.flush()
}

// onIntervalLocked rolls the window over and re-runs the run loop.
func (q *Queue) onIntervalLocked() {
	q.resetIntervalCountLocked()
	q.processQueueLocked()
}
