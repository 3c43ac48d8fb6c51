package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-async-queue/core"
)

// QueueSnapshotProvider provides current queue stats snapshots.
// *core.Queue satisfies it.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

var _ QueueSnapshotProvider = (*core.Queue)(nil)

// settledOutcomes follows the counter order of core.QueueStats.
var settledOutcomes = [...]core.Outcome{
	core.OutcomeCompleted,
	core.OutcomeFailed,
	core.OutcomeTimeout,
	core.OutcomeAborted,
	core.OutcomeCleared,
}

// SnapshotPoller periodically exports queue Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	pending       *prom.GaugeVec
	running       *prom.GaugeVec
	concurrency   *prom.GaugeVec
	intervalCount *prom.GaugeVec
	paused        *prom.GaugeVec
	settled       *prom.GaugeVec

	stateMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	pending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncqueue",
		Name:      "pending",
		Help:      "Number of pending tasks per queue.",
	}, []string{"queue"})
	running := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncqueue",
		Name:      "running",
		Help:      "Number of running tasks per queue.",
	}, []string{"queue"})
	concurrency := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncqueue",
		Name:      "concurrency",
		Help:      "Concurrency limit per queue.",
	}, []string{"queue"})
	intervalCount := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncqueue",
		Name:      "interval_count",
		Help:      "Task starts counted in the current rate-limit window.",
	}, []string{"queue"})
	paused := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncqueue",
		Name:      "paused",
		Help:      "Queue paused state (1=paused, 0=started).",
	}, []string{"queue"})
	settled := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asyncqueue",
		Name:      "settled_snapshot",
		Help:      "Settled task count snapshot by outcome.",
	}, []string{"queue", "outcome"})

	var err error
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}
	if concurrency, err = registerCollector(reg, concurrency); err != nil {
		return nil, err
	}
	if intervalCount, err = registerCollector(reg, intervalCount); err != nil {
		return nil, err
	}
	if paused, err = registerCollector(reg, paused); err != nil {
		return nil, err
	}
	if settled, err = registerCollector(reg, settled); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:      interval,
		queues:        make(map[string]QueueSnapshotProvider),
		pending:       pending,
		running:       running,
		concurrency:   concurrency,
		intervalCount: intervalCount,
		paused:        paused,
		settled:       settled,
	}, nil
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// RemoveQueue stops polling name and drops its series.
func (p *SnapshotPoller) RemoveQueue(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	delete(p.queues, name)
	p.queuesMu.Unlock()

	for _, vec := range []*prom.GaugeVec{p.pending, p.running, p.concurrency, p.intervalCount, p.paused} {
		vec.DeleteLabelValues(name)
	}
	for _, outcome := range settledOutcomes {
		p.settled.DeleteLabelValues(name, string(outcome))
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.started {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.started {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.started = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.queuesMu.RLock()
	defer p.queuesMu.RUnlock()

	for name, provider := range p.queues {
		stats := provider.Stats()
		p.pending.WithLabelValues(name).Set(float64(stats.Pending))
		p.running.WithLabelValues(name).Set(float64(stats.Running))
		p.concurrency.WithLabelValues(name).Set(float64(stats.Concurrency))
		p.intervalCount.WithLabelValues(name).Set(float64(stats.IntervalCount))
		if stats.Paused {
			p.paused.WithLabelValues(name).Set(1)
		} else {
			p.paused.WithLabelValues(name).Set(0)
		}

		counts := [...]int64{stats.Completed, stats.Failed, stats.TimedOut, stats.Aborted, stats.Cleared}
		for i, outcome := range settledOutcomes {
			p.settled.WithLabelValues(name, string(outcome)).Set(float64(counts[i]))
		}
	}
}
