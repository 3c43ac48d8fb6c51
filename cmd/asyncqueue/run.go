package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/Swind/go-async-queue/config"
	"github.com/Swind/go-async-queue/core"
	obs "github.com/Swind/go-async-queue/observability/prometheus"
)

var errSynthetic = errors.New("synthetic failure")

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Submit synthetic tasks and wait until the queue is idle",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "Number of tasks to submit",
			},
			&cli.DurationFlag{
				Name:  "work",
				Value: 50 * time.Millisecond,
				Usage: "Upper bound of each task's simulated work",
			},
			&cli.IntFlag{
				Name:  "priorities",
				Value: 3,
				Usage: "Tasks get a random priority in [0, priorities)",
			},
			&cli.Float64Flag{
				Name:  "fail-rate",
				Usage: "Probability in [0, 1] that an attempt fails",
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Retry failed attempts up to this many times",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Override queue.concurrency",
			},
			&cli.IntFlag{
				Name:  "interval-cap",
				Usage: "Override queue.interval_cap",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Override queue.interval",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Override queue.timeout",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Serve Prometheus metrics on metrics.listen",
			},
			&cli.DurationFlag{
				Name:  "linger",
				Usage: "Keep the metrics endpoint up this long after the run",
			},
		},

		Action: RunAction,
	}
}

func RunAction(c *cli.Context) error {
	// 1. Configuration
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	applyRunFlags(c, cfg)
	if err := config.Validate(cfg); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Int("tasks") < 0 || c.Int("priorities") < 1 {
		return cli.Exit("tasks must be >= 0 and priorities >= 1", 1)
	}
	failRate := c.Float64("fail-rate")
	if failRate < 0 || failRate > 1 {
		return cli.Exit("fail-rate must be within [0, 1]", 1)
	}

	zl, err := cfg.Log.NewLogger()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to build logger: %v", err), 1)
	}
	defer func() { _ = zl.Sync() }()
	logger := core.NewZapLogger(zl)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Queue
	opts := cfg.Queue.QueueOptions()
	opts.Logger = logger
	opts.PanicHandler = &core.DefaultPanicHandler{Logger: logger}

	var poller *obs.SnapshotPoller
	var server *http.Server
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to register metrics: %v", err), 1)
		}
		opts.Metrics = exporter

		poller, err = obs.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to register metrics: %v", err), 1)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", core.F("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", core.F("addr", cfg.Metrics.Listen))
	}

	q, err := core.NewQueue(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid queue configuration: %v", err), 1)
	}
	if poller != nil {
		poller.AddQueue(q.Name(), q)
		poller.Start(ctx)
		defer poller.Stop()
	}

	unsubscribe := q.On(core.EventError, func(ev core.Event) {
		logger.Warn("task failed", core.F("task", ev.Name), core.F("priority", ev.Priority), core.F("error", ev.Err))
	})
	defer unsubscribe()

	// 3. Load
	tasks := c.Int("tasks")
	work := c.Duration("work")
	policy := core.NoRetry()
	if n := c.Int("retries"); n > 0 {
		policy = core.DefaultRetryPolicy()
		policy.MaxRetries = n
	}

	started := time.Now()
	for i := range tasks {
		task := core.RetryNotify(syntheticTask(work, failRate), policy, func(err error, next time.Duration) {
			logger.Debug("retrying task", core.F("error", err), core.F("backoff", next))
		})
		_, err := q.AddWithOptions(ctx, task, core.TaskOptions{
			Name:     fmt.Sprintf("synthetic-%d", i),
			Priority: rand.IntN(c.Int("priorities")),
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to submit task: %v", err), 1)
		}
	}

	if err := q.WaitUntilIdle(ctx); err != nil {
		q.Pause()
		q.Clear()
		logger.Warn("run interrupted", core.F("error", err))
	}

	// 4. Report
	stats := q.Stats()
	fmt.Fprintf(c.App.Writer, "queue %q: %d completed, %d failed, %d timed out, %d aborted, %d cleared in %v\n",
		stats.Name, stats.Completed, stats.Failed, stats.TimedOut, stats.Aborted, stats.Cleared,
		time.Since(started).Round(time.Millisecond))
	for _, rec := range q.RecentTasks(5) {
		fmt.Fprintf(c.App.Writer, "  %-14s priority=%d outcome=%-9s waited=%v ran=%v\n",
			rec.Name, rec.Priority, rec.Outcome,
			rec.StartedAt.Sub(rec.EnqueuedAt).Round(time.Millisecond),
			rec.Duration.Round(time.Millisecond))
	}

	if server != nil && ctx.Err() == nil {
		if linger := c.Duration("linger"); linger > 0 {
			logger.Info("lingering for scrapes", core.F("duration", linger))
			select {
			case <-time.After(linger):
			case <-ctx.Done():
			}
		}
	}
	return nil
}

func applyRunFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("concurrency") {
		cfg.Queue.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("interval-cap") {
		cfg.Queue.IntervalCap = c.Int("interval-cap")
	}
	if c.IsSet("interval") {
		cfg.Queue.Interval = c.Duration("interval")
	}
	if c.IsSet("timeout") {
		cfg.Queue.Timeout = c.Duration("timeout")
	}
	if c.IsSet("metrics") {
		cfg.Metrics.Enabled = c.Bool("metrics")
	}
}

// syntheticTask sleeps for up to work and fails with probability failRate.
func syntheticTask(work time.Duration, failRate float64) core.Task {
	return func(ctx context.Context) (any, error) {
		d := time.Duration(0)
		if work > 0 {
			d = rand.N(work)
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
		if rand.Float64() < failRate {
			return nil, errSynthetic
		}
		id, _ := core.GetCurrentTaskID(ctx)
		return id.String(), nil
	}
}
