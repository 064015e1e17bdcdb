// Package pool implements the ramp-up / steady-state / shutdown lifecycle
// of a run's simulated-user population. It spawns each
// user's internal/runner.Runner onto a shared internal/concurrent.Pool,
// computes user counts per task set via internal/planner.UserCounts, and
// interleaves spawn order so any prefix stays within one user of its
// target ratio.
package pool

import (
	"context"
	"time"

	"github.com/vemoo/goose/internal/client"
	"github.com/vemoo/goose/internal/concurrent"
	"github.com/vemoo/goose/internal/planner"
	"github.com/vemoo/goose/internal/runner"
	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/pkg/logger"
	"github.com/vemoo/goose/task"
)

var log = logger.GetLogger("Pool", "Controller")

// Options configures one Controller run.
type Options struct {
	// Users is the total number of simulated users to spawn across every
	// task set.
	Users int
	// HatchRate is the number of users spawned per second during ramp-up.
	HatchRate int
	// RunTime, if non-zero, is the duration after which shutdown begins
	// automatically.
	RunTime time.Duration
	// ShutdownGrace bounds how long the controller waits for a user to
	// finish on-stop and exit after EXIT is broadcast; users exceeding it
	// are abandoned (their last-merged statistics are kept).
	ShutdownGrace time.Duration
	// Host is the default target host; a task set's own host override,
	// if set, takes precedence.
	Host string
	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration
	// ResetStats, if true, clears the aggregator once ramp-up completes,
	// so the run's reported statistics exclude ramp-up noise.
	ResetStats bool
	// DebugLogger, if non-nil, receives every spawned user's LogDebug
	// calls (e.g. a task body recording headers/body on an unacceptable
	// response).
	DebugLogger runner.DebugLogger
}

// Controller drives a run's population of simulated users from zero to
// steady-state to a clean or deadline-bounded shutdown.
type Controller struct {
	opts      Options
	taskSets  []*task.TaskSet
	agg       *stats.Aggregator
	workerCap int

	workers concurrent.Pool
	stop    chan struct{}

	commandChans []chan runner.Command
	done         chan struct{}
	alive        int
}

// New creates a Controller for taskSets, reporting to agg, running its
// users on a goroutine pool capped at workerCap concurrent OS-thread
// workers (the "M" in the M:N scheduling model).
func New(opts Options, taskSets []*task.TaskSet, agg *stats.Aggregator, workerCap int) *Controller {
	if workerCap < 1 {
		workerCap = opts.Users
	}
	return &Controller{
		opts:      opts,
		taskSets:  taskSets,
		agg:       agg,
		workerCap: workerCap,
		stop:      make(chan struct{}),
	}
}

// spawnPlan is one user's binding: which task set it belongs to.
type spawnPlan struct {
	taskSet *task.TaskSet
}

// interleavedSpawnOrder builds the spawn sequence so that, at any prefix,
// each task set's count is within ±1 of its target ratio. It repeatedly
// picks the task set whose spawned-so-far count is furthest behind its
// proportional share.
func interleavedSpawnOrder(taskSets []*task.TaskSet, counts map[*task.TaskSet]int) []spawnPlan {
	total := 0
	for _, ts := range taskSets {
		total += counts[ts]
	}
	spawned := make(map[*task.TaskSet]int, len(taskSets))
	order := make([]spawnPlan, 0, total)

	for i := 0; i < total; i++ {
		var best *task.TaskSet
		var bestDeficit float64
		for _, ts := range taskSets {
			target := counts[ts]
			if spawned[ts] >= target {
				continue
			}
			share := float64(target) / float64(total)
			deficit := share*float64(i+1) - float64(spawned[ts])
			if best == nil || deficit > bestDeficit {
				best = ts
				bestDeficit = deficit
			}
		}
		spawned[best]++
		order = append(order, spawnPlan{taskSet: best})
	}
	return order
}

// Run executes the full lifecycle: ramp-up, steady-state wait, shutdown.
// It blocks until every user has exited or been abandoned at the shutdown
// deadline.
func (c *Controller) Run(ctx context.Context) {
	counts := planner.UserCounts(c.taskSets, c.opts.Users)
	order := interleavedSpawnOrder(c.taskSets, counts)

	c.workers = concurrent.NewPool("users", c.workerCap, 30*time.Second, nil)
	c.done = make(chan struct{}, len(order))
	c.alive = len(order)

	log.Info("ramp-up starting", logger.Int("users", len(order)), logger.Int("hatchRate", c.opts.HatchRate))
	c.hatch(ctx, order)
	log.Info("ramp-up complete")

	if c.opts.ResetStats {
		c.agg.Reset()
		log.Info("statistics reset after ramp-up")
	}

	c.awaitSteadyState(ctx)

	log.Info("shutdown starting")
	c.shutdown()
	log.Info("shutdown complete")
}

// hatch spawns users at opts.HatchRate per second.
func (c *Controller) hatch(ctx context.Context, order []spawnPlan) {
	interval := time.Second
	perTick := c.opts.HatchRate
	if perTick < 1 {
		perTick = 1
	}

	i := 0
	for i < len(order) {
		tickEnd := i + perTick
		if tickEnd > len(order) {
			tickEnd = len(order)
		}
		for ; i < tickEnd; i++ {
			c.spawnUser(ctx, order[i].taskSet)
		}
		if i < len(order) {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Controller) spawnUser(ctx context.Context, ts *task.TaskSet) {
	host := ts.HostOverride()
	if host == "" {
		host = c.opts.Host
	}

	cl := client.New(host, c.opts.RequestTimeout, c.agg)
	u := runner.NewUser(cl, c.opts.DebugLogger)
	plan := planner.Build(ts)
	commands := make(chan runner.Command, 1)
	c.commandChans = append(c.commandChans, commands)

	minWait, maxWait := ts.MinWait(), ts.MaxWait()
	r := runner.New(ts, plan, u, commands, minWait, maxWait)

	c.workers.Submit(ctx, concurrent.NewTask(func() {
		r.Run()
		c.done <- struct{}{}
	}, func(err error) {
		log.Error("user scheduler panicked", logger.Error(err))
		c.done <- struct{}{}
	}))
}

// awaitSteadyState blocks until the run-time timer elapses, the context is
// canceled (external stop signal), or every user has self-exited.
func (c *Controller) awaitSteadyState(ctx context.Context) {
	var timer <-chan time.Time
	if c.opts.RunTime > 0 {
		t := time.NewTimer(c.opts.RunTime)
		defer t.Stop()
		timer = t.C
	}

	for c.alive > 0 {
		select {
		case <-timer:
			return
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-c.done:
			c.alive--
		}
	}
}

// Stop requests an external (operator-initiated) shutdown.
func (c *Controller) Stop() {
	select {
	case c.stop <- struct{}{}:
	default:
	}
}

// shutdown broadcasts EXIT to every user and waits up to ShutdownGrace for
// them to finish; stragglers are abandoned.
func (c *Controller) shutdown() {
	for _, ch := range c.commandChans {
		select {
		case ch <- runner.Exit:
		default:
		}
	}

	grace := c.opts.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	deadline := time.After(grace)

	for c.alive > 0 {
		select {
		case <-c.done:
			c.alive--
		case <-deadline:
			log.Warn("shutdown grace period exceeded, abandoning stragglers", logger.Int("remaining", c.alive))
			// Stop waits for busy workers, so it must not hold up the return.
			go c.workers.Stop()
			return
		}
	}
	c.workers.Stop()
}
