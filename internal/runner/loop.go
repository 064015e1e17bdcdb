package runner

import (
	"math/rand"
	"time"

	"github.com/vemoo/goose/internal/planner"
	"github.com/vemoo/goose/task"
)

// waitSlice is the granularity at which a waiting user checks its command
// channel.
const waitSlice = time.Second

// Runner drives exactly one user through plan until EXIT is received (or,
// with an empty steady bucket set, immediately after on-start/on-stop).
type Runner struct {
	taskSet  *task.TaskSet
	plan     *planner.Plan
	user     *User
	commands <-chan Command
	minWait  time.Duration
	maxWait  time.Duration
	rng      *rand.Rand

	bucketIndex      int
	positionInBucket int
	exitRequested    bool
}

// New creates a Runner for one user bound to taskSet, executing plan,
// issuing requests via user, listening for commands, waiting
// [minWait, maxWait) seconds between steady-state tasks.
func New(taskSet *task.TaskSet, plan *planner.Plan, user *User, commands <-chan Command, minWait, maxWait time.Duration) *Runner {
	return &Runner{
		taskSet:  taskSet,
		plan:     plan,
		user:     user,
		commands: commands,
		minWait:  minWait,
		maxWait:  maxWait,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes on-start, then steady-state until EXIT or forever (callers
// own the goroutine and rely solely on the command channel to return),
// then on-stop exactly once. Never blocks its caller's thread across an
// await: the only suspensions are the HTTP round trip inside a task body
// and the cooperative wait below.
func (r *Runner) Run() {
	r.walkOnce(r.plan.OnStartBuckets)

	if len(r.plan.SteadyBuckets) > 0 {
		r.steadyLoop()
	}
	// else: empty steady bucket set, not an error (spec §7 "scheduler
	// anomaly"); fall straight through to on-stop.

	r.walkOnce(r.plan.OnStopBuckets)
}

// walkOnce executes every bucket in order exactly once, shuffling buckets
// with more than one task before executing, with no inter-task wait. Used
// for both on-start and on-stop.
func (r *Runner) walkOnce(buckets []planner.Bucket) {
	for _, bucket := range buckets {
		indices := append(planner.Bucket(nil), bucket...)
		if len(indices) > 1 {
			r.rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		}
		for _, idx := range indices {
			r.execute(idx)
		}
	}
}

// steadyLoop implements the steady-state loop: execute, wait, advance.
func (r *Runner) steadyLoop() {
	r.shuffleBucket(r.bucketIndex)

	for {
		idx := r.plan.SteadyBuckets[r.bucketIndex][r.positionInBucket]
		r.execute(idx)

		wait := r.waitDuration()
		if r.cooperativeWait(wait) {
			return
		}

		r.advance()
	}
}

func (r *Runner) waitDuration() time.Duration {
	if r.maxWait <= 0 {
		return 0
	}
	span := int64(r.maxWait - r.minWait)
	if span <= 0 {
		return r.minWait
	}
	// uniform_int[min_wait, max_wait), upper exclusive.
	return r.minWait + time.Duration(r.rng.Int63n(span))
}

// cooperativeWait sleeps wait in 1-second slices, non-blockingly draining
// the command channel before each slice; it returns true if EXIT was
// received and the caller should stop the steady loop.
func (r *Runner) cooperativeWait(wait time.Duration) bool {
	slept := time.Duration(0)
	for {
		if r.drainCommands() {
			return true
		}
		if slept >= wait {
			return false
		}
		remaining := wait - slept
		slice := waitSlice
		if remaining < slice {
			slice = remaining
		}
		time.Sleep(slice)
		slept += slice
	}
}

// drainCommands non-blockingly consumes every pending command; it returns
// true once EXIT has been seen.
func (r *Runner) drainCommands() bool {
	for {
		select {
		case cmd := <-r.commands:
			if cmd == Exit {
				r.exitRequested = true
			}
		default:
			return r.exitRequested
		}
	}
}

// advance moves to the next task in the current bucket, wrapping to the
// next bucket (and, at the end, back to bucket 0) when the current one is
// exhausted, shuffling any newly-entered bucket and storing the new
// bucket index.
func (r *Runner) advance() {
	r.positionInBucket++
	if r.positionInBucket < len(r.plan.SteadyBuckets[r.bucketIndex]) {
		return
	}

	r.positionInBucket = 0
	r.bucketIndex++
	if r.bucketIndex >= len(r.plan.SteadyBuckets) {
		r.bucketIndex = 0
	}
	r.shuffleBucket(r.bucketIndex)
}

func (r *Runner) shuffleBucket(bucketIndex int) {
	bucket := r.plan.SteadyBuckets[bucketIndex]
	if len(bucket) > 1 {
		r.rng.Shuffle(len(bucket), func(i, j int) { bucket[i], bucket[j] = bucket[j], bucket[i] })
	}
}

// execute runs one task by index: it applies the name-propagation rule
// and invokes the task's body.
func (r *Runner) execute(index int) {
	t := r.taskSet.Tasks()[index]
	r.user.setTaskName(t.Name())
	t.Fn()(r.user)
}
