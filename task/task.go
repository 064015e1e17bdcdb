// Package task is the declarative surface an operator uses to describe a
// load test: weighted task sets made of weighted, optionally sequenced,
// asynchronous tasks. Values built here are consumed by internal/planner
// and are immutable once a run starts.
package task

import (
	"fmt"
	"net/url"
	"time"

	"github.com/vemoo/goose/internal/errs"
)

// Response is the minimal outcome of an HTTP call made through User, enough
// for a task body to branch on status or body content.
type Response struct {
	StatusCode int
	Body       []byte
	Header     map[string][]string
}

// User is the capability set a task function is handed. It is implemented
// by internal/runner.User; task bodies never see the concrete type, only
// this interface, so they cannot reach into scheduler-private state.
type User interface {
	// Get issues a GET request against path (relative to the bound
	// task set's or config's host) and records it under the current
	// task's name, or under the request's URL path when the task has no
	// name.
	Get(path string) (*Response, error)
	// GetNamed is Get, but the request is filed under name in the
	// statistics aggregator instead of the URL path.
	GetNamed(path, name string) (*Response, error)
	// Post issues a form-encoded POST and records it like Get: under the
	// current task's name, or the URL path when the task has no name.
	Post(path string, form url.Values) (*Response, error)
	// PostNamed is Post, filed under name.
	PostNamed(path, name string, form url.Values) (*Response, error)
	// LogDebug writes a structured debug entry, typically used when a
	// task body judges a response unacceptable and wants to capture
	// headers/body for later inspection.
	LogDebug(msg string, args ...any)
	// SetFailure records reason as the task's failure and writes it
	// through LogDebug. Used by task bodies that parse a response and
	// find it wanting (e.g. an expected HTML element missing). It emits
	// no statistics record and does not change the outcome already
	// recorded for any request.
	SetFailure(reason string)
}

// Func is the body of a task: an opaque closure that may issue any number
// of requests via the User handle, and must not panic.
type Func func(User)

// Task is one addressable unit of work within a TaskSet.
type Task struct {
	index       int
	name        string
	weight      int
	sequence    int
	hasSequence bool
	onStart     bool
	onStop      bool
	fn          Func
}

// Index returns the task's stable, dense index within its TaskSet.
func (t *Task) Index() int { return t.index }

// Name returns the task's display name, or "" if unset.
func (t *Task) Name() string { return t.name }

// Weight returns the task's positive execution weight.
func (t *Task) Weight() int { return t.weight }

// Sequence returns the task's sequence number and whether one was set.
func (t *Task) Sequence() (int, bool) { return t.sequence, t.hasSequence }

// OnStart reports whether this task runs once, in sequence order, before
// steady-state execution begins.
func (t *Task) OnStart() bool { return t.onStart }

// OnStop reports whether this task runs once, in sequence order, after
// steady-state execution ends.
func (t *Task) OnStop() bool { return t.onStop }

// Fn returns the task's body.
func (t *Task) Fn() Func { return t.fn }

// TaskSet is a named, weighted group of tasks that a simulated user binds
// to for the lifetime of one run.
type TaskSet struct {
	name    string
	weight  int
	minWait time.Duration
	maxWait time.Duration
	host    string
	tasks   []*Task
}

// NewTaskSet creates an empty task set with the given name and weight.
// Weight must be a positive integer; a non-positive weight is a
// configuration error caught at validation time, not here.
func NewTaskSet(name string, weight int) *TaskSet {
	return &TaskSet{
		name:   name,
		weight: weight,
	}
}

// Task appends a steady-state task (weight w, body fn) to the set and
// returns the set for chaining. The task's dense index is assigned in
// append order.
func (ts *TaskSet) Task(name string, weight int, fn Func) *TaskSet {
	ts.tasks = append(ts.tasks, &Task{
		index:  len(ts.tasks),
		name:   name,
		weight: weight,
		fn:     fn,
	})
	return ts
}

// OnStartTask appends an on-start task: it runs once, before the first
// steady-state task, in every user bound to this set.
func (ts *TaskSet) OnStartTask(name string, weight int, fn Func) *TaskSet {
	ts.tasks = append(ts.tasks, &Task{
		index:   len(ts.tasks),
		name:    name,
		weight:  weight,
		onStart: true,
		fn:      fn,
	})
	return ts
}

// OnStopTask appends an on-stop task: it runs exactly once, after the last
// steady-state task (or immediately, if the user never reached
// steady-state), in every user bound to this set.
func (ts *TaskSet) OnStopTask(name string, weight int, fn Func) *TaskSet {
	ts.tasks = append(ts.tasks, &Task{
		index:  len(ts.tasks),
		name:   name,
		weight: weight,
		onStop: true,
		fn:     fn,
	})
	return ts
}

// Sequence sets the sequence number of the most recently appended task.
// Tasks sharing a sequence number form one shuffled execution bucket;
// unsequenced tasks (the default) form a single trailing bucket.
func (ts *TaskSet) Sequence(n int) *TaskSet {
	if len(ts.tasks) == 0 {
		return ts
	}
	last := ts.tasks[len(ts.tasks)-1]
	last.sequence = n
	last.hasSequence = true
	return ts
}

// Wait sets the inter-task wait bounds for users bound to this set. These
// are the only wait bounds a user applies; the config's pool min-wait/
// max-wait are not used in their place when a set leaves them unset.
func (ts *TaskSet) Wait(minWait, maxWait time.Duration) *TaskSet {
	ts.minWait = minWait
	ts.maxWait = maxWait
	return ts
}

// Host overrides the run's global host for requests issued by users bound
// to this set, when a task issues a relative path.
func (ts *TaskSet) Host(host string) *TaskSet {
	ts.host = host
	return ts
}

// Name returns the task set's name.
func (ts *TaskSet) Name() string { return ts.name }

// Weight returns the task set's positive user-count weight.
func (ts *TaskSet) Weight() int { return ts.weight }

// MinWait returns the configured minimum inter-task wait, or 0 if unset.
func (ts *TaskSet) MinWait() time.Duration { return ts.minWait }

// MaxWait returns the configured maximum inter-task wait, or 0 if unset
// (meaning: no wait).
func (ts *TaskSet) MaxWait() time.Duration { return ts.maxWait }

// HostOverride returns the per-task-set host override, or "" if unset.
func (ts *TaskSet) HostOverride() string { return ts.host }

// Tasks returns the task set's tasks in declaration order. The slice is
// owned by the TaskSet and must not be mutated by callers.
func (ts *TaskSet) Tasks() []*Task { return ts.tasks }

// Validate checks every set in sets for fatal configuration errors: a
// non-positive task-set weight, a non-positive task weight, or a task set
// with no tasks at all.
func Validate(sets []*TaskSet) error {
	for _, ts := range sets {
		if ts.Weight() <= 0 {
			return fmt.Errorf("task set %q: %w", ts.Name(), errs.ErrNonPositiveWeight)
		}
		if len(ts.Tasks()) == 0 {
			return fmt.Errorf("task set %q: %w", ts.Name(), errs.ErrEmptyTaskSet)
		}
		for _, t := range ts.Tasks() {
			if t.Weight() <= 0 {
				return fmt.Errorf("task set %q task %q: %w", ts.Name(), t.Name(), errs.ErrNonPositiveWeight)
			}
		}
	}
	return nil
}
