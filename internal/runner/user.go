// Package runner drives exactly one simulated user through its execution
// plan: on-start, steady-state, on-stop, with cooperative waits and
// command-channel-driven shutdown.
package runner

import (
	"fmt"
	"net/url"

	"github.com/vemoo/goose/internal/client"
	"github.com/vemoo/goose/task"
)

// User is the concrete task.User handle passed to every task function. It
// tracks the currently effective request-name across task invocations
// and forwards requests to an internal/client.Client.
type User struct {
	client *client.Client
	logger DebugLogger

	// taskRequestName is set before every task invocation to that task's
	// display name; an unnamed task clears it, so its requests are filed
	// under their URL path rather than a previous task's name.
	taskRequestName string

	lastID      string
	lastFailure error
}

// DebugLogger receives LogDebug calls from task bodies, typically
// recording request headers/body when a response is judged unacceptable.
type DebugLogger interface {
	Debug(msg string, args ...any)
}

// NewUser creates a User bound to c, logging debug entries through l.
func NewUser(c *client.Client, l DebugLogger) *User {
	return &User{client: c, logger: l}
}

// setTaskName applies the current task's display name to the requests it
// issues; an empty name clears the previous task's name.
func (u *User) setTaskName(name string) {
	u.taskRequestName = name
}

func (u *User) effectiveName() string {
	return u.taskRequestName
}

// Get implements task.User.
func (u *User) Get(path string) (*task.Response, error) {
	return u.client.Get(path, u.effectiveName())
}

// GetNamed implements task.User: name overrides task_request_name for
// this one call only (S4), without persisting it.
func (u *User) GetNamed(path, name string) (*task.Response, error) {
	return u.client.Get(path, name)
}

// Post implements task.User.
func (u *User) Post(path string, form url.Values) (*task.Response, error) {
	return u.client.Post(path, u.effectiveName(), form)
}

// PostNamed implements task.User.
func (u *User) PostNamed(path, name string, form url.Values) (*task.Response, error) {
	return u.client.Post(path, name, form)
}

// LogDebug implements task.User.
func (u *User) LogDebug(msg string, args ...any) {
	if u.logger != nil {
		u.logger.Debug(msg, args...)
	}
}

// SetFailure implements task.User: a task body that parses a response and
// finds it wanting (e.g. an expected HTML element missing) reports that
// here rather than unwinding. It does not itself emit a stats.Record;
// callers that want a distinct failed-request entry should also report
// through their own request path (e.g. set an error before issuing the
// request), this only records the reason for diagnostic logging.
func (u *User) SetFailure(reason string) {
	u.lastFailure = fmt.Errorf("%s", reason)
	u.LogDebug("task reported failure", "reason", reason)
}
