package runner

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vemoo/goose/internal/client"
	"github.com/vemoo/goose/internal/planner"
	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/task"
)

func newTestUser(t *testing.T, srv *httptest.Server, agg *stats.Aggregator) *User {
	t.Helper()
	c := client.New(srv.URL, time.Second, agg)
	return NewUser(c, nil)
}

// TestLoop_OrderAndOnStopOnce checks that on-start runs in full before
// steady-state begins, and on-stop runs exactly once, after steady-state.
func TestLoop_OrderAndOnStopOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var order []string
	record := func(name string) task.Func {
		return func(u task.User) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	ts := task.NewTaskSet("s", 1)
	ts.OnStartTask("login", 1, record("login"))
	ts.Task("front", 1, record("front"))
	ts.OnStopTask("logout", 1, record("logout"))

	plan := planner.Build(ts)
	agg := stats.New(stats.DefaultBucketCount, stats.DefaultMinBound, stats.DefaultMaxBound)
	u := newTestUser(t, srv, agg)
	commands := make(chan Command, 1)

	r := New(ts, plan, u, commands, 0, 0)

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	// Give steady-state a few iterations (no wait configured, so it spins
	// fast) then ask it to stop.
	time.Sleep(20 * time.Millisecond)
	commands <- Exit

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after EXIT")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, order)
	assert.Equal(t, "login", order[0])
	assert.Equal(t, "logout", order[len(order)-1])

	logoutCount := 0
	for _, name := range order {
		if name == "logout" {
			logoutCount++
		}
	}
	assert.Equal(t, 1, logoutCount)
}

// TestLoop_S3_ExitResponsiveness asserts a user waiting between steady-state
// tasks reacts to EXIT within one wait-slice, not the full wait duration.
func TestLoop_S3_ExitResponsiveness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ts := task.NewTaskSet("s", 1)
	ts.Task("front", 1, func(u task.User) { _, _ = u.Get("/") })
	ts.Wait(10*time.Second, 10*time.Second)

	plan := planner.Build(ts)
	agg := stats.New(stats.DefaultBucketCount, stats.DefaultMinBound, stats.DefaultMaxBound)
	u := newTestUser(t, srv, agg)
	commands := make(chan Command, 1)

	r := New(ts, plan, u, commands, ts.MinWait(), ts.MaxWait())

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	commands <- Exit

	select {
	case <-done:
		assert.Less(t, time.Since(start), 1100*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not honor EXIT within a wait slice")
	}
}

// TestLoop_S4_NamePropagation: a named task's Get is filed under the task's
// name; a GetNamed call within the same task is filed under its own
// override without disturbing the persisted task name.
func TestLoop_S4_NamePropagation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ts := task.NewTaskSet("s", 1)
	ts.Task("(Anon) front page", 1, func(u task.User) {
		_, _ = u.Get("/")
		_, _ = u.GetNamed("/misc/x.js", "static asset")
		_, _ = u.Get("/again")
	})

	plan := planner.Build(ts)
	agg := stats.New(stats.DefaultBucketCount, stats.DefaultMinBound, stats.DefaultMaxBound)
	u := newTestUser(t, srv, agg)

	r := New(ts, plan, u, make(chan Command), 0, 0)
	r.execute(0)

	snaps := agg.Snapshot()
	byName := map[string]stats.NameSnapshot{}
	for _, s := range snaps {
		byName[s.Name] = s
	}

	require.Contains(t, byName, "(Anon) front page")
	require.Contains(t, byName, "static asset")
	assert.EqualValues(t, 2, byName["(Anon) front page"].Count)
	assert.EqualValues(t, 1, byName["static asset"].Count)
}
