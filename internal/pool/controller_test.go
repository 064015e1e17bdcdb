package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/task"
)

func TestInterleavedSpawnOrder_PrefixRatio(t *testing.T) {
	a := task.NewTaskSet("a", 3)
	b := task.NewTaskSet("b", 1)
	counts := map[*task.TaskSet]int{a: 15, b: 5}

	order := interleavedSpawnOrder([]*task.TaskSet{a, b}, counts)
	assert.Len(t, order, 20)

	countA, countB := 0, 0
	for i, sp := range order {
		if sp.taskSet == a {
			countA++
		} else {
			countB++
		}
		prefix := float64(i + 1)
		targetA := 0.75 * prefix
		targetB := 0.25 * prefix
		assert.InDelta(t, targetA, float64(countA), 1.01)
		assert.InDelta(t, targetB, float64(countB), 1.01)
	}
	assert.Equal(t, 15, countA)
	assert.Equal(t, 5, countB)
}

func TestController_RampUpAndExit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ts := task.NewTaskSet("only", 1)
	ts.Task("front", 1, func(u task.User) { _, _ = u.Get("/") })
	ts.Wait(0, 0)

	agg := stats.New(stats.DefaultBucketCount, stats.DefaultMinBound, stats.DefaultMaxBound)
	ctrl := New(Options{
		Users:          4,
		HatchRate:      4,
		RunTime:        150 * time.Millisecond,
		ShutdownGrace:  2 * time.Second,
		Host:           srv.URL,
		RequestTimeout: time.Second,
	}, []*task.TaskSet{ts}, agg, 4)

	done := make(chan struct{})
	go func() {
		ctrl.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not complete a bounded run")
	}

	snaps := agg.Snapshot()
	if assert.Len(t, snaps, 1) {
		assert.Greater(t, snaps[0].Count, uint64(0))
	}
}
