package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vemoo/goose/task"
)

func countTasks(buckets []Bucket) map[int]int {
	counts := make(map[int]int)
	for _, b := range buckets {
		for _, idx := range b {
			counts[idx]++
		}
	}
	return counts
}

// S1 — three tasks, front=15, node=10, profile=3 (gcd=1): one bucket of 28.
func TestBuild_S1_WeightedBucket(t *testing.T) {
	ts := task.NewTaskSet("A", 1)
	ts.Task("front", 15, func(task.User) {})
	ts.Task("node", 10, func(task.User) {})
	ts.Task("profile", 3, func(task.User) {})

	plan := Build(ts)
	require.Len(t, plan.SteadyBuckets, 1)
	require.Len(t, plan.SteadyBuckets[0], 28)

	counts := countTasks(plan.SteadyBuckets)
	assert.Equal(t, 15, counts[0])
	assert.Equal(t, 10, counts[1])
	assert.Equal(t, 3, counts[2])
}

// Invariant 1: multiset of steady positions contains task i exactly
// w_i/gcd(w) times.
func TestBuild_GCDReduction(t *testing.T) {
	ts := task.NewTaskSet("A", 1)
	ts.Task("a", 6, func(task.User) {})
	ts.Task("b", 9, func(task.User) {})
	ts.Task("c", 3, func(task.User) {})

	plan := Build(ts)
	require.Len(t, plan.SteadyBuckets, 1)
	counts := countTasks(plan.SteadyBuckets)
	// gcd(6,9,3) = 3
	assert.Equal(t, 2, counts[0])
	assert.Equal(t, 3, counts[1])
	assert.Equal(t, 1, counts[2])
	assert.Len(t, plan.SteadyBuckets[0], 6)
}

// S2 — on-start ordering: on-start tasks form their own bucket list,
// entirely separate from steady tasks.
func TestBuild_S2_OnStartSeparated(t *testing.T) {
	ts := task.NewTaskSet("A", 1)
	ts.OnStartTask("login", 1, func(task.User) {})
	ts.Task("front", 15, func(task.User) {})
	ts.Task("node", 10, func(task.User) {})

	plan := Build(ts)
	require.Len(t, plan.OnStartBuckets, 1)
	assert.Equal(t, []int{0}, []int(plan.OnStartBuckets[0]))

	steady := countTasks(plan.SteadyBuckets)
	assert.NotContains(t, steady, 0)
}

// S5 — a task set with only on-start tasks produces an empty steady plan.
func TestBuild_S5_EmptySteady(t *testing.T) {
	ts := task.NewTaskSet("A", 1)
	ts.OnStartTask("login", 1, func(task.User) {})
	ts.OnStopTask("logout", 1, func(task.User) {})

	plan := Build(ts)
	assert.Empty(t, plan.SteadyBuckets)
	assert.Len(t, plan.OnStartBuckets, 1)
	assert.Len(t, plan.OnStopBuckets, 1)
}

func TestBuild_SequencedBucketsOrdered(t *testing.T) {
	ts := task.NewTaskSet("A", 1)
	ts.Task("c", 1, func(task.User) {}).Sequence(3)
	ts.Task("a", 1, func(task.User) {}).Sequence(1)
	ts.Task("b", 1, func(task.User) {}).Sequence(2)
	ts.Task("z", 1, func(task.User) {}) // unsequenced, trailing

	plan := Build(ts)
	require.Len(t, plan.SteadyBuckets, 4)
	assert.Equal(t, Bucket{1}, plan.SteadyBuckets[0]) // a, seq 1
	assert.Equal(t, Bucket{2}, plan.SteadyBuckets[1]) // b, seq 2
	assert.Equal(t, Bucket{0}, plan.SteadyBuckets[2]) // c, seq 3
	assert.Equal(t, Bucket{3}, plan.SteadyBuckets[3]) // z, unsequenced
}

func TestUserCounts_PreservesRatio(t *testing.T) {
	a := task.NewTaskSet("a", 15)
	b := task.NewTaskSet("b", 5)
	counts := UserCounts([]*task.TaskSet{a, b}, 2000)
	assert.Equal(t, 1500, counts[a])
	assert.Equal(t, 500, counts[b])
}

func TestUserCounts_RemainderDistribution(t *testing.T) {
	a := task.NewTaskSet("a", 1)
	b := task.NewTaskSet("b", 1)
	c := task.NewTaskSet("c", 1)
	counts := UserCounts([]*task.TaskSet{a, b, c}, 10)
	total := counts[a] + counts[b] + counts[c]
	assert.Equal(t, 10, total)
	for _, ts := range []*task.TaskSet{a, b, c} {
		assert.GreaterOrEqual(t, counts[ts], 3)
		assert.LessOrEqual(t, counts[ts], 4)
	}
}
