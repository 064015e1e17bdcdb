// Package planner expands the declarative weights and sequences of a
// task.TaskSet into the bucketed execution plan a single simulated user
// walks for the lifetime of a run: partition by kind, then by sequence,
// gcd-reduce weights within each partition, and concatenate into buckets
// ordered by ascending sequence with one trailing unsequenced bucket.
package planner

import (
	"sort"

	"github.com/vemoo/goose/task"
)

// Bucket is a weight-expanded, same-sequence group of task indices,
// shuffled as a unit at execution time.
type Bucket []int

// Plan is one user's three bucket lists, produced once by Build and
// immutable thereafter (only the walking position mutates).
type Plan struct {
	OnStartBuckets []Bucket
	SteadyBuckets  []Bucket
	OnStopBuckets  []Bucket
}

// partitionKind selects which of a task's three buckets lists it belongs
// to; a task is steady by default.
func partitionKind(t *task.Task) int {
	switch {
	case t.OnStart():
		return 0
	case t.OnStop():
		return 2
	default:
		return 1
	}
}

// Build produces the execution plan for a user bound to ts.
func Build(ts *task.TaskSet) *Plan {
	var kinds [3][]*task.Task
	for _, t := range ts.Tasks() {
		k := partitionKind(t)
		kinds[k] = append(kinds[k], t)
	}
	return &Plan{
		OnStartBuckets: bucketize(kinds[0]),
		SteadyBuckets:  bucketize(kinds[1]),
		OnStopBuckets:  bucketize(kinds[2]),
	}
}

// seqPartition is one sequence-numbered group of tasks awaiting gcd
// reduction, or the single trailing group of unsequenced tasks.
type seqPartition struct {
	sequence    int
	hasSequence bool
	tasks       []*task.Task
}

// bucketize partitions tasks by sequence number, gcd-reduces weights
// within each partition, and emits buckets ordered by ascending sequence
// with the unsequenced partition last.
func bucketize(tasks []*task.Task) []Bucket {
	if len(tasks) == 0 {
		return nil
	}

	bySeq := make(map[int]*seqPartition)
	var unsequenced *seqPartition
	var order []int

	for _, t := range tasks {
		seq, ok := t.Sequence()
		if !ok {
			if unsequenced == nil {
				unsequenced = &seqPartition{}
			}
			unsequenced.tasks = append(unsequenced.tasks, t)
			continue
		}
		p, exists := bySeq[seq]
		if !exists {
			p = &seqPartition{sequence: seq, hasSequence: true}
			bySeq[seq] = p
			order = append(order, seq)
		}
		p.tasks = append(p.tasks, t)
	}

	sort.Ints(order)

	buckets := make([]Bucket, 0, len(order)+1)
	for _, seq := range order {
		buckets = append(buckets, expandPartition(bySeq[seq].tasks))
	}
	if unsequenced != nil {
		buckets = append(buckets, expandPartition(unsequenced.tasks))
	}
	return buckets
}

// expandPartition computes g = gcd of the partition's weights, reduces
// each task's weight to w/g, and emits the task index repeated w/g times,
// in task declaration order.
func expandPartition(tasks []*task.Task) Bucket {
	g := 0
	for _, t := range tasks {
		g = gcd(g, t.Weight())
	}
	if g == 0 {
		g = 1
	}

	var bucket Bucket
	for _, t := range tasks {
		reduced := t.Weight() / g
		if reduced < 1 {
			reduced = 1
		}
		for i := 0; i < reduced; i++ {
			bucket = append(bucket, t.Index())
		}
	}
	return bucket
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
