package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_ReportAndSnapshot(t *testing.T) {
	a := New(DefaultBucketCount, DefaultMinBound, DefaultMaxBound)

	a.Report(Record{RequestName: "front", Status: 200, Success: true, Elapsed: 10 * time.Millisecond})
	a.Report(Record{RequestName: "front", Status: 200, Success: true, Elapsed: 20 * time.Millisecond})
	a.Report(Record{RequestName: "front", Status: 500, Success: false, Elapsed: 30 * time.Millisecond})

	snaps := a.Snapshot()
	require.Len(t, snaps, 1)
	s := snaps[0]
	assert.Equal(t, "front", s.Name)
	assert.EqualValues(t, 3, s.Count)
	assert.EqualValues(t, 2, s.Success)
	assert.EqualValues(t, 1, s.Failure)
	assert.EqualValues(t, 2, s.StatusCounts[200])
	assert.EqualValues(t, 1, s.StatusCounts[500])
}

// S6 — two workers each report {front: 100 succ, 2 fail}; merged total is
// {front: 200 succ, 4 fail} with histograms summed bucket-wise.
func TestMerge_S6_WorkerAggregation(t *testing.T) {
	workerSnapshot := func() []NameSnapshot {
		a := New(16, 1, 1000)
		for i := 0; i < 100; i++ {
			a.Report(Record{RequestName: "front", Success: true, Elapsed: time.Millisecond})
		}
		for i := 0; i < 2; i++ {
			a.Report(Record{RequestName: "front", Success: false, Elapsed: time.Millisecond})
		}
		return a.Snapshot()
	}

	w1 := workerSnapshot()
	w2 := workerSnapshot()

	merged := Merge(w1, w2)
	require.Len(t, merged, 1)
	assert.EqualValues(t, 204, merged[0].Count)
	assert.EqualValues(t, 200, merged[0].Success)
	assert.EqualValues(t, 4, merged[0].Failure)
	assert.EqualValues(t, 204, merged[0].Latency.Count)
}

// Invariant 6 — aggregation is commutative.
func TestMerge_Commutative(t *testing.T) {
	a := New(16, 1, 1000)
	a.Report(Record{RequestName: "x", Success: true, Elapsed: 5 * time.Millisecond, Status: 200})
	sa := a.Snapshot()

	b := New(16, 1, 1000)
	b.Report(Record{RequestName: "x", Success: false, Elapsed: 9 * time.Millisecond, Status: 503})
	sb := b.Snapshot()

	ab := Merge(sa, sb)
	ba := Merge(sb, sa)
	require.Len(t, ab, 1)
	require.Len(t, ba, 1)
	assert.Equal(t, ab[0].Count, ba[0].Count)
	assert.Equal(t, ab[0].Success, ba[0].Success)
	assert.Equal(t, ab[0].Failure, ba[0].Failure)
	assert.Equal(t, ab[0].Latency.Sum, ba[0].Latency.Sum)
}

func TestHistogram_Quantiles(t *testing.T) {
	h := NewHistogram(1, 1000, 64)
	for i := 1; i <= 1000; i++ {
		h.Observe(time.Duration(i) * time.Millisecond)
	}
	snap := h.Snapshot()
	p50 := snap.Quantile(0.5)
	assert.InDelta(t, 500, p50, 50)
	p99 := snap.Quantile(0.99)
	assert.InDelta(t, 990, p99, 50)
}
