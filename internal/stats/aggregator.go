package stats

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Record is one completed (or failed) HTTP request, as produced by
// internal/client and handed to the Aggregator's hot path. It never
// blocks HTTP progress: Report only touches per-shard, briefly-locked
// maps and a small set of atomics.
type Record struct {
	ID          uuid.UUID
	Method      string
	RequestName string
	URL         string
	Status      int
	Elapsed     time.Duration
	Success     bool
	Error       string
	Start       time.Time
}

// Aggregate is one request-name's running totals: monotonic counters plus
// a latency Histogram.
type Aggregate struct {
	mu           sync.Mutex
	count        uint64
	success      uint64
	failure      uint64
	statusCounts map[int]uint64
	histogram    *Histogram
}

func newAggregate(bucketCount int, minMS, maxMS float64) *Aggregate {
	return &Aggregate{
		statusCounts: make(map[int]uint64),
		histogram:    NewHistogram(minMS, maxMS, bucketCount),
	}
}

func (a *Aggregate) observe(rec Record) {
	a.mu.Lock()
	a.count++
	if rec.Success {
		a.success++
	} else {
		a.failure++
	}
	if rec.Status != 0 {
		a.statusCounts[rec.Status]++
	}
	a.mu.Unlock()

	a.histogram.Observe(rec.Elapsed)
}

// NameSnapshot is a point-in-time, mergeable view of one request-name's
// Aggregate.
type NameSnapshot struct {
	Name         string
	Count        uint64
	Success      uint64
	Failure      uint64
	StatusCounts map[int]uint64
	Latency      Snapshot
}

func (a *Aggregate) snapshot(name string) NameSnapshot {
	a.mu.Lock()
	statusCounts := make(map[int]uint64, len(a.statusCounts))
	for k, v := range a.statusCounts {
		statusCounts[k] = v
	}
	count, success, failure := a.count, a.success, a.failure
	a.mu.Unlock()

	return NameSnapshot{
		Name:         name,
		Count:        count,
		Success:      success,
		Failure:      failure,
		StatusCounts: statusCounts,
		Latency:      a.histogram.Snapshot(),
	}
}

const numShards = 32

// shard holds a fraction of the request names, each behind its own lock,
// to keep the hot path off a single process-wide mutex.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*Aggregate
}

// Aggregator is the statistics sink shared read-write by every simulated
// user's requests (spec §5, "the statistics sink is concurrently written;
// the aggregator owns the merge"). It implements internal/client.Reporter.
type Aggregator struct {
	shards      [numShards]*shard
	bucketCount int
	minMS       float64
	maxMS       float64
}

// New creates an Aggregator whose histograms span [minMS, maxMS]
// milliseconds across bucketCount buckets.
func New(bucketCount int, minMS, maxMS float64) *Aggregator {
	a := &Aggregator{bucketCount: bucketCount, minMS: minMS, maxMS: maxMS}
	for i := range a.shards {
		a.shards[i] = &shard{entries: make(map[string]*Aggregate)}
	}
	return a
}

func (a *Aggregator) shardFor(name string) *shard {
	h := xxhash.Sum64String(name)
	return a.shards[h%numShards]
}

// Report merges one request outcome into the aggregate for its
// RequestName. Safe for concurrent use by many users; never blocks on
// another shard's activity.
func (a *Aggregator) Report(rec Record) {
	s := a.shardFor(rec.RequestName)

	s.mu.RLock()
	agg, ok := s.entries[rec.RequestName]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		agg, ok = s.entries[rec.RequestName]
		if !ok {
			agg = newAggregate(a.bucketCount, a.minMS, a.maxMS)
			s.entries[rec.RequestName] = agg
		}
		s.mu.Unlock()
	}

	agg.observe(rec)
}

// Snapshot returns a mergeable view of every request-name's aggregate.
func (a *Aggregator) Snapshot() []NameSnapshot {
	var out []NameSnapshot
	for _, s := range a.shards {
		s.mu.RLock()
		for name, agg := range s.entries {
			out = append(out, agg.snapshot(name))
		}
		s.mu.RUnlock()
	}
	return out
}

// Reset clears every shard's entries, used when config.ResetStats drops
// ramp-up noise once steady-state begins.
func (a *Aggregator) Reset() {
	for _, s := range a.shards {
		s.mu.Lock()
		s.entries = make(map[string]*Aggregate)
		s.mu.Unlock()
	}
}

// SnapshotAndReset atomically swaps each shard's entries for a fresh map
// and snapshots what it cleared. Unlike a separate Snapshot then Reset
// call, a Report landing between the two can never fall in the gap: it
// either lands in the pre-swap map (captured by this snapshot) or the
// post-swap map (kept for the next cycle).
func (a *Aggregator) SnapshotAndReset() []NameSnapshot {
	var out []NameSnapshot
	for _, s := range a.shards {
		s.mu.Lock()
		cleared := s.entries
		s.entries = make(map[string]*Aggregate)
		s.mu.Unlock()

		for name, agg := range cleared {
			out = append(out, agg.snapshot(name))
		}
	}
	return out
}
