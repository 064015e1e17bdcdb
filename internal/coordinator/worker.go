package coordinator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/vemoo/goose/internal/pool"
	"github.com/vemoo/goose/internal/runner"
	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/pkg/logger"
	"github.com/vemoo/goose/task"
)

var workerLog = logger.GetLogger("Coordinator", "Worker")

// ErrAttachDenied is returned when the manager refuses this worker's
// attach attempt (the manager already holds expect_workers connections).
type ErrAttachDenied struct{ Reason string }

func (e *ErrAttachDenied) Error() string {
	return fmt.Sprintf("attach denied: %s", e.Reason)
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	// ManagerAddr is the manager's host:port to attach to.
	ManagerAddr string
	// ReportInterval is how often this worker pushes a statistics delta
	// (default 1s).
	ReportInterval time.Duration
	// TaskSets are the worker's locally-compiled task sets; they must be
	// identical to the manager's (both run the same binary).
	TaskSets []*task.TaskSet
	// WorkerCap bounds concurrent goroutine-pool workers (the "M" in the
	// M:N scheduling model); 0 lets the pool controller size itself to
	// the assigned user count.
	WorkerCap int
	// ResetStats, if true, clears this worker's local aggregator once its
	// share of the population finishes ramp-up.
	ResetStats bool
	// DebugLogger, if non-nil, receives every locally-spawned user's
	// LogDebug calls.
	DebugLogger runner.DebugLogger
}

// Worker attaches to a manager, runs a local internal/pool.Controller
// sized by the manager's Configure message, and periodically reports
// statistics deltas until the manager broadcasts Stop.
type Worker struct {
	opts  WorkerOptions
	agg   *stats.Aggregator
	conn  net.Conn
	id    string
	token string
}

// NewWorker creates a Worker bound to opts, reporting into agg.
func NewWorker(opts WorkerOptions, agg *stats.Aggregator) *Worker {
	return &Worker{opts: opts, agg: agg}
}

// Run attaches to the manager, runs the local pool until Stop is received,
// sends a final statistics delta, and disconnects.
func (w *Worker) Run(ctx context.Context) error {
	conn, err := net.Dial("tcp", w.opts.ManagerAddr)
	if err != nil {
		return fmt.Errorf("dial manager %s: %w", w.opts.ManagerAddr, err)
	}
	w.conn = conn
	defer conn.Close()

	if err := WriteFrame(conn, TagAttach, Attach{WorkerID: w.id, SessionToken: w.token}); err != nil {
		return err
	}

	tag, payload, err := ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("read attach response: %w", err)
	}
	switch tag {
	case TagAttachDenied:
		var denied AttachDenied
		_ = Decode(payload, &denied)
		return &ErrAttachDenied{Reason: denied.Reason}
	case TagAttachOk:
		var ok AttachOk
		if err := Decode(payload, &ok); err != nil {
			return err
		}
		w.id = ok.WorkerID
		w.token = ok.SessionToken
	default:
		return fmt.Errorf("unexpected tag %s while awaiting attach response", tag)
	}

	tag, payload, err = ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("read configure: %w", err)
	}
	if tag != TagConfigure {
		return fmt.Errorf("expected Configure, got %s", tag)
	}
	var configure Configure
	if err := Decode(payload, &configure); err != nil {
		return err
	}

	return w.runPool(ctx, configure.Config)
}

func (w *Worker) runPool(ctx context.Context, cfg RunConfig) error {
	controller := pool.New(pool.Options{
		Users:          cfg.Users,
		HatchRate:      cfg.HatchRate,
		RunTime:        time.Duration(cfg.RunTimeSeconds) * time.Second,
		Host:           cfg.Host,
		RequestTimeout: 30 * time.Second,
		ShutdownGrace:  30 * time.Second,
		ResetStats:     w.opts.ResetStats,
		DebugLogger:    w.opts.DebugLogger,
	}, w.opts.TaskSets, w.agg, w.opts.WorkerCap)

	stopLocal := make(chan struct{})
	go w.watchManagerStop(stopLocal)

	interval := w.opts.ReportInterval
	if interval <= 0 {
		interval = time.Second
	}
	go w.reportLoop(interval, stopLocal)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopLocal:
			cancel()
		case <-runCtx.Done():
		}
	}()

	controller.Run(runCtx)

	final := w.agg.Snapshot()
	_ = WriteFrame(w.conn, TagStatsFinal, StatsFinal{PerName: FromNameSnapshots(final)})
	_ = WriteFrame(w.conn, TagBye, Bye{WorkerID: w.id})
	return nil
}

// watchManagerStop blocks on the connection for a Stop frame and closes
// stopLocal when one arrives.
func (w *Worker) watchManagerStop(stopLocal chan struct{}) {
	for {
		tag, _, err := ReadFrame(w.conn)
		if err != nil {
			workerLog.Warn("lost connection to manager", logger.Error(err))
			close(stopLocal)
			return
		}
		if tag == TagStop {
			close(stopLocal)
			return
		}
	}
}

// reportLoop pushes a statistics delta every interval by snapshotting and
// resetting the aggregator, so each push carries only that period's
// observations.
func (w *Worker) reportLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := w.agg.SnapshotAndReset()
			if err := WriteFrame(w.conn, TagStatsDelta, StatsDelta{PerName: FromNameSnapshots(snap)}); err != nil {
				workerLog.Warn("failed to send stats delta", logger.Error(err))
			}
		case <-stop:
			return
		}
	}
}
