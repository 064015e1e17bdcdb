package coordinator

import (
	"fmt"
	"net"
	"sync"
	"time"

	jump "github.com/lithammer/go-jump-consistent-hash"

	"github.com/vemoo/goose/internal/errs"
	"github.com/vemoo/goose/internal/stats"
	"github.com/vemoo/goose/pkg/logger"
)

var log = logger.GetLogger("Coordinator", "Manager")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Addr is the host:port the manager listens on for worker attachment.
	Addr string
	// ExpectWorkers is W: the number of workers the manager waits for
	// before starting the run.
	ExpectWorkers int
	// AttachTimeout bounds how long the manager waits for ExpectWorkers to
	// attach; exceeding it aborts the run with exit code 2.
	AttachTimeout time.Duration
	// Host is the target host handed to every worker.
	Host string
	// Users, HatchRate, RunTime, MinWait, MaxWait are the run's global
	// pool parameters sent at Configure time. Users is divided across
	// workers; the others go to every worker unchanged. Workers do not
	// apply MinWait/MaxWait: their users wait by their task set's bounds.
	Users     int
	HatchRate int
	RunTime   time.Duration
	MinWait   time.Duration
	MaxWait   time.Duration
}

// workerConn is one attached worker's connection and assigned identity.
// sessionToken lets the manager distinguish a worker's own reconnect from
// a stale attempt replaying an abandoned slot's old credentials.
type workerConn struct {
	id           string
	sessionToken string
	conn         net.Conn
}

// Manager accepts worker attachments, divides the run's user population
// among them, merges their periodic statistics deltas, and broadcasts
// shutdown.
type Manager struct {
	opts ManagerOptions

	mu      sync.Mutex
	workers []*workerConn
	totals  []stats.NameSnapshot
	nextID  int

	listener net.Listener
}

// NewManager creates a Manager bound to opts.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{opts: opts}
}

// ErrAttachTimeout is returned by Run when ExpectWorkers did not all
// attach within AttachTimeout.
var ErrAttachTimeout = errs.ErrAttachTimeout

// Run listens for worker attachments, waits for ExpectWorkers to attach
// (or AttachTimeout to elapse), configures them, then blocks collecting
// statistics deltas until stopSignal is closed, and broadcasts Stop.
func (m *Manager) Run(stopSignal <-chan struct{}) error {
	ln, err := net.Listen("tcp", m.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.opts.Addr, err)
	}
	m.listener = ln
	defer ln.Close()

	attached := make(chan *workerConn, m.opts.ExpectWorkers)
	go m.acceptLoop(attached)

	deadline := time.NewTimer(m.opts.AttachTimeout)
	defer deadline.Stop()

	count := 0
	for count < m.opts.ExpectWorkers {
		select {
		case w := <-attached:
			m.mu.Lock()
			m.workers = append(m.workers, w)
			m.nextID++
			m.mu.Unlock()
			count++
			log.Info("worker attached", logger.String("workerID", w.id), logger.Int("attached", count))
			go m.readLoop(w)
		case <-deadline.C:
			return ErrAttachTimeout
		}
	}

	m.configureAll()

	<-stopSignal
	m.broadcastStop()
	return nil
}

// staleReconnect reports whether a reconnect attempt claiming id carries a
// session token that does not match the one the manager last handed that
// worker slot — m.mu must already be held by the caller.
func (m *Manager) staleReconnect(id, token string) bool {
	for _, w := range m.workers {
		if w.id == id {
			return w.sessionToken != token
		}
	}
	return false
}

func (m *Manager) acceptLoop(attached chan<- *workerConn) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}

		tag, payload, err := ReadFrame(conn)
		if err != nil || tag != TagAttach {
			conn.Close()
			continue
		}
		var req Attach
		_ = Decode(payload, &req)

		m.mu.Lock()
		full := len(m.workers) >= m.opts.ExpectWorkers
		id := req.WorkerID
		if id != "" {
			if stale := m.staleReconnect(id, req.SessionToken); stale {
				m.mu.Unlock()
				_ = WriteFrame(conn, TagAttachDenied, AttachDenied{Reason: "stale session token"})
				conn.Close()
				continue
			}
		} else {
			m.nextID++
			id = fmt.Sprintf("worker-%d", m.nextID)
		}
		m.mu.Unlock()

		if full {
			_ = WriteFrame(conn, TagAttachDenied, AttachDenied{Reason: "manager already holds expect_workers connections"})
			conn.Close()
			continue
		}

		token := NewSessionToken()
		if err := WriteFrame(conn, TagAttachOk, AttachOk{WorkerID: id, SessionToken: token}); err != nil {
			conn.Close()
			continue
		}

		attached <- &workerConn{id: id, sessionToken: token, conn: conn}
	}
}

// configureAll divides the configured user population across attached
// workers with go-jump-consistent-hash, so the assignment stays balanced
// and mostly stable as the worker count changes between runs.
func (m *Manager) configureAll() {
	m.mu.Lock()
	workers := append([]*workerConn(nil), m.workers...)
	m.mu.Unlock()

	counts := divideUsers(m.opts.Users, len(workers))

	for i, w := range workers {
		cfg := RunConfig{
			Host:           m.opts.Host,
			Users:          counts[i],
			HatchRate:      m.opts.HatchRate,
			RunTimeSeconds: int64(m.opts.RunTime / time.Second),
			MinWaitSeconds: int64(m.opts.MinWait / time.Second),
			MaxWaitSeconds: int64(m.opts.MaxWait / time.Second),
		}
		if err := WriteFrame(w.conn, TagConfigure, Configure{Config: cfg}); err != nil {
			log.Warn("failed to configure worker", logger.String("workerID", w.id), logger.Error(err))
		}
	}
}

// divideUsers assigns n users to w workers using a jump-consistent hash
// over unit indices, rather than naive chunking, so the partition spreads
// evenly and reshuffles minimally across runs with a different w.
func divideUsers(n, w int) []int {
	counts := make([]int, w)
	if w == 0 {
		return counts
	}
	for i := 0; i < n; i++ {
		bucket := jump.Hash(uint64(i), int32(w))
		counts[bucket]++
	}
	return counts
}

// readLoop consumes one worker's frames (StatsDelta, StatsFinal, Bye) until
// it disconnects. A disconnect before Stop is logged, not fatal.
func (m *Manager) readLoop(w *workerConn) {
	defer w.conn.Close()
	for {
		tag, payload, err := ReadFrame(w.conn)
		if err != nil {
			log.Warn("worker disconnected", logger.String("workerID", w.id), logger.Error(err))
			return
		}
		switch tag {
		case TagStatsDelta:
			var delta StatsDelta
			if err := Decode(payload, &delta); err == nil {
				m.merge(delta.PerName)
			}
		case TagStatsFinal:
			var final StatsFinal
			if err := Decode(payload, &final); err == nil {
				m.merge(final.PerName)
			}
		case TagBye:
			log.Info("worker said bye", logger.String("workerID", w.id))
			return
		}
	}
}

func (m *Manager) merge(deltas []NameDelta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals = stats.Merge(m.totals, ToNameSnapshots(deltas))
}

// Snapshot returns the manager's current cross-worker aggregate: the
// per-request-name sum of every worker's deltas.
func (m *Manager) Snapshot() []stats.NameSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stats.NameSnapshot(nil), m.totals...)
}

func (m *Manager) broadcastStop() {
	m.mu.Lock()
	workers := append([]*workerConn(nil), m.workers...)
	m.mu.Unlock()

	for _, w := range workers {
		if err := WriteFrame(w.conn, TagStop, Stop{Reason: "run complete"}); err != nil {
			log.Warn("failed to send stop to worker", logger.String("workerID", w.id), logger.Error(err))
		}
	}
}
