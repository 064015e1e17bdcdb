// Package coordinator implements the manager/worker wire protocol and
// lifecycle: a single duplex stream per worker, carrying length-prefixed
// framed messages from a closed tag enumeration. The manager lifecycle
// (attach/configure/run/stop) runs in sequence inside Manager.Run, with
// no phase callbacks; there is no election or service discovery, since
// goose's manager is addressed statically by workers and never competes
// for a master role.
package coordinator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	jsoniter "github.com/json-iterator/go"

	"github.com/vemoo/goose/internal/errs"
	"github.com/vemoo/goose/internal/stats"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tag identifies a frame's payload type. The enumeration is closed: an
// unrecognized tag is a protocol error.
type Tag byte

const (
	TagAttach Tag = iota + 1
	TagAttachOk
	TagAttachDenied
	TagConfigure
	TagStatsDelta
	TagStop
	TagStatsFinal
	TagBye
)

func (t Tag) String() string {
	switch t {
	case TagAttach:
		return "Attach"
	case TagAttachOk:
		return "AttachOk"
	case TagAttachDenied:
		return "AttachDenied"
	case TagConfigure:
		return "Configure"
	case TagStatsDelta:
		return "StatsDelta"
	case TagStop:
		return "Stop"
	case TagStatsFinal:
		return "StatsFinal"
	case TagBye:
		return "Bye"
	default:
		return fmt.Sprintf("Tag(%d)", byte(t))
	}
}

// gzipThreshold is the payload size, in bytes, above which a frame is
// transparently gzip-compressed (klauspost/compress, a drop-in for the
// standard library's gzip with a faster implementation). It defaults to
// 4KiB and is adjusted at process start from
// config.Coordinator.CompressThreshold by SetCompressThreshold.
var gzipThreshold = 4096

// SetCompressThreshold overrides gzipThreshold; n <= 0 is ignored.
func SetCompressThreshold(n int) {
	if n > 0 {
		gzipThreshold = n
	}
}

// compressedBit marks a frame's length prefix to indicate its payload is
// gzip-compressed; the remaining 31 bits hold the length.
const compressedBit = uint32(1) << 31

// Attach is sent by a worker on connect. WorkerID and SessionToken are
// empty on first contact; the manager assigns both in AttachOk. A
// non-empty WorkerID/SessionToken pair signals a reconnect attempt, which
// the manager validates against the token it handed out for that worker
// slot to reject a stale reconnect from an already-abandoned slot.
type Attach struct {
	WorkerID     string `json:"worker_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

// AttachOk is the manager's acceptance of a worker, carrying the
// google/uuid session token that identifies this particular attach for
// the lifetime of the worker slot.
type AttachOk struct {
	WorkerID     string    `json:"worker_id"`
	SessionToken string    `json:"session_token"`
	Config       RunConfig `json:"config"`
}

// AttachDenied is the manager's refusal: it holds at most ExpectWorkers
// connections and denies any worker attaching beyond that, as well as a
// reconnect carrying a stale session token.
type AttachDenied struct {
	Reason string `json:"reason"`
}

// RunConfig is the operational configuration a manager hands an attached
// worker. It does not carry task-set definitions — workers run the same
// binary and therefore already hold identical task.TaskSet graphs; only
// the per-worker share of the total population and the shared timing
// parameters need to cross the wire.
type RunConfig struct {
	Host           string `json:"host"`
	Users          int    `json:"users"`
	HatchRate      int    `json:"hatch_rate"`
	RunTimeSeconds int64  `json:"run_time_seconds"`
	MinWaitSeconds int64  `json:"min_wait_seconds"`
	MaxWaitSeconds int64  `json:"max_wait_seconds"`
}

// Configure carries RunConfig in its own frame for workers that attach
// before the manager has computed a division of users (manager sends
// AttachOk immediately, then Configure once RunConfig is finalized).
type Configure struct {
	Config RunConfig `json:"config"`
}

// NameDelta mirrors internal/stats.NameSnapshot in wire form.
type NameDelta struct {
	Name         string           `json:"name"`
	Count        uint64           `json:"count"`
	Success      uint64           `json:"success"`
	Failure      uint64           `json:"failure"`
	StatusCounts map[int]uint64   `json:"status_counts,omitempty"`
	Histogram    stats.Snapshot   `json:"histogram"`
}

// StatsDelta is a worker's periodic statistics push (default interval 1s).
type StatsDelta struct {
	PerName []NameDelta `json:"per_name"`
}

// Stop is the manager's shutdown broadcast.
type Stop struct {
	Reason string `json:"reason"`
}

// StatsFinal is a worker's last statistics push before disconnecting.
type StatsFinal struct {
	PerName []NameDelta `json:"per_name"`
}

// Bye is a worker's clean-disconnect notice.
type Bye struct {
	WorkerID string `json:"worker_id"`
}

// ToNameSnapshots converts wire deltas back into internal/stats values for
// merging into a manager-side aggregate.
func ToNameSnapshots(deltas []NameDelta) []stats.NameSnapshot {
	out := make([]stats.NameSnapshot, len(deltas))
	for i, d := range deltas {
		out[i] = stats.NameSnapshot{
			Name:         d.Name,
			Count:        d.Count,
			Success:      d.Success,
			Failure:      d.Failure,
			StatusCounts: d.StatusCounts,
			Latency:      d.Histogram,
		}
	}
	return out
}

// FromNameSnapshots converts internal/stats values into wire deltas.
func FromNameSnapshots(snaps []stats.NameSnapshot) []NameDelta {
	out := make([]NameDelta, len(snaps))
	for i, s := range snaps {
		out[i] = NameDelta{
			Name:         s.Name,
			Count:        s.Count,
			Success:      s.Success,
			Failure:      s.Failure,
			StatusCounts: s.StatusCounts,
			Histogram:    s.Latency,
		}
	}
	return out
}

// WriteFrame encodes tag+payload as one length-prefixed frame, gzipping the
// payload when it exceeds gzipThreshold.
func WriteFrame(w io.Writer, tag Tag, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", tag, err)
	}

	compressed := false
	if len(body) > gzipThreshold {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(body); err != nil {
			return fmt.Errorf("gzip %s payload: %w", tag, err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("gzip %s payload: %w", tag, err)
		}
		body = buf.Bytes()
		compressed = true
	}

	length := uint32(len(body)) + 1 // +1 for the tag byte
	if compressed {
		length |= compressedBit
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, length)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(tag)}); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame decodes the next frame, returning its tag and raw (decompressed)
// JSON payload.
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header)
	compressed := length&compressedBit != 0
	length &^= compressedBit

	if length == 0 {
		return 0, nil, fmt.Errorf("empty frame")
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}

	tag := Tag(buf[0])
	body := buf[1:]

	if compressed {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("gunzip %s payload: %w", tag, err)
		}
		defer gz.Close()
		decoded, err := io.ReadAll(gz)
		if err != nil {
			return 0, nil, fmt.Errorf("gunzip %s payload: %w", tag, err)
		}
		body = decoded
	}

	switch tag {
	case TagAttach, TagAttachOk, TagAttachDenied, TagConfigure, TagStatsDelta, TagStop, TagStatsFinal, TagBye:
		return tag, body, nil
	default:
		return 0, nil, fmt.Errorf("%w: %d", errs.ErrUnknownTag, byte(tag))
	}
}

// NewSessionToken mints a fresh session token for a newly attached worker
// slot, used to tell a genuine reconnect from a stale one.
func NewSessionToken() string {
	return uuid.NewString()
}

// Decode unmarshals a frame's JSON payload into v.
func Decode(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}
