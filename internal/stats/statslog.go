package stats

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// StatsLogInterval is how often RunStatsLog appends a line per request
// name to the configured append-only stats log.
const StatsLogInterval = 5 * time.Second

// RunStatsLog appends one LineLoggable line per request name to path every
// StatsLogInterval, until ctx is canceled. path rotates through lumberjack
// once it exceeds 100 megabytes, keeping 3 backups, rather than growing
// unbounded for the life of a long-running worker.
func RunStatsLog(ctx context.Context, path string, snapshotFn func() []NameSnapshot) {
	w := &lumberjack.Logger{Filename: path, MaxSize: 100, MaxBackups: 3}
	defer w.Close()

	ticker := time.NewTicker(StatsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, snap := range snapshotFn() {
				fmt.Fprintln(w, LineLoggable(snap, now))
			}
		}
	}
}
