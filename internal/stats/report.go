package stats

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// ReportOptions controls what Render includes: whether per-name rows are
// shown alongside the summary, and whether status-code breakdowns are
// rendered.
type ReportOptions struct {
	OnlySummary bool
	StatusCodes bool
}

// Render writes snapshots as a human-readable table to w (go-pretty/table,
// one row per request name, rendered once at call time rather than kept
// live).
func Render(w io.Writer, snapshots []NameSnapshot, opts ReportOptions) {
	sorted := make([]NameSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	writer := table.NewWriter()
	writer.SetOutputMirror(w)

	header := table.Row{"Name", "# Reqs", "# Fails", "Median", "Mean", "95%", "99%", "Max"}
	if opts.StatusCodes {
		header = append(header, "Status Codes")
	}
	writer.AppendHeader(header)

	var totalCount, totalFail uint64
	for _, s := range sorted {
		totalCount += s.Count
		totalFail += s.Failure

		if opts.OnlySummary {
			continue
		}
		row := table.Row{
			s.Name,
			s.Count,
			s.Failure,
			formatMS(s.Latency.Quantile(0.5)),
			formatMS(s.Latency.Mean()),
			formatMS(s.Latency.Quantile(0.95)),
			formatMS(s.Latency.Quantile(0.99)),
			formatMS(s.Latency.Max),
		}
		if opts.StatusCodes {
			row = append(row, formatStatusCounts(s.StatusCounts))
		}
		writer.AppendRow(row)
	}

	if !opts.OnlySummary {
		writer.AppendSeparator()
	}
	totalRow := table.Row{"Total", totalCount, totalFail, "", "", "", "", ""}
	if opts.StatusCodes {
		totalRow = append(totalRow, "")
	}
	writer.AppendRow(totalRow)

	writer.Render()
}

func formatMS(ms float64) string {
	return fmt.Sprintf("%dms", int64(ms))
}

func formatStatusCounts(counts map[int]uint64) string {
	codes := make([]int, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Ints(codes)

	out := ""
	for i, c := range codes {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d: %d", c, counts[c])
	}
	return out
}

// LineLoggable renders one snapshot as a single log-friendly line, used
// when writing to stats_log_file (append-only, never read back).
func LineLoggable(s NameSnapshot, at time.Time) string {
	return fmt.Sprintf(
		"%s name=%q count=%d success=%d failure=%d p50=%.0fms p95=%.0fms p99=%.0fms",
		at.Format(time.RFC3339), s.Name, s.Count, s.Success, s.Failure,
		s.Latency.Quantile(0.5), s.Latency.Quantile(0.95), s.Latency.Quantile(0.99),
	)
}
