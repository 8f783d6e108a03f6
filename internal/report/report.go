// Package report turns run counters into the end-of-run summary.
package report

import (
	"fmt"
	"strings"
	"time"

	"dailydispatch/internal/dispatch"
	logx "dailydispatch/pkg/logx"
)

const timestampLayout = "02/01/2006 15:04:05"

// SuccessRate returns successes/(successes+failures) as a percentage, or 0
// when nothing was attempted.
func SuccessRate(c dispatch.Counters) float64 {
	attempted := c.Successes + c.Failures
	if attempted == 0 {
		return 0
	}
	return float64(c.Successes) / float64(attempted) * 100
}

// Summarize renders the human-readable report for c at time at.
func Summarize(c dispatch.Counters, at time.Time) string {
	return summarize("", c, at, false)
}

// SummarizeRun renders the report of a finished run.
func SummarizeRun(r dispatch.Result) string {
	at := r.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	return summarize(r.Campaign, r.Counters, at, r.Interrupted)
}

func summarize(campaign string, c dispatch.Counters, at time.Time, interrupted bool) string {
	title := "DISPATCH REPORT"
	if campaign != "" {
		title += " (" + campaign + ")"
	}
	if interrupted {
		title += " - INTERRUPTED"
	}

	var b strings.Builder
	line := strings.Repeat("=", len(title)+12)
	fmt.Fprintf(&b, "%s\n===== %s =====\n", line, title)
	if c.Total == 0 {
		b.WriteString("Nothing to dispatch: no eligible recipients.\n")
	}
	fmt.Fprintf(&b, "Total recipients:          %d\n", c.Total)
	fmt.Fprintf(&b, "Delivered:                 %d\n", c.Successes)
	fmt.Fprintf(&b, "Failed:                    %d\n", c.Failures)
	fmt.Fprintf(&b, "Skipped (already today):   %d\n", c.Skips)
	if interrupted {
		fmt.Fprintf(&b, "Not processed:             %d\n", c.Total-c.Processed())
	}
	fmt.Fprintf(&b, "Success rate (attempted):  %.1f%%\n", SuccessRate(c))
	fmt.Fprintf(&b, "Date/time:                 %s\n", at.Format(timestampLayout))
	b.WriteString(line)
	b.WriteByte('\n')
	return b.String()
}

// Log records the run summary as one structured event.
func Log(log logx.Logger, r dispatch.Result) {
	log.Info("dispatch report",
		logx.String("campaign", r.Campaign),
		logx.String("run_id", r.RunID),
		logx.Int("total", r.Counters.Total),
		logx.Int("successes", r.Counters.Successes),
		logx.Int("failures", r.Counters.Failures),
		logx.Int("skips", r.Counters.Skips),
		logx.Float64("success_rate", SuccessRate(r.Counters)),
		logx.Bool("interrupted", r.Interrupted),
		logx.Bool("persisted", r.Persisted),
	)
}
