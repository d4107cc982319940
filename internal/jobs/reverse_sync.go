package jobs

import (
	"context"
	"time"

	"shelfsync/internal/engine"
	"shelfsync/internal/metrics"
	"shelfsync/internal/models"
	"shelfsync/internal/scanner"

	"github.com/google/uuid"
)

// ReverseSync pushes human edits from the worksheet to the platform under
// optimistic concurrency control. Per-candidate failures land on the sheet;
// only run-level failures (config, lease, write-back) return an error.
func ReverseSync(ctx context.Context, d Deps) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "reverse-sync",
		StartedAt: time.Now(),
	}

	release, err := d.acquireLease(ctx, summary.RunID)
	if err != nil {
		return summary, err
	}
	defer release()

	d.beginRun(ctx, summary)

	values, err := d.Rows.ReadAllRows(ctx)
	if err != nil {
		d.finishRun(ctx, &summary, err)
		return summary, err
	}

	layout := d.Rows.Layout()
	candidates, stats := scanner.Scan(values, layout, d.Cfg.Sync.MaxRowsPerRun)
	summary.Scanned = stats.Scanned
	summary.Malformed = stats.Malformed
	summary.Candidates = len(candidates)
	metrics.AddScan(stats.Scanned, stats.Malformed, stats.Eligible)

	if stats.Truncated > 0 {
		d.Logger.Info().
			Int("truncated", stats.Truncated).
			Int("cap", d.Cfg.Sync.MaxRowsPerRun).
			Msg("candidate backlog exceeds per-run cap; remainder left for next run")
	}

	eng := engine.New(d.Platform, d.Rows, layout, d.Cfg.Platform.LocationID, d.Bus, d.Cfg.Sync.ErrorMaxLen, &d.Logger)
	outcomes, runErr := eng.Run(ctx, summary.RunID, candidates)

	for _, o := range outcomes {
		if o.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	d.finishRun(ctx, &summary, runErr)
	return summary, runErr
}
