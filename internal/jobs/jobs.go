package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shelfsync/internal/config"
	"shelfsync/internal/events"
	"shelfsync/internal/metrics"
	"shelfsync/internal/models"
	"shelfsync/internal/platform"
	"shelfsync/internal/repository"
	"shelfsync/internal/sheets"
	"shelfsync/internal/store"

	"github.com/rs/zerolog"
)

// ErrLeaseHeld means another run currently holds the lease; the caller
// should exit early without touching any row.
var ErrLeaseHeld = errors.New("another run holds the lease")

func formatQuantity(n int64) string {
	return strconv.FormatInt(n, 10)
}

const forwardCursorKey = "shelfsync:forward_cursor"

// RowStore is the worksheet surface jobs depend on.
type RowStore interface {
	ReadAllRows(ctx context.Context) ([][]interface{}, error)
	BatchWriteCells(ctx context.Context, writes []sheets.CellWrite) error
	AppendRows(ctx context.Context, rows [][]interface{}) error
	Layout() models.Layout
}

// PlatformAPI is the platform surface jobs depend on.
type PlatformAPI interface {
	ReadQuantity(ctx context.Context, itemID, locationID string) (int64, error)
	ConditionalSetQuantity(ctx context.Context, itemID, locationID string, desired, expected int64) error
	QuantityMap(ctx context.Context, locationID, updatedSince string) (map[string]int64, string, error)
	ListItems(ctx context.Context) ([]platform.Item, error)
}

// Deps carries everything a job invocation needs. Audit and Bus may be nil.
type Deps struct {
	Cfg      *config.Config
	Rows     RowStore
	Platform PlatformAPI
	State    repository.RunState
	Audit    *store.Store
	Bus      *events.EventBus
	Logger   zerolog.Logger
}

// acquireLease takes the run lease for this run id and returns its release
// function. Jobs that mutate shared state call this first.
func (d Deps) acquireLease(ctx context.Context, runID string) (func(), error) {
	if d.State == nil {
		return func() {}, nil
	}

	ttl := time.Duration(d.Cfg.Lease.TTLSeconds) * time.Second
	ok, err := d.State.AcquireLease(ctx, d.Cfg.Lease.Key, runID, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	release := func() {
		if err := d.State.ReleaseLease(context.Background(), d.Cfg.Lease.Key, runID); err != nil {
			d.Logger.Warn().Err(err).Msg("lease release failed; TTL will expire it")
		}
	}
	return release, nil
}

func (d Deps) beginRun(ctx context.Context, summary models.RunSummary) {
	if d.Audit != nil {
		if err := d.Audit.StartRun(ctx, summary.RunID, summary.Job, summary.StartedAt); err != nil {
			d.Logger.Warn().Err(err).Msg("audit: run start not recorded")
		}
	}
	_ = d.Bus.PublishJSON(events.EventRunStarted, events.RunEventPayload{RunID: summary.RunID, Job: summary.Job})
}

func (d Deps) finishRun(ctx context.Context, summary *models.RunSummary, runErr error) {
	summary.FinishedAt = time.Now()
	status := "ok"
	if runErr != nil {
		status = "error"
		summary.Error = runErr.Error()
	}
	metrics.IncRun(summary.Job, status)

	if d.Audit != nil {
		if err := d.Audit.FinishRun(ctx, *summary); err != nil {
			d.Logger.Warn().Err(err).Msg("audit: run finish not recorded")
		}
	}
	_ = d.Bus.PublishJSON(events.EventRunCompleted, events.RunEventPayload{
		RunID:      summary.RunID,
		Job:        summary.Job,
		Candidates: summary.Candidates,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
	})

	d.Logger.Info().
		Str("run_id", summary.RunID).
		Str("job", summary.Job).
		Int("scanned", summary.Scanned).
		Int("candidates", summary.Candidates).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Str("status", status).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("run finished")
}
