package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelfsync/internal/events"
	"shelfsync/internal/models"
	"shelfsync/internal/platform"
	"shelfsync/internal/scanner"
	"shelfsync/internal/sheets"

	"github.com/rs/zerolog"
)

// PlatformClient is the write path the engine depends on. The conditional
// set must report precondition mismatches as *platform.PreconditionError so
// the one-shot retry can trigger.
type PlatformClient interface {
	ReadQuantity(ctx context.Context, itemID, locationID string) (int64, error)
	ConditionalSetQuantity(ctx context.Context, itemID, locationID string, desired, expected int64) error
}

// RowWriter batches cell mutations back to the row store.
type RowWriter interface {
	BatchWriteCells(ctx context.Context, writes []sheets.CellWrite) error
}

// Engine applies each candidate's desired quantity to the platform under a
// compare-and-swap precondition and classifies every outcome. Candidates are
// processed sequentially; the two write-back passes (PENDING marks, terminal
// outcomes) are each a single batched call.
type Engine struct {
	platform   PlatformClient
	rows       RowWriter
	layout     models.Layout
	locationID string
	bus        *events.EventBus
	logger     zerolog.Logger
	errMaxLen  int
	now        func() time.Time
}

func New(pc PlatformClient, rows RowWriter, layout models.Layout, locationID string, bus *events.EventBus, errMaxLen int, logger *zerolog.Logger) *Engine {
	if errMaxLen <= 0 {
		errMaxLen = models.DefaultErrorMaxLen
	}
	return &Engine{
		platform:   pc,
		rows:       rows,
		layout:     layout,
		locationID: locationID,
		bus:        bus,
		logger:     logger.With().Str("component", "engine").Logger(),
		errMaxLen:  errMaxLen,
		now:        time.Now,
	}
}

// Run processes the candidate list. A returned error means a run-level
// failure (a write-back pass could not be applied); per-candidate failures
// are recorded in the outcomes and on the sheet, never aborting the run.
func (e *Engine) Run(ctx context.Context, runID string, candidates []scanner.Candidate) ([]models.PushOutcome, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	if err := e.markPending(ctx, candidates); err != nil {
		return nil, fmt.Errorf("mark pending: %w", err)
	}

	outcomes := make([]models.PushOutcome, 0, len(candidates))
	for _, c := range candidates {
		outcome := e.push(ctx, c)
		outcomes = append(outcomes, outcome)
		e.publish(runID, outcome)
	}

	if err := e.rows.BatchWriteCells(ctx, e.outcomeWrites(outcomes)); err != nil {
		return outcomes, fmt.Errorf("write outcomes: %w", err)
	}
	return outcomes, nil
}

// markPending writes the in-flight marker for the whole batch before any
// push begins, in one call.
func (e *Engine) markPending(ctx context.Context, candidates []scanner.Candidate) error {
	writes := make([]sheets.CellWrite, 0, len(candidates))
	for _, c := range candidates {
		writes = append(writes, sheets.CellWrite{
			Range: e.layout.Cell(e.layout.Status, c.RowIndex),
			Value: models.StatusPending,
		})
	}
	return e.rows.BatchWriteCells(ctx, writes)
}

// push runs the per-candidate protocol: one conditional set against the row
// baseline, and on a precondition failure exactly one retry against the
// freshly read live quantity.
func (e *Engine) push(ctx context.Context, c scanner.Candidate) models.PushOutcome {
	outcome := models.PushOutcome{
		RowIndex: c.RowIndex,
		ItemID:   c.ItemID,
		Desired:  c.Desired,
		Baseline: c.Available,
	}

	err := e.platform.ConditionalSetQuantity(ctx, c.ItemID, e.locationID, c.Desired, c.Available)

	var stale *platform.PreconditionError
	if errors.As(err, &stale) {
		outcome.Retried = true
		current, readErr := e.platform.ReadQuantity(ctx, c.ItemID, e.locationID)
		if readErr != nil {
			err = readErr
		} else {
			e.logger.Debug().
				Str("item_id", c.ItemID).
				Int64("baseline", c.Available).
				Int64("live", current).
				Msg("baseline stale, retrying against live quantity")
			err = e.platform.ConditionalSetQuantity(ctx, c.ItemID, e.locationID, c.Desired, current)
		}
	}

	outcome.Result = classify(err)
	if err != nil {
		outcome.ErrText = models.TruncateError(err.Error(), e.errMaxLen)
		e.logger.Warn().
			Str("item_id", c.ItemID).
			Int("row", c.RowIndex).
			Str("result", outcome.Result).
			Err(err).
			Msg("push failed")
		return outcome
	}

	outcome.PushedAt = e.now()
	e.logger.Info().
		Str("item_id", c.ItemID).
		Int("row", c.RowIndex).
		Int64("quantity", c.Desired).
		Bool("retried", outcome.Retried).
		Msg("quantity pushed")
	return outcome
}

func classify(err error) string {
	if err == nil {
		return models.ResultPushed
	}
	var stale *platform.PreconditionError
	if errors.As(err, &stale) {
		return models.ResultConflict
	}
	var rejected *platform.RejectedError
	if errors.As(err, &rejected) {
		return models.ResultRejected
	}
	return models.ResultTransport
}

// outcomeWrites builds the terminal write-back. Success clears the desired
// quantity (this is what stops the row from being reprocessed and what
// breaks the forward/reverse feedback loop); failure leaves desired and
// available untouched so the row stays a candidate next run.
func (e *Engine) outcomeWrites(outcomes []models.PushOutcome) []sheets.CellWrite {
	var writes []sheets.CellWrite
	for _, o := range outcomes {
		if o.Succeeded() {
			writes = append(writes,
				sheets.CellWrite{Range: e.layout.Cell(e.layout.Desired, o.RowIndex), Value: ""},
				sheets.CellWrite{Range: e.layout.Cell(e.layout.Status, o.RowIndex), Value: models.StatusEmpty},
				sheets.CellWrite{Range: e.layout.Cell(e.layout.LastPushedAt, o.RowIndex), Value: o.PushedAt.Format(models.TimeFormat)},
				sheets.CellWrite{Range: e.layout.Cell(e.layout.LastError, o.RowIndex), Value: ""},
			)
			continue
		}
		writes = append(writes,
			sheets.CellWrite{Range: e.layout.Cell(e.layout.Status, o.RowIndex), Value: models.StatusError},
			sheets.CellWrite{Range: e.layout.Cell(e.layout.LastError, o.RowIndex), Value: o.ErrText},
		)
	}
	return writes
}

func (e *Engine) publish(runID string, o models.PushOutcome) {
	eventType := events.EventRowPushed
	if !o.Succeeded() {
		eventType = events.EventRowPushFailed
	}
	_ = e.bus.PublishJSON(eventType, events.RowEventPayload{
		RunID:    runID,
		RowIndex: o.RowIndex,
		ItemID:   o.ItemID,
		Desired:  o.Desired,
		Baseline: o.Baseline,
		Result:   o.Result,
		Retried:  o.Retried,
		Error:    o.ErrText,
	})
}
