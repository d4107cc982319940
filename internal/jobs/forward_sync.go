package jobs

import (
	"context"
	"time"

	"shelfsync/internal/models"
	"shelfsync/internal/scanner"
	"shelfsync/internal/sheets"

	"github.com/google/uuid"
)

// ForwardSync reflects platform-side quantity changes into the worksheet's
// available column. Incremental: only levels changed since the stored
// cursor are fetched; the cursor advances after a successful write-back.
func ForwardSync(ctx context.Context, d Deps) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "forward-sync",
		StartedAt: time.Now(),
	}

	release, err := d.acquireLease(ctx, summary.RunID)
	if err != nil {
		return summary, err
	}
	defer release()

	d.beginRun(ctx, summary)

	cursor, err := d.State.GetCursor(ctx, forwardCursorKey)
	if err != nil {
		d.finishRun(ctx, &summary, err)
		return summary, err
	}

	runErr := d.applyPlatformQuantities(ctx, &summary, cursor, true)
	d.finishRun(ctx, &summary, runErr)
	return summary, runErr
}

// Reconcile rebuilds the available column from full platform state,
// independent of the push path and the cursor.
func Reconcile(ctx context.Context, d Deps) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "reconcile",
		StartedAt: time.Now(),
	}

	release, err := d.acquireLease(ctx, summary.RunID)
	if err != nil {
		return summary, err
	}
	defer release()

	d.beginRun(ctx, summary)
	runErr := d.applyPlatformQuantities(ctx, &summary, "", true)
	d.finishRun(ctx, &summary, runErr)
	return summary, runErr
}

func (d Deps) applyPlatformQuantities(ctx context.Context, summary *models.RunSummary, since string, advanceCursor bool) error {
	quantities, latest, err := d.Platform.QuantityMap(ctx, d.Cfg.Platform.LocationID, since)
	if err != nil {
		return err
	}

	values, err := d.Rows.ReadAllRows(ctx)
	if err != nil {
		return err
	}

	layout := d.Rows.Layout()
	rows := scanner.Rows(values, layout)
	summary.Scanned = len(rows)

	writes := buildAvailableWrites(rows, layout, quantities)
	summary.Candidates = len(writes)

	if err := d.Rows.BatchWriteCells(ctx, writes); err != nil {
		return err
	}
	summary.Succeeded = len(writes)

	if advanceCursor && latest != "" && latest != since {
		if err := d.State.SetCursor(ctx, forwardCursorKey, latest); err != nil {
			return err
		}
	}
	return nil
}

// buildAvailableWrites returns one write per row whose item has a platform
// quantity differing from the cell's current text. Rows absent from the map
// and items absent from the sheet are both left alone.
func buildAvailableWrites(rows []models.InventoryRow, layout models.Layout, quantities map[string]int64) []sheets.CellWrite {
	var writes []sheets.CellWrite
	for _, row := range rows {
		if row.ItemID == "" {
			continue
		}
		qty, ok := quantities[row.ItemID]
		if !ok {
			continue
		}
		text := formatQuantity(qty)
		if row.Available == text {
			continue
		}
		writes = append(writes, sheets.CellWrite{
			Range: layout.Cell(layout.Available, row.RowIndex),
			Value: text,
		})
	}
	return writes
}
