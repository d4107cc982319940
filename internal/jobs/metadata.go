package jobs

import (
	"context"
	"time"

	"shelfsync/internal/models"
	"shelfsync/internal/platform"
	"shelfsync/internal/scanner"
	"shelfsync/internal/sheets"

	"github.com/google/uuid"
)

// RefreshMetadata updates the descriptive columns (SKU, title) for rows
// whose platform metadata has drifted. Quantities are untouched.
func RefreshMetadata(ctx context.Context, d Deps) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "metadata",
		StartedAt: time.Now(),
	}

	release, err := d.acquireLease(ctx, summary.RunID)
	if err != nil {
		return summary, err
	}
	defer release()

	d.beginRun(ctx, summary)

	items, err := d.Platform.ListItems(ctx)
	if err != nil {
		d.finishRun(ctx, &summary, err)
		return summary, err
	}

	values, err := d.Rows.ReadAllRows(ctx)
	if err != nil {
		d.finishRun(ctx, &summary, err)
		return summary, err
	}

	layout := d.Rows.Layout()
	rows := scanner.Rows(values, layout)
	summary.Scanned = len(rows)

	writes := buildMetadataWrites(rows, layout, items)
	summary.Candidates = len(writes)

	runErr := d.Rows.BatchWriteCells(ctx, writes)
	if runErr == nil {
		summary.Succeeded = len(writes)
	}
	d.finishRun(ctx, &summary, runErr)
	return summary, runErr
}

func buildMetadataWrites(rows []models.InventoryRow, layout models.Layout, items []platform.Item) []sheets.CellWrite {
	byID := make(map[string]platform.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var writes []sheets.CellWrite
	for _, row := range rows {
		item, ok := byID[row.ItemID]
		if !ok {
			continue
		}
		if item.SKU != "" && item.SKU != row.SKU {
			writes = append(writes, sheets.CellWrite{
				Range: layout.Cell(layout.SKU, row.RowIndex),
				Value: item.SKU,
			})
		}
		if item.Title != "" && item.Title != row.Title {
			writes = append(writes, sheets.CellWrite{
				Range: layout.Cell(layout.Title, row.RowIndex),
				Value: item.Title,
			})
		}
	}
	return writes
}
