package jobs

import (
	"context"
	"time"

	"shelfsync/internal/models"
	"shelfsync/internal/platform"
	"shelfsync/internal/scanner"

	"github.com/google/uuid"
)

// AppendMissing appends a row for every platform item the worksheet does
// not track yet, seeded with the item's current available quantity. Rows
// are never deleted; removal stays a human decision.
func AppendMissing(ctx context.Context, d Deps) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "append-missing",
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

	quantities, _, err := d.Platform.QuantityMap(ctx, d.Cfg.Platform.LocationID, "")
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

	missing := missingRows(rows, layout, items, quantities)
	summary.Candidates = len(missing)

	runErr := d.Rows.AppendRows(ctx, missing)
	if runErr == nil {
		summary.Succeeded = len(missing)
	}
	d.finishRun(ctx, &summary, runErr)
	return summary, runErr
}

func missingRows(rows []models.InventoryRow, layout models.Layout, items []platform.Item, quantities map[string]int64) [][]interface{} {
	existing := scanner.IndexByItemID(rows)

	var appended [][]interface{}
	for _, item := range items {
		if _, ok := existing[item.ID]; ok {
			continue
		}

		row := make([]interface{}, layout.Width())
		for i := range row {
			row[i] = ""
		}
		row[layout.Index(layout.ItemID)] = item.ID
		row[layout.Index(layout.SKU)] = item.SKU
		row[layout.Index(layout.Title)] = item.Title
		if qty, ok := quantities[item.ID]; ok {
			row[layout.Index(layout.Available)] = formatQuantity(qty)
		}
		appended = append(appended, row)
	}
	return appended
}
