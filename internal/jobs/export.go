package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"shelfsync/internal/models"
	"shelfsync/internal/scanner"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Export writes an .xlsx snapshot of the worksheet to the export directory
// and returns the file path. Read-only; no lease needed.
func Export(ctx context.Context, d Deps) (string, models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "export",
		StartedAt: time.Now(),
	}
	d.beginRun(ctx, summary)

	values, err := d.Rows.ReadAllRows(ctx)
	if err != nil {
		d.finishRun(ctx, &summary, err)
		return "", summary, err
	}

	layout := d.Rows.Layout()
	rows := scanner.Rows(values, layout)
	summary.Scanned = len(rows)

	path := filepath.Join(d.Cfg.Export.Path, fmt.Sprintf("inventory_%s.xlsx", time.Now().Format("20060102_150405")))
	runErr := writeWorkbook(path, rows)
	if runErr == nil {
		summary.Succeeded = len(rows)
	}
	d.finishRun(ctx, &summary, runErr)
	return path, summary, runErr
}

func writeWorkbook(path string, rows []models.InventoryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Inventory"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []interface{}{"Item ID", "SKU", "Title", "Available", "Desired", "Status", "Last Pushed At", "Last Error"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cells := []interface{}{
			row.ItemID,
			row.SKU,
			row.Title,
			row.Available,
			row.Desired,
			row.Status,
			row.LastPushedAt,
			row.LastError,
		}
		addr := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, addr, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
