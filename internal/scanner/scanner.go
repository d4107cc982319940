package scanner

import (
	"fmt"
	"strconv"
	"strings"

	"shelfsync/internal/models"
)

// Candidate is one row eligible for a reverse-sync push: its desired
// quantity differs from the last-known platform quantity.
type Candidate struct {
	RowIndex  int
	ItemID    string
	Desired   int64
	Available int64
}

// Stats summarizes one scan pass for logs and metrics. Malformed rows are a
// data-entry concern and surface only as this aggregate count.
type Stats struct {
	Scanned   int
	Malformed int
	Eligible  int
	Truncated int
}

// Scan applies the change-detection predicate to a full row snapshot and
// returns candidates in row order, truncated to maxRows. Truncation keeps
// the first N so repeated runs drain a backlog front to back.
func Scan(values [][]interface{}, layout models.Layout, maxRows int) ([]Candidate, Stats) {
	var candidates []Candidate
	var stats Stats

	for i, raw := range values {
		stats.Scanned++
		row := RowFromValues(raw, layout, layout.DataStartRow+i)

		if row.ItemID == "" {
			continue
		}
		if row.Desired == "" || row.Available == "" {
			continue
		}

		desired, okDesired := parseQuantity(row.Desired)
		available, okAvailable := parseQuantity(row.Available)
		if !okDesired || !okAvailable {
			stats.Malformed++
			continue
		}
		if desired == available {
			continue
		}

		stats.Eligible++
		candidates = append(candidates, Candidate{
			RowIndex:  row.RowIndex,
			ItemID:    row.ItemID,
			Desired:   desired,
			Available: available,
		})
	}

	if maxRows > 0 && len(candidates) > maxRows {
		stats.Truncated = len(candidates) - maxRows
		candidates = candidates[:maxRows]
	}

	return candidates, stats
}

// RowFromValues maps one raw value array onto the layout's columns.
func RowFromValues(raw []interface{}, layout models.Layout, rowIndex int) models.InventoryRow {
	return models.InventoryRow{
		RowIndex:     rowIndex,
		ItemID:       cellString(raw, layout.Index(layout.ItemID)),
		SKU:          cellString(raw, layout.Index(layout.SKU)),
		Title:        cellString(raw, layout.Index(layout.Title)),
		Available:    cellString(raw, layout.Index(layout.Available)),
		Desired:      cellString(raw, layout.Index(layout.Desired)),
		Status:       cellString(raw, layout.Index(layout.Status)),
		LastPushedAt: cellString(raw, layout.Index(layout.LastPushedAt)),
		LastError:    cellString(raw, layout.Index(layout.LastError)),
	}
}

// Rows parses the full snapshot for jobs that need more than candidates.
func Rows(values [][]interface{}, layout models.Layout) []models.InventoryRow {
	rows := make([]models.InventoryRow, 0, len(values))
	for i, raw := range values {
		rows = append(rows, RowFromValues(raw, layout, layout.DataStartRow+i))
	}
	return rows
}

// IndexByItemID maps item ids to 1-based sheet rows. Rows without an item id
// are skipped; on duplicates the first row wins, matching scan order.
func IndexByItemID(rows []models.InventoryRow) map[string]int {
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.ItemID == "" {
			continue
		}
		if _, ok := index[row.ItemID]; !ok {
			index[row.ItemID] = row.RowIndex
		}
	}
	return index
}

// cellString renders a cell value the way the API returns it: strings for
// formatted reads, float64 when a sheet is read unformatted.
func cellString(raw []interface{}, idx int) string {
	if idx < 0 || idx >= len(raw) {
		return ""
	}
	switch v := raw[idx].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func parseQuantity(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
