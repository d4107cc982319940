package models

import (
	"fmt"
	"strings"
)

// Layout maps worksheet columns to row fields. Column values are letters
// ("A".."ZZ"); DataStartRow is the first data row (row 1 holds headers).
type Layout struct {
	Sheet        string `yaml:"sheet"`
	DataStartRow int    `yaml:"data_start_row"`
	ItemID       string `yaml:"item_id"`
	SKU          string `yaml:"sku"`
	Title        string `yaml:"title"`
	Available    string `yaml:"available"`
	Desired      string `yaml:"desired"`
	Status       string `yaml:"status"`
	LastPushedAt string `yaml:"last_pushed_at"`
	LastError    string `yaml:"last_error"`
}

// DefaultLayout returns the standard column assignment for a sheet tab.
func DefaultLayout(sheet string) Layout {
	return Layout{
		Sheet:        sheet,
		DataStartRow: 2,
		ItemID:       "A",
		SKU:          "B",
		Title:        "C",
		Available:    "D",
		Desired:      "E",
		Status:       "F",
		LastPushedAt: "G",
		LastError:    "H",
	}
}

// Validate checks that all columns are set and distinct.
func (l Layout) Validate() error {
	if l.Sheet == "" {
		return fmt.Errorf("layout: sheet name is required")
	}
	if l.DataStartRow < 2 {
		return fmt.Errorf("layout: data_start_row must be at least 2")
	}
	seen := make(map[string]string)
	for name, col := range l.columns() {
		if col == "" {
			return fmt.Errorf("layout: column %s is required", name)
		}
		if ColumnIndex(col) < 0 {
			return fmt.Errorf("layout: column %s has invalid letter %q", name, col)
		}
		if prev, ok := seen[col]; ok {
			return fmt.Errorf("layout: columns %s and %s both use %s", prev, name, col)
		}
		seen[col] = name
	}
	return nil
}

func (l Layout) columns() map[string]string {
	return map[string]string{
		"item_id":        l.ItemID,
		"sku":            l.SKU,
		"title":          l.Title,
		"available":      l.Available,
		"desired":        l.Desired,
		"status":         l.Status,
		"last_pushed_at": l.LastPushedAt,
		"last_error":     l.LastError,
	}
}

// Cell returns an A1-style address for a column letter and 1-based row.
func (l Layout) Cell(column string, row int) string {
	return fmt.Sprintf("%s!%s%d", l.Sheet, column, row)
}

// DataRange covers every mapped column from the first data row downward.
func (l Layout) DataRange() string {
	first, last := l.bounds()
	return fmt.Sprintf("%s!%s%d:%s", l.Sheet, first, l.DataStartRow, last)
}

// AppendRange is the open-ended range used for row appends.
func (l Layout) AppendRange() string {
	first, _ := l.bounds()
	return fmt.Sprintf("%s!%s:%s", l.Sheet, first, first)
}

// Index returns the zero-based offset of a column letter within DataRange.
func (l Layout) Index(column string) int {
	first, _ := l.bounds()
	return ColumnIndex(column) - ColumnIndex(first)
}

// Width is the number of columns covered by DataRange.
func (l Layout) Width() int {
	first, last := l.bounds()
	return ColumnIndex(last) - ColumnIndex(first) + 1
}

func (l Layout) bounds() (first, last string) {
	first, last = l.ItemID, l.ItemID
	for _, col := range l.columns() {
		if ColumnIndex(col) < ColumnIndex(first) {
			first = col
		}
		if ColumnIndex(col) > ColumnIndex(last) {
			last = col
		}
	}
	return first, last
}

// ColumnIndex converts a column letter to a zero-based index, -1 if invalid.
func ColumnIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	if column == "" {
		return -1
	}
	idx := 0
	for _, r := range column {
		if r < 'A' || r > 'Z' {
			return -1
		}
		idx = idx*26 + int(r-'A') + 1
	}
	return idx - 1
}
