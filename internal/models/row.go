package models

// Reverse-sync status markers written to the status column. StatusPending is
// an in-flight marker only; a completed run always overwrites it with a
// terminal value (empty or StatusError).
const (
	StatusEmpty   = ""
	StatusPending = "PENDING"
	StatusError   = "ERROR"
)

// InventoryRow is one tracked item as read from the worksheet. Quantity
// fields keep the raw cell text; parsing happens at scan time so that
// malformed cells can be excluded without failing the whole run.
type InventoryRow struct {
	RowIndex     int // 1-based worksheet row
	ItemID       string
	SKU          string
	Title        string
	Available    string
	Desired      string
	Status       string
	LastPushedAt string
	LastError    string
}
