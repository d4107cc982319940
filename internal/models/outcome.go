package models

import "time"

// Push results recorded per candidate.
const (
	ResultPushed    = "pushed"
	ResultConflict  = "conflict"  // precondition failed again after the re-read retry
	ResultRejected  = "rejected"  // platform refused for a non-staleness reason
	ResultTransport = "transport" // network/HTTP failure
)

// PushOutcome is the per-candidate record accumulated by the engine and
// flushed to the sheet and the audit store.
type PushOutcome struct {
	RowIndex int
	ItemID   string
	Desired  int64
	Baseline int64
	Result   string
	Retried  bool
	PushedAt time.Time
	ErrText  string
}

// Succeeded reports whether the push was applied to the platform.
func (o PushOutcome) Succeeded() bool {
	return o.Result == ResultPushed
}

// RunSummary is one job invocation as recorded in the audit store.
type RunSummary struct {
	RunID      string
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	Scanned    int
	Malformed  int
	Candidates int
	Succeeded  int
	Failed     int
	Error      string
}
