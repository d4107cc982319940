package platform

import "fmt"

// PreconditionError reports a conditional set that the platform rejected
// because the live quantity no longer matched the expected value. The engine
// consumes the first occurrence with a re-read retry; a second occurrence is
// terminal for the candidate.
type PreconditionError struct {
	ItemID   string
	Expected int64
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("stale quantity for %s: compared against %d", e.ItemID, e.Expected)
}

// RejectedError is any other validation failure reported by the platform
// (unknown item, disallowed quantity, malformed id). Never retried.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform rejected [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("platform rejected: %s", e.Message)
}
