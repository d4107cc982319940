package models

const (
	// DefaultMaxRowsPerRun caps how many candidates a single reverse-sync
	// run will push.
	DefaultMaxRowsPerRun = 50

	// DefaultErrorMaxLen bounds the text written to the last-error column.
	DefaultErrorMaxLen = 200

	// DefaultLeaseTTLSeconds is the staleness timeout for the run lease.
	DefaultLeaseTTLSeconds = 300

	// TimeFormat is used for the last-pushed-at column and exports.
	TimeFormat = "2006-01-02 15:04:05"
)

// TruncateError shortens an error message to fit the last-error column.
func TruncateError(msg string, max int) string {
	if max <= 0 {
		max = DefaultErrorMaxLen
	}
	if len(msg) <= max {
		return msg
	}
	if max <= 3 {
		return msg[:max]
	}
	return msg[:max-3] + "..."
}
