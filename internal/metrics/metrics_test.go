package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAddScan(t *testing.T) {
	before := testutil.ToFloat64(rowsScanned)
	AddScan(40, 2, 5)

	if got := testutil.ToFloat64(rowsScanned) - before; got != 40 {
		t.Fatalf("rows_scanned delta = %v", got)
	}
	if got := testutil.ToFloat64(malformedRows); got < 2 {
		t.Fatalf("malformed_rows = %v", got)
	}
	if got := testutil.ToFloat64(candidates); got < 5 {
		t.Fatalf("candidates = %v", got)
	}
}

func TestIncPushCountsConflictRetries(t *testing.T) {
	pushedBefore := testutil.ToFloat64(pushes.WithLabelValues("pushed"))
	conflictsBefore := testutil.ToFloat64(conflicts)

	IncPush("pushed", false)
	IncPush("pushed", true)
	IncPush("conflict", true)

	if got := testutil.ToFloat64(pushes.WithLabelValues("pushed")) - pushedBefore; got != 2 {
		t.Fatalf("pushed delta = %v", got)
	}
	if got := testutil.ToFloat64(conflicts) - conflictsBefore; got != 2 {
		t.Fatalf("cas_conflicts delta = %v", got)
	}
}

func TestIncRun(t *testing.T) {
	before := testutil.ToFloat64(runs.WithLabelValues("reverse-sync", "ok"))
	IncRun("reverse-sync", "ok")

	if got := testutil.ToFloat64(runs.WithLabelValues("reverse-sync", "ok")) - before; got != 1 {
		t.Fatalf("runs delta = %v", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	Register()
	Register() // must not panic on re-registration
}

func TestPushEmptyURL(t *testing.T) {
	if err := Push("", "shelfsync"); err != nil {
		t.Fatalf("empty url must be a no-op: %v", err)
	}
}
