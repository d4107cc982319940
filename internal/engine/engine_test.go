package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"shelfsync/internal/events"
	"shelfsync/internal/models"
	"shelfsync/internal/platform"
	"shelfsync/internal/scanner"
	"shelfsync/internal/sheets"

	"github.com/rs/zerolog"
)

const testLocation = "100"

type setCall struct {
	itemID   string
	desired  int64
	expected int64
}

// fakePlatform simulates per-item live quantities with compare-and-swap
// semantics: a set succeeds only when expected matches the live value.
type fakePlatform struct {
	live      map[string]int64
	rejectErr error
	readErr   error
	setCalls  []setCall
	readCalls int
}

func (f *fakePlatform) ConditionalSetQuantity(_ context.Context, itemID, _ string, desired, expected int64) error {
	f.setCalls = append(f.setCalls, setCall{itemID: itemID, desired: desired, expected: expected})
	if f.rejectErr != nil {
		return f.rejectErr
	}
	if f.live[itemID] != expected {
		return &platform.PreconditionError{ItemID: itemID, Expected: expected}
	}
	f.live[itemID] = desired
	return nil
}

func (f *fakePlatform) ReadQuantity(_ context.Context, itemID, _ string) (int64, error) {
	f.readCalls++
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.live[itemID], nil
}

type fakeWriter struct {
	batches [][]sheets.CellWrite
	err     error
}

func (f *fakeWriter) BatchWriteCells(_ context.Context, writes []sheets.CellWrite) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, writes)
	return nil
}

func newTestEngine(p PlatformClient, w RowWriter) *Engine {
	logger := zerolog.New(os.Stdout)
	e := New(p, w, models.DefaultLayout("Inventory"), testLocation, events.NewEventBus(), 0, &logger)
	e.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return e
}

func candidate(row int, id string, desired, available int64) scanner.Candidate {
	return scanner.Candidate{RowIndex: row, ItemID: id, Desired: desired, Available: available}
}

func findWrite(writes []sheets.CellWrite, rng string) (interface{}, bool) {
	for _, w := range writes {
		if w.Range == rng {
			return w.Value, true
		}
	}
	return nil, false
}

func TestRunPushSuccess(t *testing.T) {
	p := &fakePlatform{live: map[string]int64{"item-1": 10}}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	outcomes, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(2, "item-1", 7, 10)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Result != models.ResultPushed {
		t.Fatalf("expected one pushed outcome, got %+v", outcomes)
	}
	if outcomes[0].Retried {
		t.Fatalf("expected no retry on matching baseline")
	}
	if p.live["item-1"] != 7 {
		t.Fatalf("expected live quantity 7, got %d", p.live["item-1"])
	}
	if len(p.setCalls) != 1 || p.setCalls[0].expected != 10 {
		t.Fatalf("expected single set with precondition 10, got %+v", p.setCalls)
	}

	if len(w.batches) != 2 {
		t.Fatalf("expected exactly two write batches, got %d", len(w.batches))
	}
	if v, ok := findWrite(w.batches[0], "Inventory!F2"); !ok || v != models.StatusPending {
		t.Fatalf("expected PENDING mark in first batch, got %v", w.batches[0])
	}
	if v, ok := findWrite(w.batches[1], "Inventory!E2"); !ok || v != "" {
		t.Fatalf("expected desired cleared, got %v", v)
	}
	if v, ok := findWrite(w.batches[1], "Inventory!F2"); !ok || v != models.StatusEmpty {
		t.Fatalf("expected status cleared, got %v", v)
	}
	if v, ok := findWrite(w.batches[1], "Inventory!G2"); !ok || v != "2026-08-25 12:00:00" {
		t.Fatalf("expected last-pushed timestamp, got %v", v)
	}
	if v, ok := findWrite(w.batches[1], "Inventory!H2"); !ok || v != "" {
		t.Fatalf("expected last-error cleared, got %v", v)
	}
	if _, ok := findWrite(w.batches[1], "Inventory!D2"); ok {
		t.Fatalf("available column must be left to the forward sync")
	}
}

func TestRunStaleBaselineRetriesOnce(t *testing.T) {
	// Row believes 10, platform drifted to 8.
	p := &fakePlatform{live: map[string]int64{"item-1": 8}}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	outcomes, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(2, "item-1", 7, 10)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcomes[0].Result != models.ResultPushed || !outcomes[0].Retried {
		t.Fatalf("expected retried push, got %+v", outcomes[0])
	}
	if p.readCalls != 1 {
		t.Fatalf("expected exactly one re-read, got %d", p.readCalls)
	}
	if len(p.setCalls) != 2 {
		t.Fatalf("expected two set attempts, got %d", len(p.setCalls))
	}
	if p.setCalls[0].expected != 10 || p.setCalls[1].expected != 8 {
		t.Fatalf("expected preconditions 10 then 8, got %+v", p.setCalls)
	}
	if p.live["item-1"] != 7 {
		t.Fatalf("expected live quantity 7 after retry, got %d", p.live["item-1"])
	}
}

func TestRunSecondPreconditionFailureIsTerminal(t *testing.T) {
	// The re-read races with another writer: by the time the retry fires
	// the live value has moved again.
	w := &fakeWriter{}
	raced := &racingPlatform{fakePlatform: &fakePlatform{live: map[string]int64{"item-1": 8}}}
	eng := newTestEngine(raced, w)

	outcomes, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(2, "item-1", 7, 10)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcomes[0].Result != models.ResultConflict {
		t.Fatalf("expected conflict outcome, got %+v", outcomes[0])
	}
	if len(raced.setCalls) != 2 {
		t.Fatalf("expected exactly two set attempts, got %d", len(raced.setCalls))
	}
	if v, ok := findWrite(w.batches[1], "Inventory!F2"); !ok || v != models.StatusError {
		t.Fatalf("expected ERROR status, got %v", v)
	}
	if _, ok := findWrite(w.batches[1], "Inventory!E2"); ok {
		t.Fatalf("desired must stay untouched on failure")
	}
}

// racingPlatform moves the live quantity between the re-read and the retry.
type racingPlatform struct {
	*fakePlatform
}

func (r *racingPlatform) ReadQuantity(ctx context.Context, itemID, locationID string) (int64, error) {
	qty, err := r.fakePlatform.ReadQuantity(ctx, itemID, locationID)
	r.fakePlatform.live[itemID] = qty + 1
	return qty, err
}

func TestRunRejectionIsNotRetried(t *testing.T) {
	p := &fakePlatform{
		live:      map[string]int64{"item-1": 10},
		rejectErr: &platform.RejectedError{Code: "INVALID_ITEM", Message: "inventory item gone"},
	}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	outcomes, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(4, "item-1", 7, 10)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcomes[0].Result != models.ResultRejected {
		t.Fatalf("expected rejected outcome, got %+v", outcomes[0])
	}
	if p.readCalls != 0 || len(p.setCalls) != 1 {
		t.Fatalf("expected no retry for non-staleness rejection, reads=%d sets=%d", p.readCalls, len(p.setCalls))
	}
	if v, ok := findWrite(w.batches[1], "Inventory!H4"); !ok || !strings.Contains(v.(string), "inventory item gone") {
		t.Fatalf("expected rejection detail in last-error, got %v", v)
	}
	if _, ok := findWrite(w.batches[1], "Inventory!E4"); ok {
		t.Fatalf("desired must stay untouched so the row remains a candidate")
	}
}

func TestRunTransportFailure(t *testing.T) {
	p := &fakePlatform{
		live:      map[string]int64{"item-1": 10},
		rejectErr: errors.New("dial tcp: connection refused"),
	}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	outcomes, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(2, "item-1", 7, 10)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcomes[0].Result != models.ResultTransport {
		t.Fatalf("expected transport outcome, got %+v", outcomes[0])
	}
}

func TestRunFailureDuringRetryReRead(t *testing.T) {
	p := &fakePlatform{
		live:    map[string]int64{"item-1": 8},
		readErr: errors.New("read timeout"),
	}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	outcomes, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(2, "item-1", 7, 10)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	o := outcomes[0]
	if o.Result != models.ResultTransport || !o.Retried {
		t.Fatalf("expected transport outcome from failed re-read, got %+v", o)
	}
	if len(p.setCalls) != 1 {
		t.Fatalf("expected no second set after failed re-read, got %d", len(p.setCalls))
	}
}

func TestRunMarksEveryCandidateTerminal(t *testing.T) {
	p := &fakePlatform{live: map[string]int64{"item-1": 10, "item-2": 5, "item-3": 3}}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	cands := []scanner.Candidate{
		candidate(2, "item-1", 7, 10),
		candidate(3, "item-2", 4, 9), // stale baseline; retry lands on live 5
		candidate(4, "item-3", 1, 3),
	}
	outcomes, err := eng.Run(context.Background(), "run-1", cands)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected three outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if !o.Succeeded() {
			t.Fatalf("outcome %d should have succeeded: %+v", i, o)
		}
	}

	// Post-run invariant: every marked row got a terminal status write.
	marked := map[string]bool{}
	for _, wr := range w.batches[0] {
		marked[wr.Range] = false
	}
	for _, wr := range w.batches[1] {
		if _, ok := marked[wr.Range]; ok {
			if wr.Value == models.StatusPending {
				t.Fatalf("PENDING must not survive the outcome pass: %v", wr)
			}
			marked[wr.Range] = true
		}
	}
	for rng, terminal := range marked {
		if !terminal {
			t.Fatalf("row %s left PENDING after run", rng)
		}
	}
}

func TestRunEmptyCandidates(t *testing.T) {
	p := &fakePlatform{live: map[string]int64{}}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	outcomes, err := eng.Run(context.Background(), "run-1", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcomes != nil {
		t.Fatalf("expected no outcomes, got %+v", outcomes)
	}
	if len(w.batches) != 0 {
		t.Fatalf("expected no writes for empty candidate list, got %d", len(w.batches))
	}
}

func TestRunPendingWriteFailureAbortsRun(t *testing.T) {
	p := &fakePlatform{live: map[string]int64{"item-1": 10}}
	w := &fakeWriter{err: errors.New("batch write failed")}
	eng := newTestEngine(p, w)

	_, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(2, "item-1", 7, 10)})
	if err == nil {
		t.Fatalf("expected run-level error when PENDING pass cannot be written")
	}
	if len(p.setCalls) != 0 {
		t.Fatalf("no push may happen before the PENDING pass lands")
	}
}

func TestRunTruncatesLongErrors(t *testing.T) {
	long := strings.Repeat("x", 2000)
	p := &fakePlatform{
		live:      map[string]int64{"item-1": 10},
		rejectErr: &platform.RejectedError{Code: "BAD", Message: long},
	}
	w := &fakeWriter{}
	eng := newTestEngine(p, w)

	outcomes, err := eng.Run(context.Background(), "run-1", []scanner.Candidate{candidate(2, "item-1", 7, 10)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(outcomes[0].ErrText); got > models.DefaultErrorMaxLen {
		t.Fatalf("expected error truncated to %d, got %d", models.DefaultErrorMaxLen, got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, models.ResultPushed},
		{"precondition", &platform.PreconditionError{ItemID: "x", Expected: 1}, models.ResultConflict},
		{"rejected", &platform.RejectedError{Code: "BAD", Message: "no"}, models.ResultRejected},
		{"wrapped rejected", fmt.Errorf("push: %w", &platform.RejectedError{Message: "no"}), models.ResultRejected},
		{"transport", errors.New("eof"), models.ResultTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Fatalf("classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}
