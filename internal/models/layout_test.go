package models

import "testing"

func TestColumnIndex(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"A", 0},
		{"B", 1},
		{"Z", 25},
		{"AA", 26},
		{"h", 7},
		{"", -1},
		{"A1", -1},
	}
	for _, tc := range cases {
		if got := ColumnIndex(tc.in); got != tc.want {
			t.Fatalf("ColumnIndex(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestLayoutAddresses(t *testing.T) {
	l := DefaultLayout("Inventory")

	if got := l.Cell(l.Status, 7); got != "Inventory!F7" {
		t.Fatalf("Cell = %s", got)
	}
	if got := l.DataRange(); got != "Inventory!A2:H" {
		t.Fatalf("DataRange = %s", got)
	}
	if got := l.AppendRange(); got != "Inventory!A:A" {
		t.Fatalf("AppendRange = %s", got)
	}
	if got := l.Width(); got != 8 {
		t.Fatalf("Width = %d", got)
	}
	if got := l.Index(l.Desired); got != 4 {
		t.Fatalf("Index(desired) = %d", got)
	}
}

func TestLayoutValidate(t *testing.T) {
	l := DefaultLayout("Inventory")
	if err := l.Validate(); err != nil {
		t.Fatalf("default layout should validate: %v", err)
	}

	dup := l
	dup.Desired = dup.Available
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate column error")
	}

	bad := l
	bad.Status = "5"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected invalid letter error")
	}

	headerless := l
	headerless.DataStartRow = 1
	if err := headerless.Validate(); err == nil {
		t.Fatalf("expected data_start_row error")
	}
}

func TestTruncateError(t *testing.T) {
	if got := TruncateError("short", 10); got != "short" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	got := TruncateError("abcdefghij", 8)
	if got != "abcde..." {
		t.Fatalf("TruncateError = %q", got)
	}
	if len(got) != 8 {
		t.Fatalf("expected length 8, got %d", len(got))
	}
}
