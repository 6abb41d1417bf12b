package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "activity.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendFlattensMultilineMessages(t *testing.T) {
	dir := t.TempDir()
	book, err := New(filepath.Join(dir, "logs", "activity.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Warn("Order #%d issue:\n  box arrived\n\tcrushed", 7)
	book.Success("Review submitted successfully!")
	lines, total := book.Tail(10)
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if !strings.Contains(lines[0], "WARN  Order #7 issue: box arrived crushed") {
		t.Fatalf("unexpected warn line %q", lines[0])
	}
	if !strings.Contains(lines[1], "OK    Review submitted successfully!") {
		t.Fatalf("unexpected success line %q", lines[1])
	}
}

func TestTailOnMissingFile(t *testing.T) {
	book := &Logbook{path: filepath.Join(t.TempDir(), "missing.log")}
	lines, total := book.Tail(5)
	if lines != nil || total != 0 {
		t.Fatalf("expected empty tail, got %v/%d", lines, total)
	}
}

func TestEntriesParseLevelsAndTime(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	book, err := New(filepath.Join(t.TempDir(), "activity.log"), WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Success("Order #%d: %s", 1004, "Delivery confirmed")
	book.Error("Failed to submit review")
	entries := book.Entries(5)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Level != LevelSuccess || entries[0].Message != "Order #1004: Delivery confirmed" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if !entries[0].Time.Equal(at) {
		t.Fatalf("entry time = %s, want %s", entries[0].Time, at)
	}
	if entries[1].Level != LevelError {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestParseEntryRejectsForeignLines(t *testing.T) {
	for _, line := range []string{"", "hello", "2024-06-01T09:30:00Z DEBUG noisy", "yesterday INFO x"} {
		if _, ok := ParseEntry(line); ok {
			t.Fatalf("expected %q to be rejected", line)
		}
	}
}

func TestCompactionKeepsNewestEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	book, err := New(path, WithMaxEntries(3))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 6; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(10)
	if total != 3 {
		t.Fatalf("total after compaction = %d, want 3", total)
	}
	if !strings.HasSuffix(lines[0], "entry-3") || !strings.HasSuffix(lines[2], "entry-5") {
		t.Fatalf("unexpected lines after compaction %v", lines)
	}
	book.Info("entry-6")
	if _, total := book.Tail(10); total != 4 {
		t.Fatalf("total after append = %d, want 4", total)
	}
}
