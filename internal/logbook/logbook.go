package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "OK"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
)

// DefaultMaxEntries bounds the activity file; older entries are dropped on compaction.
const DefaultMaxEntries = 500

// Entry is one parsed line of the activity file.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Logbook records what the user was told: every toast the TUI shows is
// also appended here so the activity panel survives restarts.
type Logbook struct {
	path       string
	clock      func() time.Time
	maxEntries int

	mu    sync.Mutex
	count int // -1 until the file has been counted
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithClock overrides time.Now for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithMaxEntries sets how many entries survive compaction. n <= 0 keeps everything.
func WithMaxEntries(n int) Option {
	return func(l *Logbook) {
		l.maxEntries = n
	}
}

// New creates a logbook that writes to the provided path.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	l := &Logbook{path: path, clock: time.Now, maxEntries: DefaultMaxEntries, count: -1}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. Write failures are ignored; the activity
// file is a convenience, never a reason to interrupt the user.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now
	if l.clock != nil {
		now = l.clock
	}
	line := formatEntry(Entry{Time: now(), Level: level, Message: message})
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	_, werr := file.WriteString(line + "\n")
	_ = file.Close()
	if werr != nil {
		return
	}
	if l.count >= 0 {
		l.count++
	}
	l.compactLocked()
}

// Tail returns up to maxLines of the most recent entries along with the
// total number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lines, total := l.tailLocked(maxLines)
	if lines == nil {
		return nil, 0
	}
	l.count = total
	return lines, total
}

// Entries returns up to maxLines of the most recent entries, parsed.
// Lines that do not parse are returned as INFO entries with the raw text.
func (l *Logbook) Entries(maxLines int) []Entry {
	lines, _ := l.Tail(maxLines)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entry, ok := ParseEntry(line)
		if !ok {
			entry = Entry{Level: LevelInfo, Message: line}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Success appends an entry for a completed user action.
func (l *Logbook) Success(format string, args ...any) {
	l.Append(LevelSuccess, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// ParseEntry reads a line written by Append.
func ParseEntry(line string) (Entry, bool) {
	stamp, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return Entry{}, false
	}
	rest = strings.TrimLeft(rest, " ")
	level, message, _ := strings.Cut(rest, " ")
	switch Level(level) {
	case LevelInfo, LevelSuccess, LevelWarn, LevelError:
	default:
		return Entry{}, false
	}
	return Entry{Time: ts, Level: Level(level), Message: strings.TrimLeft(message, " ")}, true
}

func formatEntry(e Entry) string {
	return fmt.Sprintf("%s %-5s %s", e.Time.UTC().Format(time.RFC3339), string(e.Level), singleLine(e.Message))
}

// tailLocked scans the file once keeping a ring of the last n lines.
func (l *Logbook) tailLocked(n int) ([]string, int) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	ring := make([]string, n)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		ring[total%n] = scanner.Text()
		total++
	}
	if total == 0 {
		return nil, 0
	}
	if total <= n {
		return ring[:total], total
	}
	start := total % n
	return append(ring[start:], ring[:start]...), total
}

// compactLocked rewrites the file with the newest maxEntries once it has
// grown to twice that size.
func (l *Logbook) compactLocked() {
	if l.maxEntries <= 0 {
		return
	}
	if l.count < 0 {
		_, l.count = l.tailLocked(1)
	}
	if l.count < 2*l.maxEntries {
		return
	}
	keep, _ := l.tailLocked(l.maxEntries)
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(keep, "\n")+"\n"), 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return
	}
	l.count = len(keep)
}

// singleLine keeps multi-line issue descriptions from breaking Tail.
func singleLine(message string) string {
	return strings.Join(strings.Fields(message), " ")
}
