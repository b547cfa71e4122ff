// Package report appends a one-line-per-asset audit trail so a run's
// decisions survive in a form greppable long after the logs rotate.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Line is one audit entry.
type Line struct {
	RunID     string
	Identity  string
	Operation string
	Outcome   string
	Detail    string
	Size      int64
	Simulated bool
}

// Writer appends report lines to a single file. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Open opens or creates the report file for appending.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure report directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	return &Writer{file: file, now: time.Now}, nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	return w.file.Close()
}

// Append writes one formatted line.
func (w *Writer) Append(line Line) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder
	b.WriteString(w.now().UTC().Format(time.RFC3339))
	b.WriteString(" run=")
	b.WriteString(line.RunID)
	if line.Simulated {
		b.WriteString(" [dry-run]")
	}
	b.WriteString(" op=")
	b.WriteString(line.Operation)
	b.WriteString(" outcome=")
	b.WriteString(line.Outcome)
	b.WriteString(" asset=")
	b.WriteString(line.Identity)
	if line.Size > 0 {
		b.WriteString(" size=")
		b.WriteString(humanize.Bytes(uint64(line.Size)))
	}
	if line.Detail != "" {
		b.WriteString(" detail=")
		b.WriteString(quoteDetail(line.Detail))
	}
	b.WriteByte('\n')

	if _, err := w.file.WriteString(b.String()); err != nil {
		return fmt.Errorf("append report line: %w", err)
	}
	return nil
}

// quoteDetail quotes details containing spaces so lines stay splittable.
func quoteDetail(detail string) string {
	if strings.ContainsAny(detail, " \t") {
		return fmt.Sprintf("%q", detail)
	}
	return detail
}
