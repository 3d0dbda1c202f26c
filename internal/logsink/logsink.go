// Package logsink appends timestamped, multi-line records to the control
// and data log files. Both files are append-only plain text; there is no
// rotation, fsync, or truncation. Writes never propagate failures to the
// caller — a failed open or write prints to standard error and is
// swallowed, since the record layout is a fixed wire format and callers
// have no useful recovery action beyond that diagnostic.
package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FormatRecord renders a record as described by the log format: the first
// line is prefixed with a fixed-width timestamp "YYYY-MM-DD HH:MM:SS:ffffff",
// every subsequent line is prefixed with spaces of that same width, and all
// prefixed lines are joined with " :: ".
func FormatRecord(lines []string, at time.Time) string {
	ts := at.Format("2006-01-02 15:04:05") + fmt.Sprintf(":%06d", at.Nanosecond()/1000)
	pad := strings.Repeat(" ", len(ts))

	parts := make([]string, len(lines))
	for i, line := range lines {
		prefix := pad
		if i == 0 {
			prefix = ts
		}
		parts[i] = prefix + line
	}
	return strings.Join(parts, " :: ")
}

// Sink owns the control and data log files. When the two configured paths
// canonicalize to the same file, both share a single mutex so a record
// written to one never interleaves its bytes with a concurrent write to the
// other.
type Sink struct {
	controlPath string
	dataPath    string
	controlMu   *sync.Mutex
	dataMu      *sync.Mutex
}

// NewSink builds a Sink for the two configured log paths. Paths are
// canonicalized (absolute + cleaned) purely to detect aliasing; the
// original path strings are what's opened on every write.
func NewSink(controlPath, dataPath string) (*Sink, error) {
	controlCanon, err := canonicalize(controlPath)
	if err != nil {
		return nil, fmt.Errorf("logsink: control log path %q: %w", controlPath, err)
	}
	dataCanon, err := canonicalize(dataPath)
	if err != nil {
		return nil, fmt.Errorf("logsink: data log path %q: %w", dataPath, err)
	}

	s := &Sink{controlPath: controlPath, dataPath: dataPath}
	if controlCanon == dataCanon {
		shared := &sync.Mutex{}
		s.controlMu = shared
		s.dataMu = shared
	} else {
		s.controlMu = &sync.Mutex{}
		s.dataMu = &sync.Mutex{}
	}
	return s, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// WriteControl appends a control-log record (startup banner, warnings,
// fatal errors, shutdown notices).
func (s *Sink) WriteControl(lines ...string) {
	s.write(s.controlMu, s.controlPath, lines)
}

// WriteData appends a data-log record (one per forwarded trap, when trap
// logging is enabled).
func (s *Sink) WriteData(lines ...string) {
	s.write(s.dataMu, s.dataPath, lines)
}

func (s *Sink) write(mu *sync.Mutex, path string, lines []string) {
	mu.Lock()
	defer mu.Unlock()

	record := FormatRecord(lines, time.Now()) + "\n"

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logsink: open %s: %v\n", path, err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(record); err != nil {
		fmt.Fprintf(os.Stderr, "logsink: write %s: %v\n", path, err)
	}
}
