// Package processed keeps the set of source files already evaluated, backed by
// an append-only newline-delimited log so restarts never re-handle an image.
package processed

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// DefaultLogFile is the log name used when none is configured.
const DefaultLogFile = "processed_log.txt"

// Log is the in-memory ProcessedSet plus its durable log file.
// An empty path keeps the set in memory only.
type Log struct {
	path string
	seen map[string]struct{}
}

// Open reads the log at path. A missing file is an empty set.
func Open(path string) (*Log, error) {
	l := &Log{path: path, seen: make(map[string]struct{})}
	if path == "" {
		return l, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open processed log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			l.seen[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read processed log: %w", err)
	}
	return l, nil
}

// Memory returns a set that is never persisted.
func Memory() *Log {
	l, _ := Open("")
	return l
}

func (l *Log) Path() string { return l.path }

func (l *Log) Len() int { return len(l.seen) }

func (l *Log) Contains(name string) bool {
	_, ok := l.seen[name]
	return ok
}

// ErrInvalidName is returned by Mark for names the log format cannot store.
var ErrInvalidName = errors.New("file name cannot be stored in processed log")

// Mark records name as processed. The set is updated even if the append
// fails, so the running loop never re-handles the file; the error is still
// returned so the caller can report that durability was lost.
func (l *Log) Mark(name string) error {
	if l.Contains(name) {
		return nil
	}
	l.seen[name] = struct{}{}
	if l.path == "" {
		return nil
	}
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append processed log: %w", err)
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append processed log: %w", err)
	}
	// Fsync so a crash right after an image does not replay it
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync processed log: %w", err)
	}
	return f.Close()
}

// Pending returns the names not yet processed, preserving the input order.
func (l *Log) Pending(names []string) []string {
	var out []string
	for _, n := range names {
		if !l.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Reset deletes the log file and clears the set.
func (l *Log) Reset() error {
	l.seen = make(map[string]struct{})
	if l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
