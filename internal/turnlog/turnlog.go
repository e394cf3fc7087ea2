// Package turnlog appends TurnRecords to one JSONL file per thread-id. Logs
// are append-only and never mutated; a write failure is reported to the
// caller (the Router logs it at warning level and continues, per §7).
package turnlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cianaparrot/cianaparrot/internal/model"
)

// Log appends TurnRecords to per-thread JSONL files under dir.
type Log struct {
	dir string
}

// New returns a Log rooted at dir. The directory is created lazily on
// first append, mirroring the task/user-state stores' lazy-create behavior.
func New(dir string) *Log {
	return &Log{dir: dir}
}

// Append writes one JSONL line to the thread's log file, creating the file
// and directory if necessary.
func (l *Log) Append(threadID string, record model.TurnRecord) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("turnlog: mkdir %s: %w", l.dir, err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("turnlog: marshal: %w", err)
	}

	path := l.pathFor(threadID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("turnlog: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("turnlog: write %s: %w", path, err)
	}
	return nil
}

// Read loads every record from a thread's log, in append order. Intended
// for tests and diagnostics, not the hot path.
func (l *Log) Read(threadID string) ([]model.TurnRecord, error) {
	data, err := os.ReadFile(l.pathFor(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []model.TurnRecord
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var rec model.TurnRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("turnlog: corrupt line in %s: %w", threadID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *Log) pathFor(threadID string) string {
	return filepath.Join(l.dir, sanitize(threadID)+".jsonl")
}

func sanitize(threadID string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(threadID)
}
