// Package runlog persists run records as append-only JSON lines, one
// file per UTC day. The dashboard and offline analysis read these files;
// the SQLite runs table stays the queryable source of truth.
package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"datanerd/internal/clock"
	"datanerd/internal/types"
)

// maxLineBytes bounds a single run record line; tool results can be large.
const maxLineBytes = 4 * 1024 * 1024

// Writer appends run records under a directory.
type Writer struct {
	mu  sync.Mutex
	dir string
}

// NewWriter creates a writer rooted at dir. The directory is created on
// first append, not here.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the log directory.
func (w *Writer) Dir() string { return w.dir }

// FileFor returns the log file name for an ISO timestamp's UTC day.
func FileFor(createdAt string) string {
	day := strings.ReplaceAll(clock.DatePart(createdAt), "-", "")
	return "runs-" + day + ".jsonl"
}

// Append writes one run as a single JSON line, creating the directory
// and day file as needed.
func (w *Writer) Append(run *types.Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create runs dir: %w", err)
	}

	path := filepath.Join(w.dir, FileFor(run.CreatedAt))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append run: %w", err)
	}
	return nil
}

// ReadAll loads every run from every runs-*.jsonl file under dir, oldest
// file first, preserving line order within a file. Lines that fail to
// decode are skipped.
func ReadAll(dir string) ([]types.Run, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "runs-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob run logs: %w", err)
	}
	sort.Strings(matches)

	var runs []types.Run
	for _, path := range matches {
		fileRuns, err := readFile(path)
		if err != nil {
			return nil, err
		}
		runs = append(runs, fileRuns...)
	}
	return runs, nil
}

func readFile(path string) ([]types.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var runs []types.Run
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var run types.Run
		if err := json.Unmarshal([]byte(line), &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run log %s: %w", path, err)
	}
	return runs, nil
}
