// Package dataset loads tabular incident data into mtime-validated
// in-memory snapshots.
//
// A snapshot stays valid while the backing CSV's modification time is
// unchanged; any mismatch observed on the next Load forces a reload. There
// is no proactive file watching: staleness is only detected when a caller
// asks for the data again.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/normalize"
)

// Column names of the consolidated incident/problem datasets.
const (
	ColumnIncidentReport = "Incident_Report"
	ColumnRootCause      = "Root_Cause"
	ColumnProblems       = "Problems_Identified"
	ColumnSolutionSteps  = "Solution_Steps"
)

// SchemaError reports required columns missing from a dataset header.
type SchemaError struct {
	Path    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("dataset %s missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
}

// Row is one dataset record: the free text, its associated resolution, and
// the precomputed normalized form of the text. Rows are immutable once
// loaded; duplicates by normalized text are kept, not collapsed.
type Row struct {
	Text       string
	Resolution string
	Normalized string
}

// Snapshot is an immutable in-memory view of a dataset file.
type Snapshot struct {
	Path    string
	ModTime time.Time
	Rows    []Row
}

// Version is the snapshot's cache version: the backing file's mtime.
func (s *Snapshot) Version() int64 {
	return s.ModTime.UnixNano()
}

// Cache loads a dataset and reuses the snapshot while the file's mtime is
// unchanged.
type Cache struct {
	norm          *normalize.Normalizer
	textColumn    string
	resolutionCol string

	mu   sync.Mutex
	snap *Snapshot
}

// NewCache creates a Cache reading textColumn as the primary text and
// resolutionColumn as the associated resolution.
func NewCache(norm *normalize.Normalizer, textColumn, resolutionColumn string) *Cache {
	return &Cache{
		norm:          norm,
		textColumn:    textColumn,
		resolutionCol: resolutionColumn,
	}
}

// Load returns a snapshot of the dataset at path. The cached snapshot is
// returned without re-reading the file when path and mtime are unchanged;
// otherwise the file is parsed again.
//
// Rows with an empty-after-trim value in either required column are dropped
// silently. Missing files and missing columns fail, there is no partial
// load.
func (c *Cache) Load(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("dataset not found at %s: %w", path, err)
	}
	mtime := info.ModTime()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil && c.snap.Path == path && c.snap.ModTime.Equal(mtime) {
		return c.snap, nil
	}

	rows, err := c.read(path)
	if err != nil {
		return nil, err
	}

	c.snap = &Snapshot{Path: path, ModTime: mtime, Rows: rows}
	return c.snap, nil
}

func (c *Cache) read(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, &SchemaError{Path: path, Missing: []string{c.textColumn, c.resolutionCol}}
	}

	header := records[0]
	textIdx, resIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case c.textColumn:
			textIdx = i
		case c.resolutionCol:
			resIdx = i
		}
	}

	var missing []string
	if textIdx < 0 {
		missing = append(missing, c.textColumn)
	}
	if resIdx < 0 {
		missing = append(missing, c.resolutionCol)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &SchemaError{Path: path, Missing: missing}
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if textIdx >= len(record) || resIdx >= len(record) {
			continue
		}
		text := strings.TrimSpace(record[textIdx])
		resolution := strings.TrimSpace(record[resIdx])
		if text == "" || resolution == "" {
			continue
		}
		rows = append(rows, Row{
			Text:       text,
			Resolution: resolution,
			Normalized: c.norm.Normalize(text),
		})
	}
	return rows, nil
}

// Clear drops the cached snapshot, forcing the next Load to re-read.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
}
