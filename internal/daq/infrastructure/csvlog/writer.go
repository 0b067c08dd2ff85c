// Package csvlog persists aggregate records as rows of a CSV session file:
// one timestamp column, then per device its channel columns and one status
// column, in configuration order.
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// Writer appends aggregate records to one CSV file, flushing per row so a
// crash loses at most the current tick.
type Writer struct {
	mu          sync.Mutex
	file        *os.File
	w           *csv.Writer
	wroteHeader bool
	// header is the column set rows are appended under. On reopen it is
	// read back from the file so a changed device or channel set fails
	// loudly instead of appending misaligned rows.
	header   []string
	verified bool
}

// New opens (or creates) the session file in append mode. The header row
// is written lazily from the first record when the file is empty.
func New(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv sink: open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csv sink: stat %q: %w", path, err)
	}
	w := &Writer{
		file:        f,
		w:           csv.NewWriter(f),
		wroteHeader: info.Size() > 0,
	}
	if w.wroteHeader {
		w.header, err = readHeader(path)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv sink: reread header %q: %w", path, err)
	}
	defer f.Close()
	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("csv sink: read header %q: %w", path, err)
	}
	return header, nil
}

// Name identifies this sink in metrics and logs.
func (w *Writer) Name() string { return "csv" }

// WriteRecord appends one row.
func (w *Writer) WriteRecord(_ context.Context, rec daq.AggregateRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errors.New("csv sink: closed")
	}

	if !w.wroteHeader {
		w.header = headerRow(rec)
		if err := w.w.Write(w.header); err != nil {
			return err
		}
		w.wroteHeader = true
		w.verified = true
	} else if !w.verified {
		if !equalHeader(w.header, headerRow(rec)) {
			return fmt.Errorf("csv sink: session file header %v does not match configured devices", w.header)
		}
		w.verified = true
	}

	row := make([]string, 0, 1+len(rec.Entries)*2)
	row = append(row, rec.TS.Format(timeLayout))
	for _, entry := range rec.Entries {
		for j := range entry.Channels {
			row = append(row, formatValue(entry, j))
		}
		row = append(row, entry.Status)
	}
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the session file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	w.w.Flush()
	err := w.file.Close()
	w.file = nil
	return err
}

func equalHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func headerRow(rec daq.AggregateRecord) []string {
	header := make([]string, 0, 1+len(rec.Entries)*2)
	header = append(header, "time")
	for _, entry := range rec.Entries {
		for _, ch := range entry.Channels {
			header = append(header, entry.Device+"/"+ch)
		}
		header = append(header, entry.Device+"_status")
	}
	return header
}

// formatValue renders one channel cell. No-data entries and NaN channels
// are left empty rather than written as a numeric placeholder.
func formatValue(entry daq.DeviceEntry, j int) string {
	if entry.Status == daq.StatusNoData || j >= len(entry.Values) {
		return ""
	}
	v := entry.Values[j]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var _ interface {
	daq.RecordWriter
	Close() error
} = (*Writer)(nil)

// ParseTime parses a timestamp cell written by this sink.
func ParseTime(cell string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, cell, time.Local)
}
