package csvlog

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

func sampleRecord(ts time.Time) daq.AggregateRecord {
	return daq.AggregateRecord{
		TS: ts,
		Entries: []daq.DeviceEntry{
			{
				Device:   "plate",
				Channels: []string{"q1", "T1"},
				Values:   []float64{12.5, 24.1},
				Status:   daq.StatusFresh,
			},
			{
				Device:   "ambient",
				Channels: []string{"T"},
				Status:   daq.StatusNoData,
			},
		},
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestWriterHeaderAndRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	w, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ts := time.Date(2026, 3, 14, 12, 0, 10, 0, time.Local)
	if err := w.WriteRecord(context.Background(), sampleRecord(ts)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows := readAll(t, path)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	wantHeader := []string{"time", "plate/q1", "plate/T1", "plate_status", "ambient/T", "ambient_status"}
	for i := range wantHeader {
		if rows[0][i] != wantHeader[i] {
			t.Fatalf("expected header %v, got %v", wantHeader, rows[0])
		}
	}
	if rows[1][0] != "2026-03-14 12:00:10" {
		t.Fatalf("unexpected timestamp cell %q", rows[1][0])
	}
	if rows[1][1] != "12.5" || rows[1][3] != daq.StatusFresh {
		t.Fatalf("unexpected plate cells %v", rows[1])
	}
	if rows[1][4] != "" || rows[1][5] != daq.StatusNoData {
		t.Fatalf("expected empty value and no_data status, got %v", rows[1])
	}
}

func TestWriterAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	ts := time.Date(2026, 3, 14, 12, 0, 10, 0, time.Local)

	w, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.WriteRecord(context.Background(), sampleRecord(ts)); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	// Reopening the same file must not repeat the header.
	w, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w.WriteRecord(context.Background(), sampleRecord(ts.Add(10*time.Second))); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	rows := readAll(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[2][0] != "2026-03-14 12:00:20" {
		t.Fatalf("unexpected second row timestamp %q", rows[2][0])
	}
}

func TestWriterRejectsChangedColumnsOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	ts := time.Date(2026, 3, 14, 12, 0, 10, 0, time.Local)

	w, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.WriteRecord(context.Background(), sampleRecord(ts)); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	w, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()

	changed := sampleRecord(ts.Add(10 * time.Second))
	changed.Entries[0].Channels = []string{"q1"}
	changed.Entries[0].Values = []float64{12.5}
	if err := w.WriteRecord(context.Background(), changed); err == nil {
		t.Fatal("expected error appending a record with a different column set")
	}

	// The original shape still appends.
	if err := w.WriteRecord(context.Background(), sampleRecord(ts.Add(20*time.Second))); err != nil {
		t.Fatalf("write matching record: %v", err)
	}

	rows := readAll(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
}

func TestWriterNaNChannelIsEmptyCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.csv")
	w, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec := sampleRecord(time.Now())
	rec.Entries[0].Values[1] = math.NaN()
	if err := w.WriteRecord(context.Background(), rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	rows := readAll(t, path)
	if rows[1][2] != "" {
		t.Fatalf("expected empty cell for NaN channel, got %q", rows[1][2])
	}
}

func TestWriterClosedRejectsWrites(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "session.csv"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w.Close()
	if err := w.WriteRecord(context.Background(), sampleRecord(time.Now())); err == nil {
		t.Fatal("expected error writing to closed sink")
	}
}
