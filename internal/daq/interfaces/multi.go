// Package interfaces holds the outward-facing record surfaces: the fan-out
// that feeds every configured sink and the per-tick console line.
package interfaces

import (
	"context"
	"errors"
	"time"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
	"github.com/TV-RI/ThermalDAQ/internal/observability/metrics"
)

// MultiWriter fans one aggregate record out to every configured sink.
// Sinks fail independently; a failing sink never keeps the others from
// receiving the record.
type MultiWriter struct {
	writers []daq.RecordWriter
}

// NewMultiWriter builds a fan-out over the given sinks. Nil entries are
// skipped so callers can pass optionally-configured sinks directly.
func NewMultiWriter(writers ...daq.RecordWriter) *MultiWriter {
	kept := make([]daq.RecordWriter, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			kept = append(kept, w)
		}
	}
	return &MultiWriter{writers: kept}
}

// Len reports the number of active sinks.
func (m *MultiWriter) Len() int { return len(m.writers) }

// WriteRecord delivers the record to each sink in order and joins any
// errors so the caller sees every failure, not just the first.
func (m *MultiWriter) WriteRecord(ctx context.Context, rec daq.AggregateRecord) error {
	var errs []error
	for _, w := range m.writers {
		start := time.Now()
		err := w.WriteRecord(ctx, rec)
		metrics.ObserveWrite(sinkName(w), time.Since(start), err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that supports closing and joins the errors.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func sinkName(w daq.RecordWriter) string {
	if n, ok := w.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "sink"
}
