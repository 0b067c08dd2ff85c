package daq

import (
	"context"
	"time"
)

// Entry status values written alongside every device's averaged values.
const (
	StatusFresh  = "fresh"
	StatusStale  = "stale"
	StatusNoData = "no_data"
)

// DeviceEntry is one device's slot in an aggregate record.
type DeviceEntry struct {
	Device   string
	Channels []string
	// Values holds one averaged value per channel. Empty when Status is
	// StatusNoData.
	Values []float64
	Status string
}

// AggregateRecord is one row of output: the write-tick timestamp plus one
// entry per configured device, in configuration order.
type AggregateRecord struct {
	TS      time.Time
	Entries []DeviceEntry
}

// RecordWriter persists aggregate records. Implementations must not retry a
// failed tick; the next tick proceeds independently.
type RecordWriter interface {
	WriteRecord(ctx context.Context, rec AggregateRecord) error
}
