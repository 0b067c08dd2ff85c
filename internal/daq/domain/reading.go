package daq

import (
	"context"
	"time"
)

// Reading is the result of one poll of one device: a timestamp plus one
// value per configured channel. Channels that failed to parse carry NaN.
type Reading struct {
	TS     time.Time
	Values []float64
}

// Device is the capability contract every driver variant implements.
// Drivers are selected at construction time from configuration.
type Device interface {
	// Name is the configured device identifier, unique per process.
	Name() string
	// Channels lists the channel names in reading order (e.g. "q1", "T1").
	Channels() []string
	// SamplingInterval is the period of this device's read loop.
	SamplingInterval() time.Duration
	// Precheck verifies the device is reachable. Failures are startup-fatal.
	Precheck(ctx context.Context) error
	// Poll performs one bounded-time read. The returned reading has exactly
	// len(Channels()) values.
	Poll(ctx context.Context) (Reading, error)
	// Close releases the device handle.
	Close() error
}
