package daq

import (
	"sync"
	"time"
)

// SampleBuffer accumulates readings from one device between write ticks.
// It is shared by exactly two collaborators: the device's read loop, which
// appends, and the aggregator, which drains. Both operations are short
// critical sections; the lock is never held across I/O.
type SampleBuffer struct {
	mu       sync.Mutex
	readings []Reading
}

// NewSampleBuffer constructs an empty buffer.
func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{}
}

// Append adds a reading. Readings arrive in poll order, so timestamps are
// monotonic within one buffer.
func (b *SampleBuffer) Append(r Reading) {
	b.mu.Lock()
	b.readings = append(b.readings, r)
	b.mu.Unlock()
}

// DrainBefore atomically removes and returns, in append order, every
// buffered reading with a timestamp before t. Readings at or after t stay
// for the next drain. A reading is never returned twice, and an empty
// buffer drains to nil.
func (b *SampleBuffer) DrainBefore(t time.Time) []Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for n < len(b.readings) && b.readings[n].TS.Before(t) {
		n++
	}
	if n == 0 {
		return nil
	}
	drained := b.readings[:n:n]
	b.readings = append([]Reading(nil), b.readings[n:]...)
	return drained
}

// Len reports the number of buffered readings.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readings)
}
