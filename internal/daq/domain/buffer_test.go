package daq

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestDrainBeforeEmpty(t *testing.T) {
	b := NewSampleBuffer()
	if got := b.DrainBefore(time.Now()); got != nil {
		t.Fatalf("expected nil drain from empty buffer, got %v", got)
	}
}

func TestDrainBeforeBoundary(t *testing.T) {
	b := NewSampleBuffer()
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b.Append(Reading{TS: base.Add(time.Duration(i) * time.Second), Values: []float64{float64(i)}})
	}

	drained := b.DrainBefore(base.Add(3 * time.Second))
	if len(drained) != 3 {
		t.Fatalf("expected 3 readings before boundary, got %d", len(drained))
	}
	for i, r := range drained {
		if r.Values[0] != float64(i) {
			t.Fatalf("expected reading %d in append order, got %v", i, r.Values[0])
		}
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 readings retained, got %d", b.Len())
	}

	// The reading exactly at the boundary belongs to the next window.
	rest := b.DrainBefore(base.Add(time.Minute))
	if len(rest) != 2 || rest[0].Values[0] != 3 {
		t.Fatalf("expected retained readings [3 4], got %v", rest)
	}
}

func TestBufferConservationUnderConcurrentDrains(t *testing.T) {
	const total = 1000
	b := NewSampleBuffer()
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Append(Reading{TS: base.Add(time.Duration(i) * time.Millisecond), Values: []float64{float64(i)}})
		}
	}()

	var drains [][]Reading
	for i := 0; i < 10; i++ {
		drains = append(drains, b.DrainBefore(base.Add(time.Hour)))
	}
	wg.Wait()
	drains = append(drains, b.DrainBefore(base.Add(time.Hour)))

	// The concatenation of all drains must be exactly the appended sequence:
	// no loss, no duplication, per-device order preserved.
	next := 0.0
	for _, drained := range drains {
		for _, r := range drained {
			if r.Values[0] != next {
				t.Fatalf("expected reading %v next, got %v", next, r.Values[0])
			}
			next++
		}
	}
	if next != total {
		t.Fatalf("expected %d readings across all drains, got %v", total, next)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after final drain, got %d", b.Len())
	}
}

func TestReadingCarriesNaNChannels(t *testing.T) {
	r := Reading{TS: time.Now(), Values: []float64{21.5, math.NaN()}}
	if !math.IsNaN(r.Values[1]) {
		t.Fatalf("expected NaN channel to survive, got %v", r.Values[1])
	}
}
