package application

import (
	"errors"
	"log"
	"math"
	"time"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
	"github.com/TV-RI/ThermalDAQ/internal/observability/metrics"
)

type deviceState struct {
	device    daq.Device
	buffer    *daq.SampleBuffer
	lastKnown []float64
	hasLast   bool
}

// Aggregator owns one sample buffer and one last-known cell per configured
// device. At each write tick it drains every buffer and resolves each
// device's entry to fresh, stale, or no-data.
type Aggregator struct {
	states []*deviceState
	logger *log.Logger
}

// NewAggregator constructs an aggregator over the configured devices.
// Buffer indexes are aligned with the device slice.
func NewAggregator(devices []daq.Device, logger *log.Logger) (*Aggregator, error) {
	if len(devices) == 0 {
		return nil, errors.New("aggregator: no devices")
	}
	if logger == nil {
		return nil, errors.New("aggregator: nil logger")
	}
	states := make([]*deviceState, 0, len(devices))
	for _, d := range devices {
		states = append(states, &deviceState{device: d, buffer: daq.NewSampleBuffer()})
	}
	return &Aggregator{states: states, logger: logger}, nil
}

// Buffer returns the sample buffer for device i, for the device's read loop.
func (a *Aggregator) Buffer(i int) *daq.SampleBuffer {
	return a.states[i].buffer
}

// Len reports the number of devices under aggregation.
func (a *Aggregator) Len() int {
	return len(a.states)
}

// Collect drains every device's buffer up to the tick boundary and builds
// one aggregate record with entries in configuration order. A device whose
// window is non-empty gets the component-wise mean and a fresh status, and
// its last-known vector is updated from that mean; an empty window falls
// back to the last-known vector marked stale, or no-data when the device
// has never produced a completed average.
func (a *Aggregator) Collect(tick time.Time) daq.AggregateRecord {
	rec := daq.AggregateRecord{TS: tick, Entries: make([]daq.DeviceEntry, 0, len(a.states))}
	for _, st := range a.states {
		drained := st.buffer.DrainBefore(tick)
		metrics.ObserveDrain(st.device.Name(), len(drained))

		entry := daq.DeviceEntry{Device: st.device.Name(), Channels: st.device.Channels()}
		switch {
		case len(drained) > 0:
			mean := meanVectors(drained, len(entry.Channels))
			if st.hasLast {
				// A channel with no usable sample in the window keeps its
				// last completed average.
				for j := range mean {
					if math.IsNaN(mean[j]) {
						mean[j] = st.lastKnown[j]
					}
				}
			}
			entry.Values = mean
			entry.Status = daq.StatusFresh
			st.lastKnown = append([]float64(nil), mean...)
			st.hasLast = true
		case st.hasLast:
			entry.Values = append([]float64(nil), st.lastKnown...)
			entry.Status = daq.StatusStale
			a.logger.Printf("aggregate: using last known values device=%s tick=%s",
				st.device.Name(), tick.Format(time.RFC3339))
		default:
			entry.Status = daq.StatusNoData
		}
		metrics.SetStale(st.device.Name(), entry.Status != daq.StatusFresh)
		rec.Entries = append(rec.Entries, entry)
	}
	return rec
}

// meanVectors computes the component-wise arithmetic mean over the window,
// skipping NaN samples per channel. A channel with no usable sample at all
// yields NaN, resolved by the caller.
func meanVectors(readings []daq.Reading, channels int) []float64 {
	sums := make([]float64, channels)
	counts := make([]int, channels)
	for _, r := range readings {
		for j := 0; j < channels && j < len(r.Values); j++ {
			v := r.Values[j]
			if math.IsNaN(v) {
				continue
			}
			sums[j] += v
			counts[j]++
		}
	}
	mean := make([]float64, channels)
	for j := range mean {
		if counts[j] == 0 {
			mean[j] = math.NaN()
			continue
		}
		mean[j] = sums[j] / float64(counts[j])
	}
	return mean
}
