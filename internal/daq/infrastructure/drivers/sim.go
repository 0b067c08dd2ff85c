package drivers

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/TV-RI/ThermalDAQ/internal/config"
	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

// SimDevice produces synthetic readings: a slow sine per channel plus a
// little seeded noise. It stands in for hardware in tests and dry runs.
type SimDevice struct {
	name     string
	channels []string
	interval time.Duration

	mu   sync.Mutex
	rng  *rand.Rand
	step int
}

// NewSimDevice constructs a simulator from configuration.
func NewSimDevice(cfg config.DeviceConfig) (*SimDevice, error) {
	if len(cfg.Channels) == 0 {
		return nil, errors.New("sim driver: no channels")
	}
	channels := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, ch.Name)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &SimDevice{
		name:     cfg.Name,
		channels: channels,
		interval: cfg.SamplingInterval.Std(),
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

func (d *SimDevice) Name() string                    { return d.name }
func (d *SimDevice) Channels() []string              { return d.channels }
func (d *SimDevice) SamplingInterval() time.Duration { return d.interval }
func (d *SimDevice) Precheck(context.Context) error  { return nil }
func (d *SimDevice) Close() error                    { return nil }

// Poll returns one synthetic reading per channel.
func (d *SimDevice) Poll(_ context.Context) (daq.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	values := make([]float64, len(d.channels))
	for j := range values {
		phase := float64(j) * math.Pi / 4
		values[j] = 20 + 5*math.Sin(2*math.Pi*float64(d.step)/60+phase) + d.rng.Float64()*0.2
	}
	d.step++
	return daq.Reading{TS: time.Now(), Values: values}, nil
}
