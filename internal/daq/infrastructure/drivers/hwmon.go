package drivers

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TV-RI/ThermalDAQ/internal/config"
	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

// HwmonDevice reads Linux hwmon temperature inputs (sysfs files holding
// millidegrees Celsius), one file per channel.
type HwmonDevice struct {
	name     string
	channels []string
	paths    []string
	interval time.Duration
}

// NewHwmonDevice constructs an hwmon device from configuration. Every
// channel needs a sysfs path such as
// /sys/class/hwmon/hwmon2/temp1_input.
func NewHwmonDevice(cfg config.DeviceConfig) (*HwmonDevice, error) {
	channels := make([]string, 0, len(cfg.Channels))
	paths := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.Path == "" {
			return nil, fmt.Errorf("hwmon driver: channel %q: path is required", ch.Name)
		}
		channels = append(channels, ch.Name)
		paths = append(paths, ch.Path)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("hwmon driver: no channels")
	}
	return &HwmonDevice{
		name:     cfg.Name,
		channels: channels,
		paths:    paths,
		interval: cfg.SamplingInterval.Std(),
	}, nil
}

func (d *HwmonDevice) Name() string                    { return d.name }
func (d *HwmonDevice) Channels() []string              { return d.channels }
func (d *HwmonDevice) SamplingInterval() time.Duration { return d.interval }
func (d *HwmonDevice) Close() error                    { return nil }

// Precheck verifies every channel file is readable.
func (d *HwmonDevice) Precheck(_ context.Context) error {
	for i, path := range d.paths {
		if _, err := readMilliCelsius(path); err != nil {
			return fmt.Errorf("hwmon %s: channel %q: %w", d.name, d.channels[i], err)
		}
	}
	return nil
}

// Poll reads every channel file. A single unreadable channel becomes NaN;
// the poll fails only when no channel could be read.
func (d *HwmonDevice) Poll(_ context.Context) (daq.Reading, error) {
	values := make([]float64, len(d.paths))
	readable := 0
	for i, path := range d.paths {
		v, err := readMilliCelsius(path)
		if err != nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = v
		readable++
	}
	if readable == 0 {
		return daq.Reading{}, fmt.Errorf("hwmon %s: no channel readable: %w", d.name, daq.ErrBadFrame)
	}
	return daq.Reading{TS: time.Now(), Values: values}, nil
}

func readMilliCelsius(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", path, err)
	}
	return milli / 1000.0, nil
}
