// Package drivers holds the closed set of device driver variants behind the
// domain Device interface. Variants are selected by name at construction
// time from configuration; there is no runtime type inspection.
package drivers

import (
	"fmt"
	"log"
	"strings"

	"github.com/TV-RI/ThermalDAQ/internal/config"
	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

// New constructs the driver variant selected by cfg.Driver. An unknown
// driver name is a configuration error and must abort startup.
func New(cfg config.DeviceConfig, logger *log.Logger) (daq.Device, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sim":
		return NewSimDevice(cfg)
	case "hwmon":
		return NewHwmonDevice(cfg)
	case "fluxdaq", "compaq":
		return NewFluxDAQ(cfg, logger)
	case "smtc":
		return NewSMTCDevice(cfg, logger)
	default:
		return nil, fmt.Errorf("device %q: driver %q: %w", cfg.Name, cfg.Driver, daq.ErrUnknownDriver)
	}
}
