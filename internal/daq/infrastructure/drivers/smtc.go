package drivers

import (
	"context"
	"fmt"
	"log"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/TV-RI/ThermalDAQ/internal/config"
	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

// Thermocouple type codes accepted by the smtc tool.
var smtcTypeCodes = map[string]int{
	"B": 0, "E": 1, "J": 2, "K": 3, "N": 4, "R": 5, "S": 6, "T": 7,
}

type smtcChannel struct {
	id    int
	name  string
	cmd   string
	coeff float64
}

// SMTCDevice reads Sequent Microsystems thermocouple HATs through the
// vendor's smtc command-line tool. Temperature channels use `read`; flux
// channels use `readmv` and convert millivolts through the sensor
// sensitivity (1000/s_value).
type SMTCDevice struct {
	name     string
	stack    string
	channels []smtcChannel
	names    []string
	interval time.Duration
	logger   *log.Logger
}

// NewSMTCDevice verifies the smtc tool and the stack address, then writes
// each channel's thermocouple type.
func NewSMTCDevice(cfg config.DeviceConfig, logger *log.Logger) (*SMTCDevice, error) {
	if _, err := exec.LookPath("smtc"); err != nil {
		return nil, fmt.Errorf("smtc %s: tool not found in PATH: %w", cfg.Name, err)
	}
	if cfg.Stack < 0 || cfg.Stack > 7 {
		return nil, fmt.Errorf("smtc %s: stack %d out of range 0-7", cfg.Name, cfg.Stack)
	}

	d := &SMTCDevice{
		name:     cfg.Name,
		stack:    strconv.Itoa(cfg.Stack),
		interval: cfg.SamplingInterval.Std(),
		logger:   logger,
	}
	for _, ch := range cfg.Channels {
		if ch.ID < 1 || ch.ID > 8 {
			return nil, fmt.Errorf("smtc %s: channel %q: input %d out of range 1-8", cfg.Name, ch.Name, ch.ID)
		}
		tcType := ch.Type
		if tcType == "" {
			tcType = "K"
		}
		code, ok := smtcTypeCodes[strings.ToUpper(tcType)]
		if !ok {
			return nil, fmt.Errorf("smtc %s: channel %q: unknown thermocouple type %q", cfg.Name, ch.Name, tcType)
		}

		sc := smtcChannel{id: ch.ID, name: ch.Name, cmd: "read", coeff: 1}
		if ch.Flux {
			sc.cmd = "readmv"
			sc.coeff = 1000 / ch.SValue
		}
		d.channels = append(d.channels, sc)
		d.names = append(d.names, ch.Name)

		out, err := exec.Command("smtc", d.stack, "stypewr", strconv.Itoa(ch.ID), strconv.Itoa(code)).CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("smtc %s: set type for input %d: %v (%s)", cfg.Name, ch.ID, err, strings.TrimSpace(string(out)))
		}
	}
	if len(d.channels) == 0 {
		return nil, fmt.Errorf("smtc %s: no channels", cfg.Name)
	}

	if err := d.checkStackPresent(); err != nil {
		return nil, err
	}
	return d, nil
}

// checkStackPresent parses `smtc -list` for the configured stack address.
func (d *SMTCDevice) checkStackPresent() error {
	out, err := exec.Command("smtc", "-list").Output()
	if err != nil {
		return fmt.Errorf("smtc %s: list stacks: %w", d.name, err)
	}
	if !smtcListHasStack(string(out), d.stack) {
		return fmt.Errorf("smtc %s: stack %s not detected", d.name, d.stack)
	}
	return nil
}

// smtcListHasStack reports whether the `smtc -list` output names the stack.
// The tool prints the detected stack addresses on its second line.
func smtcListHasStack(out, stack string) bool {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return false
	}
	for _, field := range strings.Fields(lines[1]) {
		if field == stack {
			return true
		}
	}
	return false
}

func (d *SMTCDevice) Name() string                    { return d.name }
func (d *SMTCDevice) Channels() []string              { return d.names }
func (d *SMTCDevice) SamplingInterval() time.Duration { return d.interval }
func (d *SMTCDevice) Close() error                    { return nil }

// Precheck reads the raw voltage on every channel; 0 mV usually means an
// open circuit, which is logged but not fatal (the channel may warm up).
func (d *SMTCDevice) Precheck(ctx context.Context) error {
	for _, ch := range d.channels {
		out, err := exec.CommandContext(ctx, "smtc", d.stack, "readmv", strconv.Itoa(ch.id)).Output()
		if err != nil {
			return fmt.Errorf("smtc %s: precheck input %d: %w", d.name, ch.id, err)
		}
		mv, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil {
			return fmt.Errorf("smtc %s: precheck input %d: parse %q: %w", d.name, ch.id, strings.TrimSpace(string(out)), err)
		}
		if mv == 0 {
			d.logger.Printf("smtc precheck: 0 mV device=%s input=%d channel=%s (possible open circuit)", d.name, ch.id, ch.name)
		}
	}
	return nil
}

// Poll runs one read command per channel. A failed channel becomes NaN;
// the poll fails only when every channel failed.
func (d *SMTCDevice) Poll(ctx context.Context) (daq.Reading, error) {
	values := make([]float64, len(d.channels))
	readable := 0
	for i, ch := range d.channels {
		out, err := exec.CommandContext(ctx, "smtc", d.stack, ch.cmd, strconv.Itoa(ch.id)).Output()
		if err != nil {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = v * ch.coeff
		readable++
	}
	if readable == 0 {
		return daq.Reading{}, fmt.Errorf("smtc %s: no channel readable: %w", d.name, daq.ErrBadFrame)
	}
	return daq.Reading{TS: time.Now(), Values: values}, nil
}
