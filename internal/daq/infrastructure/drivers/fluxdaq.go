package drivers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/TV-RI/ThermalDAQ/internal/config"
	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

const (
	fluxMaxSlots      = 4
	fluxPrecheckSteps = 5

	// fluxReadWindow bounds each port read so a poll re-checks its context
	// deadline at this cadence on a silent board. A timed-out serial read
	// returns (0, nil), never an error.
	fluxReadWindow = 200 * time.Millisecond
)

// FluxDAQ drives the FluxDAQ+/COMPAQ heat-flux acquisition boards. The
// board streams one comma-separated line per sample with two fields per
// sensor slot (flux in W/m^2, temperature in C); sensitivity values are
// written into the board during the handshake, so fields parse directly.
type FluxDAQ struct {
	name     string
	channels []string
	interval time.Duration

	// indexes maps each configured channel to its field position in the
	// streamed frame: slot s occupies fields 2(s-1) (flux) and 2(s-1)+1
	// (temperature).
	indexes      []int
	expectFields int

	port   serial.Port
	reader *lineReader
	logger *log.Logger
}

// lineReader assembles complete lines from short bounded reads. Pending
// bytes past the last complete line carry over, since the board's stream
// is continuous and a frame may straddle two reads.
type lineReader struct {
	read    func(p []byte) (int, error)
	pending []byte
}

// ReadLine accumulates reads until a full line is buffered or the context
// expires. Each underlying read must be short (the port read timeout), so
// the deadline is observed within one read window even on a silent board.
func (r *lineReader) ReadLine(ctx context.Context) (string, error) {
	var chunk [256]byte
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line := string(r.pending[:i+1])
			r.pending = append(r.pending[:0], r.pending[i+1:]...)
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.read(chunk[:])
		if n > 0 {
			r.pending = append(r.pending, chunk[:n]...)
		}
		if err != nil {
			return "", err
		}
	}
}

// NewFluxDAQ opens the serial port and runs the board handshake: mode
// select (FluxDAQ+ only), reported slot count, then one sensitivity value
// per slot ("inf" for slots without a flux sensor).
func NewFluxDAQ(cfg config.DeviceConfig, logger *log.Logger) (*FluxDAQ, error) {
	channels, indexes, reportSlots, err := fluxLayout(cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("fluxdaq %s: %w", cfg.Name, err)
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("fluxdaq %s: open %s: %w", cfg.Name, cfg.Port, err)
	}

	d := &FluxDAQ{
		name:         cfg.Name,
		channels:     channels,
		interval:     cfg.SamplingInterval.Std(),
		indexes:      indexes,
		expectFields: 2 * reportSlots,
		port:         port,
		reader:       &lineReader{read: port.Read},
		logger:       logger,
	}

	if err := d.handshake(cfg, reportSlots); err != nil {
		port.Close()
		return nil, err
	}
	if err := port.SetReadTimeout(fluxReadWindow); err != nil {
		port.Close()
		return nil, fmt.Errorf("fluxdaq %s: set read timeout: %w", cfg.Name, err)
	}
	return d, nil
}

// fluxLayout validates slots and maps each configured channel to its frame
// field. The board reports up to the highest configured slot.
func fluxLayout(channels []config.ChannelConfig) ([]string, []int, int, error) {
	if len(channels) == 0 {
		return nil, nil, 0, fmt.Errorf("no channels")
	}
	names := make([]string, 0, len(channels))
	indexes := make([]int, 0, len(channels))
	reportSlots := 0
	for _, ch := range channels {
		if ch.ID < 1 || ch.ID > fluxMaxSlots {
			return nil, nil, 0, fmt.Errorf("channel %q: slot %d out of range 1-%d", ch.Name, ch.ID, fluxMaxSlots)
		}
		idx := 2 * (ch.ID - 1)
		if !ch.Flux {
			idx++
		}
		names = append(names, ch.Name)
		indexes = append(indexes, idx)
		if ch.ID > reportSlots {
			reportSlots = ch.ID
		}
	}
	return names, indexes, reportSlots, nil
}

func (d *FluxDAQ) handshake(cfg config.DeviceConfig, reportSlots int) error {
	// Sensitivity per slot; slots without a flux sensor get "inf" so the
	// board leaves the field unconverted.
	svalues := make([]string, reportSlots)
	for i := range svalues {
		svalues[i] = "inf"
	}
	for _, ch := range cfg.Channels {
		if ch.Flux {
			svalues[ch.ID-1] = strconv.FormatFloat(ch.SValue, 'g', -1, 64)
		}
	}

	if strings.EqualFold(cfg.Variant, "fluxdaq+") {
		if _, err := d.port.Write([]byte("1")); err != nil {
			return fmt.Errorf("fluxdaq %s: mode select: %w", d.name, err)
		}
		time.Sleep(time.Second)
	}
	time.Sleep(2 * time.Second)

	if _, err := d.port.Write([]byte(strconv.Itoa(reportSlots))); err != nil {
		return fmt.Errorf("fluxdaq %s: slot count: %w", d.name, err)
	}
	time.Sleep(2 * time.Second)

	d.logger.Printf("fluxdaq handshake device=%s slots=%d svalues=%v", d.name, reportSlots, svalues)
	for _, s := range svalues {
		if _, err := d.port.Write([]byte(s)); err != nil {
			return fmt.Errorf("fluxdaq %s: sensitivity: %w", d.name, err)
		}
		time.Sleep(time.Second)
	}
	return nil
}

func (d *FluxDAQ) Name() string                    { return d.name }
func (d *FluxDAQ) Channels() []string              { return d.channels }
func (d *FluxDAQ) SamplingInterval() time.Duration { return d.interval }

// Close releases the serial port.
func (d *FluxDAQ) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// Precheck reads a handful of frames and requires at least 80% of them to
// parse, matching the board's warm-up behavior. Each step waits at most
// two sampling intervals for its frame.
func (d *FluxDAQ) Precheck(ctx context.Context) error {
	parsed := 0
	for i := 0; i < fluxPrecheckSteps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stepCtx, cancel := context.WithTimeout(ctx, 2*d.interval)
		line, err := d.reader.ReadLine(stepCtx)
		cancel()
		if err != nil {
			continue
		}
		if _, err := parseFluxFrame(line, d.expectFields, d.indexes); err == nil {
			parsed++
		}
	}
	if parsed*5 < fluxPrecheckSteps*4 {
		return fmt.Errorf("fluxdaq %s: not responding (%d/%d frames parsed)", d.name, parsed, fluxPrecheckSteps)
	}
	return nil
}

// Poll reads the next streamed frame, bounded by the caller's context
// deadline.
func (d *FluxDAQ) Poll(ctx context.Context) (daq.Reading, error) {
	if d.port == nil {
		return daq.Reading{}, daq.ErrDeviceClosed
	}
	line, err := d.reader.ReadLine(ctx)
	if err != nil {
		return daq.Reading{}, fmt.Errorf("fluxdaq %s: read: %w", d.name, err)
	}
	values, err := parseFluxFrame(line, d.expectFields, d.indexes)
	if err != nil {
		return daq.Reading{}, fmt.Errorf("fluxdaq %s: %w", d.name, err)
	}
	return daq.Reading{TS: time.Now(), Values: values}, nil
}

// parseFluxFrame extracts the configured channels from one streamed line.
// An unparsable field becomes NaN; a frame with the wrong field count is
// rejected outright.
func parseFluxFrame(line string, expectFields int, indexes []int) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != expectFields {
		return nil, fmt.Errorf("got %d fields, want %d: %w", len(fields), expectFields, daq.ErrBadFrame)
	}
	values := make([]float64, len(indexes))
	for k, idx := range indexes {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
		if err != nil {
			values[k] = math.NaN()
			continue
		}
		values[k] = v
	}
	return values, nil
}
