package drivers

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TV-RI/ThermalDAQ/internal/config"
	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
)

func simConfig(name string, seed int64) config.DeviceConfig {
	return config.DeviceConfig{
		Name:             name,
		Driver:           "sim",
		SamplingInterval: config.Duration(time.Second),
		Seed:             seed,
		Channels: []config.ChannelConfig{
			{Name: "T1"},
			{Name: "T2"},
		},
	}
}

func TestFactoryUnknownDriver(t *testing.T) {
	cfg := simConfig("x", 1)
	cfg.Driver = "frobnicator"
	_, err := New(cfg, log.New(io.Discard, "", 0))
	if !errors.Is(err, daq.ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestFactorySelectsSim(t *testing.T) {
	dev, err := New(simConfig("bench", 1), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if dev.Name() != "bench" {
		t.Fatalf("expected device name bench, got %q", dev.Name())
	}
	if got := dev.Channels(); len(got) != 2 || got[0] != "T1" {
		t.Fatalf("expected channels [T1 T2], got %v", got)
	}
}

func TestSimDeterministicWithSeed(t *testing.T) {
	a, err := NewSimDevice(simConfig("a", 7))
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	b, err := NewSimDevice(simConfig("b", 7))
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	for i := 0; i < 5; i++ {
		ra, err := a.Poll(context.Background())
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		rb, err := b.Poll(context.Background())
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		for j := range ra.Values {
			if ra.Values[j] != rb.Values[j] {
				t.Fatalf("expected identical sequences for equal seeds, got %v vs %v", ra.Values, rb.Values)
			}
		}
	}
}

func TestHwmonPoll(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "temp1_input")
	if err := os.WriteFile(cpu, []byte("48250\n"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	missing := filepath.Join(dir, "temp2_input")

	dev, err := NewHwmonDevice(config.DeviceConfig{
		Name:             "host",
		Driver:           "hwmon",
		SamplingInterval: config.Duration(time.Second),
		Channels: []config.ChannelConfig{
			{Name: "cpu", Path: cpu},
			{Name: "gone", Path: missing},
		},
	})
	if err != nil {
		t.Fatalf("new hwmon: %v", err)
	}

	r, err := dev.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if r.Values[0] != 48.25 {
		t.Fatalf("expected 48.25 C, got %v", r.Values[0])
	}
	if !math.IsNaN(r.Values[1]) {
		t.Fatalf("expected NaN for unreadable channel, got %v", r.Values[1])
	}
}

func TestHwmonPollAllUnreadable(t *testing.T) {
	dev, err := NewHwmonDevice(config.DeviceConfig{
		Name:             "host",
		SamplingInterval: config.Duration(time.Second),
		Channels: []config.ChannelConfig{
			{Name: "gone", Path: filepath.Join(t.TempDir(), "missing")},
		},
	})
	if err != nil {
		t.Fatalf("new hwmon: %v", err)
	}
	if _, err := dev.Poll(context.Background()); !errors.Is(err, daq.ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame when nothing is readable, got %v", err)
	}
}

func TestHwmonPrecheckFailsOnMissingPath(t *testing.T) {
	dev, err := NewHwmonDevice(config.DeviceConfig{
		Name:             "host",
		SamplingInterval: config.Duration(time.Second),
		Channels: []config.ChannelConfig{
			{Name: "gone", Path: filepath.Join(t.TempDir(), "missing")},
		},
	})
	if err != nil {
		t.Fatalf("new hwmon: %v", err)
	}
	if err := dev.Precheck(context.Background()); err == nil {
		t.Fatal("expected precheck error for missing path")
	}
}

func TestParseFluxFrame(t *testing.T) {
	// Slots 1 and 2 reported: fields are q1,T1,q2,T2. Configured channels
	// are q1 (field 0), T1 (field 1), and T2 (field 3).
	indexes := []int{0, 1, 3}

	values, err := parseFluxFrame("12.5, 24.1, 0.0, 23.9\r\n", 4, indexes)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []float64{12.5, 24.1, 23.9}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, values)
		}
	}
}

func TestParseFluxFrameBadFieldCount(t *testing.T) {
	if _, err := parseFluxFrame("1,2,3\n", 4, []int{0}); !errors.Is(err, daq.ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame, got %v", err)
	}
}

func TestParseFluxFrameUnparsableFieldIsNaN(t *testing.T) {
	values, err := parseFluxFrame("garbage, 24.1\n", 2, []int{0, 1})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !math.IsNaN(values[0]) || values[1] != 24.1 {
		t.Fatalf("expected [NaN 24.1], got %v", values)
	}
}

func TestFluxLayout(t *testing.T) {
	names, indexes, slots, err := fluxLayout([]config.ChannelConfig{
		{ID: 1, Name: "q1", Flux: true, SValue: 18.97},
		{ID: 1, Name: "T1"},
		{ID: 3, Name: "T3"},
	})
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if slots != 3 {
		t.Fatalf("expected 3 reported slots, got %d", slots)
	}
	wantIdx := []int{0, 1, 5}
	for i := range wantIdx {
		if indexes[i] != wantIdx[i] {
			t.Fatalf("expected indexes %v, got %v", wantIdx, indexes)
		}
	}
	if names[2] != "T3" {
		t.Fatalf("expected channel order preserved, got %v", names)
	}
}

func TestFluxLayoutRejectsBadSlot(t *testing.T) {
	_, _, _, err := fluxLayout([]config.ChannelConfig{{ID: 5, Name: "T5"}})
	if err == nil {
		t.Fatal("expected error for slot out of range")
	}
}

func TestLineReaderHonorsDeadlineOnSilentPort(t *testing.T) {
	// A timed-out serial read reports (0, nil). The reader must give up at
	// the context deadline instead of retrying until data arrives.
	r := &lineReader{read: func(p []byte) (int, error) {
		time.Sleep(time.Millisecond)
		return 0, nil
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := r.ReadLine(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("read gave up after %v, expected about the 50ms deadline", elapsed)
	}
}

func TestLineReaderReassemblesSplitFrames(t *testing.T) {
	chunks := []string{"12.5, 2", "4.1\n0.0, 2", "3.9\n"}
	r := &lineReader{read: func(p []byte) (int, error) {
		if len(chunks) == 0 {
			return 0, nil
		}
		n := copy(p, chunks[0])
		chunks = chunks[1:]
		return n, nil
	}}

	first, err := r.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if first != "12.5, 24.1\n" {
		t.Fatalf("unexpected first line %q", first)
	}
	second, err := r.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if second != "0.0, 23.9\n" {
		t.Fatalf("unexpected second line %q", second)
	}
}

func TestFluxPollAfterClose(t *testing.T) {
	d := &FluxDAQ{name: "x"}
	if _, err := d.Poll(context.Background()); !errors.Is(err, daq.ErrDeviceClosed) {
		t.Fatalf("expected ErrDeviceClosed, got %v", err)
	}
}

func TestSMTCListHasStack(t *testing.T) {
	out := "Detected boards:\nstacks: 0 2\n"
	if !smtcListHasStack(out, "2") {
		t.Fatal("expected stack 2 to be detected")
	}
	if smtcListHasStack(out, "5") {
		t.Fatal("expected stack 5 to be absent")
	}
	if smtcListHasStack("", "0") {
		t.Fatal("expected empty output to detect nothing")
	}
}
