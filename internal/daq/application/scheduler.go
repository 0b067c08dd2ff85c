package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
	"github.com/TV-RI/ThermalDAQ/internal/observability/metrics"
)

// StatusNotifier receives device degradation transitions.
type StatusNotifier interface {
	DeviceDegraded(ctx context.Context, device string, consecutiveFailures int)
	DeviceRecovered(ctx context.Context, device string)
}

// Scheduler runs one read loop per device plus one write loop. The loops
// share nothing but the per-device sample buffers; their periods are not
// phase-aligned. Loops stop only on shutdown, never on poll or sink errors.
type Scheduler struct {
	devices       []daq.Device
	agg           *Aggregator
	writer        daq.RecordWriter
	writeInterval time.Duration
	pollTimeout   time.Duration
	degradedAfter int
	grace         time.Duration
	duration      time.Duration
	notifier      StatusNotifier
	logger        *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithPollTimeout bounds each device poll.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// WithDegradedAfter sets the consecutive-failure threshold for marking a
// device degraded.
func WithDegradedAfter(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.degradedAfter = n
		}
	}
}

// WithShutdownGrace bounds how long Stop waits for in-flight work.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithCollectionDuration bounds total collection time; zero runs until
// shutdown is signalled.
func WithCollectionDuration(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithStatusNotifier wires degradation notifications.
func WithStatusNotifier(n StatusNotifier) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewScheduler constructs a scheduler over the configured devices.
func NewScheduler(devices []daq.Device, agg *Aggregator, writer daq.RecordWriter,
	writeInterval time.Duration, logger *log.Logger, opts ...Option) (*Scheduler, error) {

	if len(devices) == 0 {
		return nil, errors.New("scheduler: no devices")
	}
	if agg == nil || agg.Len() != len(devices) {
		return nil, errors.New("scheduler: aggregator does not match devices")
	}
	if writer == nil {
		return nil, errors.New("scheduler: nil record writer")
	}
	if writeInterval <= 0 {
		return nil, errors.New("scheduler: write interval must be positive")
	}
	if logger == nil {
		return nil, errors.New("scheduler: nil logger")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		devices:       devices,
		agg:           agg,
		writer:        writer,
		writeInterval: writeInterval,
		pollTimeout:   2 * time.Second,
		degradedAfter: 5,
		grace:         5 * time.Second,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches all loops. It returns immediately.
func (s *Scheduler) Start() {
	for i := range s.devices {
		s.wg.Add(1)
		go s.runDevice(i)
	}
	s.wg.Add(1)
	go s.runWriter()
}

// Done is closed when the scheduler has been asked to stop, either by Stop
// or by reaching the collection duration.
func (s *Scheduler) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Stop signals every loop and waits up to the grace period for in-flight
// polls and writes to finish. Exceeding the grace period is reported as
// daq.ErrShutdownTimeout, not a crash.
func (s *Scheduler) Stop() error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(s.grace):
		return daq.ErrShutdownTimeout
	}
}

func (s *Scheduler) runDevice(i int) {
	defer s.wg.Done()
	dev := s.devices[i]
	buffer := s.agg.Buffer(i)
	ticker := time.NewTicker(dev.SamplingInterval())
	defer ticker.Stop()

	failures := 0
	degraded := false
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			pollCtx, cancel := context.WithTimeout(s.ctx, s.pollTimeout)
			reading, err := dev.Poll(pollCtx)
			cancel()
			metrics.ObservePoll(dev.Name(), time.Since(start), err)

			if err != nil {
				failures++
				s.logger.Printf("poll error device=%s consecutive=%d err=%v", dev.Name(), failures, err)
				if !degraded && failures >= s.degradedAfter {
					degraded = true
					metrics.SetDegraded(dev.Name(), true)
					s.logger.Printf("device degraded device=%s after=%d", dev.Name(), failures)
					if s.notifier != nil {
						s.notifier.DeviceDegraded(s.ctx, dev.Name(), failures)
					}
				}
				continue
			}

			if reading.TS.IsZero() {
				reading.TS = start
			}
			buffer.Append(reading)
			if degraded {
				degraded = false
				metrics.SetDegraded(dev.Name(), false)
				s.logger.Printf("device recovered device=%s", dev.Name())
				if s.notifier != nil {
					s.notifier.DeviceRecovered(s.ctx, dev.Name())
				}
			}
			failures = 0
		}
	}
}

// runWriter ticks at fixed multiples of the write interval from start, so a
// slow sink does not drift the record timestamps.
func (s *Scheduler) runWriter() {
	defer s.wg.Done()
	start := time.Now()
	var deadline time.Time
	if s.duration > 0 {
		deadline = start.Add(s.duration)
	}
	next := start.Add(s.writeInterval)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			s.flush(next)
			if !deadline.IsZero() && !next.Before(deadline) {
				s.logger.Printf("collection duration reached, stopping")
				s.cancel()
				return
			}
			next = next.Add(s.writeInterval)
			timer.Reset(time.Until(next))
		}
	}
}

func (s *Scheduler) flush(tick time.Time) {
	metrics.ObserveTick()
	rec := s.agg.Collect(tick)

	// Writes run against a fresh context so an in-flight write may finish
	// during the shutdown grace period; the sink is still time-bounded.
	ctx, cancel := context.WithTimeout(context.Background(), s.writeInterval)
	defer cancel()
	if err := s.writer.WriteRecord(ctx, rec); err != nil {
		s.logger.Printf("record write error tick=%s err=%v", tick.Format(time.RFC3339), err)
	}
}
