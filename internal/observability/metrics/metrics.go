package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "thermaldaq_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	pollTotal   *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec

	drainedSamples *prometheus.HistogramVec
	deviceStale    *prometheus.GaugeVec
	deviceDegraded *prometheus.GaugeVec

	writeTotal   *prometheus.CounterVec
	writeLatency *prometheus.HistogramVec

	ticksTotal prometheus.Counter
)

// Init registers the pipeline metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		pollTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_polls_total",
				Help: "Device polls by device and result",
			},
			[]string{"device", "result"},
		)
		pollLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "device_poll_seconds",
				Help:    "Device poll latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"device"},
		)
		drainedSamples = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "drained_samples",
				Help:    "Samples drained per device per write tick",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"device"},
		)
		deviceStale = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "device_stale",
				Help: "1 while a device's latest record entry is stale or no-data",
			},
			[]string{"device"},
		)
		deviceDegraded = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "device_degraded",
				Help: "1 while a device is marked degraded",
			},
			[]string{"device"},
		)
		writeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "record_writes_total",
				Help: "Record writes by sink and result",
			},
			[]string{"sink", "result"},
		)
		writeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "record_write_seconds",
				Help:    "Record write latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink"},
		)
		ticksTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "write_ticks_total",
				Help: "Write ticks processed",
			},
		)

		prometheus.MustRegister(
			pollTotal,
			pollLatency,
			drainedSamples,
			deviceStale,
			deviceDegraded,
			writeTotal,
			writeLatency,
			ticksTotal,
		)
	})
}

// ObservePoll records one device poll.
func ObservePoll(device string, elapsed time.Duration, err error) {
	if pollTotal == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	pollTotal.WithLabelValues(device, result).Inc()
	pollLatency.WithLabelValues(device).Observe(elapsed.Seconds())
}

// ObserveDrain records the drained sample count for one device at one tick.
func ObserveDrain(device string, samples int) {
	if drainedSamples == nil {
		return
	}
	drainedSamples.WithLabelValues(device).Observe(float64(samples))
}

// SetStale flips the per-device staleness gauge.
func SetStale(device string, stale bool) {
	if deviceStale == nil {
		return
	}
	v := 0.0
	if stale {
		v = 1.0
	}
	deviceStale.WithLabelValues(device).Set(v)
}

// SetDegraded flips the per-device degraded gauge.
func SetDegraded(device string, degraded bool) {
	if deviceDegraded == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1.0
	}
	deviceDegraded.WithLabelValues(device).Set(v)
}

// ObserveWrite records one sink write.
func ObserveWrite(sink string, elapsed time.Duration, err error) {
	if writeTotal == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	writeTotal.WithLabelValues(sink, result).Inc()
	writeLatency.WithLabelValues(sink).Observe(elapsed.Seconds())
}

// ObserveTick counts one write tick.
func ObserveTick() {
	if ticksTotal == nil {
		return
	}
	ticksTotal.Inc()
}
