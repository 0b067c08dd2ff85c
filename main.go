package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TV-RI/ThermalDAQ/internal/config"
	"github.com/TV-RI/ThermalDAQ/internal/daq/application"
	daq "github.com/TV-RI/ThermalDAQ/internal/daq/domain"
	"github.com/TV-RI/ThermalDAQ/internal/daq/infrastructure/cassandra"
	"github.com/TV-RI/ThermalDAQ/internal/daq/infrastructure/csvlog"
	"github.com/TV-RI/ThermalDAQ/internal/daq/infrastructure/drivers"
	"github.com/TV-RI/ThermalDAQ/internal/daq/infrastructure/postgres"
	"github.com/TV-RI/ThermalDAQ/internal/daq/interfaces"
	"github.com/TV-RI/ThermalDAQ/internal/daq/notify"
	"github.com/TV-RI/ThermalDAQ/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const precheckTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the configuration document")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	metrics.Init()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Printf("metrics listener error: %v", err)
		}
	}()

	devices := buildDevices(cfg, logger)
	defer closeDevices(devices, logger)

	if cfg.HoldingTime > 0 {
		logger.Printf("holding %s before collection", cfg.HoldingTime.Std())
		time.Sleep(cfg.HoldingTime.Std())
	}

	writer := buildWriter(cfg, logger)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Printf("sink close error: %v", err)
		}
	}()

	agg, err := application.NewAggregator(devices, logger)
	if err != nil {
		logger.Fatalf("aggregator error: %v", err)
	}

	opts := []application.Option{
		application.WithPollTimeout(cfg.PollTimeout.Std()),
		application.WithDegradedAfter(cfg.DegradedAfter),
		application.WithShutdownGrace(cfg.ShutdownGrace.Std()),
		application.WithCollectionDuration(cfg.CollectionDuration.Std()),
	}
	if cfg.WebhookURL != "" {
		notifier, err := notify.NewWebhookNotifier(cfg.WebhookURL)
		if err != nil {
			logger.Fatalf("webhook notifier error: %v", err)
		}
		opts = append(opts, application.WithStatusNotifier(notifier))
	}

	sched, err := application.NewScheduler(devices, agg, writer, cfg.WriteInterval.Std(), logger, opts...)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("collection started devices=%d write_interval=%s", len(devices), cfg.WriteInterval.Std())
	sched.Start()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case <-sched.Done():
	}

	if err := sched.Stop(); err != nil {
		if errors.Is(err, daq.ErrShutdownTimeout) {
			logger.Printf("warning: shutdown grace period exceeded")
		} else {
			logger.Printf("stop error: %v", err)
		}
	}
	logger.Printf("collection stopped")
}

// buildDevices constructs and prechecks every configured device. A failed
// precheck aborts startup; collecting from a device that was broken before
// the run started only produces a file of NaNs.
func buildDevices(cfg *config.Config, logger *log.Logger) []daq.Device {
	devices := make([]daq.Device, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		dev, err := drivers.New(dc, logger)
		if err != nil {
			logger.Fatalf("device %s: %v", dc.Name, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), precheckTimeout)
		err = dev.Precheck(ctx)
		cancel()
		if err != nil {
			logger.Fatalf("device %s: precheck failed: %v", dc.Name, err)
		}
		logger.Printf("device ready name=%s driver=%s channels=%d interval=%s",
			dc.Name, dc.Driver, len(dc.Channels), dc.SamplingInterval.Std())
		devices = append(devices, dev)
	}
	return devices
}

func closeDevices(devices []daq.Device, logger *log.Logger) {
	for _, dev := range devices {
		if err := dev.Close(); err != nil {
			logger.Printf("device close error device=%s err=%v", dev.Name(), err)
		}
	}
}

// buildWriter assembles the fan-out over the configured sinks plus the
// per-tick console line.
func buildWriter(cfg *config.Config, logger *log.Logger) *interfaces.MultiWriter {
	sinks := []daq.RecordWriter{interfaces.NewRecordLogger(logger)}

	if sc := cfg.Sinks.CSV; sc != nil {
		w, err := csvlog.New(sc.Path)
		if err != nil {
			logger.Fatalf("csv sink error: %v", err)
		}
		sinks = append(sinks, w)
	}
	if sc := cfg.Sinks.Postgres; sc != nil {
		db, err := sql.Open("pgx", sc.URL)
		if err != nil {
			logger.Fatalf("postgres sink error: %v", err)
		}
		if err := db.Ping(); err != nil {
			logger.Fatalf("postgres sink ping error: %v", err)
		}
		sinks = append(sinks, postgres.NewRecordRepository(db, postgres.WithTable(sc.Table)))
	}
	if sc := cfg.Sinks.Cassandra; sc != nil {
		session, err := cassandra.Connect(sc.Hosts, sc.Keyspace)
		if err != nil {
			logger.Fatalf("cassandra sink error: %v", err)
		}
		sinks = append(sinks, cassandra.NewRecordRepository(session,
			cassandra.WithTable(sc.Table),
			cassandra.WithWriteTimeout(sc.WriteTimeout.Std()),
		))
	}
	return interfaces.NewMultiWriter(sinks...)
}
