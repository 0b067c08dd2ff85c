package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the document leaves a field unset.
const (
	DefaultConfigPath    = "config.yaml"
	DefaultWriteInterval = 10 * time.Second
	DefaultPollTimeout   = 2 * time.Second
	DefaultShutdownGrace = 5 * time.Second
	DefaultDegradedAfter = 5
	DefaultMetricsAddr   = ":9090"
)

// Duration wraps time.Duration so yaml documents can use "2s" / "500ms".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the parsed, validated form the pipeline consumes.
type Config struct {
	WriteInterval      Duration       `yaml:"write_interval"`
	HoldingTime        Duration       `yaml:"holding_time"`
	CollectionDuration Duration       `yaml:"collection_duration"`
	PollTimeout        Duration       `yaml:"poll_timeout"`
	ShutdownGrace      Duration       `yaml:"shutdown_grace"`
	DegradedAfter      int            `yaml:"degraded_after"`
	MetricsAddr        string         `yaml:"metrics_addr"`
	WebhookURL         string         `yaml:"webhook_url"`
	Devices            []DeviceConfig `yaml:"devices"`
	Sinks              SinkConfig     `yaml:"sinks"`
}

// DeviceConfig selects a driver variant and its parameters.
type DeviceConfig struct {
	Name             string          `yaml:"name"`
	Driver           string          `yaml:"driver"`
	SamplingInterval Duration        `yaml:"sampling_interval"`
	Channels         []ChannelConfig `yaml:"channels"`

	// Serial drivers (fluxdaq).
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	Variant string `yaml:"variant"`

	// Thermocouple HAT driver (smtc).
	Stack int `yaml:"stack"`

	// Simulator.
	Seed int64 `yaml:"seed"`
}

// ChannelConfig describes one channel of a device.
type ChannelConfig struct {
	// ID is the hardware channel number where the driver needs one
	// (fluxdaq sensor slot 1-4, smtc input 1-8).
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	// Path is the sysfs input file for the hwmon driver.
	Path string `yaml:"path"`
	// Flux marks a heat-flux channel; SValue is the sensor sensitivity in
	// uV/(W/m^2) used to convert the raw millivolt reading.
	Flux   bool    `yaml:"flux"`
	SValue float64 `yaml:"s_value"`
	// Type is the thermocouple type for smtc channels (J, K, T, ...).
	Type string `yaml:"type"`
}

// SinkConfig enables record sinks. At least one must be configured.
type SinkConfig struct {
	CSV       *CSVSinkConfig       `yaml:"csv"`
	Postgres  *PostgresSinkConfig  `yaml:"postgres"`
	Cassandra *CassandraSinkConfig `yaml:"cassandra"`
}

// CSVSinkConfig configures the CSV file sink.
type CSVSinkConfig struct {
	Path string `yaml:"path"`
}

// PostgresSinkConfig configures the Postgres sink.
type PostgresSinkConfig struct {
	URL   string `yaml:"url"`
	Table string `yaml:"table"`
}

// CassandraSinkConfig configures the Cassandra sink.
type CassandraSinkConfig struct {
	Hosts        []string `yaml:"hosts"`
	Keyspace     string   `yaml:"keyspace"`
	Table        string   `yaml:"table"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// Load reads, defaults, and validates the configuration document. The path
// argument wins over the THERMALDAQ_CONFIG environment variable, which wins
// over the default path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("THERMALDAQ_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WriteInterval == 0 {
		c.WriteInterval = Duration(DefaultWriteInterval)
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = Duration(DefaultPollTimeout)
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = Duration(DefaultShutdownGrace)
	}
	if c.DegradedAfter == 0 {
		c.DegradedAfter = DefaultDegradedAfter
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Baud == 0 {
			d.Baud = 9600
		}
	}
}

// Validate reports the first configuration error. Any error here is fatal
// at startup; the process must not start with a bad document.
func (c *Config) Validate() error {
	if c.WriteInterval <= 0 {
		return errors.New("write_interval must be positive")
	}
	if c.HoldingTime < 0 {
		return errors.New("holding_time must not be negative")
	}
	if c.CollectionDuration < 0 {
		return errors.New("collection_duration must not be negative")
	}
	if len(c.Devices) == 0 {
		return errors.New("no devices configured")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("devices[%d]: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("device %q: duplicate name", d.Name)
		}
		seen[d.Name] = true
		if d.Driver == "" {
			return fmt.Errorf("device %q: driver is required", d.Name)
		}
		if d.SamplingInterval <= 0 {
			return fmt.Errorf("device %q: sampling_interval must be positive", d.Name)
		}
		if len(d.Channels) == 0 {
			return fmt.Errorf("device %q: no channels configured", d.Name)
		}
		for j, ch := range d.Channels {
			if ch.Name == "" {
				return fmt.Errorf("device %q: channels[%d]: name is required", d.Name, j)
			}
			if ch.Flux && ch.SValue <= 0 {
				return fmt.Errorf("device %q: channel %q: s_value must be positive for flux channels", d.Name, ch.Name)
			}
		}
	}
	if c.Sinks.CSV == nil && c.Sinks.Postgres == nil && c.Sinks.Cassandra == nil {
		return errors.New("no sinks configured")
	}
	if c.Sinks.CSV != nil && c.Sinks.CSV.Path == "" {
		return errors.New("csv sink: path is required")
	}
	if c.Sinks.Postgres != nil && c.Sinks.Postgres.URL == "" {
		return errors.New("postgres sink: url is required")
	}
	if c.Sinks.Cassandra != nil && (len(c.Sinks.Cassandra.Hosts) == 0 || c.Sinks.Cassandra.Keyspace == "") {
		return errors.New("cassandra sink: hosts and keyspace are required")
	}
	return nil
}
