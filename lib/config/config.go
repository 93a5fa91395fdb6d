// Package config loads labctl settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	TransportGPIB   = "gpib"
	TransportSerial = "serial"
)

type Config struct {
	Conn      ConnConfig      `yaml:"conn"`
	Influx    InfluxConfig    `yaml:"influx"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ConnConfig describes how to reach the instrument.
type ConnConfig struct {
	Port      string        `yaml:"port"`
	Transport string        `yaml:"transport"`
	Baud      int           `yaml:"baud"`
	PAD       int           `yaml:"pad"`
	SAD       int           `yaml:"sad"` // 0 for none
	Delay     time.Duration `yaml:"delay"`
	Timeout   time.Duration `yaml:"timeout"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Token  string `yaml:"token"`
}

// TimescaleConfig is optional; an empty DSN disables the sink.
type TimescaleConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type RecorderConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Measurement string        `yaml:"measurement"`
	RingSize    int           `yaml:"ring_size"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults for settings whose zero value is also a valid setting. They are
// in place before the file is decoded so that an explicit zero survives.
const (
	DefaultPAD   = 22
	DefaultDelay = 100 * time.Millisecond
)

// Load reads the YAML file at path, then applies defaults, the
// environment and validation. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Config{Conn: ConnConfig{PAD: DefaultPAD, Delay: DefaultDelay}}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
	}

	cfg.applyDefaults()
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "loading %s", f)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Conn.Transport == "" {
		c.Conn.Transport = TransportGPIB
	}
	if c.Conn.Baud == 0 {
		if c.Conn.Transport == TransportGPIB {
			c.Conn.Baud = 115200
		} else {
			c.Conn.Baud = 9600
		}
	}
	if c.Conn.Timeout == 0 {
		c.Conn.Timeout = 2 * time.Second
	}
	if c.Influx.URL == "" {
		c.Influx.URL = "http://localhost:8086"
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "samples"
	}
	if c.Recorder.Interval == 0 {
		c.Recorder.Interval = 2 * time.Second
	}
	if c.Recorder.Measurement == "" {
		c.Recorder.Measurement = "E36312A"
	}
	if c.Recorder.RingSize == 0 {
		c.Recorder.RingSize = 512
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9110"
	}
}

// ApplyEnv overrides the sink settings from TOKEN, ORG, BUCKET,
// INFLUX_URL and TIMESCALE_DSN when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Influx.Token, "TOKEN")
	set(&c.Influx.Org, "ORG")
	set(&c.Influx.Bucket, "BUCKET")
	set(&c.Influx.URL, "INFLUX_URL")
	set(&c.Timescale.DSN, "TIMESCALE_DSN")
}

func (c *Config) Validate() error {
	switch c.Conn.Transport {
	case TransportGPIB, TransportSerial:
	default:
		return errors.Errorf("conn.transport must be %q or %q, got %q", TransportGPIB, TransportSerial, c.Conn.Transport)
	}
	if c.Conn.Baud <= 0 {
		return errors.Errorf("conn.baud must be positive, got %d", c.Conn.Baud)
	}
	if c.Conn.PAD < 0 || c.Conn.PAD > 30 {
		return errors.Errorf("conn.pad must be in 0..30, got %d", c.Conn.PAD)
	}
	if c.Conn.SAD != 0 && (c.Conn.SAD < 96 || c.Conn.SAD > 126) {
		return errors.Errorf("conn.sad must be 0 or in 96..126, got %d", c.Conn.SAD)
	}
	if c.Conn.Timeout < 0 || c.Conn.Delay < 0 {
		return errors.New("conn.timeout and conn.delay must not be negative")
	}
	if c.Recorder.Interval <= 0 {
		return errors.Errorf("recorder.interval must be positive, got %s", c.Recorder.Interval)
	}
	if c.Recorder.RingSize < 1 {
		return errors.Errorf("recorder.ring_size must be positive, got %d", c.Recorder.RingSize)
	}
	if c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required")
	}
	return nil
}
