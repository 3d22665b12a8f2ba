package app

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/spectrum-streamer/internal/feed"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr/hackrf"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr/rtl"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

const (
	DeviceHackRF DeviceType = "hackrf"
	DeviceRTLSDR DeviceType = "rtl-sdr"
)

const (
	defaultListen      = ":8080"
	defaultJournalPath = "data/journal.sqlite"
)

type DeviceType string

// Config represents the main application configuration
type Config struct {
	Settings Settings           `yaml:"settings"`
	Device   DeviceConfig       `yaml:"device"`
	Cycle    *sweep.CycleConfig `yaml:"cycle"` // started as soon as the engine runs, if set
	Recovery RecoveryConfig     `yaml:"recovery"`
	Stream   StreamConfig       `yaml:"stream"`
	Server   ServerConfig       `yaml:"server"`
	Journal  JournalConfig      `yaml:"journal"`
	MQTT     MQTTConfig         `yaml:"mqtt"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// DeviceConfig selects the SDR device and its sweep utility
type DeviceConfig struct {
	Type         DeviceType     `yaml:"type"`
	Runtime      string         `yaml:"runtime"` // path to the sweep utility, looked up when empty
	SerialNumber string         `yaml:"serialNumber"`
	HackRF       *hackrf.Config `yaml:"hackrf"`
	RTL          *rtl.Config    `yaml:"rtl"`
}

// RecoveryConfig bounds fault recovery. Zero values select the defaults.
type RecoveryConfig struct {
	MaxRetries           int           `yaml:"maxRetries"`
	InitialBackoff       time.Duration `yaml:"initialBackoff"`
	MaxBackoff           time.Duration `yaml:"maxBackoff"`
	StopGracePeriod      time.Duration `yaml:"stopGracePeriod"`
	HealthInterval       time.Duration `yaml:"healthInterval"`
	MemoryLimit          ByteSize      `yaml:"memoryLimit"`
	ParseErrorsThreshold *int          `yaml:"parseErrorsThreshold"` // 0 disables the check
}

// StreamConfig sizes the replay buffer and the subscriber queues
type StreamConfig struct {
	BufferSize      int `yaml:"bufferSize"`
	SubscriberQueue int `yaml:"subscriberQueue"`
}

// ServerConfig represents the HTTP API settings
type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// JournalConfig represents the cycle journal settings
type JournalConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	MaxBatchSize int    `yaml:"maxBatchSize"`
}

// MQTTConfig represents the MQTT mirror settings
type MQTTConfig struct {
	Enabled         bool `yaml:"enabled"`
	feed.MQTTConfig `yaml:",inline"`
}

// ByteSize is a memory size written the humanized way, e.g. "512MiB" or "1GB"
type ByteSize uint64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("invalid size '%s': %w", value.Value, err)
	}

	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// LoadConfig loads the configuration from a YAML file and applies defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration, applies defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	var config Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not specified
	if config.Device.Type == "" {
		config.Device.Type = DeviceHackRF
	}
	if config.Device.HackRF == nil {
		config.Device.HackRF = &hackrf.Config{}
	}
	if config.Device.RTL == nil {
		config.Device.RTL = &rtl.Config{}
	}
	if config.Server.Listen == "" {
		config.Server.Listen = defaultListen
	}
	if config.Journal.Path == "" {
		config.Journal.Path = defaultJournalPath
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the parts of the configuration the components cannot check
// themselves until they are created
func (c *Config) Validate() error {
	var errs []error

	switch c.Device.Type {
	case DeviceHackRF:
		if err := c.Device.HackRF.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("device.hackrf: %w", err))
		}
	case DeviceRTLSDR:
		if err := c.Device.RTL.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("device.rtl: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("device.type: unknown type '%s'", c.Device.Type))
	}

	if c.Cycle != nil {
		if err := c.Cycle.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cycle: %w", err))
		}
	}

	if err := c.Recovery.Sweep().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recovery: %w", err))
	}
	if c.Recovery.StopGracePeriod < 0 {
		errs = append(errs, errors.New("recovery.stopGracePeriod: must not be negative"))
	}

	if c.Stream.BufferSize < 0 || c.Stream.SubscriberQueue < 0 {
		errs = append(errs, errors.New("stream: sizes must not be negative"))
	}

	if c.MQTT.Enabled {
		if err := c.MQTT.MQTTConfig.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Sweep returns the engine recovery configuration with defaults for unset fields
func (c *RecoveryConfig) Sweep() sweep.RecoveryConfig {
	rc := sweep.DefaultRecoveryConfig()

	if c.MaxRetries != 0 {
		rc.MaxRetries = c.MaxRetries
	}
	if c.InitialBackoff != 0 {
		rc.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff != 0 {
		rc.MaxBackoff = c.MaxBackoff
	}
	if c.HealthInterval != 0 {
		rc.HealthInterval = c.HealthInterval
	}
	if c.ParseErrorsThreshold != nil {
		rc.ParseErrorsThreshold = *c.ParseErrorsThreshold
	}
	rc.MemoryLimit = uint64(c.MemoryLimit)

	return rc
}
