package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

const fullConfig = `
settings:
  logLevel: debug
device:
  type: hackrf
  serialNumber: "0000000000000000088869dc2b3e171b"
  hackrf:
    bandwidth: 20000000
    binWidth: 100000
    lnaGain: 16
    vgaGain: 20
cycle:
  bands:
    - frequency: 2400
      unit: MHz
    - frequency: 915
      unit: mhz
    - frequency: 5.8
      unit: GHz
  dwell: 5s
recovery:
  maxRetries: 5
  initialBackoff: 250ms
  maxBackoff: 10s
  stopGracePeriod: 2s
  memoryLimit: 512MiB
  parseErrorsThreshold: 0
stream:
  bufferSize: 2048
server:
  listen: 127.0.0.1:9090
journal:
  enabled: true
  path: /var/lib/sweeper/journal.sqlite
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  topic: lab/sdr
  publishSamples: true
`

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(fullConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if config.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug log level, got %s", config.Settings.LogLevel)
	}
	if config.Device.Type != DeviceHackRF || *config.Device.HackRF.LNAGain != 16 || config.Device.HackRF.BinWidth != 100_000 {
		t.Errorf("unexpected device %+v", config.Device)
	}

	if config.Cycle == nil {
		t.Fatal("expected an autostart cycle")
	}
	expected := []sdr.Band{sdr.NewBand(2400, sdr.MHz), sdr.NewBand(915, sdr.MHz), sdr.NewBand(5.8, sdr.GHz)}
	if len(config.Cycle.Bands) != len(expected) || config.Cycle.Dwell != 5*time.Second {
		t.Fatalf("unexpected cycle %+v", config.Cycle)
	}
	for i, b := range expected {
		if config.Cycle.Bands[i] != b {
			t.Errorf("band #%d: expected %s, got %s", i, b, config.Cycle.Bands[i])
		}
	}

	rc := config.Recovery.Sweep()
	if rc.MaxRetries != 5 || rc.InitialBackoff != 250*time.Millisecond || rc.MaxBackoff != 10*time.Second {
		t.Errorf("unexpected recovery %+v", rc)
	}
	if rc.MemoryLimit != 512<<20 {
		t.Errorf("expected 512 MiB memory limit, got %d", rc.MemoryLimit)
	}
	if rc.ParseErrorsThreshold != 0 {
		t.Errorf("expected an explicit zero to disable the parse check, got %d", rc.ParseErrorsThreshold)
	}
	if rc.HealthInterval != sweep.DefaultHealthInterval {
		t.Errorf("expected the default health interval, got %s", rc.HealthInterval)
	}

	if config.Stream.BufferSize != 2048 || config.Server.Listen != "127.0.0.1:9090" {
		t.Errorf("unexpected stream/server %+v %+v", config.Stream, config.Server)
	}
	if !config.Journal.Enabled || config.Journal.Path != "/var/lib/sweeper/journal.sqlite" {
		t.Errorf("unexpected journal %+v", config.Journal)
	}
	if !config.MQTT.Enabled || config.MQTT.Broker != "tcp://localhost:1883" || config.MQTT.Topic != "lab/sdr" || !config.MQTT.PublishSamples {
		t.Errorf("unexpected mqtt %+v", config.MQTT)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte("settings:\n  logLevel: info\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if config.Device.Type != DeviceHackRF || config.Device.HackRF == nil {
		t.Errorf("expected a default HackRF device, got %+v", config.Device)
	}
	if config.Cycle != nil {
		t.Error("expected no autostart cycle")
	}
	if config.Server.Listen != defaultListen || config.Journal.Path != defaultJournalPath {
		t.Errorf("unexpected defaults %+v %+v", config.Server, config.Journal)
	}
	if rc := config.Recovery.Sweep(); rc != sweep.DefaultRecoveryConfig() {
		t.Errorf("expected default recovery, got %+v", rc)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		config string
		errMsg string
	}{
		{"unknown field", "server:\n  port: 80\n", "port"},
		{"unknown device", "device:\n  type: airspy\n", "unknown type 'airspy'"},
		{"bad gain", "device:\n  hackrf:\n    lnaGain: 10\n", "multiple of 8"},
		{"bad rtl crop", "device:\n  type: rtl-sdr\n  rtl:\n    crop: 2\n", "crop"},
		{"empty cycle", "cycle:\n  dwell: 1s\n", "cycle"},
		{"bad backoff", "recovery:\n  initialBackoff: 1m\n  maxBackoff: 1s\n", "recovery"},
		{"bad memory", "recovery:\n  memoryLimit: lots\n", "invalid size"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n", "broker"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.config))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweeper.yaml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Recovery.MemoryLimit.String() != "512 MiB" {
		t.Errorf("unexpected memory limit %s", config.Recovery.MemoryLimit)
	}

	if _, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}
