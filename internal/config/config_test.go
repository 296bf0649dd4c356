package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return path
}

const validYAML = `log_level: debug

sources:
  usgs:
    enabled: true
  emsc:
    enabled: true
  jma:
    enabled: true
  ptwc:
    enabled: true
  dart:
    enabled: true
    stations:
      - id: "46404"
        name: "West Astoria"
        lat: 45.85
        lon: -128.77
        region: "US West Coast"

aggregator:
  interval_seconds: 120
  min_magnitude: 4.5
  window_hours: 24
  limit: 100

tsunami:
  interval_seconds: 90

ais:
  enabled: true
  endpoint: wss://stream.aisstream.io/v0/stream
  api_key: test-key
  track_positions: true
  sample_rate: 5
  max_reconnects: 10
  bounding_boxes:
    - [[30.0, -80.0], [45.0, -60.0]]

enrichment:
  enabled: true
  endpoint: https://profiles.example.com
  api_key: enrich-key
  interval_minutes: 30
  batch_size: 50

storage:
  driver: sqlite
  dsn: "file:test.db"

archive:
  enabled: true
  project_id: coastwatch-test

kafka:
  brokers: ["localhost:9092"]

ops:
  listen: ":9090"
`

func TestLoad_ValidYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if !cfg.Sources.USGS.Enabled || !cfg.Sources.DART.Enabled {
		t.Error("expected USGS and DART sources enabled")
	}
	if len(cfg.Sources.DART.Stations) != 1 || cfg.Sources.DART.Stations[0].ID != "46404" {
		t.Errorf("DART stations = %+v, want one station 46404", cfg.Sources.DART.Stations)
	}
	if cfg.Aggregator.IntervalSeconds != 120 {
		t.Errorf("Aggregator.IntervalSeconds = %d, want 120", cfg.Aggregator.IntervalSeconds)
	}
	if cfg.Aggregator.MinMagnitude != 4.5 {
		t.Errorf("Aggregator.MinMagnitude = %v, want 4.5", cfg.Aggregator.MinMagnitude)
	}
	if cfg.AIS.SampleRate != 5 {
		t.Errorf("AIS.SampleRate = %d, want 5", cfg.AIS.SampleRate)
	}
	if len(cfg.AIS.BoundingBoxes) != 1 {
		t.Fatalf("len(AIS.BoundingBoxes) = %d, want 1", len(cfg.AIS.BoundingBoxes))
	}
	if cfg.AIS.BoundingBoxes[0][0][0] != 30.0 || cfg.AIS.BoundingBoxes[0][1][1] != -60.0 {
		t.Errorf("BoundingBoxes[0] = %v", cfg.AIS.BoundingBoxes[0])
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Ops.Listen != ":9090" {
		t.Errorf("Ops.Listen = %q, want :9090", cfg.Ops.Listen)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `sources:
  usgs:
    enabled: true
`))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Aggregator.IntervalSeconds != 60 {
		t.Errorf("Aggregator.IntervalSeconds = %d, want 60", cfg.Aggregator.IntervalSeconds)
	}
	if cfg.Tsunami.IntervalSeconds != 60 {
		t.Errorf("Tsunami.IntervalSeconds = %d, want 60", cfg.Tsunami.IntervalSeconds)
	}
	if cfg.Enrichment.IntervalMinutes != 60 {
		t.Errorf("Enrichment.IntervalMinutes = %d, want 60", cfg.Enrichment.IntervalMinutes)
	}
	if cfg.Kafka.HazardTopic != "coastwatch.hazard-events" {
		t.Errorf("Kafka.HazardTopic = %q", cfg.Kafka.HazardTopic)
	}
	if cfg.Ops.Listen != ":8080" {
		t.Errorf("Ops.Listen = %q, want :8080", cfg.Ops.Listen)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COASTWATCH_LOG_LEVEL", "warn")
	t.Setenv("COASTWATCH_STORAGE_DRIVER", "postgres")
	t.Setenv("COASTWATCH_STORAGE_DSN", "postgres://db/coastwatch")
	t.Setenv("COASTWATCH_AIS_API_KEY", "env-key")
	t.Setenv("COASTWATCH_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("COASTWATCH_OPS_LISTEN", ":7070")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("Storage.Driver = %q, want postgres", cfg.Storage.Driver)
	}
	if cfg.Storage.DSN != "postgres://db/coastwatch" {
		t.Errorf("Storage.DSN = %q", cfg.Storage.DSN)
	}
	if cfg.AIS.APIKey != "env-key" {
		t.Errorf("AIS.APIKey = %q, want env-key", cfg.AIS.APIKey)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Ops.Listen != ":7070" {
		t.Errorf("Ops.Listen = %q, want :7070", cfg.Ops.Listen)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "log_level: [unclosed")); err == nil {
		t.Fatal("Load() should fail for invalid YAML")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "bad storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "oracle" },
			wantErr: "storage.driver",
		},
		{
			name: "dart without stations",
			mutate: func(c *Config) {
				c.Sources.DART.Enabled = true
				c.Sources.DART.Stations = nil
			},
			wantErr: "sources.dart.stations",
		},
		{
			name: "station without id",
			mutate: func(c *Config) {
				c.Sources.DART.Stations = []DartStation{{Name: "anonymous"}}
			},
			wantErr: "stations[0].id",
		},
		{
			name: "ais without endpoint",
			mutate: func(c *Config) {
				c.AIS.Enabled = true
				c.AIS.Endpoint = ""
			},
			wantErr: "ais.endpoint",
		},
		{
			name: "ais without api key",
			mutate: func(c *Config) {
				c.AIS.Enabled = true
				c.AIS.APIKey = ""
			},
			wantErr: "ais.api_key",
		},
		{
			name: "ais without bounding boxes",
			mutate: func(c *Config) {
				c.AIS.Enabled = true
				c.AIS.BoundingBoxes = nil
			},
			wantErr: "bounding_boxes",
		},
		{
			name: "malformed bounding box",
			mutate: func(c *Config) {
				c.AIS.Enabled = true
				c.AIS.BoundingBoxes = [][][]float64{{{30.0, -80.0}}}
			},
			wantErr: "two [lat, lon] corners",
		},
		{
			name: "enrichment without api key",
			mutate: func(c *Config) {
				c.Enrichment.Enabled = true
				c.Enrichment.APIKey = ""
			},
			wantErr: "enrichment.api_key",
		},
		{
			name: "archive without project",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.ProjectID = ""
			},
			wantErr: "archive.project_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
