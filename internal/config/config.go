// Package config loads the YAML configuration file and applies
// environment-variable overrides. Values are validated once at load
// time so the rest of the application can trust them.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Sources    SourcesConfig    `yaml:"sources"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Tsunami    TsunamiConfig    `yaml:"tsunami"`
	AIS        AISConfig        `yaml:"ais"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Storage    StorageConfig    `yaml:"storage"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Ops        OpsConfig        `yaml:"ops"`
}

// SourcesConfig enables and points each upstream hazard source.
type SourcesConfig struct {
	USGS SourceConfig `yaml:"usgs"`
	EMSC SourceConfig `yaml:"emsc"`
	JMA  SourceConfig `yaml:"jma"`
	PTWC SourceConfig `yaml:"ptwc"`
	DART DartConfig   `yaml:"dart"`
}

// SourceConfig configures one HTTP source adapter. An empty endpoint
// keeps the adapter's documented default.
type SourceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// DartConfig configures the DART buoy adapter and its station roster.
type DartConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Stations []DartStation `yaml:"stations,omitempty"`
}

// DartStation is one monitored buoy.
type DartStation struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
	Region string  `yaml:"region"`
}

// AggregatorConfig controls the earthquake polling cycle.
type AggregatorConfig struct {
	IntervalSeconds int     `yaml:"interval_seconds"`
	MinMagnitude    float64 `yaml:"min_magnitude"`
	WindowHours     int     `yaml:"window_hours"`
	Limit           int     `yaml:"limit"`
	Bounds          *Bounds `yaml:"bounds,omitempty"`
}

// Bounds is an optional geographic filter for fetched events.
type Bounds struct {
	MinLat float64 `yaml:"min_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLat float64 `yaml:"max_lat"`
	MaxLon float64 `yaml:"max_lon"`
}

// TsunamiConfig controls the tsunami polling cycle.
type TsunamiConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// AISConfig configures the vessel telemetry stream.
type AISConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the provider's WebSocket URL.
	Endpoint string `yaml:"endpoint"`
	// APIKey is normally supplied via COASTWATCH_AIS_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`
	// BoundingBoxes are [[lat,lon],[lat,lon]] corner pairs.
	BoundingBoxes        [][][]float64 `yaml:"bounding_boxes"`
	TrackPositions       bool          `yaml:"track_positions"`
	SampleRate           int           `yaml:"sample_rate"`
	MaxReconnects        int           `yaml:"max_reconnects"`
	StatsIntervalSeconds int           `yaml:"stats_interval_seconds"`
}

// EnrichmentConfig configures the periodic vessel enrichment job.
type EnrichmentConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	// APIKey is normally supplied via COASTWATCH_ENRICHMENT_API_KEY.
	APIKey                string `yaml:"api_key,omitempty"`
	IntervalMinutes       int    `yaml:"interval_minutes"`
	PageSize              int    `yaml:"page_size"`
	BatchSize             int    `yaml:"batch_size"`
	BatchPauseSeconds     int    `yaml:"batch_pause_seconds"`
	RateLimitPauseSeconds int    `yaml:"rate_limit_pause_seconds"`
}

// StorageConfig selects the vessel store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory", "sqlite" or "postgres"
	DSN    string `yaml:"dsn,omitempty"`
}

// ArchiveConfig configures the Firestore archive of fused output.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ProjectID   string `yaml:"project_id,omitempty"`
	Database    string `yaml:"database,omitempty"`
	Credentials string `yaml:"credentials,omitempty"`
}

// KafkaConfig configures the downstream publisher. Publishing is
// disabled when no brokers are listed.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers,omitempty"`
	HazardTopic string   `yaml:"hazard_topic,omitempty"`
	AlertTopic  string   `yaml:"alert_topic,omitempty"`
}

// OpsConfig configures the operational HTTP listener.
type OpsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads configuration from the specified YAML file.
// Environment variables override file values:
//   - COASTWATCH_LOG_LEVEL overrides log_level
//   - COASTWATCH_STORAGE_DRIVER / COASTWATCH_STORAGE_DSN override storage
//   - COASTWATCH_AIS_API_KEY overrides ais.api_key
//   - COASTWATCH_ENRICHMENT_API_KEY overrides enrichment.api_key
//   - COASTWATCH_ARCHIVE_PROJECT_ID overrides archive.project_id
//   - COASTWATCH_KAFKA_BROKERS (comma-separated) overrides kafka.brokers
//   - COASTWATCH_OPS_LISTEN overrides ops.listen
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COASTWATCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COASTWATCH_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("COASTWATCH_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("COASTWATCH_AIS_API_KEY"); v != "" {
		c.AIS.APIKey = v
	}
	if v := os.Getenv("COASTWATCH_ENRICHMENT_API_KEY"); v != "" {
		c.Enrichment.APIKey = v
	}
	if v := os.Getenv("COASTWATCH_ARCHIVE_PROJECT_ID"); v != "" {
		c.Archive.ProjectID = v
	}
	if v := os.Getenv("COASTWATCH_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitCommaList(v)
	}
	if v := os.Getenv("COASTWATCH_OPS_LISTEN"); v != "" {
		c.Ops.Listen = v
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Aggregator.IntervalSeconds <= 0 {
		c.Aggregator.IntervalSeconds = 60
	}
	if c.Tsunami.IntervalSeconds <= 0 {
		c.Tsunami.IntervalSeconds = 60
	}
	if c.Enrichment.IntervalMinutes <= 0 {
		c.Enrichment.IntervalMinutes = 60
	}
	if c.Kafka.HazardTopic == "" {
		c.Kafka.HazardTopic = "coastwatch.hazard-events"
	}
	if c.Kafka.AlertTopic == "" {
		c.Kafka.AlertTopic = "coastwatch.tsunami-alerts"
	}
	if c.Ops.Listen == "" {
		c.Ops.Listen = ":8080"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not supported (supported: debug, info, warn, error)", c.LogLevel)
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "", "memory", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver %q is not supported (supported: memory, sqlite, postgres)", c.Storage.Driver)
	}

	if c.Sources.DART.Enabled && len(c.Sources.DART.Stations) == 0 {
		return fmt.Errorf("sources.dart.stations is required when the DART source is enabled")
	}
	for i, st := range c.Sources.DART.Stations {
		if st.ID == "" {
			return fmt.Errorf("sources.dart.stations[%d].id is required", i)
		}
	}

	if c.AIS.Enabled {
		if c.AIS.Endpoint == "" {
			return fmt.Errorf("ais.endpoint is required when the AIS stream is enabled")
		}
		if c.AIS.APIKey == "" {
			return fmt.Errorf("ais.api_key is required when the AIS stream is enabled")
		}
		if len(c.AIS.BoundingBoxes) == 0 {
			return fmt.Errorf("at least one ais.bounding_boxes entry is required")
		}
		for i, box := range c.AIS.BoundingBoxes {
			if len(box) != 2 || len(box[0]) != 2 || len(box[1]) != 2 {
				return fmt.Errorf("ais.bounding_boxes[%d] must hold two [lat, lon] corners", i)
			}
		}
	}

	if c.Enrichment.Enabled {
		if c.Enrichment.Endpoint == "" {
			return fmt.Errorf("enrichment.endpoint is required when enrichment is enabled")
		}
		if c.Enrichment.APIKey == "" {
			return fmt.Errorf("enrichment.api_key is required when enrichment is enabled")
		}
	}

	if c.Archive.Enabled && c.Archive.ProjectID == "" {
		return fmt.Errorf("archive.project_id is required when the archive is enabled")
	}

	return nil
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
