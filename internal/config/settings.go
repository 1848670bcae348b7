package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"recon-flyover/internal/events"
	"recon-flyover/internal/flyover"
	"recon-flyover/internal/geocode"
	"recon-flyover/internal/observability"
)

// CustomSource represents a user-added imagery source, tried after the
// built-in chain
type CustomSource struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // "xyz" or "static"
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// FlyoverConfig controls the viewpoint ring and pipeline
type FlyoverConfig struct {
	FrameCount int     `yaml:"frame_count"`
	RadiusKm   float64 `yaml:"radius_km"`
	RingZoom   int     `yaml:"ring_zoom"`
	NadirZoom  int     `yaml:"nadir_zoom"`
	Workers    int     `yaml:"workers"`
	OutputRoot string  `yaml:"output_root"`
	// GeoTIFF also writes the nadir tile as a georeferenced GeoTIFF
	GeoTIFF bool `yaml:"geotiff"`
}

// ImageryConfig controls the imagery fetcher
type ImageryConfig struct {
	Timeout          time.Duration  `yaml:"timeout"`
	MinBytes         int            `yaml:"min_bytes"`
	UserAgent        string         `yaml:"user_agent"`
	MaxConcurrent    int            `yaml:"max_concurrent"`
	GoogleMapsAPIKey string         `yaml:"google_maps_api_key"`
	CustomSources    []CustomSource `yaml:"custom_sources"`
}

// GeocodeConfig controls the geocoder chain
type GeocodeConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	UserAgent          string        `yaml:"user_agent"`
	MapboxToken        string        `yaml:"mapbox_token"`
	GooglePlacesAPIKey string        `yaml:"google_places_api_key"`
	DefaultLatitude    float64       `yaml:"default_lat"`
	DefaultLongitude   float64       `yaml:"default_lon"`
}

// CacheConfig controls the opt-in tile cache
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	MaxEntries int    `yaml:"max_entries"`
	TTLDays    int    `yaml:"ttl_days"`
}

// VideoConfig controls the opt-in flyover video
type VideoConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Export  flyover.ExportOptions `yaml:"export"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Host         string  `yaml:"host"`
	Port         int     `yaml:"port"`
	RPS          float64 `yaml:"rps"`
	Burst        int     `yaml:"burst"`
	QueueWorkers int     `yaml:"queue_workers"`
	QueueSize    int     `yaml:"queue_size"`
}

// DatabaseConfig holds the mission store location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PostHogConfig enables anonymous mission analytics when APIKey is set
type PostHogConfig struct {
	APIKey string `yaml:"api_key"`
	Host   string `yaml:"host"`
}

// LoggingConfig selects the slog level and handler
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// Settings is the full application configuration
type Settings struct {
	Flyover FlyoverConfig               `yaml:"flyover"`
	Imagery ImageryConfig               `yaml:"imagery"`
	Geocode GeocodeConfig               `yaml:"geocode"`
	Cache   CacheConfig                 `yaml:"cache"`
	Video   VideoConfig                 `yaml:"video"`
	Server  ServerConfig                `yaml:"server"`
	DB      DatabaseConfig              `yaml:"db"`
	NATS    events.NATSConfig           `yaml:"nats"`
	PostHog PostHogConfig               `yaml:"posthog"`
	Tracing observability.TracingConfig `yaml:"tracing"`
	Logging LoggingConfig               `yaml:"logging"`
}

// DefaultSettings returns default settings
func DefaultSettings() *Settings {
	baseDir := GetBaseDir()
	ring := flyover.DefaultOptions()

	return &Settings{
		Flyover: FlyoverConfig{
			FrameCount: 6,
			RadiusKm:   0.35,
			RingZoom:   ring.RingZoom,
			NadirZoom:  ring.NadirZoom,
			Workers:    ring.Workers,
			OutputRoot: ".",
		},
		Imagery: ImageryConfig{
			Timeout:       10 * time.Second,
			MinBytes:      1000,
			UserAgent:     "recon-flyover/1.0",
			MaxConcurrent: 8,
			CustomSources: []CustomSource{},
		},
		Geocode: GeocodeConfig{
			Timeout:          geocode.DefaultTimeout,
			UserAgent:        "recon-flyover/1.0",
			DefaultLatitude:  geocode.DefaultCoordinate.Latitude,
			DefaultLongitude: geocode.DefaultCoordinate.Longitude,
		},
		Cache: CacheConfig{
			Enabled:    false,
			Dir:        "",
			MaxEntries: 10000,
			TTLDays:    30,
		},
		Video: VideoConfig{
			Enabled: false,
			Export:  flyover.DefaultExportOptions(),
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			RPS:          5,
			Burst:        10,
			QueueWorkers: 2,
			QueueSize:    20,
		},
		DB: DatabaseConfig{
			Path: filepath.Join(baseDir, "missions.db"),
		},
		NATS: events.NATSConfig{
			SubjectPrefix:  events.DefaultSubjectPrefix,
			MaxReconnects:  10,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 5 * time.Second,
		},
		PostHog: PostHogConfig{
			Host: "https://us.i.posthog.com",
		},
		Tracing: observability.TracingConfig{
			Enabled:     false,
			ServiceName: "recon-flyover",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// GetBaseDir returns the per-user data directory: ~/.recon-flyover
func GetBaseDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".recon-flyover")
}

// GetSettingsPath returns the default settings file path
func GetSettingsPath() string {
	return filepath.Join(GetBaseDir(), "config.yaml")
}

// LoadSettings layers defaults, the YAML file at path and the environment.
// An empty path uses GetSettingsPath and tolerates a missing file; an
// explicit path must exist.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	explicit := path != ""
	if !explicit {
		path = GetSettingsPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	applyEnv(settings)

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings writes settings as YAML to path
func SaveSettings(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Redacted returns a copy with credentials masked, for display
func (s *Settings) Redacted() *Settings {
	c := *s
	c.Imagery.GoogleMapsAPIKey = mask(c.Imagery.GoogleMapsAPIKey)
	c.Geocode.MapboxToken = mask(c.Geocode.MapboxToken)
	c.Geocode.GooglePlacesAPIKey = mask(c.Geocode.GooglePlacesAPIKey)
	c.PostHog.APIKey = mask(c.PostHog.APIKey)
	c.Imagery.CustomSources = make([]CustomSource, len(s.Imagery.CustomSources))
	for i, src := range s.Imagery.CustomSources {
		src.APIKey = mask(src.APIKey)
		c.Imagery.CustomSources[i] = src
	}
	return &c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Validate rejects settings the pipeline cannot run with
func (s *Settings) Validate() error {
	if s.Flyover.FrameCount < 1 {
		return fmt.Errorf("invalid frame count: %d", s.Flyover.FrameCount)
	}
	if s.Flyover.RadiusKm <= 0 {
		return fmt.Errorf("invalid radius: %g km", s.Flyover.RadiusKm)
	}
	if s.Flyover.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d", s.Flyover.Workers)
	}
	for _, z := range []int{s.Flyover.RingZoom, s.Flyover.NadirZoom} {
		if z < 0 || z > 22 {
			return fmt.Errorf("invalid zoom level: %d", z)
		}
	}
	if s.Geocode.DefaultLatitude < -90 || s.Geocode.DefaultLatitude > 90 ||
		s.Geocode.DefaultLongitude < -180 || s.Geocode.DefaultLongitude > 180 {
		return fmt.Errorf("invalid default coordinate: %f, %f", s.Geocode.DefaultLatitude, s.Geocode.DefaultLongitude)
	}

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", s.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[s.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", s.Logging.Level)
	}
	if s.Logging.Format != "json" && s.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", s.Logging.Format)
	}

	if s.Video.Enabled && s.Video.Export.Format != flyover.FormatAVI && s.Video.Export.Format != flyover.FormatGIF {
		return fmt.Errorf("invalid video format: %s", s.Video.Export.Format)
	}

	for i := range s.Imagery.CustomSources {
		if err := ValidateCustomSource(&s.Imagery.CustomSources[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCustomSource validates a custom source configuration
func ValidateCustomSource(source *CustomSource) error {
	if source.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if source.URL == "" {
		return fmt.Errorf("source URL is required")
	}

	validTypes := map[string]bool{
		"xyz":    true,
		"static": true,
	}
	if !validTypes[source.Type] {
		return fmt.Errorf("invalid source type: %s (must be xyz or static)", source.Type)
	}

	return nil
}
