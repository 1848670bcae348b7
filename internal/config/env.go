package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnv overrides settings from the environment. A .env file, if any, is
// loaded into the environment by the caller before this runs.
func applyEnv(s *Settings) {
	s.Flyover.FrameCount = getEnvInt("RECON_FRAME_COUNT", s.Flyover.FrameCount)
	s.Flyover.RadiusKm = getEnvFloat("RECON_RADIUS_KM", s.Flyover.RadiusKm)
	s.Flyover.Workers = getEnvInt("RECON_WORKERS", s.Flyover.Workers)
	s.Flyover.OutputRoot = getEnv("RECON_OUTPUT_ROOT", s.Flyover.OutputRoot)
	s.Flyover.GeoTIFF = getEnvBool("RECON_GEOTIFF", s.Flyover.GeoTIFF)

	s.Imagery.Timeout = getEnvDuration("RECON_IMAGERY_TIMEOUT", s.Imagery.Timeout)
	s.Imagery.MaxConcurrent = getEnvInt("RECON_IMAGERY_MAX_CONCURRENT", s.Imagery.MaxConcurrent)
	s.Imagery.GoogleMapsAPIKey = getEnv("GOOGLE_MAPS_API_KEY", s.Imagery.GoogleMapsAPIKey)

	s.Geocode.MapboxToken = getEnv("MAPBOX_TOKEN", s.Geocode.MapboxToken)
	s.Geocode.GooglePlacesAPIKey = getEnv("GOOGLE_PLACES_API_KEY", s.Geocode.GooglePlacesAPIKey)

	s.Cache.Enabled = getEnvBool("RECON_CACHE_ENABLED", s.Cache.Enabled)
	s.Cache.Dir = getEnv("RECON_CACHE_DIR", s.Cache.Dir)

	s.Video.Enabled = getEnvBool("RECON_VIDEO_ENABLED", s.Video.Enabled)

	s.Server.Host = getEnv("SERVER_HOST", s.Server.Host)
	s.Server.Port = getEnvInt("SERVER_PORT", s.Server.Port)

	s.DB.Path = getEnv("DB_PATH", s.DB.Path)
	s.NATS.URL = getEnv("NATS_URL", s.NATS.URL)

	s.PostHog.APIKey = getEnv("POSTHOG_API_KEY", s.PostHog.APIKey)
	s.PostHog.Host = getEnv("POSTHOG_HOST", s.PostHog.Host)

	s.Tracing.Enabled = getEnvBool("TRACING_ENABLED", s.Tracing.Enabled)
	s.Tracing.Exporter = getEnv("TRACING_EXPORTER", s.Tracing.Exporter)

	s.Logging.Level = getEnv("LOG_LEVEL", s.Logging.Level)
	s.Logging.Format = getEnv("LOG_FORMAT", s.Logging.Format)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
