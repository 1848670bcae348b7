package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
)

var (
	ErrEmptyQuery = errors.New("point of interest name is empty")
	ErrNoResults  = errors.New("no geocoding results")

	// ErrMissingCoordinate means the top candidate lacked lat or lon
	ErrMissingCoordinate = errors.New("geocoding candidate has no coordinate")
)

// DefaultCoordinate is returned when every provider fails (Achill Island, Ireland)
var DefaultCoordinate = geo.Coordinate{Latitude: 53.9889, Longitude: -10.0661}

// Provider resolves a free-text query to a single coordinate
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string) (geo.Coordinate, error)
}

// Recorder receives one observation per provider attempt
type Recorder interface {
	RecordGeocode(provider string, ok bool)
}

// Resolution is the outcome of Resolve. Fallback is true when no provider
// answered and Coordinate is the configured default.
type Resolution struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Provider   string         `json:"provider"`
	Fallback   bool           `json:"fallback"`
}

// Resolver tries providers in order and falls back to a default coordinate
type Resolver struct {
	providers []Provider
	fallback  geo.Coordinate
	recorder  Recorder
}

// NewResolver creates a resolver over an ordered provider list
func NewResolver(fallback geo.Coordinate, providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		fallback:  fallback,
	}
}

// SetRecorder sets the observer for provider attempts
func (r *Resolver) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Providers returns the provider names in resolution order
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Resolve geocodes "poi hint". Provider errors never surface: the first
// provider with a valid result wins, otherwise the default coordinate is
// returned with Fallback set. Only an empty POI name or a canceled context
// is an error.
func (r *Resolver) Resolve(ctx context.Context, poi, hint string) (Resolution, error) {
	poi = strings.TrimSpace(poi)
	if poi == "" {
		return Resolution{}, ErrEmptyQuery
	}
	query := strings.TrimSpace(poi + " " + strings.TrimSpace(hint))

	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		coord, err := p.Geocode(ctx, query)
		if err == nil {
			err = coord.Validate()
		}
		if r.recorder != nil {
			r.recorder.RecordGeocode(p.Name(), err == nil)
		}
		if err != nil {
			log.Printf("[Geocode] %s failed for %q: %v", p.Name(), query, err)
			continue
		}

		log.Printf("[Geocode] %s resolved %q to %s", p.Name(), query, coord)
		return Resolution{Coordinate: coord, Provider: p.Name()}, nil
	}

	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	log.Printf("[Geocode] All providers failed for %q, using default %s", query, r.fallback)
	return Resolution{
		Coordinate: r.fallback,
		Provider:   common.GeocoderDefault,
		Fallback:   true,
	}, nil
}

// flexFloat accepts both JSON numbers and numeric strings
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return fmt.Errorf("empty numeric value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %s: %w", data, err)
	}
	*f = flexFloat(v)
	return nil
}

// candidate builds a coordinate from optional lat/lon fields
func candidate(lat, lon *flexFloat) (geo.Coordinate, error) {
	if lat == nil || lon == nil {
		return geo.Coordinate{}, ErrMissingCoordinate
	}
	return geo.Coordinate{Latitude: float64(*lat), Longitude: float64(*lon)}, nil
}

// getJSON issues a GET and decodes a 200 response into out
func getJSON(ctx context.Context, client *http.Client, rawURL, userAgent string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
