package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
)

const (
	NominatimURL    = "https://nominatim.openstreetmap.org"
	MapboxURL       = "https://api.mapbox.com"
	GooglePlacesURL = "https://maps.googleapis.com"

	// DefaultTimeout bounds every geocoding request
	DefaultTimeout = 10 * time.Second
)

// Nominatim queries the OpenStreetMap search API. It needs no key but
// expects an identifying User-Agent.
type Nominatim struct {
	BaseURL   string
	UserAgent string
	client    *http.Client
}

// NewNominatim creates a Nominatim provider
func NewNominatim(baseURL, userAgent string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = NominatimURL
	}
	if userAgent == "" {
		userAgent = common.UserAgent
	}
	return &Nominatim{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		client:    common.NewHTTPClient(timeout),
	}
}

func (n *Nominatim) Name() string { return common.GeocoderNominatim }

// Geocode returns the first search hit. Nominatim encodes lat/lon as strings.
func (n *Nominatim) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	var results []struct {
		Lat         *flexFloat `json:"lat"`
		Lon         *flexFloat `json:"lon"`
		DisplayName string     `json:"display_name"`
	}
	if err := getJSON(ctx, n.client, n.BaseURL+"/search?"+params.Encode(), n.UserAgent, &results); err != nil {
		return geo.Coordinate{}, err
	}
	if len(results) == 0 {
		return geo.Coordinate{}, ErrNoResults
	}

	return candidate(results[0].Lat, results[0].Lon)
}

// Mapbox queries the Mapbox places geocoding API
type Mapbox struct {
	BaseURL   string
	Token     string
	UserAgent string
	client    *http.Client
}

// NewMapbox creates a Mapbox provider
func NewMapbox(baseURL, token string, timeout time.Duration) *Mapbox {
	if baseURL == "" {
		baseURL = MapboxURL
	}
	return &Mapbox{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Token:     token,
		UserAgent: common.UserAgent,
		client:    common.NewHTTPClient(timeout),
	}
}

func (m *Mapbox) Name() string { return common.GeocoderMapbox }

// Geocode returns the first feature. Coordinates come back as [lon, lat].
func (m *Mapbox) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	params := url.Values{}
	params.Set("limit", "1")
	if m.Token != "" {
		params.Set("access_token", m.Token)
	}
	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s",
		m.BaseURL, url.PathEscape(query), params.Encode())

	var body struct {
		Features []struct {
			Geometry struct {
				Coordinates []*flexFloat `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := getJSON(ctx, m.client, endpoint, m.UserAgent, &body); err != nil {
		return geo.Coordinate{}, err
	}
	if len(body.Features) == 0 {
		return geo.Coordinate{}, ErrNoResults
	}

	coords := body.Features[0].Geometry.Coordinates
	if len(coords) < 2 {
		return geo.Coordinate{}, fmt.Errorf("malformed geometry: %d coordinates", len(coords))
	}
	return candidate(coords[1], coords[0])
}

// GooglePlaces queries the Places text search API
type GooglePlaces struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	client    *http.Client
}

// NewGooglePlaces creates a Google Places provider
func NewGooglePlaces(baseURL, apiKey string, timeout time.Duration) *GooglePlaces {
	if baseURL == "" {
		baseURL = GooglePlacesURL
	}
	return &GooglePlaces{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		UserAgent: common.UserAgent,
		client:    common.NewHTTPClient(timeout),
	}
}

func (g *GooglePlaces) Name() string { return common.GeocoderGooglePlaces }

func (g *GooglePlaces) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("key", g.APIKey)

	var body struct {
		Status  string `json:"status"`
		Results []struct {
			Geometry struct {
				Location struct {
					Lat *flexFloat `json:"lat"`
					Lng *flexFloat `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	endpoint := g.BaseURL + "/maps/api/place/textsearch/json?" + params.Encode()
	if err := getJSON(ctx, g.client, endpoint, g.UserAgent, &body); err != nil {
		return geo.Coordinate{}, err
	}
	if len(body.Results) == 0 {
		return geo.Coordinate{}, fmt.Errorf("%w (status %s)", ErrNoResults, body.Status)
	}

	loc := body.Results[0].Geometry.Location
	return candidate(loc.Lat, loc.Lng)
}
