package imagery

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
)

const (
	EsriWorldImageryTemplate = "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"
	GoogleSatelliteTemplate  = "https://mt1.google.com/vt/lyrs=s&x={x}&y={y}&z={z}"
	OpenStreetMapTemplate    = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	GoogleStaticMapsURL      = "https://maps.googleapis.com/maps/api/staticmap"
)

// Source builds the request URL for one imagery provider
type Source interface {
	Name() string
	URL(c geo.Coordinate, zoom int) string
}

// TileAddressed is implemented by sources that serve XYZ tiles. The tile
// address doubles as the cache key.
type TileAddressed interface {
	Tile(c geo.Coordinate, zoom int) geo.TileAddress
}

// TileSource is an XYZ tile server described by a URL template.
// Supported placeholders: {z}, {x}, {y} and {q} (quadkey).
type TileSource struct {
	name     string
	template string
}

// NewTileSource creates a tile source from a URL template
func NewTileSource(name, template string) (*TileSource, error) {
	if !strings.Contains(template, "{q}") &&
		!(strings.Contains(template, "{z}") && strings.Contains(template, "{x}") && strings.Contains(template, "{y}")) {
		return nil, fmt.Errorf("template for %s must contain {z}, {x} and {y} or {q}", name)
	}
	return &TileSource{name: name, template: template}, nil
}

func (s *TileSource) Name() string { return s.name }

func (s *TileSource) Tile(c geo.Coordinate, zoom int) geo.TileAddress {
	return geo.ToTile(c, zoom)
}

func (s *TileSource) URL(c geo.Coordinate, zoom int) string {
	t := s.Tile(c, zoom)
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Zoom),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{q}", t.Quadkey(),
	)
	return r.Replace(s.template)
}

// StaticMapSource is a center+zoom static map endpoint (Google Static Maps
// parameter style). The API key is optional.
type StaticMapSource struct {
	name    string
	BaseURL string
	APIKey  string
	Size    int
	Scale   int
	MapType string
}

// NewStaticMapSource creates a static-map source with an 800x800 satellite default
func NewStaticMapSource(name, baseURL, apiKey string) *StaticMapSource {
	if baseURL == "" {
		baseURL = GoogleStaticMapsURL
	}
	return &StaticMapSource{
		name:    name,
		BaseURL: baseURL,
		APIKey:  apiKey,
		Size:    800,
		Scale:   2,
		MapType: "satellite",
	}
}

func (s *StaticMapSource) Name() string { return s.name }

func (s *StaticMapSource) URL(c geo.Coordinate, zoom int) string {
	params := url.Values{}
	params.Set("center", fmt.Sprintf("%f,%f", c.Latitude, c.Longitude))
	params.Set("zoom", strconv.Itoa(zoom))
	params.Set("size", fmt.Sprintf("%dx%d", s.Size, s.Size))
	params.Set("maptype", s.MapType)
	params.Set("format", "jpg")
	params.Set("scale", strconv.Itoa(s.Scale))
	if s.APIKey != "" {
		params.Set("key", s.APIKey)
	}
	return s.BaseURL + "?" + params.Encode()
}

// DefaultSources returns the standard provider chain: Esri World Imagery,
// Google satellite tiles, OpenStreetMap and finally Google Static Maps.
func DefaultSources(googleMapsKey string) []Source {
	esri, _ := NewTileSource(common.ProviderEsriWorldImagery, EsriWorldImageryTemplate)
	google, _ := NewTileSource(common.ProviderGoogleSatellite, GoogleSatelliteTemplate)
	osm, _ := NewTileSource(common.ProviderOpenStreetMap, OpenStreetMapTemplate)

	return []Source{
		esri,
		google,
		osm,
		NewStaticMapSource(common.ProviderGoogleStaticMaps, GoogleStaticMapsURL, googleMapsKey),
	}
}
