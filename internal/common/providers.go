package common

// Provider name constants for consistent naming across the application.
// Imagery names double as cache namespaces and metric labels.
const (
	// ProviderEsriWorldImagery is the Esri World Imagery tile service
	ProviderEsriWorldImagery = "esri_world_imagery"

	// ProviderGoogleSatellite is the Google satellite tile layer (lyrs=s)
	ProviderGoogleSatellite = "google_satellite"

	// ProviderOpenStreetMap is the OSM standard raster tile layer
	ProviderOpenStreetMap = "openstreetmap"

	// ProviderGoogleStaticMaps is the Google Static Maps satellite endpoint
	ProviderGoogleStaticMaps = "google_static_maps"

	// GeocoderNominatim is the OpenStreetMap Nominatim search API
	GeocoderNominatim = "nominatim"

	// GeocoderMapbox is the Mapbox places geocoding API
	GeocoderMapbox = "mapbox"

	// GeocoderGooglePlaces is the Google Places text search API
	GeocoderGooglePlaces = "google_places"

	// GeocoderDefault marks a coordinate that came from the configured fallback
	GeocoderDefault = "default"
)
