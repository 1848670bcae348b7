package mission

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"recon-flyover/internal/geo"
	"recon-flyover/internal/utils/naming"
)

// Waypoint types and actions
const (
	WaypointTakeoff = "takeoff"
	WaypointSurvey  = "survey"
	WaypointLanding = "landing"

	ActionTakeoff = "takeoff"
	ActionPhoto   = "photo"
	ActionLand    = "land"
)

// Flight altitudes in meters above ground
const (
	TakeoffAltitude = 50
	SurveyAltitude  = 120
)

// Waypoint is one step of a drone flight plan
type Waypoint struct {
	ID        int      `json:"id"`
	Type      string   `json:"type"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lon"`
	Altitude  float64  `json:"altitude"`
	Action    string   `json:"action"`
	Bearing   *float64 `json:"bearing,omitempty"`
}

// Plan is a survey flight around a target: take off at the center, photograph
// each ring viewpoint, land at the center
type Plan struct {
	MissionName string         `json:"mission_name"`
	Target      string         `json:"target"`
	Location    string         `json:"location,omitempty"`
	LocationID  string         `json:"location_id"`
	MissionType string         `json:"mission_type"`
	Center      geo.Coordinate `json:"coordinates"`
	Altitude    float64        `json:"altitude"`
	Waypoints   []Waypoint     `json:"waypoints"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewPlan builds the flight plan for a set of ring viewpoints. The nadir
// viewpoint, if present, is covered by the takeoff and landing waypoints.
func NewPlan(poi, location string, center geo.Coordinate, viewpoints []geo.Viewpoint) *Plan {
	plan := &Plan{
		MissionName: naming.MissionName(poi),
		Target:      poi,
		Location:    location,
		LocationID:  naming.LocationID(poi),
		MissionType: "Reconnaissance Survey",
		Center:      center,
		Altitude:    SurveyAltitude,
		CreatedAt:   time.Now().UTC(),
	}

	plan.Waypoints = append(plan.Waypoints, Waypoint{
		ID:        0,
		Type:      WaypointTakeoff,
		Latitude:  center.Latitude,
		Longitude: center.Longitude,
		Altitude:  TakeoffAltitude,
		Action:    ActionTakeoff,
	})

	for _, vp := range viewpoints {
		if vp.Nadir {
			continue
		}
		b := vp.Bearing
		plan.Waypoints = append(plan.Waypoints, Waypoint{
			ID:        len(plan.Waypoints),
			Type:      WaypointSurvey,
			Latitude:  vp.Coordinate.Latitude,
			Longitude: vp.Coordinate.Longitude,
			Altitude:  SurveyAltitude,
			Action:    ActionPhoto,
			Bearing:   &b,
		})
	}

	plan.Waypoints = append(plan.Waypoints, Waypoint{
		ID:        len(plan.Waypoints),
		Type:      WaypointLanding,
		Latitude:  center.Latitude,
		Longitude: center.Longitude,
		Altitude:  0,
		Action:    ActionLand,
	})

	return plan
}

// WriteCSV writes one row per waypoint
func (p *Plan) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "type", "lat", "lon", "altitude", "action", "bearing"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, wp := range p.Waypoints {
		bearing := ""
		if wp.Bearing != nil {
			bearing = strconv.FormatFloat(*wp.Bearing, 'f', -1, 64)
		}
		row := []string{
			strconv.Itoa(wp.ID),
			wp.Type,
			strconv.FormatFloat(wp.Latitude, 'f', 6, 64),
			strconv.FormatFloat(wp.Longitude, 'f', 6, 64),
			strconv.FormatFloat(wp.Altitude, 'f', -1, 64),
			wp.Action,
			bearing,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write waypoint %d: %w", wp.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type kmlDocument struct {
	XMLName xml.Name `xml:"kml"`
	NS      string   `xml:"xmlns,attr"`
	Doc     kmlDoc   `xml:"Document"`
}

type kmlDoc struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name        string       `xml:"name"`
	Description string       `xml:"description,omitempty"`
	Point       *kmlGeometry `xml:"Point,omitempty"`
	LineString  *kmlGeometry `xml:"LineString,omitempty"`
}

type kmlGeometry struct {
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"`
}

// WriteKML writes the plan as a KML document with one placemark per
// waypoint and the flight path as a line string
func (p *Plan) WriteKML(w io.Writer) error {
	doc := kmlDocument{
		NS:  "http://www.opengis.net/kml/2.2",
		Doc: kmlDoc{Name: p.MissionName},
	}

	path := ""
	for _, wp := range p.Waypoints {
		coords := fmt.Sprintf("%.6f,%.6f,%.0f", wp.Longitude, wp.Latitude, wp.Altitude)
		doc.Doc.Placemarks = append(doc.Doc.Placemarks, kmlPlacemark{
			Name:        fmt.Sprintf("WP%d %s", wp.ID, wp.Type),
			Description: wp.Action,
			Point:       &kmlGeometry{AltitudeMode: "relativeToGround", Coordinates: coords},
		})
		if path != "" {
			path += " "
		}
		path += coords
	}
	doc.Doc.Placemarks = append(doc.Doc.Placemarks, kmlPlacemark{
		Name:       "Flight path",
		LineString: &kmlGeometry{AltitudeMode: "relativeToGround", Coordinates: path},
	})

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode KML: %w", err)
	}
	return enc.Flush()
}
