package mapview

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/haulplan/haulplan/pkg/polyline"
)

// Scene is a Widget that records the drawing calls and serializes the result for the
// browser map: markers, GeoJSON line layers and the viewport.
type Scene struct {
	mu      sync.Mutex
	ready   bool
	markers []Marker
	layers  []lineLayer
	bounds  *Bounds
}

type lineLayer struct {
	id     string
	points []polyline.Point
}

// NewScene creates an empty scene. A scene created while the map is unavailable reports
// Ready() == false and is never drawn on.
func NewScene(ready bool) *Scene {
	return &Scene{ready: ready}
}

func (s *Scene) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Scene) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l.id == id {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			return nil
		}
	}
	return ErrLayerNotFound
}

func (s *Scene) RemoveMarker(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.markers {
		if m.ID == id {
			s.markers = append(s.markers[:i], s.markers[i+1:]...)
			return nil
		}
	}
	return ErrLayerNotFound
}

func (s *Scene) AddMarker(m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
	return nil
}

// AddLine adds a line layer. Non-finite points are dropped since GeoJSON cannot carry them.
func (s *Scene) AddLine(id string, points []polyline.Point) error {
	kept := make([]polyline.Point, 0, len(points))
	for _, p := range points {
		if finite(p.Lng) && finite(p.Lat) {
			kept = append(kept, p)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, lineLayer{id: id, points: kept})
	return nil
}

func (s *Scene) FitBounds(b Bounds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounds = &b
	return nil
}

// Markers returns a copy of the current markers.
func (s *Scene) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Marker(nil), s.markers...)
}

// sceneJSON is the wire form consumed by the map frontend.
type sceneJSON struct {
	Ready   bool           `json:"ready"`
	Markers []Marker       `json:"markers"`
	Layers  []layerJSON    `json:"layers"`
	Bounds  *[2][2]float64 `json:"bounds,omitempty"`
}

type layerJSON struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"`
	Source sourceJSON `json:"source"`
}

type sourceJSON struct {
	Type string      `json:"type"`
	Data featureJSON `json:"data"`
}

type featureJSON struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	Geometry   geometryJSON      `json:"geometry"`
}

type geometryJSON struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// MarshalJSON renders the scene with line layers as GeoJSON LineString features and bounds
// as [[west, south], [east, north]].
func (s *Scene) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := sceneJSON{
		Ready:   s.ready,
		Markers: append([]Marker{}, s.markers...),
		Layers:  make([]layerJSON, 0, len(s.layers)),
	}
	for _, l := range s.layers {
		coords := make([][2]float64, 0, len(l.points))
		for _, p := range l.points {
			coords = append(coords, [2]float64{p.Lng, p.Lat})
		}
		out.Layers = append(out.Layers, layerJSON{
			ID:   l.id,
			Type: "line",
			Source: sourceJSON{
				Type: "geojson",
				Data: featureJSON{
					Type:       "Feature",
					Properties: map[string]string{},
					Geometry:   geometryJSON{Type: "LineString", Coordinates: coords},
				},
			},
		})
	}
	if s.bounds != nil && !math.IsInf(s.bounds.SouthWest.Lng, 0) {
		out.Bounds = &[2][2]float64{
			{s.bounds.SouthWest.Lng, s.bounds.SouthWest.Lat},
			{s.bounds.NorthEast.Lng, s.bounds.NorthEast.Lat},
		}
	}
	return json.Marshal(out)
}

var _ Widget = (*Scene)(nil)
