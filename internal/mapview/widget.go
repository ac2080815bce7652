// Package mapview draws a stored route onto a map widget: endpoint markers, the route line and
// a viewport fitted to both.
package mapview

import (
	"errors"

	"github.com/haulplan/haulplan/pkg/polyline"
)

// Errors returned by widgets and the renderer.
var (
	// ErrMapNotReady means the map could not be initialized; rendering is skipped.
	ErrMapNotReady = errors.New("map not ready")
	// ErrMissingCoordinates means the route lacks an origin or destination coordinate.
	ErrMissingCoordinates = errors.New("route is missing coordinates")
	// ErrLayerNotFound is returned when removing a layer or marker that does not exist.
	ErrLayerNotFound = errors.New("layer not found")
)

// Well-known marker and layer identifiers.
const (
	MarkerOrigin      = "origin"
	MarkerDestination = "destination"
	LayerRouteLine    = "route-line"
)

// Popup is the text shown when a marker is clicked.
type Popup struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Marker is a pin on the map.
type Marker struct {
	ID       string         `json:"id"`
	Position polyline.Point `json:"position"`
	Color    string         `json:"color,omitempty"`
	Popup    Popup          `json:"popup"`
}

// Bounds is a viewport rectangle.
type Bounds struct {
	SouthWest polyline.Point
	NorthEast polyline.Point
}

// Widget is the drawing surface the renderer drives.
type Widget interface {
	Ready() bool
	RemoveLayer(id string) error
	RemoveMarker(id string) error
	AddMarker(m Marker) error
	AddLine(id string, points []polyline.Point) error
	FitBounds(b Bounds) error
}
