package mapview

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/pkg/polyline"
)

const (
	originColor      = "#16a34a"
	destinationColor = "#dc2626"
)

// Renderer draws routes on a Widget.
type Renderer struct {
	logger zerolog.Logger
}

// NewRenderer creates a renderer.
func NewRenderer(logger zerolog.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render replaces whatever route w shows with r. A route without both coordinates yields
// ErrMissingCoordinates before the widget is touched. A widget that is not ready yields
// ErrMapNotReady.
func (rd *Renderer) Render(w Widget, r *route.Route) error {
	if r == nil || !r.HasCoordinates() {
		return ErrMissingCoordinates
	}
	if !w.Ready() {
		return ErrMapNotReady
	}

	origin := polyline.Point{Lng: r.Origin.Lng, Lat: r.Origin.Lat}
	destination := polyline.Point{Lng: r.Destination.Lng, Lat: r.Destination.Lat}

	for _, id := range []string{MarkerOrigin, MarkerDestination} {
		if err := ignoreMissing(w.RemoveMarker(id)); err != nil {
			return fmt.Errorf("removing marker %s: %w", id, err)
		}
	}
	if err := ignoreMissing(w.RemoveLayer(LayerRouteLine)); err != nil {
		return fmt.Errorf("removing layer %s: %w", LayerRouteLine, err)
	}

	markers := []Marker{
		{
			ID:       MarkerOrigin,
			Position: origin,
			Color:    originColor,
			Popup:    Popup{Title: r.Name, Body: r.OriginAddress},
		},
		{
			ID:       MarkerDestination,
			Position: destination,
			Color:    destinationColor,
			Popup:    Popup{Title: r.Name, Body: r.DestinationAddress},
		},
	}
	for _, m := range markers {
		if err := w.AddMarker(m); err != nil {
			return fmt.Errorf("adding marker %s: %w", m.ID, err)
		}
	}

	line := r.Polyline
	if len(line) < 2 {
		line = []polyline.Point{origin, destination}
	}
	if err := w.AddLine(LayerRouteLine, line); err != nil {
		return fmt.Errorf("adding route line: %w", err)
	}

	bounds, ok := rd.bounds(r.ID, append([]polyline.Point{origin, destination}, line...))
	if !ok {
		rd.logger.Warn().Int64("route_id", r.ID).Msg("no finite points to fit map bounds")
		return nil
	}
	if err := w.FitBounds(bounds); err != nil {
		return fmt.Errorf("fitting bounds: %w", err)
	}
	return nil
}

// bounds returns the rectangle around every finite point, logging the ones it skips.
func (rd *Renderer) bounds(routeID int64, pts []polyline.Point) (Bounds, bool) {
	b := Bounds{
		SouthWest: polyline.Point{Lng: math.Inf(1), Lat: math.Inf(1)},
		NorthEast: polyline.Point{Lng: math.Inf(-1), Lat: math.Inf(-1)},
	}
	found := false
	for i, p := range pts {
		if !finite(p.Lng) || !finite(p.Lat) {
			rd.logger.Warn().
				Int64("route_id", routeID).
				Int("index", i).
				Msg("skipping non-finite point in map bounds")
			continue
		}
		found = true
		b.SouthWest.Lng = math.Min(b.SouthWest.Lng, p.Lng)
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
		b.NorthEast.Lng = math.Max(b.NorthEast.Lng, p.Lng)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
	}
	return b, found
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ignoreMissing(err error) error {
	if errors.Is(err, ErrLayerNotFound) {
		return nil
	}
	return err
}
