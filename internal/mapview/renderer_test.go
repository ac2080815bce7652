package mapview_test

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulplan/haulplan/internal/mapview"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/pkg/polyline"
)

// recordingWidget counts every call made to it.
type recordingWidget struct {
	ready     bool
	readyCall int
	removed   []string
	markers   []mapview.Marker
	lines     map[string][]polyline.Point
	bounds    []mapview.Bounds
	addErr    error
}

func newRecordingWidget() *recordingWidget {
	return &recordingWidget{ready: true, lines: map[string][]polyline.Point{}}
}

func (w *recordingWidget) Ready() bool {
	w.readyCall++
	return w.ready
}

func (w *recordingWidget) RemoveLayer(id string) error {
	w.removed = append(w.removed, "layer:"+id)
	return mapview.ErrLayerNotFound
}

func (w *recordingWidget) RemoveMarker(id string) error {
	w.removed = append(w.removed, "marker:"+id)
	return mapview.ErrLayerNotFound
}

func (w *recordingWidget) AddMarker(m mapview.Marker) error {
	if w.addErr != nil {
		return w.addErr
	}
	w.markers = append(w.markers, m)
	return nil
}

func (w *recordingWidget) AddLine(id string, pts []polyline.Point) error {
	w.lines[id] = pts
	return nil
}

func (w *recordingWidget) FitBounds(b mapview.Bounds) error {
	w.bounds = append(w.bounds, b)
	return nil
}

func (w *recordingWidget) calls() int {
	return w.readyCall + len(w.removed) + len(w.markers) + len(w.lines) + len(w.bounds)
}

func storedRoute() *route.Route {
	return &route.Route{
		ID:                 12,
		Name:               "Miami to Atlanta",
		OriginAddress:      "Miami, FL",
		DestinationAddress: "Atlanta, GA",
		Origin:             &routing.Coordinate{Lat: 25.7617, Lng: -80.1918},
		Destination:        &routing.Coordinate{Lat: 33.749, Lng: -84.388},
	}
}

func TestRenderer_DrawsMarkersLineAndBounds(t *testing.T) {
	w := newRecordingWidget()
	r := storedRoute()
	r.Polyline = []polyline.Point{
		{Lng: -80.1918, Lat: 25.7617},
		{Lng: -86.0, Lat: 30.0},
		{Lng: -84.388, Lat: 33.749},
	}

	err := mapview.NewRenderer(zerolog.Nop()).Render(w, r)
	require.NoError(t, err)

	assert.Equal(t, []string{"marker:origin", "marker:destination", "layer:route-line"}, w.removed)
	require.Len(t, w.markers, 2)
	assert.Equal(t, mapview.MarkerOrigin, w.markers[0].ID)
	assert.Equal(t, mapview.Popup{Title: "Miami to Atlanta", Body: "Miami, FL"}, w.markers[0].Popup)
	assert.Equal(t, mapview.MarkerDestination, w.markers[1].ID)
	assert.Equal(t, "Atlanta, GA", w.markers[1].Popup.Body)
	assert.Len(t, w.lines[mapview.LayerRouteLine], 3)

	require.Len(t, w.bounds, 1)
	assert.Equal(t, polyline.Point{Lng: -86.0, Lat: 25.7617}, w.bounds[0].SouthWest)
	assert.Equal(t, polyline.Point{Lng: -80.1918, Lat: 33.749}, w.bounds[0].NorthEast)
}

func TestRenderer_StraightLineWithoutPolyline(t *testing.T) {
	w := newRecordingWidget()

	require.NoError(t, mapview.NewRenderer(zerolog.Nop()).Render(w, storedRoute()))

	assert.Equal(t, []polyline.Point{
		{Lng: -80.1918, Lat: 25.7617},
		{Lng: -84.388, Lat: 33.749},
	}, w.lines[mapview.LayerRouteLine])
}

func TestRenderer_MissingCoordinatesTouchesNothing(t *testing.T) {
	tests := []struct {
		name  string
		route *route.Route
	}{
		{"no origin", func() *route.Route { r := storedRoute(); r.Origin = nil; return r }()},
		{"no destination", func() *route.Route { r := storedRoute(); r.Destination = nil; return r }()},
		{"nil route", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newRecordingWidget()

			err := mapview.NewRenderer(zerolog.Nop()).Render(w, tt.route)

			assert.ErrorIs(t, err, mapview.ErrMissingCoordinates)
			assert.Empty(t, w.markers)
			assert.Zero(t, w.calls())
		})
	}
}

func TestRenderer_NotReady(t *testing.T) {
	w := newRecordingWidget()
	w.ready = false

	err := mapview.NewRenderer(zerolog.Nop()).Render(w, storedRoute())

	assert.ErrorIs(t, err, mapview.ErrMapNotReady)
	assert.Empty(t, w.removed)
	assert.Empty(t, w.markers)
}

func TestRenderer_SkipsNonFinitePointsInBounds(t *testing.T) {
	w := newRecordingWidget()
	r := storedRoute()
	r.Polyline = []polyline.Point{
		{Lng: -80.1918, Lat: 25.7617},
		{Lng: math.NaN(), Lat: 28},
		{Lng: -200, Lat: math.Inf(1)},
		{Lng: -84.388, Lat: 33.749},
	}

	require.NoError(t, mapview.NewRenderer(zerolog.Nop()).Render(w, r))

	require.Len(t, w.bounds, 1)
	assert.Equal(t, polyline.Point{Lng: -84.388, Lat: 25.7617}, w.bounds[0].SouthWest)
	assert.Equal(t, polyline.Point{Lng: -80.1918, Lat: 33.749}, w.bounds[0].NorthEast)
}

func TestRenderer_NoFinitePointsSkipsFit(t *testing.T) {
	w := newRecordingWidget()
	r := storedRoute()
	r.Origin = &routing.Coordinate{Lat: math.NaN(), Lng: 0}
	r.Destination = &routing.Coordinate{Lat: 0, Lng: math.Inf(-1)}

	require.NoError(t, mapview.NewRenderer(zerolog.Nop()).Render(w, r))

	assert.Len(t, w.markers, 2)
	assert.Empty(t, w.bounds)
}

func TestRenderer_WidgetErrorPropagates(t *testing.T) {
	w := newRecordingWidget()
	w.addErr = errors.New("canvas lost")

	err := mapview.NewRenderer(zerolog.Nop()).Render(w, storedRoute())

	assert.ErrorContains(t, err, "canvas lost")
	assert.Empty(t, w.lines)
}
