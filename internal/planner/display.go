package planner

import (
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/pkg/units"
)

// MetricsSource tells where a displayed distance came from.
type MetricsSource string

const (
	SourceCalculated MetricsSource = "calculated"
	SourceLegacy     MetricsSource = "legacy"
	SourceNone       MetricsSource = "none"
)

// MetricsSources lists every source.
var MetricsSources = []MetricsSource{SourceCalculated, SourceLegacy, SourceNone}

// Display is the distance shown in route lists.
type Display struct {
	Miles  *float64      `json:"miles"`
	Source MetricsSource `json:"metricsSource"`
}

// DisplayFor prefers calculated miles, then the legacy kilometer field converted to miles.
// The two are never combined.
func DisplayFor(r *route.Route) Display {
	switch {
	case r.TotalMiles != nil:
		miles := *r.TotalMiles
		return Display{Miles: &miles, Source: SourceCalculated}
	case r.LegacyDistanceKm != nil:
		miles := units.KilometersToMiles(*r.LegacyDistanceKm)
		return Display{Miles: &miles, Source: SourceLegacy}
	default:
		return Display{Source: SourceNone}
	}
}
