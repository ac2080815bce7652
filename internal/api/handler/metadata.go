package handler

import (
	"net/http"

	"github.com/haulplan/haulplan/internal/api/models"
	"github.com/haulplan/haulplan/internal/api/response"
	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/planner"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	truck routing.TruckSpec
}

// NewMetadataHandler creates a new MetadataHandler for the configured truck.
func NewMetadataHandler(truck routing.TruckSpec) *MetadataHandler {
	return &MetadataHandler{truck: truck}
}

// GetTruckSpec handles GET /v1/metadata/truck-spec.
func (h *MetadataHandler) GetTruckSpec(w http.ResponseWriter, r *http.Request) {
	v := h.truck.Vehicle()
	response.JSON(w, r, http.StatusOK, models.TruckSpec{
		Imperial: models.TruckImperial{
			MaxSpeedMPH:    h.truck.MaxSpeedMPH,
			GrossWeightLbs: h.truck.GrossWeightLbs,
			AxleWeightLbs:  h.truck.AxleWeightLbs,
			LengthFt:       h.truck.LengthFt,
			WidthFt:        h.truck.WidthFt,
			HeightFt:       h.truck.HeightFt,
			Commercial:     h.truck.Commercial,
			LoadTypes:      nonNil(h.truck.LoadTypes),
		},
		Metric: models.TruckMetric{
			MaxSpeedKPH:  v.MaxSpeedKPH,
			WeightKg:     v.WeightKg,
			AxleWeightKg: v.AxleWeightKg,
			LengthM:      v.LengthM,
			WidthM:       v.WidthM,
			HeightM:      v.HeightM,
			Commercial:   v.Commercial,
			LoadTypes:    nonNil(v.LoadTypes),
		},
	})
}

// GetEnums handles GET /v1/metadata/enums.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	enums := models.Enums{
		GeocodeKinds: []string{string(geocoding.KindResolved), string(geocoding.KindFallback)},
	}
	for _, s := range route.Statuses {
		enums.RouteStatuses = append(enums.RouteStatuses, string(s))
	}
	for _, s := range planner.MetricsSources {
		enums.MetricsSources = append(enums.MetricsSources, string(s))
	}
	response.JSON(w, r, http.StatusOK, enums)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
