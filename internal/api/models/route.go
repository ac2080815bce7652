package models

// RouteCreateRequest is the body of POST /v1/routes.
type RouteCreateRequest struct {
	Name               string  `json:"name"`
	OriginAddress      string  `json:"originAddress"`
	DestinationAddress string  `json:"destinationAddress"`
	DriverID           *string `json:"driverId,omitempty"`
	ShipmentID         *string `json:"shipmentId,omitempty"`
}

// RouteUpdateRequest is the body of PATCH /v1/routes/{id}. Omitted fields are unchanged.
type RouteUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	OriginAddress      *string `json:"originAddress,omitempty"`
	DestinationAddress *string `json:"destinationAddress,omitempty"`
	Status             *string `json:"status,omitempty"`
	DriverID           *string `json:"driverId,omitempty"`
	ShipmentID         *string `json:"shipmentId,omitempty"`
}

// JurisdictionMiles is one row of the per-state mileage breakdown.
type JurisdictionMiles struct {
	Jurisdiction string  `json:"jurisdiction"`
	Miles        float64 `json:"miles"`
}

// RouteDisplay is the distance a list shows for a route and where it came from.
type RouteDisplay struct {
	Miles         *float64 `json:"miles"`
	MetricsSource string   `json:"metricsSource"`
}

// Route is a stored route.
type Route struct {
	ID                       int64               `json:"id"`
	Name                     string              `json:"name"`
	OriginAddress            string              `json:"originAddress"`
	DestinationAddress       string              `json:"destinationAddress"`
	Origin                   *Coordinate         `json:"origin,omitempty"`
	Destination              *Coordinate         `json:"destination,omitempty"`
	OriginGeocode            string              `json:"originGeocode,omitempty"`
	DestinationGeocode       string              `json:"destinationGeocode,omitempty"`
	TotalMiles               *float64            `json:"totalMiles,omitempty"`
	EstimatedDurationMinutes *int                `json:"estimatedDurationMinutes,omitempty"`
	StateBreakdown           []JurisdictionMiles `json:"stateBreakdown,omitempty"`
	Polyline                 *string             `json:"polyline,omitempty"`
	CalculatedAt             *Timestamp          `json:"calculatedAt,omitempty"`
	LegacyDistanceKm         *float64            `json:"legacyDistanceKm,omitempty"`
	Status                   string              `json:"status"`
	DriverID                 *string             `json:"driverId,omitempty"`
	ShipmentID               *string             `json:"shipmentId,omitempty"`
	Display                  RouteDisplay        `json:"display"`
	CreatedAt                Timestamp           `json:"createdAt"`
	UpdatedAt                Timestamp           `json:"updatedAt"`
}

// Warning is a non-fatal issue with a created or updated route.
type Warning struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RouteResult wraps a route with the warnings produced while planning it.
type RouteResult struct {
	Route    Route     `json:"route"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// PagedRoutes is one page of routes.
type PagedRoutes struct {
	Items []Route           `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// RouteMap is the response of GET /v1/routes/{id}/map. Map is the serialized scene.
type RouteMap struct {
	RouteID int64       `json:"routeId"`
	Name    string      `json:"name"`
	Map     interface{} `json:"map"`
}
