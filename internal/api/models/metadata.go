package models

// TruckSpec describes the configured vehicle in imperial and provider units.
type TruckSpec struct {
	Imperial TruckImperial `json:"imperial"`
	Metric   TruckMetric   `json:"metric"`
}

// TruckImperial holds the configured truck parameters.
type TruckImperial struct {
	MaxSpeedMPH    float64  `json:"maxSpeedMph"`
	GrossWeightLbs float64  `json:"grossWeightLbs"`
	AxleWeightLbs  float64  `json:"axleWeightLbs"`
	LengthFt       float64  `json:"lengthFt"`
	WidthFt        float64  `json:"widthFt"`
	HeightFt       float64  `json:"heightFt"`
	Commercial     bool     `json:"commercial"`
	LoadTypes      []string `json:"loadTypes"`
}

// TruckMetric holds the values sent to the routing provider.
type TruckMetric struct {
	MaxSpeedKPH  int      `json:"maxSpeedKph"`
	WeightKg     int      `json:"weightKg"`
	AxleWeightKg int      `json:"axleWeightKg"`
	LengthM      float64  `json:"lengthM"`
	WidthM       float64  `json:"widthM"`
	HeightM      float64  `json:"heightM"`
	Commercial   bool     `json:"commercial"`
	LoadTypes    []string `json:"loadTypes"`
}

// Enums represents the enum values used by the API.
type Enums struct {
	RouteStatuses  []string `json:"routeStatuses"`
	MetricsSources []string `json:"metricsSources"`
	GeocodeKinds   []string `json:"geocodeKinds"`
}
