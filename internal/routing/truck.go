package routing

import (
	"os"
	"strconv"
	"strings"

	"github.com/haulplan/haulplan/pkg/units"
)

// TruckSpec describes the vehicle in the imperial units drivers work with.
type TruckSpec struct {
	MaxSpeedMPH    float64  `json:"maxSpeedMph"`
	GrossWeightLbs float64  `json:"grossWeightLbs"`
	AxleWeightLbs  float64  `json:"axleWeightLbs"`
	LengthFt       float64  `json:"lengthFt"`
	WidthFt        float64  `json:"widthFt"`
	HeightFt       float64  `json:"heightFt"`
	Commercial     bool     `json:"commercial"`
	LoadTypes      []string `json:"loadTypes"`
}

// DefaultTruckSpec is a standard US 53' tractor-trailer at the federal weight limit.
func DefaultTruckSpec() TruckSpec {
	return TruckSpec{
		MaxSpeedMPH:    65,
		GrossWeightLbs: 80000,
		AxleWeightLbs:  34000,
		LengthFt:       65,
		WidthFt:        8.5,
		HeightFt:       13.5,
		Commercial:     true,
		LoadTypes:      []string{},
	}
}

// TruckSpecFromEnv overrides DefaultTruckSpec with TRUCK_* variables. Unparseable values
// keep the default.
func TruckSpecFromEnv() TruckSpec {
	spec := DefaultTruckSpec()
	spec.MaxSpeedMPH = getEnvFloat("TRUCK_MAX_SPEED_MPH", spec.MaxSpeedMPH)
	spec.GrossWeightLbs = getEnvFloat("TRUCK_GROSS_WEIGHT_LBS", spec.GrossWeightLbs)
	spec.AxleWeightLbs = getEnvFloat("TRUCK_AXLE_WEIGHT_LBS", spec.AxleWeightLbs)
	spec.LengthFt = getEnvFloat("TRUCK_LENGTH_FT", spec.LengthFt)
	spec.WidthFt = getEnvFloat("TRUCK_WIDTH_FT", spec.WidthFt)
	spec.HeightFt = getEnvFloat("TRUCK_HEIGHT_FT", spec.HeightFt)
	if v := os.Getenv("TRUCK_COMMERCIAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			spec.Commercial = b
		}
	}
	if v := os.Getenv("TRUCK_LOAD_TYPES"); v != "" {
		spec.LoadTypes = spec.LoadTypes[:0]
		for _, lt := range strings.Split(v, ",") {
			if lt = strings.TrimSpace(lt); lt != "" {
				spec.LoadTypes = append(spec.LoadTypes, lt)
			}
		}
	}
	return spec
}

// Vehicle converts s to the metric parameters the provider expects.
func (s TruckSpec) Vehicle() Vehicle {
	return Vehicle{
		MaxSpeedKPH:  units.MPHToKPH(s.MaxSpeedMPH),
		WeightKg:     units.PoundsToKilograms(s.GrossWeightLbs),
		AxleWeightKg: units.PoundsToKilograms(s.AxleWeightLbs),
		LengthM:      units.FeetToMeters(s.LengthFt),
		WidthM:       units.FeetToMeters(s.WidthFt),
		HeightM:      units.FeetToMeters(s.HeightFt),
		Commercial:   s.Commercial,
		LoadTypes:    append([]string(nil), s.LoadTypes...),
	}
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}
