// Package units converts the imperial truck and trip figures used by fleet staff into the metric
// values the routing provider expects, and provider metrics back into miles and minutes.
package units

import "math"

// Conversion factors.
const (
	KilogramsPerPound = 0.453592
	MetersPerFoot     = 0.3048
	KPHPerMPH         = 1.60934
	MilesPerMeter     = 0.000621371
	MilesPerKilometer = 0.621371
	secondsPerMinute  = 60
)

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// PoundsToKilograms converts a weight to whole kilograms.
func PoundsToKilograms(lb float64) int {
	return int(math.Round(lb * KilogramsPerPound))
}

// FeetToMeters converts a length to meters with one decimal.
func FeetToMeters(ft float64) float64 {
	return Round(ft*MetersPerFoot, 1)
}

// MPHToKPH converts a speed to whole kilometers per hour.
func MPHToKPH(mph float64) int {
	return int(math.Round(mph * KPHPerMPH))
}

// MetersToMiles converts a provider distance to miles with one decimal.
func MetersToMiles(m float64) float64 {
	return Round(m*MilesPerMeter, 1)
}

// KilometersToMiles converts the legacy kilometer distance field to miles with one decimal.
func KilometersToMiles(km float64) float64 {
	return Round(km*MilesPerKilometer, 1)
}

// SecondsToMinutes converts a provider travel time to whole minutes.
func SecondsToMinutes(s float64) int {
	return int(math.Round(s / secondsPerMinute))
}
