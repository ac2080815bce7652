// Package polyline encodes and decodes route geometry with Google's polyline algorithm.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
//
// Points are ordered {lng, lat} to match the GeoJSON order used by the map frontend, but the
// encoded form keeps the standard latitude-first pair order so any polyline decoder can read it.
package polyline

import (
	"errors"
	"math"
)

// DefaultPrecision is the number of decimal places kept by Encode and Decode (about 1.1 m).
const DefaultPrecision = 5

// ErrTruncated is returned when an encoded string ends in the middle of a value.
var ErrTruncated = errors.New("polyline: truncated input")

// Point is a geographic position.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Encode encodes points with DefaultPrecision.
func Encode(points []Point) string {
	return EncodePrecision(points, DefaultPrecision)
}

// EncodePrecision encodes points keeping the given number of decimal places.
func EncodePrecision(points []Point, precision int) string {
	if len(points) == 0 {
		return ""
	}

	factor := math.Pow(10, float64(precision))
	buf := make([]byte, 0, len(points)*8)
	var prevLat, prevLng int64

	for _, p := range points {
		lat := int64(math.Round(p.Lat * factor))
		lng := int64(math.Round(p.Lng * factor))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return string(buf)
}

// Decode decodes a string produced with DefaultPrecision.
func Decode(encoded string) ([]Point, error) {
	return DecodePrecision(encoded, DefaultPrecision)
}

// DecodePrecision decodes a string produced with the given precision.
func DecodePrecision(encoded string, precision int) ([]Point, error) {
	if encoded == "" {
		return nil, nil
	}

	factor := math.Pow(10, float64(precision))
	points := make([]Point, 0, len(encoded)/4)
	var lat, lng int64

	for i := 0; i < len(encoded); {
		dLat, next, err := readValue(encoded, i)
		if err != nil {
			return nil, err
		}
		dLng, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		i = next

		lat += dLat
		lng += dLng
		points = append(points, Point{
			Lng: float64(lng) / factor,
			Lat: float64(lat) / factor,
		})
	}

	return points, nil
}

// appendValue zig-zag encodes v in 5-bit chunks.
func appendValue(buf []byte, v int64) []byte {
	u := uint64(v << 1)
	if v < 0 {
		u = ^u
	}

	for u >= 0x20 {
		buf = append(buf, byte(0x20|(u&0x1f))+63)
		u >>= 5
	}
	return append(buf, byte(u)+63)
}

// readValue reads one value starting at index i and returns it with the next index.
func readValue(encoded string, i int) (int64, int, error) {
	var result uint64
	var shift uint

	for {
		if i >= len(encoded) {
			return 0, i, ErrTruncated
		}
		b := uint64(encoded[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^int64(result >> 1), i, nil
	}
	return int64(result >> 1), i, nil
}
