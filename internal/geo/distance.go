// Package geo implements the great-circle math behind proximity search.
package geo

import (
	"math"

	"github.com/haulpoint/shopbot-go/internal/model"
)

// EarthRadiusMiles is the mean earth radius in statute miles.
const EarthRadiusMiles = 3958.7613

// Miles returns the haversine great-circle distance between two points.
func Miles(a, b model.Coordinates) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLng*sinLng
	return 2 * EarthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

// WithinRadius reports whether distance falls inside radius. The boundary is
// inclusive: a shop exactly at the radius is a match.
func WithinRadius(distance, radius float64) bool {
	return distance <= radius
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
