package utils

import (
	"math"
)

// DefaultAverageSpeedKmh is the assumed urban driving speed used for ETAs.
const DefaultAverageSpeedKmh = 30.0

const earthRadiusKm = 6371.0

// HaversineDistance calculates the great-circle distance between two points on Earth
// using the Haversine formula. Returns distance in kilometers.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}

	// Convert degrees to radians
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180

	dlat := (lat2 - lat1) * math.Pi / 180
	dlng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlng/2)*math.Sin(dlng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// CalculateETA estimates the minutes needed to cover distanceKm at averageSpeedKmh,
// rounded up. A non-positive speed falls back to DefaultAverageSpeedKmh.
func CalculateETA(distanceKm, averageSpeedKmh float64) int {
	if averageSpeedKmh <= 0 {
		averageSpeedKmh = DefaultAverageSpeedKmh
	}
	if distanceKm <= 0 {
		return 0
	}

	// tolerate float noise so an exact 5 km at 30 km/h stays 10 minutes
	return int(math.Ceil(distanceKm/averageSpeedKmh*60 - 1e-9))
}

// ValidCoordinates reports whether lat/lng are finite and inside the WGS84 range.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Destination returns the point reached by travelling distanceKm from (lat, lng)
// along the initial bearing (degrees clockwise from north). The service never
// calls it; it places fixes at known distances for tests and ride simulations.
func Destination(lat, lng, bearingDeg, distanceKm float64) (float64, float64) {
	latRad := lat * math.Pi / 180
	lngRad := lng * math.Pi / 180
	brng := bearingDeg * math.Pi / 180
	d := distanceKm / earthRadiusKm

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(d) + math.Cos(latRad)*math.Sin(d)*math.Cos(brng))
	lng2 := lngRad + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(latRad), math.Cos(d)-math.Sin(latRad)*math.Sin(lat2))

	return lat2 * 180 / math.Pi, lng2 * 180 / math.Pi
}
