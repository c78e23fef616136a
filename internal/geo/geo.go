// Package geo contains pure geographic computation helpers.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance in metres between two
// points specified in decimal degrees.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// LinearDecay returns 1 - value/span, floored at min. A value of zero yields 1
// and anything at or past span yields min.
func LinearDecay(value, span, min float64) float64 {
	if span <= 0 {
		return min
	}
	return math.Max(min, 1-value/span)
}

// OffsetMeters moves a point north and east by the given distances. It is a
// flat-earth approximation that is accurate to well under a metre for the
// sub-kilometre offsets it is used with.
func OffsetMeters(lat, lng, northM, eastM float64) (float64, float64) {
	dLat := northM / EarthRadiusMeters
	dLng := eastM / (EarthRadiusMeters * math.Cos(degreesToRadians(lat)))
	return lat + radiansToDegrees(dLat), lng + radiansToDegrees(dLng)
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func radiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
