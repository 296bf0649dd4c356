// Package geo provides the small amount of spherical geometry the
// aggregation and telemetry code needs: great-circle distance and
// bounding-box containment checks.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between
// two points given in decimal degrees.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// BoundingBox is a latitude/longitude rectangle. Min corners must be
// south/west of Max corners; boxes crossing the antimeridian are not
// supported.
type BoundingBox struct {
	MinLat float64 `yaml:"min_lat" json:"minLat"`
	MinLon float64 `yaml:"min_lon" json:"minLon"`
	MaxLat float64 `yaml:"max_lat" json:"maxLat"`
	MaxLon float64 `yaml:"max_lon" json:"maxLon"`
}

// Contains reports whether the point lies inside the box (borders included).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat &&
		lon >= b.MinLon && lon <= b.MaxLon
}

// Round truncates v to the given number of decimal places, rounding
// half away from zero. Fused coordinates and magnitudes are reported
// at fixed precision so re-fusing the same inputs yields identical output.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
