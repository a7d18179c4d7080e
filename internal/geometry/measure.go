// Package geometry measures yard zones drawn as [lat, lon] polygons.
package geometry

import (
	"math"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

const (
	// EarthRadius is the WGS84 equatorial radius in metres.
	EarthRadius = 6378137.0

	// SquareFeetPerSquareMetre is the conversion the dashboard uses for
	// zone capacity.
	SquareFeetPerSquareMetre = 10.764
)

// Measurements of a polygon, in metres and square metres.
type Measurements struct {
	AreaM2     float64 `json:"area_m2"`
	PerimeterM float64 `json:"perimeter_m"`
	WidthM     float64 `json:"width_m"`  // east-west extent of the bounding box
	LengthM    float64 `json:"length_m"` // north-south extent of the bounding box
}

// Measure computes the geodesic area, perimeter and bounding extents of a
// polygon. The ring may be open or closed. Fewer than three points have no
// area; fewer than two have no perimeter.
func Measure(polygon []model.Point) Measurements {
	ring := openRing(polygon)

	var m Measurements
	if len(ring) >= 2 {
		m.PerimeterM = perimeter(ring)
		m.WidthM, m.LengthM = extents(ring)
	}
	if len(ring) >= 3 {
		m.AreaM2 = ringArea(ring)
	}
	return m
}

// SquareFeet converts square metres to whole square feet.
func SquareFeet(m2 float64) float64 {
	return math.Round(m2 * SquareFeetPerSquareMetre)
}

// openRing drops a closing point equal to the first.
func openRing(polygon []model.Point) []model.Point {
	n := len(polygon)
	if n > 1 && polygon[0] == polygon[n-1] {
		return polygon[:n-1]
	}
	return polygon
}

// ringArea is the spherical excess of the ring on a sphere of EarthRadius.
func ringArea(ring []model.Point) float64 {
	n := len(ring)
	var total float64
	for i := 0; i < n; i++ {
		p1 := ring[i]
		p2 := ring[(i+1)%n]
		lon1, lon2 := radians(p1[1]), radians(p2[1])
		lat1, lat2 := radians(p1[0]), radians(p2[0])
		total += (lon2 - lon1) * (2 + math.Sin(lat1) + math.Sin(lat2))
	}
	return math.Abs(total * EarthRadius * EarthRadius / 2)
}

func perimeter(ring []model.Point) float64 {
	n := len(ring)
	if n == 2 {
		return Distance(ring[0], ring[1])
	}
	var total float64
	for i := 0; i < n; i++ {
		total += Distance(ring[i], ring[(i+1)%n])
	}
	return total
}

func extents(ring []model.Point) (width, length float64) {
	minLat, maxLat := ring[0][0], ring[0][0]
	minLon, maxLon := ring[0][1], ring[0][1]
	for _, p := range ring[1:] {
		minLat = math.Min(minLat, p[0])
		maxLat = math.Max(maxLat, p[0])
		minLon = math.Min(minLon, p[1])
		maxLon = math.Max(maxLon, p[1])
	}
	midLat := (minLat + maxLat) / 2
	width = Distance(model.Point{midLat, minLon}, model.Point{midLat, maxLon})
	length = Distance(model.Point{minLat, minLon}, model.Point{maxLat, minLon})
	return width, length
}

// Distance is the haversine distance between two [lat, lon] points in metres.
func Distance(a, b model.Point) float64 {
	lat1, lat2 := radians(a[0]), radians(b[0])
	dLat := lat2 - lat1
	dLon := radians(b[1] - a[1])

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
