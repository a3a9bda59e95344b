package geometry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Coordinate is a WGS84 latitude/longitude pair
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseCoordinate parses the "lat,lng" form used by query strings and the
// populate command.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: expected \"lat,lng\"", s)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q", s)
	}

	return Coordinate{Lat: lat, Lng: lng}, nil
}

func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Point returns the coordinate in orb (lng, lat) order.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

// DistanceKm is the great-circle distance between a and b in kilometres.
func DistanceKm(a, b Coordinate) float64 {
	return geo.DistanceHaversine(a.Point(), b.Point()) / 1000
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BoundingBox is the rectangle spanned by two opposite map corners.
type BoundingBox struct {
	NorthEast Coordinate
	SouthWest Coordinate
}

// Bound normalises the corners so Min <= Max on both axes.
func (b BoundingBox) Bound() orb.Bound {
	return orb.MultiPoint{b.SouthWest.Point(), b.NorthEast.Point()}.Bound()
}

func (b BoundingBox) Polygon() orb.Polygon {
	return b.Bound().ToPolygon()
}

// Contains reports whether c lies inside the box polygon. Points on the
// boundary are inside.
func (b BoundingBox) Contains(c Coordinate) bool {
	return planar.PolygonContains(b.Polygon(), c.Point())
}

// Centroid returns the centroid of the given coordinates and false when
// there are none.
func Centroid(coords []Coordinate) (Coordinate, bool) {
	if len(coords) == 0 {
		return Coordinate{}, false
	}
	mp := make(orb.MultiPoint, len(coords))
	for i, c := range coords {
		mp[i] = c.Point()
	}
	center, _ := planar.CentroidArea(mp)
	return FromPoint(center), true
}
