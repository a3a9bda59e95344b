package config

// MapCenter is a map centre used when no listing has a location yet
type MapCenter struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const MapTitle = "Property Finder"

// DefaultMapCenter is central Sydney
var DefaultMapCenter = MapCenter{Lat: -33.864869, Lng: 151.1959212}

// DistanceRange bounds the nearest school / train station sliders.
// The lowest position means "no limit".
var DistanceRange = [2]int{1, 21}
