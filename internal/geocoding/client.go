package geocoding

import (
	"context"

	"propertyfinder/server/internal/geometry"
)

// Category is a place type understood by the nearby search
type Category string

const (
	CategorySchool       Category = "school"
	CategoryTrainStation Category = "train_station"
)

// GeocodeResult is one candidate returned by forward or reverse geocoding
type GeocodeResult struct {
	FormattedAddress string              `json:"formatted_address"`
	Location         geometry.Coordinate `json:"location"`
}

// Place is a point of interest returned by a nearby search
type Place struct {
	Name     string              `json:"name"`
	Location geometry.Coordinate `json:"location"`
}

// Client looks up addresses and places with a mapping provider. An empty
// result slice is a valid answer and never an error.
type Client interface {
	Geocode(ctx context.Context, address string) ([]GeocodeResult, error)
	ReverseGeocode(ctx context.Context, location geometry.Coordinate) ([]GeocodeResult, error)
	// NearbyPlaces returns places of the category ordered by distance from location.
	NearbyPlaces(ctx context.Context, location geometry.Coordinate, category Category) ([]Place, error)
}
