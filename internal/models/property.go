package models

import (
	"fmt"
	"slices"
	"time"

	"propertyfinder/server/internal/geometry"
)

type PropertyType int

const (
	House PropertyType = iota + 1
	Townhouse
	Apartment
	Studio
)

func (t PropertyType) String() string {
	switch t {
	case House:
		return "House"
	case Townhouse:
		return "Townhouse"
	case Apartment:
		return "Apartment"
	case Studio:
		return "Studio"
	default:
		return "unknown"
	}
}

func (t PropertyType) Valid() bool {
	return t >= House && t <= Studio
}

// Choice sets for the categorical attributes
var (
	CarSpaceChoices     = []int{0, 1, 2, 3}
	BedroomChoices      = []int{1, 2, 3, 4}
	BathroomChoices     = []int{1, 2, 3, 4}
	PropertyTypeChoices = []PropertyType{House, Townhouse, Apartment, Studio}
)

const (
	DefaultCarSpaces    = 1
	DefaultBedrooms     = 3
	DefaultBathrooms    = 2
	DefaultPropertyType = House
)

// Property is a real-estate listing. The point and nearest amenity fields are
// derived by enrichment and never edited directly.
type Property struct {
	ID           int64        `json:"id" gorm:"primaryKey"`
	Address      string       `json:"address" gorm:"size:200;not null"`
	Description  string       `json:"description" gorm:"type:text"`
	CarSpaces    int          `json:"car_spaces" gorm:"index"`
	Bedrooms     int          `json:"bedrooms" gorm:"index"`
	Bathrooms    int          `json:"bathrooms" gorm:"index"`
	PropertyType PropertyType `json:"property_type" gorm:"index"`

	NearestSchool               *string  `json:"nearest_school" gorm:"size:1000"`
	NearestSchoolDistance       *float64 `json:"nearest_school_distance"`
	NearestTrainStation         *string  `json:"nearest_train_station" gorm:"size:1000"`
	NearestTrainStationDistance *float64 `json:"nearest_train_station_distance"`

	Latitude  *float64 `json:"latitude" gorm:"uniqueIndex:ux_properties_point"`
	Longitude *float64 `json:"longitude" gorm:"uniqueIndex:ux_properties_point"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Property) String() string {
	return p.Address
}

// NewProperty returns a record with the default choice values.
func NewProperty(address string) *Property {
	return &Property{
		Address:      address,
		CarSpaces:    DefaultCarSpaces,
		Bedrooms:     DefaultBedrooms,
		Bathrooms:    DefaultBathrooms,
		PropertyType: DefaultPropertyType,
	}
}

// Point returns the stored location, or nil when the record has none.
func (p *Property) Point() *geometry.Coordinate {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return &geometry.Coordinate{Lat: *p.Latitude, Lng: *p.Longitude}
}

func (p *Property) SetPoint(c geometry.Coordinate) {
	lat, lng := c.Lat, c.Lng
	p.Latitude = &lat
	p.Longitude = &lng
}

// Validate checks the categorical attributes against their choice sets.
func (p *Property) Validate() error {
	if p.Address == "" {
		return fmt.Errorf("address is required")
	}
	if len(p.Address) > 200 {
		return fmt.Errorf("address must be at most 200 characters")
	}
	if !slices.Contains(CarSpaceChoices, p.CarSpaces) {
		return fmt.Errorf("car_spaces must be one of %v", CarSpaceChoices)
	}
	if !slices.Contains(BedroomChoices, p.Bedrooms) {
		return fmt.Errorf("bedrooms must be one of %v", BedroomChoices)
	}
	if !slices.Contains(BathroomChoices, p.Bathrooms) {
		return fmt.Errorf("bathrooms must be one of %v", BathroomChoices)
	}
	if !p.PropertyType.Valid() {
		return fmt.Errorf("property_type must be one of %v", PropertyTypeChoices)
	}
	return nil
}
