package listing

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"propertyfinder/server/internal/database"
	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/models"
)

// Query string parameter names
const (
	ParamNorthEast           = "ne"
	ParamSouthWest           = "sw"
	ParamMinBedrooms         = "min-bedrooms"
	ParamMaxBedrooms         = "max-bedrooms"
	ParamMinBathrooms        = "min-bathrooms"
	ParamMinCarSpaces        = "min-car-spaces"
	ParamPropertyTypes       = "property-types"
	ParamNearestSchool       = "nearest-school"
	ParamNearestTrainStation = "nearest-train-station"
)

// DisabledDistance is the raw slider value that switches a distance filter
// off. Only this exact text does; "01" is position 1 with the filter on.
const DisabledDistance = "1"

var ErrMissingParam = errors.New("missing required parameter")

// ParamError reports a missing or malformed query parameter.
type ParamError struct {
	Param string
	Err   error
}

func (e *ParamError) Error() string {
	if errors.Is(e.Err, ErrMissingParam) {
		return fmt.Sprintf("%v: %s", e.Err, e.Param)
	}
	return fmt.Sprintf("invalid %s parameter: %v", e.Param, e.Err)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

// Criteria is one map filter request.
type Criteria struct {
	NorthEast     geometry.Coordinate
	SouthWest     geometry.Coordinate
	MinBedrooms   int
	MaxBedrooms   int
	MinBathrooms  int
	MinCarSpaces  int
	PropertyTypes []models.PropertyType
	// Slider positions, nil when the slider sent DisabledDistance.
	NearestSchool       *int
	NearestTrainStation *int
}

// ParseCriteria reads every filter parameter from the query string. All of
// them are required and no defaults are substituted.
func ParseCriteria(values url.Values) (Criteria, error) {
	var c Criteria
	var err error

	if c.NorthEast, err = coordinateParam(values, ParamNorthEast); err != nil {
		return Criteria{}, err
	}
	if c.SouthWest, err = coordinateParam(values, ParamSouthWest); err != nil {
		return Criteria{}, err
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{ParamMinBedrooms, &c.MinBedrooms},
		{ParamMaxBedrooms, &c.MaxBedrooms},
		{ParamMinBathrooms, &c.MinBathrooms},
		{ParamMinCarSpaces, &c.MinCarSpaces},
	}
	for _, p := range ints {
		if *p.dst, err = intParam(values, p.name); err != nil {
			return Criteria{}, err
		}
	}

	if c.NearestSchool, err = sliderParam(values, ParamNearestSchool); err != nil {
		return Criteria{}, err
	}
	if c.NearestTrainStation, err = sliderParam(values, ParamNearestTrainStation); err != nil {
		return Criteria{}, err
	}

	if c.PropertyTypes, err = propertyTypesParam(values); err != nil {
		return Criteria{}, err
	}

	return c, nil
}

// Box is the bounding box spanned by the two corners.
func (c Criteria) Box() geometry.BoundingBox {
	return geometry.BoundingBox{NorthEast: c.NorthEast, SouthWest: c.SouthWest}
}

// DistanceLimits maps the slider positions to strict upper bounds in km.
// A disabled slider gives nil; any other position v allows distances
// strictly below v-1.
func (c Criteria) DistanceLimits() (school, trainStation *float64) {
	return distanceLimit(c.NearestSchool), distanceLimit(c.NearestTrainStation)
}

func distanceLimit(slider *int) *float64 {
	if slider == nil {
		return nil
	}
	limit := float64(*slider - 1)
	return &limit
}

// ToQuery translates the criteria into the store query.
func (c Criteria) ToQuery() database.ListingQuery {
	school, station := c.DistanceLimits()

	types := make([]models.PropertyType, len(c.PropertyTypes))
	copy(types, c.PropertyTypes)

	return database.ListingQuery{
		Box:                       c.Box(),
		MinBedrooms:               intPtr(c.MinBedrooms),
		MaxBedrooms:               intPtr(c.MaxBedrooms),
		MinBathrooms:              intPtr(c.MinBathrooms),
		MinCarSpaces:              intPtr(c.MinCarSpaces),
		PropertyTypes:             types,
		SchoolDistanceBelow:       school,
		TrainStationDistanceBelow: station,
	}
}

func intPtr(v int) *int {
	return &v
}

func rawParam(values url.Values, name string) (string, error) {
	if _, ok := values[name]; !ok {
		return "", &ParamError{Param: name, Err: ErrMissingParam}
	}
	return values.Get(name), nil
}

func coordinateParam(values url.Values, name string) (geometry.Coordinate, error) {
	raw, err := rawParam(values, name)
	if err != nil {
		return geometry.Coordinate{}, err
	}
	c, err := geometry.ParseCoordinate(raw)
	if err != nil {
		return geometry.Coordinate{}, &ParamError{Param: name, Err: err}
	}
	return c, nil
}

func intParam(values url.Values, name string) (int, error) {
	raw, err := rawParam(values, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ParamError{Param: name, Err: err}
	}
	return v, nil
}

// The sentinel is matched on the raw text before any parsing.
func sliderParam(values url.Values, name string) (*int, error) {
	raw, err := rawParam(values, name)
	if err != nil {
		return nil, err
	}
	if raw == DisabledDistance {
		return nil, nil
	}
	v, err := intParam(values, name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// An empty value is an empty set, which matches nothing.
func propertyTypesParam(values url.Values) ([]models.PropertyType, error) {
	raw, err := rawParam(values, ParamPropertyTypes)
	if err != nil {
		return nil, err
	}

	types := []models.PropertyType{}
	if strings.TrimSpace(raw) == "" {
		return types, nil
	}
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, &ParamError{Param: ParamPropertyTypes, Err: err}
		}
		types = append(types, models.PropertyType(v))
	}
	return types, nil
}
