package enrichment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"propertyfinder/server/internal/geocoding"
	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/models"
)

var ErrUnresolvedAddress = errors.New("unable to resolve the address")

// Categories are looked up in this order.
var Categories = []geocoding.Category{
	geocoding.CategorySchool,
	geocoding.CategoryTrainStation,
}

// ResolutionError means the address could not be turned into a location.
type ResolutionError struct {
	Address string
	Err     error
}

func (e *ResolutionError) Error() string {
	if errors.Is(e.Err, ErrUnresolvedAddress) {
		return fmt.Sprintf("Unable to resolve the address: '%s'", e.Address)
	}
	return fmt.Sprintf("Unable to resolve the address: '%s': %v", e.Address, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// CategoryFailure is a failed nearby lookup for one category.
type CategoryFailure struct {
	Category geocoding.Category
	Err      error
}

func (f CategoryFailure) Error() string {
	return fmt.Sprintf("nearest %s lookup failed: %v", f.Category, f.Err)
}

func (f CategoryFailure) Unwrap() error {
	return f.Err
}

// LookupError aggregates the category lookups that failed after the location
// was resolved. The categories that succeeded are already set on the record.
type LookupError struct {
	Failures []CategoryFailure
}

func (e *LookupError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *LookupError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Amenity is the nearest place found for a category.
type Amenity struct {
	Name       string
	DistanceKm float64
}

// Result describes what an enrichment run found.
type Result struct {
	Point     geometry.Coordinate
	Amenities map[geocoding.Category]Amenity
	Failures  []CategoryFailure
}

// Enricher resolves a property's location and its nearest amenities.
type Enricher struct {
	client geocoding.Client
	logger *logrus.Logger
}

func NewEnricher(client geocoding.Client, logger *logrus.Logger) *Enricher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Enricher{client: client, logger: logger}
}

// Enrich sets the point and nearest school / train station fields of p in
// place. When known is nil the address is geocoded first and a
// *ResolutionError is returned if that fails. Failed category lookups do not
// stop the others; they are reported together as a *LookupError alongside
// the partial result. The caller persists p.
func (e *Enricher) Enrich(ctx context.Context, p *models.Property, known *geometry.Coordinate) (*Result, error) {
	log := e.logger.WithField("address", p.Address)

	var point geometry.Coordinate
	if known != nil {
		point = *known
	} else {
		results, err := e.client.Geocode(ctx, p.Address)
		if err != nil {
			log.WithError(err).Warn("Geocoding failed")
			return nil, &ResolutionError{Address: p.Address, Err: err}
		}
		if len(results) == 0 {
			log.Warn("No geocoding results for address")
			return nil, &ResolutionError{Address: p.Address, Err: ErrUnresolvedAddress}
		}
		point = results[0].Location
	}
	p.SetPoint(point)

	result := &Result{
		Point:     point,
		Amenities: make(map[geocoding.Category]Amenity),
	}

	for _, category := range Categories {
		places, err := e.client.NearbyPlaces(ctx, point, category)
		if err != nil {
			log.WithError(err).WithField("category", category).Warn("Nearby lookup failed")
			result.Failures = append(result.Failures, CategoryFailure{Category: category, Err: err})
			continue
		}
		if len(places) == 0 {
			continue
		}

		nearest := places[0]
		amenity := Amenity{
			Name:       nearest.Name,
			DistanceKm: geometry.Round2(geometry.DistanceKm(point, nearest.Location)),
		}
		setAmenity(p, category, amenity)
		result.Amenities[category] = amenity
	}

	log.WithFields(logrus.Fields{
		"latitude":  point.Lat,
		"longitude": point.Lng,
		"amenities": len(result.Amenities),
		"failures":  len(result.Failures),
	}).Info("Enriched property")

	if len(result.Failures) > 0 {
		return result, &LookupError{Failures: result.Failures}
	}
	return result, nil
}

func setAmenity(p *models.Property, category geocoding.Category, a Amenity) {
	name, distance := a.Name, a.DistanceKm
	switch category {
	case geocoding.CategorySchool:
		p.NearestSchool = &name
		p.NearestSchoolDistance = &distance
	case geocoding.CategoryTrainStation:
		p.NearestTrainStation = &name
		p.NearestTrainStationDistance = &distance
	}
}
