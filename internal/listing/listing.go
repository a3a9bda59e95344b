package listing

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"propertyfinder/server/internal/database"
	"propertyfinder/server/internal/models"
)

// Store runs listing queries.
type Store interface {
	FindListings(ctx context.Context, q database.ListingQuery) ([]models.Property, error)
}

// Query returns the records matching the criteria.
func Query(ctx context.Context, store Store, c Criteria) ([]models.Property, error) {
	properties, err := store.FindListings(ctx, c.ToQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	return properties, nil
}

// FeatureCollection renders one point feature per record. Records without a
// point are left out.
func FeatureCollection(properties []models.Property) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range properties {
		p := &properties[i]
		point := p.Point()
		if point == nil {
			continue
		}

		f := geojson.NewFeature(point.Point())
		f.ID = p.ID
		f.Properties = featureProperties(p)
		fc.Append(f)
	}
	return fc
}

func featureProperties(p *models.Property) geojson.Properties {
	return geojson.Properties{
		"pk":                             p.ID,
		"address":                        p.Address,
		"description":                    p.Description,
		"car_spaces":                     p.CarSpaces,
		"bedrooms":                       p.Bedrooms,
		"bathrooms":                      p.Bathrooms,
		"property_type":                  int(p.PropertyType),
		"nearest_school":                 p.NearestSchool,
		"nearest_school_distance":        p.NearestSchoolDistance,
		"nearest_train_station":          p.NearestTrainStation,
		"nearest_train_station_distance": p.NearestTrainStationDistance,
	}
}
