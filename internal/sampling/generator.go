package sampling

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"propertyfinder/server/internal/enrichment"
	"propertyfinder/server/internal/geocoding"
	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/models"
)

// Half-widths of the sampling window at i = 1, in degrees. The window shrinks
// as 1/i so later draws land closer to the center.
const (
	LatStep = 3.0
	LngStep = 5.0
)

const Description = `
Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut
labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco
laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in
voluptate velit esse cillum dolore eu fugiat nulla pariatur. Excepteur sint occaecat cupidatat
non proident, sunt in culpa qui officia deserunt mollit anim id est laborum.
`

// Writer persists a generated batch, optionally replacing every stored record.
type Writer interface {
	WriteBatch(ctx context.Context, batch []*models.Property, replaceExisting bool) error
}

// Generator seeds the store with random real addresses around a center point.
type Generator struct {
	client   geocoding.Client
	enricher *enrichment.Enricher
	writer   Writer
	rng      *rand.Rand
	logger   *logrus.Logger
}

func NewGenerator(client geocoding.Client, enricher *enrichment.Enricher, writer Writer, rng *rand.Rand, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Generator{
		client:   client,
		enricher: enricher,
		writer:   writer,
		rng:      rng,
		logger:   logger,
	}
}

// Generate draws count random coordinates, keeps the ones that reverse
// geocode to a new postal address and inserts them in one batch. It returns
// the number of records inserted.
func (g *Generator) Generate(ctx context.Context, count int, center geometry.Coordinate, replaceExisting bool) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("count must not be negative, got %d", count)
	}

	properties := make([]*models.Property, 0, count)
	seen := make(map[string]struct{})

	for i := count + 1; i > 1; i-- {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		location := g.randomCoordinate(center, i)
		results, err := g.client.ReverseGeocode(ctx, location)
		if err != nil {
			g.logger.WithError(err).WithField("location", location.String()).Error("Reverse geocoding failed")
			continue
		}
		if len(results) == 0 {
			g.logger.WithField("location", location.String()).Warn("No address at location")
			continue
		}

		address := results[0].FormattedAddress
		if !isPostalAddress(address) {
			g.logger.WithField("address", address).Info("Skipping non-postal address")
			continue
		}
		if _, ok := seen[address]; ok {
			g.logger.WithField("address", address).Info("Skipping duplicate address")
			continue
		}
		seen[address] = struct{}{}

		p := g.newProperty(address)
		point := results[0].Location
		if _, err := g.enricher.Enrich(ctx, p, &point); err != nil {
			var lookupErr *enrichment.LookupError
			if !errors.As(err, &lookupErr) {
				g.logger.WithError(err).WithField("address", address).Error("Enrichment failed")
				continue
			}
			g.logger.WithError(err).WithField("address", address).Warn("Keeping property with partial enrichment")
		}

		properties = append(properties, p)
		g.logger.WithField("address", address).Info("Resolved address")
	}

	if err := g.writer.WriteBatch(ctx, properties, replaceExisting); err != nil {
		return 0, err
	}
	return len(properties), nil
}

func (g *Generator) randomCoordinate(center geometry.Coordinate, i int) geometry.Coordinate {
	latSpan := LatStep / float64(i)
	lngSpan := LngStep / float64(i)
	return geometry.Coordinate{
		Lat: center.Lat - latSpan + g.rng.Float64()*2*latSpan,
		Lng: center.Lng - lngSpan + g.rng.Float64()*2*lngSpan,
	}
}

func (g *Generator) newProperty(address string) *models.Property {
	p := models.NewProperty(address)
	p.Description = Description
	p.Bedrooms = models.BedroomChoices[g.rng.Intn(len(models.BedroomChoices))]
	p.Bathrooms = models.BathroomChoices[g.rng.Intn(len(models.BathroomChoices))]
	p.CarSpaces = models.CarSpaceChoices[g.rng.Intn(len(models.CarSpaceChoices))]
	p.PropertyType = models.PropertyTypeChoices[g.rng.Intn(len(models.PropertyTypeChoices))]
	return p
}

// Reverse geocoding also returns landmarks and areas; street addresses start
// with a number.
func isPostalAddress(address string) bool {
	r, _ := utf8.DecodeRuneInString(address)
	return r != utf8.RuneError && unicode.IsDigit(r)
}
