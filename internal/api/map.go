package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"propertyfinder/server/config"
	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/listing"
	"propertyfinder/server/internal/models"
)

// MapBootstrap is everything the map page needs before its first query.
type MapBootstrap struct {
	Center         geometry.Coordinate `json:"center"`
	Title          string              `json:"title"`
	APIKey         string              `json:"api_key"`
	PropertyTypes  [][2]interface{}    `json:"property_types"`
	DistanceRange  [2]int              `json:"distance_range"`
	BedroomsRange  [2]int              `json:"bedrooms_range"`
	BathroomsRange [2]int              `json:"bathrooms_range"`
	CarSpacesRange [2]int              `json:"car_spaces_range"`
}

// PropertiesGeoJSON serves the listings matching the map filters.
func (h *Handler) PropertiesGeoJSON(c *gin.Context) {
	criteria, err := listing.ParseCriteria(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	properties, err := listing.Query(c.Request.Context(), h.store, criteria)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query listings"})
		return
	}

	fc := listing.FeatureCollection(properties)
	body, err := fc.MarshalJSON()
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode listings"})
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// MapBootstrap centers the map on all stored points, or on the default
// center when there are none.
func (h *Handler) MapBootstrap(c *gin.Context) {
	points, err := h.store.Points(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load property points")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load map"})
		return
	}

	center, ok := geometry.Centroid(points)
	if !ok {
		center = geometry.Coordinate{Lat: config.DefaultMapCenter.Lat, Lng: config.DefaultMapCenter.Lng}
	}

	types := make([][2]interface{}, len(models.PropertyTypeChoices))
	for i, t := range models.PropertyTypeChoices {
		types[i] = [2]interface{}{int(t), t.String()}
	}

	// Every slider range follows the bedroom choices.
	sliders := [2]int{models.BedroomChoices[0], models.BedroomChoices[len(models.BedroomChoices)-1]}

	c.JSON(http.StatusOK, MapBootstrap{
		Center:         center,
		Title:          config.MapTitle,
		APIKey:         h.webKey,
		PropertyTypes:  types,
		DistanceRange:  config.DistanceRange,
		BedroomsRange:  sliders,
		BathroomsRange: sliders,
		CarSpacesRange: sliders,
	})
}
