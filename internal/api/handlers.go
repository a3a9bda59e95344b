package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"propertyfinder/server/internal/database"
	"propertyfinder/server/internal/enrichment"
	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/listing"
	"propertyfinder/server/internal/models"
)

// Store is the persistence the handlers need.
type Store interface {
	listing.Store
	CreateProperty(ctx context.Context, p *models.Property) error
	SaveProperty(ctx context.Context, p *models.Property) error
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
	ListProperties(ctx context.Context, f database.ListFilter) ([]models.Property, error)
	DeleteProperties(ctx context.Context, ids []int64) (int64, error)
	DeleteAllProperties(ctx context.Context) (int64, error)
	Points(ctx context.Context) ([]geometry.Coordinate, error)
}

type Handler struct {
	store    Store
	enricher *enrichment.Enricher
	webKey   string
	logger   *logrus.Logger
}

// PropertyRequest is the editable part of a property. Location and nearest
// amenity fields are derived and cannot be set.
type PropertyRequest struct {
	Address      *string              `json:"address"`
	Description  *string              `json:"description"`
	CarSpaces    *int                 `json:"car_spaces"`
	Bedrooms     *int                 `json:"bedrooms"`
	Bathrooms    *int                 `json:"bathrooms"`
	PropertyType *models.PropertyType `json:"property_type"`
}

// PropertyResponse is a stored property plus any enrichment problems.
type PropertyResponse struct {
	*models.Property
	Errors []string `json:"errors,omitempty"`
}

type DeleteRequest struct {
	IDs []int64 `json:"ids"`
	All bool    `json:"all"`
}

func NewHandler(store Store, enricher *enrichment.Enricher, webKey string, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		store:    store,
		enricher: enricher,
		webKey:   webKey,
		logger:   logger,
	}
}

func (r PropertyRequest) apply(p *models.Property) {
	if r.Address != nil {
		p.Address = *r.Address
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.CarSpaces != nil {
		p.CarSpaces = *r.CarSpaces
	}
	if r.Bedrooms != nil {
		p.Bedrooms = *r.Bedrooms
	}
	if r.Bathrooms != nil {
		p.Bathrooms = *r.Bathrooms
	}
	if r.PropertyType != nil {
		p.PropertyType = *r.PropertyType
	}
}

func (h *Handler) ListProperties(c *gin.Context) {
	filter := database.ListFilter{Search: c.Query("q")}

	ints := []struct {
		name string
		dst  **int
	}{
		{"bedrooms", &filter.Bedrooms},
		{"bathrooms", &filter.Bathrooms},
		{"car_spaces", &filter.CarSpaces},
	}
	for _, p := range ints {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + p.name + " filter"})
			return
		}
		*p.dst = &v
	}
	if raw := c.Query("property_type"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property_type filter"})
			return
		}
		pt := models.PropertyType(v)
		filter.PropertyType = &pt
	}

	properties, err := h.store.ListProperties(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list properties"})
		return
	}

	c.JSON(http.StatusOK, properties)
}

func (h *Handler) GetProperty(c *gin.Context) {
	id, ok := h.propertyID(c)
	if !ok {
		return
	}

	p, err := h.store.GetProperty(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("id", id).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}

	c.JSON(http.StatusOK, p)
}

// CreateProperty saves a new property, then resolves its address.
func (h *Handler) CreateProperty(c *gin.Context) {
	var req PropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Address == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	p := models.NewProperty(*req.Address)
	req.apply(p)
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.CreateProperty(ctx, p); err != nil {
		h.logger.WithError(err).Error("Failed to create property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create property"})
		return
	}

	resp, err := h.enrichAndSave(ctx, p)
	if err != nil {
		h.logger.WithError(err).WithField("id", p.ID).Error("Failed to save enriched property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save property"})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// UpdateProperty saves the editable fields and re-resolves the location when
// the address changed.
func (h *Handler) UpdateProperty(c *gin.Context) {
	id, ok := h.propertyID(c)
	if !ok {
		return
	}

	var req PropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	p, err := h.store.GetProperty(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("id", id).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}

	previousAddress := p.Address
	req.apply(p)
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SaveProperty(ctx, p); err != nil {
		h.logger.WithError(err).WithField("id", id).Error("Failed to update property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update property"})
		return
	}

	if p.Address == previousAddress {
		c.JSON(http.StatusOK, PropertyResponse{Property: p})
		return
	}

	resp, err := h.enrichAndSave(ctx, p)
	if err != nil {
		h.logger.WithError(err).WithField("id", id).Error("Failed to save enriched property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save property"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// enrichAndSave runs enrichment on an already stored property. Enrichment
// problems are reported in the response and never undo the stored fields.
func (h *Handler) enrichAndSave(ctx context.Context, p *models.Property) (*PropertyResponse, error) {
	resp := &PropertyResponse{Property: p}
	log := h.logger.WithField("id", p.ID)

	_, err := h.enricher.Enrich(ctx, p, nil)

	var resErr *enrichment.ResolutionError
	if errors.As(err, &resErr) {
		log.WithError(err).Warn("Address could not be resolved")
		resp.Errors = append(resp.Errors, resErr.Error())
		return resp, nil
	}

	var lookupErr *enrichment.LookupError
	if errors.As(err, &lookupErr) {
		log.WithError(err).Warn("Some nearby lookups failed")
		for _, f := range lookupErr.Failures {
			resp.Errors = append(resp.Errors, f.Error())
		}
	} else if err != nil {
		return nil, err
	}

	if err := h.store.SaveProperty(ctx, p); err != nil {
		if !errors.Is(err, database.ErrDuplicatePoint) {
			return nil, err
		}
		log.WithError(err).Warn("Resolved location is already taken")
		resp.Errors = append(resp.Errors, database.ErrDuplicatePoint.Error())

		stored, getErr := h.store.GetProperty(ctx, p.ID)
		if getErr != nil {
			return nil, getErr
		}
		resp.Property = stored
	}

	return resp, nil
}

// DeleteProperties removes the listed ids, or everything when "all" is set.
func (h *Handler) DeleteProperties(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !req.All && len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids or all is required"})
		return
	}

	var (
		deleted int64
		err     error
	)
	if req.All {
		deleted, err = h.store.DeleteAllProperties(c.Request.Context())
	} else {
		deleted, err = h.store.DeleteProperties(c.Request.Context(), req.IDs)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete properties"})
		return
	}

	h.logger.WithField("deleted", deleted).Info("Deleted properties")
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) propertyID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
