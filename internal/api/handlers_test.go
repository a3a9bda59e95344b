package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"propertyfinder/server/internal/database"
	"propertyfinder/server/internal/enrichment"
	"propertyfinder/server/internal/geocoding"
	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/models"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Geocode(ctx context.Context, address string) ([]geocoding.GeocodeResult, error) {
	args := m.Called(ctx, address)
	results, _ := args.Get(0).([]geocoding.GeocodeResult)
	return results, args.Error(1)
}

func (m *MockClient) ReverseGeocode(ctx context.Context, location geometry.Coordinate) ([]geocoding.GeocodeResult, error) {
	args := m.Called(ctx, location)
	results, _ := args.Get(0).([]geocoding.GeocodeResult)
	return results, args.Error(1)
}

func (m *MockClient) NearbyPlaces(ctx context.Context, location geometry.Coordinate, category geocoding.Category) ([]geocoding.Place, error) {
	args := m.Called(ctx, location, category)
	places, _ := args.Get(0).([]geocoding.Place)
	return places, args.Error(1)
}

var (
	mainSt        = geometry.Coordinate{Lat: -33.86, Lng: 151.20}
	centralSchool = geometry.Coordinate{Lat: -33.87, Lng: 151.20}
)

type testServer struct {
	router *gin.Engine
	db     *database.Database
	client *MockClient
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "properties.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations())
	return db
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	client := &MockClient{}
	handler := NewHandler(db, enrichment.NewEnricher(client, logger), "web-key", logger)

	router := gin.New()
	SetupRoutes(router, handler, []string{"*"})

	return &testServer{router: router, db: db, client: client}
}

func (s *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seed(t *testing.T, address string, point *geometry.Coordinate, station *float64) *models.Property {
	t.Helper()
	p := models.NewProperty(address)
	if point != nil {
		p.SetPoint(*point)
	}
	if station != nil {
		name := "Station near " + address
		p.NearestTrainStation = &name
		p.NearestTrainStationDistance = station
	}
	require.NoError(t, s.db.CreateProperty(context.Background(), p))
	return p
}

type propertyBody struct {
	ID                          int64    `json:"id"`
	Address                     string   `json:"address"`
	Bedrooms                    int      `json:"bedrooms"`
	Latitude                    *float64 `json:"latitude"`
	Longitude                   *float64 `json:"longitude"`
	NearestSchool               *string  `json:"nearest_school"`
	NearestSchoolDistance       *float64 `json:"nearest_school_distance"`
	NearestTrainStation         *string  `json:"nearest_train_station"`
	NearestTrainStationDistance *float64 `json:"nearest_train_station_distance"`
	Errors                      []string `json:"errors"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func floatPtr(f float64) *float64 { return &f }

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreatePropertyEnriches(t *testing.T) {
	s := setupTestServer(t)
	s.client.On("Geocode", mock.Anything, "1 Main St").Return([]geocoding.GeocodeResult{{Location: mainSt}}, nil)
	s.client.On("NearbyPlaces", mock.Anything, mainSt, geocoding.CategorySchool).
		Return([]geocoding.Place{{Name: "Central School", Location: centralSchool}}, nil)
	s.client.On("NearbyPlaces", mock.Anything, mainSt, geocoding.CategoryTrainStation).
		Return([]geocoding.Place{}, nil)

	w := s.do(http.MethodPost, "/api/properties", map[string]interface{}{
		"address":  "1 Main St",
		"bedrooms": 4,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode[propertyBody](t, w)
	assert.Empty(t, body.Errors)
	assert.Equal(t, 4, body.Bedrooms)
	assert.Equal(t, -33.86, *body.Latitude)
	assert.Equal(t, 151.20, *body.Longitude)
	assert.Equal(t, "Central School", *body.NearestSchool)
	assert.Equal(t, 1.11, *body.NearestSchoolDistance)
	assert.Nil(t, body.NearestTrainStation)

	stored, err := s.db.GetProperty(context.Background(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, mainSt, *stored.Point())
	assert.Equal(t, "Central School", *stored.NearestSchool)
}

func TestCreatePropertyUnresolvedAddressStillSaved(t *testing.T) {
	s := setupTestServer(t)
	s.client.On("Geocode", mock.Anything, "Nowhere").Return([]geocoding.GeocodeResult{}, nil)

	w := s.do(http.MethodPost, "/api/properties", map[string]interface{}{"address": "Nowhere"})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode[propertyBody](t, w)
	assert.Equal(t, []string{"Unable to resolve the address: 'Nowhere'"}, body.Errors)
	assert.Nil(t, body.Latitude)

	stored, err := s.db.GetProperty(context.Background(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nowhere", stored.Address)
	assert.Nil(t, stored.Point())
}

func TestCreatePropertyPartialLookupFailure(t *testing.T) {
	s := setupTestServer(t)
	s.client.On("Geocode", mock.Anything, "1 Main St").Return([]geocoding.GeocodeResult{{Location: mainSt}}, nil)
	s.client.On("NearbyPlaces", mock.Anything, mainSt, geocoding.CategorySchool).
		Return([]geocoding.Place{{Name: "Central School", Location: centralSchool}}, nil)
	s.client.On("NearbyPlaces", mock.Anything, mainSt, geocoding.CategoryTrainStation).
		Return(nil, errors.New("REQUEST_DENIED"))

	w := s.do(http.MethodPost, "/api/properties", map[string]interface{}{"address": "1 Main St"})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode[propertyBody](t, w)
	require.Len(t, body.Errors, 1)
	assert.Contains(t, body.Errors[0], "train_station")

	stored, err := s.db.GetProperty(context.Background(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, mainSt, *stored.Point())
	assert.Equal(t, "Central School", *stored.NearestSchool)
}

func TestCreatePropertyDuplicateLocation(t *testing.T) {
	s := setupTestServer(t)
	s.seed(t, "1 Main Street", &mainSt, nil)
	s.client.On("Geocode", mock.Anything, "1 Main St").Return([]geocoding.GeocodeResult{{Location: mainSt}}, nil)
	s.client.On("NearbyPlaces", mock.Anything, mainSt, mock.Anything).Return([]geocoding.Place{}, nil)

	w := s.do(http.MethodPost, "/api/properties", map[string]interface{}{"address": "1 Main St"})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode[propertyBody](t, w)
	assert.Equal(t, []string{database.ErrDuplicatePoint.Error()}, body.Errors)
	assert.Nil(t, body.Latitude)
	assert.Equal(t, "1 Main St", body.Address)
}

func TestCreatePropertyValidation(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing address", map[string]interface{}{"bedrooms": 2}},
		{"bedrooms out of range", map[string]interface{}{"address": "1 Main St", "bedrooms": 9}},
		{"car spaces out of range", map[string]interface{}{"address": "1 Main St", "car_spaces": 4}},
		{"unknown property type", map[string]interface{}{"address": "1 Main St", "property_type": 5}},
		{"malformed", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/properties", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	count, err := s.db.CountProperties(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	s.client.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestUpdatePropertySameAddressSkipsEnrichment(t *testing.T) {
	s := setupTestServer(t)
	p := s.seed(t, "1 Main St", &mainSt, nil)

	w := s.do(http.MethodPut, "/api/properties/"+itoa(p.ID), map[string]interface{}{
		"address":     "1 Main St",
		"description": "Renovated",
		"bathrooms":   3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := s.db.GetProperty(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renovated", stored.Description)
	assert.Equal(t, 3, stored.Bathrooms)
	assert.Equal(t, mainSt, *stored.Point())
	s.client.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestUpdatePropertyNewAddressReEnriches(t *testing.T) {
	s := setupTestServer(t)
	p := s.seed(t, "1 Main St", &mainSt, nil)

	moved := geometry.Coordinate{Lat: -33.90, Lng: 151.25}
	s.client.On("Geocode", mock.Anything, "2 George St").Return([]geocoding.GeocodeResult{{Location: moved}}, nil)
	s.client.On("NearbyPlaces", mock.Anything, moved, mock.Anything).Return([]geocoding.Place{}, nil)

	w := s.do(http.MethodPut, "/api/properties/"+itoa(p.ID), map[string]interface{}{"address": "2 George St"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := s.db.GetProperty(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "2 George St", stored.Address)
	assert.Equal(t, moved, *stored.Point())
	s.client.AssertExpectations(t)
}

func TestUpdatePropertyErrors(t *testing.T) {
	s := setupTestServer(t)
	p := s.seed(t, "1 Main St", nil, nil)

	w := s.do(http.MethodPut, "/api/properties/999", map[string]interface{}{"bedrooms": 2})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, "/api/properties/abc", map[string]interface{}{"bedrooms": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/properties/"+itoa(p.ID), map[string]interface{}{"bathrooms": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProperty(t *testing.T) {
	s := setupTestServer(t)
	p := s.seed(t, "1 Main St", &mainSt, nil)

	w := s.do(http.MethodGet, "/api/properties/"+itoa(p.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[propertyBody](t, w)
	assert.Equal(t, "1 Main St", body.Address)

	w = s.do(http.MethodGet, "/api/properties/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListProperties(t *testing.T) {
	s := setupTestServer(t)
	s.seed(t, "1 Main St", nil, nil)
	s.seed(t, "2 George St", nil, nil)
	p := models.NewProperty("3 Main Rd")
	p.Bedrooms = 1
	require.NoError(t, s.db.CreateProperty(context.Background(), p))

	w := s.do(http.MethodGet, "/api/properties?q=Main", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]propertyBody](t, w), 2)

	w = s.do(http.MethodGet, "/api/properties?q=Main&bedrooms=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]propertyBody](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "3 Main Rd", list[0].Address)

	w = s.do(http.MethodGet, "/api/properties?bedrooms=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteProperties(t *testing.T) {
	s := setupTestServer(t)
	a := s.seed(t, "1 Main St", nil, nil)
	s.seed(t, "2 George St", nil, nil)
	s.seed(t, "3 Pitt St", nil, nil)

	w := s.do(http.MethodDelete, "/api/properties", map[string]interface{}{"ids": []int64{a.ID, 999}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, w.Body.String())

	w = s.do(http.MethodDelete, "/api/properties", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, "/api/properties", map[string]interface{}{"all": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	count, err := s.db.CountProperties(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func geojsonQuery(overrides map[string]string) string {
	values := url.Values{
		"ne":                    {"-33.80,151.30"},
		"sw":                    {"-33.95,151.10"},
		"min-bedrooms":          {"1"},
		"max-bedrooms":          {"4"},
		"min-bathrooms":         {"1"},
		"min-car-spaces":        {"0"},
		"property-types":        {"1,2,3,4"},
		"nearest-school":        {"1"},
		"nearest-train-station": {"1"},
	}
	for k, v := range overrides {
		if v == "" {
			values.Del(k)
			continue
		}
		values.Set(k, v)
	}
	return "/properties/geojson?" + values.Encode()
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         int64                  `json:"id"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"features"`
}

func TestPropertiesGeoJSON(t *testing.T) {
	s := setupTestServer(t)
	near := s.seed(t, "1 Near St", &geometry.Coordinate{Lat: -33.86, Lng: 151.20}, floatPtr(2.5))
	s.seed(t, "2 Far St", &geometry.Coordinate{Lat: -33.87, Lng: 151.21}, floatPtr(7))
	s.seed(t, "3 Bare St", &geometry.Coordinate{Lat: -33.88, Lng: 151.22}, nil)

	w := s.do(http.MethodGet, geojsonQuery(nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Len(t, decode[featureCollection](t, w).Features, 3)

	w = s.do(http.MethodGet, geojsonQuery(map[string]string{"nearest-train-station": "6"}), nil)
	require.Equal(t, http.StatusOK, w.Code)
	fc := decode[featureCollection](t, w)
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, near.ID, fc.Features[0].ID)
	assert.Equal(t, "1 Near St", fc.Features[0].Properties["address"])
}

func TestPropertiesGeoJSONBadRequest(t *testing.T) {
	s := setupTestServer(t)

	for _, overrides := range []map[string]string{
		{"ne": ""},
		{"nearest-school": ""},
		{"min-bedrooms": "lots"},
		{"sw": "151.10"},
	} {
		w := s.do(http.MethodGet, geojsonQuery(overrides), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", overrides)
		assert.Contains(t, w.Body.String(), "error")
	}
}

type bootstrapBody struct {
	Center         geometry.Coordinate `json:"center"`
	Title          string              `json:"title"`
	APIKey         string              `json:"api_key"`
	PropertyTypes  [][]interface{}     `json:"property_types"`
	DistanceRange  []int               `json:"distance_range"`
	BedroomsRange  []int               `json:"bedrooms_range"`
	BathroomsRange []int               `json:"bathrooms_range"`
	CarSpacesRange []int               `json:"car_spaces_range"`
}

func TestMapBootstrapDefaultCenter(t *testing.T) {
	s := setupTestServer(t)
	s.seed(t, "No location", nil, nil)

	w := s.do(http.MethodGet, "/api/map", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[bootstrapBody](t, w)
	assert.Equal(t, geometry.Coordinate{Lat: -33.864869, Lng: 151.1959212}, body.Center)
	assert.Equal(t, "Property Finder", body.Title)
	assert.Equal(t, "web-key", body.APIKey)
	assert.Equal(t, [][]interface{}{
		{float64(1), "House"},
		{float64(2), "Townhouse"},
		{float64(3), "Apartment"},
		{float64(4), "Studio"},
	}, body.PropertyTypes)
	assert.Equal(t, []int{1, 21}, body.DistanceRange)
	assert.Equal(t, []int{1, 4}, body.BedroomsRange)
	assert.Equal(t, []int{1, 4}, body.BathroomsRange)
	assert.Equal(t, []int{1, 4}, body.CarSpacesRange)
}

func TestMapBootstrapCentroid(t *testing.T) {
	s := setupTestServer(t)
	s.seed(t, "1 Near St", &geometry.Coordinate{Lat: -33.86, Lng: 151.20}, nil)
	s.seed(t, "2 Far St", &geometry.Coordinate{Lat: -33.88, Lng: 151.22}, nil)

	w := s.do(http.MethodGet, "/api/map", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[bootstrapBody](t, w)
	assert.InDelta(t, -33.87, body.Center.Lat, 1e-9)
	assert.InDelta(t, 151.21, body.Center.Lng, 1e-9)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
