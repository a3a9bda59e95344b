package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"propertyfinder/server/internal/geometry"
)

var ErrNoAPIKey = errors.New("google maps api key is not configured")

const maxResponseBytes = 4 << 20

// APIError is a non-OK status reported by the Google Maps web services
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("google maps api error: %s", e.Status)
	}
	return fmt.Sprintf("google maps api error: %s: %s", e.Status, e.Message)
}

type GoogleOptions struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// GoogleClient talks to the Google Geocoding and Places web services.
type GoogleClient struct {
	key     string
	baseURL string
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func NewGoogleClient(opts GoogleOptions, logger *logrus.Logger) (*GoogleClient, error) {
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://maps.googleapis.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.RetryMax = opts.MaxRetries
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveledLogger{entry: logger.WithField("component", "maps_http")}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &GoogleClient{
		key:     opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    rc,
		limiter: limiter,
		logger:  logger,
	}, nil
}

type googleLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleGeometry struct {
	Location googleLocation `json:"location"`
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name             string         `json:"name"`
		FormattedAddress string         `json:"formatted_address"`
		Geometry         googleGeometry `json:"geometry"`
	} `json:"results"`
}

func (g *GoogleClient) Geocode(ctx context.Context, address string) ([]GeocodeResult, error) {
	params := url.Values{"address": []string{address}}
	resp, err := g.get(ctx, "/maps/api/geocode/json", params)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Geocoding request failed")
		return nil, err
	}

	results := toGeocodeResults(resp)
	g.logger.WithFields(logrus.Fields{
		"address": address,
		"results": len(results),
	}).Debug("Geocoded address")
	return results, nil
}

func (g *GoogleClient) ReverseGeocode(ctx context.Context, location geometry.Coordinate) ([]GeocodeResult, error) {
	params := url.Values{"latlng": []string{location.String()}}
	resp, err := g.get(ctx, "/maps/api/geocode/json", params)
	if err != nil {
		g.logger.WithError(err).WithField("location", location.String()).Error("Reverse geocoding request failed")
		return nil, err
	}
	return toGeocodeResults(resp), nil
}

func (g *GoogleClient) NearbyPlaces(ctx context.Context, location geometry.Coordinate, category Category) ([]Place, error) {
	params := url.Values{
		"location": []string{location.String()},
		"rankby":   []string{"distance"},
		"type":     []string{string(category)},
	}
	resp, err := g.get(ctx, "/maps/api/place/nearbysearch/json", params)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"location": location.String(),
			"category": category,
		}).Error("Nearby search request failed")
		return nil, err
	}

	places := make([]Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		places = append(places, Place{
			Name:     r.Name,
			Location: geometry.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		})
	}
	return places, nil
}

func (g *GoogleClient) get(ctx context.Context, path string, params url.Values) (*googleResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params.Set("key", g.key)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("maps request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, errors.New("maps response too large")
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.Status, Message: strings.TrimSpace(string(body))}
	}

	var out googleResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	switch out.Status {
	case "OK":
		return &out, nil
	case "ZERO_RESULTS":
		out.Results = nil
		return &out, nil
	default:
		return nil, &APIError{Status: out.Status, Message: out.ErrorMessage}
	}
}

func toGeocodeResults(resp *googleResponse) []GeocodeResult {
	results := make([]GeocodeResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, GeocodeResult{
			FormattedAddress: r.FormattedAddress,
			Location:         geometry.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		})
	}
	return results
}

// leveledLogger routes retryablehttp logging through logrus.
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}
