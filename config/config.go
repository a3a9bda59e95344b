package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP port the server listens on
	Port string `env:"PORT" envDefault:"5250"`

	// Path of the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"database/properties.db"`

	// Comma separated origins allowed to call the API from a browser
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	Maps struct {
		// Key used for server side calls (geocoding, places)
		ServerKey string `env:"GOOGLE_MAPS_API_SERVER_KEY"`

		// Key handed to the browser for rendering the map
		WebKey string `env:"GOOGLE_MAPS_API_WEB_KEY"`

		BaseURL string `env:"MAPS_BASE_URL" envDefault:"https://maps.googleapis.com"`

		TimeoutSeconds int `env:"MAPS_TIMEOUT_SECONDS" envDefault:"10"`

		MaxRetries int `env:"MAPS_MAX_RETRIES" envDefault:"3"`

		// Outgoing request budget, 0 disables the limiter
		RequestsPerSecond float64 `env:"MAPS_REQUESTS_PER_SECOND" envDefault:"10"`
	}

	GeocodeCache struct {
		// Directory of the on-disk cache, used when Redis is not configured
		Dir string `env:"GEOCODE_CACHE_DIR"`

		TTLHours int `env:"GEOCODE_CACHE_TTL_HOURS" envDefault:"720"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
		Prefix   string `env:"REDIS_PREFIX" envDefault:"propertyfinder"`
	}

	BatchProcessing struct {
		// Maximum number of retries for a failed batch insert
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"2"`
	}
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) MapsTimeout() time.Duration {
	return time.Duration(c.Maps.TimeoutSeconds) * time.Second
}

func (c *Config) GeocodeCacheTTL() time.Duration {
	return time.Duration(c.GeocodeCache.TTLHours) * time.Hour
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.BatchProcessing.RetryDelay) * time.Second
}

// AllowedOrigins splits CORSAllowedOrigins, dropping empty entries.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
