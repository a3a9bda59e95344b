package geocoding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"propertyfinder/server/config"
)

// NewFromConfig builds the Google client behind the configured geocode cache:
// Redis when an address is set, the JSON file cache otherwise. The returned
// func releases the cache connection.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Client, func() error, error) {
	google, err := NewGoogleClient(GoogleOptions{
		APIKey:            cfg.Maps.ServerKey,
		BaseURL:           cfg.Maps.BaseURL,
		Timeout:           cfg.MapsTimeout(),
		MaxRetries:        cfg.Maps.MaxRetries,
		RequestsPerSecond: cfg.Maps.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.WithField("addr", cfg.Redis.Addr).Info("Using redis geocode cache")

		cache := NewRedisCache(rdb, cfg.Redis.Prefix, cfg.GeocodeCacheTTL())
		return NewCachedClient(google, cache, logger), rdb.Close, nil
	}

	dir := cfg.GeocodeCache.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "propertyfinder", "geocode_cache")
	}
	cache, err := NewFileCache(dir, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("dir", dir).Info("Using file geocode cache")

	return NewCachedClient(google, cache, logger), func() error { return nil }, nil
}
