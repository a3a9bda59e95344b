package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache stores forward geocoding results keyed by address.
type Cache interface {
	Get(ctx context.Context, key string) ([]GeocodeResult, bool, error)
	Set(ctx context.Context, key string, results []GeocodeResult) error
}

// CacheKey normalises an address so trivially different spellings share an entry.
func CacheKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// FileCache keeps results in memory and mirrors them to a JSON file.
type FileCache struct {
	logger    *logrus.Logger
	cacheFile string
	cache     map[string][]GeocodeResult
	cacheLock sync.RWMutex
}

func NewFileCache(cacheDir string, logger *logrus.Logger) (*FileCache, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &FileCache{
		logger:    logger,
		cacheFile: filepath.Join(cacheDir, "geocode_cache.json"),
		cache:     make(map[string][]GeocodeResult),
	}
	c.load()
	return c, nil
}

func (c *FileCache) load() {
	data, err := os.ReadFile(c.cacheFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warnf("Could not load geocode cache: %v", err)
		}
		return
	}

	if err := json.Unmarshal(data, &c.cache); err != nil {
		c.logger.Errorf("Failed to parse geocode cache: %v", err)
		c.cache = make(map[string][]GeocodeResult)
		return
	}

	c.logger.Infof("Loaded %d cached addresses", len(c.cache))
}

func (c *FileCache) Get(_ context.Context, key string) ([]GeocodeResult, bool, error) {
	c.cacheLock.RLock()
	defer c.cacheLock.RUnlock()

	results, ok := c.cache[key]
	return results, ok, nil
}

func (c *FileCache) Set(_ context.Context, key string, results []GeocodeResult) error {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	c.cache[key] = results
	data, err := json.Marshal(c.cache)
	if err != nil {
		return fmt.Errorf("failed to marshal geocode cache: %w", err)
	}
	if err := os.WriteFile(c.cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save geocode cache: %w", err)
	}
	return nil
}

// RedisCache stores each address under its own expiring key.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisCache{rdb: rdb, prefix: prefix + "geocode:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]GeocodeResult, bool, error) {
	val, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var results []GeocodeResult
	if err := json.Unmarshal([]byte(val), &results); err != nil {
		return nil, false, fmt.Errorf("corrupt geocode cache entry %q: %w", key, err)
	}
	return results, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, results []GeocodeResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// CachedClient answers forward geocoding from a cache before asking the
// wrapped client. Reverse geocoding and nearby searches pass straight through.
type CachedClient struct {
	Client
	cache  Cache
	logger *logrus.Logger
}

func NewCachedClient(client Client, cache Cache, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedClient{Client: client, cache: cache, logger: logger}
}

func (c *CachedClient) Geocode(ctx context.Context, address string) ([]GeocodeResult, error) {
	key := CacheKey(address)

	results, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("address", address).Warn("Geocode cache lookup failed")
	} else if ok {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"source":  "cache",
		}).Debug("Found geocode result in cache")
		return results, nil
	}

	results, err = c.Client.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}

	// Empty answers are not cached so a later retry can still resolve the address.
	if len(results) > 0 {
		if err := c.cache.Set(ctx, key, results); err != nil {
			c.logger.WithError(err).WithField("address", address).Warn("Failed to store geocode result")
		}
	}
	return results, nil
}
