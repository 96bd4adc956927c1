package cache

import (
	"encoding/json"
	"time"

	"github.com/raaihank/scan-redactor/internal/config"
)

// CachedPage is the stored recognition result for one page image.
type CachedPage struct {
	Hash     string          `json:"hash"`
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cached_at"`
	TTL      int64           `json:"ttl"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// Config contains cache configuration
type Config struct {
	RedisURL       string
	MaxConnections int
	MinIdleConns   int
	DefaultTTL     time.Duration
	KeyPrefix      string
}

// ConfigFrom converts the file configuration section.
func ConfigFrom(c config.CacheConfig) *Config {
	return &Config{
		RedisURL:       c.RedisURL,
		MaxConnections: c.MaxConnections,
		MinIdleConns:   c.MinIdleConns,
		DefaultTTL:     c.DefaultTTL,
		KeyPrefix:      c.KeyPrefix,
	}
}
