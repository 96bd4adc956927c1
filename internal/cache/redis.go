package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/scan-redactor/internal/logger"
	"go.uber.org/zap"
)

// PageCache handles Redis-based caching of per-page OCR output.
// Only recognizer output is stored; redacted results never are.
type PageCache struct {
	client *redis.Client
	config *Config
	logger *logger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewPageCache creates a new Redis-based page cache
func NewPageCache(config *Config, log *logger.Logger) (*PageCache, error) {
	if log == nil {
		log = logger.Nop()
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	pc := &PageCache{
		client: redis.NewClient(opts),
		config: config,
		logger: log.WithComponent("cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pc.client.Ping(ctx).Err(); err != nil {
		pc.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	pc.logger.Info("Page cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return pc, nil
}

// Lookup returns the cached entry for a page hash. Lookup failures are
// logged and reported as misses.
func (pc *PageCache) Lookup(ctx context.Context, hash string) (*CachedPage, bool) {
	key := pc.key(hash)

	data, err := pc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		pc.misses.Add(1)
		pc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		pc.misses.Add(1)
		pc.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var page CachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		pc.misses.Add(1)
		pc.logger.Error("Failed to unmarshal cached page", zap.Error(err))
		pc.client.Del(ctx, key)
		return nil, false
	}

	pc.hits.Add(1)
	pc.logger.Debug("Cache hit", zap.String("key", key))
	return &page, true
}

// Store caches payload under the page hash with the default TTL.
func (pc *PageCache) Store(ctx context.Context, hash string, payload any) error {
	data, err := pc.encode(hash, payload)
	if err != nil {
		return err
	}

	if err := pc.client.Set(ctx, pc.key(hash), data, pc.config.DefaultTTL).Err(); err != nil {
		pc.logger.Error("Failed to cache page", zap.Error(err))
		return fmt.Errorf("failed to cache page: %w", err)
	}
	return nil
}

// StoreBatch caches several pages in one Redis pipeline.
func (pc *PageCache) StoreBatch(ctx context.Context, payloads map[string]any) error {
	if len(payloads) == 0 {
		return nil
	}

	pipe := pc.client.Pipeline()
	for hash, payload := range payloads {
		data, err := pc.encode(hash, payload)
		if err != nil {
			pc.logger.Error("Failed to marshal page for batch caching", zap.Error(err))
			continue
		}
		pipe.Set(ctx, pc.key(hash), data, pc.config.DefaultTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		pc.logger.Error("Batch cache operation failed", zap.Error(err))
		return fmt.Errorf("batch cache operation failed: %w", err)
	}

	pc.logger.Debug("Batch cache operation completed", zap.Int("cached_pages", len(payloads)))
	return nil
}

func (pc *PageCache) encode(hash string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal page for caching: %w", err)
	}
	return json.Marshal(CachedPage{
		Hash:     hash,
		Payload:  raw,
		CachedAt: time.Now(),
		TTL:      int64(pc.config.DefaultTTL.Seconds()),
	})
}

// GetStats returns cache performance statistics
func (pc *PageCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := pc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:   pc.hits.Load(),
		Misses: pc.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	stats.MemoryUsage = parseUsedMemory(info)

	if keys, err := pc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

// Clear removes all cached pages under the key prefix.
func (pc *PageCache) Clear(ctx context.Context) error {
	iter := pc.client.Scan(ctx, 0, pc.config.KeyPrefix+":ocr:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := pc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			pc.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	pc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (pc *PageCache) Close() error {
	if pc.client != nil {
		return pc.client.Close()
	}
	return nil
}

func (pc *PageCache) key(hash string) string {
	return fmt.Sprintf("%s:ocr:%s", pc.config.KeyPrefix, hash)
}

// HashImage returns the SHA-256 of the page's RGBA pixels and dimensions,
// so the same scan hashes alike whatever container it arrived in.
func HashImage(img image.Image) string {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%dx%d:", b.Dx(), b.Dy())
	h.Write(rgba.Pix[:4*b.Dx()*b.Dy()])
	return hex.EncodeToString(h.Sum(nil))
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if mem, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(mem, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	if colon := strings.LastIndex(userPart, ":"); colon > strings.Index(userPart, "://") {
		return userPart[:colon+1] + "***" + url[at:]
	}
	return url
}
