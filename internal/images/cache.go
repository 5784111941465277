package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lumosgraph/backend/internal/logger"
)

// PageImages maps "filename:page" to the base64 data URLs of that page's
// images, in extraction order.
type PageImages map[string][]string

// Cache keeps fetched page images warm between turns so follow-up messages
// don't re-download them from the file store.
type Cache interface {
	Get(ctx context.Context, threadID string) (PageImages, error)
	Set(ctx context.Context, threadID string, imgs PageImages) error
	Delete(ctx context.Context, threadID string) error
}

type redisCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisCache(log *logger.Logger, addr, password string, db int, ttl time.Duration) (Cache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisCache{
		log: log.With("cache", "images"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func cacheKey(threadID string) string {
	return "imgcache:" + threadID
}

func (c *redisCache) Get(ctx context.Context, threadID string) (PageImages, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(threadID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var imgs PageImages
	if err := json.Unmarshal(raw, &imgs); err != nil {
		return nil, err
	}
	return imgs, nil
}

func (c *redisCache) Set(ctx context.Context, threadID string, imgs PageImages) error {
	if len(imgs) == 0 {
		return nil
	}
	raw, err := json.Marshal(imgs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(threadID), raw, c.ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, threadID string) error {
	return c.rdb.Del(ctx, cacheKey(threadID)).Err()
}

// NopCache disables image caching; every turn refetches. Used when redis is
// not configured and in tests.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, threadID string) (PageImages, error) { return nil, nil }
func (NopCache) Set(ctx context.Context, threadID string, imgs PageImages) error {
	return nil
}
func (NopCache) Delete(ctx context.Context, threadID string) error { return nil }
