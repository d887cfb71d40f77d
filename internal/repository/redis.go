package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bharathbbg/parcel-hub/internal/config"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

// RedisCache is a cache-aside store for tracking views and routes. A reader
// may write back a value read just before a concurrent commit invalidated
// the key, so entries are kept short-lived to bound that staleness.
type RedisCache struct {
	client   *redis.Client
	ttl      time.Duration
	routeTTL time.Duration
}

func NewRedisCache(config config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheFromClient(client, config.TTL, config.RouteTTL), nil
}

// NewRedisCacheFromClient wraps an existing client. Non-positive TTLs fall
// back to 10 minutes for tracking views and 1 minute for routes.
func NewRedisCacheFromClient(client *redis.Client, ttl, routeTTL time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if routeTTL <= 0 {
		routeTTL = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, routeTTL: routeTTL}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func trackingKey(code string) string {
	return fmt.Sprintf("tracking:%s", code)
}

func routeKey(fromCode, toCode string) string {
	return fmt.Sprintf("route:%s:%s", fromCode, toCode)
}

func (c *RedisCache) GetTracking(ctx context.Context, code string) (*model.TrackingView, error) {
	var view model.TrackingView
	ok, err := c.get(ctx, trackingKey(code), &view)
	if !ok || err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *RedisCache) SetTracking(ctx context.Context, view *model.TrackingView) error {
	return c.set(ctx, trackingKey(view.OrderCode), view, c.ttl)
}

func (c *RedisCache) InvalidateTracking(ctx context.Context, code string) error {
	return c.client.Del(ctx, trackingKey(code)).Err()
}

func (c *RedisCache) GetRoute(ctx context.Context, fromCode, toCode string) (*model.ShippingFee, error) {
	var fee model.ShippingFee
	ok, err := c.get(ctx, routeKey(fromCode, toCode), &fee)
	if !ok || err != nil {
		return nil, err
	}
	return &fee, nil
}

func (c *RedisCache) SetRoute(ctx context.Context, fee *model.ShippingFee) error {
	return c.set(ctx, routeKey(fee.FromWilayaCode, fee.ToWilayaCode), fee, c.routeTTL)
}

func (c *RedisCache) InvalidateRoute(ctx context.Context, fromCode, toCode string) error {
	return c.client.Del(ctx, routeKey(fromCode, toCode)).Err()
}

func (c *RedisCache) set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// get reports false on a cache miss.
func (c *RedisCache) get(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}

	return true, nil
}
