package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// CacheService holds the most recently computed dashboard values per
// restaurant so staff reloads do not recompute over the full order set.
// A miss returns (nil, nil); callers fall back to recomputing.
type CacheService interface {
	GetStats(ctx context.Context, restaurantID string) (*models.OrderStats, error)
	SetStats(ctx context.Context, restaurantID string, stats *models.OrderStats, ttl time.Duration) error

	GetOrders(ctx context.Context, restaurantID string) ([]*models.Order, error)
	SetOrders(ctx context.Context, restaurantID string, orders []*models.Order, ttl time.Duration) error

	InvalidateRestaurant(ctx context.Context, restaurantID string) error
	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

// NewRedisCacheService creates a cache service over a redis instance.
func NewRedisCacheService(addr, password string, db int) CacheService {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("WARN: redis ping failed on initialization: %v (address: %s)", err, addr)
	}

	return &redisCacheService{client: client}
}

func statsKey(restaurantID string) string {
	return fmt.Sprintf("qrmenu:stats:%s", restaurantID)
}

func ordersKey(restaurantID string) string {
	return fmt.Sprintf("qrmenu:orders:%s", restaurantID)
}

func (r *redisCacheService) GetStats(ctx context.Context, restaurantID string) (*models.OrderStats, error) {
	data, err := r.client.Get(ctx, statsKey(restaurantID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var stats models.OrderStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *redisCacheService) SetStats(ctx context.Context, restaurantID string, stats *models.OrderStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statsKey(restaurantID), data, ttl).Err()
}

func (r *redisCacheService) GetOrders(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	data, err := r.client.Get(ctx, ordersKey(restaurantID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var orders []*models.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *redisCacheService) SetOrders(ctx context.Context, restaurantID string, orders []*models.Order, ttl time.Duration) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, ordersKey(restaurantID), data, ttl).Err()
}

func (r *redisCacheService) InvalidateRestaurant(ctx context.Context, restaurantID string) error {
	return r.client.Del(ctx, statsKey(restaurantID), ordersKey(restaurantID)).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
