package analytics

import (
	"context"
	"log"
	"time"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/caching"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
)

// statsCacheTTL bounds how stale a cached dashboard may get if the refresh
// job falls behind.
const statsCacheTTL = 5 * time.Minute

// ordersCacheTTL bounds the cached order snapshot. Mutations invalidate it
// eagerly; the TTL only covers writes that bypass the order service.
const ordersCacheTTL = time.Minute

// AnalyticsService serves the aggregation layer over live snapshots,
// with a redis cache in front of the stats computation.
type AnalyticsService struct {
	store repositories.OrderStore
	cache caching.CacheService
}

// NewAnalyticsService creates a new analytics service instance.
func NewAnalyticsService(store repositories.OrderStore, cache caching.CacheService) *AnalyticsService {
	return &AnalyticsService{store: store, cache: cache}
}

// Stats returns the dashboard counters, from cache when fresh.
func (a *AnalyticsService) Stats(ctx context.Context, restaurantID string) (*models.OrderStats, error) {
	if a.cache != nil {
		cached, err := a.cache.GetStats(ctx, restaurantID)
		if err != nil {
			log.Printf("analytics: stats cache read for %s failed: %v", restaurantID, err)
		} else if cached != nil {
			return cached, nil
		}
	}
	return a.RefreshStats(ctx, restaurantID)
}

// RefreshStats recomputes the counters from the store and repopulates the
// cache. The background refresh job calls this directly.
func (a *AnalyticsService) RefreshStats(ctx context.Context, restaurantID string) (*models.OrderStats, error) {
	orders, err := a.store.Orders(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	stats := ComputeStats(orders)
	if a.cache != nil {
		if err := a.cache.SetStats(ctx, restaurantID, &stats, statsCacheTTL); err != nil {
			log.Printf("analytics: stats cache write for %s failed: %v", restaurantID, err)
		}
	}
	return &stats, nil
}

// ordersSnapshot returns the restaurant's order set for the dashboard read
// paths, served from the cache when a snapshot is present. The order
// service invalidates the cached snapshot on every mutation.
func (a *AnalyticsService) ordersSnapshot(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	if a.cache != nil {
		cached, err := a.cache.GetOrders(ctx, restaurantID)
		if err != nil {
			log.Printf("analytics: orders cache read for %s failed: %v", restaurantID, err)
		} else if cached != nil {
			return cached, nil
		}
	}
	orders, err := a.store.Orders(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if err := a.cache.SetOrders(ctx, restaurantID, orders, ordersCacheTTL); err != nil {
			log.Printf("analytics: orders cache write for %s failed: %v", restaurantID, err)
		}
	}
	return orders, nil
}

// DailyGroups returns the restaurant's orders bucketed by calendar day.
func (a *AnalyticsService) DailyGroups(ctx context.Context, restaurantID string) ([]DateGroup, error) {
	orders, err := a.ordersSnapshot(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return GroupByDate(orders, time.Now()), nil
}

// WeeklyGroups returns the restaurant's orders bucketed by week.
func (a *AnalyticsService) WeeklyGroups(ctx context.Context, restaurantID string) ([]WeekGroup, error) {
	orders, err := a.ordersSnapshot(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return GroupByWeek(orders, time.Now()), nil
}

// SearchOrders runs the staff search over the dashboard snapshot.
func (a *AnalyticsService) SearchOrders(ctx context.Context, restaurantID, term string) ([]*models.Order, error) {
	orders, err := a.ordersSnapshot(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return Search(orders, term), nil
}

// SearchSuggestions returns autocomplete candidates for the term.
func (a *AnalyticsService) SearchSuggestions(ctx context.Context, restaurantID, term string) ([]string, error) {
	orders, err := a.ordersSnapshot(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return Suggestions(orders, term), nil
}
