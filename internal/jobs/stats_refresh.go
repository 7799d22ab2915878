package jobs

import (
	"context"
	"log"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/analytics"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
)

// StatsRefreshService keeps the cached dashboard counters warm for every
// restaurant that has orders.
type StatsRefreshService struct {
	store        repositories.OrderStore
	analyticsSvc *analytics.AnalyticsService
}

// StatsRefreshResult summarizes one refresh sweep.
type StatsRefreshResult struct {
	RestaurantsProcessed int
	Failures             int
}

func NewStatsRefreshService(store repositories.OrderStore, analyticsSvc *analytics.AnalyticsService) *StatsRefreshService {
	return &StatsRefreshService{store: store, analyticsSvc: analyticsSvc}
}

// RefreshRestaurant recomputes and caches one restaurant's counters.
func (s *StatsRefreshService) RefreshRestaurant(ctx context.Context, restaurantID string) error {
	stats, err := s.analyticsSvc.RefreshStats(ctx, restaurantID)
	if err != nil {
		log.Printf("jobs: stats refresh for %s failed: %v", restaurantID, err)
		return err
	}
	log.Printf("jobs: stats refreshed for %s: active=%d completed=%d cancelled=%d revenue=%.2f",
		restaurantID, stats.ActiveCount, stats.CompletedCount, stats.CancelledCount, stats.TotalRevenue)
	return nil
}

// RefreshAll sweeps every restaurant known to the store.
func (s *StatsRefreshService) RefreshAll(ctx context.Context) (*StatsRefreshResult, error) {
	restaurants, err := s.store.Restaurants(ctx)
	if err != nil {
		return nil, err
	}

	result := &StatsRefreshResult{}
	for _, restaurantID := range restaurants {
		if err := s.RefreshRestaurant(ctx, restaurantID); err != nil {
			result.Failures++
			continue
		}
		result.RestaurantsProcessed++
	}
	return result, nil
}
