package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/analytics"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/services"
)

// ArchiveExportService writes one report object per restaurant per day
// into object storage: the day's orders plus their aggregate counters.
type ArchiveExportService struct {
	store   repositories.OrderStore
	archive services.ArchiveService
}

// DailyReport is the serialized payload of one export object.
type DailyReport struct {
	RestaurantID string            `json:"restaurant_id"`
	Date         string            `json:"date"`
	Stats        models.OrderStats `json:"stats"`
	Orders       []*models.Order   `json:"orders"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

func NewArchiveExportService(store repositories.OrderStore, archive services.ArchiveService) *ArchiveExportService {
	return &ArchiveExportService{store: store, archive: archive}
}

// ExportDay archives the orders created on the given local calendar day,
// for every restaurant. Runs nightly for the previous day.
func (s *ArchiveExportService) ExportDay(ctx context.Context, day time.Time) error {
	restaurants, err := s.store.Restaurants(ctx)
	if err != nil {
		return fmt.Errorf("list restaurants for export: %w", err)
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	for _, restaurantID := range restaurants {
		if err := s.exportRestaurant(ctx, restaurantID, dayStart, dayEnd); err != nil {
			log.Printf("jobs: archive export for %s failed: %v", restaurantID, err)
		}
	}
	return nil
}

func (s *ArchiveExportService) exportRestaurant(ctx context.Context, restaurantID string, dayStart, dayEnd time.Time) error {
	orders, err := s.store.Orders(ctx, restaurantID)
	if err != nil {
		return err
	}

	var dayOrders []*models.Order
	for _, order := range orders {
		created := order.CreatedAt.In(dayStart.Location())
		if !created.Before(dayStart) && created.Before(dayEnd) {
			dayOrders = append(dayOrders, order)
		}
	}
	if len(dayOrders) == 0 {
		return nil
	}

	report := DailyReport{
		RestaurantID: restaurantID,
		Date:         dayStart.Format("2006-01-02"),
		Stats:        analytics.ComputeStats(dayOrders),
		Orders:       dayOrders,
		GeneratedAt:  time.Now(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	objectName := fmt.Sprintf("%s/orders-%s.json", restaurantID, report.Date)
	if err := s.archive.UploadReport(ctx, objectName, data); err != nil {
		return err
	}
	log.Printf("jobs: archived %d orders for %s as %s", len(dayOrders), restaurantID, objectName)
	return nil
}
