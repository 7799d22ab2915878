package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/caching"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
)

var (
	// ErrEmptyOrder is returned when a submission carries no items. A
	// caller bug, not retryable.
	ErrEmptyOrder = errors.New("order service: submission contains no items")

	// ErrBadQuantity is returned when a submitted line has a zero or
	// negative quantity.
	ErrBadQuantity = errors.New("order service: item quantity must be positive")

	// ErrItemNotFound is returned by RemoveItem for a product the order
	// has no line for.
	ErrItemNotFound = errors.New("order service: order has no such item")

	// ErrInvalidTransition is returned for completed<->cancelled moves,
	// which must pass through the active state.
	ErrInvalidTransition = errors.New("order service: invalid lifecycle transition")

	// ErrProductUnavailable is returned when a submitted product exists
	// but is currently switched off on the menu.
	ErrProductUnavailable = errors.New("order service: product is not available")

	// ErrTableInactive is returned for submissions against a table the
	// restaurant has deactivated.
	ErrTableInactive = errors.New("order service: table is not active")
)

// SubmitItem is one requested line of a customer submission, before the
// catalog materializes name and price.
type SubmitItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SubmitRequest is a batch of items a customer sends for one table.
type SubmitRequest struct {
	RestaurantID        string       `json:"restaurant_id"`
	TableID             string       `json:"table_id"`
	CustomerName        string       `json:"customer_name"`
	SpecialInstructions string       `json:"special_instructions"`
	Items               []SubmitItem `json:"items"`
}

// OrderServiceInterface defines the order merge and lifecycle operations.
type OrderServiceInterface interface {
	Submit(ctx context.Context, req *SubmitRequest) (string, error)
	GetOrder(ctx context.Context, restaurantID, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, restaurantID string) ([]*models.Order, error)
	Complete(ctx context.Context, restaurantID, orderID string) error
	Reopen(ctx context.Context, restaurantID, orderID string) error
	Cancel(ctx context.Context, restaurantID, orderID string, by models.CancelActor) error
	Uncancel(ctx context.Context, restaurantID, orderID string) error
	RemoveItem(ctx context.Context, restaurantID, orderID, productID string) error
}

type orderService struct {
	store   repositories.OrderStore
	catalog repositories.CatalogRepository
	cache   caching.CacheService
	taxRate float64
}

// NewOrderService creates a new order service instance. cache may be nil;
// when present, every successful mutation drops the restaurant's cached
// dashboard values. taxRate is applied on every summary recomputation; the
// current domain runs with zero.
func NewOrderService(store repositories.OrderStore, catalog repositories.CatalogRepository, cache caching.CacheService, taxRate float64) OrderServiceInterface {
	return &orderService{store: store, catalog: catalog, cache: cache, taxRate: taxRate}
}

// Submit merges a batch of items into the table's active order, creating
// one when the table has none, all inside a single store transaction. The
// returned id belongs to the merged-into (or freshly created) order.
func (s *orderService) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	if len(req.Items) == 0 {
		return "", ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return "", fmt.Errorf("%w: product %s", ErrBadQuantity, item.ProductID)
		}
	}

	table, err := s.catalog.GetTable(ctx, req.RestaurantID, req.TableID)
	if err != nil {
		return "", fmt.Errorf("look up table %s: %w", req.TableID, err)
	}
	if !table.IsActive {
		return "", fmt.Errorf("%w: %s", ErrTableInactive, req.TableID)
	}

	incoming, err := s.materialize(ctx, req)
	if err != nil {
		return "", err
	}

	var orderID string
	err = s.store.Transact(ctx, req.RestaurantID, req.TableID, func(tx repositories.OrderTx) error {
		order, err := tx.ActiveOrder()
		if err != nil {
			return err
		}
		if order == nil {
			order = &models.Order{
				ID:           uuid.New().String(),
				RestaurantID: req.RestaurantID,
				TableID:      req.TableID,
				TableName:    table.Name,
				CustomerName: req.CustomerName,
				CreatedAt:    time.Now(),
			}
		}

		for _, in := range incoming {
			if line := order.Item(in.ProductID); line != nil {
				line.Quantity += in.Quantity
				// Incoming unit price wins over the stored one; the
				// tab keeps the price at time of the latest add.
				line.UnitPrice = in.UnitPrice
			} else {
				order.Items = append(order.Items, in)
			}
		}

		if req.SpecialInstructions != "" {
			if order.SpecialInstructions != "" {
				order.SpecialInstructions += "\n" + req.SpecialInstructions
			} else {
				order.SpecialInstructions = req.SpecialInstructions
			}
		}
		if order.CustomerName == "" {
			order.CustomerName = req.CustomerName
		}

		order.RecomputeSummary(s.taxRate)
		orderID = order.ID
		return tx.Put(order)
	})
	if err != nil {
		return "", fmt.Errorf("submit order for table %s: %w", req.TableID, err)
	}
	s.invalidate(ctx, req.RestaurantID)
	return orderID, nil
}

// materialize resolves each requested line against the catalog and folds
// duplicate product ids within the batch into a single line.
func (s *orderService) materialize(ctx context.Context, req *SubmitRequest) ([]models.OrderItem, error) {
	var items []models.OrderItem
	index := make(map[string]int)
	for _, in := range req.Items {
		product, err := s.catalog.GetProduct(ctx, req.RestaurantID, in.ProductID)
		if err != nil {
			return nil, fmt.Errorf("look up product %s: %w", in.ProductID, err)
		}
		if !product.IsAvailable {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
		}
		if i, ok := index[in.ProductID]; ok {
			items[i].Quantity += in.Quantity
			continue
		}
		index[in.ProductID] = len(items)
		items = append(items, models.OrderItem{
			ProductID: in.ProductID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  in.Quantity,
		})
	}
	return items, nil
}

func (s *orderService) GetOrder(ctx context.Context, restaurantID, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, restaurantID, orderID)
}

func (s *orderService) ListOrders(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	return s.store.Orders(ctx, restaurantID)
}

// Complete marks an active order as served and paid.
func (s *orderService) Complete(ctx context.Context, restaurantID, orderID string) error {
	return s.mutateOrder(ctx, restaurantID, orderID, func(order *models.Order) error {
		if order.IsCancelled {
			return fmt.Errorf("%w: cancelled order must be reactivated before completion", ErrInvalidTransition)
		}
		order.IsCompleted = true
		return nil
	})
}

// Reopen returns a completed order to the active state.
func (s *orderService) Reopen(ctx context.Context, restaurantID, orderID string) error {
	return s.mutateOrder(ctx, restaurantID, orderID, func(order *models.Order) error {
		order.IsCompleted = false
		return nil
	})
}

// Cancel soft-deletes the order on behalf of the given actor. History is
// kept for stats and search.
func (s *orderService) Cancel(ctx context.Context, restaurantID, orderID string, by models.CancelActor) error {
	return s.mutateOrder(ctx, restaurantID, orderID, func(order *models.Order) error {
		if order.IsCompleted {
			return fmt.Errorf("%w: completed order must be reopened before cancellation", ErrInvalidTransition)
		}
		order.Cancel(by, time.Now())
		return nil
	})
}

// Uncancel reactivates a cancelled order, clearing the audit fields. An
// order that was emptied out stays cancelled: reactivating it would leave
// a zero-item active order as the table's merge target.
func (s *orderService) Uncancel(ctx context.Context, restaurantID, orderID string) error {
	return s.mutateOrder(ctx, restaurantID, orderID, func(order *models.Order) error {
		if len(order.Items) == 0 {
			return fmt.Errorf("%w: order without items cannot be reactivated", ErrInvalidTransition)
		}
		order.Uncancel()
		return nil
	})
}

// RemoveItem decrements the line for productID by one, dropping the line
// at zero. An order left without items is auto-cancelled by the restaurant
// rather than kept as a zero-value active order. The effective tax rate of
// the last write is preserved, not the flat tax amount.
func (s *orderService) RemoveItem(ctx context.Context, restaurantID, orderID, productID string) error {
	return s.mutateOrder(ctx, restaurantID, orderID, func(order *models.Order) error {
		line := order.Item(productID)
		if line == nil {
			return fmt.Errorf("%w: %s", ErrItemNotFound, productID)
		}
		rate := order.TaxRate()
		line.Quantity--
		if line.Quantity <= 0 {
			kept := order.Items[:0]
			for _, item := range order.Items {
				if item.ProductID != productID {
					kept = append(kept, item)
				}
			}
			order.Items = kept
		}
		order.RecomputeSummary(rate)
		if len(order.Items) == 0 && !order.IsCancelled {
			order.Cancel(models.CancelledByRestaurant, time.Now())
		}
		return nil
	})
}

// mutateOrder locates the order's table, then applies mutate inside a
// transaction keyed by that table so lifecycle changes serialize against
// concurrent submissions.
func (s *orderService) mutateOrder(ctx context.Context, restaurantID, orderID string, mutate func(order *models.Order) error) error {
	order, err := s.store.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return err
	}
	err = s.store.Transact(ctx, restaurantID, order.TableID, func(tx repositories.OrderTx) error {
		current, err := tx.Get(orderID)
		if err != nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		return tx.Put(current)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, restaurantID)
	return nil
}

// invalidate drops the restaurant's cached dashboard values after a write
// so the analytics read path never serves a pre-mutation snapshot for a
// full TTL.
func (s *orderService) invalidate(ctx context.Context, restaurantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRestaurant(ctx, restaurantID); err != nil {
		log.Printf("order service: cache invalidation for %s failed: %v", restaurantID, err)
	}
}
