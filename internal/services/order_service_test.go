package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
	"github.com/sevvalsaygat/qr-menu-sub000/internal/repositories"
)

const (
	testRestaurant = "rest-1"
	testTable      = "table-1"
)

type OrderServiceTestSuite struct {
	suite.Suite
	store   repositories.OrderStore
	catalog repositories.MemoryCatalog
	svc     OrderServiceInterface
	ctx     context.Context
}

func (s *OrderServiceTestSuite) SetupTest() {
	s.store = repositories.NewMemoryOrderStore()
	s.catalog = repositories.NewMemoryCatalog()
	s.svc = NewOrderService(s.store, s.catalog, nil, 0)
	s.ctx = context.Background()

	s.catalog.SeedTable(&models.Table{ID: testTable, RestaurantID: testRestaurant, Name: "Window 2", IsActive: true})
	s.catalog.SeedTable(&models.Table{ID: "table-off", RestaurantID: testRestaurant, Name: "Closed", IsActive: false})
	s.catalog.SeedProduct(&models.Product{ID: "p-tea", RestaurantID: testRestaurant, Name: "Mint Tea", Price: 3.5, IsAvailable: true})
	s.catalog.SeedProduct(&models.Product{ID: "p-kebab", RestaurantID: testRestaurant, Name: "Adana Kebab", Price: 14, IsAvailable: true})
	s.catalog.SeedProduct(&models.Product{ID: "p-off", RestaurantID: testRestaurant, Name: "Seasonal Soup", Price: 6, IsAvailable: false})
}

func TestOrderServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}

func (s *OrderServiceTestSuite) submit(items ...SubmitItem) string {
	id, err := s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		Items:        items,
	})
	require.NoError(s.T(), err)
	return id
}

func (s *OrderServiceTestSuite) TestSubmitCreatesOrder() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 2})

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Window 2", order.TableName)
	require.Len(s.T(), order.Items, 1)
	assert.Equal(s.T(), "Mint Tea", order.Items[0].Name)
	assert.Equal(s.T(), 2, order.Items[0].Quantity)
	assert.Equal(s.T(), 7.0, order.Items[0].Subtotal)
	assert.Equal(s.T(), 7.0, order.Summary.Total)
	assert.True(s.T(), order.IsActive())
}

func (s *OrderServiceTestSuite) TestSubmitRejectsEmpty() {
	_, err := s.svc.Submit(s.ctx, &SubmitRequest{RestaurantID: testRestaurant, TableID: testTable})
	assert.ErrorIs(s.T(), err, ErrEmptyOrder)
}

func (s *OrderServiceTestSuite) TestSubmitRejectsBadQuantity() {
	_, err := s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		Items:        []SubmitItem{{ProductID: "p-tea", Quantity: 0}},
	})
	assert.ErrorIs(s.T(), err, ErrBadQuantity)
}

func (s *OrderServiceTestSuite) TestSubmitRejectsInactiveTable() {
	_, err := s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      "table-off",
		Items:        []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
	})
	assert.ErrorIs(s.T(), err, ErrTableInactive)
}

func (s *OrderServiceTestSuite) TestSubmitRejectsUnknownProduct() {
	_, err := s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		Items:        []SubmitItem{{ProductID: "nope", Quantity: 1}},
	})
	assert.ErrorIs(s.T(), err, repositories.ErrNotInCatalog)
}

func (s *OrderServiceTestSuite) TestSubmitRejectsUnavailableProduct() {
	_, err := s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		Items:        []SubmitItem{{ProductID: "p-off", Quantity: 1}},
	})
	assert.ErrorIs(s.T(), err, ErrProductUnavailable)
}

func (s *OrderServiceTestSuite) TestSubmitMergesIntoActiveOrder() {
	first := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})
	second := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 2}, SubmitItem{ProductID: "p-kebab", Quantity: 1})

	assert.Equal(s.T(), first, second, "second submission must merge into the open tab")

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, first)
	require.NoError(s.T(), err)
	require.Len(s.T(), order.Items, 2)
	assert.Equal(s.T(), 3, order.Items[0].Quantity)
	assert.Equal(s.T(), "Adana Kebab", order.Items[1].Name)
	assert.Equal(s.T(), 3*3.5+14, order.Summary.Total)
	assert.Equal(s.T(), 4, order.Summary.ItemCount)
}

func (s *OrderServiceTestSuite) TestSubmitFoldsDuplicateLinesInBatch() {
	id := s.submit(
		SubmitItem{ProductID: "p-tea", Quantity: 1},
		SubmitItem{ProductID: "p-tea", Quantity: 2},
	)

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	require.Len(s.T(), order.Items, 1)
	assert.Equal(s.T(), 3, order.Items[0].Quantity)
}

func (s *OrderServiceTestSuite) TestSubmitIncomingPriceWins() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})

	// Menu price changes while the tab is open.
	s.catalog.SeedProduct(&models.Product{ID: "p-tea", RestaurantID: testRestaurant, Name: "Mint Tea", Price: 4, IsAvailable: true})
	s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	require.Len(s.T(), order.Items, 1)
	assert.Equal(s.T(), 4.0, order.Items[0].UnitPrice)
	assert.Equal(s.T(), 8.0, order.Summary.Total)
}

func (s *OrderServiceTestSuite) TestSubmitConcatenatesInstructions() {
	id, err := s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID:        testRestaurant,
		TableID:             testTable,
		SpecialInstructions: "no onions",
		Items:               []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
	})
	require.NoError(s.T(), err)

	_, err = s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID:        testRestaurant,
		TableID:             testTable,
		SpecialInstructions: "extra bread",
		Items:               []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
	})
	require.NoError(s.T(), err)

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "no onions\nextra bread", order.SpecialInstructions)
}

func (s *OrderServiceTestSuite) TestSubmitKeepsFirstCustomerName() {
	id, err := s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		CustomerName: "Jane",
		Items:        []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
	})
	require.NoError(s.T(), err)

	_, err = s.svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		CustomerName: "John",
		Items:        []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
	})
	require.NoError(s.T(), err)

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Jane", order.CustomerName)
}

func (s *OrderServiceTestSuite) TestSubmitAfterCompleteOpensNewOrder() {
	first := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})
	require.NoError(s.T(), s.svc.Complete(s.ctx, testRestaurant, first))

	second := s.submit(SubmitItem{ProductID: "p-kebab", Quantity: 1})
	assert.NotEqual(s.T(), first, second, "a completed tab must not be merged into")
}

func (s *OrderServiceTestSuite) TestConcurrentSubmissionsLoseNothing() {
	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Submit(s.ctx, &SubmitRequest{
				RestaurantID: testRestaurant,
				TableID:      testTable,
				Items:        []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
			})
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	orders, err := s.svc.ListOrders(s.ctx, testRestaurant)
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 1, "all submissions must land on one tab")
	assert.Equal(s.T(), workers, orders[0].Summary.ItemCount)
	assert.Equal(s.T(), float64(workers)*3.5, orders[0].Summary.Total)
}

func (s *OrderServiceTestSuite) TestConcurrentSubmissionsDifferentTables() {
	for i := 0; i < 4; i++ {
		s.catalog.SeedTable(&models.Table{
			ID:           fmt.Sprintf("t-%d", i),
			RestaurantID: testRestaurant,
			Name:         fmt.Sprintf("Table %d", i),
			IsActive:     true,
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(table string) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := s.svc.Submit(s.ctx, &SubmitRequest{
					RestaurantID: testRestaurant,
					TableID:      table,
					Items:        []SubmitItem{{ProductID: "p-kebab", Quantity: 1}},
				})
				assert.NoError(s.T(), err)
			}
		}(fmt.Sprintf("t-%d", i))
	}
	wg.Wait()

	orders, err := s.svc.ListOrders(s.ctx, testRestaurant)
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 4, "one tab per table")
	for _, order := range orders {
		assert.Equal(s.T(), 5, order.Summary.ItemCount)
	}
}

func (s *OrderServiceTestSuite) TestCompleteAndReopen() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})

	require.NoError(s.T(), s.svc.Complete(s.ctx, testRestaurant, id))
	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.True(s.T(), order.IsCompleted)
	assert.False(s.T(), order.IsActive())

	require.NoError(s.T(), s.svc.Reopen(s.ctx, testRestaurant, id))
	order, err = s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.True(s.T(), order.IsActive())
}

func (s *OrderServiceTestSuite) TestCancelAndUncancel() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})

	require.NoError(s.T(), s.svc.Cancel(s.ctx, testRestaurant, id, models.CancelledByCustomer))
	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.True(s.T(), order.IsCancelled)
	assert.Equal(s.T(), models.CancelledByCustomer, order.CancelledBy)
	require.NotNil(s.T(), order.CancelledAt)

	require.NoError(s.T(), s.svc.Uncancel(s.ctx, testRestaurant, id))
	order, err = s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.False(s.T(), order.IsCancelled)
	assert.Empty(s.T(), order.CancelledBy)
	assert.Nil(s.T(), order.CancelledAt)
}

func (s *OrderServiceTestSuite) TestCompleteCancelledIsRejected() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})
	require.NoError(s.T(), s.svc.Cancel(s.ctx, testRestaurant, id, models.CancelledByRestaurant))

	err := s.svc.Complete(s.ctx, testRestaurant, id)
	assert.ErrorIs(s.T(), err, ErrInvalidTransition)
}

func (s *OrderServiceTestSuite) TestCancelCompletedIsRejected() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})
	require.NoError(s.T(), s.svc.Complete(s.ctx, testRestaurant, id))

	err := s.svc.Cancel(s.ctx, testRestaurant, id, models.CancelledByRestaurant)
	assert.ErrorIs(s.T(), err, ErrInvalidTransition)
}

func (s *OrderServiceTestSuite) TestLifecycleOnMissingOrder() {
	err := s.svc.Complete(s.ctx, testRestaurant, "ghost")
	assert.ErrorIs(s.T(), err, repositories.ErrOrderNotFound)
}

func (s *OrderServiceTestSuite) TestRemoveItemDecrements() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 3}, SubmitItem{ProductID: "p-kebab", Quantity: 1})

	require.NoError(s.T(), s.svc.RemoveItem(s.ctx, testRestaurant, id, "p-tea"))

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	require.Len(s.T(), order.Items, 2)
	assert.Equal(s.T(), 2, order.Items[0].Quantity)
	assert.Equal(s.T(), 2*3.5+14, order.Summary.Total)
}

func (s *OrderServiceTestSuite) TestRemoveItemDropsLineAtZero() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1}, SubmitItem{ProductID: "p-kebab", Quantity: 1})

	require.NoError(s.T(), s.svc.RemoveItem(s.ctx, testRestaurant, id, "p-tea"))

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	require.Len(s.T(), order.Items, 1)
	assert.Equal(s.T(), "p-kebab", order.Items[0].ProductID)
	assert.True(s.T(), order.IsActive())
}

func (s *OrderServiceTestSuite) TestRemoveLastItemAutoCancels() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})

	require.NoError(s.T(), s.svc.RemoveItem(s.ctx, testRestaurant, id, "p-tea"))

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), order.Items)
	assert.True(s.T(), order.IsCancelled)
	assert.Equal(s.T(), models.CancelledByRestaurant, order.CancelledBy)
	require.NotNil(s.T(), order.CancelledAt)
	assert.Zero(s.T(), order.Summary.Total)
}

func (s *OrderServiceTestSuite) TestUncancelEmptiedOrderIsRejected() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})
	require.NoError(s.T(), s.svc.RemoveItem(s.ctx, testRestaurant, id, "p-tea"))

	// Removing the last item auto-cancelled the order; reactivating it
	// would leave an empty active order as the table's merge target.
	err := s.svc.Uncancel(s.ctx, testRestaurant, id)
	assert.ErrorIs(s.T(), err, ErrInvalidTransition)

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.True(s.T(), order.IsCancelled)
	assert.Empty(s.T(), order.Items)
}

func (s *OrderServiceTestSuite) TestRemoveItemUnknownProduct() {
	id := s.submit(SubmitItem{ProductID: "p-tea", Quantity: 1})

	err := s.svc.RemoveItem(s.ctx, testRestaurant, id, "p-kebab")
	assert.ErrorIs(s.T(), err, ErrItemNotFound)
}

func (s *OrderServiceTestSuite) TestRemoveItemPreservesTaxRate() {
	taxed := NewOrderService(s.store, s.catalog, nil, 0.10)
	id, err := taxed.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		Items:        []SubmitItem{{ProductID: "p-kebab", Quantity: 2}},
	})
	require.NoError(s.T(), err)

	// The zero-rate service removes an item; the order must keep the 10%
	// rate it was written with, not inherit this service's rate.
	require.NoError(s.T(), s.svc.RemoveItem(s.ctx, testRestaurant, id, "p-kebab"))

	order, err := s.svc.GetOrder(s.ctx, testRestaurant, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 14.0, order.Summary.Subtotal)
	assert.InDelta(s.T(), 1.4, order.Summary.Tax, 1e-9)
	assert.InDelta(s.T(), 15.4, order.Summary.Total, 1e-9)
}

// recordingCache counts invalidations per restaurant; reads always miss.
type recordingCache struct {
	mu          sync.Mutex
	invalidated map[string]int
}

func (c *recordingCache) GetStats(ctx context.Context, restaurantID string) (*models.OrderStats, error) {
	return nil, nil
}

func (c *recordingCache) SetStats(ctx context.Context, restaurantID string, stats *models.OrderStats, ttl time.Duration) error {
	return nil
}

func (c *recordingCache) GetOrders(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	return nil, nil
}

func (c *recordingCache) SetOrders(ctx context.Context, restaurantID string, orders []*models.Order, ttl time.Duration) error {
	return nil
}

func (c *recordingCache) InvalidateRestaurant(ctx context.Context, restaurantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidated == nil {
		c.invalidated = make(map[string]int)
	}
	c.invalidated[restaurantID]++
	return nil
}

func (c *recordingCache) Ping(ctx context.Context) error { return nil }

func (c *recordingCache) count(restaurantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated[restaurantID]
}

func (s *OrderServiceTestSuite) TestMutationsInvalidateCache() {
	cache := &recordingCache{}
	svc := NewOrderService(s.store, s.catalog, cache, 0)

	id, err := svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		Items:        []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, cache.count(testRestaurant))

	require.NoError(s.T(), svc.Complete(s.ctx, testRestaurant, id))
	require.NoError(s.T(), svc.Reopen(s.ctx, testRestaurant, id))
	require.NoError(s.T(), svc.Cancel(s.ctx, testRestaurant, id, models.CancelledByCustomer))
	assert.Equal(s.T(), 4, cache.count(testRestaurant))
}

func (s *OrderServiceTestSuite) TestRejectedMutationLeavesCacheAlone() {
	cache := &recordingCache{}
	svc := NewOrderService(s.store, s.catalog, cache, 0)

	id, err := svc.Submit(s.ctx, &SubmitRequest{
		RestaurantID: testRestaurant,
		TableID:      testTable,
		Items:        []SubmitItem{{ProductID: "p-tea", Quantity: 1}},
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), svc.Cancel(s.ctx, testRestaurant, id, models.CancelledByRestaurant))
	before := cache.count(testRestaurant)

	err = svc.Complete(s.ctx, testRestaurant, id)
	assert.ErrorIs(s.T(), err, ErrInvalidTransition)
	assert.Equal(s.T(), before, cache.count(testRestaurant))
}
