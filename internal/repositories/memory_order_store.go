package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// memoryOrderStore keeps every order in process memory. It is the default
// backend for development and the reference implementation the concurrency
// tests run against: a mutex per (restaurant, table) linearizes Transact
// bodies exactly like the row locks of the durable backends.
type memoryOrderStore struct {
	mu      sync.RWMutex
	orders  map[string]map[string]*models.Order // restaurant id -> order id -> order
	tableMu map[string]*sync.Mutex              // restaurant id + table id -> lock
	feeds   map[string][]*memoryFeed
}

// NewMemoryOrderStore creates an empty in-memory order store.
func NewMemoryOrderStore() OrderStore {
	return &memoryOrderStore{
		orders:  make(map[string]map[string]*models.Order),
		tableMu: make(map[string]*sync.Mutex),
		feeds:   make(map[string][]*memoryFeed),
	}
}

func tableKey(restaurantID, tableID string) string {
	return restaurantID + "/" + tableID
}

func (s *memoryOrderStore) lockFor(restaurantID, tableID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tableKey(restaurantID, tableID)
	if mu, ok := s.tableMu[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	s.tableMu[key] = mu
	return mu
}

func (s *memoryOrderStore) ReadActiveOrder(ctx context.Context, restaurantID, tableID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if order := s.activeOrderLocked(restaurantID, tableID); order != nil {
		return order.Clone(), nil
	}
	return nil, nil
}

// activeOrderLocked returns the oldest active order of a table. Caller
// holds at least a read lock.
func (s *memoryOrderStore) activeOrderLocked(restaurantID, tableID string) *models.Order {
	var oldest *models.Order
	for _, order := range s.orders[restaurantID] {
		if order.TableID != tableID || !order.IsActive() {
			continue
		}
		if oldest == nil || order.CreatedAt.Before(oldest.CreatedAt) {
			oldest = order
		}
	}
	return oldest
}

func (s *memoryOrderStore) GetOrder(ctx context.Context, restaurantID, orderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[restaurantID][orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *memoryOrderStore) Orders(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(restaurantID).Orders, nil
}

func (s *memoryOrderStore) Restaurants(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryOrderStore) Ping(ctx context.Context) error {
	return nil
}

func (s *memoryOrderStore) Transact(ctx context.Context, restaurantID, tableID string, fn func(tx OrderTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := s.lockFor(restaurantID, tableID)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		tx := &memoryTx{
			store:        s,
			restaurantID: restaurantID,
			tableID:      tableID,
			reads:        make(map[string]int64),
			writes:       make(map[string]*models.Order),
		}
		if err := fn(tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
		// Another table's transaction moved one of our read orders
		// underneath us; run the body again against fresh state.
	}
	return ErrConflict
}

// commit applies the staged writes if every order read by the transaction
// is still at the version it was read at.
func (s *memoryOrderStore) commit(tx *memoryTx) bool {
	s.mu.Lock()
	for id, version := range tx.reads {
		current, ok := s.orders[tx.restaurantID][id]
		if !ok || current.Version != version {
			s.mu.Unlock()
			return false
		}
	}
	if len(tx.writes) == 0 {
		s.mu.Unlock()
		return true
	}
	byRestaurant, ok := s.orders[tx.restaurantID]
	if !ok {
		byRestaurant = make(map[string]*models.Order)
		s.orders[tx.restaurantID] = byRestaurant
	}
	now := time.Now()
	for id, order := range tx.writes {
		stored := order.Clone()
		stored.Version++
		stored.UpdatedAt = now
		byRestaurant[id] = stored
	}
	snap := s.snapshotLocked(tx.restaurantID)
	feeds := make([]*memoryFeed, len(s.feeds[tx.restaurantID]))
	copy(feeds, s.feeds[tx.restaurantID])
	s.mu.Unlock()

	for _, feed := range feeds {
		feed.send(snap)
	}
	return true
}

// snapshotLocked builds a newest-first snapshot of a restaurant's orders.
// Caller holds at least a read lock.
func (s *memoryOrderStore) snapshotLocked(restaurantID string) Snapshot {
	orders := make([]*models.Order, 0, len(s.orders[restaurantID]))
	for _, order := range s.orders[restaurantID] {
		orders = append(orders, order.Clone())
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return Snapshot{RestaurantID: restaurantID, Orders: orders}
}

func (s *memoryOrderStore) Subscribe(ctx context.Context, restaurantID string) (<-chan Snapshot, error) {
	feed := &memoryFeed{ch: make(chan Snapshot, 1)}

	s.mu.Lock()
	s.feeds[restaurantID] = append(s.feeds[restaurantID], feed)
	snap := s.snapshotLocked(restaurantID)
	s.mu.Unlock()

	feed.send(snap)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		feeds := s.feeds[restaurantID]
		for i, f := range feeds {
			if f == feed {
				s.feeds[restaurantID] = append(feeds[:i], feeds[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		feed.close()
	}()

	return feed.ch, nil
}

// memoryFeed is one subscriber channel. Capacity one plus drop-stale on
// send coalesces bursts to the newest snapshot, so a slow consumer never
// stalls a commit.
type memoryFeed struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
}

func (f *memoryFeed) send(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for {
		select {
		case f.ch <- snap:
			return
		default:
			select {
			case <-f.ch:
			default:
			}
		}
	}
}

func (f *memoryFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// memoryTx implements OrderTx over the store maps. Reads record the
// version seen so commit can detect writes that raced in from other
// tables; same-table writers are already serialized by the table lock.
type memoryTx struct {
	store        *memoryOrderStore
	restaurantID string
	tableID      string
	reads        map[string]int64
	writes       map[string]*models.Order
}

func (tx *memoryTx) ActiveOrder() (*models.Order, error) {
	for _, order := range tx.writes {
		if order.TableID == tx.tableID && order.IsActive() {
			return order.Clone(), nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	order := tx.store.activeOrderLocked(tx.restaurantID, tx.tableID)
	if order == nil {
		return nil, nil
	}
	tx.reads[order.ID] = order.Version
	return order.Clone(), nil
}

func (tx *memoryTx) Get(orderID string) (*models.Order, error) {
	if order, ok := tx.writes[orderID]; ok {
		return order.Clone(), nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	order, ok := tx.store.orders[tx.restaurantID][orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	tx.reads[order.ID] = order.Version
	return order.Clone(), nil
}

func (tx *memoryTx) Put(order *models.Order) error {
	tx.writes[order.ID] = order.Clone()
	return nil
}
