package repositories

import (
	"context"
	"errors"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// Sentinel errors shared by every order store backend. Callers branch on
// these with errors.Is; backend-specific detail is wrapped around them.
var (
	// ErrConflict is returned after the bounded retry budget for a
	// write-write collision is exhausted. Retry-safe for the caller.
	ErrConflict = errors.New("order store: transaction conflict")

	// ErrOrderNotFound is returned for reads and lifecycle operations on
	// an identifier that does not exist in the restaurant's order set.
	ErrOrderNotFound = errors.New("order store: order not found")

	// ErrStoreUnavailable wraps transport or backend failures; retryable
	// with backoff.
	ErrStoreUnavailable = errors.New("order store: backend unavailable")
)

// maxTxAttempts bounds the internal retry loop of Transact before a
// conflict escalates to ErrConflict.
const maxTxAttempts = 5

// Snapshot is one change-feed delivery: the full order set of a restaurant
// at some point after a commit. Delivery is at-least-once and may reorder
// relative to commit order, so consumers must diff by identifier, never by
// counts or sequence.
type Snapshot struct {
	RestaurantID string
	Orders       []*models.Order
}

// OrderTx is the view handed to a Transact body. All reads return private
// copies; mutations become visible only if the body returns nil and the
// commit succeeds.
type OrderTx interface {
	// ActiveOrder returns the oldest active order of the transacted
	// table, or nil when the table has none. Oldest wins when a prior
	// bug left more than one active order on the table.
	ActiveOrder() (*models.Order, error)

	// Get returns the order with the given id, or ErrOrderNotFound.
	Get(orderID string) (*models.Order, error)

	// Put stages an insert or update of the given order.
	Put(order *models.Order) error
}

// OrderStore is the persistence contract of the order engine. All
// mutations to a single table's active order are linearized by Transact;
// transactions on different tables may proceed concurrently.
type OrderStore interface {
	// ReadActiveOrder returns the oldest active order for a table
	// outside any transaction, or nil when the table has none.
	ReadActiveOrder(ctx context.Context, restaurantID, tableID string) (*models.Order, error)

	// GetOrder returns one order by id, or ErrOrderNotFound.
	GetOrder(ctx context.Context, restaurantID, orderID string) (*models.Order, error)

	// Orders returns every order of a restaurant, newest first.
	Orders(ctx context.Context, restaurantID string) ([]*models.Order, error)

	// Restaurants lists the restaurant ids that currently have orders.
	Restaurants(ctx context.Context) ([]string, error)

	// Transact runs fn with serializable isolation keyed by (restaurant,
	// table), retrying the body from scratch on write-write conflicts up
	// to a bounded attempt count before failing with ErrConflict. Any
	// error returned by fn aborts the transaction and is propagated
	// unchanged.
	Transact(ctx context.Context, restaurantID, tableID string, fn func(tx OrderTx) error) error

	// Subscribe opens a change feed for one restaurant. The current
	// snapshot is delivered first; afterwards a snapshot follows every
	// commit. Slow consumers are coalesced to the newest snapshot rather
	// than blocking writers. The channel closes when ctx is done or the
	// feed fails; consumers are expected to resubscribe.
	Subscribe(ctx context.Context, restaurantID string) (<-chan Snapshot, error)

	// Ping reports backend connectivity.
	Ping(ctx context.Context) error
}
