package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// ordersChannel is the NOTIFY channel commits publish on; the payload is
// the restaurant id.
const ordersChannel = "orders_changed"

const orderColumns = `id, restaurant_id, table_id, table_name, customer_name, items,
	subtotal, tax, total, item_count, special_instructions,
	is_completed, is_cancelled, cancelled_at, cancelled_by,
	created_at, updated_at, version`

// Database is the slice of the pgx pool surface the order store queries
// through. pgxmock satisfies it in tests.
type Database interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// postgresOrderStore persists orders in a single table with the item lines
// as a JSONB column. Per-table serialization uses an advisory transaction
// lock keyed by (restaurant, table), so creating the first order of a
// table serializes the same way as updating an existing one.
type postgresOrderStore struct {
	db Database

	// pool is kept alongside db because LISTEN needs a dedicated
	// connection, which only the real pool can hand out. Nil under test.
	pool *pgxpool.Pool
}

// NewPostgresOrderStore creates an order store backed by the given pool.
func NewPostgresOrderStore(pool *pgxpool.Pool) OrderStore {
	return &postgresOrderStore{db: pool, pool: pool}
}

func newPostgresOrderStoreWithDB(db Database) *postgresOrderStore {
	return &postgresOrderStore{db: db}
}

// EnsureOrdersSchema creates the orders table and its indexes if they do
// not exist yet. Called once at startup.
func EnsureOrdersSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			table_id TEXT NOT NULL,
			table_name TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			items JSONB NOT NULL DEFAULT '[]',
			subtotal DOUBLE PRECISION NOT NULL DEFAULT 0,
			tax DOUBLE PRECISION NOT NULL DEFAULT 0,
			total DOUBLE PRECISION NOT NULL DEFAULT 0,
			item_count INTEGER NOT NULL DEFAULT 0,
			special_instructions TEXT NOT NULL DEFAULT '',
			is_completed BOOLEAN NOT NULL DEFAULT FALSE,
			is_cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			cancelled_at TIMESTAMPTZ,
			cancelled_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_restaurant ON orders (restaurant_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_active_table ON orders (restaurant_id, table_id, created_at)
			WHERE NOT is_completed AND NOT is_cancelled`,
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure orders schema: %w", err)
		}
	}
	return nil
}

func (s *postgresOrderStore) ReadActiveOrder(ctx context.Context, restaurantID, tableID string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE restaurant_id = $1 AND table_id = $2 AND NOT is_completed AND NOT is_cancelled
		ORDER BY created_at ASC
		LIMIT 1
	`, restaurantID, tableID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return order, err
}

func (s *postgresOrderStore) GetOrder(ctx context.Context, restaurantID, orderID string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE restaurant_id = $1 AND id = $2
	`, restaurantID, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func (s *postgresOrderStore) Orders(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE restaurant_id = $1
		ORDER BY created_at DESC
	`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *postgresOrderStore) Restaurants(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT restaurant_id FROM orders ORDER BY restaurant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *postgresOrderStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *postgresOrderStore) Transact(ctx context.Context, restaurantID, tableID string, fn func(tx OrderTx) error) error {
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.runTx(ctx, restaurantID, tableID, fn)
		if err == nil {
			return nil
		}
		if !isRetryablePgError(err) {
			return err
		}
		log.Printf("order store: transaction on %s/%s conflicted (attempt %d/%d)", restaurantID, tableID, attempt, maxTxAttempts)
	}
	return ErrConflict
}

func (s *postgresOrderStore) runTx(ctx context.Context, restaurantID, tableID string, fn func(tx OrderTx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tableKey(restaurantID, tableID)); err != nil {
		return err
	}
	if err := fn(&postgresTx{ctx: ctx, tx: tx, restaurantID: restaurantID, tableID: tableID}); err != nil {
		return err
	}
	// Delivered to LISTENers on commit.
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, ordersChannel, restaurantID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isRetryablePgError reports whether the error is a serialization failure,
// deadlock, or lock timeout worth re-running the transaction body for.
func isRetryablePgError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

func (s *postgresOrderStore) Subscribe(ctx context.Context, restaurantID string) (<-chan Snapshot, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("%w: no listen-capable pool configured", ErrStoreUnavailable)
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+ordersChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ch := make(chan Snapshot, 1)
	go func() {
		defer close(ch)
		defer conn.Release()

		if orders, err := s.Orders(ctx, restaurantID); err == nil {
			pushSnapshot(ch, Snapshot{RestaurantID: restaurantID, Orders: orders})
		} else if ctx.Err() == nil {
			log.Printf("order store: initial snapshot for %s failed: %v", restaurantID, err)
		}

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("order store: change feed for %s ended: %v", restaurantID, err)
				}
				return
			}
			if notification.Payload != restaurantID {
				continue
			}
			orders, err := s.Orders(ctx, restaurantID)
			if err != nil {
				log.Printf("order store: snapshot after notify for %s failed: %v", restaurantID, err)
				continue
			}
			pushSnapshot(ch, Snapshot{RestaurantID: restaurantID, Orders: orders})
		}
	}()
	return ch, nil
}

// pushSnapshot delivers without blocking: a stale undelivered snapshot is
// dropped in favor of the newest one.
func pushSnapshot(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// postgresTx implements OrderTx inside one database transaction. The
// advisory lock taken by runTx serializes same-table bodies.
type postgresTx struct {
	ctx          context.Context
	tx           pgx.Tx
	restaurantID string
	tableID      string
}

func (t *postgresTx) ActiveOrder() (*models.Order, error) {
	row := t.tx.QueryRow(t.ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE restaurant_id = $1 AND table_id = $2 AND NOT is_completed AND NOT is_cancelled
		ORDER BY created_at ASC
		LIMIT 1
	`, t.restaurantID, t.tableID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return order, err
}

func (t *postgresTx) Get(orderID string) (*models.Order, error) {
	row := t.tx.QueryRow(t.ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE restaurant_id = $1 AND id = $2
	`, t.restaurantID, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func (t *postgresTx) Put(order *models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}
	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO orders (
			id, restaurant_id, table_id, table_name, customer_name, items,
			subtotal, tax, total, item_count, special_instructions,
			is_completed, is_cancelled, cancelled_at, cancelled_by,
			created_at, updated_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), 0)
		ON CONFLICT (id) DO UPDATE SET
			table_name = EXCLUDED.table_name,
			customer_name = EXCLUDED.customer_name,
			items = EXCLUDED.items,
			subtotal = EXCLUDED.subtotal,
			tax = EXCLUDED.tax,
			total = EXCLUDED.total,
			item_count = EXCLUDED.item_count,
			special_instructions = EXCLUDED.special_instructions,
			is_completed = EXCLUDED.is_completed,
			is_cancelled = EXCLUDED.is_cancelled,
			cancelled_at = EXCLUDED.cancelled_at,
			cancelled_by = EXCLUDED.cancelled_by,
			updated_at = NOW(),
			version = orders.version + 1
	`, order.ID, order.RestaurantID, order.TableID, order.TableName, order.CustomerName, items,
		order.Summary.Subtotal, order.Summary.Tax, order.Summary.Total, order.Summary.ItemCount,
		order.SpecialInstructions, order.IsCompleted, order.IsCancelled, order.CancelledAt,
		string(order.CancelledBy), order.CreatedAt)
	return err
}

// scanOrder reads one order row; works for both pgx.Row and pgx.Rows.
func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	var items []byte
	var cancelledBy string
	err := row.Scan(
		&order.ID, &order.RestaurantID, &order.TableID, &order.TableName, &order.CustomerName, &items,
		&order.Summary.Subtotal, &order.Summary.Tax, &order.Summary.Total, &order.Summary.ItemCount,
		&order.SpecialInstructions, &order.IsCompleted, &order.IsCancelled, &order.CancelledAt,
		&cancelledBy, &order.CreatedAt, &order.UpdatedAt, &order.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	order.CancelledBy = models.CancelActor(cancelledBy)
	return order, nil
}
