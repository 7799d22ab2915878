package repositories

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// mongoOrderStore is the document-oriented backend: one orders collection
// scoped by restaurant_id, session transactions for the read-modify-write
// cycle, and change streams for the feed. Requires a replica set, as both
// transactions and change streams do.
type mongoOrderStore struct {
	client *mongo.Client
	orders *mongo.Collection
	locks  *mongo.Collection
}

// NewMongoOrderStore creates an order store over the given database using
// the "orders" and "table_locks" collections.
func NewMongoOrderStore(db *mongo.Database) OrderStore {
	return &mongoOrderStore{
		client: db.Client(),
		orders: db.Collection("orders"),
		locks:  db.Collection("table_locks"),
	}
}

func activeOrderFilter(restaurantID, tableID string) bson.M {
	return bson.M{
		"restaurant_id": restaurantID,
		"table_id":      tableID,
		"is_completed":  false,
		"is_cancelled":  false,
	}
}

func (s *mongoOrderStore) ReadActiveOrder(ctx context.Context, restaurantID, tableID string) (*models.Order, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var order models.Order
	err := s.orders.FindOne(ctx, activeOrderFilter(restaurantID, tableID), opts).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *mongoOrderStore) GetOrder(ctx context.Context, restaurantID, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"_id": orderID, "restaurant_id": restaurantID}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *mongoOrderStore) Orders(ctx context.Context, restaurantID string) ([]*models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.orders.Find(ctx, bson.M{"restaurant_id": restaurantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []*models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *mongoOrderStore) Restaurants(ctx context.Context) ([]string, error) {
	values, err := s.orders.Distinct(ctx, "restaurant_id", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *mongoOrderStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *mongoOrderStore) Transact(ctx context.Context, restaurantID, tableID string, fn func(tx OrderTx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer session.EndSession(ctx)

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			// Bump the per-table guard first: concurrent transactions on
			// the same table then write-conflict and one of them retries,
			// which is what linearizes the merge.
			_, err := s.locks.UpdateOne(sc,
				bson.M{"_id": tableKey(restaurantID, tableID)},
				bson.M{"$inc": bson.M{"version": 1}},
				options.Update().SetUpsert(true))
			if err != nil {
				return nil, err
			}
			return nil, fn(&mongoTx{ctx: sc, store: s, restaurantID: restaurantID, tableID: tableID})
		})
		if err == nil {
			return nil
		}
		if !isTransientMongoError(err) {
			return err
		}
		log.Printf("order store: transaction on %s/%s conflicted (attempt %d/%d)", restaurantID, tableID, attempt, maxTxAttempts)
	}
	return ErrConflict
}

func isTransientMongoError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.HasErrorLabel("TransientTransactionError") ||
			cmdErr.HasErrorLabel("UnknownTransactionCommitResult")
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		return writeErr.HasErrorLabel("TransientTransactionError")
	}
	return false
}

func (s *mongoOrderStore) Subscribe(ctx context.Context, restaurantID string) (<-chan Snapshot, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "fullDocument.restaurant_id", Value: restaurantID}}}},
	}
	stream, err := s.orders.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ch := make(chan Snapshot, 1)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		if orders, err := s.Orders(ctx, restaurantID); err == nil {
			pushSnapshot(ch, Snapshot{RestaurantID: restaurantID, Orders: orders})
		} else if ctx.Err() == nil {
			log.Printf("order store: initial snapshot for %s failed: %v", restaurantID, err)
		}

		for stream.Next(ctx) {
			orders, err := s.Orders(ctx, restaurantID)
			if err != nil {
				log.Printf("order store: snapshot after change for %s failed: %v", restaurantID, err)
				continue
			}
			pushSnapshot(ch, Snapshot{RestaurantID: restaurantID, Orders: orders})
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			log.Printf("order store: change stream for %s ended: %v", restaurantID, err)
		}
	}()
	return ch, nil
}

// mongoTx runs OrderTx operations inside one session transaction.
type mongoTx struct {
	ctx          mongo.SessionContext
	store        *mongoOrderStore
	restaurantID string
	tableID      string
}

func (t *mongoTx) ActiveOrder() (*models.Order, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var order models.Order
	err := t.store.orders.FindOne(t.ctx, activeOrderFilter(t.restaurantID, t.tableID), opts).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *mongoTx) Get(orderID string) (*models.Order, error) {
	var order models.Order
	err := t.store.orders.FindOne(t.ctx, bson.M{"_id": orderID, "restaurant_id": t.restaurantID}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *mongoTx) Put(order *models.Order) error {
	staged := order.Clone()
	staged.Version++
	staged.UpdatedAt = time.Now()
	_, err := t.store.orders.ReplaceOne(t.ctx,
		bson.M{"_id": staged.ID},
		staged,
		options.Replace().SetUpsert(true))
	return err
}
