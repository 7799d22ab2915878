package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// mongoCatalogRepo reads the menu reference data from the CRUD layer's
// "products" and "tables" collections on the same database the order
// documents live in.
type mongoCatalogRepo struct {
	products *mongo.Collection
	tables   *mongo.Collection
}

// NewMongoCatalogRepo creates a catalog repository over the menu
// collections owned by the CRUD layer.
func NewMongoCatalogRepo(db *mongo.Database) CatalogRepository {
	return &mongoCatalogRepo{
		products: db.Collection("products"),
		tables:   db.Collection("tables"),
	}
}

func (r *mongoCatalogRepo) GetProduct(ctx context.Context, restaurantID, productID string) (*models.Product, error) {
	var product models.Product
	err := r.products.FindOne(ctx, bson.M{"_id": productID, "restaurant_id": restaurantID}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotInCatalog
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *mongoCatalogRepo) GetTable(ctx context.Context, restaurantID, tableID string) (*models.Table, error) {
	var table models.Table
	err := r.tables.FindOne(ctx, bson.M{"_id": tableID, "restaurant_id": restaurantID}).Decode(&table)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotInCatalog
	}
	if err != nil {
		return nil, err
	}
	return &table, nil
}
