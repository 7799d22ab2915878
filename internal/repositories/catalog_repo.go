package repositories

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/models"
)

// ErrNotInCatalog is returned for lookups of products or tables the menu
// CRUD layer has never created.
var ErrNotInCatalog = errors.New("catalog: no such entry")

// CatalogRepository is the read-only view of the menu reference data. The
// order engine uses it to validate and materialize item lines at
// submission time and never writes through it.
type CatalogRepository interface {
	GetProduct(ctx context.Context, restaurantID, productID string) (*models.Product, error)
	GetTable(ctx context.Context, restaurantID, tableID string) (*models.Table, error)
}

type catalogRepo struct {
	db *pgxpool.Pool
}

// NewCatalogRepo creates a catalog repository over the menu tables owned
// by the CRUD layer.
func NewCatalogRepo(db *pgxpool.Pool) CatalogRepository {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) GetProduct(ctx context.Context, restaurantID, productID string) (*models.Product, error) {
	product := &models.Product{}
	query := `
		SELECT id, restaurant_id, category_id, name, price, is_available
		FROM products
		WHERE restaurant_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, restaurantID, productID).Scan(
		&product.ID, &product.RestaurantID, &product.CategoryID,
		&product.Name, &product.Price, &product.IsAvailable,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotInCatalog
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (r *catalogRepo) GetTable(ctx context.Context, restaurantID, tableID string) (*models.Table, error) {
	table := &models.Table{}
	query := `
		SELECT id, restaurant_id, name, is_active
		FROM tables
		WHERE restaurant_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, restaurantID, tableID).Scan(
		&table.ID, &table.RestaurantID, &table.Name, &table.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotInCatalog
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}

// memoryCatalog backs the catalog for the in-memory store configuration
// and for tests.
type memoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*models.Product // restaurant id + product id
	tables   map[string]*models.Table
}

// MemoryCatalog is a seedable in-memory CatalogRepository.
type MemoryCatalog interface {
	CatalogRepository
	SeedProduct(product *models.Product)
	SeedTable(table *models.Table)
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() MemoryCatalog {
	return &memoryCatalog{
		products: make(map[string]*models.Product),
		tables:   make(map[string]*models.Table),
	}
}

func (c *memoryCatalog) GetProduct(ctx context.Context, restaurantID, productID string) (*models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, ok := c.products[restaurantID+"/"+productID]
	if !ok {
		return nil, ErrNotInCatalog
	}
	cp := *product
	return &cp, nil
}

func (c *memoryCatalog) GetTable(ctx context.Context, restaurantID, tableID string) (*models.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	table, ok := c.tables[restaurantID+"/"+tableID]
	if !ok {
		return nil, ErrNotInCatalog
	}
	cp := *table
	return &cp, nil
}

func (c *memoryCatalog) SeedProduct(product *models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *product
	c.products[product.RestaurantID+"/"+product.ID] = &cp
}

func (c *memoryCatalog) SeedTable(table *models.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *table
	c.tables[table.RestaurantID+"/"+table.ID] = &cp
}
