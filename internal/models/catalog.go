package models

// Catalog entities are reference data owned by the menu CRUD layer. The
// order engine only reads them, to validate and materialize item lines at
// submission time.

type Restaurant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	Name         string `json:"name"`
}

type Product struct {
	ID           string  `json:"id" bson:"_id"`
	RestaurantID string  `json:"restaurant_id" bson:"restaurant_id"`
	CategoryID   string  `json:"category_id" bson:"category_id"`
	Name         string  `json:"name" bson:"name"`
	Price        float64 `json:"price" bson:"price"`
	IsAvailable  bool    `json:"is_available" bson:"is_available"`
}

type Table struct {
	ID           string `json:"id" bson:"_id"`
	RestaurantID string `json:"restaurant_id" bson:"restaurant_id"`
	Name         string `json:"name" bson:"name"`
	IsActive     bool   `json:"is_active" bson:"is_active"`
}
