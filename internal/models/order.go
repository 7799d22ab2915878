package models

import (
	"strings"
	"time"
)

// CancelActor identifies which side of the counter cancelled an order.
type CancelActor string

const (
	CancelledByCustomer   CancelActor = "customer"
	CancelledByRestaurant CancelActor = "restaurant"
)

// OrderNumberLength is the number of trailing identifier characters shown
// to staff and matched by "#" searches.
const OrderNumberLength = 6

// OrderItem is one line of an order. Lines are kept in insertion order and
// no two lines share a ProductID; merging by product happens in the order
// service, not here.
type OrderItem struct {
	ProductID string  `json:"product_id" bson:"product_id"`
	Name      string  `json:"name" bson:"name"`
	UnitPrice float64 `json:"unit_price" bson:"unit_price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
	Subtotal  float64 `json:"subtotal" bson:"subtotal"`
}

// OrderSummary holds the derived totals of an order. It is recomputed from
// the item lines on every mutation and never edited directly.
type OrderSummary struct {
	Subtotal  float64 `json:"subtotal" bson:"subtotal"`
	Tax       float64 `json:"tax" bson:"tax"`
	Total     float64 `json:"total" bson:"total"`
	ItemCount int     `json:"item_count" bson:"item_count"`
}

// OrderStats is the live dashboard aggregate over one restaurant's orders.
type OrderStats struct {
	ActiveCount    int     `json:"active_count"`
	CompletedCount int     `json:"completed_count"`
	CancelledCount int     `json:"cancelled_count"`
	TotalRevenue   float64 `json:"total_revenue"`
}

// Order is the central entity: one tab for one table, merged across
// submissions until staff completes or cancels it. Orders are never
// physically deleted; cancellation is a soft state.
type Order struct {
	ID                  string       `json:"id" bson:"_id"`
	RestaurantID        string       `json:"restaurant_id" bson:"restaurant_id"`
	TableID             string       `json:"table_id" bson:"table_id"`
	TableName           string       `json:"table_name" bson:"table_name"`
	CustomerName        string       `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	Items               []OrderItem  `json:"items" bson:"items"`
	Summary             OrderSummary `json:"summary" bson:"summary"`
	SpecialInstructions string       `json:"special_instructions,omitempty" bson:"special_instructions,omitempty"`
	IsCompleted         bool         `json:"is_completed" bson:"is_completed"`
	IsCancelled         bool         `json:"is_cancelled" bson:"is_cancelled"`
	CancelledAt         *time.Time   `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelledBy         CancelActor  `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CreatedAt           time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" bson:"updated_at"`

	// Version is store bookkeeping for optimistic concurrency control.
	Version int64 `json:"version" bson:"version"`
}

// IsActive reports whether the order is still open for merging.
func (o *Order) IsActive() bool {
	return !o.IsCompleted && !o.IsCancelled
}

// Number returns the short human-facing order number: the trailing
// characters of the identifier, uppercased.
func (o *Order) Number() string {
	id := o.ID
	if len(id) > OrderNumberLength {
		id = id[len(id)-OrderNumberLength:]
	}
	return strings.ToUpper(id)
}

// Item returns the line for productID, or nil.
func (o *Order) Item(productID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// TaxRate returns the effective tax rate of the current summary, derived as
// tax over subtotal. Zero when the order has no subtotal.
func (o *Order) TaxRate() float64 {
	if o.Summary.Subtotal == 0 {
		return 0
	}
	return o.Summary.Tax / o.Summary.Subtotal
}

// RecomputeSummary rebuilds the derived totals from the item lines using
// the given tax rate. Item subtotals are normalized at the same time so the
// unit-price times quantity invariant holds after any mutation.
func (o *Order) RecomputeSummary(taxRate float64) {
	var subtotal float64
	var count int
	for i := range o.Items {
		o.Items[i].Subtotal = o.Items[i].UnitPrice * float64(o.Items[i].Quantity)
		subtotal += o.Items[i].Subtotal
		count += o.Items[i].Quantity
	}
	tax := subtotal * taxRate
	o.Summary = OrderSummary{
		Subtotal:  subtotal,
		Tax:       tax,
		Total:     subtotal + tax,
		ItemCount: count,
	}
}

// Cancel marks the order cancelled on behalf of the given actor.
func (o *Order) Cancel(by CancelActor, at time.Time) {
	o.IsCancelled = true
	o.CancelledAt = &at
	o.CancelledBy = by
}

// Uncancel clears the cancelled state and its audit fields together.
func (o *Order) Uncancel() {
	o.IsCancelled = false
	o.CancelledAt = nil
	o.CancelledBy = ""
}

// Clone returns a deep copy, so store snapshots can be handed to readers
// without aliasing the stored record.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = make([]OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		cp.CancelledAt = &at
	}
	return &cp
}
