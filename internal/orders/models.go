package orders

import "time"

type Product struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
}

type Order struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customer_id"`
	Status     Status      `json:"status"` // lihat status.go
	TotalCents int64       `json:"total_cents"`
	CreatedAt  time.Time   `json:"created_at"`
	Items      []OrderItem `json:"items"`
}

// OrderItem is immutable once written; UnitPriceCents is the product price at order time.
type OrderItem struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	ProductSKU     string `json:"product_sku,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

// ItemInput is one requested line of a new order.
type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"required,gt=0,lte=2147483647"`
}

// OrderFilter narrows ListOrders. Zero values mean "no filter".
type OrderFilter struct {
	Status Status
	From   time.Time
	To     time.Time
}

// ProductFilter narrows ListProducts; Search matches sku or name.
type ProductFilter struct {
	Search string
}

// sumItems recomputes the order total from its lines.
func sumItems(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.SubtotalCents
	}
	return total
}
