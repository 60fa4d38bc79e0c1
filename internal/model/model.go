// Package model holds the document shapes persisted in the store.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable inventory item.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	QuantityOnHand int             `json:"quantity_on_hand"`
	Price          decimal.Decimal `json:"price"`
	Category       string          `json:"category"`
	ImageRef       string          `json:"image_ref,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Staff is an admin, seller or waiter account. Credentials live outside
// this type and are never serialized with it.
type Staff struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	AvatarRef string    `json:"avatar_ref,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Table is one of the fixed dining tables.
type Table struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	Capacity int    `json:"capacity"`
	State    string `json:"state"`
}

// OrderLine is a product staged on a waiter's order.
type OrderLine struct {
	ProductID       string          `json:"product_id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	QuantityOrdered int             `json:"quantity_ordered"`
}

// Order is an open tab for a table.
type Order struct {
	ID          string          `json:"id"`
	TableNumber int             `json:"table_number"`
	LineItems   []OrderLine     `json:"line_items"`
	Total       decimal.Decimal `json:"total"`
	Notes       string          `json:"notes"`
	WaiterID    string          `json:"waiter_id"`
	WaiterName  string          `json:"waiter_name"`
	Branch      string          `json:"branch,omitempty"`
	State       string          `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

// SaleLine is a product line on a pending checkout or a sale.
type SaleLine struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	QuantitySold int             `json:"quantity_sold"`
}

// Subtotal is price × quantity.
func (l SaleLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.QuantitySold)))
}

// PendingCheckout is an order handed from a waiter to the seller queue.
type PendingCheckout struct {
	ID            string          `json:"id"`
	LineItems     []SaleLine      `json:"line_items"`
	Total         decimal.Decimal `json:"total"`
	TableNumber   int             `json:"table_number"`
	WaiterName    string          `json:"waiter_name"`
	Branch        string          `json:"branch,omitempty"`
	SourceOrderID string          `json:"source_order_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Sale is an immutable record of a paid transaction.
type Sale struct {
	ID              string           `json:"id"`
	LineItems       []SaleLine       `json:"line_items"`
	Total           decimal.Decimal  `json:"total"`
	CashTendered    *decimal.Decimal `json:"cash_tendered,omitempty"`
	ChangeGiven     *decimal.Decimal `json:"change_given,omitempty"`
	PaymentMethod   string           `json:"payment_method"`
	Timestamp       time.Time        `json:"timestamp"`
	SellerID        string           `json:"seller_id"`
	SellerName      string           `json:"seller_name"`
	Branch          string           `json:"branch,omitempty"`
	TableNumber     *int             `json:"table_number,omitempty"`
	WaiterName      string           `json:"waiter_name,omitempty"`
	SourcePendingID string           `json:"source_pending_id,omitempty"`
}

// Customer is invoice-only data; it is never persisted.
type Customer struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

// Session identifies the staff member behind a request.
type Session struct {
	StaffID  string
	Username string
	Role     string
	Branch   string
}
