package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string          `json:"id"`
	Barcode      string          `json:"barcode,omitempty"`
	Name         string          `json:"name"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Stock        int             `json:"stock"`
	MinStock     int             `json:"min_stock"`
	Unit         string          `json:"unit"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// InvoiceItem snapshots product name, barcode and cost price at sale time.
// These fields are never refreshed when the product is later edited.
type InvoiceItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Barcode     string          `json:"barcode,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CostPrice   decimal.Decimal `json:"cost_price"`
}

type Invoice struct {
	ID               string          `json:"id"`
	Items            []InvoiceItem   `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	Total            decimal.Decimal `json:"total"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Status           string          `json:"status"`
	PaymentMethod    string          `json:"payment_method"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Synced           bool            `json:"synced"`
}

// Expense is informational only and excluded from stock/balance rules.
type Expense struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

type EntityType string

const (
	EntityProduct EntityType = "product"
	EntityInvoice EntityType = "invoice"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// PendingOperation is a durable record of a not-yet-confirmed mutation.
// EntityType/Action discriminate the payload: exactly one of Product or
// Invoice is non-nil. Its ID is generated independently of the entity's,
// so several operations can reference the same entity.
type PendingOperation struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Action     Action     `json:"action"`
	EntityID   string     `json:"entity_id"`
	Product    *Product   `json:"product,omitempty"`
	Invoice    *Invoice   `json:"invoice,omitempty"`
	IsReturn   bool       `json:"is_return,omitempty"`
	Seq        uint64     `json:"seq"`
	Timestamp  time.Time  `json:"timestamp"`
	Synced     bool       `json:"synced"`
	SyncedAt   *time.Time `json:"synced_at,omitempty"`
}

type ProductCreateRequest struct {
	Barcode      string          `json:"barcode"`
	Name         string          `json:"name"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Stock        int             `json:"stock"`
	MinStock     int             `json:"min_stock"`
	Unit         string          `json:"unit"`
}

type ProductUpdateRequest struct {
	Barcode      *string          `json:"barcode,omitempty"`
	Name         *string          `json:"name,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	Stock        *int             `json:"stock,omitempty"`
	MinStock     *int             `json:"min_stock,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
}

type InvoiceItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type InvoiceCreateRequest struct {
	Items         []InvoiceItemRequest `json:"items"`
	Discount      decimal.Decimal      `json:"discount"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
	PaymentMethod string               `json:"payment_method"`
	Notes         string               `json:"notes"`
}

type InvoiceUpdateRequest struct {
	Items         []InvoiceItemRequest `json:"items,omitempty"`
	Discount      *decimal.Decimal     `json:"discount,omitempty"`
	PaidAmount    *decimal.Decimal     `json:"paid_amount,omitempty"`
	PaymentMethod *string              `json:"payment_method,omitempty"`
	Notes         *string              `json:"notes,omitempty"`
}

type ExpenseCreateRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type SyncStatus struct {
	Online       bool       `json:"online"`
	PendingCount int        `json:"pending_count"`
	Syncing      bool       `json:"syncing"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

const (
	InvoiceStatusPaid    = "paid"
	InvoiceStatusPartial = "partial"
	InvoiceStatusUnpaid  = "unpaid"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)
