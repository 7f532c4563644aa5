package store

import (
	"context"
	"time"
)

// Denomination is one of the three wallet currencies. WL is the unit the
// purchase path charges in; DL and BGL relate to it by fixed rates owned by
// the ledger service.
type Denomination string

const (
	DenomWL  Denomination = "WL"
	DenomDL  Denomination = "DL"
	DenomBGL Denomination = "BGL"
)

func (d Denomination) Valid() bool {
	return d == DenomWL || d == DenomDL || d == DenomBGL
}

type TokenState string

const (
	TokenAvailable TokenState = "available"
	TokenConsumed  TokenState = "consumed"
)

type Balance struct {
	GrowID string `json:"growid"`
	WL     int64  `json:"wl"`
	DL     int64  `json:"dl"`
	BGL    int64  `json:"bgl"`
}

type Product struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"` // WL per unit
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductListing is a Product plus its live available-token count. The count
// is always derived from token state, never a stored column.
type ProductListing struct {
	Product
	Available int64 `json:"available"`
}

type ProductStats struct {
	Available   int64      `json:"available"`
	Consumed    int64      `json:"consumed"`
	Total       int64      `json:"total"`
	LastAddedAt *time.Time `json:"last_added_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

type StockToken struct {
	ID          string
	ProductCode string
	Content     string
	State       TokenState
	ConsumedBy  string
	ConsumedAt  *time.Time
	AddedBy     string
	AddedAt     time.Time
	SourceBatch string
}

// Order is an immutable record of one committed purchase. Numbers are
// assigned by an atomic counter at commit time and are never reused.
type Order struct {
	Number      int64     `json:"order_number"`
	PrincipalID string    `json:"principal_id"`
	GrowID      string    `json:"growid"`
	ProductCode string    `json:"product_code"`
	Quantity    int64     `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	TotalPrice  int64     `json:"total_price"`
	CreatedAt   time.Time `json:"created_at"`
}

type WorldInfo struct {
	World string `json:"world"`
	Owner string `json:"owner"`
	Bot   string `json:"bot"`
}

// PurchaseResult carries the outcome of a committed purchase back to the
// processor: the assigned order number, the snapshotted pricing, and the
// contents of the consumed tokens in reservation order.
type PurchaseResult struct {
	OrderNumber int64
	UnitPrice   int64
	TotalPrice  int64
	Items       []string
}

// Store is the transactional engine beneath the ledger, allocator and order
// processor. Every method is atomic; Purchase, Grant and ConvertBalance are
// all-or-nothing multi-step operations that leave no trace on failure.
type Store interface {
	// Wallet.
	CreditBalance(ctx context.Context, growid string, wl, dl, bgl int64) error
	DebitWL(ctx context.Context, growid string, amount int64) error
	AdminAdjustBalance(ctx context.Context, growid string, wl, dl, bgl int64) (Balance, error)
	ConvertBalance(ctx context.Context, growid string, from Denomination, fromAmount int64, to Denomination, toAmount int64) error
	GetBalance(ctx context.Context, growid string) (Balance, error)

	// Identity bindings.
	BindIdentity(ctx context.Context, principalID, growid string) error
	ResolveIdentity(ctx context.Context, principalID string) (string, error)

	// Catalog.
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, code string) (Product, error)
	ListProducts(ctx context.Context) ([]ProductListing, error)
	UpdatePrice(ctx context.Context, code string, price int64) error
	UpdateDescription(ctx context.Context, code, description string) error
	DeleteProduct(ctx context.Context, code string) error

	// Stock pool.
	IngestTokens(ctx context.Context, code string, contents []string, addedBy, sourceBatch string) (int64, error)
	ProductStats(ctx context.Context, code string) (ProductStats, error)

	// Purchase path. Product lookup, price snapshot, token reservation,
	// checked WL debit, order numbering and the order row all happen inside
	// one atomic unit.
	Purchase(ctx context.Context, principalID, growid, code string, quantity int64, consumedBy string) (PurchaseResult, error)

	// Grant reserves tokens without a debit and without an order row. Admin
	// path only.
	Grant(ctx context.Context, growid, code string, quantity int64, grantedBy string) ([]string, error)

	ListOrders(ctx context.Context, growid string, limit int64) ([]Order, error)

	SetWorldInfo(ctx context.Context, w WorldInfo) error
	GetWorldInfo(ctx context.Context) (WorldInfo, error)
}
