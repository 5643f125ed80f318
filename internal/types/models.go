package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order statuses. Market orders fill immediately and fully, so every
// persisted order is FILLED. The remaining statuses are reserved for
// future order types (limit, stop) and are never written today.
const (
	OrderStatusFilled          = "FILLED"
	OrderStatusFailed          = "FAILED"
	OrderStatusPending         = "PENDING"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusCancelled       = "CANCELLED"
)

// Account holds a user's identity and cash balance. The cash balance is
// mutated only by the order execution engine; Version is the optimistic
// concurrency token guarding those mutations.
type Account struct {
	gorm.Model   `json:"-"`
	AccountID    string          `gorm:"uniqueIndex" json:"account_id"`
	Username     string          `gorm:"uniqueIndex" json:"username"`
	Email        string          `gorm:"uniqueIndex" json:"email"`
	PasswordHash string          `json:"-"`
	CashBalance  decimal.Decimal `gorm:"type:decimal(20,4)" json:"cash_balance"`
	Version      int64           `json:"-"`
}

// Stock is a catalog entry with the last recorded price. Read-only from
// the engine's perspective; only the price-update endpoint writes it.
type Stock struct {
	gorm.Model   `json:"-"`
	Symbol       string          `gorm:"uniqueIndex" json:"symbol"`
	CompanyName  string          `json:"company_name"`
	CurrentPrice decimal.Decimal `gorm:"type:decimal(20,4)" json:"current_price"`
}

// Holding is a user's position in one stock. A row exists if and only if
// the quantity is greater than zero: the engine creates it on first buy
// and hard-deletes it when a sell brings the quantity to exactly zero.
// AveragePrice is meaningless at quantity zero and is never read in that
// state. Not a gorm.Model: a soft-delete tombstone would collide with
// the unique (account, stock) index when the position is reopened.
type Holding struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	AccountID    string          `gorm:"uniqueIndex:idx_holdings_account_stock" json:"account_id"`
	StockID      uint            `gorm:"uniqueIndex:idx_holdings_account_stock" json:"stock_id"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `gorm:"type:decimal(20,4)" json:"average_price"`
	Version      int64           `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Order is an immutable ledger entry recording a single fill. Orders are
// write-once: never updated or deleted after creation.
type Order struct {
	gorm.Model `json:"-"`
	OrderID    string          `gorm:"uniqueIndex" json:"order_id"`
	AccountID  string          `gorm:"index" json:"account_id"`
	StockID    uint            `json:"stock_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"` // BUY or SELL
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4)" json:"price"` // fill price snapshot
	Status     string          `json:"status"`
	PlacedAt   time.Time       `json:"placed_at"` // UTC, assigned at creation
}
