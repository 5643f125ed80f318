package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderResult reports a successful fill. It carries the post-mutation
// cash balance and the fill price/quantity so the caller can display the
// result without a follow-up read.
type OrderResult struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	OrderID        string          `json:"order_id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	NewCashBalance decimal.Decimal `json:"new_cash_balance"`
	QuantityFilled int64           `json:"quantity_filled"`
	PriceFilled    decimal.Decimal `json:"price_filled"`
	PlacedAt       time.Time       `json:"placed_at"`
}

// Quote is a lightweight price read for one symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// PortfolioHolding is one valued position inside a portfolio snapshot.
type PortfolioHolding struct {
	StockID              uint            `json:"stock_id"`
	Symbol               string          `json:"symbol"`
	CompanyName          string          `json:"company_name"`
	Quantity             int64           `json:"quantity"`
	AveragePurchasePrice decimal.Decimal `json:"average_purchase_price"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	TotalPurchaseValue   decimal.Decimal `json:"total_purchase_value"`
	TotalCurrentValue    decimal.Decimal `json:"total_current_value"`
	GainLoss             decimal.Decimal `json:"gain_loss"`
	GainLossPercent      decimal.Decimal `json:"gain_loss_percent"`
}

// Portfolio is a consistent point-in-time valuation of an account:
// cash plus every holding valued at the price recorded in the same
// read snapshot.
type Portfolio struct {
	AccountID           string             `json:"account_id"`
	Username            string             `json:"username"`
	Email               string             `json:"email"`
	CashBalance         decimal.Decimal    `json:"cash_balance"`
	Holdings            []PortfolioHolding `json:"holdings"`
	TotalPortfolioValue decimal.Decimal    `json:"total_portfolio_value"`
}
