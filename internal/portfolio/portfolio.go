package portfolio

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/types"
	"github.com/stocktrader/stocktrader-api/pkg/response"
)

var hundred = decimal.NewFromInt(100)

// Service produces point-in-time portfolio valuations. Read-only: it
// never mutates accounts, holdings, or orders.
type Service struct {
	db *Database
}

// NewService creates a new portfolio valuation service on the given
// database connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetPortfolio values the account's holdings against their stocks'
// current recorded prices, read in one consistent snapshot. The total
// portfolio value is the cash balance plus the sum of each position's
// current value.
func (s *Service) GetPortfolio(accountID string) (*types.Portfolio, error) {
	logger := log.With().
		Str("account_id", accountID).
		Str("service", "portfolio").
		Logger()

	account, rows, err := s.db.GetAccountAndHoldings(accountID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read portfolio snapshot")
		return nil, types.ErrStoreUnavailable
	}
	if account == nil {
		return nil, types.ErrUserNotFound
	}

	holdings := make([]types.PortfolioHolding, 0, len(rows))
	totalCurrentValue := decimal.Zero

	for _, row := range rows {
		qty := decimal.NewFromInt(row.Quantity)
		totalPurchaseValue := qty.Mul(row.AveragePrice)
		totalCurrent := qty.Mul(row.CurrentPrice)
		gainLoss := totalCurrent.Sub(totalPurchaseValue)

		// A freshly created holding never has zero purchase value, but the
		// divide-by-zero guard stays regardless.
		gainLossPercent := decimal.Zero
		if !totalPurchaseValue.IsZero() {
			gainLossPercent = gainLoss.Div(totalPurchaseValue).Mul(hundred)
		}

		holdings = append(holdings, types.PortfolioHolding{
			StockID:              row.StockID,
			Symbol:               row.Symbol,
			CompanyName:          row.CompanyName,
			Quantity:             row.Quantity,
			AveragePurchasePrice: row.AveragePrice,
			CurrentPrice:         row.CurrentPrice,
			TotalPurchaseValue:   totalPurchaseValue,
			TotalCurrentValue:    totalCurrent,
			GainLoss:             gainLoss,
			GainLossPercent:      gainLossPercent,
		})

		totalCurrentValue = totalCurrentValue.Add(totalCurrent)
	}

	logger.Debug().
		Int("positions", len(holdings)).
		Str("cash_balance", account.CashBalance.String()).
		Str("holdings_value", totalCurrentValue.String()).
		Msg("valued portfolio")

	return &types.Portfolio{
		AccountID:           account.AccountID,
		Username:            account.Username,
		Email:               account.Email,
		CashBalance:         account.CashBalance,
		Holdings:            holdings,
		TotalPortfolioValue: account.CashBalance.Add(totalCurrentValue),
	}, nil
}

// GinHandlers contains HTTP handlers for portfolio endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for portfolio endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PortfolioHandler handles GET requests for the authenticated account's
// portfolio snapshot.
func (h *GinHandlers) PortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		portfolio, err := h.service.GetPortfolio(accountID)
		response.Handle(c, portfolio, err)
	}
}
