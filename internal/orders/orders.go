package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/types"
	"github.com/stocktrader/stocktrader-api/pkg/response"
)

// Service is the order execution engine. It validates a buy or sell
// against the account, holding, and stock state and applies the three
// resulting mutations atomically. It is safe for concurrent use: there
// is no in-process shared state, and races on the same account or
// holding are resolved by the store's version tokens.
type Service struct {
	db *Database
}

// NewService creates a new order execution engine on the given database
// connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// PlaceBuy fills a market buy for the given account: it debits
// price*quantity from the cash balance, folds the lot into the holding's
// weighted-average cost basis (creating the position on first buy), and
// appends a FILLED order to the ledger, all in one transaction.
//
// Failures are typed: unknown user or symbol, non-positive quantity,
// insufficient funds, a lost optimistic-concurrency race (retryable),
// or a store outage (retryable). No state changes on any failure path.
func (s *Service) PlaceBuy(accountID, symbol string, quantity int64) (*types.OrderResult, error) {
	logger := log.With().
		Str("account_id", accountID).
		Str("symbol", symbol).
		Int64("quantity", quantity).
		Str("service", "orders").
		Logger()

	if quantity <= 0 {
		return nil, types.ErrInvalidQuantity
	}

	account, err := s.db.GetAccountByID(accountID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch account")
		return nil, types.ErrStoreUnavailable
	}
	if account == nil {
		return nil, types.ErrUserNotFound
	}

	stock, err := s.db.GetStockBySymbol(symbol)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch stock")
		return nil, types.ErrStoreUnavailable
	}
	if stock == nil {
		return nil, types.ErrStockNotFound
	}

	price := stock.CurrentPrice
	cost := price.Mul(decimal.NewFromInt(quantity))
	if cost.GreaterThan(account.CashBalance) {
		logger.Debug().
			Str("cost", cost.String()).
			Str("cash_balance", account.CashBalance.String()).
			Msg("rejecting buy, cost exceeds cash balance")
		return nil, types.ErrInsufficientFunds
	}

	holding, err := s.db.GetHolding(account.AccountID, stock.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch holding")
		return nil, types.ErrStoreUnavailable
	}

	var existingQty int64
	existingAvg := decimal.Zero
	if holding != nil {
		existingQty = holding.Quantity
		existingAvg = holding.AveragePrice
	}

	newQty, newAvg, err := ApplyBuyLot(existingQty, existingAvg, quantity, price)
	if err != nil {
		logger.Error().Err(err).Msg("cost basis aggregation rejected position state")
		return nil, types.ErrStoreUnavailable
	}

	if holding == nil {
		holding = &types.Holding{
			AccountID: account.AccountID,
			StockID:   stock.ID,
		}
	}
	holding.Quantity = newQty
	holding.AveragePrice = newAvg

	order := &types.Order{
		OrderID:   "ORD_" + uuid.New().String(),
		AccountID: account.AccountID,
		StockID:   stock.ID,
		Symbol:    stock.Symbol,
		Side:      types.SideBuy,
		Quantity:  quantity,
		Price:     price,
		Status:    types.OrderStatusFilled,
		PlacedAt:  time.Now().UTC(),
	}

	newBalance := account.CashBalance.Sub(cost)

	if err := s.db.ApplyBuy(order, account, newBalance, holding); err != nil {
		if errors.Is(err, types.ErrConcurrencyConflict) {
			logger.Info().Str("order_id", order.OrderID).Msg("buy lost concurrency race, rolled back")
			return nil, types.ErrConcurrencyConflict
		}
		logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to commit buy")
		return nil, types.ErrStoreUnavailable
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Str("price", price.String()).
		Str("new_balance", newBalance.String()).
		Int64("position_quantity", newQty).
		Msg("buy order filled")

	return &types.OrderResult{
		Success:        true,
		Message:        fmt.Sprintf("Successfully bought %d shares of %s", quantity, stock.Symbol),
		OrderID:        order.OrderID,
		Symbol:         stock.Symbol,
		Side:           types.SideBuy,
		NewCashBalance: newBalance,
		QuantityFilled: quantity,
		PriceFilled:    price,
		PlacedAt:       order.PlacedAt,
	}, nil
}

// PlaceSell fills a market sell: it credits price*quantity to the cash
// balance, decrements the holding (deleting the row when the position
// reaches exactly zero), and appends a FILLED order, all in one
// transaction. The stock is resolved by the requested symbol, exactly as
// on the buy path. A sell never recomputes the average purchase price;
// it only realizes it.
func (s *Service) PlaceSell(accountID, symbol string, quantity int64) (*types.OrderResult, error) {
	logger := log.With().
		Str("account_id", accountID).
		Str("symbol", symbol).
		Int64("quantity", quantity).
		Str("service", "orders").
		Logger()

	if quantity <= 0 {
		return nil, types.ErrInvalidQuantity
	}

	account, err := s.db.GetAccountByID(accountID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch account")
		return nil, types.ErrStoreUnavailable
	}
	if account == nil {
		return nil, types.ErrUserNotFound
	}

	stock, err := s.db.GetStockBySymbol(symbol)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch stock")
		return nil, types.ErrStoreUnavailable
	}
	if stock == nil {
		return nil, types.ErrStockNotFound
	}

	holding, err := s.db.GetHolding(account.AccountID, stock.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch holding")
		return nil, types.ErrStoreUnavailable
	}
	if holding == nil || holding.Quantity < quantity {
		held := int64(0)
		if holding != nil {
			held = holding.Quantity
		}
		logger.Debug().Int64("held", held).Msg("rejecting sell, not enough shares")
		return nil, types.ErrInsufficientShares
	}

	price := stock.CurrentPrice
	proceeds := price.Mul(decimal.NewFromInt(quantity))
	newBalance := account.CashBalance.Add(proceeds)
	remainingQty := holding.Quantity - quantity

	order := &types.Order{
		OrderID:   "ORD_" + uuid.New().String(),
		AccountID: account.AccountID,
		StockID:   stock.ID,
		Symbol:    stock.Symbol,
		Side:      types.SideSell,
		Quantity:  quantity,
		Price:     price,
		Status:    types.OrderStatusFilled,
		PlacedAt:  time.Now().UTC(),
	}

	if err := s.db.ApplySell(order, account, newBalance, holding, remainingQty); err != nil {
		if errors.Is(err, types.ErrConcurrencyConflict) {
			logger.Info().Str("order_id", order.OrderID).Msg("sell lost concurrency race, rolled back")
			return nil, types.ErrConcurrencyConflict
		}
		logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to commit sell")
		return nil, types.ErrStoreUnavailable
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Str("price", price.String()).
		Str("new_balance", newBalance.String()).
		Int64("position_quantity", remainingQty).
		Msg("sell order filled")

	return &types.OrderResult{
		Success:        true,
		Message:        fmt.Sprintf("Successfully sold %d shares of %s", quantity, stock.Symbol),
		OrderID:        order.OrderID,
		Symbol:         stock.Symbol,
		Side:           types.SideSell,
		NewCashBalance: newBalance,
		QuantityFilled: quantity,
		PriceFilled:    price,
		PlacedAt:       order.PlacedAt,
	}, nil
}

// GetOrder retrieves one order from the account's history.
func (s *Service) GetOrder(accountID, orderID string) (*types.Order, error) {
	order, err := s.db.GetOrderByOrderIDAndAccountID(orderID, accountID)
	if err != nil {
		return nil, types.ErrStoreUnavailable
	}
	if order == nil {
		return nil, types.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders retrieves the account's full order history, newest first.
func (s *Service) ListOrders(accountID string) ([]types.Order, error) {
	orders, err := s.db.ListOrdersByAccountID(accountID)
	if err != nil {
		return nil, types.ErrStoreUnavailable
	}
	return orders, nil
}

// OrderRequest is the request body for buy and sell placements.
type OrderRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required"`
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// BuyOrderHandler handles POST requests to place market buys.
// Requires a valid JWT token; the account id comes from the token, never
// from the request body.
func (h *GinHandlers) BuyOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		var req OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.PlaceBuy(accountID, req.Symbol, req.Quantity)
		response.Handle(c, result, err)
	}
}

// SellOrderHandler handles POST requests to place market sells.
func (h *GinHandlers) SellOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		var req OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.PlaceSell(accountID, req.Symbol, req.Quantity)
		response.Handle(c, result, err)
	}
}

// GetOrderHandler handles GET requests for a single order from the
// account's history.
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrder(accountID, orderID)
		response.Handle(c, order, err)
	}
}

// ListOrdersHandler handles GET requests for the account's order history.
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		orders, err := h.service.ListOrders(accountID)
		response.Handle(c, orders, err)
	}
}
