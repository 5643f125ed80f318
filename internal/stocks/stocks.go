package stocks

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/types"
	"github.com/stocktrader/stocktrader-api/pkg/response"
)

// Service exposes the stock catalog and the price-update entry point.
// From the trading core's perspective this is the price source: the
// engine only ever reads the latest stored value, with no freshness
// guarantee.
type Service struct {
	db    *Database
	cache *Cache
}

// NewService creates a new catalog service. cache may be nil, in which
// case every quote read hits the database.
func NewService(gormDB *gorm.DB, cache *Cache) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		cache: cache,
	}
}

// ListStocks returns the full catalog.
func (s *Service) ListStocks() ([]types.Stock, error) {
	stocks, err := s.db.ListStocks()
	if err != nil {
		return nil, types.ErrStoreUnavailable
	}
	return stocks, nil
}

// GetStockBySymbol resolves a stock by its symbol, case-insensitively.
func (s *Service) GetStockBySymbol(symbol string) (*types.Stock, error) {
	stock, err := s.db.GetStockBySymbol(symbol)
	if err != nil {
		return nil, types.ErrStoreUnavailable
	}
	if stock == nil {
		return nil, types.ErrStockNotFound
	}
	return stock, nil
}

// GetQuote returns the current price for a symbol, served from the cache
// when warm. Cache misses read the catalog and warm the cache on the way
// out.
func (s *Service) GetQuote(ctx context.Context, symbol string) (*types.Quote, error) {
	upper := strings.ToUpper(symbol)
	if price, ok := s.cache.GetQuote(ctx, upper); ok {
		return &types.Quote{Symbol: upper, Price: price}, nil
	}

	stock, err := s.GetStockBySymbol(symbol)
	if err != nil {
		return nil, err
	}

	s.cache.SetQuote(ctx, stock.Symbol, stock.CurrentPrice)
	return &types.Quote{Symbol: stock.Symbol, Price: stock.CurrentPrice}, nil
}

// UpdatePrice records a new current price for a symbol and invalidates
// its cached quote. This is the external price-update collaborator's
// entry point; the engine itself never writes stock rows.
func (s *Service) UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) (*types.Stock, error) {
	if price.IsNegative() {
		return nil, types.ErrInvalidPrice
	}

	updated, err := s.db.UpdatePrice(symbol, price)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("failed to update price")
		return nil, types.ErrStoreUnavailable
	}
	if !updated {
		return nil, types.ErrStockNotFound
	}

	s.cache.Invalidate(ctx, symbol)

	log.Info().
		Str("symbol", symbol).
		Str("price", price.String()).
		Msg("stock price updated")

	return s.GetStockBySymbol(symbol)
}

// GinHandlers contains HTTP handlers for stock catalog endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for stock catalog endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListStocksHandler handles GET requests for the stock catalog.
func (h *GinHandlers) ListStocksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stocks, err := h.service.ListStocks()
		response.Handle(c, stocks, err)
	}
}

// GetStockHandler handles GET requests for a single stock.
// URL parameter: symbol
func (h *GinHandlers) GetStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stock, err := h.service.GetStockBySymbol(c.Param("symbol"))
		response.Handle(c, stock, err)
	}
}

// QuoteHandler handles GET requests for a symbol's current price. Reads
// are served from the quote cache when warm.
// URL parameter: symbol
func (h *GinHandlers) QuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quote, err := h.service.GetQuote(c.Request.Context(), c.Param("symbol"))
		response.Handle(c, quote, err)
	}
}

// UpdatePriceHandler handles PUT requests from the price-update
// collaborator. Internal route.
// URL parameter: symbol
func (h *GinHandlers) UpdatePriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Price is a pointer so an explicit zero price passes the
		// required check; the service rejects negatives.
		var req struct {
			Price *decimal.Decimal `json:"price" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		stock, err := h.service.UpdatePrice(c.Request.Context(), c.Param("symbol"), *req.Price)
		response.Handle(c, stock, err)
	}
}
