package stocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/database"
	"github.com/stocktrader/stocktrader-api/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.NewDatabase(dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func TestListStocks_SeededCatalog(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	stocks, err := svc.ListStocks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stocks) != 5 {
		t.Fatalf("expected 5 seeded stocks, got %d", len(stocks))
	}

	// Ordered by symbol.
	expected := []string{"AAPL", "AMZN", "GOOGL", "MSFT", "TSLA"}
	for i, symbol := range expected {
		if stocks[i].Symbol != symbol {
			t.Errorf("position %d: expected %s, got %s", i, symbol, stocks[i].Symbol)
		}
	}
}

func TestGetStockBySymbol_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	for _, symbol := range []string{"MSFT", "msft", "MsFt"} {
		stock, err := svc.GetStockBySymbol(symbol)
		if err != nil {
			t.Fatalf("lookup %q failed: %v", symbol, err)
		}
		if stock.Symbol != "MSFT" {
			t.Errorf("lookup %q: expected MSFT, got %s", symbol, stock.Symbol)
		}
		if !stock.CurrentPrice.Equal(dec("425.50")) {
			t.Errorf("lookup %q: expected price 425.50, got %s", symbol, stock.CurrentPrice)
		}
	}
}

func TestGetStockBySymbol_Unknown(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	_, err := svc.GetStockBySymbol("NVDA")
	if !errors.Is(err, types.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestUpdatePrice(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	stock, err := svc.UpdatePrice(context.Background(), "tsla", dec("190.10"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !stock.CurrentPrice.Equal(dec("190.10")) {
		t.Errorf("expected returned price 190.10, got %s", stock.CurrentPrice)
	}

	reread, err := svc.GetStockBySymbol("TSLA")
	if err != nil {
		t.Fatalf("reread failed: %v", err)
	}
	if !reread.CurrentPrice.Equal(dec("190.10")) {
		t.Errorf("expected stored price 190.10, got %s", reread.CurrentPrice)
	}
}

func TestUpdatePrice_Rejections(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	if _, err := svc.UpdatePrice(context.Background(), "TSLA", dec("-1.00")); !errors.Is(err, types.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := svc.UpdatePrice(context.Background(), "NVDA", dec("100.00")); !errors.Is(err, types.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}

	// Rejections must not touch the stored price.
	stock, err := svc.GetStockBySymbol("TSLA")
	if err != nil {
		t.Fatalf("reread failed: %v", err)
	}
	if !stock.CurrentPrice.Equal(dec("175.60")) {
		t.Errorf("expected seeded price 175.60, got %s", stock.CurrentPrice)
	}
}

func TestGetQuote_NoCacheFallsThrough(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	quote, err := svc.GetQuote(context.Background(), "amzn")
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if quote.Symbol != "AMZN" {
		t.Errorf("expected canonical symbol AMZN, got %s", quote.Symbol)
	}
	if !quote.Price.Equal(dec("185.00")) {
		t.Errorf("expected quote 185.00, got %s", quote.Price)
	}

	if _, err := svc.GetQuote(context.Background(), "NVDA"); !errors.Is(err, types.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestQuoteRoute_ServesPrice(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	handlers := NewGinHandlers(NewService(db, nil))

	router := gin.New()
	router.GET("/api/v1/stocks/:symbol/quote", handlers.QuoteHandler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/stocks/msft/quote", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool        `json:"success"`
		Data    types.Quote `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Symbol != "MSFT" {
		t.Errorf("expected symbol MSFT, got %s", resp.Data.Symbol)
	}
	if !resp.Data.Price.Equal(dec("425.50")) {
		t.Errorf("expected price 425.50, got %s", resp.Data.Price)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/stocks/NVDA/quote", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown symbol, got %d", w.Code)
	}
}

func TestUpdatePriceHandler_AcceptsExplicitZero(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	svc := NewService(db, nil)
	handlers := NewGinHandlers(svc)

	router := gin.New()
	router.PUT("/api/v1/internal/stocks/:symbol/price", handlers.UpdatePriceHandler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/api/v1/internal/stocks/TSLA/price", strings.NewReader(`{"price": 0}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for zero price, got %d: %s", w.Code, w.Body.String())
	}
	stock, err := svc.GetStockBySymbol("TSLA")
	if err != nil {
		t.Fatalf("reread failed: %v", err)
	}
	if !stock.CurrentPrice.IsZero() {
		t.Errorf("expected stored price 0, got %s", stock.CurrentPrice)
	}

	// A body without a price is still rejected.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("PUT", "/api/v1/internal/stocks/TSLA/price", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing price, got %d", w.Code)
	}
}
