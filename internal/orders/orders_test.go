package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/database"
	"github.com/stocktrader/stocktrader-api/internal/stocks"
	"github.com/stocktrader/stocktrader-api/internal/types"
)

// newTestDB opens an isolated in-memory store seeded with the stock
// catalog. A single connection keeps concurrent transactions serialized
// the way a real store's lock manager would.
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

func createAccount(t *testing.T, db *gorm.DB, cash string) *types.Account {
	t.Helper()

	account := &types.Account{
		AccountID:   "ACC_" + uuid.New().String(),
		Username:    "trader_" + uuid.New().String()[:8],
		Email:       uuid.New().String()[:8] + "@test.local",
		CashBalance: dec(cash),
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return account
}

func getAccount(t *testing.T, db *gorm.DB, accountID string) *types.Account {
	t.Helper()

	var account types.Account
	if err := db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	return &account
}

func getHolding(t *testing.T, db *gorm.DB, accountID, symbol string) *types.Holding {
	t.Helper()

	var stock types.Stock
	if err := db.Where("upper(symbol) = upper(?)", symbol).First(&stock).Error; err != nil {
		t.Fatalf("failed to load stock %s: %v", symbol, err)
	}

	var holding types.Holding
	err := db.Where("account_id = ? AND stock_id = ?", accountID, stock.ID).First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to load holding: %v", err)
	}
	return &holding
}

func countOrders(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	count, err := NewDatabase(db).CountOrders()
	if err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	return count
}

func TestPlaceBuy_DebitsCashAndOpensPosition(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "10000.00")

	result, err := svc.PlaceBuy(account.AccountID, "AAPL", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Success {
		t.Error("expected success")
	}
	if result.QuantityFilled != 10 {
		t.Errorf("expected 10 filled, got %d", result.QuantityFilled)
	}
	if !result.PriceFilled.Equal(dec("170.25")) {
		t.Errorf("expected fill price 170.25, got %s", result.PriceFilled)
	}
	if !result.NewCashBalance.Equal(dec("8297.50")) {
		t.Errorf("expected balance 8297.50, got %s", result.NewCashBalance)
	}

	reloaded := getAccount(t, db, account.AccountID)
	if !reloaded.CashBalance.Equal(dec("8297.50")) {
		t.Errorf("expected stored balance 8297.50, got %s", reloaded.CashBalance)
	}

	holding := getHolding(t, db, account.AccountID, "AAPL")
	if holding == nil {
		t.Fatal("expected holding to exist after buy")
	}
	if holding.Quantity != 10 {
		t.Errorf("expected holding quantity 10, got %d", holding.Quantity)
	}
	if !holding.AveragePrice.Equal(dec("170.25")) {
		t.Errorf("expected average price 170.25, got %s", holding.AveragePrice)
	}

	if n := countOrders(t, db); n != 1 {
		t.Errorf("expected 1 order in ledger, got %d", n)
	}
}

func TestPlaceBuy_SymbolIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "10000.00")

	result, err := svc.PlaceBuy(account.AccountID, "aapl", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Symbol != "AAPL" {
		t.Errorf("expected canonical symbol AAPL, got %s", result.Symbol)
	}
}

func TestPlaceBuy_RecomputesWeightedAverage(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	stocksSvc := stocks.NewService(db, nil)
	account := createAccount(t, db, "100000.00")

	if _, err := svc.PlaceBuy(account.AccountID, "AAPL", 10); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}

	if _, err := stocksSvc.UpdatePrice(context.Background(), "AAPL", dec("200.00")); err != nil {
		t.Fatalf("price update failed: %v", err)
	}

	if _, err := svc.PlaceBuy(account.AccountID, "AAPL", 10); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	holding := getHolding(t, db, account.AccountID, "AAPL")
	if holding.Quantity != 20 {
		t.Errorf("expected quantity 20, got %d", holding.Quantity)
	}
	// (10*170.25 + 10*200.00) / 20 = 185.125
	if !holding.AveragePrice.Equal(dec("185.125")) {
		t.Errorf("expected average 185.125, got %s", holding.AveragePrice)
	}
}

func TestPlaceBuy_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "100.00")

	_, err := svc.PlaceBuy(account.AccountID, "AAPL", 10)
	if !errors.Is(err, types.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	reloaded := getAccount(t, db, account.AccountID)
	if !reloaded.CashBalance.Equal(dec("100.00")) {
		t.Errorf("cash balance changed on failed buy: %s", reloaded.CashBalance)
	}
	if holding := getHolding(t, db, account.AccountID, "AAPL"); holding != nil {
		t.Error("holding created on failed buy")
	}
	if n := countOrders(t, db); n != 0 {
		t.Errorf("order appended on failed buy: %d", n)
	}
}

func TestPlaceBuy_Preconditions(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "10000.00")

	if _, err := svc.PlaceBuy(account.AccountID, "AAPL", 0); !errors.Is(err, types.ErrInvalidQuantity) {
		t.Errorf("zero quantity: expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.PlaceBuy(account.AccountID, "AAPL", -3); !errors.Is(err, types.ErrInvalidQuantity) {
		t.Errorf("negative quantity: expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.PlaceBuy(account.AccountID, "NOPE", 1); !errors.Is(err, types.ErrStockNotFound) {
		t.Errorf("unknown symbol: expected ErrStockNotFound, got %v", err)
	}
	if _, err := svc.PlaceBuy("ACC_missing", "AAPL", 1); !errors.Is(err, types.ErrUserNotFound) {
		t.Errorf("unknown user: expected ErrUserNotFound, got %v", err)
	}
	if n := countOrders(t, db); n != 0 {
		t.Errorf("precondition failures must not append orders, got %d", n)
	}
}

func TestPlaceSell_CreditsCashAndDecrementsPosition(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "10000.00")

	if _, err := svc.PlaceBuy(account.AccountID, "AAPL", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	result, err := svc.PlaceSell(account.AccountID, "AAPL", 4)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	// 8297.50 + 4*170.25 = 8978.50
	if !result.NewCashBalance.Equal(dec("8978.50")) {
		t.Errorf("expected balance 8978.50, got %s", result.NewCashBalance)
	}

	holding := getHolding(t, db, account.AccountID, "AAPL")
	if holding == nil {
		t.Fatal("holding should still exist")
	}
	if holding.Quantity != 6 {
		t.Errorf("expected quantity 6, got %d", holding.Quantity)
	}
	if !holding.AveragePrice.Equal(dec("170.25")) {
		t.Errorf("sell changed average price: %s", holding.AveragePrice)
	}
}

func TestPlaceSell_DeletesHoldingAtZero(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "10000.00")

	if _, err := svc.PlaceBuy(account.AccountID, "TSLA", 5); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.PlaceSell(account.AccountID, "TSLA", 5); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if holding := getHolding(t, db, account.AccountID, "TSLA"); holding != nil {
		t.Errorf("holding row must be deleted at quantity zero, got %+v", holding)
	}

	// Cash is back where it started: same price both ways.
	reloaded := getAccount(t, db, account.AccountID)
	if !reloaded.CashBalance.Equal(dec("10000.00")) {
		t.Errorf("expected balance 10000.00, got %s", reloaded.CashBalance)
	}

	// Re-opening the position works after the delete.
	if _, err := svc.PlaceBuy(account.AccountID, "TSLA", 2); err != nil {
		t.Fatalf("re-buy after close failed: %v", err)
	}
	holding := getHolding(t, db, account.AccountID, "TSLA")
	if holding == nil || holding.Quantity != 2 {
		t.Fatalf("expected fresh holding with quantity 2, got %+v", holding)
	}
}

func TestPlaceSell_InsufficientSharesLeavesStateUnchanged(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "10000.00")

	// No position at all.
	if _, err := svc.PlaceSell(account.AccountID, "AAPL", 1); !errors.Is(err, types.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}

	// Position smaller than the request.
	if _, err := svc.PlaceBuy(account.AccountID, "AAPL", 3); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	ordersBefore := countOrders(t, db)
	cashBefore := getAccount(t, db, account.AccountID).CashBalance

	if _, err := svc.PlaceSell(account.AccountID, "AAPL", 4); !errors.Is(err, types.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}

	if n := countOrders(t, db); n != ordersBefore {
		t.Errorf("order appended on failed sell")
	}
	if cash := getAccount(t, db, account.AccountID).CashBalance; !cash.Equal(cashBefore) {
		t.Errorf("cash changed on failed sell: %s", cash)
	}
	if holding := getHolding(t, db, account.AccountID, "AAPL"); holding == nil || holding.Quantity != 3 {
		t.Errorf("holding changed on failed sell: %+v", holding)
	}
}

func TestConcurrentBuys_NeverBothSucceed(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	// Enough cash for one of the two buys, never both.
	account := createAccount(t, db, "2000.00")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.PlaceBuy(account.AccountID, "AAPL", 10) // 1702.50 each
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var domainErr *types.Error
		if !errors.As(err, &domainErr) {
			t.Errorf("loser returned untyped error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}

	// The winner's debit is the only one applied.
	reloaded := getAccount(t, db, account.AccountID)
	if !reloaded.CashBalance.Equal(dec("297.50")) {
		t.Errorf("expected balance 297.50, got %s", reloaded.CashBalance)
	}
	holding := getHolding(t, db, account.AccountID, "AAPL")
	if holding == nil || holding.Quantity != 10 {
		t.Errorf("expected single 10-share position, got %+v", holding)
	}
	if n := countOrders(t, db); n != 1 {
		t.Errorf("expected exactly one ledger entry, got %d", n)
	}
}

func TestOrderHistory(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	account := createAccount(t, db, "10000.00")

	buyResult, err := svc.PlaceBuy(account.AccountID, "GOOGL", 2)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := svc.PlaceSell(account.AccountID, "GOOGL", 1); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	orders, err := svc.ListOrders(account.AccountID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	for _, o := range orders {
		if o.Status != types.OrderStatusFilled {
			t.Errorf("order %s not FILLED: %s", o.OrderID, o.Status)
		}
	}

	order, err := svc.GetOrder(account.AccountID, buyResult.OrderID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if order.Side != types.SideBuy || order.Quantity != 2 {
		t.Errorf("unexpected order: %+v", order)
	}

	// Another account cannot see it.
	other := createAccount(t, db, "1000.00")
	if _, err := svc.GetOrder(other.AccountID, buyResult.OrderID); !errors.Is(err, types.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
}

// TestTradeScenario walks the full documented flow: $10,000 cash, buy 10
// AAPL at 170.25, price moves to 180.00, sell 4.
func TestTradeScenario(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	stocksSvc := stocks.NewService(db, nil)
	account := createAccount(t, db, "10000.00")

	if _, err := svc.PlaceBuy(account.AccountID, "AAPL", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if cash := getAccount(t, db, account.AccountID).CashBalance; !cash.Equal(dec("8297.50")) {
		t.Fatalf("expected cash 8297.50 after buy, got %s", cash)
	}

	if _, err := stocksSvc.UpdatePrice(context.Background(), "AAPL", dec("180.00")); err != nil {
		t.Fatalf("price update failed: %v", err)
	}

	result, err := svc.PlaceSell(account.AccountID, "AAPL", 4)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if !result.NewCashBalance.Equal(dec("9017.50")) {
		t.Errorf("expected cash 9017.50 after sell, got %s", result.NewCashBalance)
	}

	holding := getHolding(t, db, account.AccountID, "AAPL")
	if holding.Quantity != 6 {
		t.Errorf("expected 6 shares remaining, got %d", holding.Quantity)
	}
	if !holding.AveragePrice.Equal(dec("170.25")) {
		t.Errorf("expected average still 170.25, got %s", holding.AveragePrice)
	}

	// Remaining unrealized gain: 6 * (180.00 - 170.25) = 58.50
	gain := dec("180.00").Sub(holding.AveragePrice).Mul(decimal.NewFromInt(holding.Quantity))
	if !gain.Equal(dec("58.50")) {
		t.Errorf("expected remaining gain 58.50, got %s", gain)
	}
}
