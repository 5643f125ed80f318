package orders

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetAccountByID(accountID string) (*types.Account, error) {
	var account types.Account
	if err := d.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) GetStockBySymbol(symbol string) (*types.Stock, error) {
	var stock types.Stock
	if err := d.db.Where("upper(symbol) = upper(?)", symbol).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stock, nil
}

func (d *Database) GetHolding(accountID string, stockID uint) (*types.Holding, error) {
	var holding types.Holding
	if err := d.db.Where("account_id = ? AND stock_id = ?", accountID, stockID).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &holding, nil
}

func (d *Database) GetOrderByOrderIDAndAccountID(orderID, accountID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ? AND account_id = ?", orderID, accountID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) ListOrdersByAccountID(accountID string) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("account_id = ?", accountID).Order("placed_at desc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) CountOrders() (int64, error) {
	var count int64
	err := d.db.Model(&types.Order{}).Count(&count).Error
	return count, err
}

// ApplyBuy persists a filled buy in one transaction: the order row, the
// version-guarded cash debit, and the holding upsert. The account and
// holding arguments carry the versions observed before the transaction;
// a guard matching zero rows means another operation won the race, the
// whole transaction rolls back, and the caller gets a retryable
// conflict. The order, the debit, and the upsert commit together or not
// at all.
//
// holding carries the post-buy quantity and average price. A zero
// holding ID means the position is being opened; the unique
// (account, stock) index turns two concurrent first buys into one
// create and one conflict.
func (d *Database) ApplyBuy(order *types.Order, account *types.Account, newBalance decimal.Decimal, holding *types.Holding) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := debitAccount(tx, account, newBalance); err != nil {
		tx.Rollback()
		return err
	}

	if holding.ID == 0 {
		if err := tx.Create(holding).Error; err != nil {
			tx.Rollback()
			if isUniqueViolation(err) {
				return types.ErrConcurrencyConflict
			}
			return err
		}
	} else {
		res := tx.Model(&types.Holding{}).
			Where("id = ? AND version = ?", holding.ID, holding.Version).
			Updates(map[string]interface{}{
				"quantity":      holding.Quantity,
				"average_price": holding.AveragePrice,
				"version":       holding.Version + 1,
			})
		if res.Error != nil {
			tx.Rollback()
			return res.Error
		}
		if res.RowsAffected == 0 {
			tx.Rollback()
			return types.ErrConcurrencyConflict
		}
	}

	return tx.Commit().Error
}

// ApplySell persists a filled sell in one transaction: the order row,
// the version-guarded cash credit, and the position decrement. When the
// remaining quantity is exactly zero the holding row is deleted (still
// version-guarded); the average price is discarded, never recomputed.
func (d *Database) ApplySell(order *types.Order, account *types.Account, newBalance decimal.Decimal, holding *types.Holding, remainingQty int64) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := debitAccount(tx, account, newBalance); err != nil {
		tx.Rollback()
		return err
	}

	var res *gorm.DB
	if remainingQty == 0 {
		res = tx.Where("id = ? AND version = ?", holding.ID, holding.Version).
			Delete(&types.Holding{})
	} else {
		res = tx.Model(&types.Holding{}).
			Where("id = ? AND version = ?", holding.ID, holding.Version).
			Updates(map[string]interface{}{
				"quantity": remainingQty,
				"version":  holding.Version + 1,
			})
	}
	if res.Error != nil {
		tx.Rollback()
		return res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return types.ErrConcurrencyConflict
	}

	return tx.Commit().Error
}

// debitAccount applies a version-guarded balance update inside tx. Used
// for credits too; only the new balance differs.
func debitAccount(tx *gorm.DB, account *types.Account, newBalance decimal.Decimal) error {
	res := tx.Model(&types.Account{}).
		Where("account_id = ? AND version = ?", account.AccountID, account.Version).
		Updates(map[string]interface{}{
			"cash_balance": newBalance,
			"version":      account.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrConcurrencyConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// The sqlite driver reports constraint failures as plain errors.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
