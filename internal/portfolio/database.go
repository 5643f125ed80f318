package portfolio

import (
	"errors"

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

// holdingRow is one holding joined with its stock's recorded price.
type holdingRow struct {
	StockID      uint
	Symbol       string
	CompanyName  string
	Quantity     int64
	AveragePrice decimal.Decimal
	CurrentPrice decimal.Decimal
}

// GetAccountAndHoldings reads the account and all of its holdings joined
// with their stock prices inside a single transaction, so the snapshot
// is not torn by a concurrently committing order or price update.
func (d *Database) GetAccountAndHoldings(accountID string) (*types.Account, []holdingRow, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, nil, err
	}
	defer tx.Rollback() // read-only, nothing to commit

	var account types.Account
	if err := tx.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var rows []holdingRow
	err := tx.Table("holdings").
		Select("holdings.stock_id, stocks.symbol, stocks.company_name, holdings.quantity, holdings.average_price, stocks.current_price").
		Joins("JOIN stocks ON stocks.id = holdings.stock_id").
		Where("holdings.account_id = ?", accountID).
		Scan(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	return &account, rows, nil
}
