package stocks

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

func (d *Database) ListStocks() ([]types.Stock, error) {
	var stocks []types.Stock
	if err := d.db.Order("symbol asc").Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
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

// UpdatePrice records a new current price for a symbol. Returns false
// when the symbol does not exist.
func (d *Database) UpdatePrice(symbol string, price decimal.Decimal) (bool, error) {
	res := d.db.Model(&types.Stock{}).
		Where("upper(symbol) = upper(?)", symbol).
		Update("current_price", price)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
