package migrations

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/types"
)

// SeedStockCatalog inserts the fixed stock catalog on first boot. Prices
// here are only the starting point; the price-update endpoint moves them
// afterwards.
func SeedStockCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.Stock{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	stocks := []types.Stock{
		{Symbol: "MSFT", CompanyName: "Microsoft Corp.", CurrentPrice: decimal.RequireFromString("425.50")},
		{Symbol: "AAPL", CompanyName: "Apple Inc.", CurrentPrice: decimal.RequireFromString("170.25")},
		{Symbol: "GOOGL", CompanyName: "Alphabet Inc.", CurrentPrice: decimal.RequireFromString("140.75")},
		{Symbol: "AMZN", CompanyName: "Amazon.com Inc.", CurrentPrice: decimal.RequireFromString("185.00")},
		{Symbol: "TSLA", CompanyName: "Tesla, Inc.", CurrentPrice: decimal.RequireFromString("175.60")},
	}

	return db.Create(&stocks).Error
}
