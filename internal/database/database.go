package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stocktrader/stocktrader-api/internal/database/migrations"
	"github.com/stocktrader/stocktrader-api/internal/types"
)

// NewDatabase opens the ledger store at the given DSN, migrates the
// schema, and seeds the stock catalog.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Account{},
		&types.Stock{},
		&types.Holding{},
		&types.Order{},
	)
	if err != nil {
		return nil, err
	}

	if err := migrations.SeedStockCatalog(db); err != nil {
		return nil, fmt.Errorf("failed to seed stock catalog: %w", err)
	}

	return db, nil
}
