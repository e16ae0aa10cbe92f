package db

import (
	"condortrader/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Trade{},
		&models.PDTRecord{},
		&models.TradeDecision{},
		&models.StrategyConfig{},
		&models.MarketSnapshot{},
	)
}
