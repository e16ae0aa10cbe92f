package models

import "time"

// StrategyConfig is the runtime configuration overlay: string-keyed values
// the dashboard can flip without a restart. Callers own the parsing.
type StrategyConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ConfigKey   string `gorm:"type:varchar(120);not null;uniqueIndex"`
	ConfigValue string `gorm:"type:text;not null"`
	Description string `gorm:"type:text"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (StrategyConfig) TableName() string {
	return "strategy_config"
}
