package models

import "time"

// PDTRecord counts day trades made on one date for one account mode.
// The (trade_date, account_mode) pair is unique so concurrent recorders
// collapse onto one row and the rolling-window sum stays exact.
type PDTRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TradeDate   time.Time `gorm:"type:date;not null;uniqueIndex:idx_pdt_day_mode"`
	AccountMode string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_pdt_day_mode"`

	TradeCount  int  `gorm:"not null;default:0"`
	IsViolation bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PDTRecord) TableName() string {
	return "pdt_records"
}
