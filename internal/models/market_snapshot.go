package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot stores one day of OHLC data per symbol together with the
// derived gap fields, written on every gap check for later review.
type MarketSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	DataDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_snapshot_day_symbol"`
	Symbol   string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_snapshot_day_symbol"`

	OpenPrice  decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	HighPrice  decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	LowPrice   decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	ClosePrice decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	Volume     *int64

	PreviousClose *decimal.Decimal `gorm:"type:numeric(12,4)"`
	GapAmount     *decimal.Decimal `gorm:"type:numeric(12,4)"`
	GapPercentage *decimal.Decimal `gorm:"type:numeric(10,4)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (MarketSnapshot) TableName() string {
	return "market_snapshots"
}
