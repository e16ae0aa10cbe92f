package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account modes. Every trade, compliance record and decision is keyed by
// the mode it was made under so sim activity never pollutes live books.
const (
	AccountModeSim  = "sim"
	AccountModeLive = "live"
)

// Exit reasons recorded on a closed trade.
const (
	ExitReasonTakeProfit = "take_profit"
	ExitReasonTimedExit  = "timed_exit"
	ExitReasonManual     = "manual"
)

// Trade is one iron condor instance: four legs entered as a single credit
// spread structure and closed as a unit.
type Trade struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TradeDate      time.Time  `gorm:"type:date;not null;index:idx_trades_day_mode"`
	EntryTime      *time.Time `gorm:"type:timestamptz"`
	ExitTime       *time.Time `gorm:"type:timestamptz"`
	ExpirationDate time.Time  `gorm:"type:date;not null"`

	UnderlyingSymbol string `gorm:"type:varchar(20);not null;default:'SPY'"`

	PutStrike      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PutWingStrike  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CallStrike     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CallWingStrike decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Quantity       int             `gorm:"not null;default:1"`

	// Credit received at entry and debit paid at exit, per contract.
	EntryPrice  *decimal.Decimal `gorm:"type:numeric(12,2)"`
	ExitPrice   *decimal.Decimal `gorm:"type:numeric(12,2)"`
	MaxProfit   *decimal.Decimal `gorm:"type:numeric(12,2)"`
	MaxLoss     *decimal.Decimal `gorm:"type:numeric(12,2)"`
	RealizedPnL *decimal.Decimal `gorm:"column:realized_pnl;type:numeric(14,2)"`

	EntryOrderID      string `gorm:"type:varchar(64)"`
	ExitOrderID       string `gorm:"type:varchar(64)"`
	TakeProfitOrderID string `gorm:"type:varchar(64)"`

	IsOpen      bool   `gorm:"not null;default:true;index"`
	AccountMode string `gorm:"type:varchar(10);not null;index:idx_trades_day_mode"`
	ExitReason  string `gorm:"type:varchar(20)"`

	// Market state snapshotted at entry.
	VIXOpen          *decimal.Decimal `gorm:"column:vix_open;type:numeric(10,2)"`
	VIXPreviousClose *decimal.Decimal `gorm:"column:vix_previous_close;type:numeric(10,2)"`
	SPYPriceAtEntry  *decimal.Decimal `gorm:"column:spy_price_at_entry;type:numeric(12,2)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
