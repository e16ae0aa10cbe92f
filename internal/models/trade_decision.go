package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Decision kinds.
const (
	DecisionEntryAttempt = "entry_attempt"
	DecisionExitAttempt  = "exit_attempt"
)

// TradeDecision is the append-only audit row written for every scheduled
// or manual entry/exit cycle, whether or not anything was traded. It is
// the only operator-facing record of why the engine did what it did.
type TradeDecision struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	DecisionDate time.Time `gorm:"type:date;not null;index"`
	DecisionTime time.Time `gorm:"type:timestamptz;not null"`
	DecisionType string    `gorm:"type:varchar(20);not null;index"`

	ActionTaken bool   `gorm:"not null"`
	Reason      string `gorm:"type:text;not null"`

	VIXValue *decimal.Decimal `gorm:"column:vix_value;type:numeric(10,2)"`
	VIXGapUp *bool            `gorm:"column:vix_gap_up"`
	SPYPrice *decimal.Decimal `gorm:"column:spy_price;type:numeric(12,2)"`

	AccountMode        string `gorm:"type:varchar(10);not null;index"`
	PDTTradesRemaining *int   `gorm:"column:pdt_trades_remaining"`
	StrategyEnabled    bool   `gorm:"not null"`

	ErrorMessage string `gorm:"type:text"`
	TradeID      *uint64
	Detail       datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (TradeDecision) TableName() string {
	return "trade_decisions"
}
