package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"condortrader/internal/models"
)

// Repository is the record store the decision engine, compliance tracker
// and dashboard handlers run against. The open-trade guard and the trade
// insert run inside InTx so the one-open-position-per-day invariant holds
// even with multiple process instances on the same database.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Trades
	InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error
	UpdateTrade(ctx context.Context, item *models.Trade) error
	GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error)
	FindOpenTrade(ctx context.Context, day time.Time, accountMode string) (*models.Trade, error)
	FindOpenTradeTx(ctx context.Context, tx *gorm.DB, day time.Time, accountMode string) (*models.Trade, error)
	ListOpenTrades(ctx context.Context, day time.Time, accountMode string) ([]models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)

	// PDT tracking
	GetPDTRecord(ctx context.Context, day time.Time, accountMode string) (*models.PDTRecord, error)
	ListRecentPDTRecords(ctx context.Context, accountMode string, until time.Time, lookbackDays, limit int) ([]models.PDTRecord, error)
	SavePDTRecord(ctx context.Context, item *models.PDTRecord) error
	DeletePDTRecords(ctx context.Context, accountMode string) (int64, error)

	// Decision audit trail (append-only)
	InsertTradeDecision(ctx context.Context, item *models.TradeDecision) error
	ListTradeDecisions(ctx context.Context, params ListDecisionsParams) ([]models.TradeDecision, error)
	CountTradeDecisions(ctx context.Context, params ListDecisionsParams) (int64, error)

	// Runtime configuration overlay
	GetConfigValue(ctx context.Context, key string) (*models.StrategyConfig, error)
	UpsertConfigValue(ctx context.Context, item *models.StrategyConfig) error
	ListConfigValues(ctx context.Context) ([]models.StrategyConfig, error)

	// Market snapshots
	UpsertMarketSnapshot(ctx context.Context, item *models.MarketSnapshot) error
	ListMarketSnapshots(ctx context.Context, params ListSnapshotsParams) ([]models.MarketSnapshot, error)
}

type ListTradesParams struct {
	Limit       int
	Offset      int
	AccountMode *string
	IsOpen      *bool
	Since       *time.Time
	Until       *time.Time
	OrderBy     string
	Asc         *bool
}

type ListDecisionsParams struct {
	Limit        int
	Offset       int
	DecisionType *string
	AccountMode  *string
	ActionTaken  *bool
	Since        *time.Time
	Until        *time.Time
	OrderBy      string
	Asc          *bool
}

type ListSnapshotsParams struct {
	Limit  int
	Offset int
	Symbol *string
	Since  *time.Time
	Until  *time.Time
}
