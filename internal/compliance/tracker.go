// Package compliance enforces the pattern-day-trading cap: a rolling
// window of the five most recent trading dates, looked up within the last
// seven calendar days, independently per account mode.
package compliance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
)

// Status is the answer to a compliance check. On storage failure it
// degrades to the conservative default: not compliant, cannot trade,
// zero remaining, with Err carrying the cause.
type Status struct {
	TotalDayTrades int                `json:"total_day_trades"`
	MaxAllowed     int                `json:"max_allowed_trades"`
	Remaining      int                `json:"trades_remaining"`
	IsCompliant    bool               `json:"is_compliant"`
	ViolationRisk  bool               `json:"violation_risk"`
	CanTradeToday  bool               `json:"can_trade_today"`
	RecentRecords  []models.PDTRecord `json:"recent_records"`
	Err            string             `json:"error,omitempty"`
}

type Tracker struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.ComplianceConfig

	// Serializes RecordTrade per (date, accountMode) within this process;
	// the unique index on pdt_records is the cross-process guarantee.
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// now is swappable in tests.
	now func() time.Time
}

func NewTracker(repo repository.Repository, cfg config.ComplianceConfig, logger *zap.Logger) *Tracker {
	if cfg.MaxDayTrades <= 0 {
		cfg.MaxDayTrades = 3
	}
	if cfg.RollingDays <= 0 {
		cfg.RollingDays = 5
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	return &Tracker{
		Repo:   repo,
		Logger: logger,
		Config: cfg,
		locks:  map[string]*sync.Mutex{},
		now:    time.Now,
	}
}

// Check reports the rolling-window compliance state for an account mode.
func (t *Tracker) Check(ctx context.Context, accountMode string) Status {
	today := t.today()

	records, err := t.Repo.ListRecentPDTRecords(ctx, accountMode, today, t.Config.LookbackDays, t.Config.RollingDays)
	if err != nil {
		return t.conservative(err)
	}

	total := 0
	hasViolation := false
	for _, r := range records {
		total += r.TradeCount
		if r.IsViolation {
			hasViolation = true
		}
	}

	canTrade, err := t.canTradeToday(ctx, accountMode, today)
	if err != nil {
		return t.conservative(err)
	}

	return Status{
		TotalDayTrades: total,
		MaxAllowed:     t.Config.MaxDayTrades,
		Remaining:      maxInt(0, t.Config.MaxDayTrades-total),
		IsCompliant:    total <= t.Config.MaxDayTrades && !hasViolation,
		ViolationRisk:  total >= t.Config.MaxDayTrades-1,
		CanTradeToday:  canTrade,
		RecentRecords:  records,
	}
}

// canTradeToday is false once any trade is recorded for today; otherwise
// it is computed from the rolling window excluding today.
func (t *Tracker) canTradeToday(ctx context.Context, accountMode string, today time.Time) (bool, error) {
	todayRecord, err := t.Repo.GetPDTRecord(ctx, today, accountMode)
	if err != nil {
		return false, err
	}
	if todayRecord != nil && todayRecord.TradeCount > 0 {
		if t.Logger != nil {
			t.Logger.Info("day trade already recorded today",
				zap.String("account_mode", accountMode),
				zap.Int("trade_count", todayRecord.TradeCount),
			)
		}
		return false, nil
	}

	yesterday := today.AddDate(0, 0, -1)
	records, err := t.Repo.ListRecentPDTRecords(ctx, accountMode, yesterday, t.Config.LookbackDays, t.Config.RollingDays)
	if err != nil {
		return false, err
	}

	total := 0
	for _, r := range records {
		total += r.TradeCount
		if r.IsViolation {
			return false, nil
		}
	}
	return t.Config.MaxDayTrades-total > 0, nil
}

// RecordTrade increments (or creates) today's record for the mode and
// flags it violating when the rolling total exceeds the cap.
func (t *Tracker) RecordTrade(ctx context.Context, accountMode string) (*models.PDTRecord, error) {
	today := t.today()

	lock := t.keyLock(today, accountMode)
	lock.Lock()
	defer lock.Unlock()

	record, err := t.Repo.GetPDTRecord(ctx, today, accountMode)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &models.PDTRecord{
			TradeDate:   today,
			AccountMode: accountMode,
		}
	}
	record.TradeCount++

	// Rolling total including this increment; records other than today's.
	others, err := t.Repo.ListRecentPDTRecords(ctx, accountMode, today, t.Config.LookbackDays, t.Config.RollingDays)
	if err != nil {
		return nil, err
	}
	total := record.TradeCount
	for _, r := range others {
		if sameDate(r.TradeDate, today) {
			continue
		}
		total += r.TradeCount
	}
	if total > t.Config.MaxDayTrades {
		record.IsViolation = true
		if t.Logger != nil {
			t.Logger.Warn("day trade cap exceeded",
				zap.String("account_mode", accountMode),
				zap.Int("rolling_total", total),
			)
		}
	}

	if err := t.Repo.SavePDTRecord(ctx, record); err != nil {
		return nil, err
	}
	if t.Logger != nil {
		t.Logger.Info("day trade recorded",
			zap.String("account_mode", accountMode),
			zap.Int("trade_count", record.TradeCount),
			zap.Bool("is_violation", record.IsViolation),
		)
	}
	return record, nil
}

// Reset deletes every record for the mode. Administrative recovery only.
func (t *Tracker) Reset(ctx context.Context, accountMode string) (int64, error) {
	return t.Repo.DeletePDTRecords(ctx, accountMode)
}

func (t *Tracker) conservative(err error) Status {
	if t.Logger != nil {
		t.Logger.Error("compliance check failed, refusing to trade", zap.Error(err))
	}
	return Status{
		MaxAllowed:    t.Config.MaxDayTrades,
		IsCompliant:   false,
		CanTradeToday: false,
		Err:           err.Error(),
	}
}

func (t *Tracker) keyLock(day time.Time, accountMode string) *sync.Mutex {
	key := day.Format("2006-01-02") + "|" + accountMode
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locks == nil {
		t.locks = map[string]*sync.Mutex{}
	}
	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	return lock
}

func (t *Tracker) today() time.Time {
	now := t.now
	if now == nil {
		now = time.Now
	}
	y, m, d := now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
