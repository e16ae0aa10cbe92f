package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"condortrader/internal/models"
	"condortrader/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateTrade(ctx context.Context, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil || item.ID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FindOpenTrade(ctx context.Context, day time.Time, accountMode string) (*models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return findOpenTrade(s.db.WithContext(ctx), day, accountMode)
}

func (s *Store) FindOpenTradeTx(ctx context.Context, tx *gorm.DB, day time.Time, accountMode string) (*models.Trade, error) {
	if tx == nil {
		return nil, nil
	}
	return findOpenTrade(tx.WithContext(ctx), day, accountMode)
}

func findOpenTrade(q *gorm.DB, day time.Time, accountMode string) (*models.Trade, error) {
	var item models.Trade
	err := q.Model(&models.Trade{}).
		Where("trade_date = ?", dateOnly(day)).
		Where("account_mode = ?", accountMode).
		Where("is_open = ?", true).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpenTrades(ctx context.Context, day time.Time, accountMode string) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("trade_date = ?", dateOnly(day)).
		Where("account_mode = ?", accountMode).
		Where("is_open = ?", true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyTradeFilters(s.db.WithContext(ctx).Model(&models.Trade{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "trade_date")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Trade
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyTradeFilters(s.db.WithContext(ctx).Model(&models.Trade{}), params).Count(&total).Error
	return total, err
}

func applyTradeFilters(query *gorm.DB, params repository.ListTradesParams) *gorm.DB {
	if params.AccountMode != nil && strings.TrimSpace(*params.AccountMode) != "" {
		query = query.Where("account_mode = ?", strings.TrimSpace(*params.AccountMode))
	}
	if params.IsOpen != nil {
		query = query.Where("is_open = ?", *params.IsOpen)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("trade_date >= ?", dateOnly(*params.Since))
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("trade_date <= ?", dateOnly(*params.Until))
	}
	return query
}

// --- PDT tracking -----------------------------------------------------------

func (s *Store) GetPDTRecord(ctx context.Context, day time.Time, accountMode string) (*models.PDTRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PDTRecord
	err := s.db.WithContext(ctx).Model(&models.PDTRecord{}).
		Where("trade_date = ?", dateOnly(day)).
		Where("account_mode = ?", accountMode).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListRecentPDTRecords returns the most recent records for a mode, newest
// first, no further back than lookbackDays before until and no more than
// limit rows. Weekends and holidays leave holes, hence the wider lookback.
func (s *Store) ListRecentPDTRecords(ctx context.Context, accountMode string, until time.Time, lookbackDays, limit int) ([]models.PDTRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	if limit <= 0 {
		limit = 5
	}
	start := dateOnly(until).AddDate(0, 0, -lookbackDays)
	var items []models.PDTRecord
	err := s.db.WithContext(ctx).Model(&models.PDTRecord{}).
		Where("account_mode = ?", accountMode).
		Where("trade_date >= ?", start).
		Where("trade_date <= ?", dateOnly(until)).
		Order("trade_date desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SavePDTRecord(ctx context.Context, item *models.PDTRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.TradeDate = dateOnly(item.TradeDate)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trade_date"}, {Name: "account_mode"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"trade_count",
			"is_violation",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeletePDTRecords(ctx context.Context, accountMode string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("account_mode = ?", accountMode).
		Delete(&models.PDTRecord{})
	return res.RowsAffected, res.Error
}

// --- Decisions --------------------------------------------------------------

func (s *Store) InsertTradeDecision(ctx context.Context, item *models.TradeDecision) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListTradeDecisions(ctx context.Context, params repository.ListDecisionsParams) ([]models.TradeDecision, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyDecisionFilters(s.db.WithContext(ctx).Model(&models.TradeDecision{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "decision_time")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.TradeDecision
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTradeDecisions(ctx context.Context, params repository.ListDecisionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyDecisionFilters(s.db.WithContext(ctx).Model(&models.TradeDecision{}), params).Count(&total).Error
	return total, err
}

func applyDecisionFilters(query *gorm.DB, params repository.ListDecisionsParams) *gorm.DB {
	if params.DecisionType != nil && strings.TrimSpace(*params.DecisionType) != "" {
		query = query.Where("decision_type = ?", strings.TrimSpace(*params.DecisionType))
	}
	if params.AccountMode != nil && strings.TrimSpace(*params.AccountMode) != "" {
		query = query.Where("account_mode = ?", strings.TrimSpace(*params.AccountMode))
	}
	if params.ActionTaken != nil {
		query = query.Where("action_taken = ?", *params.ActionTaken)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("decision_time >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("decision_time <= ?", *params.Until)
	}
	return query
}

// --- Runtime configuration --------------------------------------------------

func (s *Store) GetConfigValue(ctx context.Context, key string) (*models.StrategyConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.StrategyConfig
	err := s.db.WithContext(ctx).Model(&models.StrategyConfig{}).Where("config_key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertConfigValue(ctx context.Context, item *models.StrategyConfig) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.ConfigKey) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"config_value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListConfigValues(ctx context.Context) ([]models.StrategyConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StrategyConfig
	err := s.db.WithContext(ctx).Model(&models.StrategyConfig{}).Order("config_key asc").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Market snapshots -------------------------------------------------------

func (s *Store) UpsertMarketSnapshot(ctx context.Context, item *models.MarketSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.DataDate = dateOnly(item.DataDate)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "data_date"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open_price",
			"high_price",
			"low_price",
			"close_price",
			"volume",
			"previous_close",
			"gap_amount",
			"gap_percentage",
		}),
	}).Create(item).Error
}

func (s *Store) ListMarketSnapshots(ctx context.Context, params repository.ListSnapshotsParams) ([]models.MarketSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.MarketSnapshot{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("data_date >= ?", dateOnly(*params.Since))
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("data_date <= ?", dateOnly(*params.Until))
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.MarketSnapshot
	if err := query.Order("data_date desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
