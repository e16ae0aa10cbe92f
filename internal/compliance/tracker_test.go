package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
)

// stubRepo keeps PDT records in memory and lets tests inject failures.
type stubRepo struct {
	records map[string]*models.PDTRecord
	failAll bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: map[string]*models.PDTRecord{}}
}

func recordKey(day time.Time, mode string) string {
	return day.Format("2006-01-02") + "|" + mode
}

var errStorage = errors.New("storage down")

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	return nil
}
func (s *stubRepo) UpdateTrade(ctx context.Context, item *models.Trade) error { return nil }
func (s *stubRepo) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) FindOpenTrade(ctx context.Context, day time.Time, mode string) (*models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) FindOpenTradeTx(ctx context.Context, tx *gorm.DB, day time.Time, mode string) (*models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) ListOpenTrades(ctx context.Context, day time.Time, mode string) ([]models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	return nil, nil
}
func (s *stubRepo) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetPDTRecord(ctx context.Context, day time.Time, mode string) (*models.PDTRecord, error) {
	if s.failAll {
		return nil, errStorage
	}
	r, ok := s.records[recordKey(day, mode)]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (s *stubRepo) ListRecentPDTRecords(ctx context.Context, mode string, until time.Time, lookbackDays, limit int) ([]models.PDTRecord, error) {
	if s.failAll {
		return nil, errStorage
	}
	since := until.AddDate(0, 0, -lookbackDays)
	var out []models.PDTRecord
	for _, r := range s.records {
		if r.AccountMode != mode {
			continue
		}
		if r.TradeDate.Before(since) || r.TradeDate.After(until) {
			continue
		}
		out = append(out, *r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) SavePDTRecord(ctx context.Context, item *models.PDTRecord) error {
	if s.failAll {
		return errStorage
	}
	copied := *item
	s.records[recordKey(item.TradeDate, item.AccountMode)] = &copied
	return nil
}

func (s *stubRepo) DeletePDTRecords(ctx context.Context, mode string) (int64, error) {
	if s.failAll {
		return 0, errStorage
	}
	var n int64
	for k, r := range s.records {
		if r.AccountMode == mode {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) InsertTradeDecision(ctx context.Context, item *models.TradeDecision) error {
	return nil
}
func (s *stubRepo) ListTradeDecisions(ctx context.Context, params repository.ListDecisionsParams) ([]models.TradeDecision, error) {
	return nil, nil
}
func (s *stubRepo) CountTradeDecisions(ctx context.Context, params repository.ListDecisionsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) GetConfigValue(ctx context.Context, key string) (*models.StrategyConfig, error) {
	return nil, nil
}
func (s *stubRepo) UpsertConfigValue(ctx context.Context, item *models.StrategyConfig) error {
	return nil
}
func (s *stubRepo) ListConfigValues(ctx context.Context) ([]models.StrategyConfig, error) {
	return nil, nil
}
func (s *stubRepo) UpsertMarketSnapshot(ctx context.Context, item *models.MarketSnapshot) error {
	return nil
}
func (s *stubRepo) ListMarketSnapshots(ctx context.Context, params repository.ListSnapshotsParams) ([]models.MarketSnapshot, error) {
	return nil, nil
}

func newTestTracker(repo repository.Repository) *Tracker {
	tr := NewTracker(repo, config.ComplianceConfig{MaxDayTrades: 3, RollingDays: 5, LookbackDays: 7}, nil)
	tr.now = func() time.Time {
		return time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)
	}
	return tr
}

func TestCheckEmptyHistory(t *testing.T) {
	tr := newTestTracker(newStubRepo())
	st := tr.Check(context.Background(), models.AccountModeSim)
	if !st.IsCompliant {
		t.Fatalf("expected compliant with no history")
	}
	if !st.CanTradeToday {
		t.Fatalf("expected tradable with no history")
	}
	if st.Remaining != 3 {
		t.Fatalf("remaining = %d, want 3", st.Remaining)
	}
	if st.ViolationRisk {
		t.Fatalf("no history should not flag violation risk")
	}
}

func TestCheckRemainingNeverNegative(t *testing.T) {
	repo := newStubRepo()
	for i := 1; i <= 5; i++ {
		day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -i)
		repo.records[recordKey(day, models.AccountModeSim)] = &models.PDTRecord{
			TradeDate:   day,
			AccountMode: models.AccountModeSim,
			TradeCount:  1,
		}
	}
	tr := newTestTracker(repo)
	st := tr.Check(context.Background(), models.AccountModeSim)
	if st.TotalDayTrades != 5 {
		t.Fatalf("total = %d, want 5", st.TotalDayTrades)
	}
	if st.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", st.Remaining)
	}
	if st.IsCompliant {
		t.Fatalf("5 trades in window should not be compliant")
	}
	if st.CanTradeToday {
		t.Fatalf("exhausted window should block trading")
	}
}

func TestCanTradeTodayBlockedByTodayTrade(t *testing.T) {
	repo := newStubRepo()
	tr := newTestTracker(repo)
	if _, err := tr.RecordTrade(context.Background(), models.AccountModeSim); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	st := tr.Check(context.Background(), models.AccountModeSim)
	if st.CanTradeToday {
		t.Fatalf("already traded today, should not trade again")
	}
	if !st.IsCompliant {
		t.Fatalf("one trade should still be compliant")
	}
}

func TestRecordTradeFlagsViolation(t *testing.T) {
	repo := newStubRepo()
	tr := newTestTracker(repo)
	ctx := context.Background()

	var last *models.PDTRecord
	for i := 0; i < 4; i++ {
		var err error
		last, err = tr.RecordTrade(ctx, models.AccountModeSim)
		if err != nil {
			t.Fatalf("RecordTrade #%d: %v", i+1, err)
		}
	}
	if last.TradeCount != 4 {
		t.Fatalf("trade count = %d, want 4", last.TradeCount)
	}
	if !last.IsViolation {
		t.Fatalf("4th trade in one day should flag a violation")
	}
	st := tr.Check(ctx, models.AccountModeSim)
	if st.IsCompliant {
		t.Fatalf("violating record must make status non-compliant")
	}
}

func TestRecordTradeThirdNotViolation(t *testing.T) {
	repo := newStubRepo()
	tr := newTestTracker(repo)
	ctx := context.Background()

	var last *models.PDTRecord
	for i := 0; i < 3; i++ {
		var err error
		last, err = tr.RecordTrade(ctx, models.AccountModeSim)
		if err != nil {
			t.Fatalf("RecordTrade #%d: %v", i+1, err)
		}
	}
	if last.IsViolation {
		t.Fatalf("3 trades is at the cap, not over it")
	}
}

func TestModesTrackedIndependently(t *testing.T) {
	repo := newStubRepo()
	tr := newTestTracker(repo)
	ctx := context.Background()

	if _, err := tr.RecordTrade(ctx, models.AccountModeSim); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	live := tr.Check(ctx, models.AccountModeLive)
	if live.TotalDayTrades != 0 {
		t.Fatalf("live total = %d, want 0", live.TotalDayTrades)
	}
	if !live.CanTradeToday {
		t.Fatalf("sim trade should not block live mode")
	}
}

func TestCheckStorageFailureConservative(t *testing.T) {
	repo := newStubRepo()
	repo.failAll = true
	tr := newTestTracker(repo)
	st := tr.Check(context.Background(), models.AccountModeSim)
	if st.IsCompliant {
		t.Fatalf("storage failure must degrade to non-compliant")
	}
	if st.CanTradeToday {
		t.Fatalf("storage failure must block trading")
	}
	if st.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", st.Remaining)
	}
	if st.Err == "" {
		t.Fatalf("expected error message in status")
	}
}

func TestReset(t *testing.T) {
	repo := newStubRepo()
	tr := newTestTracker(repo)
	ctx := context.Background()

	if _, err := tr.RecordTrade(ctx, models.AccountModeSim); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	n, err := tr.Reset(ctx, models.AccountModeSim)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	st := tr.Check(ctx, models.AccountModeSim)
	if !st.CanTradeToday {
		t.Fatalf("after reset the mode should be tradable again")
	}
}
