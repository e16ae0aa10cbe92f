package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
)

// stubRepo captures stored snapshots; everything else is a no-op.
type stubRepo struct {
	snapshots []*models.MarketSnapshot
}

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
	return nil, nil
}
func (s *stubRepo) ListRecentPDTRecords(ctx context.Context, mode string, until time.Time, lookbackDays, limit int) ([]models.PDTRecord, error) {
	return nil, nil
}
func (s *stubRepo) SavePDTRecord(ctx context.Context, item *models.PDTRecord) error  { return nil }
func (s *stubRepo) DeletePDTRecords(ctx context.Context, mode string) (int64, error) { return 0, nil }
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
	s.snapshots = append(s.snapshots, item)
	return nil
}
func (s *stubRepo) ListMarketSnapshots(ctx context.Context, params repository.ListSnapshotsParams) ([]models.MarketSnapshot, error) {
	return nil, nil
}

func chartJSON(opens, closes []float64) string {
	ts := ""
	o := ""
	c := ""
	for i := range opens {
		if i > 0 {
			ts += ","
			o += ","
			c += ","
		}
		ts += fmt.Sprintf("%d", 1718000000+int64(i)*86400)
		o += fmt.Sprintf("%g", opens[i])
		c += fmt.Sprintf("%g", closes[i])
	}
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":543.21},`+
		`"timestamp":[%s],"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}}],"error":null}}`,
		ts, o, o, o, c, ts)
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *stubRepo) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	repo := &stubRepo{}
	svc := NewService(repo, config.MarketDataConfig{
		BaseURL:   server.URL,
		VIXSymbol: "^VIX",
	}, nil)
	svc.now = func() time.Time {
		return time.Date(2024, 6, 14, 13, 32, 0, 0, time.UTC)
	}
	return svc, repo
}

func TestCheckGapUpDetected(t *testing.T) {
	svc, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/^VIX" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, chartJSON([]float64{14.5, 16.2}, []float64{15.0, 16.5}))
	})

	check := svc.CheckGapUp(context.Background())
	if check.Err != "" {
		t.Fatalf("unexpected error: %s", check.Err)
	}
	if !check.ConditionMet || !check.VIXGapUp {
		t.Fatalf("gap up not detected: %+v", check)
	}
	if !check.CurrentVIX.Equal(decimal.RequireFromString("16.2")) {
		t.Fatalf("current vix = %s, want 16.2", check.CurrentVIX)
	}
	if check.GapAmount == nil || !check.GapAmount.Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("gap amount = %v, want 1.2", check.GapAmount)
	}
	if check.GapPercentage == nil || !check.GapPercentage.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("gap percentage = %v, want 8", check.GapPercentage)
	}

	if len(repo.snapshots) != 1 {
		t.Fatalf("snapshots stored = %d, want 1", len(repo.snapshots))
	}
	snap := repo.snapshots[0]
	if snap.Symbol != "^VIX" {
		t.Fatalf("snapshot symbol = %q", snap.Symbol)
	}
	if !snap.OpenPrice.Equal(decimal.RequireFromString("16.2")) {
		t.Fatalf("snapshot open = %s", snap.OpenPrice)
	}
}

func TestCheckGapUpFlatOrDown(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON([]float64{16.0, 14.8}, []float64{15.0, 14.9}))
	})

	check := svc.CheckGapUp(context.Background())
	if check.Err != "" {
		t.Fatalf("unexpected error: %s", check.Err)
	}
	if check.ConditionMet || check.VIXGapUp {
		t.Fatalf("gap down must not meet the condition: %+v", check)
	}
}

func TestCheckGapUpSingleBar(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON([]float64{16.0}, []float64{16.3}))
	})

	check := svc.CheckGapUp(context.Background())
	if check.Err != "" {
		t.Fatalf("single bar is expected data, not an error: %s", check.Err)
	}
	if check.ConditionMet {
		t.Fatalf("no previous close means no gap")
	}
	if check.PreviousClose != nil || check.GapAmount != nil {
		t.Fatalf("gap fields must be absent with one bar")
	}
}

func TestCheckGapUpFeedFailure(t *testing.T) {
	svc, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	check := svc.CheckGapUp(context.Background())
	if check.Err == "" {
		t.Fatalf("expected error to be reported")
	}
	if check.ConditionMet {
		t.Fatalf("feed failure must not meet the condition")
	}
	if len(repo.snapshots) != 0 {
		t.Fatalf("no snapshot should be stored on failure")
	}
}

func TestSPYPriceFromMeta(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON([]float64{540.0}, []float64{542.0}))
	})

	price, err := svc.SPYPrice(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("SPYPrice: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("543.21")) {
		t.Fatalf("price = %s, want 543.21 from meta", price)
	}
}

func TestHistorySkipsNullQuotes(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{},"timestamp":[1718000000,1718086400],`+
			`"indicators":{"quote":[{"open":[15.0,null],"high":[15.5,null],"low":[14.5,null],"close":[15.2,null],"volume":[1000,null]}]}}],"error":null}}`)
	})

	bars, err := svc.History(context.Background(), "^VIX", 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1 (null day skipped)", len(bars))
	}
	if bars[0].Volume != 1000 {
		t.Fatalf("volume = %d, want 1000", bars[0].Volume)
	}
}
