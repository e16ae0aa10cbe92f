// Package marketdata reads daily bars from the Yahoo Finance chart API
// and evaluates the VIX gap-up entry condition.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
)

// DailyBar is one day of OHLCV for a symbol.
type DailyBar struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// GapCheck is the result of the VIX gap-up evaluation. It never carries
// a Go error: a data problem sets Err and leaves ConditionMet false, so
// a feed outage reads as "do not enter" rather than a crashed cycle.
type GapCheck struct {
	ConditionMet  bool             `json:"condition_met"`
	VIXGapUp      bool             `json:"vix_gap_up"`
	CurrentVIX    decimal.Decimal  `json:"current_vix"`
	PreviousClose *decimal.Decimal `json:"previous_vix_close,omitempty"`
	GapAmount     *decimal.Decimal `json:"gap_amount,omitempty"`
	GapPercentage *decimal.Decimal `json:"gap_percentage,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	Err           string           `json:"error,omitempty"`
}

type Service struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.MarketDataConfig

	rest *resty.Client
	now  func() time.Time
}

func NewService(repo repository.Repository, cfg config.MarketDataConfig, logger *zap.Logger) *Service {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)
	return &Service{
		Repo:   repo,
		Logger: logger,
		Config: cfg,
		rest:   client,
		now:    time.Now,
	}
}

// chartResponse mirrors the Yahoo v8 chart payload, quotes as raw JSON
// numbers so nulls for halted sessions decode cleanly.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History fetches up to rangeDays recent daily bars for a symbol.
// Days with null quotes (half sessions, halts) are skipped.
func (s *Service) History(ctx context.Context, symbol string, rangeDays int) ([]DailyBar, error) {
	if rangeDays <= 0 {
		rangeDays = 5
	}
	resp, err := s.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"range":    fmt.Sprintf("%dd", rangeDays),
			"interval": "1d",
		}).
		Get("/v8/finance/chart/" + symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch chart for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("chart API error %d: %s", resp.StatusCode(), resp.String())
	}

	var chart chartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("parse chart response: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error: %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]DailyBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || quote.Open[i] == nil ||
			i >= len(quote.High) || quote.High[i] == nil ||
			i >= len(quote.Low) || quote.Low[i] == nil ||
			i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bar := DailyBar{
			Date:  time.Unix(ts, 0).UTC(),
			Open:  decimal.NewFromFloat(*quote.Open[i]),
			High:  decimal.NewFromFloat(*quote.High[i]),
			Low:   decimal.NewFromFloat(*quote.Low[i]),
			Close: decimal.NewFromFloat(*quote.Close[i]),
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// SPYPrice returns the current underlying price, preferring the chart
// meta quote and falling back to the last daily close.
func (s *Service) SPYPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := s.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"range": "1d", "interval": "1d"}).
		Get("/v8/finance/chart/" + symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return decimal.Zero, fmt.Errorf("chart API error %d: %s", resp.StatusCode(), resp.String())
	}
	var chart chartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return decimal.Zero, fmt.Errorf("parse chart response: %w", err)
	}
	if len(chart.Chart.Result) > 0 {
		if p := chart.Chart.Result[0].Meta.RegularMarketPrice; p != nil {
			return decimal.NewFromFloat(*p), nil
		}
	}
	bars, err := s.History(ctx, symbol, 1)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, fmt.Errorf("no price data for %s", symbol)
	}
	return bars[len(bars)-1].Close, nil
}

// CheckGapUp compares today's VIX open to the previous close. A single
// day of data means no gap can be computed and the condition is not met;
// any feed error degrades the same way with Err populated.
func (s *Service) CheckGapUp(ctx context.Context) GapCheck {
	check := GapCheck{Timestamp: s.now()}

	bars, err := s.History(ctx, s.Config.VIXSymbol, 5)
	if err != nil {
		check.Err = err.Error()
		if s.Logger != nil {
			s.Logger.Error("vix history fetch failed", zap.Error(err))
		}
		return check
	}
	if len(bars) == 0 {
		check.Err = "no vix data received"
		return check
	}

	current := bars[len(bars)-1]
	check.CurrentVIX = current.Open

	if len(bars) >= 2 {
		previous := bars[len(bars)-2]
		prevClose := previous.Close
		gap := current.Open.Sub(prevClose)
		check.PreviousClose = &prevClose
		check.GapAmount = &gap
		if !prevClose.IsZero() {
			pct := gap.Div(prevClose).Mul(decimal.NewFromInt(100))
			check.GapPercentage = &pct
		}
		check.VIXGapUp = gap.IsPositive()
		check.ConditionMet = check.VIXGapUp
	}

	s.storeSnapshot(ctx, current, check)

	if s.Logger != nil {
		s.Logger.Info("vix gap condition checked",
			zap.Bool("condition_met", check.ConditionMet),
			zap.String("current_open", check.CurrentVIX.String()),
		)
	}
	return check
}

// storeSnapshot records the day's bar for the audit trail; persistence
// failures are logged and do not affect the gap decision.
func (s *Service) storeSnapshot(ctx context.Context, bar DailyBar, check GapCheck) {
	if s.Repo == nil {
		return
	}
	snapshot := &models.MarketSnapshot{
		DataDate:      dateOnly(bar.Date),
		Symbol:        s.Config.VIXSymbol,
		OpenPrice:     bar.Open,
		HighPrice:     bar.High,
		LowPrice:      bar.Low,
		ClosePrice:    bar.Close,
		PreviousClose: check.PreviousClose,
		GapAmount:     check.GapAmount,
		GapPercentage: check.GapPercentage,
	}
	if bar.Volume > 0 {
		volume := bar.Volume
		snapshot.Volume = &volume
	}
	if err := s.Repo.UpsertMarketSnapshot(ctx, snapshot); err != nil && s.Logger != nil {
		s.Logger.Warn("failed to store market snapshot", zap.Error(err))
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
