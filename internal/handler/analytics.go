package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"condortrader/internal/compliance"
	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
	"condortrader/internal/service"
)

type AnalyticsHandler struct {
	Repo       repository.Repository
	Compliance *compliance.Tracker
	Settings   *service.SettingsService
	Market     config.MarketDataConfig
}

func (h *AnalyticsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/analytics")
	g.GET("/performance", h.performance)
	g.GET("/pnl-series", h.pnlSeries)
	g.GET("/pdt-status", h.pdtStatus)
	g.POST("/pdt-reset", h.pdtReset)
	g.GET("/market-conditions", h.marketConditions)
}

// PerformanceMetrics summarizes closed trades with realized P&L over a
// date range.
type PerformanceMetrics struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       float64         `json:"win_rate"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	AvgWin        decimal.Decimal `json:"avg_win"`
	AvgLoss       decimal.Decimal `json:"avg_loss"`
	LargestWin    decimal.Decimal `json:"largest_win"`
	LargestLoss   decimal.Decimal `json:"largest_loss"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	ProfitFactor  float64         `json:"profit_factor"`
	SharpeRatio   float64         `json:"sharpe_ratio"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
}

func (h *AnalyticsHandler) closedTrades(c *gin.Context) ([]models.Trade, time.Time, time.Time, error) {
	end := time.Now().UTC()
	if t := dateQueryPtr(c, "end_date"); t != nil {
		end = *t
	}
	start := end.AddDate(0, 0, -30)
	if t := dateQueryPtr(c, "start_date"); t != nil {
		start = *t
	}

	params := repository.ListTradesParams{
		Limit:       500,
		AccountMode: strQueryPtr(c, "account_mode"),
		IsOpen:      boolPtr(false),
		Since:       &start,
		Until:       &end,
		OrderBy:     "trade_date",
		Asc:         boolPtr(true),
	}
	trades, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		return nil, start, end, err
	}
	realized := trades[:0]
	for _, t := range trades {
		if t.RealizedPnL != nil {
			realized = append(realized, t)
		}
	}
	return realized, start, end, nil
}

func (h *AnalyticsHandler) performance(c *gin.Context) {
	trades, start, end, err := h.closedTrades(c)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	metrics := PerformanceMetrics{PeriodStart: start, PeriodEnd: end}
	if len(trades) == 0 {
		Ok(c, metrics, nil)
		return
	}

	var pnls []decimal.Decimal
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, t := range trades {
		pnl := *t.RealizedPnL
		pnls = append(pnls, pnl)
		metrics.TotalPnL = metrics.TotalPnL.Add(pnl)
		switch {
		case pnl.IsPositive():
			metrics.WinningTrades++
			grossProfit = grossProfit.Add(pnl)
			if pnl.GreaterThan(metrics.LargestWin) {
				metrics.LargestWin = pnl
			}
		case pnl.IsNegative():
			metrics.LosingTrades++
			grossLoss = grossLoss.Add(pnl.Abs())
			if pnl.LessThan(metrics.LargestLoss) {
				metrics.LargestLoss = pnl
			}
		}
	}
	metrics.TotalTrades = len(trades)
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AvgWin = grossProfit.Div(decimal.NewFromInt(int64(metrics.WinningTrades)))
	}
	if metrics.LosingTrades > 0 {
		metrics.AvgLoss = grossLoss.Neg().Div(decimal.NewFromInt(int64(metrics.LosingTrades)))
	}
	if grossLoss.IsPositive() {
		metrics.ProfitFactor, _ = grossProfit.Div(grossLoss).Float64()
	}
	metrics.MaxDrawdown = maxDrawdown(pnls)
	metrics.SharpeRatio = sharpeRatio(pnls)

	Ok(c, metrics, nil)
}

// pnlSeries returns daily or cumulative P&L points for charting.
func (h *AnalyticsHandler) pnlSeries(c *gin.Context) {
	trades, start, end, err := h.closedTrades(c)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	cumulative := c.DefaultQuery("chart_type", "cumulative") == "cumulative"

	daily := map[string]decimal.Decimal{}
	for _, t := range trades {
		key := t.TradeDate.Format("2006-01-02")
		daily[key] = daily[key].Add(*t.RealizedPnL)
	}

	var labels []string
	var values []decimal.Decimal
	running := decimal.Zero
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		labels = append(labels, key)
		if cumulative {
			running = running.Add(daily[key])
			values = append(values, running)
		} else {
			values = append(values, daily[key])
		}
	}
	Ok(c, gin.H{"labels": labels, "values": values, "cumulative": cumulative}, nil)
}

func (h *AnalyticsHandler) pdtStatus(c *gin.Context) {
	ctx := c.Request.Context()
	mode := c.Query("account_mode")
	if mode == "" {
		mode = models.AccountModeSim
		if h.Settings.IsEnabled(ctx, service.KeyUseLiveAccount, false) {
			mode = models.AccountModeLive
		}
	}
	Ok(c, h.Compliance.Check(ctx, mode), nil)
}

type pdtResetRequest struct {
	AccountMode string `json:"account_mode"`
}

func (h *AnalyticsHandler) pdtReset(c *gin.Context) {
	var req pdtResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountMode == "" {
		Error(c, http.StatusBadRequest, "account_mode is required", nil)
		return
	}
	deleted, err := h.Compliance.Reset(c.Request.Context(), req.AccountMode)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"account_mode": req.AccountMode, "records_deleted": deleted}, nil)
}

func (h *AnalyticsHandler) marketConditions(c *gin.Context) {
	days := intQuery(c, "days", 5)
	if days > 30 {
		days = 30
	}
	until := time.Now().UTC()
	since := until.AddDate(0, 0, -days)
	symbol := h.Market.VIXSymbol
	if symbol == "" {
		symbol = "^VIX"
	}
	items, err := h.Repo.ListMarketSnapshots(c.Request.Context(), repository.ListSnapshotsParams{
		Limit:  days + 1,
		Symbol: &symbol,
		Since:  &since,
		Until:  &until,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// maxDrawdown is the largest peak-to-trough drop of the cumulative P&L.
func maxDrawdown(pnls []decimal.Decimal) decimal.Decimal {
	if len(pnls) == 0 {
		return decimal.Zero
	}
	running := decimal.Zero
	peak := decimal.Zero
	maxDD := decimal.Zero
	for i, pnl := range pnls {
		running = running.Add(pnl)
		if i == 0 || running.GreaterThan(peak) {
			peak = running
		}
		if dd := peak.Sub(running); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpeRatio is the simplified annualized variant over daily P&L.
func sharpeRatio(pnls []decimal.Decimal) float64 {
	if len(pnls) < 2 {
		return 0
	}
	var values []float64
	var sum float64
	for _, p := range pnls {
		f, _ := p.Float64()
		values = append(values, f)
		sum += f
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	const riskFree = 0.02
	annualMean := mean * 252
	annualStd := std * math.Sqrt(252)
	return (annualMean - riskFree) / annualStd
}
