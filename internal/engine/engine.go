// Package engine runs the two daily decision cycles: the 9:32 entry that
// opens an SPY iron condor when VIX gaps up, and the 11:30 timed exit
// that flattens whatever is still open. Every cycle ends in exactly one
// audit decision row.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"condortrader/internal/client/tradestation"
	"condortrader/internal/compliance"
	"condortrader/internal/config"
	"condortrader/internal/marketdata"
	"condortrader/internal/metrics"
	"condortrader/internal/models"
	"condortrader/internal/repository"
	"condortrader/internal/service"
)

// Broker is the slice of the TradeStation client the engine needs.
type Broker interface {
	BuildIronCondor(ctx context.Context, params tradestation.CondorParams) (*tradestation.CondorStrategy, error)
	PlaceIronCondor(ctx context.Context, accountID string, strategy *tradestation.CondorStrategy, quantity int) (*tradestation.OrderResponse, error)
	CloseIronCondor(ctx context.Context, accountID string, strategy *tradestation.CondorStrategy, quantity int) (*tradestation.OrderResponse, error)
	GetOrder(ctx context.Context, accountID, orderID string) (*tradestation.Order, error)
}

// MarketData provides the gap condition and the underlying price.
type MarketData interface {
	CheckGapUp(ctx context.Context) marketdata.GapCheck
	SPYPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Compliance is the PDT tracker surface the engine consults.
type Compliance interface {
	Check(ctx context.Context, accountMode string) compliance.Status
	RecordTrade(ctx context.Context, accountMode string) (*models.PDTRecord, error)
}

type Engine struct {
	Repo       repository.Repository
	Settings   *service.SettingsService
	Market     MarketData
	Compliance Compliance
	SimBroker  Broker
	LiveBroker Broker
	Config     config.Config
	Logger     *zap.Logger

	now func() time.Time
}

func New(repo repository.Repository, settings *service.SettingsService, market MarketData, pdt Compliance, sim, live Broker, cfg config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		Repo:       repo,
		Settings:   settings,
		Market:     market,
		Compliance: pdt,
		SimBroker:  sim,
		LiveBroker: live,
		Config:     cfg,
		Logger:     logger,
		now:        time.Now,
	}
}

// cycleConfig is an immutable snapshot of every tunable the cycle reads.
// Taken once at cycle start so a runtime toggle mid-cycle cannot produce
// a half-old half-new decision.
type cycleConfig struct {
	Enabled            bool
	Live               bool
	AccountMode        string
	AccountID          string
	Symbol             string
	DeltaTarget        decimal.Decimal
	WingWidth          decimal.Decimal
	TakeProfitFraction decimal.Decimal
	StrikeProximity    int
	Quantity           int
}

func (e *Engine) snapshotConfig(ctx context.Context) cycleConfig {
	live := e.Settings.IsEnabled(ctx, service.KeyUseLiveAccount, false)
	snap := cycleConfig{
		Enabled:            e.Settings.IsEnabled(ctx, service.KeyStrategyEnabled, false),
		Live:               live,
		AccountMode:        models.AccountModeSim,
		AccountID:          e.Config.Broker.SimAccount,
		Symbol:             e.Config.Strategy.UnderlyingSymbol,
		DeltaTarget:        e.Settings.DeltaTarget(ctx),
		WingWidth:          e.Settings.WingWidth(ctx),
		TakeProfitFraction: e.Settings.TakeProfitFraction(ctx),
		StrikeProximity:    e.Config.Strategy.StrikeProximity,
		Quantity:           e.Settings.Quantity(ctx),
	}
	if live {
		snap.AccountMode = models.AccountModeLive
		snap.AccountID = e.Config.Broker.LiveAccount
	}
	if snap.Symbol == "" {
		snap.Symbol = "SPY"
	}
	return snap
}

func (e *Engine) broker(snap cycleConfig) Broker {
	if snap.Live {
		return e.LiveBroker
	}
	return e.SimBroker
}

// RunEntry evaluates the gate chain in fixed order: strategy switch,
// PDT compliance, open-position guard, VIX gap condition, execution.
// The first failing gate terminates the cycle with its outcome.
func (e *Engine) RunEntry(ctx context.Context) (result EntryResult) {
	snap := e.snapshotConfig(ctx)
	result.AccountMode = snap.AccountMode

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("entry cycle panic: %v", r)
			if e.Logger != nil {
				e.Logger.Error("entry cycle panicked", zap.Any("panic", r))
			}
			result = e.failEntry(ctx, snap, OutcomeExecutionFailed, "System error during entry", err, nil)
		}
		metrics.IncEntryCycle(string(result.Outcome), snap.AccountMode)
	}()

	if e.Logger != nil {
		e.Logger.Info("entry cycle started",
			zap.String("account_mode", snap.AccountMode),
			zap.Bool("strategy_enabled", snap.Enabled),
		)
	}

	if !snap.Enabled {
		e.recordDecision(ctx, snap, decisionParams{
			Type:   models.DecisionEntryAttempt,
			Reason: "Strategy is disabled",
		})
		return EntryResult{Outcome: OutcomeDisabled, Reason: "strategy disabled", AccountMode: snap.AccountMode}
	}

	pdt := e.Compliance.Check(ctx, snap.AccountMode)
	metrics.SetPDTRemaining(snap.AccountMode, pdt.Remaining)
	if !pdt.CanTradeToday {
		remaining := pdt.Remaining
		e.recordDecision(ctx, snap, decisionParams{
			Type:               models.DecisionEntryAttempt,
			Reason:             fmt.Sprintf("PDT rule violation risk - %d trades remaining", pdt.Remaining),
			PDTTradesRemaining: &remaining,
			ErrorMessage:       pdt.Err,
		})
		return EntryResult{Outcome: OutcomeComplianceBlocked, Reason: "pdt compliance blocked", AccountMode: snap.AccountMode}
	}

	today := e.today()
	existing, err := e.Repo.FindOpenTrade(ctx, today, snap.AccountMode)
	if err != nil {
		return e.failEntry(ctx, snap, OutcomeExecutionFailed, "Failed to check open positions", err, nil)
	}
	if existing != nil {
		e.recordDecision(ctx, snap, decisionParams{
			Type:    models.DecisionEntryAttempt,
			Reason:  "Already have open position today",
			TradeID: &existing.ID,
		})
		return EntryResult{Outcome: OutcomeAlreadyOpen, Reason: "open position exists", AccountMode: snap.AccountMode}
	}

	gap := e.Market.CheckGapUp(ctx)
	switch {
	case gap.Err != "":
		metrics.IncGapCheck("error")
	case gap.ConditionMet:
		metrics.IncGapCheck("met")
	default:
		metrics.IncGapCheck("not_met")
	}
	if !gap.ConditionMet {
		vix := gap.CurrentVIX
		gapUp := gap.VIXGapUp
		e.recordDecision(ctx, snap, decisionParams{
			Type:         models.DecisionEntryAttempt,
			Reason:       "VIX gap up condition not met",
			VIXValue:     &vix,
			VIXGapUp:     &gapUp,
			ErrorMessage: gap.Err,
			Detail:       gapDetail(gap),
		})
		return EntryResult{
			Outcome:     OutcomeConditionNotMet,
			Reason:      "vix gap up condition not met",
			AccountMode: snap.AccountMode,
			GapCheck:    &gap,
		}
	}

	trade, err := e.executeEntry(ctx, snap, gap)
	if err != nil {
		return e.failEntry(ctx, snap, OutcomeExecutionFailed, "Trade execution failed: "+err.Error(), err, &gap)
	}

	if _, err := e.Compliance.RecordTrade(ctx, snap.AccountMode); err != nil && e.Logger != nil {
		// The position is live regardless; losing the compliance increment
		// is recoverable from the trades table.
		e.Logger.Error("failed to record day trade", zap.Error(err), zap.Uint64("trade_id", trade.ID))
	}

	vix := gap.CurrentVIX
	gapUp := true
	e.recordDecision(ctx, snap, decisionParams{
		Type:        models.DecisionEntryAttempt,
		ActionTaken: true,
		Reason:      "VIX gap up detected - iron condor executed",
		VIXValue:    &vix,
		VIXGapUp:    &gapUp,
		SPYPrice:    trade.SPYPriceAtEntry,
		TradeID:     &trade.ID,
		Detail:      gapDetail(gap),
	})

	if e.Logger != nil {
		e.Logger.Info("iron condor entered",
			zap.Uint64("trade_id", trade.ID),
			zap.String("account_mode", snap.AccountMode),
		)
	}
	return EntryResult{
		Outcome:     OutcomeEntered,
		Reason:      "iron condor executed",
		AccountMode: snap.AccountMode,
		TradeID:     &trade.ID,
		GapCheck:    &gap,
	}
}

// executeEntry builds the condor, places it, and persists the trade row.
// Known risk: if the broker accepts the order but the insert fails, the
// position exists without a local record; the error is logged loudly and
// surfaced, and the operator reconciles against the brokerage positions.
func (e *Engine) executeEntry(ctx context.Context, snap cycleConfig, gap marketdata.GapCheck) (*models.Trade, error) {
	spyPrice, err := e.Market.SPYPrice(ctx, snap.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch underlying price: %w", err)
	}

	today := e.today()
	strategy, err := e.broker(snap).BuildIronCondor(ctx, tradestation.CondorParams{
		Symbol:             snap.Symbol,
		Expiration:         today,
		DeltaTarget:        snap.DeltaTarget,
		WingWidth:          snap.WingWidth,
		TakeProfitFraction: snap.TakeProfitFraction,
		StrikeProximity:    snap.StrikeProximity,
	})
	if err != nil {
		return nil, err
	}

	orderResp, err := e.broker(snap).PlaceIronCondor(ctx, snap.AccountID, strategy, snap.Quantity)
	if err != nil {
		return nil, err
	}
	metrics.IncOrder("entry", snap.AccountMode)

	entryOrderID := ""
	if len(orderResp.Orders) > 0 {
		entryOrderID = orderResp.Orders[0].OrderID
	}
	takeProfitOrderID := ""
	if len(orderResp.Orders) > 1 {
		takeProfitOrderID = orderResp.Orders[1].OrderID
	}

	entryTime := e.now()
	credit := strategy.NetCredit
	maxLoss := strategy.MaxLoss
	trade := &models.Trade{
		TradeDate:         today,
		EntryTime:         &entryTime,
		ExpirationDate:    today,
		UnderlyingSymbol:  snap.Symbol,
		PutStrike:         strategy.PutStrike,
		PutWingStrike:     strategy.PutWingStrike,
		CallStrike:        strategy.CallStrike,
		CallWingStrike:    strategy.CallWingStrike,
		Quantity:          snap.Quantity,
		EntryPrice:        &credit,
		MaxProfit:         &credit,
		MaxLoss:           &maxLoss,
		EntryOrderID:      entryOrderID,
		TakeProfitOrderID: takeProfitOrderID,
		IsOpen:            true,
		AccountMode:       snap.AccountMode,
		SPYPriceAtEntry:   &spyPrice,
	}
	vix := gap.CurrentVIX
	trade.VIXOpen = &vix
	trade.VIXPreviousClose = gap.PreviousClose

	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		open, err := e.Repo.FindOpenTradeTx(ctx, tx, today, snap.AccountMode)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("open position already recorded for today (trade %d)", open.ID)
		}
		return e.Repo.InsertTradeTx(ctx, tx, trade)
	})
	if err != nil {
		if e.Logger != nil {
			e.Logger.Error("order accepted but trade record not persisted, manual reconciliation required",
				zap.String("entry_order_id", entryOrderID),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("persist trade after order %s: %w", entryOrderID, err)
	}
	return trade, nil
}

// RunExit closes every open position for today independently; one failed
// close never blocks the others. A single decision row summarizes the
// cycle.
func (e *Engine) RunExit(ctx context.Context) (result ExitResult) {
	snap := e.snapshotConfig(ctx)
	result.AccountMode = snap.AccountMode

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("exit cycle panic: %v", r)
			if e.Logger != nil {
				e.Logger.Error("exit cycle panicked", zap.Any("panic", r))
			}
			e.recordDecision(ctx, snap, decisionParams{
				Type:         models.DecisionExitAttempt,
				Reason:       "System error during exit",
				ErrorMessage: err.Error(),
			})
			result = ExitResult{AccountMode: snap.AccountMode, Err: err.Error()}
		}
		metrics.IncExitCycle(snap.AccountMode)
	}()

	if e.Logger != nil {
		e.Logger.Info("exit cycle started", zap.String("account_mode", snap.AccountMode))
	}

	today := e.today()
	openTrades, err := e.Repo.ListOpenTrades(ctx, today, snap.AccountMode)
	if err != nil {
		e.recordDecision(ctx, snap, decisionParams{
			Type:         models.DecisionExitAttempt,
			Reason:       "Failed to list open positions",
			ErrorMessage: err.Error(),
		})
		return ExitResult{AccountMode: snap.AccountMode, Err: err.Error()}
	}

	if len(openTrades) == 0 {
		e.recordDecision(ctx, snap, decisionParams{
			Type:   models.DecisionExitAttempt,
			Reason: "No open positions to exit",
		})
		return ExitResult{AccountMode: snap.AccountMode}
	}

	results := make([]TradeExitResult, 0, len(openTrades))
	closed := 0
	for i := range openTrades {
		trade := &openTrades[i]
		if err := e.closeTrade(ctx, snap, trade, models.ExitReasonTimedExit, nil); err != nil {
			if e.Logger != nil {
				e.Logger.Error("failed to close trade", zap.Uint64("trade_id", trade.ID), zap.Error(err))
			}
			results = append(results, TradeExitResult{TradeID: trade.ID, Err: err.Error()})
			continue
		}
		closed++
		results = append(results, TradeExitResult{TradeID: trade.ID, Closed: true})
	}

	e.recordDecision(ctx, snap, decisionParams{
		Type:        models.DecisionExitAttempt,
		ActionTaken: closed > 0,
		Reason:      fmt.Sprintf("Timed exit executed - %d trades closed", closed),
	})

	return ExitResult{
		AccountMode:  snap.AccountMode,
		TradesClosed: closed,
		Results:      results,
	}
}

// CloseTrade force-closes one trade outside the schedule, for the manual
// close operation. An exit price may be supplied to realize P&L.
func (e *Engine) CloseTrade(ctx context.Context, tradeID uint64, exitPrice *decimal.Decimal) error {
	snap := e.snapshotConfig(ctx)
	trade, err := e.Repo.GetTradeByID(ctx, tradeID)
	if err != nil {
		return err
	}
	if trade == nil {
		return fmt.Errorf("trade %d not found", tradeID)
	}
	if !trade.IsOpen {
		return fmt.Errorf("trade %d is already closed", tradeID)
	}
	// Close against the brokerage environment the trade was entered in,
	// not the currently toggled one.
	snap.Live = trade.AccountMode == models.AccountModeLive
	snap.AccountMode = trade.AccountMode
	snap.AccountID = e.Config.Broker.SimAccount
	if snap.Live {
		snap.AccountID = e.Config.Broker.LiveAccount
	}
	return e.closeTrade(ctx, snap, trade, models.ExitReasonManual, exitPrice)
}

// closeTrade places the closing order and updates the trade row.
func (e *Engine) closeTrade(ctx context.Context, snap cycleConfig, trade *models.Trade, reason string, exitPrice *decimal.Decimal) error {
	strategy := tradestation.ReconstructCondor(
		trade.UnderlyingSymbol,
		trade.ExpirationDate,
		trade.PutStrike,
		trade.PutWingStrike,
		trade.CallStrike,
		trade.CallWingStrike,
	)

	orderResp, err := e.broker(snap).CloseIronCondor(ctx, snap.AccountID, strategy, trade.Quantity)
	if err != nil {
		return err
	}
	metrics.IncOrder("close", snap.AccountMode)

	exitTime := e.now()
	trade.IsOpen = false
	trade.ExitTime = &exitTime
	trade.ExitReason = reason
	if len(orderResp.Orders) > 0 {
		trade.ExitOrderID = orderResp.Orders[0].OrderID
	}
	if exitPrice == nil && trade.ExitOrderID != "" {
		exitPrice = e.closeFillPrice(ctx, snap, trade.ExitOrderID)
	}
	if exitPrice != nil {
		trade.ExitPrice = exitPrice
		pnl := RealizedPnL(trade.EntryPrice, exitPrice, trade.Quantity)
		trade.RealizedPnL = pnl
	}

	if err := e.Repo.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("update trade %d after close order: %w", trade.ID, err)
	}
	metrics.IncTradeClosed(reason, snap.AccountMode)
	return nil
}

// closeFillPrice asks the brokerage for the close order's fill so timed
// exits can realize P&L too. Best effort: an unfilled order, a missing
// price or a transport failure leaves the prices unset for manual
// reconciliation.
func (e *Engine) closeFillPrice(ctx context.Context, snap cycleConfig, orderID string) *decimal.Decimal {
	order, err := e.broker(snap).GetOrder(ctx, snap.AccountID, orderID)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("could not fetch close order fill", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil
	}
	if order == nil || order.Status != tradestation.OrderStatusFilled {
		return nil
	}
	price, err := decimal.NewFromString(order.FilledPrice)
	if err != nil {
		return nil
	}
	return &price
}

// RealizedPnL is (credit received - debit paid) x 100 shares per
// contract x quantity. Nil when the entry or exit price is unknown.
func RealizedPnL(entry, exit *decimal.Decimal, quantity int) *decimal.Decimal {
	if entry == nil || exit == nil {
		return nil
	}
	if quantity <= 0 {
		quantity = 1
	}
	pnl := entry.Sub(*exit).Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(int64(quantity)))
	return &pnl
}

func (e *Engine) failEntry(ctx context.Context, snap cycleConfig, outcome EntryOutcome, reason string, err error, gap *marketdata.GapCheck) EntryResult {
	if e.Logger != nil {
		e.Logger.Error("entry cycle failed", zap.String("reason", reason), zap.Error(err))
	}
	params := decisionParams{
		Type:         models.DecisionEntryAttempt,
		Reason:       reason,
		ErrorMessage: err.Error(),
	}
	if gap != nil {
		vix := gap.CurrentVIX
		params.VIXValue = &vix
	}
	e.recordDecision(ctx, snap, params)
	return EntryResult{
		Outcome:     outcome,
		Reason:      reason,
		AccountMode: snap.AccountMode,
		GapCheck:    gap,
		Err:         err.Error(),
	}
}

type decisionParams struct {
	Type               string
	ActionTaken        bool
	Reason             string
	VIXValue           *decimal.Decimal
	VIXGapUp           *bool
	SPYPrice           *decimal.Decimal
	PDTTradesRemaining *int
	ErrorMessage       string
	TradeID            *uint64
	Detail             datatypes.JSON
}

// gapDetail serializes the full gap check for the decision audit row.
func gapDetail(gap marketdata.GapCheck) datatypes.JSON {
	raw, err := json.Marshal(gap)
	if err != nil {
		return nil
	}
	return raw
}

// recordDecision writes the audit row for a cycle outcome. A failed
// write is logged and swallowed: losing an audit row must never undo or
// block a trading action that already happened.
func (e *Engine) recordDecision(ctx context.Context, snap cycleConfig, params decisionParams) {
	now := e.now()
	decision := &models.TradeDecision{
		DecisionDate:       e.today(),
		DecisionTime:       now,
		DecisionType:       params.Type,
		ActionTaken:        params.ActionTaken,
		Reason:             params.Reason,
		VIXValue:           params.VIXValue,
		VIXGapUp:           params.VIXGapUp,
		SPYPrice:           params.SPYPrice,
		AccountMode:        snap.AccountMode,
		PDTTradesRemaining: params.PDTTradesRemaining,
		StrategyEnabled:    snap.Enabled,
		ErrorMessage:       params.ErrorMessage,
		TradeID:            params.TradeID,
		Detail:             params.Detail,
	}
	if err := e.Repo.InsertTradeDecision(ctx, decision); err != nil {
		if e.Logger != nil {
			e.Logger.Error("failed to record trade decision",
				zap.String("decision_type", params.Type),
				zap.Error(err),
			)
		}
		return
	}
	if e.Logger != nil {
		e.Logger.Info("decision recorded",
			zap.String("decision_type", params.Type),
			zap.Bool("action_taken", params.ActionTaken),
			zap.String("reason", params.Reason),
		)
	}
}

func (e *Engine) today() time.Time {
	now := e.now
	if now == nil {
		now = time.Now
	}
	y, m, d := now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
