package tradestation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OptionSymbols holds the four legs of a condor in TradeStation option
// symbol format, e.g. "SPY 240614P445".
type OptionSymbols struct {
	PutSell  string `json:"put_sell"`
	PutBuy   string `json:"put_buy"`
	CallSell string `json:"call_sell"`
	CallBuy  string `json:"call_buy"`
}

// CondorStrategy is a fully priced iron condor: two short legs near the
// delta target and two protective wings one width away.
type CondorStrategy struct {
	Symbol          string          `json:"symbol"`
	Expiration      time.Time       `json:"expiration_date"`
	PutStrike       decimal.Decimal `json:"put_strike"`
	CallStrike      decimal.Decimal `json:"call_strike"`
	PutWingStrike   decimal.Decimal `json:"put_wing_strike"`
	CallWingStrike  decimal.Decimal `json:"call_wing_strike"`
	NetCredit       decimal.Decimal `json:"net_credit"`
	MaxLoss         decimal.Decimal `json:"max_loss"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	Symbols         OptionSymbols   `json:"option_symbols"`
}

type CondorParams struct {
	Symbol             string
	Expiration         time.Time
	DeltaTarget        decimal.Decimal
	WingWidth          decimal.Decimal
	TakeProfitFraction decimal.Decimal
	StrikeProximity    int
}

// BuildIronCondor fetches the chain for the expiration and constructs
// the condor: short put closest to +delta target, short call closest to
// -delta target, wings one wing-width out. The net credit is the short
// bids minus the wing asks, floored to the cent; the take-profit price
// is the configured fraction of that credit, also floored.
func (c *Client) BuildIronCondor(ctx context.Context, params CondorParams) (*CondorStrategy, error) {
	chain, err := c.GetOptionsChain(ctx, params.Symbol, params.Expiration, params.StrikeProximity)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain for %s", ErrInsufficientChain, params.Symbol)
	}

	shortPut, ok := closestByDelta(chain, SidePut, params.DeltaTarget)
	if !ok {
		return nil, fmt.Errorf("%w: no puts in chain", ErrInsufficientChain)
	}
	shortCall, ok := closestByDelta(chain, SideCall, params.DeltaTarget.Neg())
	if !ok {
		return nil, fmt.Errorf("%w: no calls in chain", ErrInsufficientChain)
	}

	putWingStrike := shortPut.Strike.Sub(params.WingWidth)
	callWingStrike := shortCall.Strike.Add(params.WingWidth)

	putWing, ok := findStrike(chain, SidePut, putWingStrike)
	if !ok {
		return nil, fmt.Errorf("%w: no put at wing strike %s", ErrInsufficientChain, putWingStrike)
	}
	callWing, ok := findStrike(chain, SideCall, callWingStrike)
	if !ok {
		return nil, fmt.Errorf("%w: no call at wing strike %s", ErrInsufficientChain, callWingStrike)
	}

	credit := floorCents(shortPut.Bid.Add(shortCall.Bid).Sub(putWing.Ask).Sub(callWing.Ask))
	takeProfit := floorCents(credit.Mul(params.TakeProfitFraction))

	strategy := &CondorStrategy{
		Symbol:          params.Symbol,
		Expiration:      params.Expiration,
		PutStrike:       shortPut.Strike,
		CallStrike:      shortCall.Strike,
		PutWingStrike:   putWingStrike,
		CallWingStrike:  callWingStrike,
		NetCredit:       credit,
		MaxLoss:         params.WingWidth.Sub(credit),
		TakeProfitPrice: takeProfit,
		Symbols: OptionSymbols{
			PutSell:  optionSymbol(params.Symbol, params.Expiration, "P", shortPut.Strike),
			PutBuy:   optionSymbol(params.Symbol, params.Expiration, "P", putWingStrike),
			CallSell: optionSymbol(params.Symbol, params.Expiration, "C", shortCall.Strike),
			CallBuy:  optionSymbol(params.Symbol, params.Expiration, "C", callWingStrike),
		},
	}
	if c.logger != nil {
		c.logger.Info("iron condor built",
			zap.String("symbol", strategy.Symbol),
			zap.String("put_strike", strategy.PutStrike.String()),
			zap.String("call_strike", strategy.CallStrike.String()),
			zap.String("net_credit", strategy.NetCredit.String()),
			zap.String("take_profit", strategy.TakeProfitPrice.String()),
		)
	}
	return strategy, nil
}

// ReconstructCondor rebuilds the leg symbols of a previously entered
// condor from its stored strikes, for closing orders.
func ReconstructCondor(symbol string, expiration time.Time, putStrike, putWing, callStrike, callWing decimal.Decimal) *CondorStrategy {
	return &CondorStrategy{
		Symbol:         symbol,
		Expiration:     expiration,
		PutStrike:      putStrike,
		PutWingStrike:  putWing,
		CallStrike:     callStrike,
		CallWingStrike: callWing,
		Symbols: OptionSymbols{
			PutSell:  optionSymbol(symbol, expiration, "P", putStrike),
			PutBuy:   optionSymbol(symbol, expiration, "P", putWing),
			CallSell: optionSymbol(symbol, expiration, "C", callStrike),
			CallBuy:  optionSymbol(symbol, expiration, "C", callWing),
		},
	}
}

// closestByDelta picks the entry of the side whose delta is nearest the
// target; puts target a positive value, calls a negative one.
func closestByDelta(chain []ChainEntry, side string, target decimal.Decimal) (ChainEntry, bool) {
	var best ChainEntry
	var bestDiff decimal.Decimal
	found := false
	for _, entry := range chain {
		if entry.Side != side {
			continue
		}
		diff := entry.Delta.Sub(target).Abs()
		if !found || diff.LessThan(bestDiff) {
			best = entry
			bestDiff = diff
			found = true
		}
	}
	return best, found
}

func findStrike(chain []ChainEntry, side string, strike decimal.Decimal) (ChainEntry, bool) {
	for _, entry := range chain {
		if entry.Side == side && entry.Strike.Equal(strike) {
			return entry, true
		}
	}
	return ChainEntry{}, false
}

// optionSymbol formats "SYM YYMMDD{P|C}STRIKE"; whole-number strikes
// print without a decimal point.
func optionSymbol(symbol string, expiration time.Time, side string, strike decimal.Decimal) string {
	s := strike
	if strike.Equal(strike.Truncate(0)) {
		s = strike.Truncate(0)
	}
	return fmt.Sprintf("%s %s%s%s", symbol, expiration.Format("060102"), side, s)
}

// floorCents rounds a price down to the nearest cent.
func floorCents(d decimal.Decimal) decimal.Decimal {
	return d.Mul(decimal.NewFromInt(100)).Floor().Div(decimal.NewFromInt(100))
}
