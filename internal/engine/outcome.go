package engine

import "condortrader/internal/marketdata"

// EntryOutcome tags the terminal state of one entry cycle. Exactly one
// outcome is produced per cycle and exactly one decision row is written
// for it.
type EntryOutcome string

const (
	OutcomeDisabled          EntryOutcome = "disabled"
	OutcomeComplianceBlocked EntryOutcome = "compliance_blocked"
	OutcomeAlreadyOpen       EntryOutcome = "already_open"
	OutcomeConditionNotMet   EntryOutcome = "condition_not_met"
	OutcomeExecutionFailed   EntryOutcome = "execution_failed"
	OutcomeEntered           EntryOutcome = "entered"
)

type EntryResult struct {
	Outcome     EntryOutcome        `json:"outcome"`
	Reason      string              `json:"reason"`
	AccountMode string              `json:"account_mode"`
	TradeID     *uint64             `json:"trade_id,omitempty"`
	GapCheck    *marketdata.GapCheck `json:"gap_check,omitempty"`
	Err         string              `json:"error,omitempty"`
}

// Entered reports whether the cycle opened a position.
func (r EntryResult) Entered() bool {
	return r.Outcome == OutcomeEntered
}

type TradeExitResult struct {
	TradeID uint64 `json:"trade_id"`
	Closed  bool   `json:"closed"`
	Err     string `json:"error,omitempty"`
}

type ExitResult struct {
	AccountMode  string            `json:"account_mode"`
	TradesClosed int               `json:"trades_closed"`
	Results      []TradeExitResult `json:"results"`
	Err          string            `json:"error,omitempty"`
}
