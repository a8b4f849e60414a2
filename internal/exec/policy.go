// Package exec turns accepted signals into broker orders and tracks each
// submitted order to a terminal outcome.
package exec

import (
	"context"
	"fmt"
	"strings"

	"alert-trader/internal/broker"
	"alert-trader/internal/signal"
)

// Mode is a policy-level execution mode for one side.
type Mode string

const (
	ModeMarket Mode = "MARKET"
	ModeLimit  Mode = "LIMIT"
)

// ParseMode normalizes a config string; anything not MARKET is LIMIT.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, string(ModeMarket)) {
		return ModeMarket
	}
	return ModeLimit
}

// Policy is the global execution policy: independent buy/sell modes and
// slippage percentages, one time-in-force.
type Policy struct {
	BuyMode         Mode
	SellMode        Mode
	BuySlippagePct  float64 // e.g. 0.01 for 1%
	SellSlippagePct float64
	TIF             string // "DAY" | "GTC"
}

// ModeFor returns the effective mode for a signal's side.
func (p Policy) ModeFor(action signal.Action) Mode {
	if action == signal.BTO {
		return p.BuyMode
	}
	return p.SellMode
}

// ContractResolutionError is terminal for the signal that produced it.
type ContractResolutionError struct {
	Instrument signal.Instrument
	Err        error
}

func (e *ContractResolutionError) Error() string {
	return fmt.Sprintf("resolve contract %s: %v", e.Instrument.Key(), e.Err)
}
func (e *ContractResolutionError) Unwrap() error { return e.Err }

// Construct builds concrete order parameters from an accepted signal under
// the policy. estPrice is the price the risk check used: the signal's limit
// price when it carried one, else the broker mid. Options are resolved to a
// tradable contract here.
func Construct(ctx context.Context, b broker.Client, pol Policy, sig signal.TradeSignal, estPrice float64) (broker.OrderParams, error) {
	params := broker.OrderParams{
		Instrument: sig.Instrument,
		Side:       sig.Side(),
		Quantity:   sig.Quantity,
		TIF:        pol.TIF,
	}

	if sig.Instrument.Kind == signal.Option {
		contractID, err := b.ResolveOptionContract(ctx, sig.Instrument)
		if err != nil {
			return broker.OrderParams{}, &ContractResolutionError{Instrument: sig.Instrument, Err: err}
		}
		params.ContractID = contractID
	}

	if pol.ModeFor(sig.Action) == ModeMarket {
		// Policy market mode overrides any explicit signal price.
		params.OrderType = signal.Market
		return params, nil
	}

	base := estPrice
	if sig.OrderType == signal.Limit {
		base = sig.LimitPrice
	}
	if base <= 0 {
		return broker.OrderParams{}, fmt.Errorf("no usable price basis for %s", sig.Instrument.Key())
	}
	slip := pol.BuySlippagePct
	adj := 1 + slip
	if sig.Action == signal.STC {
		slip = pol.SellSlippagePct
		adj = 1 - slip
	}
	params.OrderType = signal.Limit
	params.LimitPrice = roundCents(base * adj)
	return params, nil
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
