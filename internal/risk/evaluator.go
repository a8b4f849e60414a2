// Package risk gates parsed signals before order construction.
package risk

import (
	"fmt"

	"alert-trader/internal/observ"
	"alert-trader/internal/signal"
)

// Rejection is a terminal pre-trade rejection for one signal.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return "risk rejected: " + r.Reason }

// Evaluator applies the per-order notional cap and the no-short-selling
// holdings constraint.
type Evaluator struct {
	MaxOrderNotional float64
}

func NewEvaluator(maxOrderNotional float64) *Evaluator {
	return &Evaluator{MaxOrderNotional: maxOrderNotional}
}

// Check accepts or rejects a signal. estPrice is the signal's limit price
// when present, otherwise a broker mid estimate. held is the ledger's
// current quantity for the signal's instrument.
func (e *Evaluator) Check(sig signal.TradeSignal, estPrice, held float64) error {
	notional := estPrice * sig.Quantity * sig.Instrument.Multiplier()
	if e.MaxOrderNotional > 0 && notional > e.MaxOrderNotional {
		observ.IncCounter("risk_rejections", map[string]string{"reason": "notional_cap"})
		return &Rejection{Reason: fmt.Sprintf(
			"order notional $%.2f exceeds cap $%.2f", notional, e.MaxOrderNotional)}
	}
	if sig.Action == signal.STC && held+1e-9 < sig.Quantity {
		observ.IncCounter("risk_rejections", map[string]string{"reason": "insufficient_holdings"})
		return &Rejection{Reason: fmt.Sprintf(
			"cannot STC %g of %s: holding %g", sig.Quantity, sig.Instrument.Key(), held)}
	}
	return nil
}
