package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-trader/internal/signal"
)

func stockSig(action signal.Action, qty float64) signal.TradeSignal {
	return signal.TradeSignal{
		Action:     action,
		Instrument: signal.Instrument{Kind: signal.Equity, Symbol: "AAPL"},
		Quantity:   qty,
		OrderType:  signal.Market,
	}
}

func optionSig(action signal.Action, qty float64) signal.TradeSignal {
	return signal.TradeSignal{
		Action:     action,
		Instrument: signal.Instrument{Kind: signal.Option, Symbol: "AAPL", Strike: 150, CallPut: "C", ExpiryMMDD: "08/16"},
		Quantity:   qty,
		OrderType:  signal.Market,
	}
}

func TestNotionalCapEquity(t *testing.T) {
	e := NewEvaluator(5000)

	assert.NoError(t, e.Check(stockSig(signal.BTO, 10), 100, 0)) // $1,000
	err := e.Check(stockSig(signal.BTO, 100), 100, 0)            // $10,000
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "exceeds cap")
}

func TestNotionalCapOptionsUseMultiplier(t *testing.T) {
	e := NewEvaluator(5000)

	// 2 contracts at $2.50 premium = $500 notional.
	assert.NoError(t, e.Check(optionSig(signal.BTO, 2), 2.50, 0))
	// 30 contracts at $2.50 = $7,500.
	assert.Error(t, e.Check(optionSig(signal.BTO, 30), 2.50, 0))
}

func TestSellRequiresHoldings(t *testing.T) {
	e := NewEvaluator(1_000_000)

	err := e.Check(stockSig(signal.STC, 20), 100, 10)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "cannot STC")

	assert.NoError(t, e.Check(stockSig(signal.STC, 10), 100, 10))
	assert.NoError(t, e.Check(stockSig(signal.STC, 10), 100, 10.0000000001))
}

func TestBuyIgnoresHoldings(t *testing.T) {
	e := NewEvaluator(1_000_000)
	assert.NoError(t, e.Check(stockSig(signal.BTO, 10), 100, 0))
}

func TestZeroCapDisablesNotionalCheck(t *testing.T) {
	e := NewEvaluator(0)
	assert.NoError(t, e.Check(stockSig(signal.BTO, 1_000_000), 1000, 0))
}
