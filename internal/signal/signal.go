package signal

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is the signal direction: buy-to-open or sell-to-close.
type Action string

const (
	BTO Action = "BTO"
	STC Action = "STC"
)

// Kind distinguishes equity and option signals.
type Kind string

const (
	Equity Kind = "equity"
	Option Kind = "option"
)

// OrderType is the price mode carried by the signal.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// Instrument identifies a tradable: a bare symbol for equities, or
// symbol + strike + C/P + MM/DD for options.
type Instrument struct {
	Kind       Kind    `json:"kind"`
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike,omitempty"`
	CallPut    string  `json:"call_put,omitempty"` // "C" or "P"
	ExpiryMMDD string  `json:"expiry_mmdd,omitempty"`
}

// Key returns the ledger key for the instrument. Options use the
// "SYM 150C 08/16" form so positions and PnL entries read naturally.
func (i Instrument) Key() string {
	if i.Kind == Equity {
		return i.Symbol
	}
	return fmt.Sprintf("%s %s%s %s", i.Symbol, trimStrike(i.Strike), i.CallPut, i.ExpiryMMDD)
}

// Multiplier is the contract multiplier used for notional and PnL.
func (i Instrument) Multiplier() float64 {
	if i.Kind == Option {
		return 100
	}
	return 1
}

func trimStrike(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// TradeSignal is the parsed form of one alert line. Immutable once parsed.
type TradeSignal struct {
	Action     Action
	Instrument Instrument
	Quantity   float64
	OrderType  OrderType
	LimitPrice float64 // meaningful only when OrderType == Limit
}

func (s TradeSignal) String() string {
	price := "m"
	if s.OrderType == Limit {
		price = strconv.FormatFloat(s.LimitPrice, 'f', -1, 64)
	}
	return fmt.Sprintf("%s %g %s @ %s", s.Action, s.Quantity, s.Instrument.Key(), price)
}

// Side is the broker-facing order side derived from the action.
func (s TradeSignal) Side() string {
	if s.Action == BTO {
		return "buy"
	}
	return "sell"
}

func normalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}
