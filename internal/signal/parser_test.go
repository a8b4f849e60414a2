package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) TradeSignal {
	t.Helper()
	sig, err := Parse(text)
	require.NoError(t, err, "should parse: %s", text)
	return sig
}

func TestParseOptionLimit(t *testing.T) {
	o := mustParse(t, "BTO 10 AAPL 150c 08/16 @ 2.50")
	assert.Equal(t, BTO, o.Action)
	assert.Equal(t, Option, o.Instrument.Kind)
	assert.Equal(t, "AAPL", o.Instrument.Symbol)
	assert.Equal(t, 150.0, o.Instrument.Strike)
	assert.Equal(t, "C", o.Instrument.CallPut)
	assert.Equal(t, "08/16", o.Instrument.ExpiryMMDD)
	assert.Equal(t, 10.0, o.Quantity)
	assert.Equal(t, Limit, o.OrderType)
	assert.Equal(t, 2.50, o.LimitPrice)
}

func TestParseOptionPut(t *testing.T) {
	o := mustParse(t, "BTO 10 AAPL 150p 08/16 @ 2.50")
	assert.Equal(t, "P", o.Instrument.CallPut)
	assert.Equal(t, 2.50, o.LimitPrice)
}

func TestParseOptionMarket(t *testing.T) {
	o1 := mustParse(t, "STC 2 TSLA 200C 09/20 @ m")
	assert.Equal(t, STC, o1.Action)
	assert.Equal(t, Market, o1.OrderType)
	assert.Zero(t, o1.LimitPrice)

	// Entirely case-insensitive, including the market marker.
	o2 := mustParse(t, "stc 2 tsla 200p 09/20 @ M")
	assert.Equal(t, Market, o2.OrderType)
	assert.Equal(t, "P", o2.Instrument.CallPut)
	assert.Equal(t, "TSLA", o2.Instrument.Symbol)
}

func TestParseOptionNoQuantityDefaultsToOne(t *testing.T) {
	o := mustParse(t, "BTO aapl 150c 08/16 @ 2.50")
	assert.Equal(t, 1.0, o.Quantity)
	assert.Equal(t, "AAPL", o.Instrument.Symbol)
}

func TestParseStockLimitAndMarket(t *testing.T) {
	s1 := mustParse(t, "BTO 100 AAPL @ 150.25")
	assert.Equal(t, BTO, s1.Action)
	assert.Equal(t, Equity, s1.Instrument.Kind)
	assert.Equal(t, 100.0, s1.Quantity)
	assert.Equal(t, Limit, s1.OrderType)
	assert.Equal(t, 150.25, s1.LimitPrice)

	s2 := mustParse(t, "stc 50 nvda @ m")
	assert.Equal(t, STC, s2.Action)
	assert.Equal(t, "NVDA", s2.Instrument.Symbol)
	assert.Equal(t, Market, s2.OrderType)
}

func TestParseStockNoQuantity(t *testing.T) {
	s := mustParse(t, "STC MSFT @ 410.5")
	assert.Equal(t, 1.0, s.Quantity)
}

func TestParseSpaceBeforeAtRequired(t *testing.T) {
	_, err := Parse("BTO 10 AAPL@m")
	assert.Error(t, err)
	_, err = Parse("BTO 10 AAPL @m")
	assert.NoError(t, err)
	_, err = Parse("BTO 10 AAPL @ m")
	assert.NoError(t, err)
}

func TestParseRejectsNoise(t *testing.T) {
	for _, text := range []string{
		"hello world",
		"buy apple now",
		"BTO 10 AAPL @ x",              // price neither m nor number
		"BTO 10 AAPL 150C 08/16 2.50",  // missing '@'
		"BTO 10 AAPL 150c 08/16@2.50",  // no space before '@'
		"BTO 1 ABCDEFG @ m",            // 7-letter symbol
		"BTO 1 BRK.B @ m",              // dotted symbols unsupported
		"",
	} {
		_, err := Parse(text)
		assert.Error(t, err, "should not parse: %q", text)
	}
}

func TestParseTrimsWhitespace(t *testing.T) {
	s := mustParse(t, "   BTO 1 AAPL @ 123.0   ")
	assert.Equal(t, 1.0, s.Quantity)
	assert.Equal(t, 123.0, s.LimitPrice)
}

func TestInstrumentKey(t *testing.T) {
	eq := Instrument{Kind: Equity, Symbol: "AAPL"}
	assert.Equal(t, "AAPL", eq.Key())
	assert.Equal(t, 1.0, eq.Multiplier())

	opt := Instrument{Kind: Option, Symbol: "AAPL", Strike: 150, CallPut: "C", ExpiryMMDD: "08/16"}
	assert.Equal(t, "AAPL 150C 08/16", opt.Key())
	assert.Equal(t, 100.0, opt.Multiplier())

	half := Instrument{Kind: Option, Symbol: "XYZ", Strike: 12.5, CallPut: "P", ExpiryMMDD: "01/17"}
	assert.Equal(t, "XYZ 12.5P 01/17", half.Key())
}
