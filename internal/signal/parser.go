package signal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Alert grammar, case-insensitive:
//
//	options: "BTO 10 AAPL 150C 08/16 @ 2.50"  (or "@ m" for market)
//	stocks:  "BTO 100 AAPL @ m"               (or a numeric limit price)
//
// The quantity token is optional and defaults to 1. A space is required
// before '@' and optional after it.
var (
	reOption      = regexp.MustCompile(`(?i)^(BTO|STC)\s+(\d+)\s+([A-Z]{1,6})\s+(\d+(?:\.\d+)?)\s*([CP])\s+(\d{2}/\d{2})\s+@\s*(m|[\d.]+)$`)
	reOptionNoQty = regexp.MustCompile(`(?i)^(BTO|STC)\s+([A-Z]{1,6})\s+(\d+(?:\.\d+)?)\s*([CP])\s+(\d{2}/\d{2})\s+@\s*(m|[\d.]+)$`)
	reStock       = regexp.MustCompile(`(?i)^(BTO|STC)\s+(\d+)\s+([A-Z]{1,6})\s+@\s*(m|[\d.]+)$`)
	reStockNoQty  = regexp.MustCompile(`(?i)^(BTO|STC)\s+([A-Z]{1,6})\s+@\s*(m|[\d.]+)$`)
)

// ErrNoMatch is returned when text does not match any alert form.
var ErrNoMatch = fmt.Errorf("text is not a recognized trade alert")

// Parse turns one alert line into a TradeSignal. Malformed text returns an
// error; it never panics on arbitrary input.
func Parse(text string) (TradeSignal, error) {
	t := strings.TrimSpace(text)

	if m := reOption.FindStringSubmatch(t); m != nil {
		return buildOption(m[1], m[2], m[3], m[4], m[5], m[6], m[7])
	}
	if m := reOptionNoQty.FindStringSubmatch(t); m != nil {
		return buildOption(m[1], "1", m[2], m[3], m[4], m[5], m[6])
	}
	if m := reStock.FindStringSubmatch(t); m != nil {
		return buildStock(m[1], m[2], m[3], m[4])
	}
	if m := reStockNoQty.FindStringSubmatch(t); m != nil {
		return buildStock(m[1], "1", m[2], m[3])
	}
	return TradeSignal{}, ErrNoMatch
}

func buildStock(action, qty, sym, price string) (TradeSignal, error) {
	q, err := strconv.ParseFloat(qty, 64)
	if err != nil || q <= 0 {
		return TradeSignal{}, fmt.Errorf("bad quantity %q", qty)
	}
	ot, lp, err := parsePrice(price)
	if err != nil {
		return TradeSignal{}, err
	}
	return TradeSignal{
		Action:     Action(strings.ToUpper(action)),
		Instrument: Instrument{Kind: Equity, Symbol: normalizeSymbol(sym)},
		Quantity:   q,
		OrderType:  ot,
		LimitPrice: lp,
	}, nil
}

func buildOption(action, qty, sym, strike, cp, expiry, price string) (TradeSignal, error) {
	q, err := strconv.ParseFloat(qty, 64)
	if err != nil || q <= 0 {
		return TradeSignal{}, fmt.Errorf("bad quantity %q", qty)
	}
	k, err := strconv.ParseFloat(strike, 64)
	if err != nil {
		return TradeSignal{}, fmt.Errorf("bad strike %q", strike)
	}
	ot, lp, err := parsePrice(price)
	if err != nil {
		return TradeSignal{}, err
	}
	return TradeSignal{
		Action: Action(strings.ToUpper(action)),
		Instrument: Instrument{
			Kind:       Option,
			Symbol:     normalizeSymbol(sym),
			Strike:     k,
			CallPut:    strings.ToUpper(cp),
			ExpiryMMDD: expiry,
		},
		Quantity:   q,
		OrderType:  ot,
		LimitPrice: lp,
	}, nil
}

func parsePrice(raw string) (OrderType, float64, error) {
	if strings.EqualFold(raw, "m") {
		return Market, 0, nil
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil || p <= 0 {
		return "", 0, fmt.Errorf("bad price token %q", raw)
	}
	return Limit, p, nil
}
