// Package ledger holds current positions and the append-only realized-PnL
// log. It is not safe for concurrent use: the engine goroutine is its single
// owner and applies every mutation within one scheduler turn.
package ledger

import (
	"fmt"
	"time"

	"alert-trader/internal/broker"
	"alert-trader/internal/observ"
	"alert-trader/internal/signal"
)

// Position is one instrument's holding. Quantity never goes negative;
// average cost is meaningless at quantity zero.
type Position struct {
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Entry is one realized-PnL record. Entries are never mutated or deleted.
type Entry struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Asset       string  `json:"asset"`
	Quantity    float64 `json:"quantity"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// InvariantError reports a sell that exceeded the held quantity. The ledger
// clamps the position and keeps running; the gap is a risk-gate failure, not
// a bookkeeping one.
type InvariantError struct {
	Key       string
	Held      float64
	Requested float64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant: sell %g of %s exceeds held %g", e.Requested, e.Key, e.Held)
}

// Ledger is the positions map plus the ordered realized-PnL sequence.
type Ledger struct {
	Positions map[string]Position `json:"positions"`
	Realized  []Entry             `json:"realized_pnl"`

	dirty   bool
	version int64
}

func New() *Ledger {
	return &Ledger{Positions: map[string]Position{}}
}

// Quantity returns the held quantity for an instrument key.
func (l *Ledger) Quantity(key string) float64 {
	return l.Positions[key].Quantity
}

// AvgCost returns the current average cost for an instrument key.
func (l *Ledger) AvgCost(key string) float64 {
	return l.Positions[key].AvgCost
}

// Dirty reports whether state changed since the last MarkFlushed.
func (l *Ledger) Dirty() bool { return l.dirty }

// MarkFlushed clears the dirty flag after a successful persist.
func (l *Ledger) MarkFlushed() { l.dirty = false }

// ApplyBuyFill folds a buy fill into the position with a weighted-average
// cost update.
func (l *Ledger) ApplyBuyFill(inst signal.Instrument, qty, price float64) {
	if qty <= 0 {
		return
	}
	key := inst.Key()
	pos := l.Positions[key]
	total := pos.AvgCost*pos.Quantity + price*qty
	pos.Quantity += qty
	pos.AvgCost = total / pos.Quantity
	l.Positions[key] = pos
	l.dirty = true
	observ.Log("ledger_buy_fill", map[string]any{
		"key": key, "qty": qty, "price": price,
		"position_qty": pos.Quantity, "avg_cost": pos.AvgCost,
	})
}

// ApplySellFill reduces the position and appends a realized-PnL entry priced
// against the average cost at this moment. Average cost is unchanged by a
// sell. A sell exceeding the held quantity is clamped and reported.
func (l *Ledger) ApplySellFill(inst signal.Instrument, qty, price float64, date time.Time) (Entry, error) {
	key := inst.Key()
	pos := l.Positions[key]

	var invariant error
	if qty > pos.Quantity+1e-9 {
		invariant = &InvariantError{Key: key, Held: pos.Quantity, Requested: qty}
		observ.Error("ledger_invariant_violation", invariant, map[string]any{"key": key})
		observ.IncCounter("ledger_invariant_violations", nil)
		qty = pos.Quantity
	}
	if qty <= 0 {
		return Entry{}, invariant
	}

	entry := Entry{
		Date:        date.Format("2006-01-02"),
		Asset:       key,
		Quantity:    qty,
		RealizedPnL: (price - pos.AvgCost) * qty * inst.Multiplier(),
	}
	pos.Quantity -= qty
	if pos.Quantity <= 1e-9 {
		delete(l.Positions, key)
	} else {
		l.Positions[key] = pos
	}
	l.Realized = append(l.Realized, entry)
	l.dirty = true
	observ.Log("ledger_sell_fill", map[string]any{
		"key": key, "qty": qty, "price": price, "realized_pnl": entry.RealizedPnL,
	})
	return entry, invariant
}

// Reconcile overwrites positions with the broker's snapshot. Instruments
// absent from the snapshot go to zero. The realized-PnL log is untouched.
// Applying the same snapshot twice is a no-op the second time.
func (l *Ledger) Reconcile(holdings []broker.Holding) {
	next := make(map[string]Position, len(holdings))
	for _, h := range holdings {
		if h.Quantity <= 0 {
			continue
		}
		next[h.Key] = Position{Quantity: h.Quantity, AvgCost: h.AvgCost}
		if prev, ok := l.Positions[h.Key]; ok && prev.Quantity > 0 {
			if diff := prev.AvgCost - h.AvgCost; diff > 0.01 || diff < -0.01 {
				observ.Log("reconcile_basis_divergence", map[string]any{
					"key": h.Key, "local_avg_cost": prev.AvgCost, "broker_avg_cost": h.AvgCost,
				})
			}
		}
	}
	if !positionsEqual(l.Positions, next) {
		l.Positions = next
		l.dirty = true
	}
}

func positionsEqual(a, b map[string]Position) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		if vb, ok := b[k]; !ok || va != vb {
			return false
		}
	}
	return true
}

// TotalRealized sums the realized-PnL log, optionally for one asset.
func (l *Ledger) TotalRealized(asset string) float64 {
	var sum float64
	for _, e := range l.Realized {
		if asset == "" || e.Asset == asset {
			sum += e.RealizedPnL
		}
	}
	return sum
}
