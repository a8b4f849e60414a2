package exec

import (
	"context"
	"time"

	"alert-trader/internal/broker"
	"alert-trader/internal/observ"
	"alert-trader/internal/signal"
)

// State is a lifecycle monitor state. Filled and Cancelled are terminal.
type State string

const (
	StateSubmitted       State = "submitted"
	StatePartiallyFilled State = "partially_filled"
	StateRequoted        State = "requoted"
	StateFilled          State = "filled"
	StateCancelled       State = "cancelled"
)

// Sink receives fill results. The engine implements it by funneling the
// mutation into its owner loop; monitors never touch the ledger directly.
type Sink interface {
	BuyFill(inst signal.Instrument, qty, price float64)
	SellFill(inst signal.Instrument, qty, price float64)
}

// MonitorConfig bounds one monitor's polling, timeouts and re-quoting.
type MonitorConfig struct {
	PollInterval time.Duration
	BuyTimeout   time.Duration
	SellTimeout  time.Duration
	MaxRequotes  int
	Retry        broker.RetryConfig
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 800 * time.Millisecond
	}
	if c.BuyTimeout <= 0 {
		c.BuyTimeout = 30 * time.Second
	}
	if c.SellTimeout <= 0 {
		c.SellTimeout = 30 * time.Second
	}
	if c.MaxRequotes < 0 {
		c.MaxRequotes = 0
	}
	return c
}

// Monitor tracks one submitted order to a terminal outcome. Buys commit
// exactly the filled quantity once, at terminal disposition. Sells commit
// every observed fill delta immediately and re-quote the remainder as a
// market order when the window expires, up to MaxRequotes times.
type Monitor struct {
	cfg    MonitorConfig
	broker broker.Client
	sink   Sink
	params broker.OrderParams

	orderID     string
	state       State
	orderFilled float64 // filled qty observed on the current order
	orderAvg    float64 // broker-reported cumulative average for the current order
	totalFilled float64 // committed across original + re-quotes
	lastAvg     float64 // last broker-reported average fill price
	requotes    int
}

func NewMonitor(cfg MonitorConfig, b broker.Client, sink Sink, params broker.OrderParams, orderID string) *Monitor {
	return &Monitor{
		cfg:     cfg.withDefaults(),
		broker:  b,
		sink:    sink,
		params:  params,
		orderID: orderID,
		state:   StateSubmitted,
	}
}

func (m *Monitor) transition(to State) {
	if m.state == to {
		return
	}
	observ.Log("monitor_transition", map[string]any{
		"order_id": m.orderID,
		"key":      m.params.Instrument.Key(),
		"side":     m.params.Side,
		"from":     string(m.state),
		"to":       string(to),
	})
	m.state = to
}

// Run drives the state machine until a terminal state or ctx cancellation.
// It never blocks signal ingestion: the engine runs it on its own goroutine.
func (m *Monitor) Run(ctx context.Context) State {
	deadline := time.Now().Add(m.window())
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Process shutdown: abandon the order; the next startup's
			// initial sync reconciles any unseen fills away.
			return m.state
		case <-ticker.C:
		}

		status, err := m.pollStatus(ctx)
		if err != nil {
			return m.failOrder(ctx, err)
		}
		m.observeFills(status)

		switch {
		case status.State == broker.StateFilled:
			m.commitBuyIfAny(status.AvgFillPrice)
			m.transition(StateFilled)
			return m.state
		case status.State == broker.StateCancelled || status.State == broker.StateRejected:
			// Cancelled outside our own timeout path (broker side).
			m.commitBuyIfAny(status.AvgFillPrice)
			m.transition(StateCancelled)
			return m.state
		case time.Now().After(deadline):
			next, terminal := m.handleTimeout(ctx)
			if terminal {
				return m.state
			}
			deadline = next
		}
	}
}

func (m *Monitor) window() time.Duration {
	if m.params.Side == "buy" {
		return m.cfg.BuyTimeout
	}
	return m.cfg.SellTimeout
}

func (m *Monitor) pollStatus(ctx context.Context) (broker.OrderStatus, error) {
	var status broker.OrderStatus
	err := broker.Retry(ctx, m.cfg.Retry, func() error {
		var err error
		status, err = m.broker.GetOrderStatus(ctx, m.orderID)
		return err
	})
	return status, err
}

// observeFills folds a status into the monitor's fill accounting. Sell fills
// are committed to the sink the moment they are observed; buy fills are
// committed only at terminal disposition.
func (m *Monitor) observeFills(status broker.OrderStatus) {
	if status.FilledQty <= m.orderFilled {
		if status.AvgFillPrice > 0 {
			m.lastAvg = status.AvgFillPrice
		}
		return
	}
	grown := status.FilledQty - m.orderFilled

	// The broker reports a cumulative average, so a later partial's own
	// price must be backed out of it. Committing deltas at their
	// incremental price keeps summed proceeds equal to actual proceeds.
	price := status.AvgFillPrice
	if price > 0 && m.orderFilled > 0 && m.orderAvg > 0 {
		price = (status.AvgFillPrice*status.FilledQty - m.orderAvg*m.orderFilled) / grown
	}
	if price <= 0 {
		price = m.lastAvg
		if price <= 0 {
			price = m.params.LimitPrice
		}
	}
	if status.AvgFillPrice > 0 {
		m.orderAvg = status.AvgFillPrice
		m.lastAvg = status.AvgFillPrice
	}

	delta := grown
	// Never exceed the original order quantity across re-quotes.
	if m.totalFilled+delta > m.params.Quantity {
		delta = m.params.Quantity - m.totalFilled
	}
	if delta <= 0 {
		return
	}
	m.orderFilled = status.FilledQty
	m.totalFilled += delta
	if m.params.Side == "sell" {
		m.sink.SellFill(m.params.Instrument, delta, price)
	}
	if m.totalFilled < m.params.Quantity {
		m.transition(StatePartiallyFilled)
	}
}

// commitBuyIfAny sends the one buy-side ledger commit for this order.
func (m *Monitor) commitBuyIfAny(avgPrice float64) {
	if m.params.Side != "buy" || m.totalFilled <= 0 {
		return
	}
	m.sink.BuyFill(m.params.Instrument, m.totalFilled, avgPrice)
	// Guard against double commit if both fill and cancel paths run.
	m.totalFilled = 0
}

// handleTimeout cancels the remainder and, for sells with quantity left,
// re-quotes it as a market order under a fresh window. Returns the next
// deadline and whether the monitor reached a terminal state.
func (m *Monitor) handleTimeout(ctx context.Context) (time.Time, bool) {
	if err := m.cancelOrder(ctx); err != nil {
		m.failOrder(ctx, err)
		return time.Time{}, true
	}
	// Final read after cancel: fills may have landed while cancelling.
	if status, err := m.pollStatus(ctx); err == nil {
		m.observeFills(status)
	}

	remaining := m.params.Quantity - m.totalFilled
	if m.params.Side == "buy" {
		// Commit exactly what filled; the cancelled remainder is discarded.
		avg := m.lastKnownAvg(ctx)
		filled := m.totalFilled
		m.commitBuyIfAny(avg)
		if remaining <= 1e-9 {
			m.transition(StateFilled)
		} else {
			observ.Log("monitor_buy_timeout", map[string]any{
				"order_id": m.orderID, "filled": filled, "cancelled": remaining,
			})
			m.transition(StateCancelled)
		}
		return time.Time{}, true
	}

	if remaining <= 1e-9 {
		m.transition(StateFilled)
		return time.Time{}, true
	}
	if m.requotes >= m.cfg.MaxRequotes {
		observ.Log("monitor_requotes_exhausted", map[string]any{
			"order_id": m.orderID, "key": m.params.Instrument.Key(), "unfilled": remaining,
		})
		m.transition(StateCancelled)
		return time.Time{}, true
	}

	// Convert the remainder to a market order and keep monitoring.
	requote := m.params
	requote.Quantity = remaining
	requote.OrderType = signal.Market
	requote.LimitPrice = 0
	requote.ClientOrderID = ""
	var newID string
	err := broker.Retry(ctx, m.cfg.Retry, func() error {
		var err error
		newID, err = m.broker.SubmitOrder(ctx, requote)
		return err
	})
	if err != nil {
		m.failOrder(ctx, err)
		return time.Time{}, true
	}
	observ.Log("monitor_requoted", map[string]any{
		"old_order_id": m.orderID, "new_order_id": newID, "quantity": remaining,
	})
	observ.IncCounter("monitor_requotes", nil)
	m.orderID = newID
	m.orderFilled = 0
	m.orderAvg = 0
	m.requotes++
	m.transition(StateRequoted)
	return time.Now().Add(m.cfg.SellTimeout), false
}

func (m *Monitor) cancelOrder(ctx context.Context) error {
	return broker.Retry(ctx, m.cfg.Retry, func() error {
		return m.broker.CancelOrder(ctx, m.orderID)
	})
}

// lastKnownAvg fetches a final average fill price, falling back to the last
// observed average (then the limit price) when the broker is unreachable.
func (m *Monitor) lastKnownAvg(ctx context.Context) float64 {
	if status, err := m.pollStatus(ctx); err == nil && status.AvgFillPrice > 0 {
		return status.AvgFillPrice
	}
	if m.lastAvg > 0 {
		return m.lastAvg
	}
	return m.params.LimitPrice
}

// failOrder handles persistent broker failure: cancel best-effort, commit
// any buy fills already observed, mark Cancelled-with-error. The process
// keeps running; the failure is fatal only for this order.
func (m *Monitor) failOrder(ctx context.Context, err error) State {
	observ.Error("monitor_broker_failure", err, map[string]any{
		"order_id": m.orderID, "key": m.params.Instrument.Key(), "side": m.params.Side,
	})
	observ.IncCounter("monitor_failures", nil)
	_ = m.broker.CancelOrder(ctx, m.orderID)
	m.commitBuyIfAny(m.lastKnownAvg(ctx))
	m.transition(StateCancelled)
	return m.state
}
