// Package engine is the concurrency core: one owner goroutine runs signal
// ingestion, ledger mutation, reconciliation and flushing. Lifecycle
// monitors run on their own goroutines but never touch the ledger. They
// send ops into the owner loop, so ledger access needs no locks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alert-trader/internal/broker"
	"alert-trader/internal/chat"
	"alert-trader/internal/exec"
	"alert-trader/internal/journal"
	"alert-trader/internal/ledger"
	"alert-trader/internal/observ"
	"alert-trader/internal/risk"
	"alert-trader/internal/signal"
)

// Config carries the engine's execution policy and timers.
type Config struct {
	DryRun            bool
	Policy            exec.Policy
	Monitor           exec.MonitorConfig
	SubmitRetry       broker.RetryConfig
	ReconcileInterval time.Duration
	FlushInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Minute
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	return c
}

// Engine wires the normalizer, risk gate, constructor, monitors and ledger
// together around a single select loop.
type Engine struct {
	cfg    Config
	broker broker.Client
	store  *ledger.Store
	ledger *ledger.Ledger
	risk   *risk.Evaluator
	jnl    *journal.Journal // optional

	ops chan func(*ledger.Ledger)
}

func New(cfg Config, b broker.Client, store *ledger.Store, led *ledger.Ledger, ev *risk.Evaluator, jnl *journal.Journal) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		broker: b,
		store:  store,
		ledger: led,
		risk:   ev,
		jnl:    jnl,
		ops:    make(chan func(*ledger.Ledger), 4096),
	}
}

// Run processes events until ctx is cancelled or the events channel closes.
// Only storage failures return an error; everything else is contained at
// signal or order scope. In-flight monitors are abandoned on return.
func (e *Engine) Run(ctx context.Context, events <-chan chat.Event) error {
	// Initial holdings sync so STC gating and PnL start from the broker's
	// authoritative view.
	e.reconcile(ctx)
	if e.ledger.Dirty() {
		if err := e.store.Save(e.ledger); err != nil {
			return fmt.Errorf("initial ledger flush: %w", err)
		}
	}

	reconcileTicker := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconcileTicker.Stop()
	flushTicker := time.NewTicker(e.cfg.FlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.finalFlush()
		case ev, ok := <-events:
			if !ok {
				return e.finalFlush()
			}
			e.handleEvent(ctx, ev)
		case op := <-e.ops:
			op(e.ledger)
		case <-reconcileTicker.C:
			e.reconcile(ctx)
		case <-flushTicker.C:
			if e.ledger.Dirty() {
				if err := e.store.Save(e.ledger); err != nil {
					return fmt.Errorf("ledger flush: %w", err)
				}
			}
		}
	}
}

// finalFlush is the best-effort shutdown persist. It drains any ops already
// queued by monitors before writing.
func (e *Engine) finalFlush() error {
	for {
		select {
		case op := <-e.ops:
			op(e.ledger)
			continue
		default:
		}
		break
	}
	if !e.ledger.Dirty() {
		return nil
	}
	if err := e.store.Save(e.ledger); err != nil {
		return fmt.Errorf("shutdown ledger flush: %w", err)
	}
	return nil
}

// handleEvent runs one signal through the parse, risk, construct and submit
// stages and schedules its monitor. Failures here are terminal for the
// signal and never propagate.
func (e *Engine) handleEvent(ctx context.Context, ev chat.Event) {
	sig, err := signal.Parse(ev.Text)
	if err != nil {
		observ.Log("signal_parse_failed", map[string]any{"author": ev.Author, "text": ev.Text})
		observ.IncCounter("signals", map[string]string{"outcome": "parse_failure"})
		return
	}
	observ.Log("signal_received", map[string]any{"author": ev.Author, "signal": sig.String()})

	key := sig.Instrument.Key()
	est := sig.LimitPrice
	if sig.OrderType != signal.Limit {
		est, err = e.broker.GetQuote(ctx, sig.Instrument)
		if err != nil {
			observ.Error("signal_quote_failed", err, map[string]any{"key": key})
			observ.IncCounter("signals", map[string]string{"outcome": "quote_failure"})
			return
		}
	}

	if err := e.risk.Check(sig, est, e.ledger.Quantity(key)); err != nil {
		observ.Error("signal_risk_rejected", err, map[string]any{"key": key})
		observ.IncCounter("signals", map[string]string{"outcome": "risk_rejected"})
		return
	}

	if e.cfg.DryRun {
		observ.Log("dry_run_execution", map[string]any{
			"key": key, "side": sig.Side(), "quantity": sig.Quantity, "est_price": est,
		})
		observ.IncCounter("signals", map[string]string{"outcome": "dry_run"})
		return
	}

	if e.jnl != nil {
		idem := fmt.Sprintf("%s|%s|%g", sig.Action, key, sig.Quantity)
		if seen, err := e.jnl.HasRecent(idem); err == nil && seen {
			observ.Log("signal_deduped", map[string]any{"key": key, "idempotency_key": idem})
			observ.IncCounter("signals", map[string]string{"outcome": "deduped"})
			return
		}
	}

	params, err := exec.Construct(ctx, e.broker, e.cfg.Policy, sig, est)
	if err != nil {
		var cre *exec.ContractResolutionError
		outcome := "construct_failure"
		if errors.As(err, &cre) {
			outcome = "contract_resolution_failure"
		}
		observ.Error("order_construct_failed", err, map[string]any{"key": key})
		observ.IncCounter("signals", map[string]string{"outcome": outcome})
		return
	}

	var orderID string
	err = broker.Retry(ctx, e.cfg.SubmitRetry, func() error {
		var err error
		orderID, err = e.broker.SubmitOrder(ctx, params)
		return err
	})
	if err != nil {
		observ.Error("order_submit_failed", err, map[string]any{"key": key})
		observ.IncCounter("signals", map[string]string{"outcome": "submit_failure"})
		return
	}
	observ.Log("order_submitted", map[string]any{
		"order_id": orderID, "key": key, "side": params.Side,
		"quantity": params.Quantity, "order_type": string(params.OrderType),
		"limit_price": params.LimitPrice,
	})
	observ.IncCounter("signals", map[string]string{"outcome": "submitted"})

	if e.jnl != nil {
		_ = e.jnl.WriteOrder(journal.Order{
			OrderID:        orderID,
			Key:            key,
			Side:           params.Side,
			Quantity:       params.Quantity,
			OrderType:      string(params.OrderType),
			LimitPrice:     params.LimitPrice,
			TIF:            params.TIF,
			Timestamp:      time.Now().UTC(),
			IdempotencyKey: fmt.Sprintf("%s|%s|%g", sig.Action, key, sig.Quantity),
		})
	}

	// Schedule the monitor and resume ingestion immediately.
	mon := exec.NewMonitor(e.cfg.Monitor, e.broker, e, params, orderID)
	go mon.Run(ctx)
}

func (e *Engine) reconcile(ctx context.Context) {
	var holdings []broker.Holding
	err := broker.Retry(ctx, e.cfg.SubmitRetry, func() error {
		var err error
		holdings, err = e.broker.GetPositions(ctx)
		return err
	})
	if err != nil {
		observ.Error("reconcile_failed", err, nil)
		observ.IncCounter("reconciliations", map[string]string{"outcome": "error"})
		return
	}
	e.ledger.Reconcile(holdings)
	observ.Log("reconcile_applied", map[string]any{"holdings": len(holdings)})
	observ.IncCounter("reconciliations", map[string]string{"outcome": "ok"})
}

// BuyFill implements exec.Sink by funneling the mutation into the owner loop.
func (e *Engine) BuyFill(inst signal.Instrument, qty, price float64) {
	e.ops <- func(l *ledger.Ledger) {
		l.ApplyBuyFill(inst, qty, price)
		e.journalFill(inst, "buy", qty, price)
	}
}

// SellFill implements exec.Sink. Realized PnL is computed against the
// position's average cost at the moment the op is applied.
func (e *Engine) SellFill(inst signal.Instrument, qty, price float64) {
	e.ops <- func(l *ledger.Ledger) {
		_, _ = l.ApplySellFill(inst, qty, price, time.Now().UTC())
		e.journalFill(inst, "sell", qty, price)
	}
}

func (e *Engine) journalFill(inst signal.Instrument, side string, qty, price float64) {
	if e.jnl == nil {
		return
	}
	_ = e.jnl.WriteFill(journal.Fill{
		Key: inst.Key(), Side: side, Quantity: qty, Price: price, Timestamp: time.Now().UTC(),
	})
}

var _ exec.Sink = (*Engine)(nil)
