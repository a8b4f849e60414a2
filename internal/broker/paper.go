package broker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alert-trader/internal/journal"
	"alert-trader/internal/observ"
	"alert-trader/internal/signal"
)

// PaperConfig tunes the simulated broker.
type PaperConfig struct {
	FillLatency  time.Duration // delay before an order starts filling
	StepFraction float64       // share of the remainder filled per status poll
	Seed         int64         // 0 means time-seeded
}

func (c PaperConfig) withDefaults() PaperConfig {
	if c.FillLatency <= 0 {
		c.FillLatency = 150 * time.Millisecond
	}
	if c.StepFraction <= 0 || c.StepFraction > 1 {
		c.StepFraction = 0.5
	}
	return c
}

// Paper is an in-process broker: random-walk quotes around per-symbol bases,
// latency before fills, progressive partial fills for marketable orders, and
// a positions book maintained from its own fills so reconciliation has
// something real to pull.
type Paper struct {
	mu        sync.Mutex
	cfg       PaperConfig
	bases     map[string]float64
	orders    map[string]*paperOrder
	positions map[string]*Holding
	random    *rand.Rand
	journal   *journal.Journal // optional
}

type paperOrder struct {
	params   OrderParams
	placedAt time.Time
	state    OrderState
	filled   float64
	avgPrice float64
}

// NewPaper creates a paper broker. jnl may be nil.
func NewPaper(cfg PaperConfig, jnl *journal.Journal) *Paper {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Paper{
		cfg: cfg,
		bases: map[string]float64{
			"AAPL": 206.80,
			"NVDA": 450.00,
			"MSFT": 415.75,
			"TSLA": 248.30,
			"SPY":  520.10,
		},
		orders:    map[string]*paperOrder{},
		positions: map[string]*Holding{},
		random:    rand.New(rand.NewSource(seed)),
		journal:   jnl,
	}
}

// SetBasePrice pins a symbol's base price, mainly for tests and replay.
func (p *Paper) SetBasePrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bases[strings.ToUpper(symbol)] = price
}

func (p *Paper) SubmitOrder(ctx context.Context, params OrderParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if params.Quantity <= 0 {
		return "", fmt.Errorf("quantity must be positive, got %g", params.Quantity)
	}
	if params.OrderType == signal.Limit && params.LimitPrice <= 0 {
		return "", fmt.Errorf("limit order without a limit price")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	p.orders[id] = &paperOrder{
		params:   params,
		placedAt: time.Now(),
		state:    StateWorking,
	}
	if p.journal != nil {
		_ = p.journal.WriteOrder(journal.Order{
			OrderID:    id,
			Key:        params.Instrument.Key(),
			Side:       params.Side,
			Quantity:   params.Quantity,
			OrderType:  string(params.OrderType),
			LimitPrice: params.LimitPrice,
			TIF:        params.TIF,
			Timestamp:  time.Now().UTC(),
		})
	}
	return id, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %s: %w", orderID, ErrNotFound)
	}
	if !o.state.Terminal() {
		o.state = StateCancelled
	}
	return nil
}

func (p *Paper) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return OrderStatus{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return OrderStatus{}, fmt.Errorf("status %s: %w", orderID, ErrNotFound)
	}
	p.advanceLocked(orderID, o)
	return OrderStatus{
		State:        o.state,
		FilledQty:    o.filled,
		RemainingQty: o.params.Quantity - o.filled,
		AvgFillPrice: o.avgPrice,
	}, nil
}

// advanceLocked moves a working order toward filled, one step per poll.
func (p *Paper) advanceLocked(id string, o *paperOrder) {
	if o.state.Terminal() || time.Since(o.placedAt) < p.cfg.FillLatency {
		return
	}
	mid := p.midLocked(o.params.Instrument)
	var fillPx float64
	switch o.params.OrderType {
	case signal.Market:
		// Tiny slippage against the taker.
		slip := 1 + (p.random.Float64()*0.001-0.0005)
		if o.params.Side == "buy" {
			fillPx = mid * (slip + 0.0005)
		} else {
			fillPx = mid * (slip - 0.0005)
		}
	case signal.Limit:
		marketable := (o.params.Side == "buy" && o.params.LimitPrice >= mid) ||
			(o.params.Side == "sell" && o.params.LimitPrice <= mid)
		if !marketable {
			return
		}
		fillPx = o.params.LimitPrice
	default:
		return
	}

	remaining := o.params.Quantity - o.filled
	step := remaining * p.cfg.StepFraction
	if o.params.OrderType == signal.Market || step >= remaining-1e-9 || remaining <= o.params.Quantity*0.1 {
		step = remaining
	}
	o.avgPrice = (o.avgPrice*o.filled + fillPx*step) / (o.filled + step)
	o.filled += step
	if o.params.Quantity-o.filled <= 1e-9 {
		o.filled = o.params.Quantity
		o.state = StateFilled
	} else {
		o.state = StatePartiallyFilled
	}
	p.applyFillLocked(o.params, step, fillPx)
	if p.journal != nil {
		_ = p.journal.WriteFill(journal.Fill{
			OrderID:   id,
			Key:       o.params.Instrument.Key(),
			Side:      o.params.Side,
			Quantity:  step,
			Price:     fillPx,
			Timestamp: time.Now().UTC(),
		})
	}
	observ.IncCounter("paper_fills", map[string]string{"side": o.params.Side})
}

// applyFillLocked keeps the broker-side positions book in sync with fills.
func (p *Paper) applyFillLocked(params OrderParams, qty, price float64) {
	key := params.Instrument.Key()
	h, ok := p.positions[key]
	if !ok {
		h = &Holding{Key: key}
		p.positions[key] = h
	}
	if params.Side == "buy" {
		total := h.AvgCost*h.Quantity + price*qty
		h.Quantity += qty
		h.AvgCost = total / h.Quantity
		return
	}
	h.Quantity -= qty
	if h.Quantity <= 1e-9 {
		delete(p.positions, key)
	}
}

func (p *Paper) GetPositions(ctx context.Context) ([]Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Holding, 0, len(p.positions))
	for _, h := range p.positions {
		out = append(out, *h)
	}
	return out, nil
}

func (p *Paper) GetQuote(ctx context.Context, inst signal.Instrument) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.midLocked(inst), nil
}

func (p *Paper) midLocked(inst signal.Instrument) float64 {
	base, ok := p.bases[inst.Symbol]
	if !ok {
		base = 100
		p.bases[inst.Symbol] = base
	}
	// Random walk, ±0.2% per observation.
	base *= 1 + (p.random.Float64()*0.004 - 0.002)
	p.bases[inst.Symbol] = base
	if inst.Kind == signal.Option {
		// Premium approximation: 3% of underlying, floored.
		prem := base * 0.03
		if prem < 0.05 {
			prem = 0.05
		}
		return prem
	}
	return base
}

func (p *Paper) ResolveOptionContract(ctx context.Context, inst signal.Instrument) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if inst.Kind != signal.Option || inst.Strike <= 0 || inst.CallPut == "" || inst.ExpiryMMDD == "" {
		return "", fmt.Errorf("resolve option %q: %w", inst.Key(), ErrNotFound)
	}
	return fmt.Sprintf("OCC:%s-%s-%g%s", inst.Symbol, strings.ReplaceAll(inst.ExpiryMMDD, "/", ""), inst.Strike, inst.CallPut), nil
}

var _ Client = (*Paper)(nil)
