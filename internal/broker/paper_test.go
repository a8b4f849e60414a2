package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-trader/internal/signal"
)

func aapl() signal.Instrument {
	return signal.Instrument{Kind: signal.Equity, Symbol: "AAPL"}
}

func newTestPaper() *Paper {
	return NewPaper(PaperConfig{FillLatency: time.Millisecond, StepFraction: 0.5, Seed: 42}, nil)
}

func TestPaperMarketOrderFillsFully(t *testing.T) {
	ctx := context.Background()
	p := newTestPaper()
	p.SetBasePrice("AAPL", 200)

	id, err := p.SubmitOrder(ctx, OrderParams{
		Instrument: aapl(), Side: "buy", Quantity: 10, OrderType: signal.Market, TIF: "DAY",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	st, err := p.GetOrderStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFilled, st.State)
	assert.Equal(t, 10.0, st.FilledQty)
	assert.Zero(t, st.RemainingQty)
	assert.InDelta(t, 200, st.AvgFillPrice, 5)

	holdings, err := p.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Key)
	assert.Equal(t, 10.0, holdings[0].Quantity)
}

func TestPaperLimitOrderNotMarketableStaysWorking(t *testing.T) {
	ctx := context.Background()
	p := newTestPaper()
	p.SetBasePrice("AAPL", 200)

	id, err := p.SubmitOrder(ctx, OrderParams{
		Instrument: aapl(), Side: "buy", Quantity: 10,
		OrderType: signal.Limit, LimitPrice: 100, TIF: "DAY",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	st, err := p.GetOrderStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateWorking, st.State)
	assert.Zero(t, st.FilledQty)
}

func TestPaperMarketableLimitFillsInSteps(t *testing.T) {
	ctx := context.Background()
	p := newTestPaper()
	p.SetBasePrice("AAPL", 200)

	id, err := p.SubmitOrder(ctx, OrderParams{
		Instrument: aapl(), Side: "buy", Quantity: 100,
		OrderType: signal.Limit, LimitPrice: 500, TIF: "DAY",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	st, err := p.GetOrderStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyFilled, st.State)
	assert.Equal(t, 50.0, st.FilledQty)
	assert.Equal(t, 500.0, st.AvgFillPrice)

	// Each further poll fills half the remainder until the tail fills whole.
	for i := 0; i < 10; i++ {
		st, err = p.GetOrderStatus(ctx, id)
		require.NoError(t, err)
		if st.State == StateFilled {
			break
		}
	}
	assert.Equal(t, StateFilled, st.State)
	assert.Equal(t, 100.0, st.FilledQty)
}

func TestPaperCancelStopsFilling(t *testing.T) {
	ctx := context.Background()
	p := newTestPaper()
	p.SetBasePrice("AAPL", 200)

	id, err := p.SubmitOrder(ctx, OrderParams{
		Instrument: aapl(), Side: "buy", Quantity: 100,
		OrderType: signal.Limit, LimitPrice: 500, TIF: "DAY",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = p.GetOrderStatus(ctx, id) // one partial step
	require.NoError(t, err)
	require.NoError(t, p.CancelOrder(ctx, id))

	st, err := p.GetOrderStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, st.State)
	assert.Equal(t, 50.0, st.FilledQty)
}

func TestPaperSellReducesPositions(t *testing.T) {
	ctx := context.Background()
	p := newTestPaper()
	p.SetBasePrice("AAPL", 200)

	buy, err := p.SubmitOrder(ctx, OrderParams{Instrument: aapl(), Side: "buy", Quantity: 10, OrderType: signal.Market})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = p.GetOrderStatus(ctx, buy)
	require.NoError(t, err)

	sell, err := p.SubmitOrder(ctx, OrderParams{Instrument: aapl(), Side: "sell", Quantity: 10, OrderType: signal.Market})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	st, err := p.GetOrderStatus(ctx, sell)
	require.NoError(t, err)
	require.Equal(t, StateFilled, st.State)

	holdings, err := p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestPaperResolveOptionContract(t *testing.T) {
	ctx := context.Background()
	p := newTestPaper()

	opt := signal.Instrument{Kind: signal.Option, Symbol: "AAPL", Strike: 150, CallPut: "C", ExpiryMMDD: "08/16"}
	id, err := p.ResolveOptionContract(ctx, opt)
	require.NoError(t, err)
	assert.Equal(t, "OCC:AAPL-0816-150C", id)

	_, err = p.ResolveOptionContract(ctx, aapl())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaperRejectsBadOrders(t *testing.T) {
	ctx := context.Background()
	p := newTestPaper()
	_, err := p.SubmitOrder(ctx, OrderParams{Instrument: aapl(), Side: "buy", Quantity: 0, OrderType: signal.Market})
	assert.Error(t, err)
	_, err = p.SubmitOrder(ctx, OrderParams{Instrument: aapl(), Side: "buy", Quantity: 1, OrderType: signal.Limit})
	assert.Error(t, err)
}

func TestRetryStopsOnFatal(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, BackoffBase: time.Millisecond}, func() error {
		calls++
		return assert.AnError
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRetryRetriesTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return Transient(assert.AnError)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, func() error {
		calls++
		return Transient(assert.AnError)
	})
	assert.Equal(t, 3, calls)
	assert.True(t, IsTransient(err))
}
