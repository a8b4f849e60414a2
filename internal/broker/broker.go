// Package broker defines the brokerage capability surface the engine
// consumes, plus the paper and HTTP-bridge implementations.
package broker

import (
	"context"

	"alert-trader/internal/signal"
)

// OrderState is the broker-reported lifecycle state of an order.
type OrderState string

const (
	StateWorking         OrderState = "working"
	StatePartiallyFilled OrderState = "partially_filled"
	StateFilled          OrderState = "filled"
	StateCancelled       OrderState = "cancelled"
	StateRejected        OrderState = "rejected"
)

// Terminal reports whether the broker will not change this order further.
func (s OrderState) Terminal() bool {
	return s == StateFilled || s == StateCancelled || s == StateRejected
}

// OrderParams is everything needed to place one order.
type OrderParams struct {
	Instrument    signal.Instrument `json:"instrument"`
	ContractID    string            `json:"contract_id,omitempty"` // resolved option contract
	Side          string            `json:"side"`                  // "buy" | "sell"
	Quantity      float64           `json:"quantity"`
	OrderType     signal.OrderType  `json:"order_type"`
	LimitPrice    float64           `json:"limit_price,omitempty"`
	TIF           string            `json:"tif"`
	ClientOrderID string            `json:"client_order_id,omitempty"`
}

// OrderStatus is a point-in-time view of a working or settled order.
type OrderStatus struct {
	State        OrderState `json:"state"`
	FilledQty    float64    `json:"filled_qty"`
	RemainingQty float64    `json:"remaining_qty"`
	AvgFillPrice float64    `json:"avg_fill_price"`
}

// Holding is one instrument in the broker's positions snapshot, keyed the
// same way the ledger keys instruments.
type Holding struct {
	Key      string  `json:"key"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Client is the brokerage collaborator used by risk, construction,
// monitoring and reconciliation.
type Client interface {
	SubmitOrder(ctx context.Context, params OrderParams) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	GetPositions(ctx context.Context) ([]Holding, error)
	// GetQuote returns a mid-price estimate for the instrument.
	GetQuote(ctx context.Context, inst signal.Instrument) (float64, error)
	// ResolveOptionContract maps an abstract option descriptor to the
	// broker's tradable contract id.
	ResolveOptionContract(ctx context.Context, inst signal.Instrument) (string, error)
}
