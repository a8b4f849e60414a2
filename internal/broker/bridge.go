package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"alert-trader/internal/signal"
)

// BridgeConfig configures the HTTP brokerage gateway client.
type BridgeConfig struct {
	BaseURL            string
	TimeoutMs          int
	RateLimitPerMinute int
	Retry              RetryConfig
}

// Bridge talks to a brokerage gateway over JSON/HTTP. All requests go
// through a rate limiter; transient failures (network errors, 5xx, 429)
// are retried with bounded backoff.
type Bridge struct {
	cfg     BridgeConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 5000
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}
	return &Bridge{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
	}
}

func (b *Bridge) do(ctx context.Context, method, path string, body, out any) error {
	return Retry(ctx, b.cfg.Retry, func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		var rd io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return err
			}
			rd = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, b.cfg.BaseURL+path, rd)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return Transient(fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode))
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, msg)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Transient(fmt.Errorf("decode %s %s: %w", method, path, err))
		}
		return nil
	})
}

func (b *Bridge) SubmitOrder(ctx context.Context, params OrderParams) (string, error) {
	if params.ClientOrderID == "" {
		params.ClientOrderID = uuid.NewString()
	}
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := b.do(ctx, http.MethodPost, "/v1/orders", params, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("gateway returned empty order id")
	}
	return resp.OrderID, nil
}

func (b *Bridge) CancelOrder(ctx context.Context, orderID string) error {
	return b.do(ctx, http.MethodDelete, "/v1/orders/"+url.PathEscape(orderID), nil, nil)
}

func (b *Bridge) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	var st OrderStatus
	err := b.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &st)
	return st, err
}

func (b *Bridge) GetPositions(ctx context.Context) ([]Holding, error) {
	var resp struct {
		Positions []Holding `json:"positions"`
	}
	if err := b.do(ctx, http.MethodGet, "/v1/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

func (b *Bridge) GetQuote(ctx context.Context, inst signal.Instrument) (float64, error) {
	q := url.Values{}
	q.Set("symbol", inst.Symbol)
	q.Set("kind", string(inst.Kind))
	if inst.Kind == signal.Option {
		q.Set("strike", fmt.Sprintf("%g", inst.Strike))
		q.Set("call_put", inst.CallPut)
		q.Set("expiry", inst.ExpiryMMDD)
	}
	var resp struct {
		Mid float64 `json:"mid"`
	}
	if err := b.do(ctx, http.MethodGet, "/v1/quote?"+q.Encode(), nil, &resp); err != nil {
		return 0, err
	}
	if resp.Mid <= 0 {
		return 0, fmt.Errorf("gateway returned non-positive mid for %s", inst.Key())
	}
	return resp.Mid, nil
}

func (b *Bridge) ResolveOptionContract(ctx context.Context, inst signal.Instrument) (string, error) {
	q := url.Values{}
	q.Set("symbol", inst.Symbol)
	q.Set("strike", fmt.Sprintf("%g", inst.Strike))
	q.Set("call_put", inst.CallPut)
	q.Set("expiry", inst.ExpiryMMDD)
	var resp struct {
		ContractID string `json:"contract_id"`
	}
	if err := b.do(ctx, http.MethodGet, "/v1/options/resolve?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if resp.ContractID == "" {
		return "", fmt.Errorf("resolve option %s: %w", inst.Key(), ErrNotFound)
	}
	return resp.ContractID, nil
}

var _ Client = (*Bridge)(nil)
