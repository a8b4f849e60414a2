// Package journal appends orders and fills to a JSONL audit file and answers
// idempotency lookups over a recent window.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type Order struct {
	OrderID        string    `json:"order_id"`
	Key            string    `json:"key"` // instrument key
	Side           string    `json:"side"`
	Quantity       float64   `json:"quantity"`
	OrderType      string    `json:"order_type"`
	LimitPrice     float64   `json:"limit_price,omitempty"`
	TIF            string    `json:"tif,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

type Fill struct {
	OrderID   string    `json:"order_id"`
	Key       string    `json:"key"`
	Side      string    `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type entry struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Event time.Time       `json:"event"`
}

type Journal struct {
	path         string
	dedupeWindow time.Duration
}

func New(path string, dedupeWindow time.Duration) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &Journal{path: path, dedupeWindow: dedupeWindow}, nil
}

func (j *Journal) WriteOrder(o Order) error { return j.append("order", o) }
func (j *Journal) WriteFill(f Fill) error   { return j.append("fill", f) }

func (j *Journal) append(kind string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	line, err := json.Marshal(entry{Type: kind, Data: raw, Event: time.Now().UTC()})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// HasRecent reports whether an order with the same idempotency key was
// journaled inside the dedupe window. A broken line never fails the scan.
func (j *Journal) HasRecent(idempotencyKey string) (bool, error) {
	if idempotencyKey == "" || j.dedupeWindow <= 0 {
		return false, nil
	}
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	cutoff := time.Now().UTC().Add(-j.dedupeWindow)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Type != "order" || e.Event.Before(cutoff) {
			continue
		}
		var o Order
		if err := json.Unmarshal(e.Data, &o); err != nil {
			continue
		}
		if o.IdempotencyKey == idempotencyKey {
			return true, nil
		}
	}
	return false, sc.Err()
}
