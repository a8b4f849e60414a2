package chat

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"alert-trader/internal/observ"
)

// GatewayConfig configures the websocket chat gateway client.
type GatewayConfig struct {
	URL          string
	Token        string
	ChannelIDs   []string
	TrackedUsers []string
	BufferSize   int
}

// Gateway is a Discord-gateway-style websocket source: it identifies with a
// user token, answers heartbeats, and forwards MESSAGE_CREATE dispatches that
// pass the channel and author filters.
type Gateway struct {
	cfg GatewayConfig
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	return &Gateway{cfg: cfg}
}

type gatewayFrame struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	S  *int64          `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

const (
	opDispatch  = 0
	opHeartbeat = 1
	opIdentify  = 2
	opHello     = 10
)

type helloPayload struct {
	HeartbeatIntervalMs int `json:"heartbeat_interval"`
}

type messagePayload struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		Username string `json:"username"`
	} `json:"author"`
}

// Events connects and returns the filtered event stream. The connection is
// re-established with backoff until ctx is cancelled; the channel closes on
// cancellation.
func (g *Gateway) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event, g.cfg.BufferSize)
	go func() {
		defer close(out)
		backoff := time.Second
		for {
			if err := g.runConn(ctx, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				observ.Error("chat_gateway_disconnected", err, nil)
				observ.IncCounter("chat_gateway_reconnects", nil)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
	return out, nil
}

func (g *Gateway) runConn(ctx context.Context, out chan<- Event) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// gorilla connections allow one concurrent writer; the heartbeat
	// goroutine and the read loop share this guard.
	var writeMu sync.Mutex
	writeFrame := func(f gatewayFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(f)
	}

	var heartbeatStarted bool
	var seq atomic.Int64

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame gatewayFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.S != nil {
			seq.Store(*frame.S)
		}
		switch frame.Op {
		case opHello:
			var hello helloPayload
			if err := json.Unmarshal(frame.D, &hello); err != nil {
				return err
			}
			interval := time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond
			if interval <= 0 {
				interval = 30 * time.Second
			}
			if !heartbeatStarted {
				heartbeatStarted = true
				go func() {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for {
						select {
						case <-done:
							return
						case <-ticker.C:
							s := seq.Load()
							if err := writeFrame(gatewayFrame{Op: opHeartbeat, S: &s}); err != nil {
								conn.Close()
								return
							}
						}
					}
				}()
			}
			identify := map[string]any{
				"token": g.cfg.Token,
				"properties": map[string]string{
					"os": "linux", "browser": "alert-trader", "device": "alert-trader",
				},
			}
			d, _ := json.Marshal(identify)
			if err := writeFrame(gatewayFrame{Op: opIdentify, D: d}); err != nil {
				return err
			}
			observ.Log("chat_gateway_connected", nil)
		case opDispatch:
			if frame.T != "MESSAGE_CREATE" {
				continue
			}
			var msg messagePayload
			if err := json.Unmarshal(frame.D, &msg); err != nil {
				continue
			}
			if !g.channelTracked(msg.ChannelID) {
				continue
			}
			if !MatchAuthor(msg.Author.Username, g.cfg.TrackedUsers) {
				continue
			}
			select {
			case out <- Event{Author: msg.Author.Username, Text: msg.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (g *Gateway) channelTracked(id string) bool {
	for _, c := range g.cfg.ChannelIDs {
		if c == id {
			return true
		}
	}
	return false
}
