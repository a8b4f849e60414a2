package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Chat struct {
	GatewayURL   string   `yaml:"gateway_url"`
	ChannelIDs   []string `yaml:"channel_ids"`
	TrackedUsers []string `yaml:"tracked_users"`
}

type Bridge struct {
	BaseURL            string `yaml:"base_url"`
	TimeoutMs          int    `yaml:"timeout_ms"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	MaxRetries         int    `yaml:"max_retries"`
	BackoffBaseMs      int    `yaml:"backoff_base_ms"`
	BackoffMaxMs       int    `yaml:"backoff_max_ms"`
}

type Paper struct {
	FillLatencyMs int     `yaml:"fill_latency_ms"`
	StepFraction  float64 `yaml:"step_fraction"`
}

type Broker struct {
	Mode        string `yaml:"mode"`        // "paper" | "bridge"
	Environment string `yaml:"environment"` // "paper" | "live" (bridge only)
	Bridge      Bridge `yaml:"bridge"`
	Paper       Paper  `yaml:"paper"`
}

type Risk struct {
	MaxOrderNotional float64 `yaml:"max_order_notional"`
}

type Exec struct {
	DryRun          bool    `yaml:"dry_run"`
	TIF             string  `yaml:"tif"` // "DAY" | "GTC"
	BuyMode         string  `yaml:"buy_mode"`
	SellMode        string  `yaml:"sell_mode"`
	BuySlippagePct  float64 `yaml:"buy_slippage_pct"`
	SellSlippagePct float64 `yaml:"sell_slippage_pct"`
	BuyTimeoutSec   int     `yaml:"buy_timeout_sec"`
	SellTimeoutSec  int     `yaml:"sell_timeout_sec"`
	PollIntervalMs  int     `yaml:"poll_interval_ms"`
	MaxRequotes     int     `yaml:"max_requotes"`
}

type State struct {
	Path                 string `yaml:"path"`
	FlushIntervalSec     int    `yaml:"flush_interval_sec"`
	ReconcileIntervalSec int    `yaml:"reconcile_interval_sec"`
}

type Journal struct {
	Path             string `yaml:"path"`
	DedupeWindowSecs int    `yaml:"dedupe_window_seconds"`
}

type Root struct {
	Chat        Chat    `yaml:"chat"`
	Broker      Broker  `yaml:"broker"`
	Risk        Risk    `yaml:"risk"`
	Exec        Exec    `yaml:"exec"`
	State       State   `yaml:"state"`
	Journal     Journal `yaml:"journal"`
	MetricsAddr string  `yaml:"metrics_addr"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}

	if c.Broker.Mode == "" {
		c.Broker.Mode = "paper"
	}
	if c.Broker.Mode != "paper" && c.Broker.Mode != "bridge" {
		return c, fmt.Errorf("broker.mode must be paper or bridge, got %q", c.Broker.Mode)
	}
	if c.Broker.Environment == "" {
		c.Broker.Environment = "paper"
	}
	if c.Broker.Bridge.BaseURL == "" {
		c.Broker.Bridge.BaseURL = "http://localhost:8091"
	}
	if c.Broker.Bridge.TimeoutMs == 0 {
		c.Broker.Bridge.TimeoutMs = 5000
	}
	if c.Broker.Bridge.RateLimitPerMinute == 0 {
		c.Broker.Bridge.RateLimitPerMinute = 120
	}
	if c.Broker.Bridge.MaxRetries == 0 {
		c.Broker.Bridge.MaxRetries = 3
	}
	if c.Broker.Bridge.BackoffBaseMs == 0 {
		c.Broker.Bridge.BackoffBaseMs = 100
	}
	if c.Broker.Bridge.BackoffMaxMs == 0 {
		c.Broker.Bridge.BackoffMaxMs = 5000
	}
	if c.Broker.Paper.FillLatencyMs == 0 {
		c.Broker.Paper.FillLatencyMs = 150
	}
	if c.Broker.Paper.StepFraction == 0 {
		c.Broker.Paper.StepFraction = 0.5
	}

	if c.Risk.MaxOrderNotional == 0 {
		c.Risk.MaxOrderNotional = 5000
	}

	if c.Exec.TIF == "" {
		c.Exec.TIF = "DAY"
	}
	if c.Exec.BuyMode == "" {
		c.Exec.BuyMode = "LIMIT"
	}
	if c.Exec.SellMode == "" {
		c.Exec.SellMode = "LIMIT"
	}
	if c.Exec.BuyTimeoutSec == 0 {
		c.Exec.BuyTimeoutSec = 30
	}
	if c.Exec.SellTimeoutSec == 0 {
		c.Exec.SellTimeoutSec = 30
	}
	if c.Exec.PollIntervalMs == 0 {
		c.Exec.PollIntervalMs = 800
	}
	if c.Exec.MaxRequotes == 0 {
		c.Exec.MaxRequotes = 3
	}

	if c.State.Path == "" {
		c.State.Path = "data/ledger.json"
	}
	if c.State.FlushIntervalSec == 0 {
		c.State.FlushIntervalSec = 30
	}
	if c.State.ReconcileIntervalSec == 0 {
		c.State.ReconcileIntervalSec = 60
	}

	if c.Journal.Path == "" {
		c.Journal.Path = "data/journal.jsonl"
	}
	if c.Journal.DedupeWindowSecs == 0 {
		c.Journal.DedupeWindowSecs = 90
	}

	return c, nil
}
