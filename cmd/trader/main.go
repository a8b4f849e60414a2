package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alert-trader/internal/broker"
	"alert-trader/internal/chat"
	"alert-trader/internal/config"
	"alert-trader/internal/engine"
	"alert-trader/internal/exec"
	"alert-trader/internal/journal"
	"alert-trader/internal/ledger"
	"alert-trader/internal/observ"
	"alert-trader/internal/risk"
)

func main() {
	log.SetFlags(0)
	configPath := flag.String("config", "config/config.yaml", "path to YAML config")
	dryRun := flag.Bool("dry-run", false, "log decisions without submitting orders")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dryRun {
		cfg.Exec.DryRun = true
	}

	observ.Log("startup", map[string]any{
		"broker_mode": cfg.Broker.Mode,
		"environment": cfg.Broker.Environment,
		"dry_run":     cfg.Exec.DryRun,
		"state_path":  cfg.State.Path,
	})

	jnl, err := journal.New(cfg.Journal.Path, time.Duration(cfg.Journal.DedupeWindowSecs)*time.Second)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}

	var bk broker.Client
	switch cfg.Broker.Mode {
	case "paper":
		bk = broker.NewPaper(broker.PaperConfig{
			FillLatency:  time.Duration(cfg.Broker.Paper.FillLatencyMs) * time.Millisecond,
			StepFraction: cfg.Broker.Paper.StepFraction,
		}, jnl)
	case "bridge":
		bk = broker.NewBridge(broker.BridgeConfig{
			BaseURL:            cfg.Broker.Bridge.BaseURL,
			TimeoutMs:          cfg.Broker.Bridge.TimeoutMs,
			RateLimitPerMinute: cfg.Broker.Bridge.RateLimitPerMinute,
			Retry: broker.RetryConfig{
				MaxAttempts: cfg.Broker.Bridge.MaxRetries,
				BackoffBase: time.Duration(cfg.Broker.Bridge.BackoffBaseMs) * time.Millisecond,
				BackoffMax:  time.Duration(cfg.Broker.Bridge.BackoffMaxMs) * time.Millisecond,
			},
		})
	}

	store := ledger.NewStore(cfg.State.Path)
	led, err := store.Load()
	if err != nil {
		log.Fatalf("ledger state: %v", err)
	}

	engCfg := engine.Config{
		DryRun: cfg.Exec.DryRun,
		Policy: exec.Policy{
			BuyMode:         exec.ParseMode(cfg.Exec.BuyMode),
			SellMode:        exec.ParseMode(cfg.Exec.SellMode),
			BuySlippagePct:  cfg.Exec.BuySlippagePct,
			SellSlippagePct: cfg.Exec.SellSlippagePct,
			TIF:             cfg.Exec.TIF,
		},
		Monitor: exec.MonitorConfig{
			PollInterval: time.Duration(cfg.Exec.PollIntervalMs) * time.Millisecond,
			BuyTimeout:   time.Duration(cfg.Exec.BuyTimeoutSec) * time.Second,
			SellTimeout:  time.Duration(cfg.Exec.SellTimeoutSec) * time.Second,
			MaxRequotes:  cfg.Exec.MaxRequotes,
		},
		ReconcileInterval: time.Duration(cfg.State.ReconcileIntervalSec) * time.Second,
		FlushInterval:     time.Duration(cfg.State.FlushIntervalSec) * time.Second,
	}
	eng := engine.New(engCfg, bk, store, led, risk.NewEvaluator(cfg.Risk.MaxOrderNotional), jnl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, observ.Handler()); err != nil {
				observ.Error("metrics_server", err, nil)
			}
		}()
	}

	var events <-chan chat.Event
	if cfg.Chat.GatewayURL != "" {
		gw := chat.NewGateway(chat.GatewayConfig{
			URL:          cfg.Chat.GatewayURL,
			Token:        os.Getenv("CHAT_GATEWAY_TOKEN"),
			ChannelIDs:   cfg.Chat.ChannelIDs,
			TrackedUsers: cfg.Chat.TrackedUsers,
		})
		events, err = gw.Events(ctx)
		if err != nil {
			log.Fatalf("chat gateway: %v", err)
		}
	} else {
		// No gateway configured: take alerts line by line on stdin.
		events = stdinEvents(ctx)
	}

	if err := eng.Run(ctx, events); err != nil {
		log.Fatalf("engine: %v", err)
	}
	observ.Log("shutdown", nil)
}

func stdinEvents(ctx context.Context) <-chan chat.Event {
	out := make(chan chat.Event, 64)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case out <- chat.Event{Author: "stdin", Text: sc.Text()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
