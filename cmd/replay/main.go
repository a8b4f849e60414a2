// Replay runs recorded alert lines through the parse, risk and construct
// stages without submitting anything. Useful for vetting a channel's
// message history against the current config before going live.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"alert-trader/internal/broker"
	"alert-trader/internal/config"
	"alert-trader/internal/exec"
	"alert-trader/internal/ledger"
	"alert-trader/internal/risk"
	"alert-trader/internal/signal"
)

type decision struct {
	Text     string              `json:"text"`
	Signal   string              `json:"signal,omitempty"`
	Outcome  string              `json:"outcome"`
	Reason   string              `json:"reason,omitempty"`
	EstPrice float64             `json:"est_price,omitempty"`
	Order    *broker.OrderParams `json:"order,omitempty"`
}

func main() {
	log.SetFlags(0)
	configPath := flag.String("config", "config/config.yaml", "path to YAML config")
	alertsPath := flag.String("alerts", "fixtures/alerts.txt", "file of alert lines, one per line")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	f, err := os.Open(*alertsPath)
	if err != nil {
		log.Fatalf("open alerts: %v", err)
	}
	defer f.Close()

	led, err := ledger.NewStore(cfg.State.Path).Load()
	if err != nil {
		log.Fatalf("ledger state: %v", err)
	}
	ev := risk.NewEvaluator(cfg.Risk.MaxOrderNotional)
	pol := exec.Policy{
		BuyMode:         exec.ParseMode(cfg.Exec.BuyMode),
		SellMode:        exec.ParseMode(cfg.Exec.SellMode),
		BuySlippagePct:  cfg.Exec.BuySlippagePct,
		SellSlippagePct: cfg.Exec.SellSlippagePct,
		TIF:             cfg.Exec.TIF,
	}
	// Quotes and contract resolution come from the paper broker so option
	// alerts replay without a live gateway.
	bk := broker.NewPaper(broker.PaperConfig{}, nil)

	ctx := context.Background()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		printDecision(replayLine(ctx, bk, pol, ev, led, sc.Text()))
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("read alerts: %v", err)
	}
}

func replayLine(ctx context.Context, bk broker.Client, pol exec.Policy, ev *risk.Evaluator, led *ledger.Ledger, text string) decision {
	d := decision{Text: text}

	sig, err := signal.Parse(text)
	if err != nil {
		d.Outcome = "not_a_signal"
		return d
	}
	d.Signal = sig.String()

	est := sig.LimitPrice
	if sig.OrderType != signal.Limit {
		est, err = bk.GetQuote(ctx, sig.Instrument)
		if err != nil {
			d.Outcome = "quote_failure"
			d.Reason = err.Error()
			return d
		}
	}
	d.EstPrice = est

	if err := ev.Check(sig, est, led.Quantity(sig.Instrument.Key())); err != nil {
		d.Outcome = "risk_rejected"
		d.Reason = err.Error()
		return d
	}

	params, err := exec.Construct(ctx, bk, pol, sig, est)
	if err != nil {
		d.Outcome = "construct_failure"
		d.Reason = err.Error()
		return d
	}
	d.Outcome = "would_submit"
	d.Order = &params
	return d
}

func printDecision(d decision) {
	b, err := json.Marshal(d)
	if err != nil {
		log.Fatalf("marshal decision: %v", err)
	}
	fmt.Println(string(b))
}
