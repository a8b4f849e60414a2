package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
chat:
  channel_ids: ["123"]
  tracked_users: ["caller"]
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paper", c.Broker.Mode)
	assert.Equal(t, 5000.0, c.Risk.MaxOrderNotional)
	assert.Equal(t, "DAY", c.Exec.TIF)
	assert.Equal(t, "LIMIT", c.Exec.BuyMode)
	assert.Equal(t, 30, c.Exec.BuyTimeoutSec)
	assert.Equal(t, 800, c.Exec.PollIntervalMs)
	assert.Equal(t, 3, c.Exec.MaxRequotes)
	assert.Equal(t, "data/ledger.json", c.State.Path)
	assert.Equal(t, 30, c.State.FlushIntervalSec)
	assert.Equal(t, 90, c.Journal.DedupeWindowSecs)
	assert.Equal(t, []string{"123"}, c.Chat.ChannelIDs)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
broker:
  mode: bridge
  environment: live
  bridge:
    base_url: http://gateway:9000
risk:
  max_order_notional: 2500
exec:
  dry_run: true
  buy_mode: MARKET
  sell_timeout_sec: 12
state:
  path: /tmp/ledger.json
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bridge", c.Broker.Mode)
	assert.Equal(t, "live", c.Broker.Environment)
	assert.Equal(t, "http://gateway:9000", c.Broker.Bridge.BaseURL)
	assert.Equal(t, 2500.0, c.Risk.MaxOrderNotional)
	assert.True(t, c.Exec.DryRun)
	assert.Equal(t, "MARKET", c.Exec.BuyMode)
	assert.Equal(t, 12, c.Exec.SellTimeoutSec)
	assert.Equal(t, "/tmp/ledger.json", c.State.Path)
}

func TestLoadRejectsUnknownBrokerMode(t *testing.T) {
	path := writeConfig(t, "broker:\n  mode: webull\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
