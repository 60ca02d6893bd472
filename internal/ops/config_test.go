package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

const testConfig = `{
  "registry": {
    "instruments": [
      {"name": "BTCUSDT", "tickSize": 1, "priceScale": 2, "quantityScale": 0},
      {"name": "ETHUSDT", "tickSize": 5, "priceScale": 2, "quantityScale": 1}
    ]
  },
  "risk": {
    "accountId": 7,
    "enabled": true,
    "instruments": [
      {"instrument": "BTCUSDT", "tradeEnabled": true, "clipSize": 100, "maxPos": 500},
      {"instrument": "ETHUSDT", "tradeEnabled": false, "clipSize": 50, "maxPos": 200}
    ]
  },
  "throttle": {"newPerSec": 10, "modPerSec": 20, "cxlPerSec": 30},
  "orders": {"maxMod": 5, "maxModRej": 2, "maxCxlRej": 2, "stuckAgeSec": 15, "retiredDepth": 1024},
  "pnl": {
    "account": {"maxTotalLoss": 100000},
    "default": {"maxRealizedLoss": 5000},
    "strategies": [
      {"strategyId": 3, "limits": {"maxRealizedLoss": 9000, "maxRealizedDrawdown": 4000}}
    ],
    "proximityFraction": 0.8
  },
  "match": {"percentCancelFront": 0.4},
  "audit": {
    "queueSize": 4096,
    "journal": {"dir": "/var/lib/trader/audit", "segmentPrefix": "audit", "segmentMaxBytes": 1048576}
  },
  "console": {"socket": "/tmp/trader.sock"},
  "feed": {"url": "ws://localhost:8899/md", "dialTimeoutSec": 5, "readDeadlineSec": 10},
  "obs": {"metricsAddr": ":9100"},
  "state": {"snapshotPath": "/var/lib/trader/positions.json", "snapshotIntervalSec": 30}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trader.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadResolvesFullConfig(t *testing.T) {
	loaded, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	require.Equal(t, 2, loaded.Registry.InstrumentCount())
	btc, ok := loaded.Registry.InstrumentIDByName("BTCUSDT")
	require.True(t, ok)
	eth, ok := loaded.Registry.InstrumentIDByName("ETHUSDT")
	require.True(t, ok)

	inst, ok := loaded.Registry.Instrument(eth)
	require.True(t, ok)
	assert.Equal(t, schema.Price(5), inst.TickSize)
	assert.Equal(t, schema.Scale(1), inst.Scale.QuantityScale)

	riskCfg := loaded.Core.Risk
	assert.Equal(t, schema.AccountID(7), riskCfg.AccountID)
	assert.True(t, riskCfg.Enabled)
	require.Contains(t, riskCfg.Instruments, btc)
	require.Contains(t, riskCfg.Instruments, eth)
	assert.Equal(t, schema.Quantity(100), riskCfg.Instruments[btc].ClipSize)
	assert.Equal(t, schema.Quantity(500), riskCfg.Instruments[btc].MaxPos)
	assert.False(t, riskCfg.Instruments[eth].TradeEnabled)

	assert.Equal(t, 10, loaded.Core.Throttle.NewPerSec)
	assert.Equal(t, 30, loaded.Core.Throttle.CxlPerSec)

	assert.Equal(t, 5, loaded.Core.Orders.Limits.MaxMod)
	assert.Equal(t, 15*time.Second, loaded.Core.Orders.StuckAge)
	assert.Equal(t, 1024, loaded.Core.Orders.RetiredDepth)

	pnlCfg := loaded.Core.PnL
	assert.Equal(t, schema.AccountID(7), pnlCfg.AccountID)
	assert.Equal(t, schema.Notional(100000), pnlCfg.Account.MaxTotalLoss)
	assert.Equal(t, schema.Notional(5000), pnlCfg.Default.MaxRealizedLoss)
	require.Contains(t, pnlCfg.Strategies, schema.StrategyID(3))
	assert.Equal(t, schema.Notional(4000), pnlCfg.Strategies[3].MaxRealizedDrawdown)
	assert.Equal(t, 0.8, pnlCfg.ProximityFraction)

	assert.Equal(t, 0.4, loaded.Core.Match.PercentCancelFront)

	assert.Equal(t, 4096, loaded.Audit.QueueSize)
	assert.Equal(t, "audit", loaded.Audit.Journal.SegmentPrefix)
	assert.Nil(t, loaded.Audit.Archive)

	assert.Equal(t, "/tmp/trader.sock", loaded.Console.Socket)
	assert.Equal(t, "ws://localhost:8899/md", loaded.Feed.URL)
	assert.Equal(t, 5*time.Second, loaded.Feed.DialTimeout)
	assert.Equal(t, ":9100", loaded.Obs.MetricsAddr)
	assert.Equal(t, 30, loaded.State.SnapshotIntervalSec)
}

func TestLoadRegistryOnly(t *testing.T) {
	reg, err := LoadRegistry(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, 2, reg.InstrumentCount())
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"not json", `{"registry":`},
		{"no instruments", `{"registry":{"instruments":[]},"risk":{"accountId":1}}`},
		{"zero tick", `{"registry":{"instruments":[{"name":"X","tickSize":0}]},"risk":{"accountId":1}}`},
		{"negative scale", `{"registry":{"instruments":[{"name":"X","tickSize":1,"priceScale":-1}]},"risk":{"accountId":1}}`},
		{"missing account", `{"registry":{"instruments":[{"name":"X","tickSize":1}]},"risk":{"accountId":0}}`},
		{"unknown risk instrument", `{"registry":{"instruments":[{"name":"X","tickSize":1}]},"risk":{"accountId":1,"instruments":[{"instrument":"Y"}]}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestWatchReloadsOnModTimeChange(t *testing.T) {
	path := writeConfig(t, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Loaded, 1)
	go Watch(ctx, path, 5*time.Millisecond, func(loaded Loaded) {
		select {
		case reloaded <- loaded:
		default:
		}
	})

	// Rewrite with a different account id so the reload is observable
	// in the loaded config, not just by the callback firing.
	updated := strings.Replace(testConfig, `"accountId": 7`, `"accountId": 8`, 1)
	require.NotEqual(t, testConfig, updated)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	// The watcher records the baseline mtime with its own initial Stat,
	// which may run after the rewrite. Keep pushing the mtime forward
	// until the watcher notices.
	deadline := time.After(3 * time.Second)
	future := time.Now().Add(time.Second)
	for {
		future = future.Add(time.Second)
		require.NoError(t, os.Chtimes(path, future, future))
		select {
		case loaded := <-reloaded:
			assert.Equal(t, schema.AccountID(8), loaded.Core.Risk.AccountID)
			return
		case <-deadline:
			t.Fatal("config reload not observed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
