// Package ops loads and resolves the runtime configuration.
package ops

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/audit"
	"main/internal/core"
	"main/internal/feed"
	"main/internal/match"
	"main/internal/orders"
	"main/internal/pnl"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/throttle"
)

// FileConfig mirrors the JSON config layout. Instruments are referred
// to by name everywhere; ids are assigned by the registry at load time.
type FileConfig struct {
	Registry RegistryConfig `json:"registry"`
	Risk     RiskConfig     `json:"risk"`
	Throttle ThrottleConfig `json:"throttle"`
	Orders   OrdersConfig   `json:"orders"`
	PnL      PnLConfig      `json:"pnl"`
	Match    MatchConfig    `json:"match"`
	Audit    AuditConfig    `json:"audit"`
	Console  ConsoleConfig  `json:"console"`
	Feed     FeedConfig     `json:"feed"`
	Obs      ObsConfig      `json:"obs"`
	State    StateConfig    `json:"state"`
}

// RegistryConfig defines the tradable instruments.
type RegistryConfig struct {
	Instruments []InstrumentConfig `json:"instruments"`
}

// InstrumentConfig describes one instrument entry.
type InstrumentConfig struct {
	Name          string       `json:"name"`
	TickSize      schema.Price `json:"tickSize"`
	PriceScale    schema.Scale `json:"priceScale"`
	QuantityScale schema.Scale `json:"quantityScale"`
}

// RiskConfig defines the account and its per-instrument limits.
type RiskConfig struct {
	AccountID   schema.AccountID       `json:"accountId"`
	Enabled     bool                   `json:"enabled"`
	Instruments []InstrumentRiskConfig `json:"instruments"`
}

// InstrumentRiskConfig holds per-instrument risk parameters.
type InstrumentRiskConfig struct {
	Instrument   string          `json:"instrument"`
	TradeEnabled bool            `json:"tradeEnabled"`
	ClipSize     schema.Quantity `json:"clipSize"`
	MaxPos       schema.Quantity `json:"maxPos"`
}

// ThrottleConfig holds the message rate limits. Zero disables a class.
type ThrottleConfig struct {
	NewPerSec int `json:"newPerSec"`
	ModPerSec int `json:"modPerSec"`
	CxlPerSec int `json:"cxlPerSec"`
}

// OrdersConfig holds the order table limits.
type OrdersConfig struct {
	MaxMod       int `json:"maxMod"`
	MaxModRej    int `json:"maxModRej"`
	MaxCxlRej    int `json:"maxCxlRej"`
	StuckAgeSec  int `json:"stuckAgeSec"`
	RetiredDepth int `json:"retiredDepth"`
}

// LossLimitsConfig holds PnL loss limits. Zero means unchecked.
type LossLimitsConfig struct {
	MaxRealizedLoss       schema.Notional `json:"maxRealizedLoss"`
	MaxUnrealizedLoss     schema.Notional `json:"maxUnrealizedLoss"`
	MaxTotalLoss          schema.Notional `json:"maxTotalLoss"`
	MaxRealizedDrawdown   schema.Notional `json:"maxRealizedDrawdown"`
	MaxUnrealizedDrawdown schema.Notional `json:"maxUnrealizedDrawdown"`
}

func (c LossLimitsConfig) resolve() pnl.Limits {
	return pnl.Limits{
		MaxRealizedLoss:       c.MaxRealizedLoss,
		MaxUnrealizedLoss:     c.MaxUnrealizedLoss,
		MaxTotalLoss:          c.MaxTotalLoss,
		MaxRealizedDrawdown:   c.MaxRealizedDrawdown,
		MaxUnrealizedDrawdown: c.MaxUnrealizedDrawdown,
	}
}

// StrategyLimitsConfig binds loss limits to one strategy.
type StrategyLimitsConfig struct {
	StrategyID schema.StrategyID `json:"strategyId"`
	Limits     LossLimitsConfig  `json:"limits"`
}

// PnLConfig holds the composite loss limit tree.
type PnLConfig struct {
	Account           LossLimitsConfig       `json:"account"`
	Default           LossLimitsConfig       `json:"default"`
	Strategies        []StrategyLimitsConfig `json:"strategies"`
	ProximityFraction float64                `json:"proximityFraction"`
}

// MatchConfig holds the simulator tuning.
type MatchConfig struct {
	PercentCancelFront float64 `json:"percentCancelFront"`
}

// AuditConfig holds the audit pipeline settings.
type AuditConfig struct {
	QueueSize int                  `json:"queueSize"`
	Journal   recorder.Config      `json:"journal"`
	Archive   *audit.ArchiveConfig `json:"archive,omitempty"`
}

// ConsoleConfig holds the operator socket path.
type ConsoleConfig struct {
	Socket string `json:"socket"`
}

// FeedConfig holds the market data source.
type FeedConfig struct {
	URL             string `json:"url"`
	DialTimeoutSec  int    `json:"dialTimeoutSec"`
	ReadDeadlineSec int    `json:"readDeadlineSec"`
}

// ObsConfig holds observability endpoints.
type ObsConfig struct {
	MetricsAddr string          `json:"metricsAddr"`
	Pyroscope   PyroscopeConfig `json:"pyroscope"`
}

// PyroscopeConfig enables continuous profiling.
type PyroscopeConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// StateConfig holds position snapshot settings.
type StateConfig struct {
	SnapshotPath        string `json:"snapshotPath"`
	SnapshotIntervalSec int    `json:"snapshotIntervalSec"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Registry *schema.Registry
	Core     core.Config
	Audit    AuditConfig
	Console  ConsoleConfig
	Feed     feed.ClientConfig
	Obs      ObsConfig
	State    StateConfig
}

// Load reads the JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrapf(err, "parse %s", path)
	}
	return resolve(cfg)
}

// LoadRegistry reads the config file and only builds the registry.
func LoadRegistry(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return buildRegistry(cfg.Registry)
}

func resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	riskCfg, err := resolveRisk(cfg.Risk, registry)
	if err != nil {
		return Loaded{}, err
	}

	coreCfg := core.Config{
		Orders: orders.Config{
			Limits: orders.Limits{
				MaxMod:    cfg.Orders.MaxMod,
				MaxModRej: cfg.Orders.MaxModRej,
				MaxCxlRej: cfg.Orders.MaxCxlRej,
			},
			StuckAge:     time.Duration(cfg.Orders.StuckAgeSec) * time.Second,
			RetiredDepth: cfg.Orders.RetiredDepth,
		},
		Throttle: throttle.Config{
			NewPerSec: cfg.Throttle.NewPerSec,
			ModPerSec: cfg.Throttle.ModPerSec,
			CxlPerSec: cfg.Throttle.CxlPerSec,
		},
		Risk:  riskCfg,
		PnL:   resolvePnL(cfg.PnL, riskCfg.AccountID),
		Match: match.Config{PercentCancelFront: cfg.Match.PercentCancelFront},
	}

	return Loaded{
		Registry: registry,
		Core:     coreCfg,
		Audit:    cfg.Audit,
		Console:  cfg.Console,
		Feed: feed.ClientConfig{
			URL:          cfg.Feed.URL,
			DialTimeout:  time.Duration(cfg.Feed.DialTimeoutSec) * time.Second,
			ReadDeadline: time.Duration(cfg.Feed.ReadDeadlineSec) * time.Second,
		},
		Obs:   cfg.Obs,
		State: cfg.State,
	}, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("config: no instruments")
	}
	reg := schema.NewRegistry()
	for _, inst := range cfg.Instruments {
		if inst.TickSize <= 0 {
			return nil, errors.Errorf("config: instrument %s: tickSize must be > 0", inst.Name)
		}
		if inst.PriceScale < 0 || inst.QuantityScale < 0 {
			return nil, errors.Errorf("config: instrument %s: scale must be >= 0", inst.Name)
		}
		_, err := reg.AddInstrument(inst.Name, inst.TickSize, schema.ScaleSpec{
			PriceScale:    inst.PriceScale,
			QuantityScale: inst.QuantityScale,
		})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func resolveRisk(cfg RiskConfig, reg *schema.Registry) (risk.Config, error) {
	if cfg.AccountID == 0 {
		return risk.Config{}, errors.New("config: risk.accountId must be set")
	}
	instruments := make(map[schema.InstrumentID]risk.InstrumentParams, len(cfg.Instruments))
	for _, entry := range cfg.Instruments {
		id, ok := reg.InstrumentIDByName(entry.Instrument)
		if !ok {
			return risk.Config{}, errors.Errorf("config: risk instrument not in registry: %s", entry.Instrument)
		}
		instruments[id] = risk.InstrumentParams{
			TradeEnabled: entry.TradeEnabled,
			ClipSize:     entry.ClipSize,
			MaxPos:       entry.MaxPos,
		}
	}
	return risk.Config{
		AccountID:   cfg.AccountID,
		Enabled:     cfg.Enabled,
		Instruments: instruments,
	}, nil
}

func resolvePnL(cfg PnLConfig, accountID schema.AccountID) pnl.Config {
	strategies := make(map[schema.StrategyID]pnl.Limits, len(cfg.Strategies))
	for _, entry := range cfg.Strategies {
		strategies[entry.StrategyID] = entry.Limits.resolve()
	}
	return pnl.Config{
		AccountID:         accountID,
		Account:           cfg.Account.resolve(),
		Strategies:        strategies,
		Default:           cfg.Default.resolve(),
		ProximityFraction: cfg.ProximityFraction,
	}
}
