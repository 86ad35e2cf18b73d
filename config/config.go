package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration for both halves of the bot: the
// monitor (signal detection) and the trader (position lifecycle).
// Every numeric threshold the engines consult lives here — the core
// packages receive these values injected and carry no constants of
// their own.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Regime   RegimeConfig   `yaml:"regime"`
	Strategy StrategyConfig `yaml:"strategy"`
	Trader   TraderConfig   `yaml:"trader"`
	Exits    ExitsConfig    `yaml:"exits"`
	Risk     RiskConfig     `yaml:"risk"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// MonitorConfig controls the detection pipeline: rolling statistics,
// candidate gating and the background refresh cadences.
type MonitorConfig struct {
	HistoryLen       int     `yaml:"history_len"`       // per-market mid window capacity
	MinHistory       int     `yaml:"min_history"`       // samples required before z-scores count
	SpikeThreshold   float64 `yaml:"spike_threshold"`   // min |delta| to consider at all
	ZScoreMin        float64 `yaml:"z_score_min"`       // base z floor, adaptive floor anchors here
	WatchZ           float64 `yaml:"watch_z"`
	AlertZ           float64 `yaml:"alert_z"`
	GlobalDeltasLen  int     `yaml:"global_deltas_len"` // cross-market |delta| window
	TopPercentile    float64 `yaml:"top_percentile"`    // candidate |delta| must rank above this
	WarmupGlobalMin  int     `yaml:"warmup_global_min"` // below this global count, warmup rules apply
	WarmupZExtra     float64 `yaml:"warmup_z_extra"`
	TailMin          float64 `yaml:"tail_min"` // mids outside [TailMin, TailMax] are ignored
	TailMax          float64 `yaml:"tail_max"`
	SignalMidMin     float64 `yaml:"signal_mid_min"` // tradeable mid band for accepted signals
	SignalMidMax     float64 `yaml:"signal_mid_max"`
	LiquidityMin     float64 `yaml:"liquidity_min"`     // liquidity proxy floor
	SharesActiveMin  float64 `yaml:"shares_active_min"` // lifetime shares needed before they count as the proxy
	MaxSpread        float64 `yaml:"max_spread"`        // spread above this never reaches the signal path
	CooldownSec      int     `yaml:"cooldown_sec"`      // per-market gap between accepted signals
	FadeZMin         float64 `yaml:"fade_z_min"`
	FadeZMax         float64 `yaml:"fade_z_max"`
	TrendZMin        float64 `yaml:"trend_z_min"`
	SpreadMaxFade    float64 `yaml:"spread_max_fade"`
	SpreadMaxTrend   float64 `yaml:"spread_max_trend"`
	BurstWindowSec   int     `yaml:"burst_window_sec"` // opposite spike within this window = reversion burst
	BurstZMin        float64 `yaml:"burst_z_min"`
	MaxMarkets       int     `yaml:"max_markets"`
	MarketRefreshSec int     `yaml:"market_refresh_sec"` // discovery cadence
	VolumeRefreshSec int     `yaml:"volume_refresh_sec"` // liquidity proxy cadence
	ScoreRefreshSec  int     `yaml:"score_refresh_sec"`  // live-score cadence
	HeartbeatSec     int     `yaml:"heartbeat_sec"`
	CleanupSec       int     `yaml:"cleanup_sec"`
	StaleFeedSec     int     `yaml:"stale_feed_sec"`     // warn when no stream data for this long
	SignalKeepSec    int     `yaml:"signal_keep_sec"`    // logged signals older than this are pruned
	StreamWildcard   bool    `yaml:"stream_wildcard"`    // subscribe to the firehose instead of per market
}

// RegimeConfig controls spike-outcome tracking and regime labelling.
type RegimeConfig struct {
	CheckDelaySec      int     `yaml:"check_delay_sec"`     // observation delay before resolving an outcome
	ReversionThreshold float64 `yaml:"reversion_threshold"` // fraction of the move retraced to count as reverted
	WindowSec          int     `yaml:"window_sec"`          // rolling window of resolved outcomes
	MinSamples         int     `yaml:"min_samples"`         // below this the label is insufficient-data
	TrendingRatio      float64 `yaml:"trending_ratio"`      // continuation rate above this labels trending
}

// StrategyConfig controls the adaptive contrarian/momentum selection.
type StrategyConfig struct {
	WindowSec      int     `yaml:"window_sec"`      // sliding window of recent signal directions
	MinSignals     int     `yaml:"min_signals"`     // below this always contrarian
	DominanceRatio float64 `yaml:"dominance_ratio"` // dominant direction share needed for momentum
}

// TraderConfig controls the execution side: entry gating, sizing,
// order crossing and fill confirmation.
type TraderConfig struct {
	PollIntervalMs     int      `yaml:"poll_interval_ms"`   // signal tail + position poll cadence
	MaxSignalAgeSec    int      `yaml:"max_signal_age_sec"` // freshness window for consumed signals
	MinOpenIntervalSec int      `yaml:"min_open_interval_sec"`
	RearmSec           int      `yaml:"rearm_sec"` // per-market gap after an acted-on signal
	MinDeltaPct        float64  `yaml:"min_delta_pct"`
	MaxDeltaPct        float64  `yaml:"max_delta_pct"`
	MidMin             float64  `yaml:"mid_min"`
	MidMax             float64  `yaml:"mid_max"`
	SpreadMaxBase      float64  `yaml:"spread_max_base"` // ladder widens with |z|
	SpreadMaxMid       float64  `yaml:"spread_max_mid"`
	SpreadMaxHigh      float64  `yaml:"spread_max_high"`
	LiquidityMin       float64  `yaml:"liquidity_min"`
	BlockPreGame       bool     `yaml:"block_pre_game"`
	AllowUnknownPhase  bool     `yaml:"allow_unknown_phase"`
	MaxLossesPerMarket int      `yaml:"max_losses_per_market"`
	Blocklist          []string `yaml:"blocklist"`
	ConvergenceMidMin  float64  `yaml:"convergence_mid_min"` // decided-contest favorite price floor for settlement holds

	CashFraction float64 `yaml:"cash_fraction"` // fraction of free cash per entry
	CashMin      float64 `yaml:"cash_min"`
	CashMax      float64 `yaml:"cash_max"`
	MinCash      float64 `yaml:"min_cash"` // below this no trade is sized
	FeeRate      float64 `yaml:"fee_rate"`

	CrossBuffer       float64 `yaml:"cross_buffer"`   // added beyond best price to cross the book
	SlippagePct       float64 `yaml:"slippage_pct"`   // fallback pricing when no book is available
	EntrySlipCap      float64 `yaml:"entry_slip_cap"` // absolute ceiling on the cost-deviation guard
	PriceTTLSec       int     `yaml:"price_ttl_sec"`  // shared bid/ask/mid cache TTL
	FillPollAttempts  int     `yaml:"fill_poll_attempts"`
	FillPollDelayMs   int     `yaml:"fill_poll_delay_ms"`
	CloseRetries      int     `yaml:"close_retries"`
	CloseRetryDelayMs int     `yaml:"close_retry_delay_ms"`
	PaperCash         float64 `yaml:"paper_cash"` // starting cash in paper mode
}

// ExitParams is one strategy's exit ladder. Profit values are fractions
// of the side-correct cost basis, durations in seconds.
type ExitParams struct {
	TakeProfit    float64 `yaml:"take_profit"`
	StopLoss      float64 `yaml:"stop_loss"`
	TimeExitSec   int     `yaml:"time_exit_sec"`
	BreakevenSec  int     `yaml:"breakeven_sec"`
	BreakevenTol  float64 `yaml:"breakeven_tol"`
	TrailActivate float64 `yaml:"trail_activate"`
	TrailStop     float64 `yaml:"trail_stop"`
	MaxHoldSec    int     `yaml:"max_hold_sec"`    // convergence only: absolute cap
	EmergencyStop float64 `yaml:"emergency_stop"`  // convergence only: wide disaster stop
}

// ExitsConfig holds per-strategy exit ladders plus the trailing-peak
// decay shared by all of them.
type ExitsConfig struct {
	Contrarian  ExitParams `yaml:"contrarian"`
	Momentum    ExitParams `yaml:"momentum"`
	Convergence ExitParams `yaml:"convergence"`

	PeakDecaySec        int     `yaml:"peak_decay_sec"`
	PeakDecayRate       float64 `yaml:"peak_decay_rate"`
	TrailMinConsecutive int     `yaml:"trail_min_consecutive"`
}

// RiskConfig holds the concurrency ceilings and the daily circuit breaker.
type RiskConfig struct {
	MaxContrarian      int     `yaml:"max_contrarian"`
	MaxMomentum        int     `yaml:"max_momentum"`
	MaxConvergence     int     `yaml:"max_convergence"`
	SharedMomentumPool bool    `yaml:"shared_momentum_pool"` // momentum+convergence draw from one pool
	DailyLossLimit     float64 `yaml:"daily_loss_limit"`     // realized loss that halts new entries
	GeneralRatePerSec  float64 `yaml:"general_rate_per_sec"`
	GeneralBurst       int     `yaml:"general_burst"`
	OrderRatePerSec    float64 `yaml:"order_rate_per_sec"`
	OrderBurst         int     `yaml:"order_burst"`
}

// APIConfig contains the venue endpoints and credentials. Credentials
// come from the environment, never from the YAML file.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	StreamURL string `yaml:"stream_url"`
	KeyID     string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// StorageConfig controls where the signal log and trade log live.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9190", empty disables
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Environment
// variables override both for the keys that apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Trader.PollIntervalMs) * time.Millisecond
}

func (c *Config) MarketRefresh() time.Duration {
	return time.Duration(c.Monitor.MarketRefreshSec) * time.Second
}

func (c *Config) VolumeRefresh() time.Duration {
	return time.Duration(c.Monitor.VolumeRefreshSec) * time.Second
}

func (c *Config) ScoreRefresh() time.Duration {
	return time.Duration(c.Monitor.ScoreRefreshSec) * time.Second
}

func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.Monitor.HeartbeatSec) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	cfg.API.KeyID = os.Getenv("VENUE_KEY_ID")
	cfg.API.SecretKey = os.Getenv("VENUE_SECRET_KEY")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults fills every zero value with the thresholds the strategies
// were tuned against. A config file only needs to override what differs.
func setDefaults(cfg *Config) {
	m := &cfg.Monitor
	if m.HistoryLen <= 0 {
		m.HistoryLen = 50
	}
	if m.MinHistory <= 0 {
		m.MinHistory = 10
	}
	if m.SpikeThreshold <= 0 {
		m.SpikeThreshold = 0.003
	}
	if m.ZScoreMin <= 0 {
		m.ZScoreMin = 0.8
	}
	if m.WatchZ <= 0 {
		m.WatchZ = 1.5
	}
	if m.AlertZ <= 0 {
		m.AlertZ = 3.0
	}
	if m.GlobalDeltasLen <= 0 {
		m.GlobalDeltasLen = 2000
	}
	if m.TopPercentile <= 0 {
		m.TopPercentile = 50
	}
	if m.WarmupGlobalMin <= 0 {
		m.WarmupGlobalMin = 20
	}
	if m.WarmupZExtra <= 0 {
		m.WarmupZExtra = 0.1
	}
	if m.TailMin <= 0 {
		m.TailMin = 0.01
	}
	if m.TailMax <= 0 {
		m.TailMax = 0.99
	}
	if m.SignalMidMin <= 0 {
		m.SignalMidMin = 0.12
	}
	if m.SignalMidMax <= 0 {
		m.SignalMidMax = 0.55
	}
	if m.LiquidityMin <= 0 {
		m.LiquidityMin = 10
	}
	if m.SharesActiveMin <= 0 {
		m.SharesActiveMin = 50
	}
	if m.MaxSpread <= 0 {
		m.MaxSpread = 0.15
	}
	if m.CooldownSec <= 0 {
		m.CooldownSec = 60
	}
	if m.FadeZMin <= 0 {
		m.FadeZMin = 2.0
	}
	if m.FadeZMax <= 0 {
		m.FadeZMax = 6.0
	}
	if m.TrendZMin <= 0 {
		m.TrendZMin = 3.0
	}
	if m.SpreadMaxFade <= 0 {
		m.SpreadMaxFade = 0.20
	}
	if m.SpreadMaxTrend <= 0 {
		m.SpreadMaxTrend = 0.25
	}
	if m.BurstWindowSec <= 0 {
		m.BurstWindowSec = 300
	}
	if m.BurstZMin <= 0 {
		m.BurstZMin = 4.5
	}
	if m.MaxMarkets <= 0 {
		m.MaxMarkets = 500
	}
	if m.MarketRefreshSec <= 0 {
		m.MarketRefreshSec = 300
	}
	if m.VolumeRefreshSec <= 0 {
		m.VolumeRefreshSec = 60
	}
	if m.ScoreRefreshSec <= 0 {
		m.ScoreRefreshSec = 60
	}
	if m.HeartbeatSec <= 0 {
		m.HeartbeatSec = 8
	}
	if m.CleanupSec <= 0 {
		m.CleanupSec = 300
	}
	if m.StaleFeedSec <= 0 {
		m.StaleFeedSec = 60
	}
	if m.SignalKeepSec <= 0 {
		m.SignalKeepSec = 86400
	}

	r := &cfg.Regime
	if r.CheckDelaySec <= 0 {
		r.CheckDelaySec = 180
	}
	if r.ReversionThreshold <= 0 {
		r.ReversionThreshold = 0.50
	}
	if r.WindowSec <= 0 {
		r.WindowSec = 600
	}
	if r.MinSamples <= 0 {
		r.MinSamples = 3
	}
	if r.TrendingRatio <= 0 {
		r.TrendingRatio = 0.65
	}

	st := &cfg.Strategy
	if st.WindowSec <= 0 {
		st.WindowSec = 300
	}
	if st.MinSignals <= 0 {
		st.MinSignals = 3
	}
	if st.DominanceRatio <= 0 {
		st.DominanceRatio = 0.75
	}

	t := &cfg.Trader
	if t.PollIntervalMs <= 0 {
		t.PollIntervalMs = 250
	}
	if t.MaxSignalAgeSec <= 0 {
		t.MaxSignalAgeSec = 15
	}
	if t.MinOpenIntervalSec <= 0 {
		t.MinOpenIntervalSec = 30
	}
	if t.RearmSec <= 0 {
		t.RearmSec = 300
	}
	if t.MinDeltaPct <= 0 {
		t.MinDeltaPct = 0.015
	}
	if t.MaxDeltaPct <= 0 {
		t.MaxDeltaPct = 0.15
	}
	if t.MidMin <= 0 {
		t.MidMin = 0.25
	}
	if t.MidMax <= 0 {
		t.MidMax = 0.55
	}
	if t.SpreadMaxBase <= 0 {
		t.SpreadMaxBase = 0.10
	}
	if t.SpreadMaxMid <= 0 {
		t.SpreadMaxMid = 0.13
	}
	if t.SpreadMaxHigh <= 0 {
		t.SpreadMaxHigh = 0.16
	}
	if t.LiquidityMin <= 0 {
		t.LiquidityMin = 10
	}
	if t.MaxLossesPerMarket <= 0 {
		t.MaxLossesPerMarket = 2
	}
	if t.ConvergenceMidMin <= 0 {
		t.ConvergenceMidMin = 0.75
	}
	if t.CashFraction <= 0 {
		t.CashFraction = 0.10
	}
	if t.CashMin <= 0 {
		t.CashMin = 1.0
	}
	if t.CashMax <= 0 {
		t.CashMax = 10.0
	}
	if t.MinCash <= 0 {
		t.MinCash = 1.0
	}
	if t.FeeRate <= 0 {
		t.FeeRate = 0.005
	}
	if t.CrossBuffer <= 0 {
		t.CrossBuffer = 0.005
	}
	if t.SlippagePct <= 0 {
		t.SlippagePct = 3.0
	}
	if t.EntrySlipCap <= 0 {
		t.EntrySlipCap = 0.03
	}
	if t.PriceTTLSec <= 0 {
		t.PriceTTLSec = 5
	}
	if t.FillPollAttempts <= 0 {
		t.FillPollAttempts = 10
	}
	if t.FillPollDelayMs <= 0 {
		t.FillPollDelayMs = 1000
	}
	if t.CloseRetries <= 0 {
		t.CloseRetries = 3
	}
	if t.CloseRetryDelayMs <= 0 {
		t.CloseRetryDelayMs = 2000
	}
	if t.PaperCash <= 0 {
		t.PaperCash = 10.0
	}

	e := &cfg.Exits
	if e.Contrarian == (ExitParams{}) {
		e.Contrarian = ExitParams{
			TakeProfit: 0.10, StopLoss: 0.04,
			TimeExitSec: 720, BreakevenSec: 480, BreakevenTol: 0.015,
			TrailActivate: 0.04, TrailStop: 0.025,
		}
	}
	if e.Momentum == (ExitParams{}) {
		e.Momentum = ExitParams{
			TakeProfit: 0.12, StopLoss: 0.05,
			TimeExitSec: 480, BreakevenSec: 240, BreakevenTol: 0.01,
			TrailActivate: 0.035, TrailStop: 0.02,
		}
	}
	if e.Convergence == (ExitParams{}) {
		e.Convergence = ExitParams{
			EmergencyStop: 0.25, MaxHoldSec: 7200,
		}
	}
	if e.PeakDecaySec <= 0 {
		e.PeakDecaySec = 60
	}
	if e.PeakDecayRate <= 0 {
		e.PeakDecayRate = 0.25
	}
	if e.TrailMinConsecutive <= 0 {
		e.TrailMinConsecutive = 2
	}

	rk := &cfg.Risk
	if rk.MaxContrarian <= 0 {
		rk.MaxContrarian = 2
	}
	if rk.MaxMomentum <= 0 {
		rk.MaxMomentum = 2
	}
	if rk.MaxConvergence <= 0 {
		rk.MaxConvergence = 1
	}
	if rk.DailyLossLimit <= 0 {
		rk.DailyLossLimit = 5.0
	}
	if rk.GeneralRatePerSec <= 0 {
		rk.GeneralRatePerSec = 40
	}
	if rk.GeneralBurst <= 0 {
		rk.GeneralBurst = 10
	}
	if rk.OrderRatePerSec <= 0 {
		rk.OrderRatePerSec = 5
	}
	if rk.OrderBurst <= 0 {
		rk.OrderBurst = 2
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.polymarket.us"
	}
	if cfg.API.StreamURL == "" {
		cfg.API.StreamURL = "wss://api.polymarket.us/v1/ws/markets"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "clobhunter.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
