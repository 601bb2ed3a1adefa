// Package config defines the top-level configuration for the whale copier
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by WHALEBOT_* environment
// variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Copier     CopierConfig     `toml:"copier"`
	Tiers      TiersConfig      `toml:"tiers"`
	Poller     PollerConfig     `toml:"poller"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	DataHost  string `toml:"data_host"`
	WsHost    string `toml:"ws_host"`
	// GammaRPS caps metadata queries per second against the Gamma API.
	GammaRPS float64 `toml:"gamma_rps"`

	// CLOB API credentials, required only in trade mode.
	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	APIPassphrase string `toml:"api_passphrase"`
	// WalletAddress is our own proxy wallet; fills from it are never
	// treated as whale activity.
	WalletAddress string `toml:"wallet_address"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// S3Config holds S3-compatible object storage parameters for cold-storage
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CopierConfig holds the copy-decision and capital parameters.
type CopierConfig struct {
	StartingCapital float64 `toml:"starting_capital"`
	// BaseStakeUSD is the pre-multiplier notional committed per copied trade.
	BaseStakeUSD float64 `toml:"base_stake_usd"`
	// MaxCopyUSD skips whale trades larger than this notional outright.
	MaxCopyUSD float64 `toml:"max_copy_usd"`
	// BreakerDrawdownPct suspends new copies once realized losses exceed this
	// fraction of starting capital. Existing pending positions still resolve.
	BreakerDrawdownPct float64 `toml:"breaker_drawdown_pct"`
	// AggregationWindow is how long partial fills for the same logical order
	// are merged before a candidate is emitted.
	AggregationWindow duration `toml:"aggregation_window"`
	// CorrelationWindow is how far back the scorer looks for near-identical
	// orders across wallets on the same market.
	CorrelationWindow duration `toml:"correlation_window"`
	// ShrinkagePriorTrades is the pseudo-sample pulling small samples toward
	// a neutral 50% win rate when scoring.
	ShrinkagePriorTrades int `toml:"shrinkage_prior_trades"`
	// FillPollInterval drives the Data API fallback when the WS feed is down.
	FillPollInterval duration `toml:"fill_poll_interval"`
}

// TierConfig holds the membership floors and scoring parameters of one
// timeframe tier.
type TierConfig struct {
	BaseThreshold float64 `toml:"base_threshold"`
	MinWinRate    float64 `toml:"min_win_rate"`
	MinTrades     int     `toml:"min_trades"`
	MaxWhales     int     `toml:"max_whales"`
	Multiplier    float64 `toml:"multiplier"`
}

// TiersConfig holds per-tier parameters plus the cross-tier cadences and the
// promotion/pruning bar.
type TiersConfig struct {
	Min15  TierConfig `toml:"min15"`
	Hourly TierConfig `toml:"hourly"`
	Hour4  TierConfig `toml:"hour4"`
	Daily  TierConfig `toml:"daily"`
	// OffSpecialtyPenalty is added to the base threshold when a whale trades
	// outside its tier's timeframe.
	OffSpecialtyPenalty float64 `toml:"off_specialty_penalty"`
	// OffSpecialtyMultiplier scales position size down off-specialty.
	OffSpecialtyMultiplier float64 `toml:"off_specialty_multiplier"`
	// PromotionWinRate / PromotionMinTrades form the fast-cadence bar: both
	// floors must clear for promotion, and active wallets falling below the
	// win-rate bar are pruned.
	PromotionWinRate   float64  `toml:"promotion_win_rate"`
	PromotionMinTrades int      `toml:"promotion_min_trades"`
	RecomputeInterval  duration `toml:"recompute_interval"`
	PromotionInterval  duration `toml:"promotion_interval"`
}

// PollerConfig holds resolution-poller parameters.
type PollerConfig struct {
	Interval duration `toml:"interval"`
	// Lead starts polling this long before a position's estimated resolution.
	Lead duration `toml:"lead"`
	// MaxStaleness flags a position for manual reconciliation once its
	// estimated resolution is this far in the past.
	MaxStaleness duration `toml:"max_staleness"`
	// RequestTimeout bounds each oracle query.
	RequestTimeout duration `toml:"request_timeout"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"monitor": true,
	"trade":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config populated with sensible defaults for paper
// monitoring against production Polymarket endpoints.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			DataHost:  "https://data-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/user",
			GammaRPS:  5,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "whalebot",
			User:          "whalebot",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        10,
			MaxRetries:      3,
			CacheTTLMinutes: 5,
		},
		Copier: CopierConfig{
			StartingCapital:      1000,
			BaseStakeUSD:         25,
			MaxCopyUSD:           1000,
			BreakerDrawdownPct:   0.25,
			AggregationWindow:    duration{3 * time.Second},
			CorrelationWindow:    duration{15 * time.Minute},
			ShrinkagePriorTrades: 6,
			FillPollInterval:     duration{10 * time.Second},
		},
		Tiers: TiersConfig{
			Min15:  TierConfig{BaseThreshold: 88, MinWinRate: 0.70, MinTrades: 12, MaxWhales: 15, Multiplier: 1.2},
			Hourly: TierConfig{BaseThreshold: 90, MinWinRate: 0.68, MinTrades: 12, MaxWhales: 15, Multiplier: 1.0},
			Hour4:  TierConfig{BaseThreshold: 92, MinWinRate: 0.65, MinTrades: 10, MaxWhales: 15, Multiplier: 0.8},
			Daily:  TierConfig{BaseThreshold: 93, MinWinRate: 0.65, MinTrades: 10, MaxWhales: 15, Multiplier: 0.7},
			OffSpecialtyPenalty:    6,
			OffSpecialtyMultiplier: 0.7,
			PromotionWinRate:       0.80,
			PromotionMinTrades:     5,
			RecomputeInterval:      duration{1 * time.Hour},
			PromotionInterval:      duration{10 * time.Minute},
		},
		Poller: PollerConfig{
			Interval:       duration{30 * time.Second},
			Lead:           duration{1 * time.Minute},
			MaxStaleness:   duration{6 * time.Hour},
			RequestTimeout: duration{10 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency and returns a
// single error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsHost == "" && c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: at least one of ws_host or data_host must be set")
	}
	if strings.ToLower(c.Mode) == "trade" {
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host is required for trade mode")
		}
		if c.Polymarket.APIKey == "" || c.Polymarket.APISecret == "" || c.Polymarket.APIPassphrase == "" {
			errs = append(errs, "polymarket: api credentials are required for trade mode")
		}
		if c.Polymarket.WalletAddress == "" {
			errs = append(errs, "polymarket: wallet_address is required for trade mode")
		}
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.Copier.StartingCapital <= 0 {
		errs = append(errs, "copier: starting_capital must be positive")
	}
	if c.Copier.BaseStakeUSD <= 0 {
		errs = append(errs, "copier: base_stake_usd must be positive")
	}
	if c.Copier.BreakerDrawdownPct <= 0 || c.Copier.BreakerDrawdownPct >= 1 {
		errs = append(errs, fmt.Sprintf("copier: breaker_drawdown_pct must be in (0,1), got %g", c.Copier.BreakerDrawdownPct))
	}
	if c.Copier.AggregationWindow.Duration <= 0 {
		errs = append(errs, "copier: aggregation_window must be positive")
	}

	for name, tier := range map[string]TierConfig{
		"min15": c.Tiers.Min15, "hourly": c.Tiers.Hourly,
		"hour4": c.Tiers.Hour4, "daily": c.Tiers.Daily,
	} {
		if tier.BaseThreshold <= 0 || tier.BaseThreshold > 100 {
			errs = append(errs, fmt.Sprintf("tiers.%s: base_threshold must be in (0,100], got %g", name, tier.BaseThreshold))
		}
		if tier.MinWinRate < 0 || tier.MinWinRate > 1 {
			errs = append(errs, fmt.Sprintf("tiers.%s: min_win_rate must be in [0,1], got %g", name, tier.MinWinRate))
		}
		if tier.MinTrades < 1 {
			errs = append(errs, fmt.Sprintf("tiers.%s: min_trades must be >= 1", name))
		}
		if tier.MaxWhales < 1 {
			errs = append(errs, fmt.Sprintf("tiers.%s: max_whales must be >= 1", name))
		}
	}
	if c.Tiers.OffSpecialtyPenalty < 0 {
		errs = append(errs, "tiers: off_specialty_penalty must not be negative")
	}
	if c.Tiers.PromotionWinRate < 0 || c.Tiers.PromotionWinRate > 1 {
		errs = append(errs, fmt.Sprintf("tiers: promotion_win_rate must be in [0,1], got %g", c.Tiers.PromotionWinRate))
	}
	if c.Tiers.RecomputeInterval.Duration <= 0 || c.Tiers.PromotionInterval.Duration <= 0 {
		errs = append(errs, "tiers: recompute_interval and promotion_interval must be positive")
	}

	if c.Poller.Interval.Duration <= 0 {
		errs = append(errs, "poller: interval must be positive")
	}
	if c.Poller.MaxStaleness.Duration <= c.Poller.Interval.Duration {
		errs = append(errs, "poller: max_staleness must exceed the poll interval")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TierFor returns the TierConfig for a timeframe name used by the tier
// engine; ok is false for unknown timeframes.
func (t TiersConfig) TierFor(name string) (TierConfig, bool) {
	switch name {
	case "15min":
		return t.Min15, true
	case "hourly":
		return t.Hourly, true
	case "4hour":
		return t.Hour4, true
	case "daily":
		return t.Daily, true
	default:
		return TierConfig{}, false
	}
}
