package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WHALEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WHALEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "WHALEBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "WHALEBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "WHALEBOT_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.WsHost, "WHALEBOT_POLYMARKET_WS_HOST")
	setFloat64(&cfg.Polymarket.GammaRPS, "WHALEBOT_POLYMARKET_GAMMA_RPS")
	setStr(&cfg.Polymarket.APIKey, "WHALEBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "WHALEBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "WHALEBOT_POLYMARKET_API_PASSPHRASE")
	setStr(&cfg.Polymarket.WalletAddress, "WHALEBOT_POLYMARKET_WALLET_ADDRESS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "WHALEBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "WHALEBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "WHALEBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "WHALEBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "WHALEBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "WHALEBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "WHALEBOT_DATABASE_SSL_MODE")
	setBool(&cfg.Database.RunMigrations, "WHALEBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WHALEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WHALEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WHALEBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "WHALEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WHALEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WHALEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "WHALEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WHALEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WHALEBOT_S3_SECRET_KEY")

	// ── Copier ──
	setFloat64(&cfg.Copier.StartingCapital, "WHALEBOT_COPIER_STARTING_CAPITAL")
	setFloat64(&cfg.Copier.BaseStakeUSD, "WHALEBOT_COPIER_BASE_STAKE_USD")
	setFloat64(&cfg.Copier.MaxCopyUSD, "WHALEBOT_COPIER_MAX_COPY_USD")
	setFloat64(&cfg.Copier.BreakerDrawdownPct, "WHALEBOT_COPIER_BREAKER_DRAWDOWN_PCT")
	setDuration(&cfg.Copier.AggregationWindow, "WHALEBOT_COPIER_AGGREGATION_WINDOW")

	// ── Poller ──
	setDuration(&cfg.Poller.Interval, "WHALEBOT_POLLER_INTERVAL")
	setDuration(&cfg.Poller.Lead, "WHALEBOT_POLLER_LEAD")
	setDuration(&cfg.Poller.MaxStaleness, "WHALEBOT_POLLER_MAX_STALENESS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WHALEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WHALEBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "WHALEBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WHALEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WHALEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WHALEBOT_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "WHALEBOT_MODE")
	setStr(&cfg.LogLevel, "WHALEBOT_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
