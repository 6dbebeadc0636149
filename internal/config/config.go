// Package config loads, defaults, and validates the monitor configuration.
package config

import "time"

// Config is the root configuration for a monitor instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Venue      VenueConfig      `yaml:"venue"`
	Connection ConnectionConfig `yaml:"connection"`
	Health     HealthConfig     `yaml:"health"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Storage    StorageConfig    `yaml:"storage"`
	Notify     NotifyConfig     `yaml:"notify"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// InstanceConfig identifies this monitor. ID is generated when empty.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// VenueConfig selects the Hyperliquid network and the addresses to watch.
type VenueConfig struct {
	Network    string   `yaml:"network"` // "mainnet" or "testnet"
	MainnetURL string   `yaml:"mainnet_url"`
	TestnetURL string   `yaml:"testnet_url"`
	Addresses  []string `yaml:"addresses"`
	Categories []string `yaml:"categories"` // "userEvents", "userFills"
}

// WSURL returns the WebSocket endpoint for the selected network.
func (v VenueConfig) WSURL() string {
	if v.Network == NetworkTestnet {
		return v.TestnetURL
	}
	return v.MainnetURL
}

// ConnectionConfig holds Subscription Manager settings.
type ConnectionConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	SubscribeTimeout  time.Duration `yaml:"subscribe_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	MessageBufferSize int           `yaml:"message_buffer_size"`
}

// HealthConfig holds Health Monitor settings.
type HealthConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	PulseInterval time.Duration `yaml:"pulse_interval"`
	StaleMultiple int           `yaml:"stale_multiple"`
}

// StaleWindow is how long the heartbeat may go without advancing.
func (h HealthConfig) StaleWindow() time.Duration {
	return h.CheckInterval * time.Duration(h.StaleMultiple)
}

// DedupConfig bounds the dedup ledger.
type DedupConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// DispatchConfig holds Dispatch Pipeline settings.
type DispatchConfig struct {
	Silent          bool          `yaml:"silent"` // persist only, skip consumers
	ConsumerTimeout time.Duration `yaml:"consumer_timeout"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
}

// StorageConfig selects the persistence backend. At most one of SQLitePath
// and Postgres.Host may be set; neither disables storage.
type StorageConfig struct {
	SQLitePath string   `yaml:"sqlite_path"`
	Postgres   DBConfig `yaml:"postgres"`
}

// Enabled reports whether any backend is configured.
func (s StorageConfig) Enabled() bool {
	return s.SQLitePath != "" || s.Postgres.Host != ""
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// NotifyConfig holds notification consumer settings. A consumer is enabled
// when its endpoint is set.
type NotifyConfig struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
}

// Count returns the number of enabled consumers.
func (n NotifyConfig) Count() int {
	count := 0
	if n.Discord.WebhookURL != "" {
		count++
	}
	if n.Telegram.Token != "" {
		count++
	}
	if n.Redis.Addr != "" {
		count++
	}
	if n.NATS.URL != "" {
		count++
	}
	return count
}

// DiscordConfig configures the Discord webhook consumer.
type DiscordConfig struct {
	WebhookURL          string  `yaml:"webhook_url"`
	SendAllEvents       bool    `yaml:"send_all_events"` // false = fills only
	LargeTradeAlerts    bool    `yaml:"large_trade_alerts"`
	LargeTradeThreshold float64 `yaml:"large_trade_threshold"` // USD notional
	RatePerMinute       int     `yaml:"rate_per_minute"`
}

// TelegramConfig configures the Telegram bot consumer.
type TelegramConfig struct {
	Token         string `yaml:"token"`
	ChatID        string `yaml:"chat_id"`
	SendAllEvents bool   `yaml:"send_all_events"`
}

// RedisConfig configures the Redis pub/sub consumer.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// NATSConfig configures the NATS consumer.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MetricsConfig holds Prometheus and health endpoint settings.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Port     int    `yaml:"port"`
	Path     string `yaml:"path"`
}

// LogConfig holds slog settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
