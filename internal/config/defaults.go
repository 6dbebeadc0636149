package config

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Networks.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// Default values for optional configuration fields.
const (
	DefaultMainnetURL          = "wss://api.hyperliquid.xyz/ws"
	DefaultTestnetURL          = "wss://api.hyperliquid-testnet.xyz/ws"
	DefaultReconnectDelay      = 120 * time.Second
	DefaultSubscribeTimeout    = 10 * time.Second
	DefaultHandshakeTimeout    = 15 * time.Second
	DefaultPingInterval        = 50 * time.Second
	DefaultReadTimeout         = 3 * time.Minute
	DefaultWriteTimeout        = 5 * time.Second
	DefaultMessageBufferSize   = 10000
	DefaultCheckInterval       = 30 * time.Second
	DefaultPulseInterval       = 5 * time.Second
	DefaultStaleMultiple       = 6
	DefaultDedupCapacity       = 100000
	DefaultDedupTTL            = 24 * time.Hour
	DefaultConsumerTimeout     = 10 * time.Second
	DefaultStopTimeout         = 30 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 4
	DefaultMinConns            = 1
	DefaultLargeTradeThreshold = 10000
	DefaultDiscordRate         = 30
	DefaultRedisChannel        = "hyperliquid:trades"
	DefaultNATSSubjectPrefix   = "hyperliquid.trades"
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	// Venue defaults
	if c.Venue.Network == "" {
		c.Venue.Network = NetworkMainnet
	}
	c.Venue.Network = strings.ToLower(c.Venue.Network)
	if c.Venue.MainnetURL == "" {
		c.Venue.MainnetURL = DefaultMainnetURL
	}
	if c.Venue.TestnetURL == "" {
		c.Venue.TestnetURL = DefaultTestnetURL
	}
	if len(c.Venue.Categories) == 0 {
		c.Venue.Categories = []string{"userEvents", "userFills"}
	}
	c.Venue.Addresses = normalizeAddresses(c.Venue.Addresses)

	// Connection defaults
	if c.Connection.ReconnectDelay == 0 {
		c.Connection.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Connection.SubscribeTimeout == 0 {
		c.Connection.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.ReadTimeout == 0 {
		c.Connection.ReadTimeout = DefaultReadTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.MessageBufferSize == 0 {
		c.Connection.MessageBufferSize = DefaultMessageBufferSize
	}

	// Health defaults
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = DefaultCheckInterval
	}
	if c.Health.PulseInterval == 0 {
		c.Health.PulseInterval = DefaultPulseInterval
	}
	if c.Health.StaleMultiple == 0 {
		c.Health.StaleMultiple = DefaultStaleMultiple
	}

	// Dedup defaults
	if c.Dedup.Capacity == 0 {
		c.Dedup.Capacity = DefaultDedupCapacity
	}
	if c.Dedup.TTL == 0 {
		c.Dedup.TTL = DefaultDedupTTL
	}

	// Dispatch defaults
	if c.Dispatch.ConsumerTimeout == 0 {
		c.Dispatch.ConsumerTimeout = DefaultConsumerTimeout
	}
	if c.Dispatch.StopTimeout == 0 {
		c.Dispatch.StopTimeout = DefaultStopTimeout
	}

	// Storage defaults
	if c.Storage.Postgres.Host != "" {
		applyDBDefaults(&c.Storage.Postgres)
	}

	// Notify defaults
	if c.Notify.Discord.LargeTradeThreshold == 0 {
		c.Notify.Discord.LargeTradeThreshold = DefaultLargeTradeThreshold
	}
	if c.Notify.Discord.RatePerMinute == 0 {
		c.Notify.Discord.RatePerMinute = DefaultDiscordRate
	}
	if c.Notify.Redis.Channel == "" {
		c.Notify.Redis.Channel = DefaultRedisChannel
	}
	if c.Notify.NATS.SubjectPrefix == "" {
		c.Notify.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// normalizeAddresses trims, lower-cases and de-duplicates addresses while
// keeping their configured order.
func normalizeAddresses(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
