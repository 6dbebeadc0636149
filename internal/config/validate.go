package config

import (
	"errors"
	"fmt"
	"regexp"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if len(c.Venue.Addresses) == 0 {
		return errors.New("venue.addresses is required (or set MONITORED_ADDRESSES)")
	}
	for _, a := range c.Venue.Addresses {
		if !addressPattern.MatchString(a) {
			return fmt.Errorf("venue.addresses: %q is not a 0x-prefixed 40 hex digit address", a)
		}
	}

	switch c.Venue.Network {
	case NetworkMainnet, NetworkTestnet:
	default:
		return fmt.Errorf("venue.network must be %q or %q, got %q", NetworkMainnet, NetworkTestnet, c.Venue.Network)
	}
	if c.Venue.WSURL() == "" {
		return fmt.Errorf("venue.%s_url is required", c.Venue.Network)
	}

	if len(c.Venue.Categories) == 0 {
		return errors.New("venue.categories must not be empty")
	}
	for _, cat := range c.Venue.Categories {
		if cat != "userEvents" && cat != "userFills" {
			return fmt.Errorf("venue.categories: unsupported category %q", cat)
		}
	}

	if c.Connection.ReconnectDelay <= 0 {
		return errors.New("connection.reconnect_delay must be > 0")
	}
	if c.Connection.SubscribeTimeout <= 0 {
		return errors.New("connection.subscribe_timeout must be > 0")
	}
	if c.Connection.MessageBufferSize < 1 {
		return errors.New("connection.message_buffer_size must be >= 1")
	}

	if c.Health.CheckInterval <= 0 {
		return errors.New("health.check_interval must be > 0")
	}
	if c.Health.PulseInterval <= 0 {
		return errors.New("health.pulse_interval must be > 0")
	}
	if c.Health.StaleMultiple < 1 {
		return errors.New("health.stale_multiple must be >= 1")
	}
	if window := c.Health.StaleWindow(); c.Health.PulseInterval >= window {
		return fmt.Errorf("health.pulse_interval (%s) must be shorter than the staleness window (%s)",
			c.Health.PulseInterval, window)
	}

	if c.Dedup.Capacity < 0 {
		return errors.New("dedup.capacity must be >= 0")
	}

	if c.Storage.SQLitePath != "" && c.Storage.Postgres.Host != "" {
		return errors.New("storage.sqlite_path and storage.postgres are mutually exclusive")
	}
	if c.Storage.Postgres.Host != "" {
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	}

	if c.Dispatch.Silent && !c.Storage.Enabled() {
		return errors.New("dispatch.silent requires storage (set storage.sqlite_path or DB_PATH)")
	}
	if !c.Dispatch.Silent && c.Notify.Count() == 0 {
		return errors.New("no notification consumer configured (set notify.* or dispatch.silent)")
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == "" {
		return errors.New("notify.telegram.chat_id is required when token is set")
	}
	if c.Notify.Discord.LargeTradeThreshold < 0 {
		return errors.New("notify.discord.large_trade_threshold must be >= 0")
	}

	if !c.Metrics.Disabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
