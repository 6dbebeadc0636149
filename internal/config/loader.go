package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads an optional YAML config file, expands ${VAR} references and
// applies environment overrides. An empty path yields a config built from the
// environment alone. A .env file in the working directory is loaded first if
// present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// Expand ${VAR} environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets operators configure the monitor with the plain
// environment variables used by earlier deployments.
func applyEnvOverrides(cfg *Config) {
	setStringSlice(&cfg.Venue.Addresses, "MONITORED_ADDRESSES")
	if v, ok := lookupBool("TESTNET_MODE"); ok {
		if v {
			cfg.Venue.Network = NetworkTestnet
		} else {
			cfg.Venue.Network = NetworkMainnet
		}
	}

	setStr(&cfg.Storage.SQLitePath, "DB_PATH")
	setBool(&cfg.Dispatch.Silent, "SILENT_MODE")

	setStr(&cfg.Notify.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
	setBool(&cfg.Notify.Discord.SendAllEvents, "DISCORD_SEND_ALL_EVENTS")
	setBool(&cfg.Notify.Discord.LargeTradeAlerts, "ENABLE_LARGE_TRADE_ALERTS")
	setFloat64(&cfg.Notify.Discord.LargeTradeThreshold, "LARGE_TRADE_THRESHOLD")

	setStr(&cfg.Notify.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Notify.Redis.Password, "REDIS_PASSWORD")
	setStr(&cfg.Notify.NATS.URL, "NATS_URL")

	setStr(&cfg.Log.Level, "LOG_LEVEL")
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookupBool(key); ok {
		*dst = v
	}
}

func lookupBool(key string) (value, ok bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Storage.Postgres.Password = redact(c.Storage.Postgres.Password)
	c.Notify.Discord.WebhookURL = redact(c.Notify.Discord.WebhookURL)
	c.Notify.Telegram.Token = redact(c.Notify.Telegram.Token)
	c.Notify.Redis.Password = redact(c.Notify.Redis.Password)
	return c
}
