// Package config loads the server configuration from an optional
// sessionx.yml file and SESSIONX_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluescreen10/sessionx/session"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`

	// Session is read from the top level keys named after the
	// session configuration constants. Durations are in seconds.
	Session session.Config `mapstructure:"-"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory, file, redis, gorm, mysql, postgres, sqlite, scs
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig holds the redis connection used by the redis driver.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // e.g., "json", "console"
}

// Drivers lists the accepted store.driver values.
var Drivers = []string{"memory", "file", "redis", "gorm", "mysql", "postgres", "sqlite", "scs"}

// Load reads configuration from sessionx.yml, looked up in the given
// directories (the working directory when none are given), then from
// environment variables. A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("sessionx")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("SESSIONX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Session = session.Config{
		GarbageCollectionProbability: v.GetFloat64(session.GarbageCollectionProbability),
		SessionName:                  v.GetString(session.SessionName),
		SessionFilePrefix:            v.GetString(session.SessionFilePrefix),
		SessionSavePath:              v.GetString(session.SessionSavePath),
		SessionMaximumAge:            seconds(v.GetInt64(session.SessionMaximumAge)),
		SessionInactivityTimeout:     seconds(v.GetInt64(session.SessionInactivityTimeout)),
		SessionCookieLifetime:        seconds(v.GetInt64(session.SessionCookieLifetime)),
		SessionCookieDomain:          v.GetString(session.SessionCookieDomain),
		SessionCookiePath:            v.GetString(session.SessionCookiePath),
		SessionCookieSecure:          v.GetBool(session.SessionCookieSecure),
		SessionHttpOnly:              v.GetBool(session.SessionHttpOnly),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the session settings and the store driver.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}

	for _, d := range Drivers {
		if c.Store.Driver == d {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown store driver %q", session.ErrInvalidConfig, c.Store.Driver)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "session:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	d := session.DefaultConfig()
	v.SetDefault(session.GarbageCollectionProbability, d.GarbageCollectionProbability)
	v.SetDefault(session.SessionName, d.SessionName)
	v.SetDefault(session.SessionFilePrefix, d.SessionFilePrefix)
	v.SetDefault(session.SessionSavePath, d.SessionSavePath)
	v.SetDefault(session.SessionMaximumAge, int64(d.SessionMaximumAge/time.Second))
	v.SetDefault(session.SessionInactivityTimeout, int64(d.SessionInactivityTimeout/time.Second))
	v.SetDefault(session.SessionCookieLifetime, int64(d.SessionCookieLifetime/time.Second))
	v.SetDefault(session.SessionCookieDomain, d.SessionCookieDomain)
	v.SetDefault(session.SessionCookiePath, d.SessionCookiePath)
	v.SetDefault(session.SessionCookieSecure, d.SessionCookieSecure)
	v.SetDefault(session.SessionHttpOnly, d.SessionHttpOnly)
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
