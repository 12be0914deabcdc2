// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Binding       BindingConfig       `mapstructure:"binding" yaml:"binding"`
	Dpop          DpopConfig          `mapstructure:"dpop" yaml:"dpop"`
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
	Cache         CacheConfig         `mapstructure:"cache" yaml:"cache"`
	Authenticator AuthenticatorConfig `mapstructure:"authenticator" yaml:"authenticator"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// BindingConfig tunes the key binding ceremony.
type BindingConfig struct {
	AudienceID         string        `mapstructure:"audience_id" yaml:"audience_id"`
	SaltLength         int           `mapstructure:"salt_length" yaml:"salt_length"`
	EncryptBindingID   bool          `mapstructure:"encrypt_binding_id" yaml:"encrypt_binding_id"`
	TransactionTTL     time.Duration `mapstructure:"transaction_ttl" yaml:"transaction_ttl"`
	CertExpiryOverride time.Duration `mapstructure:"cert_expiry_override" yaml:"cert_expiry_override"`
	AuthFactorTypes    []string      `mapstructure:"auth_factor_types" yaml:"auth_factor_types"`
}

// DpopConfig tunes DPoP proof validation.
type DpopConfig struct {
	ClockSkew     time.Duration `mapstructure:"clock_skew" yaml:"clock_skew"`
	ReplayTTL     time.Duration `mapstructure:"replay_ttl" yaml:"replay_ttl"`
	Algs          []string      `mapstructure:"algs" yaml:"algs"`
	ResourcePaths []string      `mapstructure:"resource_paths" yaml:"resource_paths"`
}

// StoreConfig locates the public key registry database.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// CacheConfig selects the cache backend. Backend is "memory" or "redis".
type CacheConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`

	RedisAddr      string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisUsername  string `mapstructure:"redis_username" yaml:"redis_username"`
	RedisPassword  string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix" yaml:"redis_key_prefix"`
}

// AuthenticatorConfig locates the external authenticator service.
type AuthenticatorConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8088,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Binding: BindingConfig{
			AudienceID:       "esignet-binding",
			SaltLength:       16,
			EncryptBindingID: true,
			TransactionTTL:   10 * time.Minute,
			AuthFactorTypes:  []string{"WLA"},
		},
		Dpop: DpopConfig{
			ClockSkew:     5 * time.Minute,
			ReplayTTL:     5 * time.Minute,
			Algs:          []string{"ES256", "RS256"},
			ResourcePaths: []string{"/v1/wallet"},
		},
		Store: StoreConfig{
			DSN: "esignet-binding.db",
		},
		Cache: CacheConfig{
			Backend:        "memory",
			RedisKeyPrefix: "esignet:",
		},
		Authenticator: AuthenticatorConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads the configuration file at path, merged over defaults and
// ESIGNET_* environment variables. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ESIGNET")
	v.AutomaticEnv()

	cfg := Default()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Binding.AudienceID == "" {
		return fmt.Errorf("binding audience_id must not be empty")
	}
	if c.Binding.SaltLength <= 0 {
		return fmt.Errorf("binding salt_length must be positive")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store dsn must not be empty")
	}
	if c.Authenticator.BaseURL == "" {
		return fmt.Errorf("authenticator base_url must not be empty")
	}
	return nil
}
