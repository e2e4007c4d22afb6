package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/datamanager/pkg/cache"
	"github.com/hashicorp-forge/datamanager/pkg/database"
	"github.com/hashicorp-forge/datamanager/pkg/datamanager"
)

const (
	// DefaultPath is the config file used when none is given.
	DefaultPath = "dm.hcl"

	// PathEnvVar overrides DefaultPath.
	PathEnvVar = "DM_CONFIG"

	// TokenEnvVar overrides the configured access token.
	TokenEnvVar = "DM_TOKEN"
)

// Config is the dm CLI configuration file.
type Config struct {
	// DataManager selects the API and how to talk to it.
	DataManager *DataManager `hcl:"datamanager,block"`

	// Cache enables persisted entry caches.
	Cache *Cache `hcl:"cache,block"`
}

// DataManager configures the API client.
type DataManager struct {
	URL         string `hcl:"url" json:"url"`
	AccessToken string `hcl:"access_token,optional" json:"access_token,omitempty"`
	ClientID    string `hcl:"client_id,optional" json:"client_id,omitempty"`
	Timeout     string `hcl:"timeout,optional" json:"timeout,omitempty"`
	TLSVerify   *bool  `hcl:"tls_verify,optional" json:"tls_verify,omitempty"`
}

// Cache configures the local cache database.
type Cache struct {
	// Path is the SQLite database file.
	Path string `hcl:"path" json:"path"`

	// MaxAge is the age after which cached entries are reloaded, for
	// example "10m".
	MaxAge string `hcl:"max_age,optional" json:"max_age,omitempty"`
}

// Load reads the config file at path from fs. The access token is taken
// from DM_TOKEN when that is set.
func Load(fs afero.Fs, path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}

	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := hclsimple.Decode(path, src, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	if cfg.DataManager == nil {
		return nil, fmt.Errorf("datamanager block is required")
	}

	if token, ok := os.LookupEnv(TokenEnvVar); ok && token != "" {
		cfg.DataManager.AccessToken = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c.DataManager,
		validation.Field(&c.DataManager.URL, validation.Required),
		validation.Field(&c.DataManager.Timeout, validation.By(duration)),
	); err != nil {
		return fmt.Errorf("datamanager: %w", err)
	}

	if c.Cache != nil {
		if err := validation.ValidateStruct(c.Cache,
			validation.Field(&c.Cache.Path, validation.Required),
			validation.Field(&c.Cache.MaxAge, validation.By(duration)),
		); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

func duration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return validation.NewError("validation_duration", "must be a duration such as 30s or 10m")
	}
	if d < 0 {
		return validation.NewError("validation_duration", "must not be negative")
	}
	return nil
}

// ClientConfig returns the SDK configuration.
func (c *Config) ClientConfig(logger hclog.Logger) datamanager.Config {
	dm := c.DataManager
	cfg := datamanager.Config{
		URL:         dm.URL,
		AccessToken: dm.AccessToken,
		ClientID:    dm.ClientID,
		TLSVerify:   dm.TLSVerify,
		Logger:      logger,
	}
	// Validate has already checked the format.
	cfg.Timeout, _ = time.ParseDuration(dm.Timeout)
	return cfg
}

// CacheMaxAge returns the configured max age, or cache.DefaultMaxAge.
func (c *Config) CacheMaxAge() time.Duration {
	if c.Cache == nil || c.Cache.MaxAge == "" {
		return cache.DefaultMaxAge
	}
	d, _ := time.ParseDuration(c.Cache.MaxAge)
	return d
}

// DatabaseConfig returns the cache database configuration. ok is false
// when no cache block is configured.
func (c *Config) DatabaseConfig() (cfg database.Config, ok bool) {
	if c.Cache == nil {
		return database.Config{}, false
	}
	return database.Config{Path: c.Cache.Path}, true
}
