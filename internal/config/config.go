package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server" envPrefix:"OFFLINE_PROXY_SERVER_"`
	Agent  AgentConfig  `yaml:"agent" envPrefix:"OFFLINE_PROXY_AGENT_"`
	Cache  CacheConfig  `yaml:"cache" envPrefix:"OFFLINE_PROXY_CACHE_"`
	Scope  ScopeConfig  `yaml:"scope"`
	Log    LogConfig    `yaml:"log" envPrefix:"OFFLINE_PROXY_LOG_"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port  int         `yaml:"port" env:"PORT"`
	HTTPS HTTPSConfig `yaml:"https" envPrefix:"HTTPS_"`
}

// HTTPSConfig controls TLS interception
type HTTPSConfig struct {
	Enabled         bool   `yaml:"enabled" env:"ENABLED"`
	CACertFile      string `yaml:"ca_cert_file" env:"CA_CERT_FILE"`
	CAKeyFile       string `yaml:"ca_key_file" env:"CA_KEY_FILE"`
	TransparentPort int    `yaml:"transparent_port" env:"TRANSPARENT_PORT"`
}

// AgentConfig describes the offline cache agent: which store it owns and what it precaches
type AgentConfig struct {
	Name     string   `yaml:"name" env:"NAME"`
	Version  string   `yaml:"version" env:"VERSION"`
	Origin   string   `yaml:"origin" env:"ORIGIN"`
	Precache []string `yaml:"precache" env:"PRECACHE" envSeparator:","`
	Fallback string   `yaml:"fallback" env:"FALLBACK"`
	// MaxStoredBody caps live responses kept in the store, in bytes (0: default, <0: no cap)
	MaxStoredBody int64 `yaml:"max_stored_body" env:"MAX_STORED_BODY"`
}

// CacheConfig contains store backend configuration
type CacheConfig struct {
	Backend string       `yaml:"backend" env:"BACKEND"` // "disk" or "sqlite"
	Folder  string       `yaml:"folder" env:"FOLDER"`
	Memory  MemoryConfig `yaml:"memory" envPrefix:"MEMORY_"`
}

// MemoryConfig configures the in-memory tier kept in front of the stores
type MemoryConfig struct {
	Enabled     bool  `yaml:"enabled" env:"ENABLED"`
	MaxCost     int64 `yaml:"max_cost" env:"MAX_COST"`
	NumCounters int64 `yaml:"num_counters" env:"NUM_COUNTERS"`
	BufferItems int64 `yaml:"buffer_items" env:"BUFFER_ITEMS"`
}

// ScopeConfig selects which requests are handed to the agent
type ScopeConfig struct {
	Mode  string      `yaml:"mode"` // "whitelist" or "blacklist"
	Rules []ScopeRule `yaml:"rules"`
}

// ScopeRule matches requests by URL prefix and method
type ScopeRule struct {
	BaseURI string   `yaml:"base_uri"`
	Methods []string `yaml:"methods"`
}

// LogConfig controls logrus output
type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"` // "text" or "json"
	File       string `yaml:"file" env:"FILE"`
	MaxSize    int    `yaml:"max_size" env:"MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// DefaultPrecache is the manifest used when the configuration does not list one
var DefaultPrecache = []string{
	"./",
	"./index.html",
	"./manifest.json",
	"./icon-192.png",
	"./icon-512.png",
}

// Load loads configuration from a YAML file, then applies environment overrides
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	config.SetDefaults()
	return &config, nil
}

// SetDefaults fills in every optional field left empty
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Agent.Name == "" {
		c.Agent.Name = "app-cache"
	}
	if c.Agent.Version == "" {
		c.Agent.Version = "v1"
	}
	if c.Agent.Precache == nil {
		c.Agent.Precache = append([]string(nil), DefaultPrecache...)
	}
	if c.Agent.Fallback == "" {
		c.Agent.Fallback = "./index.html"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "disk"
	}
	if c.Cache.Memory.MaxCost == 0 {
		c.Cache.Memory.MaxCost = 64 << 20
	}
	if c.Cache.Memory.NumCounters == 0 {
		c.Cache.Memory.NumCounters = 10000
	}
	if c.Cache.Memory.BufferItems == 0 {
		c.Cache.Memory.BufferItems = 64
	}
	if c.Scope.Mode == "" {
		c.Scope.Mode = "blacklist"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// StoreName returns the version-tagged name of the store the agent owns
func (c *Config) StoreName() string {
	return c.Agent.Name + "-" + c.Agent.Version
}

// OriginURL parses the agent origin
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Agent.Origin)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute URL, got: %q", c.Agent.Origin)
	}
	return u, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.HTTPS.TransparentPort < 0 || c.Server.HTTPS.TransparentPort > 65535 {
		return fmt.Errorf("invalid transparent HTTPS port: %d", c.Server.HTTPS.TransparentPort)
	}

	if (c.Server.HTTPS.CACertFile == "") != (c.Server.HTTPS.CAKeyFile == "") {
		return fmt.Errorf("ca_cert_file and ca_key_file must be set together")
	}

	if c.Agent.Name == "" || c.Agent.Version == "" {
		return fmt.Errorf("agent name and version are required")
	}

	if _, err := c.OriginURL(); err != nil {
		return fmt.Errorf("invalid agent origin: %w", err)
	}

	for _, p := range c.Agent.Precache {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("precache entries must not be empty")
		}
	}

	if c.Agent.Fallback == "" {
		return fmt.Errorf("agent fallback is required")
	}

	if c.Cache.Backend != "disk" && c.Cache.Backend != "sqlite" {
		return fmt.Errorf("cache backend must be 'disk' or 'sqlite', got: %s", c.Cache.Backend)
	}

	if c.Cache.Folder == "" {
		return fmt.Errorf("cache folder is required")
	}

	if c.Scope.Mode != "whitelist" && c.Scope.Mode != "blacklist" {
		return fmt.Errorf("scope mode must be 'whitelist' or 'blacklist', got: %s", c.Scope.Mode)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got: %s", c.Log.Format)
	}

	return nil
}
