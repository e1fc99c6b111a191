package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport modes
const (
	TransportArtNet = "artnet"
	TransportUSB    = "usb-dmx"
	TransportSACN   = "sacn"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	JWT      JWTConfig      `yaml:"jwt"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
	DMX      DMXConfig      `yaml:"dmx"`
	RDM      RDMConfig      `yaml:"rdm"`
}

// ServerConfig represents server identity
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents REST API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// AuthConfig represents the admin account accepted by the REST API
type AuthConfig struct {
	AdminEmail        string `yaml:"admin_email"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
}

// DatabaseConfig represents database configuration. An empty DSN disables
// persistence; the in-memory store is used instead.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig represents the event bridge configuration. An empty URL disables
// the bridge.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DMXConfig represents the output side: transport choice and tick cadence.
type DMXConfig struct {
	// Transport is one of artnet, usb-dmx, sacn (reserved).
	Transport string       `yaml:"transport"`
	TickRate  int          `yaml:"tick_rate"`
	ArtNet    ArtNetConfig `yaml:"artnet"`
	USB       USBConfig    `yaml:"usb"`
}

// ArtNetConfig represents the Art-Net transport configuration
type ArtNetConfig struct {
	// TargetIP may be a node's unicast address or a broadcast address.
	TargetIP    string        `yaml:"target_ip"`
	Port        int           `yaml:"port"`
	BindAddr    string        `yaml:"bind_addr"`
	Net         int           `yaml:"net"`
	SubNet      int           `yaml:"subnet"`
	MaxUniverse int           `yaml:"max_universe"`
	NodeTimeout time.Duration `yaml:"node_timeout"`
}

// USBConfig represents the USB-DMX serial transport configuration
type USBConfig struct {
	Device string `yaml:"device"`
}

// RDMConfig represents RDM discovery configuration
type RDMConfig struct {
	Enabled          bool          `yaml:"enabled"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	RDMOnly          bool          `yaml:"rdm_only"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
	if target := os.Getenv("ARTNET_TARGET_IP"); target != "" {
		c.DMX.ArtNet.TargetIP = target
	}
}

// setDefaults fills unset fields with working defaults.
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "lighting-controller"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.API.Port == 0 {
		c.API.Port = 8090
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = time.Hour
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 24 * time.Hour
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}

	if c.DMX.Transport == "" {
		c.DMX.Transport = TransportArtNet
	}
	// 40 Hz matches typical DMX refresh needs.
	if c.DMX.TickRate == 0 {
		c.DMX.TickRate = 40
	}
	if c.DMX.ArtNet.Port == 0 {
		c.DMX.ArtNet.Port = 6454
	}
	if c.DMX.ArtNet.BindAddr == "" {
		c.DMX.ArtNet.BindAddr = "0.0.0.0:6454"
	}
	if c.DMX.ArtNet.MaxUniverse == 0 {
		c.DMX.ArtNet.MaxUniverse = 15
	}
	if c.DMX.ArtNet.NodeTimeout == 0 {
		c.DMX.ArtNet.NodeTimeout = 5 * time.Minute
	}

	if c.RDM.PollInterval == 0 {
		c.RDM.PollInterval = 2 * time.Second
	}
	if c.RDM.DiscoveryTimeout == 0 {
		c.RDM.DiscoveryTimeout = 5 * time.Second
	}
}

// Validate rejects configurations the controller cannot start with.
func (c *Config) Validate() error {
	switch c.DMX.Transport {
	case TransportArtNet, TransportUSB, TransportSACN:
	default:
		return fmt.Errorf("invalid DMX transport %q", c.DMX.Transport)
	}

	if c.DMX.TickRate < 1 || c.DMX.TickRate > 250 {
		return fmt.Errorf("tick rate %d out of range 1..250", c.DMX.TickRate)
	}

	if c.DMX.Transport == TransportArtNet {
		if c.DMX.ArtNet.TargetIP == "" {
			return fmt.Errorf("artnet target IP is required")
		}
		if net.ParseIP(c.DMX.ArtNet.TargetIP) == nil {
			return fmt.Errorf("invalid artnet target IP %q", c.DMX.ArtNet.TargetIP)
		}
		if c.DMX.ArtNet.Net < 0 || c.DMX.ArtNet.Net > 127 {
			return fmt.Errorf("artnet net %d out of range 0..127", c.DMX.ArtNet.Net)
		}
		if c.DMX.ArtNet.SubNet < 0 || c.DMX.ArtNet.SubNet > 15 {
			return fmt.Errorf("artnet subnet %d out of range 0..15", c.DMX.ArtNet.SubNet)
		}
		if c.DMX.ArtNet.MaxUniverse < 0 || c.DMX.ArtNet.MaxUniverse > 15 {
			return fmt.Errorf("artnet max universe %d out of range 0..15", c.DMX.ArtNet.MaxUniverse)
		}
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (jwt.secret or JWT_SECRET)")
	}

	if c.RDM.Enabled {
		if c.RDM.PollInterval < 100*time.Millisecond || c.RDM.PollInterval > 10*time.Second {
			return fmt.Errorf("RDM poll interval %s out of range 0.1s..10s", c.RDM.PollInterval)
		}
		if c.RDM.DiscoveryTimeout < time.Second || c.RDM.DiscoveryTimeout > 30*time.Second {
			return fmt.Errorf("RDM discovery timeout %s out of range 1s..30s", c.RDM.DiscoveryTimeout)
		}
	}

	return nil
}

// TickInterval returns the tick period implied by the configured rate.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.DMX.TickRate)
}
