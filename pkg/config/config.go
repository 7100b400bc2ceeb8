package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/ghodss/yaml"
)

type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	API         APIConfig         `json:"api"`
	Catalog     CatalogConfig     `json:"catalog"`
	Session     SessionConfig     `json:"session"`
	AddressPool AddressPoolConfig `json:"address_pool"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	Assessor    AssessorConfig    `json:"assessor"`
}

type LoggingConfig struct {
	Level slog.Level `json:"level"`
	// json, text or pretty
	Format string `json:"format"`
}

type CatalogConfig struct {
	// Built-in server list is used if empty
	File string `json:"file"`
}

type SessionConfig struct {
	HandshakeDelayMs int `json:"handshake_delay_ms,omitempty"`
	SettleDelayMs    int `json:"settle_delay_ms,omitempty"`
	SampleIntervalMs int `json:"sample_interval_ms,omitempty"`
	BufferCapacity   int `json:"buffer_capacity,omitempty"`
}

const (
	AddressPoolStatic = "static"
	AddressPoolSubnet = "subnet"
	AddressPoolSTUN   = "stun"
	AddressPoolRoute  = "route"
)

type AddressPoolConfig struct {
	// static, subnet, stun or route; static with built-in addresses if empty
	Mode          string   `json:"mode"`
	Addresses     []string `json:"addresses,omitempty"`
	Subnet        string   `json:"subnet,omitempty"`
	STUNServers   []string `json:"stun_servers,omitempty"`
	STUNTimeoutMs int      `json:"stun_timeout_ms,omitempty"`
}

const (
	GeneratorRandom    = "random"
	GeneratorLink      = "link"
	GeneratorWireguard = "wireguard"
)

type TelemetryConfig struct {
	// random, link or wireguard; random if empty
	Generator string `json:"generator"`
	// Network interface for link and wireguard generators; link defaults to the default route interface
	Interface   string  `json:"interface,omitempty"`
	DownloadMin float64 `json:"download_min,omitempty"`
	DownloadMax float64 `json:"download_max,omitempty"`
	UploadMin   float64 `json:"upload_min,omitempty"`
	UploadMax   float64 `json:"upload_max,omitempty"`
}

type AssessorConfig struct {
	// Assessment backend is disabled if empty
	URL    string `json:"url"`
	APIKey string `json:"api_key,omitempty"`
	// Look up the API key in the system keyring under this user if set
	KeyringUser string `json:"keyring_user,omitempty"`
	// No timeout if zero
	TimeoutMs int `json:"timeout_ms,omitempty"`
	// Dump backend requests and responses to the log output
	Debug bool `json:"debug,omitempty"`
}

type APIConfig struct {
	ServerName string         `json:"server_name"`
	Listen     []ListenConfig `json:"listen"`
	Admins     []AdminRecord  `json:"admins"`
	Clients    []ClientRecord `json:"clients"`
}

type AdminRecord struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ClientRecord struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ListenConfig struct {
	// host:port, or unix:/path/to/socket
	Addr string `json:"addr"`
	TLS  *struct {
		Static *struct {
			Crt string `json:"crt"`
			Key string `json:"key"`
		}
		Acme *struct {
			CacheDir string   `json:"cache_dir"`
			Domains  []string `json:"domains"`
		}
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: slog.LevelInfo, Format: "text"},
		API: APIConfig{
			ServerName: "vpnshield",
			Listen:     []ListenConfig{{Addr: "127.0.0.1:7400"}},
		},
	}
	ensureAdmins(cfg)
	return cfg
}

func Load(configPath string) (*Config, error) {
	var cfg Config

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	switch path.Ext(configPath) {
	case ".yaml", ".yml", ".json":
		// ghodss/yaml accepts both and honours json tags
		if err = yaml.Unmarshal(configData, &cfg); err != nil {
			return nil, fmt.Errorf("error unmarshalling config data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path.Ext(configPath))
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	ensureAdmins(&cfg)

	if len(cfg.API.Clients) == 0 {
		slog.Info("clients are not configured, control API will be accessible without authentication")
	}

	return &cfg, nil
}

func ensureAdmins(cfg *Config) {
	if len(cfg.API.Admins) > 0 {
		return
	}

	var pwdBytes [16]byte
	_, _ = rand.Read(pwdBytes[:])
	pwd := hex.EncodeToString(pwdBytes[:])

	cfg.API.Admins = []AdminRecord{{
		Username: "admin",
		Password: pwd,
	}}
	slog.Warn("admin accounts are not configured, use random password to access dashboard",
		"password", pwd)
}

func (s *Config) Validate() error {
	switch s.AddressPool.Mode {
	case "", AddressPoolStatic, AddressPoolSubnet, AddressPoolSTUN, AddressPoolRoute:
	default:
		return fmt.Errorf("unsupported address pool mode: %s", s.AddressPool.Mode)
	}
	if s.AddressPool.Mode == AddressPoolSubnet && s.AddressPool.Subnet == "" {
		return fmt.Errorf("address_pool.subnet is required in subnet mode")
	}
	if s.AddressPool.Mode == AddressPoolSTUN && len(s.AddressPool.STUNServers) == 0 {
		return fmt.Errorf("address_pool.stun_servers is required in stun mode")
	}

	switch s.Telemetry.Generator {
	case "", GeneratorRandom:
	case GeneratorLink:
	case GeneratorWireguard:
		if s.Telemetry.Interface == "" {
			return fmt.Errorf("telemetry.interface is required for %s generator", s.Telemetry.Generator)
		}
	default:
		return fmt.Errorf("unsupported telemetry generator: %s", s.Telemetry.Generator)
	}

	if s.Session.BufferCapacity < 0 {
		return fmt.Errorf("session.buffer_capacity must not be negative")
	}

	return nil
}

func (s SessionConfig) GetHandshakeDelay() time.Duration {
	if s.HandshakeDelayMs <= 0 {
		return 2500 * time.Millisecond
	}
	return time.Duration(s.HandshakeDelayMs) * time.Millisecond
}

func (s SessionConfig) GetSettleDelay() time.Duration {
	if s.SettleDelayMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(s.SettleDelayMs) * time.Millisecond
}

func (s SessionConfig) GetSampleInterval() time.Duration {
	if s.SampleIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(s.SampleIntervalMs) * time.Millisecond
}

func (s SessionConfig) GetBufferCapacity() int {
	if s.BufferCapacity == 0 {
		return 20
	}
	return s.BufferCapacity
}

func (s AddressPoolConfig) GetSTUNTimeout() time.Duration {
	if s.STUNTimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(s.STUNTimeoutMs) * time.Millisecond
}

// GetRanges returns download and upload ranges in Mbps for the random generator.
func (s TelemetryConfig) GetRanges() (downMin, downMax, upMin, upMax float64) {
	downMin, downMax, upMin, upMax = 100, 150, 20, 50
	if s.DownloadMax > 0 {
		downMin, downMax = s.DownloadMin, s.DownloadMax
	}
	if s.UploadMax > 0 {
		upMin, upMax = s.UploadMin, s.UploadMax
	}
	return
}

func (s AssessorConfig) GetTimeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
