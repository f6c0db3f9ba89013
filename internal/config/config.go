// ABOUTME: Configuration loading and parsing for fundgate
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/2389/fundgate/internal/brc29"
)

// Registry backends.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
	BackendS3   = "s3"
)

// Config represents the complete fundgate configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Registry RegistryConfig `yaml:"registry" toml:"registry"`
	Wallet   WalletConfig   `yaml:"wallet" toml:"wallet"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds the output database location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// RegistryConfig selects and configures the tag registry backend
type RegistryConfig struct {
	Backend string   `yaml:"backend" toml:"backend"`
	Path    string   `yaml:"path" toml:"path"`
	S3      S3Config `yaml:"s3" toml:"s3"`

	// LockTimeout bounds how long the bolt backend waits for its file lock.
	LockTimeout    time.Duration `yaml:"-" toml:"-"`
	LockTimeoutRaw string        `yaml:"lock_timeout" toml:"lock_timeout"`
}

// S3Config locates the registry object
type S3Config struct {
	Bucket string `yaml:"bucket" toml:"bucket"`
	Key    string `yaml:"key" toml:"key"`
	Region string `yaml:"region" toml:"region"`
}

// WalletConfig holds wallet session and funding configuration
type WalletConfig struct {
	KeyFile                string `yaml:"key_file" toml:"key_file"`
	PrivateKey             string `yaml:"private_key" toml:"private_key"`
	KeyPassphrase          string `yaml:"key_passphrase" toml:"key_passphrase"`
	Network                string `yaml:"network" toml:"network"`
	DefaultBasket          string `yaml:"default_basket" toml:"default_basket"`
	DefaultRequestSatoshis int64  `yaml:"default_request_satoshis" toml:"default_request_satoshis"`
	DefaultMemo            string `yaml:"default_memo" toml:"default_memo"`
	RequireKnownRequest    bool   `yaml:"require_known_request" toml:"require_known_request"`

	RequestTTL    time.Duration `yaml:"-" toml:"-"`
	RequestTTLRaw string        `yaml:"request_ttl" toml:"request_ttl"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// envOverrides are process environment variables that win over the file.
type envOverrides struct {
	PrivateKey   string `envconfig:"SERVER_PRIVATE_KEY"`
	DBPath       string `envconfig:"FUNDGATE_DB_PATH"`
	RegistryPath string `envconfig:"FUNDGATE_REGISTRY_PATH"`
	HTTPAddr     string `envconfig:"FUNDGATE_HTTP_ADDR"`
	JWTSecret    string `envconfig:"FUNDGATE_JWT_SECRET"`
}

// Default returns the configuration used when no file is present. Paths are
// relative to the working directory.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Database: DatabaseConfig{Path: "fundgate.db"},
		Registry: RegistryConfig{
			Backend:        BackendFile,
			Path:           ".identity-registry.json",
			LockTimeoutRaw: "5s",
		},
		Wallet: WalletConfig{
			KeyFile:                ".server-wallet.json",
			Network:                "mainnet",
			DefaultBasket:          "default",
			DefaultRequestSatoshis: 1000,
			DefaultMemo:            "Server wallet funding",
			RequestTTLRaw:          "24h",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns FUNDGATE_CONFIG when set, else the per-user location.
func DefaultPath() string {
	if p := os.Getenv("FUNDGATE_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "fundgate.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "fundgate", "fundgate.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, then
// environment overrides are applied. Files ending in .toml are decoded as
// TOML, everything else as YAML. Unset keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. Environment overrides apply in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if err := applyEnv(c); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	if env.PrivateKey != "" {
		cfg.Wallet.PrivateKey = env.PrivateKey
	}
	if env.DBPath != "" {
		cfg.Database.Path = env.DBPath
	}
	if env.RegistryPath != "" {
		cfg.Registry.Path = env.RegistryPath
	}
	if env.HTTPAddr != "" {
		cfg.Server.HTTPAddr = env.HTTPAddr
	}
	if env.JWTSecret != "" {
		cfg.Auth.JWTSecret = env.JWTSecret
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Registry.Backend {
	case BackendFile, BackendBolt:
		if c.Registry.Path == "" {
			return fmt.Errorf("registry.path is required for the %s backend", c.Registry.Backend)
		}
	case BackendS3:
		if c.Registry.S3.Bucket == "" || c.Registry.S3.Key == "" {
			return fmt.Errorf("registry.s3.bucket and registry.s3.key are required for the s3 backend")
		}
	default:
		return fmt.Errorf("registry.backend %q is not one of file, bolt, s3", c.Registry.Backend)
	}

	if _, err := brc29.NetworkParams(c.Wallet.Network); err != nil || c.Wallet.Network == "" {
		return fmt.Errorf("wallet.network %q is not one of mainnet, testnet, regtest", c.Wallet.Network)
	}
	if c.Wallet.PrivateKey == "" && c.Wallet.KeyFile == "" {
		return fmt.Errorf("wallet.key_file is required unless wallet.private_key is set")
	}
	if c.Wallet.PrivateKey != "" {
		if b, err := hex.DecodeString(c.Wallet.PrivateKey); err != nil || len(b) != 32 {
			return fmt.Errorf("wallet.private_key must be 64 hex characters")
		}
	}
	if c.Wallet.DefaultRequestSatoshis <= 0 {
		return fmt.Errorf("wallet.default_request_satoshis must be positive")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Wallet.RequestTTLRaw != "" {
		cfg.Wallet.RequestTTL, err = time.ParseDuration(cfg.Wallet.RequestTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing request_ttl %q: %w", cfg.Wallet.RequestTTLRaw, err)
		}
		if cfg.Wallet.RequestTTL <= 0 {
			return fmt.Errorf("request_ttl must be positive, got %q", cfg.Wallet.RequestTTLRaw)
		}
	}

	if cfg.Registry.LockTimeoutRaw != "" {
		cfg.Registry.LockTimeout, err = time.ParseDuration(cfg.Registry.LockTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing lock_timeout %q: %w", cfg.Registry.LockTimeoutRaw, err)
		}
	}

	return nil
}
