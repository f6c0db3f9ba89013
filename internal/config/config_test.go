// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, env overrides and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SERVER_PRIVATE_KEY", "FUNDGATE_DB_PATH", "FUNDGATE_REGISTRY_PATH", "FUNDGATE_HTTP_ADDR", "FUNDGATE_JWT_SECRET"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "fundgate.yaml", `
server:
  http_addr: "0.0.0.0:9090"

database:
  path: "./test.db"

registry:
  backend: bolt
  path: "./registry.bolt"
  lock_timeout: "2s"

wallet:
  key_file: "./wallet.json"
  network: testnet
  default_basket: savings
  default_request_satoshis: 5000
  default_memo: "Fund me"
  request_ttl: "1h"
  require_known_request: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9090")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Registry.Backend != BackendBolt || cfg.Registry.LockTimeout != 2*time.Second {
		t.Errorf("Registry = %+v, want bolt with 2s lock timeout", cfg.Registry)
	}
	if cfg.Wallet.Network != "testnet" {
		t.Errorf("Wallet.Network = %q, want testnet", cfg.Wallet.Network)
	}
	if cfg.Wallet.DefaultBasket != "savings" || cfg.Wallet.DefaultRequestSatoshis != 5000 {
		t.Errorf("Wallet = %+v", cfg.Wallet)
	}
	if cfg.Wallet.RequestTTL != time.Hour {
		t.Errorf("Wallet.RequestTTL = %v, want 1h", cfg.Wallet.RequestTTL)
	}
	if !cfg.Wallet.RequireKnownRequest {
		t.Error("Wallet.RequireKnownRequest = false, want true")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "fundgate.yaml", `
server:
  http_addr: "127.0.0.1:7000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "fundgate.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.Registry.Backend != BackendFile || cfg.Registry.Path != ".identity-registry.json" {
		t.Errorf("Registry = %+v, want file default", cfg.Registry)
	}
	if cfg.Wallet.RequestTTL != 24*time.Hour {
		t.Errorf("Wallet.RequestTTL = %v, want 24h", cfg.Wallet.RequestTTL)
	}
	if cfg.Wallet.DefaultRequestSatoshis != 1000 {
		t.Errorf("Wallet.DefaultRequestSatoshis = %d, want 1000", cfg.Wallet.DefaultRequestSatoshis)
	}
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "fundgate.toml", `
[server]
http_addr = "127.0.0.1:8181"

[registry]
backend = "s3"

[registry.s3]
bucket = "tags"
key = "registry.json"
region = "us-west-2"

[wallet]
network = "regtest"
request_ttl = "30m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8181" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Registry.S3 != (S3Config{Bucket: "tags", Key: "registry.json", Region: "us-west-2"}) {
		t.Errorf("Registry.S3 = %+v", cfg.Registry.S3)
	}
	if cfg.Wallet.Network != "regtest" || cfg.Wallet.RequestTTL != 30*time.Minute {
		t.Errorf("Wallet = %+v", cfg.Wallet)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_JWT_SECRET", "expanded-secret-that-is-32-bytes!")
	path := writeConfig(t, "fundgate.yaml", `
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret-that-is-32-bytes!" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	key := strings.Repeat("ab", 32)
	t.Setenv("SERVER_PRIVATE_KEY", key)
	t.Setenv("FUNDGATE_DB_PATH", "/tmp/override.db")
	t.Setenv("FUNDGATE_REGISTRY_PATH", "/tmp/registry.json")

	path := writeConfig(t, "fundgate.yaml", `
database:
  path: "./file.db"
wallet:
  private_key: ""
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Wallet.PrivateKey != key {
		t.Errorf("Wallet.PrivateKey = %q, want env value", cfg.Wallet.PrivateKey)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env value", cfg.Database.Path)
	}
	if cfg.Registry.Path != "/tmp/registry.json" {
		t.Errorf("Registry.Path = %q, want env value", cfg.Registry.Path)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
	if cfg.Wallet.RequestTTL != 24*time.Hour {
		t.Errorf("Wallet.RequestTTL = %v, want parsed default", cfg.Wallet.RequestTTL)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "server: [", "parsing config file"},
		{"bad duration", "wallet:\n  request_ttl: soon\n", "parsing request_ttl"},
		{"negative ttl", "wallet:\n  request_ttl: -1h\n", "request_ttl must be positive"},
		{"unknown backend", "registry:\n  backend: redis\n", "registry.backend"},
		{"s3 without bucket", "registry:\n  backend: s3\n", "registry.s3.bucket"},
		{"bad network", "wallet:\n  network: signet\n", "wallet.network"},
		{"empty network", "wallet:\n  network: \"\"\n", "wallet.network"},
		{"bad private key", "wallet:\n  private_key: xyz\n", "wallet.private_key"},
		{"zero default amount", "wallet:\n  default_request_satoshis: 0\n", "default_request_satoshis"},
		{"short jwt secret", "auth:\n  jwt_secret: short\n", "auth.jwt_secret"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"empty http addr", "server:\n  http_addr: \"\"\n", "server.http_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "fundgate.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading config file", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("FUNDGATE_CONFIG", "/etc/fundgate.yaml")
	if got := DefaultPath(); got != "/etc/fundgate.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv("FUNDGATE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "fundgate", "fundgate.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}
}
