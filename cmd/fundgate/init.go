// ABOUTME: Interactive `fundgate init` command writing a starter config file
// ABOUTME: Prompts for addresses, storage backends, wallet and auth settings

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/fundgate/internal/config"
)

// getDataPath returns the fundgate data directory.
// Priority: XDG_DATA_HOME/fundgate > ~/.local/share/fundgate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "fundgate")
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "fundgate configuration setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out)

	dataDir := getDataPath()
	cfg := config.Default()

	outputFile := prompt(reader, out, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	cfg.Server.HTTPAddr = prompt(reader, out, "HTTP address", cfg.Server.HTTPAddr)

	fmt.Fprintln(out, "\n--- Storage Configuration ---")
	cfg.Database.Path = prompt(reader, out, "SQLite database path", filepath.Join(dataDir, "fundgate.db"))
	cfg.Registry.Backend = prompt(reader, out, "Registry backend (file/bolt/s3)", config.BackendFile)
	switch cfg.Registry.Backend {
	case config.BackendS3:
		cfg.Registry.Path = ""
		cfg.Registry.S3.Bucket = prompt(reader, out, "S3 bucket", "")
		cfg.Registry.S3.Key = prompt(reader, out, "S3 object key", "identity-registry.json")
		cfg.Registry.S3.Region = prompt(reader, out, "S3 region (empty for SDK default)", "")
	case config.BackendBolt:
		cfg.Registry.Path = prompt(reader, out, "Registry database path", filepath.Join(dataDir, "registry.db"))
	default:
		cfg.Registry.Path = prompt(reader, out, "Registry file path", filepath.Join(dataDir, "identity-registry.json"))
	}

	fmt.Fprintln(out, "\n--- Wallet Configuration ---")
	cfg.Wallet.KeyFile = prompt(reader, out, "Wallet key file", filepath.Join(dataDir, "server-wallet.json"))
	if isYes(prompt(reader, out, "Encrypt the key file with FUNDGATE_KEY_PASSPHRASE?", "no")) {
		cfg.Wallet.KeyPassphrase = "${FUNDGATE_KEY_PASSPHRASE}"
	}
	cfg.Wallet.Network = prompt(reader, out, "Network (mainnet/testnet/regtest)", cfg.Wallet.Network)
	cfg.Wallet.RequestTTLRaw = prompt(reader, out, "Payment request lifetime", cfg.Wallet.RequestTTLRaw)

	fmt.Fprintln(out, "\n--- Auth Configuration ---")
	if isYes(prompt(reader, out, "Require operator tokens for wallet actions?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return fmt.Errorf("generating jwt secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	cfg.Logging.Level = prompt(reader, out, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(reader, out, "Log format (text/json)", cfg.Logging.Format)

	// Catch bad answers before they land on disk. The passphrase placeholder
	// is checked as written.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid answers: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	content := "# fundgate configuration\n# Generated by fundgate init\n\n" + string(data)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file may hold the jwt secret.
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  fundgate serve")
	if cfg.Auth.JWTSecret != "" {
		fmt.Fprintln(out, "\nTo mint an operator token:")
		fmt.Fprintln(out, "  fundgate token -subject <name>")
	}
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
