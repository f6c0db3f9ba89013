// ABOUTME: Entry point for the fundgate server and its operator commands
// ABOUTME: serve runs the HTTP API; init, health and token help operate it

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/fundgate/internal/auth"
	"github.com/2389/fundgate/internal/config"
	"github.com/2389/fundgate/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __                 _             _
 / _|_   _ _ __   __| | __ _  __ _| |_ ___
| |_| | | | '_ \ / _' |/ _' |/ _' | __/ _ \
|  _| |_| | | | | (_| | (_| | (_| | ||  __/
|_|  \__,_|_| |_|\__,_|\__, |\__,_|\__\___|
                       |___/
`

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: fundgate <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                          Start the HTTP server")
	fmt.Fprintln(w, "  init                           Create a new config file interactively")
	fmt.Fprintln(w, "  health [-ready]                Check server health")
	fmt.Fprintln(w, "  token -subject NAME [-ttl D]   Mint an operator token")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "health":
		err = runHealth(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Registry:  %s ", cfg.Registry.Backend)
	if cfg.Registry.Backend == config.BackendS3 {
		gray.Printf("(s3://%s/%s)\n", cfg.Registry.S3.Bucket, cfg.Registry.S3.Key)
	} else {
		gray.Printf("(%s)\n", cfg.Registry.Path)
	}
	green.Print("    ▶ ")
	fmt.Printf("Network:   %s\n", cfg.Wallet.Network)
	if cfg.Wallet.PrivateKey != "" {
		green.Print("    ▶ ")
		fmt.Print("Wallet:    ")
		yellow.Println("key supplied by configuration")
	}
	if cfg.Auth.JWTSecret == "" {
		green.Print("    ▶ ")
		fmt.Print("Auth:      ")
		yellow.Println("disabled")
	}

	fmt.Println()

	logger.Info("starting fundgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	ready := fs.Bool("ready", false, "check readiness instead of liveness")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadOrDefault(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	path := "/health"
	if *ready {
		path = "/health/ready"
	}
	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println("healthy")
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "operator name placed in the token subject")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}

	cfg, err := config.LoadOrDefault(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured; tokens would not be checked")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}

	fmt.Fprintln(out, token)
	return nil
}
