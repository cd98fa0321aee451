// ABOUTME: Entry point for the copilot-gateway server and its operator commands
// ABOUTME: Normalizes chat-agent requests and forwards them to the agent runtime

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/copilot-gateway/internal/config"
	"github.com/2389/copilot-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

// configFlag overrides getConfigPath when set via --config.
var configFlag string

const banner = `
                 _ _       _                     _
  ___ ___  _ __ (_) | ___ | |_       __ _  __ _| |_ _____      ____ _ _   _
 / __/ _ \| '_ \| | |/ _ \| __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| (_) | |_) | | | (_) | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___\___/| .__/|_|_|\___/ \__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
          |_|                       |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: --config flag > COPILOT_GATEWAY_CONFIG env var >
// XDG_CONFIG_HOME/copilot-gateway/gateway.yaml > ~/.config/copilot-gateway/gateway.yaml
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if envPath := os.Getenv("COPILOT_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "copilot-gateway", "gateway.yaml")
}

// getDataPath returns the path to the copilot-gateway data directory.
// Priority: XDG_DATA_HOME/copilot-gateway > ~/.local/share/copilot-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "copilot-gateway")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "copilot-gateway",
		Short:         "Normalize chat-agent requests and forward them to the agent runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to gateway config (default: ~/.config/copilot-gateway/gateway.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(healthCmd())
	root.AddCommand(agentsCmd())
	root.AddCommand(requestsCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s%s\n", cfg.Server.HTTPAddr, cfg.Server.Route)
	green.Print("    ▶ ")
	fmt.Printf("Uploads:   %s\n", cfg.Uploader.Endpoint)
	green.Print("    ▶ ")
	fmt.Printf("Runtime:   %s ", cfg.Runtime.Endpoint)
	gray.Printf("(%s)\n", cfg.Runtime.ResourceID)

	if cfg.Auth.JWTSecret == "" {
		green.Print("    ▶ ")
		fmt.Print("Auth:      ")
		yellow.Println("disabled")
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting copilot-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"route", cfg.Server.Route,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
