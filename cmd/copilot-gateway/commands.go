// ABOUTME: Operator subcommands: init, token, health, agents, requests
// ABOUTME: Client commands talk to a running gateway over its HTTP API

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/copilot-gateway/internal/auth"
	"github.com/2389/copilot-gateway/internal/config"
	"github.com/2389/copilot-gateway/internal/gateway"
	"github.com/2389/copilot-gateway/internal/registry"
)

// cliTokenSubject identifies tokens the CLI mints for its own API calls.
const cliTokenSubject = "copilot-gateway-cli"

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			token, err := mintToken(cfg, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "caller identifier stored in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func mintToken(cfg *config.Config, subject string, ttl time.Duration) (string, error) {
	if cfg.Auth.JWTSecret == "" {
		return "", fmt.Errorf("auth.jwt_secret is not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("subject cannot be empty")
	}
	if ttl < 0 {
		return "", fmt.Errorf("ttl cannot be negative")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return token, nil
}

// gatewayURL returns the base URL for reaching a local gateway.
func gatewayURL(cfg *config.Config) string {
	addr := cfg.Server.HTTPAddr
	if addr == "" {
		addr = "localhost:80"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// apiGet performs a GET against the gateway, attaching a short-lived token
// when the gateway requires one.
func apiGet(ctx context.Context, cfg *config.Config, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL(cfg)+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if cfg.Auth.JWTSecret != "" {
		token, err := mintToken(cfg, cliTokenSubject, 5*time.Minute)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return http.DefaultClient.Do(req)
}

// decodeAPI decodes a JSON response body into v, turning error bodies into errors.
func decodeAPI(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runHealth(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := apiGet(ctx, cfg, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, "healthy")
	return nil
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents and workflows registered with the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgents(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runAgents(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := apiGet(ctx, cfg, "/api/agents")
	if err != nil {
		return fmt.Errorf("agents request failed: %w", err)
	}
	var agents []registry.Agent
	if err := decodeAPI(resp, &agents); err != nil {
		return err
	}

	resp, err = apiGet(ctx, cfg, "/api/workflows")
	if err != nil {
		return fmt.Errorf("workflows request failed: %w", err)
	}
	var workflows []registry.Workflow
	if err := decodeAPI(resp, &workflows); err != nil {
		return err
	}

	printRegistry(out, cfg.Runtime.ResourceID, agents, workflows)
	return nil
}

func printRegistry(out io.Writer, resourceID string, agents []registry.Agent, workflows []registry.Workflow) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintln(out, "Agents")
	for _, a := range agents {
		marker := "  "
		if a.Name == resourceID {
			marker = "* "
		}
		fmt.Fprintf(out, "  %s%s", marker, a.Name)
		if a.Description != "" {
			gray.Fprintf(out, "  %s", a.Description)
		}
		fmt.Fprintln(out)
	}

	if len(workflows) == 0 {
		return
	}
	fmt.Fprintln(out)
	cyan.Fprintln(out, "Workflows")
	for _, w := range workflows {
		fmt.Fprintf(out, "    %s: %s\n", w.Name, strings.Join(w.Agents, " -> "))
	}
}

func requestsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Show recent requests handled by the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRequests(cmd.Context(), cmd.OutOrStdout(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of requests to show (max 100)")
	return cmd
}

func runRequests(ctx context.Context, out io.Writer, limit int) error {
	if limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := apiGet(ctx, cfg, "/api/requests?limit="+strconv.Itoa(limit))
	if err != nil {
		return fmt.Errorf("requests query failed: %w", err)
	}
	var rows []gateway.RequestInfoResponse
	if err := decodeAPI(resp, &rows); err != nil {
		return err
	}

	printRequests(out, rows)
	return nil
}

func printRequests(out io.Writer, rows []gateway.RequestInfoResponse) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no requests recorded")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tUSER\tBRANCH\tMSGS\tUPLOADS\tSTATUS\tRUNTIME\tDURATION")
	for _, r := range rows {
		runtimeStatus := "-"
		if r.RuntimeStatus != 0 {
			runtimeStatus = strconv.Itoa(r.RuntimeStatus)
		}
		branch := r.Branch
		if branch == "" {
			branch = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\t%dms\n",
			r.CreatedAt, r.UserID, branch, r.MessageCount,
			r.Uploaded, r.Uploaded+r.Skipped, r.Status, runtimeStatus, r.DurationMs)
	}
	_ = tw.Flush()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
		},
	}
}

// initAnswers holds everything runInit asks for.
type initAnswers struct {
	HTTPAddr    string
	Route       string
	UploaderURL string
	RuntimeURL  string
	ResourceID  string
	DBPath      string
	JWTSecret   string
	Tailscale   bool
	TSHostname  string
	TSAuthKey   string
	TSEphemeral bool
	TSFunnel    bool
	LogLevel    string
	LogFormat   string
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit(reader *bufio.Reader, out io.Writer) error {
	fmt.Fprintln(out, "copilot-gateway configuration setup")
	fmt.Fprintln(out, "===================================")
	fmt.Fprintln(out)

	defaultDBPath := filepath.Join(getDataPath(), "gateway.db")

	// Output filename
	outputFile := prompt(reader, out, "Config file path", getConfigPath())

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", "localhost:8080")
	a.Route = prompt(reader, out, "Gateway route", "/copilotkit")

	fmt.Fprintln(out, "\n--- Upstream Services ---")
	a.UploaderURL = prompt(reader, out, "Attachment upload endpoint", "http://localhost:9000/upload")
	a.RuntimeURL = prompt(reader, out, "Agent runtime endpoint", "http://localhost:4111/copilotkit")
	a.ResourceID = prompt(reader, out, "Runtime resource agent", "pdfQuestionAgent")

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	a.DBPath = prompt(reader, out, "SQLite telemetry path (:memory: to disable persistence)", defaultDBPath)

	fmt.Fprintln(out, "\n--- Authentication ---")
	if isYes(prompt(reader, out, "Require bearer tokens?", "no")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		a.JWTSecret = secret
	}

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	a.Tailscale = isYes(prompt(reader, out, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TSHostname = prompt(reader, out, "Tailscale hostname", "copilot-gateway")
		a.TSAuthKey = prompt(reader, out, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = isYes(prompt(reader, out, "Ephemeral node?", "no"))
		a.TSFunnel = isYes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Secrets make the file private
	perm := os.FileMode(0644)
	if a.JWTSecret != "" || a.TSAuthKey != "" {
		perm = 0600
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), perm); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	if a.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  copilot-gateway serve")
	if a.JWTSecret != "" {
		fmt.Fprintln(out, "\nTo mint a token for a frontend:")
		fmt.Fprintln(out, "  copilot-gateway token --subject my-frontend")
	}

	return nil
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// renderConfig produces the YAML written by init.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# copilot-gateway configuration\n")
	cfg.WriteString("# Generated by copilot-gateway init\n\n")

	cfg.WriteString("server:\n")
	if !a.Tailscale {
		cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	}
	cfg.WriteString(fmt.Sprintf("  route: %q\n", a.Route))
	cfg.WriteString("\n")

	cfg.WriteString("uploader:\n")
	cfg.WriteString(fmt.Sprintf("  endpoint: %q\n", a.UploaderURL))
	cfg.WriteString("  timeout: \"60s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("runtime:\n")
	cfg.WriteString(fmt.Sprintf("  endpoint: %q\n", a.RuntimeURL))
	cfg.WriteString(fmt.Sprintf("  resource_id: %q\n", a.ResourceID))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	if a.JWTSecret != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", a.JWTSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.Tailscale))
	if a.Tailscale {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.TSHostname))
		if a.TSAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", a.TSAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", a.TSEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", a.TSFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("attachments:\n")
	cfg.WriteString("  missing_file: \"skip\"\n")
	cfg.WriteString("  other_kinds: \"drop\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))

	return cfg.String()
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}

	if input == "" {
		return defaultVal
	}
	return input
}
