// ABOUTME: Entry point for the sanctum authentication server
// ABOUTME: Subcommands serve, create users, issue tokens and write a starter config

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/sanctum/internal/client"
	"github.com/2389/sanctum/internal/config"
	"github.com/2389/sanctum/internal/server"
	"github.com/2389/sanctum/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
                       _
  ___  __ _ _ __   ___| |_ _   _ _ __ ___
 / __|/ _' | '_ \ / __| __| | | | '_ ' _ \
 \__ \ (_| | | | | (__| |_| |_| | | | | | |
 |___/\__,_|_| |_|\___|\__|\__,_|_| |_| |_|
`

// getDataPath returns the path to the sanctum data directory.
// Priority: XDG_DATA_HOME/sanctum > ~/.local/share/sanctum
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "sanctum")
}

func usage() {
	fmt.Println("Usage: sanctum <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                          Start the server")
	fmt.Println("  init                                           Create a new config file interactively")
	fmt.Println("  user create --name N --email E --password P    Create a user in the configured database")
	fmt.Println("  token --email E --password P --device D        Issue an API token from a running server")
	fmt.Println("  health                                         Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "user":
		err = runUser(ctx, os.Args[2:])
	case "token":
		err = runToken(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to in-memory defaults when
// none exists yet.
func loadConfig() (*config.Config, string, error) {
	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), "(defaults)", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s", cfg.Database.Driver)
	if cfg.Database.Driver == config.DriverMemory {
		yellow.Print(" [not persisted]")
	} else {
		gray.Printf(" (%s)", cfg.Database.Path)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Origins:   %s\n", strings.Join(cfg.Auth.AllowedOrigins, ", "))
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if !cfg.Auth.SecureCookies {
		yellow.Println("    ! secure_cookies is off; enable it behind HTTPS")
	}
	fmt.Println()

	logger.Info("starting sanctum",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Driver,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runUser(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "create" {
		return fmt.Errorf("usage: sanctum user create --name NAME --email EMAIL --password PASSWORD")
	}

	flags := flag.NewFlagSet("user create", flag.ContinueOnError)
	name := flags.String("name", "", "Display name")
	email := flags.String("email", "", "Email address")
	password := flags.String("password", "", "Password (or SANCTUM_PASSWORD)")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("SANCTUM_PASSWORD")
	}

	*name = strings.TrimSpace(*name)
	*email = strings.TrimSpace(*email)
	if *name == "" || *email == "" || *password == "" {
		return fmt.Errorf("--name, --email and --password are required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("database.driver is %q; users would be lost on exit", config.DriverMemory)
	}

	srv, err := server.New(cfg, setupLogger(cfg.Logging))
	if err != nil {
		return fmt.Errorf("opening server: %w", err)
	}
	defer func() { _ = srv.Store().Close() }()

	hash, err := srv.Verifier().HashPassword(*password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{Name: *name, Email: *email, PasswordHash: hash}
	if err := srv.Store().CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created user %s <%s>\n", user.Name, user.Email)
	color.New(color.FgHiBlack).Printf("  id: %s\n", user.ID)
	return nil
}

func runToken(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("token", flag.ContinueOnError)
	url := flags.String("url", os.Getenv("SANCTUM_URL"), "Server URL (default from config)")
	email := flags.String("email", "", "Email address")
	password := flags.String("password", "", "Password (or SANCTUM_PASSWORD)")
	device := flags.String("device", "", "Device name for the token")
	abilities := flags.String("abilities", "", "Comma-separated abilities (default *)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("SANCTUM_PASSWORD")
	}
	if *email == "" || *password == "" || *device == "" {
		return fmt.Errorf("--email, --password and --device are required")
	}

	if *url == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		*url = "http://" + cfg.Server.HTTPAddr
	}

	var list []string
	for _, a := range strings.Split(*abilities, ",") {
		if a = strings.TrimSpace(a); a != "" {
			list = append(list, a)
		}
	}

	c := client.New(*url)
	token, err := c.IssueToken(ctx, *email, *password, *device, list...)
	if err != nil {
		return err
	}

	yellow := color.New(color.FgYellow)
	yellow.Fprintln(os.Stderr, "  Store this token now. It will not be shown again.")
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: %s", resp.Status)
	}

	fmt.Printf("healthy: %s\n", strings.TrimSpace(string(body)))
	return nil
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("sanctum configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "sanctum.db")

	outputFile := prompt(reader, "Config file path", config.Path())

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Auth Configuration ---")
	origins := prompt(reader, "Frontend origins (comma-separated)", "http://localhost:3000")
	secureStr := prompt(reader, "Secure cookies (HTTPS only)?", "no")
	secure := strings.ToLower(secureStr) == "yes" || strings.ToLower(secureStr) == "y"

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	content := renderConfig(httpAddr, dbPath, strings.Split(origins, ","), secure, logLevel, logFormat)

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  sanctum user create --name Admin --email you@example.com --password ...")
	fmt.Println("  sanctum serve")

	return nil
}

// renderConfig produces a YAML config file.
func renderConfig(httpAddr, dbPath string, origins []string, secure bool, logLevel, logFormat string) string {
	var cfg strings.Builder
	cfg.WriteString("# sanctum configuration\n")
	cfg.WriteString("# Generated by sanctum init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  driver: %q\n", config.DriverSQLite))
	cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString("  allowed_origins:\n")
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cfg.WriteString(fmt.Sprintf("    - %q\n", o))
		}
	}
	cfg.WriteString(fmt.Sprintf("  secure_cookies: %t\n", secure))
	cfg.WriteString("  session_idle_timeout: \"2h\"\n")
	cfg.WriteString("  store_timeout: \"2s\"\n")
	cfg.WriteString("  sweep_interval: \"10m\" # \"off\" disables the sweeper\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", config.DefaultMetricsPath))

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
