package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/axiomscope/service/browser"
	"github.com/brojonat/axiomscope/service/explorer"
	"github.com/brojonat/axiomscope/service/history"
	"github.com/brojonat/axiomscope/service/solana"
)

// Config holds all application configuration loaded from environment variables.
// Every field has a default, so Load only fails on malformed values.
type Config struct {
	LogLevel    string
	MetricsAddr string
	OutputDir   string

	// NATS configuration, publishing is disabled when empty
	NATSURL string

	// Solana RPC configuration
	SolanaRPCURLs     []string
	ProgramIDs        []string
	MetadataProgramID string
	RPCMaxRetries     int
	RPCBackoff        time.Duration
	RPCRateLimit      int
	RPCPageLimit      int
	RPCMaxPages       int

	// Explorer scraping configuration
	ExplorerURL        string
	ChromeBin          string
	PageLoadWait       time.Duration
	PageTransitionWait time.Duration
	ElementWait        time.Duration
	ScrapeMaxPages     int
	EvasionDuration    time.Duration

	// Engine configuration
	TaskTimeout     time.Duration
	EngineStopGrace time.Duration
}

// Load reads configuration from environment variables and validates it.
// Returns an error listing every malformed value.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.OutputDir = getEnvOrDefault("OUTPUT_DIR", ".")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana RPC configuration
	cfg.SolanaRPCURLs = parseList("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com")
	cfg.ProgramIDs = parseList("AXIOM_PROGRAM_IDS", strings.Join(history.AxiomProgramIDs, ","))
	cfg.MetadataProgramID = getEnvOrDefault("METADATA_PROGRAM_ID", solana.MetadataProgramID.String())

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"RPC_MAX_RETRIES", 3, &cfg.RPCMaxRetries},
		{"RPC_RATE_LIMIT", 5, &cfg.RPCRateLimit},
		{"RPC_PAGE_LIMIT", 1000, &cfg.RPCPageLimit},
		{"RPC_MAX_PAGES", 100, &cfg.RPCMaxPages},
		{"SCRAPE_MAX_PAGES", 50, &cfg.ScrapeMaxPages},
	}
	for _, i := range ints {
		v, err := parseInt(i.key, i.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*i.dst = v
	}

	// Explorer scraping configuration
	cfg.ExplorerURL = getEnvOrDefault("EXPLORER_URL", "https://solscan.io")
	cfg.ChromeBin = os.Getenv("CHROME_BIN")

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"RPC_BACKOFF", "1s", &cfg.RPCBackoff},
		{"PAGE_LOAD_WAIT", "5s", &cfg.PageLoadWait},
		{"PAGE_TRANSITION_WAIT", "3s", &cfg.PageTransitionWait},
		{"ELEMENT_WAIT", "20s", &cfg.ElementWait},
		{"EVASION_DURATION", "0s", &cfg.EvasionDuration},
		{"TASK_TIMEOUT", "10m", &cfg.TaskTimeout},
		{"ENGINE_STOP_GRACE", "5s", &cfg.EngineStopGrace},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.dst = v
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs requires at least one endpoint"))
	}
	if len(c.ProgramIDs) == 0 {
		errs = append(errs, fmt.Errorf("ProgramIDs requires at least one program"))
	}
	if c.RPCMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("RPCMaxRetries cannot be negative"))
	}
	if c.RPCRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("RPCRateLimit must be positive"))
	}
	if c.RPCPageLimit <= 0 || c.RPCPageLimit > 1000 {
		errs = append(errs, fmt.Errorf("RPCPageLimit must be between 1 and 1000"))
	}
	if c.RPCMaxPages < 0 {
		errs = append(errs, fmt.Errorf("RPCMaxPages cannot be negative"))
	}
	if c.ScrapeMaxPages <= 0 {
		errs = append(errs, fmt.Errorf("ScrapeMaxPages must be positive"))
	}
	if c.ExplorerURL == "" {
		errs = append(errs, fmt.Errorf("ExplorerURL is required"))
	}
	if c.TaskTimeout < time.Second {
		errs = append(errs, fmt.Errorf("TaskTimeout must be at least 1 second"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error (got %q)", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// RetryPolicy returns the RPC retry policy.
func (c *Config) RetryPolicy() solana.RetryPolicy {
	return solana.RetryPolicy{MaxRetries: c.RPCMaxRetries, BaseBackoff: c.RPCBackoff}
}

// RPCOptions returns the RPC data source options.
func (c *Config) RPCOptions() solana.Options {
	return solana.Options{
		ProgramIDs:        c.ProgramIDs,
		MetadataProgramID: c.MetadataProgramID,
		PageLimit:         c.RPCPageLimit,
		MaxPages:          c.RPCMaxPages,
		Retry:             c.RetryPolicy(),
	}
}

// EngineConfig returns the browser engine tunables.
func (c *Config) EngineConfig() browser.EngineConfig {
	cfg := browser.DefaultEngineConfig()
	cfg.TaskTimeout = c.TaskTimeout
	cfg.StopGrace = c.EngineStopGrace
	return cfg
}

// ScraperConfig returns the explorer scraper tunables.
func (c *Config) ScraperConfig() explorer.Config {
	return explorer.Config{
		BaseURL:            c.ExplorerURL,
		ProgramIDs:         c.ProgramIDs,
		MaxPages:           c.ScrapeMaxPages,
		ElementWait:        c.ElementWait,
		PageLoadWait:       c.PageLoadWait,
		PageTransitionWait: c.PageTransitionWait,
		EvasionDuration:    c.EvasionDuration,
		TaskTimeout:        c.TaskTimeout,
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseList splits a comma-separated environment variable, dropping blanks.
func parseList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnvOrDefault(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
