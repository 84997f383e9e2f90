package config

import (
	"os"
	"testing"
	"time"

	"github.com/brojonat/axiomscope/service/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"LOG_LEVEL", "METRICS_ADDR", "OUTPUT_DIR", "NATS_URL",
	"SOLANA_RPC_URLS", "AXIOM_PROGRAM_IDS", "METADATA_PROGRAM_ID",
	"RPC_MAX_RETRIES", "RPC_BACKOFF", "RPC_RATE_LIMIT", "RPC_PAGE_LIMIT", "RPC_MAX_PAGES",
	"EXPLORER_URL", "CHROME_BIN", "PAGE_LOAD_WAIT", "PAGE_TRANSITION_WAIT", "ELEMENT_WAIT",
	"SCRAPE_MAX_PAGES", "EVASION_DURATION", "TASK_TIMEOUT", "ENGINE_STOP_GRACE",
}

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, history.AxiomProgramIDs, cfg.ProgramIDs)
	assert.Equal(t, "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s", cfg.MetadataProgramID)
	assert.Equal(t, 3, cfg.RPCMaxRetries)
	assert.Equal(t, time.Second, cfg.RPCBackoff)
	assert.Equal(t, 5, cfg.RPCRateLimit)
	assert.Equal(t, 1000, cfg.RPCPageLimit)
	assert.Equal(t, 100, cfg.RPCMaxPages)
	assert.Equal(t, "https://solscan.io", cfg.ExplorerURL)
	assert.Equal(t, 5*time.Second, cfg.PageLoadWait)
	assert.Equal(t, 3*time.Second, cfg.PageTransitionWait)
	assert.Equal(t, 20*time.Second, cfg.ElementWait)
	assert.Equal(t, 50, cfg.ScrapeMaxPages)
	assert.Zero(t, cfg.EvasionDuration)
	assert.Equal(t, 10*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, 5*time.Second, cfg.EngineStopGrace)
}

func TestLoad_CustomValues(t *testing.T) {
	cleanupEnv()
	os.Setenv("SOLANA_RPC_URLS", " https://a.example , https://b.example/?api-key=x ,")
	os.Setenv("AXIOM_PROGRAM_IDS", history.AxiomProgramIDs[1])
	os.Setenv("RPC_MAX_RETRIES", "5")
	os.Setenv("RPC_BACKOFF", "250ms")
	os.Setenv("RPC_MAX_PAGES", "0")
	os.Setenv("SCRAPE_MAX_PAGES", "3")
	os.Setenv("EVASION_DURATION", "30s")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://localhost:4222")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example/?api-key=x"}, cfg.SolanaRPCURLs)
	assert.Equal(t, []string{history.AxiomProgramIDs[1]}, cfg.ProgramIDs)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, policy.Backoff(1))

	opts := cfg.RPCOptions()
	assert.Zero(t, opts.MaxPages)
	assert.Equal(t, cfg.ProgramIDs, opts.ProgramIDs)

	scraper := cfg.ScraperConfig()
	assert.Equal(t, 3, scraper.MaxPages)
	assert.Equal(t, 30*time.Second, scraper.EvasionDuration)
	assert.Equal(t, cfg.ProgramIDs, scraper.ProgramIDs)

	engine := cfg.EngineConfig()
	assert.Equal(t, 10*time.Minute, engine.TaskTimeout)
	assert.Equal(t, 5*time.Second, engine.StopGrace)
	assert.Positive(t, engine.QueueSize)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad duration", "PAGE_LOAD_WAIT", "soon", "invalid duration"},
		{"bad integer", "RPC_MAX_RETRIES", "three", "invalid integer"},
		{"page limit too large", "RPC_PAGE_LIMIT", "5000", "RPCPageLimit"},
		{"no endpoints", "SOLANA_RPC_URLS", " , ", "at least one endpoint"},
		{"unknown log level", "LOG_LEVEL", "verbose", "LogLevel"},
		{"short task timeout", "TASK_TIMEOUT", "10ms", "TaskTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanupEnv()
			os.Setenv(tt.key, tt.val)
			defer cleanupEnv()

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{LogLevel: "info", TaskTimeout: time.Minute}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SolanaRPCURLs")
	assert.Contains(t, err.Error(), "ProgramIDs")
	assert.Contains(t, err.Error(), "RPCRateLimit")
	assert.Contains(t, err.Error(), "ScrapeMaxPages")
	assert.Contains(t, err.Error(), "ExplorerURL")
}

func TestMustLoad_Panics(t *testing.T) {
	cleanupEnv()
	os.Setenv("SCRAPE_MAX_PAGES", "-1")
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range envKeys {
		os.Unsetenv(key)
	}
}
