package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/brojonat/axiomscope/service/browser"
	"github.com/brojonat/axiomscope/service/config"
	"github.com/brojonat/axiomscope/service/explorer"
	"github.com/brojonat/axiomscope/service/history"
	"github.com/brojonat/axiomscope/service/metrics"
	"github.com/brojonat/axiomscope/service/report"
	"github.com/brojonat/axiomscope/service/solana"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

const (
	sourceRPC    = "rpc"
	sourceScrape = "scrape"
)

// sourceLabels name each source in report headers.
var sourceLabels = map[string]string{
	sourceRPC:    "RPC",
	sourceScrape: "Solscan",
}

// app bundles what every command needs. close releases everything in
// reverse order of acquisition.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	reporter *report.Reporter
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// setup loads configuration from the environment, applies global flags on
// top and wires logging, metrics and reporting.
func setup(ctx context.Context, c *cli.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	for flag, dst := range map[string]*string{
		"log-level":    &cfg.LogLevel,
		"output-dir":   &cfg.OutputDir,
		"nats-url":     &cfg.NATSURL,
		"metrics-addr": &cfg.MetricsAddr,
		"chrome-bin":   &cfg.ChromeBin,
	} {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  setupLogger(cfg.LogLevel),
		metrics: metrics.NewMetrics(nil), // nil uses default registry
	}

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}

	var publisher report.Publisher
	if cfg.NATSURL != "" {
		p, err := report.NewPublisher(ctx, cfg.NATSURL, a.metrics, a.logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { p.Close() })
		publisher = p
	}
	a.reporter = report.NewReporter(cfg.OutputDir, publisher, a.metrics, a.logger)
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.Handler(),
	}
	go func() {
		a.logger.Info("starting metrics HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to shutdown metrics server", "error", err)
		}
	})
}

// rpcClient builds the RPC data source over the configured endpoint pool.
func (a *app) rpcClient() (*solana.Client, error) {
	pool, err := solana.NewEndpointPool(a.cfg.SolanaRPCURLs, solana.RateLimitedDialer(a.cfg.RPCRateLimit))
	if err != nil {
		return nil, err
	}
	a.logger.Info("initialized solana RPC pool",
		"total_endpoints", len(a.cfg.SolanaRPCURLs),
		"endpoint", pool.Label(),
	)
	return solana.NewClient(pool, a.cfg.RPCOptions(), a.metrics, a.logger)
}

// source builds the named data source. The scrape source starts a browser
// engine that is stopped by close.
func (a *app) source(name string) (history.Source, error) {
	switch name {
	case sourceRPC:
		return a.rpcClient()
	case sourceScrape:
		engine := browser.NewEngine(a.cfg.EngineConfig(), browser.DefaultStrategies(a.cfg.ChromeBin), a.metrics, a.logger)
		engine.Start()
		a.closers = append(a.closers, engine.Stop)
		return explorer.NewScraper(engine, a.cfg.ScraperConfig(), a.metrics, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want %s or %s)", name, sourceRPC, sourceScrape)
	}
}

func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
