package main

import (
	"bufio"
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bookfetch/config"
	"bookfetch/download"
	"bookfetch/extract"
	"bookfetch/pipeline"
	"bookfetch/pkg/tor"
	"bookfetch/resolve"
	"bookfetch/transport"
	"bookfetch/traverse"
)

func main() {
	// =========
	// Config
	// =========
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	providers, err := config.LoadProviders(cfg.ProvidersPath)
	if err != nil {
		log.Fatalf("Failed to load providers: %v", err)
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// =========
	// Route (direct, SOCKS5, or Tor with rotation)
	// =========
	httpClient, err := buildRoute(cfg, logger)
	if err != nil {
		logger.Fatal("route unavailable", zap.Error(err))
	}

	// =========
	// Substrate
	// =========
	var fetcher transport.Fetcher
	plain := transport.NewClient(httpClient, logger)
	switch cfg.Substrate {
	case "browser":
		fetcher = transport.NewBrowser(logger, cfg.ProxyURL)
	default:
		fetcher = plain
	}

	// =========
	// Pipeline
	// =========
	parser := extract.NewResultParser(logger)
	scanner := extract.NewLinkScanner(providers.Gateways, logger)
	resolver := resolve.New(providers.Mirrors, logger)
	traverser := traverse.New(fetcher, scanner, logger)
	downloader, err := download.New(cfg.DownloadDir, httpClient, logger)
	if err != nil {
		logger.Fatal("failed to init downloader", zap.Error(err))
	}
	pipe := pipeline.New(fetcher, parser, scanner, resolver, traverser,
		downloader, providers.Providers, cfg.StepDelay, logger)

	// =========
	// Input
	// =========
	queries, err := readSearchTerms(cfg.SearchTermsPath)
	if err != nil {
		logger.Fatal("failed to read search terms",
			zap.String("path", cfg.SearchTermsPath), zap.Error(err))
	}
	if len(queries) == 0 {
		logger.Fatal("no search terms found",
			zap.String("path", cfg.SearchTermsPath))
	}

	// =========
	// Run
	// =========
	ctx := context.Background()
	summary := pipe.RunBatch(ctx, queries, cfg.InterQueryDelay)
	report(logger, summary)

	if cfg.WatchCron != "" && len(summary.Failed) > 0 {
		watch(ctx, cfg.WatchCron, pipe, cfg.InterQueryDelay, summary.Failed, logger)
		return
	}
	if summary.AllFailed() {
		os.Exit(1)
	}
}

// buildRoute wires the HTTP client: Tor with circuit rotation when a
// control address is configured, plain SOCKS5 when only a proxy is,
// direct otherwise. With Tor the exit IP is probed first — a dead
// route should fail the run before the pipeline touches any provider.
func buildRoute(cfg *config.Config, logger *zap.Logger) (*http.Client, error) {
	if cfg.TorControlAddr == "" {
		return transport.NewHTTPClient(cfg.ProxyURL)
	}

	torClient, err := tor.NewClient(cfg.ProxyURL, cfg.TorControlAddr,
		os.Getenv("TOR_CONTROL_PASSWORD"), 0)
	if err != nil {
		return nil, err
	}
	probeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ip, err := torClient.ExitIP(probeCtx)
	if err != nil {
		return nil, err
	}
	logger.Info("tor route healthy", zap.String("exit_ip", ip))
	return torClient.HTTPClient(), nil
}

// readSearchTerms parses one query per line, skipping blanks and
// `#` comments.
func readSearchTerms(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	return terms, scanner.Err()
}

func report(logger *zap.Logger, summary pipeline.Summary) {
	logger.Info("run summary",
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)))
	for _, o := range summary.Outcomes {
		switch {
		case o.Success:
			logger.Info("query succeeded",
				zap.String("query", o.Query),
				zap.String("path", o.SavedPath),
				zap.Int64("size", o.SizeBytes))
		case o.AlreadyExists:
			logger.Info("query skipped",
				zap.String("query", o.Query),
				zap.String("path", o.SavedPath))
		default:
			logger.Warn("query failed",
				zap.String("query", o.Query),
				zap.String("reason", o.Reason.String()))
		}
	}
}

// watch re-runs the still-failed queries on a cron schedule until all
// of them resolve. Mirrors flap; what 404s tonight often serves
// tomorrow.
func watch(ctx context.Context, spec string, pipe *pipeline.Pipeline, interQueryDelay time.Duration, failed []string, logger *zap.Logger) {
	pending := failed
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if len(pending) == 0 {
			return
		}
		logger.Info("retrying failed queries", zap.Int("count", len(pending)))
		summary := pipe.RunBatch(ctx, pending, interQueryDelay)
		report(logger, summary)
		pending = summary.Failed
	})
	if err != nil {
		logger.Fatal("invalid watch cron spec",
			zap.String("spec", spec), zap.Error(err))
	}
	c.Start()
	logger.Info("watch mode started", zap.String("spec", spec))
	select {}
}
