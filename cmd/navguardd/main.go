package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/common/metrics"
	"github.com/haukened/navguard/internal/guard/config"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/gateways/browser"
	"github.com/haukened/navguard/internal/guard/gateways/classifier"
	"github.com/haukened/navguard/internal/guard/gateways/httpapi"
	"github.com/haukened/navguard/internal/guard/repos/lists"
	"github.com/haukened/navguard/internal/guard/repos/lists/bloom"
	"github.com/haukened/navguard/internal/guard/repos/lists/bolt"
	"github.com/haukened/navguard/internal/guard/repos/tabs"
	"github.com/haukened/navguard/internal/guard/services/guard"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "navguardd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the navigation guard daemon
type Application struct {
	config  *config.AppConfig
	store   lists.Store
	repo    *lists.Repository
	server  *httpapi.Server
	guard   *guard.Guard
	browser *browser.Source // nil when browser integration is disabled
}

func main() {
	// Load configuration from environment and the optional config file
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.ConfigureWithFile(cfg.Env, cfg.LogLevel, log.FileOptions{Path: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.LogLevel,
		"store":      cfg.Store,
		"listen":     cfg.Listen,
		"devtools":   cfg.DevToolsURL,
		"classifier": cfg.ClassifierModel,
	}, "Starting "+appName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Daemon failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	policy := buildPolicy(cfg)

	store, err := buildStore(cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build list store: %w", err)
	}

	repo, err := lists.NewRepository(lists.Options{
		Store:        store,
		Policy:       policy,
		BloomFactory: bloom.NewFactory(),
		FPRate:       cfg.BloomFPRate,
		Logger:       logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build list repository: %w", err)
	}

	added, err := repo.Reconcile(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to merge required blocklist: %w", err)
	}
	stats := repo.RepoStats().Store
	m.SetListEntries(string(domain.Blocklist), stats.Blocklist)
	m.SetListEntries(string(domain.Whitelist), stats.Whitelist)
	log.Info(map[string]any{
		"added":     added,
		"blocklist": stats.Blocklist,
		"whitelist": stats.Whitelist,
		"version":   stats.Version,
	}, "List store ready")

	cls, err := buildClassifier(cfg, policy, m, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	engine, err := guard.NewEngine(guard.EngineOptions{
		Lists:      repo,
		Classifier: cls,
		Policy:     policy,
		BlockPage:  cfg.BlockPageURL(),
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build decision engine: %w", err)
	}

	handler, err := httpapi.NewHandler(httpapi.Options{
		Editor:  repo,
		Decider: engine,
		Health: func(ctx context.Context) error {
			_, err := repo.Snapshot(ctx)
			return err
		},
		Gatherer: reg,
		Logger:   logger,
		Metrics:  m,
		Clock:    clk,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	app := &Application{
		config: cfg,
		store:  store,
		repo:   repo,
		server: httpapi.NewServer(cfg.Listen, handler, logger),
	}

	if cfg.BrowserDisabled {
		log.Warn(nil, "Browser integration disabled; only the HTTP API is served")
		return app, nil
	}

	src, err := browser.New(browser.Options{
		DevToolsURL:  cfg.DevToolsURL,
		PollInterval: cfg.BrowserPollInterval(),
		Logger:       logger,
		Clock:        clk,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build browser source: %w", err)
	}

	tracker, err := tabs.New(cfg.TabCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build tab tracker: %w", err)
	}

	g, err := guard.New(guard.Options{
		Decider:    engine,
		Redirector: src,
		Tabs:       tracker,
		BlockPage:  cfg.BlockPageURL(),
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build guard: %w", err)
	}
	app.browser = src
	app.guard = g
	return app, nil
}

// buildPolicy extends the built-in policy with the configured extra entries.
func buildPolicy(cfg *config.AppConfig) domain.Policy {
	p := domain.DefaultPolicy()
	p.DefaultSafe = appendPatterns(p.DefaultSafe, cfg.ExtraSafe)
	p.MustBlock = appendPatterns(p.MustBlock, cfg.ExtraBlock)
	return p
}

func appendPatterns(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	for _, e := range extra {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func buildStore(cfg *config.AppConfig, clk clock.Clock) (lists.Store, error) {
	switch cfg.Store {
	case "memory":
		log.Warn(nil, "Using in-memory list store; edits are lost on restart")
		return lists.NewMemoryStore(clk), nil
	default:
		store, err := bolt.New(cfg.DBPath, clk)
		if err != nil {
			return nil, err
		}
		log.Info(map[string]any{"path": cfg.DBPath}, "bbolt list store opened")
		return store, nil
	}
}

func buildClassifier(cfg *config.AppConfig, policy domain.Policy, m *metrics.Metrics, logger log.Logger) (guard.Classifier, error) {
	if cfg.ClassifierDisabled {
		log.Info(nil, "Classifier disabled; only the lists can block")
		return classifier.Disabled{Metrics: m}, nil
	}
	if cfg.ClassifierToken == "" {
		log.Warn(nil, "No classifier token configured; only the lists can block")
		return classifier.Disabled{Metrics: m}, nil
	}
	c, err := classifier.New(classifier.Options{
		Endpoint: cfg.ClassifierEndpoint,
		Model:    cfg.ClassifierModel,
		Token:    cfg.ClassifierToken,
		Timeout:  cfg.ClassifierTimeout(),
		Labels:   policy.LabelStrings(),
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}
	log.Info(map[string]any{
		"endpoint": cfg.ClassifierEndpoint,
		"model":    cfg.ClassifierModel,
		"timeout":  cfg.ClassifierTimeout(),
	}, "Classifier configured")
	return c, nil
}

// Run starts the HTTP API and the browser guard and blocks until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	defer func() {
		if err := app.store.Close(); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Error closing list store")
		}
	}()

	if err := app.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP API: %w", err)
	}

	guardDone := make(chan error, 1)
	if app.guard != nil {
		go func() { guardDone <- app.guard.Run(ctx, app.browser) }()
		log.Info(map[string]any{"devtools": app.config.DevToolsURL}, "Browser guard started")
	} else {
		close(guardDone)
	}

	<-ctx.Done()
	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error during HTTP API shutdown")
	}

	select {
	case err := <-guardDone:
		if err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Browser guard stopped with error")
		}
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
