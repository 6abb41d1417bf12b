// cmd/naqsh/main.go
//
// This is the entry point for the naqsh CLI.
// When you run `naqsh` from any directory, this is what executes.
//
// Flow:
// 1. Subcommands (mock-api, login, logout, whoami) run and exit
// 2. Otherwise load .naqsh/config.yaml and the stored session
// 3. Launch the TUI

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/naqsh/internal/apiclient"
	"github.com/kingrea/naqsh/internal/config"
	"github.com/kingrea/naqsh/internal/logbook"
	"github.com/kingrea/naqsh/internal/logging"
	"github.com/kingrea/naqsh/internal/metrics"
	"github.com/kingrea/naqsh/internal/session"
	"github.com/kingrea/naqsh/internal/shop"
	"github.com/kingrea/naqsh/internal/tui"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if handleMockAPICommand() || handleLoginCommand() || handleLogoutCommand() || handleWhoamiCommand() {
		return
	}

	fs := flag.NewFlagSet("naqsh", flag.ExitOnError)
	projectDir := fs.String("project", "", "directory holding .naqsh/ (defaults to cwd)")
	_ = fs.Parse(os.Args[1:])

	rt, err := openRuntime(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.Close()

	lb, err := logbook.New(filepath.Join(rt.cfg.LogsDir(), "activity.log"))
	if err != nil {
		die("open activity log: %v", err)
	}
	app := tui.NewApp(rt.svc,
		tui.WithLogbook(lb),
		tui.WithRequestTimeout(rt.cfg.Project.API.Timeout*2),
	)

	// Run blocks until the user quits
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		die("Error running TUI: %v", err)
	}
}

// runtime bundles everything a command needs to talk to the API.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *session.FileStore
	svc     *shop.Service
	metrics *http.Server
}

func openRuntime(projectDir string) (*runtime, error) {
	workDir, err := resolveWorkDir(projectDir)
	if err != nil {
		return nil, err
	}
	if err := config.InitNaqshDir(workDir); err != nil {
		return nil, fmt.Errorf("init .naqsh: %w", err)
	}
	cfg, err := config.NewConfig(workDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(workDir)
	if err != nil {
		return nil, err
	}
	store, err := session.OpenFileStore(cfg.SessionPath())
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	clientMetrics := metrics.NewClientMetrics()
	rt := &runtime{cfg: cfg, logger: logger, store: store}
	if addr := cfg.Project.Metrics.Address; addr != "" {
		reg := prometheus.NewRegistry()
		if err := clientMetrics.Register(reg); err != nil {
			_ = logger.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		rt.metrics = serveMetrics(addr, reg, logger)
	}

	client, err := apiclient.New(cfg.BaseURL(), store,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.Project.API.Timeout}),
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(clientMetrics),
		apiclient.WithRefreshPath(cfg.Project.API.RefreshPath),
		apiclient.WithRefreshTimeout(cfg.Project.API.Timeout),
		apiclient.WithRateLimit(cfg.Project.API.RateLimitRPS, cfg.Project.API.RateLimitBurst),
		apiclient.WithUserAgent("naqsh/"+version),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.svc = shop.NewService(client, shop.WithLogger(logger))
	logger.Printf("naqsh %s: api %s, session %s", version, cfg.BaseURL(), store.Path())
	return rt, nil
}

// Close stops the metrics listener and flushes the log file.
func (rt *runtime) Close() {
	if rt.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = rt.metrics.Shutdown(ctx)
		cancel()
	}
	if rt.logger != nil {
		_ = rt.logger.Close()
	}
}

// requestContext bounds a one-shot CLI call.
func (rt *runtime) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rt.cfg.Project.API.Timeout*2)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics: %v", err)
		}
	}()
	logger.Printf("metrics: serving on http://%s/metrics", addr)
	return srv
}

func resolveWorkDir(projectDir string) (string, error) {
	dir := projectDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	return abs, nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
