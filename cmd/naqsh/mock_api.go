package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kingrea/naqsh/internal/config"
	"github.com/kingrea/naqsh/internal/logging"
	"github.com/kingrea/naqsh/internal/mockapi"
)

// handleMockAPICommand serves the local marketplace stand-in until interrupted.
func handleMockAPICommand() bool {
	if len(os.Args) < 2 || os.Args[1] != "mock-api" {
		return false
	}
	fs := flag.NewFlagSet("mock-api", flag.ExitOnError)
	projectDir := fs.String("project", "", "directory holding .naqsh/ (defaults to cwd)")
	host := fs.String("host", "", "bind host (overrides mock_api.host)")
	port := fs.Int("port", 0, "bind port (overrides mock_api.port)")
	accessTTL := fs.Duration("access-ttl", 0, "access token lifetime (overrides mock_api.access_ttl)")
	_ = fs.Parse(os.Args[2:])

	workDir, err := resolveWorkDir(*projectDir)
	if err != nil {
		die("%v", err)
	}
	if err := config.InitNaqshDir(workDir); err != nil {
		die("init .naqsh: %v", err)
	}
	cfg, err := config.NewConfig(workDir)
	if err != nil {
		die("load config: %v", err)
	}
	logger, err := logging.New(workDir)
	if err != nil {
		die("%v", err)
	}
	defer logger.Close()

	settings := mockapi.SettingsFromConfig(cfg)
	if *host != "" {
		settings.Host = *host
	}
	if *port > 0 {
		settings.Port = *port
	}
	if *accessTTL > 0 {
		settings.AccessTTL = *accessTTL
	}
	srv, err := mockapi.NewServer(settings, mockapi.WithLogger(logger))
	if err != nil {
		die("mock api: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Start(ctx); err != nil {
		die("mock api: %v", err)
	}
	fmt.Printf("Mock API listening on %s\n", srv.BaseURL())
	fmt.Printf("Demo accounts: %s/%s, %s/%s\n",
		mockapi.DemoUsername, mockapi.DemoPassword, mockapi.OtherUsername, mockapi.OtherPassword)
	fmt.Printf("Access tokens expire after %s. Press Ctrl+C to stop.\n", settings.AccessTTL)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "mock api shutdown: %v\n", err)
	}
	fmt.Printf("Mock API stopped (%d delivery issue(s) reported)\n", srv.ReportedIssues())
	return true
}
