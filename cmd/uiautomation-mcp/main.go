// Copyright 2025 Joseph Cumines
//
// MCP server for desktop UI automation - JSON-RPC 2.0 over stdio

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/uiautomation-mcp/internal/config"
	"github.com/joeycumines/uiautomation-mcp/internal/logging"
	"github.com/joeycumines/uiautomation-mcp/internal/poll"
	"github.com/joeycumines/uiautomation-mcp/internal/provider"
	"github.com/joeycumines/uiautomation-mcp/internal/provider/remote"
	"github.com/joeycumines/uiautomation-mcp/internal/server"
	"github.com/joeycumines/uiautomation-mcp/internal/session"
	"github.com/joeycumines/uiautomation-mcp/internal/transport"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "uiautomation-mcp: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration from defaults, file, environment
// and command-line flags, in that order.
func loadConfig(args []string, stderr io.Writer) (*config.Config, error) {
	fs := pflag.NewFlagSet("uiautomation-mcp", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Output:     stderr,
		Level:      cfg.LogLevel,
		TimeFormat: logging.DefaultConfig().TimeFormat,
		Debug:      cfg.Debug,
	})
	if err != nil {
		return err
	}

	audit, err := server.NewAuditLogger(cfg.AuditLog, cfg.AuditRedactInput)
	if err != nil {
		return err
	}
	defer audit.Close()

	poller := poll.New(cfg.PollInterval)
	sess := session.New(func(context.Context) (provider.Provider, error) {
		logger.Debug("Connecting to automation provider", "addr", cfg.ProviderAddr, "tls", cfg.ProviderTLS)
		return remote.Dial(remote.Config{
			Logger:        logger,
			Poller:        poller,
			Address:       cfg.ProviderAddr,
			CertFile:      cfg.ProviderCertFile,
			LaunchTimeout: cfg.LaunchTimeout,
			TLS:           cfg.ProviderTLS,
		})
	}, logger)

	metrics := transport.NewMetricsRegistry()
	mcpServer := server.NewMCPServer(cfg, sess, server.Options{
		Logger:  logger,
		Metrics: metrics,
		Audit:   audit,
		Poller:  poller,
	})

	var ops *transport.OpsServer
	if cfg.MetricsAddr != "" {
		ops = transport.NewOpsServer(cfg.MetricsAddr, metrics, mcpServer.Status, logger)
		go func() {
			if err := ops.ListenAndServe(); err != nil {
				logger.Error("Ops endpoint failed", "err", err)
			}
		}()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- mcpServer.Serve(transport.NewStdioTransport(stdin, stdout))
	}()

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		serveErr = mcpServer.Shutdown(ctx)
		cancel()
	case serveErr = <-errChan:
	}

	if ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ops.Shutdown(ctx); err != nil {
			logger.Warn("Ops endpoint shutdown failed", "err", err)
		}
		cancel()
	}

	if serveErr != nil {
		logger.Error("Server error", "err", serveErr)
		return serveErr
	}
	logger.Info("Server shutdown complete")
	return nil
}
