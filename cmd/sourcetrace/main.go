package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yousuf/sourcetrace-mcp/internal/config"
	"github.com/yousuf/sourcetrace-mcp/internal/fetch"
	"github.com/yousuf/sourcetrace-mcp/internal/server"
	"github.com/yousuf/sourcetrace-mcp/internal/session"
)

var (
	configPath string
	port       int
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sourcetrace",
		Short: "Source resolution engine for deployed web applications",
		Long: `sourcetrace maps minified/bundled stack traces and locations back to
original sources via source maps, and analyzes bundler manifests.
It exposes its operations as MCP tools over streamable HTTP.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to JSON config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != 0 {
		cfg.Port = port
	}

	fetcher := fetch.NewHTTPFetcher(cfg.FetchTimeout())
	sessionMgr := session.NewManager(cfg, fetcher, logger)

	// Create HTTP handler with proper session management; a new MCP server
	// instance per request lets the SDK manage sessions properly.
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return server.NewMcpServer(sessionMgr, logger)
	}, &mcp.StreamableHTTPOptions{})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("sourcetrace MCP server listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	sessionMgr.CloseAll()
	logger.Info("server stopped")
	return nil
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
