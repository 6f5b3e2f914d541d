package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/churchdesk/internal/api"
	"github.com/kalambet/churchdesk/internal/config"
	"github.com/kalambet/churchdesk/internal/storage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only form tools over MCP (stdio transport)",
	Long: `Serve read-only form tools over MCP on stdin/stdout.

The store is opened directly, so this works whether or not the HTTP
server is running. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs must stay on stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.DataDir, cfg.Storage.Backend, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewMCPServer(api.MCPDeps{
		Schemas:   store,
		Responses: store,
		Version:   version,
	})
	slog.Info("MCP server started (stdio transport)", "backend", cfg.Storage.Backend)

	stdio := server.NewStdioServer(srv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
