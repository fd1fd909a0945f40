// Package main provides the lightweight MCP entry point for the treatment compliance engine.
// This version requires no external databases - guidelines are read from a directory,
// advisory opinions are cached in memory and assessments are recorded in SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/config"
	"github.com/treatment-compliance-server/internal/mcp"
)

func main() {
	// stdout carries the MCP protocol
	logrus.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.LoadLiteConfig()); err != nil {
		logrus.WithError(err).Fatal("MCP server exited with an error")
	}
}

func run(ctx context.Context, cfg *config.LiteConfig, opts ...mcp.LiteServerOption) error {
	server, err := mcp.NewLiteServer(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	defer server.Close()

	return server.Start(ctx)
}
