package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/bootstrap"
	"github.com/eriker75/onenglish-sub004/internal/config"
	mcpserver "github.com/eriker75/onenglish-sub004/internal/mcp"
)

// cmdMCP serves the grading tools over MCP on stdio. Stdout carries the
// protocol, so logs go to stderr.
func cmdMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Seed(ctx); err != nil {
		return err
	}

	srv := mcpserver.NewServer(mcpserver.Config{
		Assessment: app.Assessment,
		Logger:     logger,
	})
	return srv.ServeStdio(ctx)
}

func checkOllama(url string) error {
	if url == "" {
		url = "http://localhost:11434"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url + "/api/tags")
	if err != nil {
		return fmt.Errorf("not reachable at %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
