// Package main runs the medlens tool server on stdio. It is the entry agent
// hosts spawn; it is equivalent to "medlens serve" without the CLI surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/medlens/medlens/internal/app"
	"github.com/medlens/medlens/internal/config"
	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/server"
	"github.com/medlens/medlens/internal/tools"
)

var version = "dev"

func main() {
	code := run(context.Background(), os.Stdin, os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := config.Load(os.Getenv("MEDLENS_CONFIG"), config.LoadOptions{})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	// stdout carries the protocol, so logs go to stderr as JSON.
	logger := logging.NewSlogAdapter(logging.New(logging.Options{
		Verbose: res.Config.Verbose,
		JSON:    true,
		Writer:  stderr,
	}))
	for _, warning := range res.Warnings {
		logger.Warn("config warning", "warning", warning)
	}

	a, err := app.New(res.Config, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	registry := tools.NewRegistry(a, logger)
	srv := server.New(registry, logger, server.Info{Name: "medlens", Version: version})
	err = server.NewStdio(srv, stdin, stdout).Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}
