package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/medlens/medlens/internal/server"
	"github.com/medlens/medlens/internal/tools"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent tool server",
		Long: `Run the JSON-RPC tool server. The default transport is stdio with
Content-Length framing, which is what agent hosts spawn; --http serves the
same protocol on a listening socket instead.`,
		Example: `  medlens serve
  medlens serve --http :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The stdio transport owns stdout, so force logs to stderr as JSON.
			flags.jsonLogs = flags.jsonLogs || httpAddr == ""
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			registry := tools.NewRegistry(a, a.Logger)
			srv := server.New(registry, a.Logger, server.Info{
				Name:    "medlens",
				Version: cmd.Root().Version,
			})

			if httpAddr != "" {
				err = serveHTTP(cmd.Context(), a.Logger.Info, httpAddr, server.NewHTTPHandler(srv))
			} else {
				stdio := server.NewStdio(srv, cmd.InOrStdin(), cmd.OutOrStdout())
				err = stdio.Serve(cmd.Context())
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP on this address instead of stdio")
	return cmd
}

func serveHTTP(ctx context.Context, logf func(string, ...any), addr string, handler http.Handler) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logf("http server listening", "addr", addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
