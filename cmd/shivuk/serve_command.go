package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"shivuk/internal/app"
	"shivuk/internal/logging"
	"shivuk/internal/mcpserver"
	"shivuk/internal/preflight"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noBlobs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio and serve stored images over HTTP",
		Long: "Run the MCP server on stdin/stdout. Logs go to stderr and the log file; " +
			"stdout is reserved for the protocol.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			for _, result := range preflight.RunLocal(cfg) {
				if !result.Passed {
					logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
						logging.String("check", result.Name),
						logging.String("detail", result.Detail),
						logging.String(logging.FieldImpact, "generation or persistence may fail"),
					)
				}
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := app.Open(runCtx, cfg, logger, ctx.appOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !noBlobs && cfg.Blobs.Bind != "" {
				srv, err := startBlobServer(runCtx, cfg.Blobs.Bind, a.Blobs.Handler(), logger)
				if err != nil {
					return err
				}
				defer stopBlobServer(srv)
			}

			logger.Info("mcp server starting", logging.String("version", version))
			return mcpserver.New(a, version).ServeStdio()
		},
	}
	cmd.Flags().BoolVar(&noBlobs, "no-blobs", false, "Do not serve stored images over HTTP")
	return cmd
}

func startBlobServer(ctx context.Context, bind string, handler http.Handler, logger *slog.Logger) (*http.Server, error) {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("blob listen: %w", err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("blob server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		stopBlobServer(srv)
	}()
	logger.Info("blob server listening", logging.String("address", listener.Addr().String()))
	return srv, nil
}

func stopBlobServer(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
