package cmd

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"rpmirror/internal/backend/mock"
	"rpmirror/pkg/logging"

	"github.com/spf13/cobra"
)

type mockServerOptions struct {
	host   string
	port   int
	apiKey string
	debug  bool
}

func newMockServerCmd() *cobra.Command {
	opts := &mockServerOptions{}
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve an in-memory reporting API for local runs",
		Long: `Starts an in-memory server implementing the reporting API used by
'rpmirror run'. Launches, items and logs are kept in memory and can be
inspected with GET /api/v2/{project}/launch/{id} and
GET /api/v2/{project}/item?launch={id}.

Example:
  rpmirror mock-server --port 8080 &
  RP_ENDPOINT=http://localhost:8080 RP_PROJECT=demo rpmirror run -- ./...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockServer(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "localhost", "Host to bind to")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Require this bearer token")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	return cmd
}

func runMockServer(cmd *cobra.Command, opts *mockServerOptions) error {
	level := logging.LevelInfo
	if opts.debug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(opts.host, fmt.Sprint(opts.port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mock reporting API listening on http://%s\n", l.Addr())

	return serveUntilDone(ctx, mock.New(mock.Options{APIKey: opts.apiKey}), l)
}

// serveUntilDone serves on l until ctx is done, then shuts the server down.
func serveUntilDone(ctx context.Context, srv *mock.Server, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("MockServer", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}
