package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdb/internal/hashing"
	"github.com/roach88/hyperdb/internal/pattern"
	"github.com/roach88/hyperdb/internal/server"
)

// NewKeysCommand creates the keys command.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <type> <handle>...",
		Short: "Print the pattern index keys a link would be stored under",
		Long: `Print the 2^(n+1)-1 pattern keys for a link of the given type over n target
handles, in mask order. No store is opened.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			hashes := append([]string{hashing.NamedTypeHash(args[0])}, args[1:]...)
			return formatter.Success(pattern.Keys(hashes))
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every atom from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				if err := s.store.Clear(cmd.Context()); err != nil {
					return fail(formatter, "clear failed", err)
				}
				return formatter.Success("cleared")
			})
		},
	}
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Long: `Serve the store over HTTP until interrupted. Metrics are exposed at
/metrics. Pending writes are committed on shutdown.

Example:
  hyperdb --db ./animals.db serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (defaults to server.addr from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withSession(ctx, opts.RootOptions, formatter, func(s *session) error {
		addr := opts.Addr
		if addr == "" {
			addr = s.cfg.Server.Addr
		}

		srv := server.New(s.store, s.registry, s.logger)
		serveErr := srv.Run(ctx, addr)

		// ctx is cancelled by now.
		if err := s.store.Commit(context.WithoutCancel(cmd.Context())); err != nil {
			return fail(formatter, "failed to commit on shutdown", err)
		}
		if serveErr != nil {
			return fail(formatter, "server error", serveErr)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})
}
