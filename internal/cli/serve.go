package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/rill/internal/server"
	"github.com/roach88/rill/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	MaxSteps int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <program-dir>",
		Short: "Serve a program over HTTP",
		Long: `Serve a program over HTTP until interrupted.

Every POST /v1/dispatch/{unit} runs in a fresh scope; pass a snapshot id
in the body to continue from an archived snapshot, and ?save=true to
archive the result. Kernel metrics are served on /metrics.

Examples:
  rill serve ./counter --db ./rill.db
  rill serve ./counter --addr :9090 --db ./rill.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "per-tick step quota (0 keeps the kernel default)")

	return cmd
}

func runServe(opts *ServeOptions, dir string, cmd *cobra.Command) error {
	logger := leveledLogger(opts.RootOptions, cmd, slog.LevelInfo)

	prog, err := loadProgram(dir, logger)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(server.Config{
		Program:  prog,
		Store:    st,
		Logger:   logger,
		Registry: registry,
		MaxSteps: opts.MaxSteps,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, opts.Addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
