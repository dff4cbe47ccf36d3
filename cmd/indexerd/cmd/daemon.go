package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fsgraph/indexer/internal/app"
	"github.com/fsgraph/indexer/internal/config"
	"github.com/fsgraph/indexer/internal/daemon"
	"github.com/fsgraph/indexer/internal/lifecycle"
	"github.com/fsgraph/indexer/internal/watch"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background indexing/search daemon",
		Long: `The daemon holds the WatchManager and HybridSearchService in memory and
serves subscribe/search/status requests over a Unix domain socket, so CLI
invocations don't pay graph-store/embedder connection setup on every call.`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		Long: `Start the daemon. Blocks until interrupted (SIGINT/SIGTERM), at which
point it gracefully stops every subscription's watcher and closes the
graph store connection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStart(cmd.Context(), skipPreflight)
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip startup reachability checks")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  "Sends SIGTERM to the daemon process recorded in its PID file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStop()
		},
	}
}

func runDaemonStart(ctx context.Context, skipPreflight bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	if err := resumeSubscriptions(ctx, a); err != nil {
		return fmt.Errorf("resume subscriptions: %w", err)
	}

	if !skipPreflight {
		results, err := a.RunPreflight(ctx)
		for _, r := range results {
			slog.Info("preflight check", slog.String("name", r.Name), slog.String("status", string(r.Status)), slog.String("message", r.Message))
		}
		if err != nil {
			return err
		}
	}

	daemonCfg := daemon.DefaultConfig()
	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)
	if err := pidFile.Write(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = pidFile.Remove() }()

	server, err := daemon.NewServer(daemonCfg.SocketPath)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	server.SetHandler(app.NewHandler(a))

	runCtx, stop := lifecycle.NotifyContext(ctx)
	defer stop()

	coord := lifecycle.New(daemonCfg.ShutdownGracePeriod)
	coord.Register("server", func(ctx context.Context) error {
		return server.Close()
	})
	coord.Register("watch manager", func(ctx context.Context) error {
		return a.Watch.Shutdown(ctx)
	})
	coord.Register("graph store", func(ctx context.Context) error {
		return a.Close(ctx)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe(runCtx) }()

	select {
	case <-runCtx.Done():
		slog.Info("daemon: shutdown signal received")
		return coord.Shutdown(context.Background())
	case err := <-errCh:
		shutdownErr := coord.Shutdown(context.Background())
		if err != nil {
			return err
		}
		return shutdownErr
	}
}

// resumeSubscriptions re-reads every Subscription node persisted by a prior
// daemon run and re-subscribes the WatchManager to each one, so killing and
// restarting the daemon doesn't silently drop watchers: a restart
// re-reads subscriptions from the graph and resumes their walkers.
func resumeSubscriptions(ctx context.Context, a *app.App) error {
	subs, err := a.Store.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		req := watch.SubscribeRequest{
			ID:                 sub.ID,
			Path:               sub.RootPath,
			Recursive:          sub.Recursive,
			IgnorePatterns:     sub.ExcludePatterns,
			DebounceWindow:     sub.DebounceWindow,
			GenerateEmbeddings: sub.GenerateEmbeddings,
		}
		if err := a.Watch.Subscribe(ctx, req); err != nil {
			slog.Warn("daemon: failed to resume subscription", slog.String("id", sub.ID), slog.String("path", sub.RootPath), slog.String("error", err.Error()))
			continue
		}
		slog.Info("daemon: resumed subscription", slog.String("id", sub.ID), slog.String("path", sub.RootPath))
	}
	return nil
}

func runDaemonStop() error {
	daemonCfg := daemon.DefaultConfig()
	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)
	return pidFile.Signal(syscall.SIGTERM)
}
