package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inksync/internal/daemon"
	"inksync/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the daemon for all registered workspaces",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	manager := daemon.NewManager(cfg)
	if err := manager.StartAll(); err != nil {
		return err
	}

	workspaces, err := manager.Workspaces()
	if err != nil {
		return err
	}
	if len(workspaces) == 0 {
		logger.Log.Info("no workspaces configured, use 'inksync ws add <path>' to add one")
	}

	srv := daemon.NewServer(manager, cfg.DaemonPort)
	srv.Start()

	logger.Log.Info("inksync daemon started",
		zap.Int("workspaces", len(workspaces)),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	// The final snapshot and its bounded sync need more room than a bare
	// listener shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
