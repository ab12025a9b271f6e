// Command upstairsd runs the Upstairs coordination core as a standalone
// daemon: it coordinates three Downstairs replicas, serves the guest
// control-plane socket, and exposes Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/config"
	"github.com/basinlabs/upstairs/internal/history"
	"github.com/basinlabs/upstairs/internal/lockfile"
	"github.com/basinlabs/upstairs/internal/logging"
	"github.com/basinlabs/upstairs/internal/rpcserver"
	"github.com/basinlabs/upstairs/internal/upstairs"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "upstairsd",
		Short: "Upstairs coordination core daemon",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	var generation uint64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon and serve the guest control-plane socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath, generation)
		},
	}
	cmd.Flags().Uint64Var(&generation, "generation", 1, "guest-supplied activation generation number")
	return cmd
}

func runServe(configPath string, generation uint64) error {
	cfg, v, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(logging.Options{
		Path:  cfg.LogPath,
		Level: logging.ParseLevel(cfg.LogLevel),
		Also:  os.Stderr,
	})

	if cfg.RegionDir != "" {
		lock, err := lockfile.Acquire(cfg.RegionDir, "upstairsd", Version)
		if err != nil {
			return fmt.Errorf("acquire region lock: %w", err)
		}
		defer lock.Close()
	}

	co := upstairs.NewCoordinator(cfg.Targets, cfg.ExtentSizeBlocks, cfg.ExtentCount)
	if err := co.Activate(generation, 0); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	guest := upstairs.NewGuestBridge(co)

	metrics := upstairs.NewMetrics(prometheus.DefaultRegisterer)
	metrics.Observe(co)

	var hist *history.Store
	if cfg.RegionDir != "" {
		hist, err = history.Open(filepath.Join(cfg.RegionDir, "history.db"))
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer hist.Close()
	}

	config.WatchAndReload(v, log, func(next *config.Config) {
		log.Info("config change observed; most fields require a restart to take effect")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	srv := rpcserver.New(cfg.SocketPath, guestUUID(co), guest, co, log)
	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Error("rpcserver exited", "error", err)
		}
	}()

	httpSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server exited", "error", err)
		}
	}()

	log.Info("upstairsd serving", "socket", cfg.SocketPath, "metrics_addr", cfg.MetricsAddr)
	<-ctx.Done()

	_ = srv.Stop()
	_ = httpSrv.Close()
	return nil
}

func guestUUID(co *upstairs.Coordinator) string {
	// A fresh UUID is minted on every call; the Upstairs identity is not
	// persisted, so it changes each time the daemon starts.
	return uuid.NewString()
}
