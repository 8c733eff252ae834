package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/sambamount/internal/metrics"
	"github.com/edumarques81/sambamount/internal/transport/rest"
	"github.com/edumarques81/sambamount/internal/transport/socketio"
	"github.com/edumarques81/sambamount/internal/version"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and Socket.io service",
	Long: `Serve the mount API over Socket.io (mount_samba, unmount_samba,
list_mounted) and REST (/api/v1/mounts), and reconcile the registry with the
live mount table in the background.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	printBanner()

	reg := prometheus.NewRegistry()
	var mt *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mt = metrics.New(reg)
	}

	mgr, closeStore, err := openManager(cfg, mt)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("Failed to release registry")
		}
	}()

	socketServer, err := socketio.NewServer(mgr, socketio.WithMaxRemoteClients(cfg.Server.MaxRemoteClients))
	if err != nil {
		return fmt.Errorf("failed to create Socket.io server: %w", err)
	}
	defer socketServer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	socketServer.StartMountWatcher(ctx, cfg.Reconcile.Interval)

	routes := rest.RouterConfig{
		Mounts:    mgr,
		OnChange:  socketServer.NotifyChanged,
		SocketIO:  socketServer,
		StaticDir: cfg.Server.StaticDir,
	}
	if cfg.Metrics.Enabled {
		routes.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     rest.NewRouter(routes),
		ReadTimeout: 30 * time.Second,
		// A mount may take its full timeout plus a cleanup unmount.
		WriteTimeout: max(30*time.Second, cfg.Mount.Timeout+cfg.Mount.UnmountTimeout+5*time.Second),
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func printBanner() {
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", version.GetInfo().String())
	log.Info().Msg("  SMB/CIFS Mount Manager")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Int("port", cfg.Server.Port).
		Str("registry", cfg.Registry.Path).
		Str("base_dir", cfg.Mount.BaseDir).
		Dur("mount_timeout", cfg.Mount.Timeout).
		Dur("reconcile_interval", cfg.Reconcile.Interval).
		Bool("use_sudo", cfg.Mount.UseSudo).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("Configuration")
}
