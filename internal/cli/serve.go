package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/epochsim/internal/catalog"
	"github.com/snehjoshi/epochsim/internal/config"
	"github.com/snehjoshi/epochsim/internal/logging"
	"github.com/snehjoshi/epochsim/internal/metrics"
	"github.com/snehjoshi/epochsim/internal/scenario"
	"github.com/snehjoshi/epochsim/internal/session"
	transphttp "github.com/snehjoshi/epochsim/internal/transport/http"
)

func newServeCmd(a *app) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the EpochSim HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			// The config file decides logging unless the flags were given.
			log := a.log
			if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-format") {
				log = logging.NewWithWriter(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg, log)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file (missing file means defaults)")
	return cmd
}

// Serve runs the server described by cfg until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// ── 1. Scenario preset store ─────────────────────────────────────────────
	store, err := scenario.OpenStore(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("open preset store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("preset store close error", "err", err)
		}
	}()

	// ── 2. Metrics & sessions ────────────────────────────────────────────────
	reg := &metrics.Registry{}
	cat := catalog.Default()
	mgr := session.NewManager(cat, session.LimitsFromConfig(cfg.Simulation),
		session.WithMetrics(reg),
		session.WithLogger(log),
	)

	// ── 3. HTTP / WebSocket transport ────────────────────────────────────────
	srv := transphttp.New(mgr, cfg,
		transphttp.WithPresets(store),
		transphttp.WithMetrics(reg),
		transphttp.WithLogger(log),
	)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("epochsim ready", "addr", addr, "algorithms", cat.Names(), "data_dir", cfg.Server.DataDir)
		if err := srv.ListenAndServe(addr); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	// ── 4. Dedicated Prometheus listener ─────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           reg.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server error", "err", err)
			}
		}()
	}

	// ── 5. Graceful shutdown ─────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		mgr.Close()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mgr.Close()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn("server shutdown error", "err", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutCtx)
	}

	log.Info("epochsim stopped")
	return nil
}
