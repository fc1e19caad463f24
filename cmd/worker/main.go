package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bete/backend/internal/app"
	"github.com/bete/backend/internal/config"
	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/middleware"
	"github.com/bete/backend/internal/supervisor"
)

func main() {
	_ = godotenv.Load()

	var addr string
	var noSweep bool
	rootCmd := &cobra.Command{
		Use:   "bete-worker",
		Short: "Background jobs: image moderation events and rent reminder pushes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			server := &http.Server{
				Addr:              addr,
				Handler:           workerRouter(a),
				ReadHeaderTimeout: cfg.Server.RequestTimeout,
			}

			tree := supervisor.New("bete-worker", supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})
			tree.Add(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
			if !noSweep {
				tree.Add(a.Sweeper)
			}

			logging.Info().Str("address", addr).Bool("moderation", a.Moderation != nil).Msg("worker starting")
			if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	rootCmd.Flags().StringVar(&addr, "addr", envOr("WORKER_ADDR", ":8080"), "listen address for health and event delivery")
	rootCmd.Flags().BoolVar(&noSweep, "no-sweep", false, "only handle moderation events")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func workerRouter(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Health(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if a.Moderation != nil {
		r.Method(http.MethodPost, "/events", &finalizeHandler{
			moderation: a.Moderation,
			properties: a.Properties,
			strikes:    a.Strikes,
		})
	} else {
		logging.Warn().Msg("uploads are not moderated, /events disabled")
	}
	return r
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
