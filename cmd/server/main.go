package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bete/backend/internal/app"
	"github.com/bete/backend/internal/config"
	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/supervisor"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "bete-server",
		Short: "Rental marketplace API: listings, chat, rentals and rent reminders",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return app.New(ctx, cfg)
}

func serveCmd() *cobra.Command {
	var noSweep, noMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, chat relay and reminder sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !noMigrate {
				if err := a.Migrate(); err != nil {
					return err
				}
			}

			cfg := a.Config
			server := &http.Server{
				Addr:              cfg.Server.Address,
				Handler:           a.Router(),
				ReadHeaderTimeout: cfg.Server.RequestTimeout,
			}

			tree := supervisor.New("bete", supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})
			tree.Add(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
			tree.Add(a.Hub)
			if !noSweep {
				tree.Add(a.Sweeper)
			}

			logging.Info().Str("address", cfg.Server.Address).Msg("server starting")
			if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logging.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the reminder sweeper in this process")
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip schema migration on start")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Migrate(); err != nil {
				return err
			}
			fmt.Println("Migration completed")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("checked %d, notified %d, failed %d\n", res.Checked, res.Notified, res.Failed)
			return nil
		},
	}
}
