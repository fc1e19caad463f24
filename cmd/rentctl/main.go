package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bete/backend/internal/models"
	"github.com/bete/backend/internal/rentcycle"
	"github.com/bete/backend/internal/storage"
)

type options struct {
	dataDir   string
	rollover  string
	cycleDays int
	server    string
	token     string
}

func main() {
	_ = godotenv.Load()

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "rentctl",
		Short: "Keep rent reminders offline and sync them to an account later",
	}
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", defaultDataDir(), "directory holding reminders.json")
	rootCmd.PersistentFlags().StringVar(&opts.rollover, "rollover", rentcycle.RolloverFixed, "fixed or monthly")
	rootCmd.PersistentFlags().IntVar(&opts.cycleDays, "cycle-days", rentcycle.DefaultCycleDays, "days per cycle for the fixed rollover")

	rootCmd.AddCommand(addCmd(opts), listCmd(opts), payCmd(opts), rmCmd(opts), favCmd(opts), syncCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("RENTCTL_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bete"
	}
	return filepath.Join(home, ".bete")
}

func (o *options) store() (*storage.GuestReminderStore, error) {
	policy, err := rentcycle.PolicyFor(o.rollover, o.cycleDays)
	if err != nil {
		return nil, err
	}
	js, err := storage.NewJSONStore(o.dataDir, "reminders.json")
	if err != nil {
		return nil, err
	}
	return storage.NewGuestReminderStore(js, time.Local, policy), nil
}

func (o *options) favorites() (*storage.GuestFavoriteStore, error) {
	js, err := storage.NewJSONStore(o.dataDir, "favorites.json")
	if err != nil {
		return nil, err
	}
	return storage.NewGuestFavoriteStore(js), nil
}

func addCmd(opts *options) *cobra.Command {
	req := models.CreateReminderRequest{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a reminder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs := req.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid reminder: %s", formatErrors(errs))
			}
			store, err := opts.store()
			if err != nil {
				return err
			}
			rem, err := store.Add(req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s, next due %s\n", rem.ID, rem.NextDue)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Role, "role", "tenant", "tenant (you pay) or owner (you collect)")
	cmd.Flags().StringVar(&req.Counterparty, "with", "", "who you pay or collect from")
	cmd.Flags().Float64Var(&req.Amount, "amount", 0, "rent amount")
	cmd.Flags().StringVar(&req.DueDate, "due", "", "next due date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reminders with their due status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			items, err := store.List()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no reminders")
				return nil
			}
			printReminders(cmd.OutOrStdout(), items, time.Now())
			return nil
		},
	}
}

func printReminders(out io.Writer, items []storage.GuestReminder, now time.Time) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tWITH\tAMOUNT\tDUE\tSTATUS")
	for _, it := range items {
		st := rentcycle.ClassifyString(it.NextDue, now, time.Local)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", it.ID, it.Role, it.Counterparty, it.Amount, it.NextDue, st.Label)
	}
	_ = tw.Flush()
}

func payCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <id>",
		Short: "Mark the current cycle paid and move to the next due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			rem, err := store.Pay(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paid, next due %s\n", rem.NextDue)
			return nil
		},
	}
}

func rmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			return store.Remove(args[0])
		},
	}
}

func favCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fav",
		Short: "Keep favorite listings on this device",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <property-id>",
		Short: "Add or remove a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			favs, err := opts.favorites()
			if err != nil {
				return err
			}
			on, err := favs.Toggle(args[0])
			if err != nil {
				return err
			}
			if on {
				fmt.Fprintf(cmd.OutOrStdout(), "%s added to favorites\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed from favorites\n", args[0])
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List favorite property ids in the order they were added",
		RunE: func(cmd *cobra.Command, args []string) error {
			favs, err := opts.favorites()
			if err != nil {
				return err
			}
			set, err := favs.List()
			if err != nil {
				return err
			}
			for _, id := range set {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})
	return cmd
}

func syncCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import local reminders and favorites into a signed-in account, then clear them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				return fmt.Errorf("a token is required (--token or BETE_TOKEN)")
			}
			store, err := opts.store()
			if err != nil {
				return err
			}
			favs, err := opts.favorites()
			if err != nil {
				return err
			}
			api := newAPIClient(opts.server, opts.token)
			n, err := syncReminders(cmd.Context(), api, store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d reminders\n", n)
			n, err = syncFavorites(cmd.Context(), api, favs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d favorites\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", envOr("BETE_SERVER", "http://localhost:4000"), "API base URL")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("BETE_TOKEN"), "bearer token of the account to import into")
	return cmd
}

func formatErrors(errs map[string]string) string {
	parts := make([]string, 0, len(errs))
	for field, msg := range errs {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, ", ")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
