package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/remind/internal/backup"
	"github.com/dukerupert/remind/internal/config"
	"github.com/dukerupert/remind/internal/database"
	"github.com/dukerupert/remind/internal/store"
)

func backupCommand(load func() (config.Application, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run, list and restore encrypted database backups",
	}

	withManager := func(fn func(cmd *cobra.Command, m *backup.Manager, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cfg.BackupConfigured() {
				return backup.ErrDisabled
			}
			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			m := backup.NewManager(backupConfig(cfg), db, store.NewBackupStore(db), slog.Default().With("component", "backup"))
			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "now",
			Short: "Take a backup immediately",
			RunE: withManager(func(cmd *cobra.Command, m *backup.Manager, _ []string) error {
				rec, err := m.RunNow(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backup %d uploaded to %s (%d bytes)\n", rec.ID, rec.S3Key, rec.SizeBytes)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List recent backups",
			RunE: withManager(func(cmd *cobra.Command, m *backup.Manager, _ []string) error {
				backups, err := m.List(50)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tSIZE\tKEY")
				for _, b := range backups {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04"), b.Status, b.SizeBytes, b.S3Key)
				}
				return tw.Flush()
			}),
		},
		&cobra.Command{
			Use:   "restore <id> <dest.db>",
			Short: "Download, decrypt and verify a backup into a new database file",
			Args:  cobra.ExactArgs(2),
			RunE: withManager(func(cmd *cobra.Command, m *backup.Manager, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid backup id %q", args[0])
				}
				if err := m.Restore(cmd.Context(), id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored backup %d to %s; stop the server and replace the database to use it\n", id, args[1])
				return nil
			}),
		},
	)
	return cmd
}
