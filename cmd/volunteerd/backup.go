package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/volunteerd/internal/backup"
	"github.com/dukerupert/volunteerd/internal/config"
	"github.com/dukerupert/volunteerd/internal/database"
	"github.com/dukerupert/volunteerd/internal/logging"
)

func newArchiver(cfg *config.Config) (*backup.Archiver, error) {
	if !cfg.BackupEnabled() {
		return nil, errors.New("backups are not configured: set backup.s3_bucket")
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat).With("component", "backup")
	return backup.New(backup.S3Config{
		Endpoint:  cfg.Backup.Endpoint,
		Bucket:    cfg.Backup.Bucket,
		Region:    cfg.Backup.Region,
		AccessKey: cfg.Backup.AccessKey,
		SecretKey: cfg.Backup.SecretKey,
		Prefix:    cfg.Backup.Prefix,
	}, cfg.Backup.Passphrase, logger)
}

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage encrypted database backups",
	}
	cmd.AddCommand(backupRunCmd(), backupListCmd(), backupPruneCmd(), backupRestoreCmd())
	return cmd
}

func backupRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Snapshot the database and upload it now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a, err := newArchiver(cfg)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			obj, err := a.Run(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", obj.Key, obj.Size)
			return nil
		},
	}
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a, err := newArchiver(cfg)
			if err != nil {
				return err
			}
			objects, err := a.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tUPLOADED")
			for _, o := range objects {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func backupPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete backups older than the configured retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a, err := newArchiver(cfg)
			if err != nil {
				return err
			}
			n, err := a.Prune(cmd.Context(), cfg.Backup.Retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d backups\n", n)
			return nil
		},
	}
}

func backupRestoreCmd() *cobra.Command {
	var key, out string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Download and decrypt a backup into a new database file",
		Long: `Restore writes the backup to --out, which must not exist. Stop the server,
move the restored file over db_path, then start it again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a, err := newArchiver(cfg)
			if err != nil {
				return err
			}
			if err := a.Restore(cmd.Context(), key, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", key, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Object key of the backup (see backup list)")
	cmd.Flags().StringVar(&out, "out", "", "Path of the database file to create")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("out")
	return cmd
}
