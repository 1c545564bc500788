package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "volunteerd",
		Short: "Volunteer opportunity, RSVP and hours service",
		Long: `volunteerd schedules volunteer opportunities (one-off or recurring),
tracks RSVPs against each opportunity's capacity, and records volunteer hours.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("VOLUNTEERD_CONFIG"), "Path to a YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(vapidKeysCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
