package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/volunteerd/internal/auth"
	"github.com/dukerupert/volunteerd/internal/config"
)

// tokenCmd issues bearer tokens signed with the configured secret, for
// local development and scripted access.
func tokenCmd() *cobra.Command {
	var (
		userID int64
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !auth.ValidRole(role) {
				return fmt.Errorf("unknown role %q: want %s or %s", role, auth.RoleStaff, auth.RoleVolunteer)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			tok, err := auth.NewTokens(cfg.TokenSecret).Issue(auth.AuthContext{UserID: userID, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "User ID the token is issued to")
	cmd.Flags().StringVar(&role, "role", auth.RoleVolunteer, "staff or volunteer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
