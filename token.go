package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"payments-playground-api/config"
	"payments-playground-api/services/auth"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		roles  []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT with the configured key and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			jwtService, err := auth.NewJWTService(cfg.JWT)
			if err != nil {
				return err
			}

			if userID == "" {
				userID = cfg.Defaults.UserID
			}
			if len(roles) == 0 {
				roles = cfg.Defaults.Roles
			}
			for _, r := range roles {
				if r != auth.RolePublic && r != auth.RolePrivate {
					return fmt.Errorf(`role must be either "public" or "private", got %q`, r)
				}
			}

			issued, err := jwtService.Issue(userID, roles)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(issued)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "subject (entity id); defaults to DEFAULT_USER_ID")
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "role claim, repeatable (public, private)")

	return cmd
}
