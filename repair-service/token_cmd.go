package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/handlers"
)

type tokenOptions struct {
	UserID     string
	Role       string
	WorkshopID string
	TTL        time.Duration
}

// newTokenCmd signs a session token for local testing. Production tokens
// come from the identity service sharing SESSION_SECRET.
func newTokenCmd() *cobra.Command {
	var opts tokenOptions

	cmd := &cobra.Command{
		Use:   "token --user <id> --role <customer|mechanic|admin>",
		Short: "Issue a development session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.UserID) == "" {
				return errors.New("--user is required")
			}
			role := domain.Role(opts.Role)
			if !role.Valid() {
				return fmt.Errorf("--role must be customer, mechanic or admin, got %q", opts.Role)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := handlers.NewToken([]byte(cfg.SessionSecret), opts.UserID, role, opts.WorkshopID, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (sub claim)")
	cmd.Flags().StringVar(&opts.Role, "role", string(domain.RoleCustomer), "customer, mechanic or admin")
	cmd.Flags().StringVar(&opts.WorkshopID, "workshop", "", "workshop id of a mechanic")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
