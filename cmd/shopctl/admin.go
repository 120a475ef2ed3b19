package main

import (
	"errors"
	"fmt"

	identityapp "github.com/shopfront/backend/internal/application/identity"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"github.com/shopfront/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
)

func createAdminCmd(open func() (*env, error)) *cobra.Command {
	var req identityapp.CreateAdminRequest
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Email == "" || req.Password == "" {
				return errors.New("--email and --password are required")
			}
			if req.Name == "" {
				req.Name = "Administrator"
			}

			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			users := identityapp.NewUserService(
				persistence.NewGormUserRepository(e.db.DB),
				auth.NewJWTService(e.cfg.JWT),
				auth.NewInMemoryTokenBlacklist(),
				e.log,
			)
			user, err := users.CreateAdmin(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&req.Password, "password", "", "admin password")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	return cmd
}
