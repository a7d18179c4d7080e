package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session",
		Long: `Authenticate against the CargoViz API and store the token for later commands.

The password may be passed with --password or the CARGOVIZ_PASSWORD environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CARGOVIZ_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}

			resp, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := a.session.Begin(resp.Token, resp.User); err != nil {
				return err
			}

			logger.Info("logged in",
				zap.String("user", resp.User.ID),
				zap.String("organization", resp.User.OrganizationID),
			)
			fmt.Printf("Logged in as %s (%s)\n", resp.User.Name, resp.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (or set CARGOVIZ_PASSWORD)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			a.session.Clear()
			fmt.Println("Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user and organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			user, err := a.requireUser()
			if err != nil {
				return err
			}

			org, err := a.client.GetMyOrganization(cmd.Context(), user.ID)
			if err != nil {
				return fmt.Errorf("fetching organization: %w", err)
			}

			fmt.Printf("User:         %s <%s> (%s)\n", user.Name, user.Email, user.Role)
			fmt.Printf("Organization: %s (%s)\n", org.Name, org.ID)
			return nil
		},
	}
}
