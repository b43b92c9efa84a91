package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// createUserCommand creates the user command with subcommands.
func createUserCommand(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User account commands",
		Long: `Manage user accounts for server authentication.

Examples:
  rigctl user create --username admin --password secret --role admin
  rigctl user list
  rigctl user delete bob`,
	}
	cmd.AddCommand(
		createUserCreateCommand(g),
		createUserListCommand(g),
		createUserDeleteCommand(g),
	)
	return cmd
}

func createUserCreateCommand(g *GlobalFlags) *cobra.Command {
	var username, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("user create requires --username and --password")
			}
			c := newAPIClient(g)
			if err := c.CreateUser(cmd.Context(), username, password, role); err != nil {
				return err
			}
			fmt.Printf("Created user %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&role, "role", "operator", "account role (admin|operator)")
	return cmd
}

func createUserListCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newAPIClient(g)
			users, err := c.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(users)
			return nil
		},
	}
}

func createUserDeleteCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g)
			if err := c.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted user %s\n", args[0])
			return nil
		},
	}
}
