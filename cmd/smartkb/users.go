package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/youufis/SmartKB/internal/identity"
)

var (
	userName     string
	userPassword string
	userRole     string
	userClass    string
	userDisplay  string
	userGender   string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user",
	Long: `Add a user to the directory.

Examples:
  smartkb users add --username t01 --password secret --role teacher --class 高一1班
  smartkb users add --username s001 --password secret --class 高一1班 --name 张三`,
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := identity.ParseRole(userRole)
		if err != nil {
			return err
		}
		a, err := newApp(os.Stderr, true, false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		u := identity.User{Username: userName, Class: userClass, Name: userDisplay, Gender: userGender, Role: role}
		if err := a.directory.AddUser(cmd.Context(), u, userPassword); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", userName, role)
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr, true, false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.directory.List(cmd.Context())
		if err != nil {
			return err
		}
		renderUsers(cmd.OutOrStdout(), users)
		return nil
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&userName, "username", "", "login name")
	usersAddCmd.Flags().StringVar(&userPassword, "password", "", "password")
	usersAddCmd.Flags().StringVar(&userRole, "role", "regular", "admin, teacher or regular")
	usersAddCmd.Flags().StringVar(&userClass, "class", "", "class (cohort)")
	usersAddCmd.Flags().StringVar(&userDisplay, "name", "", "display name")
	usersAddCmd.Flags().StringVar(&userGender, "gender", "", "gender")
	_ = usersAddCmd.MarkFlagRequired("username")
	_ = usersAddCmd.MarkFlagRequired("password")
	usersCmd.AddCommand(usersAddCmd, usersListCmd)
}
