package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/tasks"
)

var tasksCreator string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect classroom tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task lists of one creator, or of every admin and teacher",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr, true, false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		creators := []string{tasksCreator}
		if tasksCreator == "" {
			creators = nil
			for _, role := range []identity.Role{identity.RoleAdmin, identity.RoleTeacher} {
				names, err := a.directory.UsersWithRole(cmd.Context(), role)
				if err != nil {
					return err
				}
				creators = append(creators, names...)
			}
		}

		var all []tasks.Task
		for _, c := range creators {
			list, err := a.taskStore.Load(c)
			if err != nil {
				return fmt.Errorf("loading tasks of %s: %w", c, err)
			}
			all = append(all, list.Tasks...)
		}
		renderTasks(cmd.OutOrStdout(), "Tasks", all)
		return nil
	},
}

var tasksActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the unified active task index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr, true, false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		renderTasks(cmd.OutOrStdout(), "Active tasks", a.taskStore.ReadUnifiedIndex(cmd.Context()).Tasks)
		return nil
	},
}

var tasksRebuildCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Recompute the unified active task index from every creator's list",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Stderr, true, false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.taskStore.RebuildUnifiedIndex(cmd.Context())
		if err != nil {
			return err
		}
		renderTasks(cmd.OutOrStdout(), "Active tasks", list.Tasks)
		return nil
	},
}

func init() {
	tasksListCmd.Flags().StringVar(&tasksCreator, "creator", "", "only this creator's tasks")
	tasksCmd.AddCommand(tasksListCmd, tasksActiveCmd, tasksRebuildCmd)
}
