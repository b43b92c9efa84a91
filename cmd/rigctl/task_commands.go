package main

import (
	"fmt"
	"strconv"

	"github.com/labops/rigctl/internal/store"
	"github.com/spf13/cobra"
)

// createTaskCommand creates the task command with subcommands.
func createTaskCommand(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task catalog commands",
		Long: `Manage the catalog of experiment tasks setups can run.

Examples:
  rigctl task list
  rigctl task create --name 2afc --protocol two_alt_forced_choice
  rigctl task delete 3`,
	}
	cmd.AddCommand(
		createTaskListCommand(g),
		createTaskCreateCommand(g),
		createTaskUpdateCommand(g),
		createTaskDeleteCommand(g),
	)
	return cmd
}

func createTaskListCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newAPIClient(g)
			tasks, err := c.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(tasks)
			return nil
		},
	}
}

func taskFlags(cmd *cobra.Command, t *store.Task) {
	cmd.Flags().StringVar(&t.Name, "name", "", "task display name")
	cmd.Flags().StringVar(&t.Protocol, "protocol", "", "protocol identifier used by the experiment runtime")
	cmd.Flags().StringVar(&t.Description, "description", "", "free-form description")
}

func createTaskCreateCommand(g *GlobalFlags) *cobra.Command {
	var t store.Task
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a task to the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if t.Name == "" {
				return fmt.Errorf("task create requires --name")
			}
			c := newAPIClient(g)
			created, err := c.CreateTask(cmd.Context(), t)
			if err != nil {
				return err
			}
			printJSON(created)
			return nil
		},
	}
	taskFlags(cmd, &t)
	return cmd
}

func createTaskUpdateCommand(g *GlobalFlags) *cobra.Command {
	var t store.Task
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a catalog task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			t.ID = id
			c := newAPIClient(g)
			updated, err := c.UpdateTask(cmd.Context(), t)
			if err != nil {
				return err
			}
			printJSON(updated)
			return nil
		},
	}
	taskFlags(cmd, &t)
	return cmd
}

func createTaskDeleteCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a task from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			c := newAPIClient(g)
			if err := c.DeleteTask(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Deleted task %d\n", id)
			return nil
		},
	}
}
