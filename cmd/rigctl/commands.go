package main

import (
	"fmt"
	"time"

	"github.com/labops/rigctl/internal/control"
	"github.com/spf13/cobra"
)

// UpdateFlags holds the operator-editable fields for update/bulk.
type UpdateFlags struct {
	Status     string
	TaskIdx    int
	AnimalID   string
	Session    int
	Difficulty int
	IP         string
	StartTime  string
	StopTime   string
	Notes      string
	UserName   string
}

func registerUpdateFlags(cmd *cobra.Command, f *UpdateFlags) {
	cmd.Flags().StringVar(&f.Status, "status", "", "target status (ready|running|stop|sleeping|exit)")
	cmd.Flags().IntVar(&f.TaskIdx, "task", 0, "task catalog index")
	cmd.Flags().StringVar(&f.AnimalID, "animal", "", "animal identifier")
	cmd.Flags().IntVar(&f.Session, "session", 0, "session number")
	cmd.Flags().IntVar(&f.Difficulty, "difficulty", 0, "task difficulty level")
	cmd.Flags().StringVar(&f.IP, "ip", "", "setup machine address")
	cmd.Flags().StringVar(&f.StartTime, "start-time", "", "daily start hint, HH:MM (empty clears)")
	cmd.Flags().StringVar(&f.StopTime, "stop-time", "", "daily stop hint, HH:MM (empty clears)")
	cmd.Flags().StringVar(&f.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&f.UserName, "user", "", "responsible experimenter")
}

func (f *UpdateFlags) patch(cmd *cobra.Command) control.FieldPatch {
	fl := cmd.Flags()
	return control.FieldPatch{
		TaskIdx:    intFlag(fl, "task", f.TaskIdx),
		AnimalID:   strFlag(fl, "animal", f.AnimalID),
		Session:    intFlag(fl, "session", f.Session),
		Difficulty: intFlag(fl, "difficulty", f.Difficulty),
		IP:         strFlag(fl, "ip", f.IP),
		StartTime:  strFlag(fl, "start-time", f.StartTime),
		StopTime:   strFlag(fl, "stop-time", f.StopTime),
		Notes:      strFlag(fl, "notes", f.Notes),
		UserName:   strFlag(fl, "user", f.UserName),
	}
}

func createLoginCommand(g *GlobalFlags) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and print a bearer token",
		Long: `Authenticate against the server and print a token for use with
--token on subsequent commands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("login requires --username and --password")
			}
			c := newAPIClient(g)
			if err := c.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Println(c.Token())
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func createStatusCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [setup...]",
		Short: "Show setup records",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g)
			recs, err := c.ListSetups(cmd.Context(), args...)
			if err != nil {
				return err
			}
			printJSON(recs)
			return nil
		},
	}
}

func createUpdateCommand(g *GlobalFlags) *cobra.Command {
	flags := &UpdateFlags{}
	cmd := &cobra.Command{
		Use:   "update <setup>",
		Short: "Edit setup fields and optionally request a status transition",
		Long: `Apply a partial update to one setup. Only flags given on the
command line are sent; everything else keeps its stored value. When
--status is set the transition is validated first and the whole update
is rejected if the edge is not allowed.

Examples:
  rigctl update rig01 --animal m042 --session 3
  rigctl update rig01 --status running
  rigctl update rig01 --start-time 09:00 --stop-time 17:30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g)
			rec, err := c.UpdateSetup(cmd.Context(), args[0], flags.patch(cmd), flags.Status)
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}
	registerUpdateFlags(cmd, flags)
	return cmd
}

func createBulkCommand(g *GlobalFlags) *cobra.Command {
	flags := &UpdateFlags{}
	var setups []string
	cmd := &cobra.Command{
		Use:   "bulk --setups a,b,c",
		Short: "Apply the same update to several setups",
		Long: `Apply one field patch and optional status transition to a list
of setups. Each setup is updated independently; failures on one never
roll back another. The result reports the updated count and the
per-setup errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(setups) == 0 {
				return fmt.Errorf("bulk requires --setups")
			}
			c := newAPIClient(g)
			res, err := c.BulkUpdateSetups(cmd.Context(), setups, flags.patch(cmd), flags.Status)
			if err != nil {
				return err
			}
			printJSON(res)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&setups, "setups", nil, "comma-separated setup names")
	registerUpdateFlags(cmd, flags)
	return cmd
}

func createHeartbeatCommand(g *GlobalFlags) *cobra.Command {
	var (
		trials int
		queue  int
		liquid float64
		state  string
		ping   string
	)
	cmd := &cobra.Command{
		Use:   "heartbeat <setup>",
		Short: "Report live metrics for a setup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hb := control.Heartbeat{
				Trials:      trials,
				QueueSize:   queue,
				TotalLiquid: liquid,
				State:       state,
			}
			if ping != "" {
				t, err := time.Parse(time.RFC3339, ping)
				if err != nil {
					return fmt.Errorf("invalid --ping-time: %w", err)
				}
				hb.PingTime = t
			}
			c := newAPIClient(g)
			return c.SendHeartbeat(cmd.Context(), args[0], hb)
		},
	}
	cmd.Flags().IntVar(&trials, "trials", 0, "completed trial count")
	cmd.Flags().IntVar(&queue, "queue", 0, "pending event queue size")
	cmd.Flags().Float64Var(&liquid, "liquid", 0, "total reward liquid delivered (ml)")
	cmd.Flags().StringVar(&state, "state", "", "experiment runtime state")
	cmd.Flags().StringVar(&ping, "ping-time", "", "ping timestamp, RFC3339 (default now)")
	return cmd
}

func createFaultCommand(g *GlobalFlags) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "fault <setup>",
		Short: "Report a fault and move the setup to exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g)
			rec, err := c.ReportFault(cmd.Context(), args[0], state)
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "fault description")
	return cmd
}

func createActivityCommand(g *GlobalFlags) *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "activity <setup>",
		Short: "Show windowed behavioral activity for a setup",
		Long: `Fetch a behavioral event snapshot for the setup's current
session. The window is a trailing second count or "all" for the whole
session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g)
			snap, err := c.GetActivity(cmd.Context(), args[0], window)
			if err != nil {
				return err
			}
			printJSON(snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&window, "window", "60", `trailing window in seconds, or "all"`)
	return cmd
}

func createRebootCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reboot <setup>",
		Short: "Reboot the setup machine over SSH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g)
			if err := c.Reboot(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Reboot requested for %s\n", args[0])
			return nil
		},
	}
}
