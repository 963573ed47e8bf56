package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pedsclinic/clinicadmin/internal/domain/scheduling"
	"github.com/pedsclinic/clinicadmin/internal/platform/render"
)

func scheduleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"schedules"},
		Short:   "Timing of the backend's report and reminder jobs",
	}
	cmd.AddCommand(scheduleListCmd(a), scheduleGetCmd(a), scheduleSetCmd(a))
	return cmd
}

func scheduleListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Current timing of every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := a.schedSvc.Overview(cmd.Context())
			return a.print(rows, func() render.Table {
				t := render.Table{Headers: []string{"TASK", "NAME", "KIND", "SCHEDULE", "ERROR"}}
				for _, r := range rows {
					t.AddRow(r.Task.ID, r.Task.Name, string(r.Task.Kind), render.Dash(r.Description), render.Dash(r.State.Error))
				}
				return t
			})
		},
	}
}

func taskIDs() string {
	ids := make([]string, len(scheduling.Tasks))
	for i, t := range scheduling.Tasks {
		ids[i] = t.ID
	}
	return strings.Join(ids, ", ")
}

func scheduleGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task>",
		Short: "Show one task's timing",
		Long:  "Show one task's timing. Tasks: " + taskIDs(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := scheduling.Lookup(args[0])
			if !ok {
				return &scheduling.UnknownTaskError{ID: args[0]}
			}
			cfg, err := a.schedSvc.Fetch(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			return a.print(cfg, func() render.Table {
				tb := render.Table{Title: t.Name, Headers: []string{"ENDPOINT", "SCHEDULE"}}
				tb.AddRow("/"+t.Endpoint+"/", cfg.Describe(t))
				return tb
			})
		},
	}
}

func scheduleSetCmd(a *app) *cobra.Command {
	var (
		every, hour, minute int
		period              string
		enabled             bool
	)
	cmd := &cobra.Command{
		Use:   "set <task>",
		Short: "Send a new timing to the scheduler",
		Long: "Send a new timing to the scheduler. Interval tasks take --every and --period, " +
			"the doctor appointment reminder takes --hour and --minute. Omitted flags use the task's defaults.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := scheduling.Lookup(args[0])
			if !ok {
				return &scheduling.UnknownTaskError{ID: args[0]}
			}
			var in scheduling.Input
			flags := cmd.Flags()
			if flags.Changed("every") {
				in.Every = &every
			}
			if flags.Changed("period") {
				in.Period = &period
			}
			if flags.Changed("hour") {
				in.Hour = &hour
			}
			if flags.Changed("minute") {
				in.Minute = &minute
			}
			if flags.Changed("enabled") {
				in.Enabled = &enabled
			}

			cfg, err := a.schedSvc.Create(cmd.Context(), t.ID, in.Resolve(t))
			a.record(cmd.Context(), http.MethodPost, "schedules/"+t.ID, 0, "create", err)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %s\n", t.Name, cfg.Describe(t))
			if cfg.Message != "" {
				fmt.Fprintln(a.out, cfg.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&every, "every", 1, "Run every N periods")
	cmd.Flags().StringVar(&period, "period", "", "seconds, minutes, hours or days")
	cmd.Flags().IntVar(&hour, "hour", 0, "Hour of day, 0-23")
	cmd.Flags().IntVar(&minute, "minute", 0, "Minute, 0-59")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether the task runs")
	return cmd
}
