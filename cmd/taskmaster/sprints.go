package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskmaster/sprint"
)

func newSprintCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprint",
		Short: "Manage sprints",
	}
	cmd.AddCommand(
		newSprintListCmd(a),
		newSprintShowCmd(a),
		newSprintCreateCmd(a),
		newSprintUpdateCmd(a),
		newSprintPlanCmd(a),
		newSprintMetricsCmd(a),
		newSprintReportCmd(a),
	)
	return cmd
}

func newSprintListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sprints, err := a.svc.ListSprints(a.ctx(cmd))
			if err != nil {
				return err
			}
			return a.emit(sprints, func(w io.Writer) {
				if len(sprints) == 0 {
					fmt.Fprintln(w, "no sprints")
					return
				}
				fmt.Fprintf(w, "%-12s %-30s %-10s %-23s %s\n", "ID", "NAME", "STATUS", "DATES", "TASKS")
				fmt.Fprintln(w, strings.Repeat("-", 84))
				for _, s := range sprints {
					fmt.Fprintf(w, "%-12s %-30s %-10s %-23s %d\n",
						s.ID, truncate(s.Name, 30), s.Status, dates(s), len(s.Tasks))
				}
			})
		},
	}
}

func dates(s *sprint.Sprint) string {
	if s.StartDate == "" && s.EndDate == "" {
		return "-"
	}
	return orDash(s.StartDate) + ".." + orDash(s.EndDate)
}

func newSprintShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.GetSprint(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			return a.emit(s, func(w io.Writer) {
				fmt.Fprintf(w, "Sprint %s: %s\n", s.ID, s.Name)
				fmt.Fprintf(w, "  Status:   %s\n", label(string(s.Status)))
				fmt.Fprintf(w, "  Dates:    %s\n", dates(s))
				if s.Goal != "" {
					fmt.Fprintf(w, "  Goal:     %s\n", s.Goal)
				}
				if s.Capacity > 0 {
					fmt.Fprintf(w, "  Capacity: %d\n", s.Capacity)
				}
				fmt.Fprintf(w, "  Tasks:    %s\n", joinInts(s.Tasks))
			})
		},
	}
}

func newSprintCreateCmd(a *app) *cobra.Command {
	var s sprint.Sprint
	var id string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a sprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s.ID = sprint.ID(id)
			created, err := a.svc.CreateSprint(a.ctx(cmd), &s)
			if err != nil {
				return err
			}
			return a.emit(created, func(w io.Writer) {
				success(w, "created sprint %s: %s", created.ID, created.Name)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&id, "id", "", "sprint id (generated when empty)")
	fs.StringVarP(&s.Name, "name", "n", "", "sprint name")
	fs.StringVar(&s.Goal, "goal", "", "sprint goal")
	fs.StringVar(&s.StartDate, "start", "", "start date")
	fs.StringVar(&s.EndDate, "end", "", "end date")
	fs.IntVar(&s.Capacity, "capacity", 0, "task capacity")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSprintUpdateCmd(a *app) *cobra.Command {
	var (
		name, goal, status, start, end string
		capacity                       int
		tasks                          []int
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p sprint.Patch
			fs := cmd.Flags()
			if fs.Changed("name") {
				p.Name = &name
			}
			if fs.Changed("goal") {
				p.Goal = &goal
			}
			if fs.Changed("status") {
				st := sprint.Status(status)
				p.Status = &st
			}
			if fs.Changed("start") {
				p.StartDate = &start
			}
			if fs.Changed("end") {
				p.EndDate = &end
			}
			if fs.Changed("capacity") {
				p.Capacity = &capacity
			}
			if fs.Changed("tasks") {
				p.Tasks = &tasks
			}
			s, err := a.svc.UpdateSprint(a.ctx(cmd), args[0], p)
			if err != nil {
				return err
			}
			return a.emit(s, func(w io.Writer) { success(w, "updated sprint %s", s.ID) })
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&name, "name", "n", "", "sprint name")
	fs.StringVar(&goal, "goal", "", "sprint goal")
	fs.StringVarP(&status, "status", "s", "", "planning, active, or completed")
	fs.StringVar(&start, "start", "", "start date")
	fs.StringVar(&end, "end", "", "end date")
	fs.IntVar(&capacity, "capacity", 0, "task capacity")
	fs.IntSliceVar(&tasks, "tasks", nil, "replace the task list")
	return cmd
}

func newSprintPlanCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "plan <id>",
		Short: "Fill a sprint with open tasks by priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.PlanSprint(a.ctx(cmd), args[0], limit)
			if err != nil {
				return err
			}
			return a.emit(res, func(w io.Writer) {
				success(w, "sprint %s planned with %d tasks: %s", res.Sprint.ID, len(res.Included), joinInts(res.Included))
				for _, ex := range res.Excluded {
					fmt.Fprintf(w, "  skipped %d: %s\n", ex.TaskID, ex.Reason)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks (0 uses the sprint capacity)")
	return cmd
}

func newSprintMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [id]",
		Short: "Show sprint completion metrics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			ms, err := a.svc.SprintMetrics(a.ctx(cmd), id)
			if err != nil {
				return err
			}
			return a.emit(ms, func(w io.Writer) {
				if len(ms) == 0 {
					fmt.Fprintln(w, "no sprints")
					return
				}
				fmt.Fprintf(w, "%-12s %-24s %6s %6s %6s %6s %8s\n", "ID", "NAME", "TOTAL", "DONE", "WIP", "LEFT", "RATE")
				fmt.Fprintln(w, strings.Repeat("-", 76))
				for _, m := range ms {
					fmt.Fprintf(w, "%-12s %-24s %6d %6d %6d %6d %7.2f%%\n",
						m.ID, truncate(m.Name, 24), m.Total, m.Completed, m.InProgress, m.Remaining, m.CompletionRate)
				}
			})
		},
	}
}

func newSprintReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <id>",
		Short: "List the tasks tagged with a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.svc.SprintReport(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			return a.emit(rep, func(w io.Writer) {
				fmt.Fprintf(w, "Sprint %s: %d/%d complete\n", rep.Sprint, rep.Summary.Completed, rep.Summary.Total)
				for _, t := range rep.Tasks {
					fmt.Fprintf(w, "  %-6d %s %s\n", t.ID, colorStatus(t.Status, 12), t.Title)
				}
			})
		},
	}
}
