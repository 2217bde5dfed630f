package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/task"
)

func newActivityCmd(a *app) *cobra.Command {
	var q activity.Query
	var kind string
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Kind = activity.Kind(kind)
			entries, err := a.svc.Activity(a.ctx(cmd), q)
			if err != nil {
				return err
			}
			return a.emit(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "no activity")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%s  %-15s %-6s %s\n",
						e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						label(string(e.Kind)),
						orDash(e.TaskID),
						describe(e))
				}
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&q.TaskID, "task", "", "only entries for this task and its subtasks")
	fs.StringVar(&kind, "kind", "", "only entries of this kind")
	fs.IntVarP(&q.Limit, "limit", "n", 20, "maximum entries")
	return cmd
}

func describe(e *activity.Entry) string {
	var parts []string
	if e.OldStatus != "" || e.NewStatus != "" {
		parts = append(parts, fmt.Sprintf("%s → %s",
			colorStatus(task.Status(orDash(string(e.OldStatus))), 0),
			colorStatus(e.NewStatus, 0)))
	}
	if e.Agent != "" {
		parts = append(parts, "agent "+e.Agent)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.UserID != "" {
		parts = append(parts, "by "+e.UserID)
	}
	return strings.Join(parts, "  ")
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(standalone(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			b, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = a.out.Write(b)
			return err
		},
	}))
	return cmd
}
