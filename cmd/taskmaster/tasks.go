package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/task"
	"github.com/GoCodeAlone/taskmaster/tracker"
)

func newListCmd(a *app) *cobra.Command {
	var (
		status       string
		agentName    string
		sprintID     string
		withSubtasks bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := task.Filter{Agent: agentName, Sprint: sprintID}
			if status != "" {
				st, err := task.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = &st
			}
			tasks, err := a.svc.ListTasks(a.ctx(cmd), f)
			if err != nil {
				return err
			}
			return a.emit(tasks, func(w io.Writer) {
				if len(tasks) == 0 {
					fmt.Fprintln(w, "no tasks")
					return
				}
				fmt.Fprintf(w, "%-6s %-40s %-12s %-8s %-10s %s\n", "ID", "TITLE", "STATUS", "PRIO", "AGENT", "DEPS")
				fmt.Fprintln(w, strings.Repeat("-", 90))
				for _, t := range tasks {
					fmt.Fprintf(w, "%-6d %-40s %s %s %-10s %s\n",
						t.ID,
						truncate(t.Title, 40),
						colorStatus(t.Status, 12),
						priorityColor(t.Priority).Sprintf("%-8s", t.Priority),
						orDash(t.Agent),
						joinInts(t.Dependencies))
					if !withSubtasks {
						continue
					}
					for _, s := range t.Subtasks {
						fmt.Fprintf(w, "  %-4s %-38s %s\n",
							fmt.Sprintf("%d.%d", t.ID, s.ID),
							truncate(s.Title, 38),
							colorStatus(s.Status, 12))
					}
				}
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&status, "status", "s", "", "only tasks with this status")
	fs.StringVar(&agentName, "agent", "", "only tasks assigned to this agent")
	fs.StringVar(&sprintID, "sprint", "", "only tasks in this sprint")
	fs.BoolVar(&withSubtasks, "with-subtasks", false, "show subtasks")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := task.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			t, err := a.svc.GetTask(a.ctx(cmd), id)
			if err != nil {
				return err
			}
			return a.emit(t, func(w io.Writer) { printTask(w, t) })
		},
	}
}

func printTask(w io.Writer, t *task.Task) {
	fmt.Fprintf(w, "Task %d: %s\n", t.ID, t.Title)
	fmt.Fprintf(w, "  Status:       %s\n", statusColor(t.Status).Sprint(label(string(t.Status))))
	fmt.Fprintf(w, "  Priority:     %s\n", priorityColor(t.Priority).Sprint(label(string(t.Priority))))
	fmt.Fprintf(w, "  Agent:        %s\n", orDash(t.Agent))
	fmt.Fprintf(w, "  Sprint:       %s\n", orDash(string(t.Sprint)))
	fmt.Fprintf(w, "  Dependencies: %s\n", joinInts(t.Dependencies))
	if t.Progress != nil {
		fmt.Fprintf(w, "  Progress:     %d%%\n", *t.Progress)
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if t.Details != "" {
		fmt.Fprintf(w, "\nDetails:\n%s\n", t.Details)
	}
	if t.TestStrategy != "" {
		fmt.Fprintf(w, "\nTest strategy:\n%s\n", t.TestStrategy)
	}
	if len(t.Subtasks) > 0 {
		fmt.Fprintln(w, "\nSubtasks:")
		for _, s := range t.Subtasks {
			fmt.Fprintf(w, "  %d.%d  %s  %s\n", t.ID, s.ID, colorStatus(s.Status, 12), s.Title)
		}
	}
}

func newAddTaskCmd(a *app) *cobra.Command {
	var (
		t        task.Task
		priority string
		deps     []int
	)
	cmd := &cobra.Command{
		Use:   "add-task",
		Short: "Add a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if priority != "" {
				p, err := task.ParsePriority(priority)
				if err != nil {
					return err
				}
				t.Priority = p
			}
			t.Dependencies = deps
			created, err := a.svc.CreateTask(a.ctx(cmd), &t)
			if err != nil {
				return err
			}
			return a.emit(created, func(w io.Writer) {
				success(w, "created task %d: %s", created.ID, created.Title)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&t.Title, "title", "t", "", "task title")
	fs.StringVar(&t.Description, "description", "", "task description")
	fs.StringVar(&t.Details, "details", "", "implementation details")
	fs.StringVar(&t.TestStrategy, "test-strategy", "", "how the task is verified")
	fs.StringVarP(&priority, "priority", "p", "", "high, medium, or low")
	fs.IntSliceVar(&deps, "dependencies", nil, "ids of tasks this one depends on")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newUpdateTaskCmd(a *app) *cobra.Command {
	var (
		title, description, details, priority, status, agentName, sprintID string
		progress                                                            int
		deps                                                                []int
	)
	cmd := &cobra.Command{
		Use:   "update-task <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := task.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			var u tracker.TaskUpdate
			fs := cmd.Flags()
			if fs.Changed("title") {
				u.Title = &title
			}
			if fs.Changed("description") {
				u.Description = &description
			}
			if fs.Changed("details") {
				u.Details = &details
			}
			if fs.Changed("priority") {
				p, err := task.ParsePriority(priority)
				if err != nil {
					return err
				}
				u.Priority = &p
			}
			if fs.Changed("dependencies") {
				u.Dependencies = &deps
			}
			if fs.Changed("agent") {
				u.Agent = &agentName
			}
			if fs.Changed("sprint") {
				u.Sprint = &sprintID
			}
			if fs.Changed("progress") {
				u.Progress = &progress
			}
			if fs.Changed("status") {
				u.Status = &status
			}
			t, err := a.svc.UpdateTask(a.ctx(cmd), id, u)
			if err != nil {
				return err
			}
			return a.emit(t, func(w io.Writer) { success(w, "updated task %d", t.ID) })
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&title, "title", "", "new title")
	fs.StringVar(&description, "description", "", "new description")
	fs.StringVar(&details, "details", "", "new details")
	fs.StringVar(&priority, "priority", "", "new priority")
	fs.StringVar(&status, "status", "", "new status")
	fs.StringVar(&agentName, "agent", "", "assign to agent (empty clears)")
	fs.StringVar(&sprintID, "sprint", "", "sprint id (empty clears)")
	fs.IntVar(&progress, "progress", 0, "progress percentage")
	fs.IntSliceVar(&deps, "dependencies", nil, "replace the dependency list")
	return cmd
}

func newSetStatusCmd(a *app) *cobra.Command {
	var ids, status string
	cmd := &cobra.Command{
		Use:   "set-status",
		Short: "Set the status of one or more tasks or subtasks",
		Long: `Set the status of a comma-separated list of task ids ("3") and subtask
ids ("3.2"). Either every id is updated or none is. Marking a task done also
completes its subtasks.`,
		Example: "  taskmaster set-status --id 3,4.1 --status done",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.svc.SetStatus(a.ctx(cmd), ids, status)
			if err != nil {
				return err
			}
			return a.emit(res.Summary(), func(w io.Writer) {
				for _, c := range res.Changes {
					note := ""
					if c.Cascaded {
						note = " (cascaded)"
					}
					success(w, "%s: %s → %s%s", c.TaskID,
						colorStatus(c.OldStatus, 0), colorStatus(c.NewStatus, 0), note)
				}
				if len(res.Changes) == 0 {
					fmt.Fprintf(w, "already %s, nothing to do\n", res.Status)
				}
				for _, issue := range res.Warnings {
					warn(w, "%s", issue)
				}
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&ids, "id", "i", "", "task or subtask ids, comma-separated")
	fs.StringVarP(&status, "status", "s", "", strings.Join(statusNames(), ", "))
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func statusNames() []string {
	all := task.Statuses()
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = string(s)
	}
	return out
}

func newRemoveTaskCmd(a *app) *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "remove-task",
		Short: "Remove a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.svc.DeleteTask(a.ctx(cmd), id)
			if err != nil {
				return err
			}
			return a.emit(t, func(w io.Writer) { success(w, "removed task %d: %s", t.ID, t.Title) })
		},
	}
	cmd.Flags().IntVarP(&id, "id", "i", 0, "task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newAddSubtaskCmd(a *app) *cobra.Command {
	var (
		parent int
		sub    task.Subtask
	)
	cmd := &cobra.Command{
		Use:   "add-subtask",
		Short: "Add a subtask to a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			added, err := a.svc.AddSubtask(a.ctx(cmd), parent, &sub)
			if err != nil {
				return err
			}
			return a.emit(added, func(w io.Writer) {
				success(w, "added subtask %d.%d: %s", parent, added.ID, added.Title)
			})
		},
	}
	fs := cmd.Flags()
	fs.IntVarP(&parent, "parent", "p", 0, "parent task id")
	fs.StringVarP(&sub.Title, "title", "t", "", "subtask title")
	fs.StringVar(&sub.Description, "description", "", "subtask description")
	fs.IntSliceVar(&sub.Dependencies, "dependencies", nil, "sibling subtask ids")
	_ = cmd.MarkFlagRequired("parent")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newRemoveSubtaskCmd(a *app) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "remove-subtask",
		Short: "Remove a subtask",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := task.ParseID(raw)
			if err != nil {
				return err
			}
			if !id.IsSubtask() {
				return errs.E(errs.KindInvalidInput, "remove-subtask", "%q is not a subtask id", raw)
			}
			if err := a.svc.RemoveSubtask(a.ctx(cmd), id.Task, id.Sub); err != nil {
				return err
			}
			if a.flags.jsonOut {
				return a.printJSON(map[string]string{"removed": id.String()})
			}
			success(a.out, "removed subtask %s", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&raw, "id", "i", "", "subtask id, e.g. 3.2")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newValidateDepsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-dependencies",
		Short: "Report dependencies that do not resolve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues, err := a.svc.ValidateDependencies(a.ctx(cmd))
			if err != nil {
				return err
			}
			return a.emit(map[string]any{"valid": len(issues) == 0, "issues": issues}, func(w io.Writer) {
				if len(issues) == 0 {
					success(w, "all dependencies are valid")
					return
				}
				for _, issue := range issues {
					warn(w, "%s", issue)
				}
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarise the task set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := a.svc.Overview(a.ctx(cmd))
			if err != nil {
				return err
			}
			return a.emit(o, func(w io.Writer) {
				fmt.Fprintf(w, "Tasks:      %d (%d done, %.2f%%)\n", o.Total, o.Completed, o.CompletionRate)
				fmt.Fprintf(w, "Subtasks:   %d (%d done)\n", o.Subtasks, o.SubtasksDone)
				fmt.Fprintf(w, "Unassigned: %d\n", o.Unassigned)
				fmt.Fprintf(w, "Agents:     %d\n", o.Agents)
				fmt.Fprintf(w, "Sprints:    %d\n", o.Sprints)
				fmt.Fprintln(w)
				for _, s := range task.Statuses() {
					if n := o.ByStatus[s]; n > 0 {
						fmt.Fprintf(w, "  %s %d\n", statusColor(s).Sprintf("%-12s", label(string(s))), n)
					}
				}
				if o.DependencyIssues > 0 {
					warn(w, "%d dependency issues; run validate-dependencies", o.DependencyIssues)
				}
			})
		},
	}
}
