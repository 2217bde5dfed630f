package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/taskmaster/agent"
)

func newAgentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agents and their workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loads, err := a.svc.AgentMetrics(a.ctx(cmd))
			if err != nil {
				return err
			}
			return a.emit(loads, func(w io.Writer) {
				if len(loads) == 0 {
					fmt.Fprintln(w, "no agents")
					return
				}
				fmt.Fprintf(w, "%-20s %-12s %-16s %6s %6s %6s\n", "AGENT", "STATUS", "ROLE", "OPEN", "DONE", "TOTAL")
				fmt.Fprintln(w, strings.Repeat("-", 72))
				for _, l := range loads {
					fmt.Fprintf(w, "%-20s %s %-16s %6d %6d %6d\n",
						truncate(l.Agent, 20),
						agentStatusColor(l.Status).Sprintf("%-12s", l.Status),
						orDash(l.Role), l.Open, l.Done, l.Total)
				}
			})
		},
	}
	cmd.AddCommand(newAgentSetCmd(a))
	return cmd
}

func agentStatusColor(s agent.Status) *color.Color {
	switch s {
	case agent.StatusAvailable:
		return color.New(color.FgGreen)
	case agent.StatusBusy:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

func newAgentSetCmd(a *app) *cobra.Command {
	var (
		status   string
		role     string
		capacity int
	)
	cmd := &cobra.Command{
		Use:   "set <agent>",
		Short: "Change an agent's status, role, or daily capacity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p agent.Patch
			fs := cmd.Flags()
			if fs.Changed("status") {
				st := agent.Status(status)
				p.Status = &st
			}
			if fs.Changed("role") {
				p.Role = &role
			}
			if fs.Changed("capacity") {
				p.DailyCapacity = &capacity
			}
			ag, err := a.svc.UpdateAgent(a.ctx(cmd), args[0], p)
			if err != nil {
				return err
			}
			return a.emit(ag, func(w io.Writer) {
				success(w, "agent %s is %s", ag.Key(), label(string(ag.Status)))
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&status, "status", "s", "", "available, busy, away, or offline")
	fs.StringVar(&role, "role", "", "agent role")
	fs.IntVar(&capacity, "capacity", 0, "daily task capacity")
	return cmd
}

func newDelegateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delegate <id>",
		Short: "Assign a task to the least loaded available agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.svc.Delegate(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			return a.emit(t, func(w io.Writer) {
				success(w, "task %d delegated to %s (%s)", t.ID, t.Agent, colorStatus(t.Status, 0))
			})
		},
	}
}

func newAssignAgentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-agents",
		Short: "Assign every unassigned task round-robin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.svc.AssignAll(a.ctx(cmd))
			if err != nil {
				return err
			}
			return a.emit(out, func(w io.Writer) {
				if len(out) == 0 {
					fmt.Fprintln(w, "every task already has an agent")
					return
				}
				for _, as := range out {
					success(w, "task %d → %s", as.TaskID, as.Agent)
				}
			})
		},
	}
}
