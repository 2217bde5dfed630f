package agent

import (
	"time"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/task"
)

// Assignment errors. Both are precondition failures.
var (
	ErrNoAgents          = errs.E(errs.KindPreconditionFailed, "assign", "no agents in roster")
	ErrNoAvailableAgents = errs.E(errs.KindPreconditionFailed, "assign", "no available agents")
)

// Load is an agent's share of the task set.
type Load struct {
	Agent  string `json:"agent"`
	Status Status `json:"status"`
	Role   string `json:"role,omitempty"`
	Open   int    `json:"open"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
}

// Workload counts tasks per agent in roster order. Open counts every task
// assigned to the agent that is not done.
func Workload(tasks []*task.Task, agents []Agent) []Load {
	idx := make(map[string]int, len(agents))
	loads := make([]Load, len(agents))
	for i, a := range agents {
		loads[i] = Load{Agent: a.Key(), Status: a.Status, Role: a.Role}
		if _, dup := idx[a.Key()]; !dup {
			idx[a.Key()] = i
		}
	}
	for _, t := range tasks {
		i, ok := idx[t.Agent]
		if !ok || t.Agent == "" {
			continue
		}
		loads[i].Total++
		if t.IsDone() {
			loads[i].Done++
		} else {
			loads[i].Open++
		}
	}
	return loads
}

// AssignAgent picks the available agent with the fewest open tasks. Ties go
// to the agent listed first.
func AssignAgent(tasks []*task.Task, agents []Agent) (string, error) {
	if len(agents) == 0 {
		return "", ErrNoAgents
	}
	loads := Workload(tasks, agents)
	best := -1
	for i, a := range agents {
		if !a.Available() {
			continue
		}
		if best < 0 || loads[i].Open < loads[best].Open {
			best = i
		}
	}
	if best < 0 {
		return "", ErrNoAvailableAgents
	}
	return agents[best].Key(), nil
}

// Delegate assigns the least-loaded available agent to the task named by
// rawID and stamps it with now. A pending task is promoted to in-progress;
// other statuses are kept.
func Delegate(tasks []*task.Task, agents []Agent, rawID string, now time.Time) (*task.Task, error) {
	id, err := task.ParseTaskID(rawID)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindInvalidInput, Op: "delegate", Err: err}
	}
	var target *task.Task
	for _, t := range tasks {
		if t.ID == id {
			target = t
			break
		}
	}
	if target == nil {
		return nil, errs.E(errs.KindNotFound, "delegate", "task %d not found", id)
	}
	name, err := AssignAgent(tasks, agents)
	if err != nil {
		return nil, err
	}
	target.Agent = name
	if target.Status.OrPending() == task.StatusPending {
		target.Status = task.StatusInProgress
	}
	target.UpdatedAt = now
	return target, nil
}

// Assignment records one agent placed on a task.
type Assignment struct {
	TaskID int    `json:"taskId"`
	Agent  string `json:"agent"`
}

// AssignRoundRobin backfills every unassigned task with
// agents[task.ID % len(agents)]. Agent availability is not consulted; this is
// the bulk policy, distinct from Delegate.
func AssignRoundRobin(tasks []*task.Task, agents []Agent, now time.Time) ([]Assignment, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	var out []Assignment
	for _, t := range tasks {
		if t.Agent != "" {
			continue
		}
		a := agents[t.ID%len(agents)]
		t.Agent = a.Key()
		t.UpdatedAt = now
		out = append(out, Assignment{TaskID: t.ID, Agent: t.Agent})
	}
	return out, nil
}
