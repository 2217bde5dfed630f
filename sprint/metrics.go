package sprint

import (
	"slices"

	"github.com/GoCodeAlone/taskmaster/task"
)

// Metrics summarises a sprint by its own task id list.
type Metrics struct {
	ID             ID      `json:"id"`
	Name           string  `json:"name,omitempty"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"inProgress"`
	Remaining      int     `json:"remaining"`
	CompletionRate float64 `json:"completionRate"`
	Utilization    float64 `json:"utilization,omitempty"`
}

// Compute counts the tasks listed in s.Tasks. Only done counts as
// completed here; ids that do not resolve are not counted.
func Compute(s *Sprint, tasks []*task.Task) Metrics {
	byID := make(map[int]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	m := Metrics{ID: s.ID, Name: s.Name}
	seen := make(map[int]bool, len(s.Tasks))
	for _, id := range s.Tasks {
		t, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		m.Total++
		switch t.Status {
		case task.StatusDone:
			m.Completed++
		case task.StatusInProgress:
			m.InProgress++
		}
	}
	m.Remaining = m.Total - m.Completed
	if m.Total > 0 {
		m.CompletionRate = percent(m.Completed, m.Total)
	}
	if s.Capacity > 0 {
		m.Utilization = percent(m.Total, s.Capacity)
	}
	return m
}

func percent(n, d int) float64 {
	return float64(n*10000/d) / 100
}

// Report is the task-owned view of a sprint: every task whose sprint field
// names the sprint.
type Report struct {
	Sprint  string       `json:"sprint"`
	Summary Summary      `json:"summary"`
	Tasks   []*task.Task `json:"tasks"`
}

// Summary is the count block of a Report.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// BuildReport collects the tasks whose sprint field equals sprintID. Both
// done and the legacy completed status count as complete.
func BuildReport(tasks []*task.Task, sprintID string) Report {
	r := Report{Sprint: sprintID, Tasks: []*task.Task{}}
	for _, t := range tasks {
		if string(t.Sprint) != sprintID {
			continue
		}
		r.Tasks = append(r.Tasks, t)
		r.Summary.Total++
		if t.Status == task.StatusDone || t.Status == task.StatusCompleted {
			r.Summary.Completed++
		}
	}
	return r
}

// Exclusion explains why a task was left out of a plan.
type Exclusion struct {
	TaskID int    `json:"taskId"`
	Reason string `json:"reason"`
}

// PlanResult is the outcome of AutoPlan.
type PlanResult struct {
	Sprint   *Sprint     `json:"sprint"`
	Included []int       `json:"included"`
	Excluded []Exclusion `json:"excluded"`
}

// plannable statuses; done, cancelled, and deferred work stays out.
var plannable = map[task.Status]bool{
	task.StatusPending:    true,
	task.StatusInProgress: true,
	task.StatusReview:     true,
	task.StatusBlocked:    true,
}

// AutoPlan replaces s.Tasks with every open task, highest priority first
// then by id. A positive limit caps how many are included.
func AutoPlan(s *Sprint, tasks []*task.Task, limit int) PlanResult {
	res := PlanResult{Sprint: s, Included: []int{}, Excluded: []Exclusion{}}
	var candidates []*task.Task
	for _, t := range tasks {
		if !plannable[t.Status.OrPending()] {
			res.Excluded = append(res.Excluded, Exclusion{TaskID: t.ID, Reason: "status " + string(t.Status)})
			continue
		}
		candidates = append(candidates, t)
	}
	slices.SortStableFunc(candidates, func(a, b *task.Task) int {
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra - rb
		}
		return a.ID - b.ID
	})
	for _, t := range candidates {
		if limit > 0 && len(res.Included) >= limit {
			res.Excluded = append(res.Excluded, Exclusion{TaskID: t.ID, Reason: "limit"})
			continue
		}
		res.Included = append(res.Included, t.ID)
	}
	s.Tasks = append([]int{}, res.Included...)
	return res
}
