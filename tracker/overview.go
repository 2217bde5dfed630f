package tracker

import (
	"context"

	"github.com/GoCodeAlone/taskmaster/agent"
	"github.com/GoCodeAlone/taskmaster/sprint"
	"github.com/GoCodeAlone/taskmaster/task"
)

// Overview is the dashboard summary behind GET /api/metrics.
type Overview struct {
	Revision         int64                 `json:"revision"`
	Total            int                   `json:"total"`
	ByStatus         map[task.Status]int   `json:"byStatus"`
	ByPriority       map[task.Priority]int `json:"byPriority"`
	Completed        int                   `json:"completed"`
	CompletionRate   float64               `json:"completionRate"`
	Subtasks         int                   `json:"subtasks"`
	SubtasksDone     int                   `json:"subtasksDone"`
	Unassigned       int                   `json:"unassigned"`
	Agents           int                   `json:"agents"`
	Sprints          int                   `json:"sprints"`
	DependencyIssues int                   `json:"dependencyIssues"`
}

// Overview summarises the task set, roster, and sprints.
func (s *Service) Overview(_ context.Context) (*Overview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	r, err := agent.LoadRoster(s.opts.AgentsPath)
	if err != nil {
		return nil, err
	}
	d, err := sprint.Load(s.opts.SprintsPath)
	if err != nil {
		return nil, err
	}

	o := &Overview{
		Revision:   st.Revision(),
		ByStatus:   make(map[task.Status]int),
		ByPriority: make(map[task.Priority]int),
		Agents:     len(r.Agents),
		Sprints:    len(d.Sprints),
	}
	for _, t := range st.Tasks() {
		o.Total++
		o.ByStatus[t.Status]++
		o.ByPriority[t.Priority]++
		if t.IsDone() {
			o.Completed++
		}
		if t.Agent == "" {
			o.Unassigned++
		}
		for _, sub := range t.Subtasks {
			o.Subtasks++
			if sub.Status == task.StatusDone {
				o.SubtasksDone++
			}
		}
	}
	if o.Total > 0 {
		o.CompletionRate = float64(o.Completed*10000/o.Total) / 100
	}
	o.DependencyIssues = len(st.ValidateDependencies())
	return o, nil
}
