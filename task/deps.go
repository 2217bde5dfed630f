package task

import "fmt"

// DependencyIssue describes a dependency that does not resolve.
type DependencyIssue struct {
	TaskID     string `json:"taskId"`
	Dependency string `json:"dependency"`
	Reason     string `json:"reason"`
}

func (d DependencyIssue) String() string {
	return fmt.Sprintf("%s -> %s: %s", d.TaskID, d.Dependency, d.Reason)
}

// ValidateDependencies checks every task and subtask dependency against the
// whole store. Task dependencies must name an existing task; subtask
// dependencies must name a sibling subtask. The result is advisory.
func (s *Store) ValidateDependencies() []DependencyIssue {
	ids := make(map[int]bool, len(s.file.Tasks))
	for _, t := range s.file.Tasks {
		ids[t.ID] = true
	}

	var issues []DependencyIssue
	for _, t := range s.file.Tasks {
		for _, dep := range t.Dependencies {
			switch {
			case dep == t.ID:
				issues = append(issues, DependencyIssue{
					TaskID: ID{Task: t.ID}.String(), Dependency: ID{Task: dep}.String(), Reason: "self-dependency",
				})
			case !ids[dep]:
				issues = append(issues, DependencyIssue{
					TaskID: ID{Task: t.ID}.String(), Dependency: ID{Task: dep}.String(), Reason: "missing task",
				})
			}
		}
		for _, sub := range t.Subtasks {
			for _, dep := range sub.Dependencies {
				self := ID{Task: t.ID, Sub: sub.ID}.String()
				switch {
				case dep == sub.ID:
					issues = append(issues, DependencyIssue{
						TaskID: self, Dependency: ID{Task: t.ID, Sub: dep}.String(), Reason: "self-dependency",
					})
				case t.Subtask(dep) == nil:
					issues = append(issues, DependencyIssue{
						TaskID: self, Dependency: ID{Task: t.ID, Sub: dep}.String(), Reason: "missing subtask",
					})
				}
			}
		}
	}
	return issues
}

// OpenDependencies returns the dependency ids of t that exist but are not
// done. Missing dependencies are left to ValidateDependencies.
func (s *Store) OpenDependencies(t *Task) []int {
	var open []int
	for _, dep := range t.Dependencies {
		if d, err := s.Task(dep); err == nil && !d.IsDone() {
			open = append(open, dep)
		}
	}
	return open
}
