// Package api defines the REST API handlers and the backend they drive.
package api

import (
	"context"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/agent"
	"github.com/GoCodeAlone/taskmaster/comms"
	"github.com/GoCodeAlone/taskmaster/sprint"
	"github.com/GoCodeAlone/taskmaster/task"
	"github.com/GoCodeAlone/taskmaster/tracker"
)

// Backend is what the handlers need from the tracker. *tracker.Service
// implements it.
type Backend interface {
	SetStatus(ctx context.Context, idSpec, status string) (*task.SetStatusResult, error)
	ListTasks(ctx context.Context, f task.Filter) ([]*task.Task, error)
	GetTask(ctx context.Context, id int) (*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) (*task.Task, error)
	UpdateTask(ctx context.Context, id int, u tracker.TaskUpdate) (*task.Task, error)
	DeleteTask(ctx context.Context, id int) (*task.Task, error)
	AddSubtask(ctx context.Context, taskID int, sub *task.Subtask) (*task.Subtask, error)
	RemoveSubtask(ctx context.Context, taskID, subID int) error
	ValidateDependencies(ctx context.Context) ([]task.DependencyIssue, error)

	ListAgents(ctx context.Context) ([]agent.Agent, error)
	UpdateAgent(ctx context.Context, key string, p agent.Patch) (*agent.Agent, error)
	AgentMetrics(ctx context.Context) ([]agent.Load, error)
	Delegate(ctx context.Context, rawID string) (*task.Task, error)
	AssignAll(ctx context.Context) ([]agent.Assignment, error)

	ListSprints(ctx context.Context) ([]*sprint.Sprint, error)
	GetSprint(ctx context.Context, id string) (*sprint.Sprint, error)
	CreateSprint(ctx context.Context, s *sprint.Sprint) (*sprint.Sprint, error)
	UpdateSprint(ctx context.Context, id string, p sprint.Patch) (*sprint.Sprint, error)
	PlanSprint(ctx context.Context, id string, limit int) (sprint.PlanResult, error)
	SprintMetrics(ctx context.Context, id string) ([]sprint.Metrics, error)
	SprintReport(ctx context.Context, id string) (sprint.Report, error)

	Overview(ctx context.Context) (*tracker.Overview, error)
	Activity(ctx context.Context, q activity.Query) ([]*activity.Entry, error)
	History(topic string, limit int) ([]*comms.Message, error)
}

var _ Backend = (*tracker.Service)(nil)
