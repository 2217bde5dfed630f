// Package tracker runs task, agent, and sprint operations against the JSON
// documents on disk: load, apply the engine, save, record activity, publish.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/agent"
	"github.com/GoCodeAlone/taskmaster/comms"
	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/internal/logging"
	"github.com/GoCodeAlone/taskmaster/sprint"
	"github.com/GoCodeAlone/taskmaster/task"
)

// Bus topics.
const (
	TopicTasks   = "tasks"
	TopicAgents  = "agents"
	TopicSprints = "sprints"
	TopicStore   = "store"
)

// Options configure a Service.
type Options struct {
	TasksPath   string
	AgentsPath  string
	SprintsPath string
	Policy      task.TransitionPolicy
	Log         activity.Log // defaults to activity.Nop
	Bus         comms.Bus    // defaults to a fresh InMemoryBus
	Logger      *slog.Logger
	Clock       func() time.Time // defaults to the store's UTC wall clock
}

// Service serialises operations within one process. Across processes the
// tasks file revision detects concurrent writers.
type Service struct {
	mu     sync.Mutex
	opts   Options
	log    activity.Log
	bus    comms.Bus
	logger *slog.Logger
}

// New returns a Service over the files named in opts.
func New(opts Options) *Service {
	s := &Service{opts: opts, log: opts.Log, bus: opts.Bus, logger: opts.Logger}
	if s.log == nil {
		s.log = activity.Nop{}
	}
	if s.bus == nil {
		s.bus = comms.NewInMemoryBus()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Bus returns the bus events are published on.
func (s *Service) Bus() comms.Bus { return s.bus }

// TasksPath returns the tasks file path.
func (s *Service) TasksPath() string { return s.opts.TasksPath }

type userKey struct{}

// WithUser tags ctx with the acting user, recorded in the activity log.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the acting user stored by WithUser.
func UserFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

func (s *Service) publish(ctx context.Context, typ comms.MessageType, topic, subject string, payload any) {
	msg, err := comms.NewMessage(typ, topic, subject, payload)
	if err != nil {
		s.logger.Error("encode event", slog.String("type", string(typ)), slog.Any("err", err))
		return
	}
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.logger.Warn("publish event", slog.String("type", string(typ)), slog.Any("err", err))
	}
}

// record writes to the activity log. The data change is already on disk, so
// a logging failure is reported but does not fail the operation.
func (s *Service) record(ctx context.Context, e *activity.Entry) {
	if e.UserID == "" {
		e.UserID = UserFrom(ctx)
	}
	if err := s.log.Record(ctx, e); err != nil {
		s.logger.Warn("record activity", slog.String("kind", string(e.Kind)), slog.Any("err", err))
	}
}

func (s *Service) openTasks() (*task.Store, error) {
	st, err := task.Open(s.opts.TasksPath)
	if err != nil {
		return nil, err
	}
	if s.opts.Clock != nil {
		st.SetClock(s.opts.Clock)
	}
	return st, nil
}

func (s *Service) save(st *task.Store) error {
	if err := st.Save(); err != nil {
		return err
	}
	s.logger.Debug("tasks saved", slog.String("path", st.Path()), slog.Int64("revision", st.Revision()))
	return nil
}

// --- Tasks ---

// SetStatus applies a status change to the comma-separated idSpec.
func (s *Service) SetStatus(ctx context.Context, idSpec, status string) (*task.SetStatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	res, err := task.SetStatus(st, idSpec, status, task.WithPolicy(s.opts.Policy))
	if err != nil {
		return nil, err
	}
	if len(res.Changes) > 0 {
		if err := s.save(st); err != nil {
			return nil, err
		}
	}
	for _, w := range res.Warnings {
		s.logger.Warn("dependency issue", slog.String("issue", w.String()))
	}
	if err := activity.LogStatusChanges(ctx, s.log, UserFrom(ctx), res.Changes); err != nil {
		s.logger.Warn("record activity", slog.Any("err", err))
	}
	s.logger.Info("status set",
		slog.String("ids", idSpec),
		slog.String("status", string(res.Status)),
		slog.Int("changes", len(res.Changes)))
	if len(res.Changes) > 0 {
		s.publish(ctx, comms.TypeStatusChanged, TopicTasks, idSpec, res.Changes)
	}
	return res, nil
}

// ListTasks returns the tasks matching f.
func (s *Service) ListTasks(_ context.Context, f task.Filter) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.List(f), nil
}

// GetTask returns one task.
func (s *Service) GetTask(_ context.Context, id int) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Task(id)
}

// CreateTask adds t, creating the tasks file if needed.
func (s *Service) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := task.OpenOrCreate(s.opts.TasksPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	created, err := st.Add(t)
	if err != nil {
		return nil, err
	}
	if err := s.save(st); err != nil {
		return nil, err
	}
	s.record(ctx, &activity.Entry{
		Kind:      activity.KindCreated,
		TaskID:    strconv.Itoa(created.ID),
		NewStatus: created.Status,
		Message:   created.Title,
	})
	s.publish(ctx, comms.TypeTaskUpdate, TopicTasks, "created", created)
	return created, nil
}

// TaskUpdate is a partial update that may also move the task's status.
type TaskUpdate struct {
	task.Patch
	Status *string `json:"status,omitempty"`
}

// UpdateTask applies u to task id. A status change runs through the
// transition engine within the same write.
func (s *Service) UpdateTask(ctx context.Context, id int, u TaskUpdate) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	// Validate the status first so a bad value leaves nothing half-applied.
	if u.Status != nil {
		if _, err := task.ParseStatus(*u.Status); err != nil {
			return nil, err
		}
	}
	t, err := st.Update(id, u.Patch)
	if err != nil {
		return nil, err
	}
	var changes []task.Change
	if u.Status != nil {
		res, err := task.SetStatus(st, strconv.Itoa(id), *u.Status, task.WithPolicy(s.opts.Policy))
		if err != nil {
			return nil, err
		}
		changes = res.Changes
	}
	if err := s.save(st); err != nil {
		return nil, err
	}
	s.record(ctx, &activity.Entry{Kind: activity.KindUpdated, TaskID: strconv.Itoa(id), Message: t.Title})
	if err := activity.LogStatusChanges(ctx, s.log, UserFrom(ctx), changes); err != nil {
		s.logger.Warn("record activity", slog.Any("err", err))
	}
	s.publish(ctx, comms.TypeTaskUpdate, TopicTasks, "updated", t)
	return t, nil
}

// DeleteTask removes task id.
func (s *Service) DeleteTask(ctx context.Context, id int) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	removed, err := st.Remove(id)
	if err != nil {
		return nil, err
	}
	if err := s.save(st); err != nil {
		return nil, err
	}
	s.record(ctx, &activity.Entry{Kind: activity.KindDeleted, TaskID: strconv.Itoa(id), Message: removed.Title})
	s.publish(ctx, comms.TypeTaskUpdate, TopicTasks, "deleted", map[string]int{"id": id})
	return removed, nil
}

// AddSubtask appends sub to task taskID.
func (s *Service) AddSubtask(ctx context.Context, taskID int, sub *task.Subtask) (*task.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	added, err := st.AddSubtask(taskID, sub)
	if err != nil {
		return nil, err
	}
	if err := s.save(st); err != nil {
		return nil, err
	}
	id := task.ID{Task: taskID, Sub: added.ID}
	s.record(ctx, &activity.Entry{Kind: activity.KindCreated, TaskID: id.String(), NewStatus: added.Status, Message: added.Title})
	s.publish(ctx, comms.TypeTaskUpdate, TopicTasks, "subtask created", added)
	return added, nil
}

// RemoveSubtask deletes subtask subID of task taskID.
func (s *Service) RemoveSubtask(ctx context.Context, taskID, subID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RemoveSubtask(taskID, subID); err != nil {
		return err
	}
	if err := s.save(st); err != nil {
		return err
	}
	id := task.ID{Task: taskID, Sub: subID}
	s.record(ctx, &activity.Entry{Kind: activity.KindDeleted, TaskID: id.String()})
	s.publish(ctx, comms.TypeTaskUpdate, TopicTasks, "subtask deleted", map[string]string{"id": id.String()})
	return nil
}

// ValidateDependencies reports dangling and self dependencies.
func (s *Service) ValidateDependencies(_ context.Context) ([]task.DependencyIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	issues := st.ValidateDependencies()
	if issues == nil {
		issues = []task.DependencyIssue{}
	}
	return issues, nil
}

// --- Agents ---

// ListAgents returns the roster.
func (s *Service) ListAgents(_ context.Context) ([]agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := agent.LoadRoster(s.opts.AgentsPath)
	if err != nil {
		return nil, err
	}
	return r.Agents, nil
}

// UpdateAgent patches the agent named by key.
func (s *Service) UpdateAgent(ctx context.Context, key string, p agent.Patch) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := agent.LoadRoster(s.opts.AgentsPath)
	if err != nil {
		return nil, err
	}
	a, err := r.Update(key, p)
	if err != nil {
		return nil, err
	}
	if err := r.Save(s.opts.AgentsPath); err != nil {
		return nil, err
	}
	s.publish(ctx, comms.TypeTaskUpdate, TopicAgents, "agent updated", a)
	return a, nil
}

// AgentMetrics returns per-agent workload.
func (s *Service) AgentMetrics(_ context.Context) ([]agent.Load, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := agent.LoadRoster(s.opts.AgentsPath)
	if err != nil {
		return nil, err
	}
	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return agent.Workload(st.Tasks(), r.Agents), nil
}

// Delegate assigns the least-loaded available agent to task rawID.
func (s *Service) Delegate(ctx context.Context, rawID string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := agent.LoadRoster(s.opts.AgentsPath)
	if err != nil {
		return nil, err
	}
	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	before := map[int]task.Status{}
	for _, t := range st.Tasks() {
		before[t.ID] = t.Status
	}
	t, err := agent.Delegate(st.Tasks(), r.Agents, rawID, st.Now())
	if err != nil {
		return nil, err
	}
	if err := s.save(st); err != nil {
		return nil, err
	}
	if err := activity.LogAssigned(ctx, s.log, UserFrom(ctx), t.ID, t.Agent); err != nil {
		s.logger.Warn("record activity", slog.Any("err", err))
	}
	if old := before[t.ID].OrPending(); old != t.Status {
		change := task.Change{TaskID: strconv.Itoa(t.ID), Title: t.Title, OldStatus: old, NewStatus: t.Status, At: t.UpdatedAt}
		if err := activity.LogStatusChanges(ctx, s.log, UserFrom(ctx), []task.Change{change}); err != nil {
			s.logger.Warn("record activity", slog.Any("err", err))
		}
	}
	s.logger.Info("task delegated", slog.Int("task", t.ID), slog.String("agent", t.Agent))
	s.publish(ctx, comms.TypeAgentAssigned, TopicTasks, strconv.Itoa(t.ID), agent.Assignment{TaskID: t.ID, Agent: t.Agent})
	return t, nil
}

// AssignAll backfills unassigned tasks round-robin across the roster.
func (s *Service) AssignAll(ctx context.Context) ([]agent.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := agent.LoadRoster(s.opts.AgentsPath)
	if err != nil {
		return nil, err
	}
	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	out, err := agent.AssignRoundRobin(st.Tasks(), r.Agents, st.Now())
	if err != nil {
		return nil, err
	}
	if out == nil {
		return []agent.Assignment{}, nil
	}
	if err := s.save(st); err != nil {
		return nil, err
	}
	for _, a := range out {
		if err := activity.LogAssigned(ctx, s.log, UserFrom(ctx), a.TaskID, a.Agent); err != nil {
			s.logger.Warn("record activity", slog.Any("err", err))
		}
	}
	s.logger.Info("agents assigned", slog.Int("count", len(out)))
	s.publish(ctx, comms.TypeAgentAssigned, TopicTasks, "bulk", out)
	return out, nil
}

// --- Sprints ---

// ListSprints returns every sprint.
func (s *Service) ListSprints(_ context.Context) ([]*sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := sprint.Load(s.opts.SprintsPath)
	if err != nil {
		return nil, err
	}
	return d.Sprints, nil
}

// GetSprint returns one sprint.
func (s *Service) GetSprint(_ context.Context, id string) (*sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := sprint.Load(s.opts.SprintsPath)
	if err != nil {
		return nil, err
	}
	return d.Find(id)
}

// CreateSprint adds sp.
func (s *Service) CreateSprint(ctx context.Context, sp *sprint.Sprint) (*sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := sprint.Load(s.opts.SprintsPath)
	if err != nil {
		return nil, err
	}
	created, err := d.Add(sp)
	if err != nil {
		return nil, err
	}
	if err := d.Save(s.opts.SprintsPath); err != nil {
		return nil, err
	}
	s.record(ctx, &activity.Entry{Kind: activity.KindSprint, Message: "created sprint " + string(created.ID)})
	s.publish(ctx, comms.TypeSprintUpdated, TopicSprints, string(created.ID), created)
	return created, nil
}

// UpdateSprint patches sprint id.
func (s *Service) UpdateSprint(ctx context.Context, id string, p sprint.Patch) (*sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := sprint.Load(s.opts.SprintsPath)
	if err != nil {
		return nil, err
	}
	sp, err := d.Update(id, p)
	if err != nil {
		return nil, err
	}
	if err := d.Save(s.opts.SprintsPath); err != nil {
		return nil, err
	}
	s.publish(ctx, comms.TypeSprintUpdated, TopicSprints, id, sp)
	return sp, nil
}

// PlanSprint fills sprint id with open tasks and tags each included task
// with the sprint, untagging tasks a previous plan included. A zero limit
// falls back to the sprint's capacity.
func (s *Service) PlanSprint(ctx context.Context, id string, limit int) (sprint.PlanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := sprint.Load(s.opts.SprintsPath)
	if err != nil {
		return sprint.PlanResult{}, err
	}
	sp, err := d.Find(id)
	if err != nil {
		return sprint.PlanResult{}, err
	}
	st, err := s.openTasks()
	if err != nil {
		return sprint.PlanResult{}, err
	}
	defer st.Close()

	if limit == 0 {
		limit = sp.Capacity
	}
	res := sprint.AutoPlan(sp, st.Tasks(), limit)
	included := make(map[int]bool, len(res.Included))
	for _, tid := range res.Included {
		included[tid] = true
		if _, err := st.Update(tid, task.Patch{Sprint: &id}); err != nil {
			return sprint.PlanResult{}, err
		}
	}
	// Tasks left out of this plan lose the tag from any earlier one.
	cleared := 0
	none := ""
	for _, t := range st.Tasks() {
		if string(t.Sprint) != id || included[t.ID] {
			continue
		}
		if _, err := st.Update(t.ID, task.Patch{Sprint: &none}); err != nil {
			return sprint.PlanResult{}, err
		}
		cleared++
	}
	if len(res.Included) > 0 || cleared > 0 {
		if err := s.save(st); err != nil {
			return sprint.PlanResult{}, err
		}
	}
	if err := d.Save(s.opts.SprintsPath); err != nil {
		return sprint.PlanResult{}, err
	}
	s.record(ctx, &activity.Entry{
		Kind:    activity.KindSprint,
		Message: fmt.Sprintf("planned sprint %s with %d tasks", id, len(res.Included)),
	})
	s.logger.Info("sprint planned", slog.String("sprint", id), slog.Int("included", len(res.Included)))
	s.publish(ctx, comms.TypeSprintUpdated, TopicSprints, id, res)
	return res, nil
}

// SprintMetrics computes metrics for sprint id, or for every sprint when id
// is empty.
func (s *Service) SprintMetrics(_ context.Context, id string) ([]sprint.Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := sprint.Load(s.opts.SprintsPath)
	if err != nil {
		return nil, err
	}
	sprints := d.Sprints
	if id != "" {
		sp, err := d.Find(id)
		if err != nil {
			return nil, err
		}
		sprints = []*sprint.Sprint{sp}
	}
	st, err := s.openTasks()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	out := make([]sprint.Metrics, 0, len(sprints))
	for _, sp := range sprints {
		out = append(out, sprint.Compute(sp, st.Tasks()))
	}
	return out, nil
}

// SprintReport lists the tasks tagged with sprint id.
func (s *Service) SprintReport(_ context.Context, id string) (sprint.Report, error) {
	if id == "" {
		return sprint.Report{}, errs.E(errs.KindInvalidInput, "sprint.report", "sprint id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.openTasks()
	if err != nil {
		return sprint.Report{}, err
	}
	defer st.Close()
	return sprint.BuildReport(st.Tasks(), id), nil
}

// --- Activity ---

// Activity lists logged entries.
func (s *Service) Activity(ctx context.Context, q activity.Query) ([]*activity.Entry, error) {
	return s.log.List(ctx, q)
}

// History returns recent bus events on topic.
func (s *Service) History(topic string, limit int) ([]*comms.Message, error) {
	return s.bus.History(topic, limit)
}
