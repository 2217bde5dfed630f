// Package task defines the task model, the JSON task store, and the status
// transition engine.
package task

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
)

// Status represents the lifecycle state of a task or subtask.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusReview     Status = "review"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusCancelled  Status = "cancelled"

	// StatusCompleted is a legacy spelling of done. It is never accepted by
	// ParseStatus; sprint reports still count it as complete.
	StatusCompleted Status = "completed"
)

var statuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusDone,
	StatusReview,
	StatusBlocked,
	StatusDeferred,
	StatusCancelled,
}

// Statuses returns the canonical status set in display order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// Valid reports whether s is in the canonical set.
func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

// OrPending returns s, or pending when s is empty.
func (s Status) OrPending() Status {
	if s == "" {
		return StatusPending
	}
	return s
}

// ParseStatus validates a user-supplied status string.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", errs.E(errs.KindInvalidInput, "parse status",
			"invalid status %q (valid: %s)", s, joinStatuses())
	}
	return st, nil
}

func joinStatuses() string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// Priority determines task ordering.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Rank orders priorities, high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// ParsePriority validates a user-supplied priority string.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", errs.E(errs.KindInvalidInput, "parse priority", "invalid priority %q", s)
	}
	return p, nil
}

// SprintRef is a weak reference from a task to a sprint id. The files in the
// wild carry both numeric and string sprint ids, so both decode.
type SprintRef string

// UnmarshalJSON accepts a JSON string, number, or null.
func (r *SprintRef) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = SprintRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("sprint reference must be a string or number: %s", b)
	}
	*r = SprintRef(n.String())
	return nil
}

// Subtask is a child work item owned by exactly one Task.
type Subtask struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Details      string    `json:"details,omitempty"`
	Status       Status    `json:"status"`
	Dependencies []int     `json:"dependencies,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// Task is the primary unit of tracked work.
type Task struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Details      string     `json:"details,omitempty"`
	TestStrategy string     `json:"testStrategy,omitempty"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	Dependencies []int      `json:"dependencies"`
	Subtasks     []*Subtask `json:"subtasks,omitempty"`
	Agent        string     `json:"agent,omitempty"`
	Sprint       SprintRef  `json:"sprint,omitempty"`
	Progress     *int       `json:"progress,omitempty"`
	CreatedAt    time.Time  `json:"createdAt,omitzero"`
	UpdatedAt    time.Time  `json:"updatedAt,omitzero"`
}

// Subtask returns the subtask with the given id, or nil.
func (t *Task) Subtask(id int) *Subtask {
	for _, s := range t.Subtasks {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// IsDone reports whether the task is complete.
func (t *Task) IsDone() bool { return t.Status == StatusDone }

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.Dependencies = append([]int(nil), t.Dependencies...)
	if t.Progress != nil {
		p := *t.Progress
		c.Progress = &p
	}
	if t.Subtasks != nil {
		c.Subtasks = make([]*Subtask, len(t.Subtasks))
		for i, s := range t.Subtasks {
			sc := *s
			sc.Dependencies = append([]int(nil), s.Dependencies...)
			c.Subtasks[i] = &sc
		}
	}
	return &c
}

// ID addresses a task ("3") or a subtask ("3.2").
type ID struct {
	Task int
	Sub  int // zero for a task
}

// IsSubtask reports whether the id addresses a subtask.
func (id ID) IsSubtask() bool { return id.Sub != 0 }

func (id ID) String() string {
	if id.Sub != 0 {
		return fmt.Sprintf("%d.%d", id.Task, id.Sub)
	}
	return strconv.Itoa(id.Task)
}

// ParseID parses "3" or "3.2". Both parts must be positive integers.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	parent, sub, isSub := strings.Cut(s, ".")
	tid, err := positiveInt(parent)
	if err != nil {
		return ID{}, errs.E(errs.KindInvalidInput, "parse id", "invalid task id %q", s)
	}
	if !isSub {
		return ID{Task: tid}, nil
	}
	sid, err := positiveInt(sub)
	if err != nil {
		return ID{}, errs.E(errs.KindInvalidInput, "parse id", "invalid subtask id %q", s)
	}
	return ID{Task: tid, Sub: sid}, nil
}

// ParseIDList parses a comma-separated id list. Blank entries are skipped;
// at least one id is required.
func ParseIDList(spec string) ([]ID, error) {
	var ids []ID
	for _, part := range strings.Split(spec, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errs.E(errs.KindInvalidInput, "parse id", "no task ids given")
	}
	return ids, nil
}

// ParseTaskID parses a plain positive task id (no subtask part).
func ParseTaskID(s string) (int, error) {
	n, err := positiveInt(strings.TrimSpace(s))
	if err != nil {
		return 0, errs.E(errs.KindInvalidInput, "parse id", "invalid task id %q", s)
	}
	return n, nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("id must be positive")
	}
	return n, nil
}

// Filter controls which tasks are returned by Store.List.
type Filter struct {
	Status *Status `json:"status,omitempty"`
	Agent  string  `json:"agent,omitempty"`
	Sprint string  `json:"sprint,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}

func (f Filter) match(t *Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Agent != "" && t.Agent != f.Agent {
		return false
	}
	if f.Sprint != "" && string(t.Sprint) != f.Sprint {
		return false
	}
	return true
}
