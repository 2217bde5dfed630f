package task

import (
	"time"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
)

// TransitionPolicy restricts which status moves are allowed. A nil policy
// allows every move. Keys are the old status; a missing key allows nothing
// out of that status.
type TransitionPolicy map[Status][]Status

// Allows reports whether old -> next is permitted.
func (p TransitionPolicy) Allows(old, next Status) bool {
	if p == nil || old == next {
		return true
	}
	for _, s := range p[old] {
		if s == next {
			return true
		}
	}
	return false
}

// Change records one status move.
type Change struct {
	TaskID    string    `json:"taskId"`
	Title     string    `json:"title"`
	OldStatus Status    `json:"oldStatus"`
	NewStatus Status    `json:"newStatus"`
	Cascaded  bool      `json:"cascaded,omitempty"`
	At        time.Time `json:"at"`
}

// SetStatusResult is what SetStatus reports back.
type SetStatusResult struct {
	UpdatedIDs []ID
	Status     Status
	Changes    []Change
	Warnings   []DependencyIssue
}

// UpdatedTask is one entry of the success object.
type UpdatedTask struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Summary is the success object handed to CLI and API callers.
type Summary struct {
	Success      bool              `json:"success"`
	UpdatedTasks []UpdatedTask     `json:"updatedTasks"`
	Changes      []Change          `json:"changes,omitempty"`
	Warnings     []DependencyIssue `json:"warnings,omitempty"`
}

// Summary renders the result as the success object.
func (r *SetStatusResult) Summary() Summary {
	out := Summary{Success: true, UpdatedTasks: make([]UpdatedTask, len(r.UpdatedIDs))}
	for i, id := range r.UpdatedIDs {
		out.UpdatedTasks[i] = UpdatedTask{ID: id.String(), Status: r.Status}
	}
	out.Changes = r.Changes
	out.Warnings = r.Warnings
	return out
}

// SetStatusOption tunes a SetStatus call.
type SetStatusOption func(*setStatusConfig)

type setStatusConfig struct {
	policy TransitionPolicy
}

// WithPolicy enforces a transition table.
func WithPolicy(p TransitionPolicy) SetStatusOption {
	return func(c *setStatusConfig) { c.policy = p }
}

// SetStatus moves every id in idSpec ("1,3.2") to newStatus. Every id is
// resolved and checked before anything is mutated, so a failure leaves the
// store untouched. Setting a task to done also completes its subtasks, and
// each of those moves must pass the policy too. Dependency problems found
// afterwards, including tasks finished ahead of their dependencies, are
// returned as warnings only.
func SetStatus(s *Store, idSpec, newStatus string, opts ...SetStatusOption) (*SetStatusResult, error) {
	const op = "set-status"
	var cfg setStatusConfig
	for _, o := range opts {
		o(&cfg)
	}
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}

	status, err := ParseStatus(newStatus)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindInvalidInput, Op: op, Err: err}
	}
	ids, err := ParseIDList(idSpec)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindInvalidInput, Op: op, Err: err}
	}

	// Resolve and check everything first.
	seen := make(map[ID]bool, len(ids))
	var targets []Target
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		tgt, err := s.Resolve(id)
		if err != nil {
			return nil, &errs.Error{Kind: errs.KindNotFound, Op: op, Err: err}
		}
		if old := tgt.Status(); !cfg.policy.Allows(old, status) {
			return nil, errs.E(errs.KindPreconditionFailed, op,
				"%s: transition %s -> %s not allowed", id, old, status)
		}
		if tgt.Sub == nil && status == StatusDone {
			for _, sub := range tgt.Task.Subtasks {
				if old := sub.Status.OrPending(); !cfg.policy.Allows(old, StatusDone) {
					return nil, errs.E(errs.KindPreconditionFailed, op,
						"%s: cascaded transition %s -> %s not allowed",
						ID{Task: tgt.Task.ID, Sub: sub.ID}, old, StatusDone)
				}
			}
		}
		targets = append(targets, tgt)
	}

	now := s.now()
	res := &SetStatusResult{Status: status}
	for _, tgt := range targets {
		res.UpdatedIDs = append(res.UpdatedIDs, tgt.ID)
		old := tgt.Status()
		if old != status {
			res.Changes = append(res.Changes, Change{
				TaskID:    tgt.ID.String(),
				Title:     tgt.Title(),
				OldStatus: old,
				NewStatus: status,
				At:        now,
			})
			if tgt.Sub != nil {
				tgt.Sub.Status = status
				tgt.Sub.UpdatedAt = now
				tgt.Task.UpdatedAt = now
			} else {
				tgt.Task.Status = status
				tgt.Task.UpdatedAt = now
			}
		}
		if tgt.Sub == nil && status == StatusDone {
			res.Changes = append(res.Changes, completeSubtasks(tgt.Task, now)...)
		}
	}

	res.Warnings = s.ValidateDependencies()
	if status == StatusDone {
		for _, tgt := range targets {
			if tgt.Sub != nil {
				continue
			}
			for _, dep := range s.OpenDependencies(tgt.Task) {
				res.Warnings = append(res.Warnings, DependencyIssue{
					TaskID:     tgt.ID.String(),
					Dependency: ID{Task: dep}.String(),
					Reason:     "dependency not done",
				})
			}
		}
	}
	return res, nil
}

func completeSubtasks(t *Task, now time.Time) []Change {
	var changes []Change
	for _, sub := range t.Subtasks {
		old := sub.Status.OrPending()
		if old == StatusDone {
			continue
		}
		sub.Status = StatusDone
		sub.UpdatedAt = now
		changes = append(changes, Change{
			TaskID:    ID{Task: t.ID, Sub: sub.ID}.String(),
			Title:     sub.Title,
			OldStatus: old,
			NewStatus: StatusDone,
			Cascaded:  true,
			At:        now,
		})
	}
	if len(changes) > 0 {
		t.UpdatedAt = now
	}
	return changes
}
