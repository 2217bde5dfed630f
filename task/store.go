package task

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/internal/jsonfile"
)

// CurrentSchemaVersion is written into new task files.
const CurrentSchemaVersion = 1

// File is the on-disk task document.
type File struct {
	SchemaVersion int     `json:"schemaVersion"`
	Revision      int64   `json:"revision"`
	Tasks         []*Task `json:"tasks"`
}

// Validate checks the document once after load and fills defaults
// (status pending, priority medium, schemaVersion 1).
func (f *File) Validate() error {
	if f.SchemaVersion == 0 {
		f.SchemaVersion = CurrentSchemaVersion
	}
	if f.Tasks == nil {
		f.Tasks = []*Task{}
	}
	seen := make(map[int]bool, len(f.Tasks))
	for i, t := range f.Tasks {
		if t == nil {
			return errs.E(errs.KindInvalidInput, "validate", "tasks[%d] is null", i)
		}
		if t.ID <= 0 {
			return errs.E(errs.KindInvalidInput, "validate", "tasks[%d] has invalid id %d", i, t.ID)
		}
		if seen[t.ID] {
			return errs.E(errs.KindInvalidInput, "validate", "duplicate task id %d", t.ID)
		}
		seen[t.ID] = true

		t.Status = t.Status.OrPending()
		if !t.Status.Valid() {
			return errs.E(errs.KindInvalidInput, "validate", "task %d has invalid status %q", t.ID, t.Status)
		}
		if t.Priority == "" {
			t.Priority = PriorityMedium
		}
		if !t.Priority.Valid() {
			return errs.E(errs.KindInvalidInput, "validate", "task %d has invalid priority %q", t.ID, t.Priority)
		}
		if t.Progress != nil && (*t.Progress < 0 || *t.Progress > 100) {
			return errs.E(errs.KindInvalidInput, "validate", "task %d progress %d out of range 0-100", t.ID, *t.Progress)
		}
		if t.Dependencies == nil {
			t.Dependencies = []int{}
		}

		subSeen := make(map[int]bool, len(t.Subtasks))
		for j, s := range t.Subtasks {
			if s == nil {
				return errs.E(errs.KindInvalidInput, "validate", "task %d subtasks[%d] is null", t.ID, j)
			}
			if s.ID <= 0 {
				return errs.E(errs.KindInvalidInput, "validate", "task %d has subtask with invalid id %d", t.ID, s.ID)
			}
			if subSeen[s.ID] {
				return errs.E(errs.KindInvalidInput, "validate", "task %d has duplicate subtask id %d", t.ID, s.ID)
			}
			subSeen[s.ID] = true
			s.Status = s.Status.OrPending()
			if !s.Status.Valid() {
				return errs.E(errs.KindInvalidInput, "validate", "subtask %d.%d has invalid status %q", t.ID, s.ID, s.Status)
			}
		}
	}
	return nil
}

// Store is an in-memory handle over one task document. It is not safe for
// concurrent use; callers serialise access.
type Store struct {
	path   string
	file   File
	loaded int64 // revision seen at load
	closed bool
	now    func() time.Time
}

// Open reads and validates the task document at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := jsonfile.Read(path, &s.file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.E(errs.KindIOFailure, "store.open", "tasks file %s not found", path)
		}
		return nil, errs.Wrap(errs.KindIOFailure, "store.open", err)
	}
	if err := s.file.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.loaded = s.file.Revision
	return s, nil
}

// OpenOrCreate opens path, or returns an empty store bound to path when the
// file does not exist yet.
func OpenOrCreate(path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return NewStore(path, nil), nil
	}
	return Open(path)
}

// NewStore returns an unsaved store holding tasks, bound to path.
func NewStore(path string, tasks []*Task) *Store {
	if tasks == nil {
		tasks = []*Task{}
	}
	return &Store{
		path: path,
		file: File{SchemaVersion: CurrentSchemaVersion, Tasks: tasks},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the file the store persists to.
func (s *Store) Path() string { return s.path }

// Revision returns the document revision.
func (s *Store) Revision() int64 { return s.file.Revision }

// SchemaVersion returns the document schema version.
func (s *Store) SchemaVersion() int { return s.file.SchemaVersion }

// SetClock overrides the time source used for createdAt/updatedAt.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Now reads the store's clock.
func (s *Store) Now() time.Time { return s.now() }

// Close releases the handle.
func (s *Store) Close() error {
	s.closed = true
	return nil
}

func (s *Store) checkOpen(op string) error {
	if s.closed {
		return errs.E(errs.KindIOFailure, op, "store %s is closed", s.path)
	}
	return nil
}

// Save writes the whole document back. It fails with a conflict when the
// file on disk has been written since this store loaded it. The revision
// check and the rename are separate steps, so two processes saving in the
// same instant can still both pass the check; the last rename wins.
func (s *Store) Save() error {
	if err := s.checkOpen("store.save"); err != nil {
		return err
	}
	var onDisk struct {
		Revision int64 `json:"revision"`
	}
	err := jsonfile.Read(s.path, &onDisk)
	switch {
	case err == nil:
		if onDisk.Revision > s.loaded {
			return errs.E(errs.KindConflict, "store.save",
				"%s changed on disk (revision %d, loaded %d)", s.path, onDisk.Revision, s.loaded)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return errs.Wrap(errs.KindIOFailure, "store.save", err)
	}

	s.file.Revision = s.loaded + 1
	if err := jsonfile.Write(s.path, &s.file); err != nil {
		s.file.Revision = s.loaded
		return errs.Wrap(errs.KindIOFailure, "store.save", err)
	}
	s.loaded = s.file.Revision
	return nil
}

// Tasks returns the ordered task slice. The tasks are live; mutate them only
// through the store or the engines.
func (s *Store) Tasks() []*Task { return s.file.Tasks }

// List returns tasks matching the filter, in store order.
func (s *Store) List(f Filter) []*Task {
	var out []*Task
	skipped := 0
	for _, t := range s.file.Tasks {
		if !f.match(t) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, t)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Task looks up a task by id.
func (s *Store) Task(id int) (*Task, error) {
	for _, t := range s.file.Tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, errs.E(errs.KindNotFound, "task.lookup", "task %d not found", id)
}

// Subtask looks up subtask subID under task taskID.
func (s *Store) Subtask(taskID, subID int) (*Task, *Subtask, error) {
	parent, err := s.Task(taskID)
	if err != nil {
		return nil, nil, err
	}
	sub := parent.Subtask(subID)
	if sub == nil {
		return nil, nil, errs.E(errs.KindNotFound, "task.lookup", "subtask %d.%d not found", taskID, subID)
	}
	return parent, sub, nil
}

// Target is a resolved id: a task, or a subtask with its parent.
type Target struct {
	ID   ID
	Task *Task
	Sub  *Subtask
}

// Status returns the current status of the target, defaulting to pending.
func (t Target) Status() Status {
	if t.Sub != nil {
		return t.Sub.Status.OrPending()
	}
	return t.Task.Status.OrPending()
}

// Title returns the target's title.
func (t Target) Title() string {
	if t.Sub != nil {
		return t.Sub.Title
	}
	return t.Task.Title
}

// Resolve looks up a task or subtask id.
func (s *Store) Resolve(id ID) (Target, error) {
	if id.IsSubtask() {
		parent, sub, err := s.Subtask(id.Task, id.Sub)
		if err != nil {
			return Target{}, err
		}
		return Target{ID: id, Task: parent, Sub: sub}, nil
	}
	t, err := s.Task(id.Task)
	if err != nil {
		return Target{}, err
	}
	return Target{ID: id, Task: t}, nil
}

// NextID returns one more than the largest task id.
func (s *Store) NextID() int {
	max := 0
	for _, t := range s.file.Tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max + 1
}

// Add appends t, assigning the next id and stamping timestamps and defaults.
func (s *Store) Add(t *Task) (*Task, error) {
	if err := s.checkOpen("task.add"); err != nil {
		return nil, err
	}
	if t.Title == "" {
		return nil, errs.E(errs.KindInvalidInput, "task.add", "title is required")
	}
	t.Status = t.Status.OrPending()
	if !t.Status.Valid() {
		return nil, errs.E(errs.KindInvalidInput, "task.add", "invalid status %q", t.Status)
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !t.Priority.Valid() {
		return nil, errs.E(errs.KindInvalidInput, "task.add", "invalid priority %q", t.Priority)
	}
	if t.Progress != nil && (*t.Progress < 0 || *t.Progress > 100) {
		return nil, errs.E(errs.KindInvalidInput, "task.add", "progress %d out of range 0-100", *t.Progress)
	}
	for _, dep := range t.Dependencies {
		if _, err := s.Task(dep); err != nil {
			return nil, errs.E(errs.KindNotFound, "task.add", "dependency %d not found", dep)
		}
	}
	// Embedded subtasks are numbered by position, so sibling dependencies
	// must name a position other than their own.
	for i, sub := range t.Subtasks {
		if sub == nil {
			return nil, errs.E(errs.KindInvalidInput, "task.add", "subtasks[%d] is null", i)
		}
		if sub.Title == "" {
			return nil, errs.E(errs.KindInvalidInput, "task.add", "subtasks[%d] title is required", i)
		}
		if st := sub.Status.OrPending(); !st.Valid() {
			return nil, errs.E(errs.KindInvalidInput, "task.add", "subtasks[%d] has invalid status %q", i, sub.Status)
		}
		for _, dep := range sub.Dependencies {
			if dep < 1 || dep > len(t.Subtasks) || dep == i+1 {
				return nil, errs.E(errs.KindInvalidInput, "task.add", "subtasks[%d] has invalid dependency %d", i, dep)
			}
		}
	}
	if t.Dependencies == nil {
		t.Dependencies = []int{}
	}
	t.ID = s.NextID()
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	for i, sub := range t.Subtasks {
		sub.ID = i + 1
		sub.Status = sub.Status.OrPending()
		sub.UpdatedAt = now
	}
	s.file.Tasks = append(s.file.Tasks, t)
	return t, nil
}

// Patch is a partial task update. Nil fields are left alone.
type Patch struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Details      *string   `json:"details,omitempty"`
	TestStrategy *string   `json:"testStrategy,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
	Dependencies *[]int    `json:"dependencies,omitempty"`
	Agent        *string   `json:"agent,omitempty"`
	Sprint       *string   `json:"sprint,omitempty"`
	Progress     *int      `json:"progress,omitempty"`
}

// Update applies p to task id. Status changes go through SetStatus.
func (s *Store) Update(id int, p Patch) (*Task, error) {
	if err := s.checkOpen("task.update"); err != nil {
		return nil, err
	}
	t, err := s.Task(id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil && *p.Title == "" {
		return nil, errs.E(errs.KindInvalidInput, "task.update", "title cannot be empty")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return nil, errs.E(errs.KindInvalidInput, "task.update", "invalid priority %q", *p.Priority)
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return nil, errs.E(errs.KindInvalidInput, "task.update", "progress %d out of range 0-100", *p.Progress)
	}
	if p.Dependencies != nil {
		for _, dep := range *p.Dependencies {
			if dep == id {
				return nil, errs.E(errs.KindInvalidInput, "task.update", "task %d cannot depend on itself", id)
			}
			if _, err := s.Task(dep); err != nil {
				return nil, errs.E(errs.KindNotFound, "task.update", "dependency %d not found", dep)
			}
		}
	}

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Details != nil {
		t.Details = *p.Details
	}
	if p.TestStrategy != nil {
		t.TestStrategy = *p.TestStrategy
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Dependencies != nil {
		t.Dependencies = append([]int{}, (*p.Dependencies)...)
	}
	if p.Agent != nil {
		t.Agent = *p.Agent
	}
	if p.Sprint != nil {
		t.Sprint = SprintRef(*p.Sprint)
	}
	if p.Progress != nil {
		v := *p.Progress
		t.Progress = &v
	}
	t.UpdatedAt = s.now()
	return t, nil
}

// Remove deletes task id and strips it from every other task's dependencies.
func (s *Store) Remove(id int) (*Task, error) {
	if err := s.checkOpen("task.remove"); err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(s.file.Tasks, func(t *Task) bool { return t.ID == id })
	if idx < 0 {
		return nil, errs.E(errs.KindNotFound, "task.remove", "task %d not found", id)
	}
	removed := s.file.Tasks[idx]
	s.file.Tasks = slices.Delete(s.file.Tasks, idx, idx+1)
	for _, t := range s.file.Tasks {
		if slices.Contains(t.Dependencies, id) {
			t.Dependencies = slices.DeleteFunc(t.Dependencies, func(d int) bool { return d == id })
			t.UpdatedAt = s.now()
		}
	}
	return removed, nil
}

// AddSubtask appends sub to task taskID with the next subtask id.
func (s *Store) AddSubtask(taskID int, sub *Subtask) (*Subtask, error) {
	if err := s.checkOpen("subtask.add"); err != nil {
		return nil, err
	}
	parent, err := s.Task(taskID)
	if err != nil {
		return nil, err
	}
	if sub.Title == "" {
		return nil, errs.E(errs.KindInvalidInput, "subtask.add", "title is required")
	}
	sub.Status = sub.Status.OrPending()
	if !sub.Status.Valid() {
		return nil, errs.E(errs.KindInvalidInput, "subtask.add", "invalid status %q", sub.Status)
	}
	next := 1
	for _, existing := range parent.Subtasks {
		if existing.ID >= next {
			next = existing.ID + 1
		}
	}
	for _, dep := range sub.Dependencies {
		if parent.Subtask(dep) == nil {
			return nil, errs.E(errs.KindNotFound, "subtask.add", "subtask dependency %d.%d not found", taskID, dep)
		}
	}
	sub.ID = next
	now := s.now()
	sub.UpdatedAt = now
	parent.Subtasks = append(parent.Subtasks, sub)
	parent.UpdatedAt = now
	return sub, nil
}

// RemoveSubtask deletes subtask subID from task taskID and strips it from
// sibling dependency lists.
func (s *Store) RemoveSubtask(taskID, subID int) error {
	if err := s.checkOpen("subtask.remove"); err != nil {
		return err
	}
	parent, _, err := s.Subtask(taskID, subID)
	if err != nil {
		return err
	}
	parent.Subtasks = slices.DeleteFunc(parent.Subtasks, func(st *Subtask) bool { return st.ID == subID })
	for _, st := range parent.Subtasks {
		st.Dependencies = slices.DeleteFunc(st.Dependencies, func(d int) bool { return d == subID })
	}
	parent.UpdatedAt = s.now()
	return nil
}
