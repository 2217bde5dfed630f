// Package sprint holds the sprint document and the sprint metrics and
// planning helpers.
package sprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/internal/jsonfile"
)

// Status is a sprint lifecycle state.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known sprint status.
func (s Status) Valid() bool {
	return s == StatusPlanning || s == StatusActive || s == StatusCompleted
}

// ID is a sprint identifier. Numeric ids in existing files decode as their
// decimal string.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("sprint id must be a string or number: %s", b)
	}
	*id = ID(n.String())
	return nil
}

// Sprint is a time-boxed group of task ids.
type Sprint struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Goal      string `json:"goal,omitempty"`
	Status    Status `json:"status"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Capacity  int    `json:"capacity,omitempty"`
	Tasks     []int  `json:"tasks"`
}

// Document is the on-disk sprint file.
type Document struct {
	Sprints []*Sprint `json:"sprints"`
}

// Load reads and validates the sprint document at path. A missing file
// yields an empty document.
func Load(path string) (*Document, error) {
	var d Document
	if err := jsonfile.Read(path, &d); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Document{Sprints: []*Sprint{}}, nil
		}
		return nil, errs.Wrap(errs.KindIOFailure, "sprints.load", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks ids, statuses, and capacity, filling defaults.
func (d *Document) Validate() error {
	if d.Sprints == nil {
		d.Sprints = []*Sprint{}
	}
	seen := make(map[ID]bool, len(d.Sprints))
	for i, s := range d.Sprints {
		if s == nil || s.ID == "" {
			return errs.E(errs.KindInvalidInput, "sprints.validate", "sprints[%d] has no id", i)
		}
		if seen[s.ID] {
			return errs.E(errs.KindInvalidInput, "sprints.validate", "duplicate sprint id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Status == "" {
			s.Status = StatusPlanning
		}
		if !s.Status.Valid() {
			return errs.E(errs.KindInvalidInput, "sprints.validate", "sprint %q has invalid status %q", s.ID, s.Status)
		}
		if s.Capacity < 0 {
			return errs.E(errs.KindInvalidInput, "sprints.validate", "sprint %q has negative capacity", s.ID)
		}
		if s.Tasks == nil {
			s.Tasks = []int{}
		}
	}
	return nil
}

// Save writes the document to path.
func (d *Document) Save(path string) error {
	if err := jsonfile.Write(path, d); err != nil {
		return errs.Wrap(errs.KindIOFailure, "sprints.save", err)
	}
	return nil
}

// Find returns the sprint with the given id.
func (d *Document) Find(id string) (*Sprint, error) {
	for _, s := range d.Sprints {
		if string(s.ID) == id {
			return s, nil
		}
	}
	return nil, errs.E(errs.KindNotFound, "sprints.find", "sprint %q not found", id)
}

// Add appends s. An empty id becomes "sprint-N".
func (d *Document) Add(s *Sprint) (*Sprint, error) {
	if s.Name == "" {
		return nil, errs.E(errs.KindInvalidInput, "sprints.add", "name is required")
	}
	if s.ID == "" {
		s.ID = ID(fmt.Sprintf("sprint-%d", len(d.Sprints)+1))
		for d.has(s.ID) {
			s.ID += "x"
		}
	}
	if d.has(s.ID) {
		return nil, errs.E(errs.KindInvalidInput, "sprints.add", "sprint %q already exists", s.ID)
	}
	if s.Status == "" {
		s.Status = StatusPlanning
	}
	if !s.Status.Valid() {
		return nil, errs.E(errs.KindInvalidInput, "sprints.add", "invalid status %q", s.Status)
	}
	if s.Capacity < 0 {
		return nil, errs.E(errs.KindInvalidInput, "sprints.add", "capacity cannot be negative")
	}
	if s.Tasks == nil {
		s.Tasks = []int{}
	}
	d.Sprints = append(d.Sprints, s)
	return s, nil
}

func (d *Document) has(id ID) bool {
	for _, s := range d.Sprints {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Patch is a partial sprint update.
type Patch struct {
	Name      *string `json:"name,omitempty"`
	Goal      *string `json:"goal,omitempty"`
	Status    *Status `json:"status,omitempty"`
	StartDate *string `json:"startDate,omitempty"`
	EndDate   *string `json:"endDate,omitempty"`
	Capacity  *int    `json:"capacity,omitempty"`
	Tasks     *[]int  `json:"tasks,omitempty"`
}

// Update applies p to sprint id.
func (d *Document) Update(id string, p Patch) (*Sprint, error) {
	s, err := d.Find(id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil && *p.Name == "" {
		return nil, errs.E(errs.KindInvalidInput, "sprints.update", "name cannot be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, errs.E(errs.KindInvalidInput, "sprints.update", "invalid status %q", *p.Status)
	}
	if p.Capacity != nil && *p.Capacity < 0 {
		return nil, errs.E(errs.KindInvalidInput, "sprints.update", "capacity cannot be negative")
	}
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Goal != nil {
		s.Goal = *p.Goal
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.StartDate != nil {
		s.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		s.EndDate = *p.EndDate
	}
	if p.Capacity != nil {
		s.Capacity = *p.Capacity
	}
	if p.Tasks != nil {
		s.Tasks = append([]int{}, (*p.Tasks)...)
	}
	return s, nil
}
