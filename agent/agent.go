// Package agent defines the agent roster and the policies that assign
// agents to tasks.
package agent

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/internal/jsonfile"
)

// Status represents whether an agent can take work.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusAway      Status = "away"
	StatusOffline   Status = "offline"
)

// Agent is a named worker that tasks reference by name (or id when the
// agent has no name).
type Agent struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name"`
	Status        Status   `json:"status"`
	Role          string   `json:"role,omitempty"`
	DailyCapacity *int     `json:"dailyCapacity,omitempty"`
	Availability  *float64 `json:"availability,omitempty"`
}

// Key is the value stored on Task.Agent for this agent.
func (a Agent) Key() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Available reports whether the agent may be picked by AssignAgent.
func (a Agent) Available() bool { return a.Status == StatusAvailable }

// Roster is the on-disk agent document.
type Roster struct {
	Agents []Agent `json:"agents"`
}

// LoadRoster reads and validates the agent document at path. A missing
// file yields an empty roster.
func LoadRoster(path string) (*Roster, error) {
	var r Roster
	if err := jsonfile.Read(path, &r); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Roster{Agents: []Agent{}}, nil
		}
		return nil, errs.Wrap(errs.KindIOFailure, "roster.load", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks keys and availability once after load.
func (r *Roster) Validate() error {
	if r.Agents == nil {
		r.Agents = []Agent{}
	}
	seen := make(map[string]bool, len(r.Agents))
	for i := range r.Agents {
		a := &r.Agents[i]
		if a.Key() == "" {
			return errs.E(errs.KindInvalidInput, "roster.validate", "agents[%d] has neither name nor id", i)
		}
		if seen[a.Key()] {
			return errs.E(errs.KindInvalidInput, "roster.validate", "duplicate agent %q", a.Key())
		}
		seen[a.Key()] = true
		if a.Availability != nil && (*a.Availability < 0 || *a.Availability > 1) {
			return errs.E(errs.KindInvalidInput, "roster.validate", "agent %q availability %.2f outside 0-1", a.Key(), *a.Availability)
		}
		if a.DailyCapacity != nil && *a.DailyCapacity < 0 {
			return errs.E(errs.KindInvalidInput, "roster.validate", "agent %q has negative daily capacity", a.Key())
		}
		if a.Status == "" {
			a.Status = StatusAvailable
		}
	}
	return nil
}

// Save writes the roster to path.
func (r *Roster) Save(path string) error {
	if err := jsonfile.Write(path, r); err != nil {
		return errs.Wrap(errs.KindIOFailure, "roster.save", err)
	}
	return nil
}

// Find returns the agent whose id or name equals key.
func (r *Roster) Find(key string) (*Agent, error) {
	for i := range r.Agents {
		a := &r.Agents[i]
		if a.ID == key || a.Name == key {
			return a, nil
		}
	}
	return nil, errs.E(errs.KindNotFound, "roster.find", "agent %q not found", key)
}

// Patch is a partial agent update.
type Patch struct {
	Status        *Status  `json:"status,omitempty"`
	Role          *string  `json:"role,omitempty"`
	DailyCapacity *int     `json:"dailyCapacity,omitempty"`
	Availability  *float64 `json:"availability,omitempty"`
}

// Update applies p to the agent identified by key.
func (r *Roster) Update(key string, p Patch) (*Agent, error) {
	a, err := r.Find(key)
	if err != nil {
		return nil, err
	}
	if p.Status != nil && strings.TrimSpace(string(*p.Status)) == "" {
		return nil, errs.E(errs.KindInvalidInput, "roster.update", "status cannot be empty")
	}
	if p.Availability != nil && (*p.Availability < 0 || *p.Availability > 1) {
		return nil, errs.E(errs.KindInvalidInput, "roster.update", "availability %.2f outside 0-1", *p.Availability)
	}
	if p.DailyCapacity != nil && *p.DailyCapacity < 0 {
		return nil, errs.E(errs.KindInvalidInput, "roster.update", "daily capacity cannot be negative")
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.DailyCapacity != nil {
		v := *p.DailyCapacity
		a.DailyCapacity = &v
	}
	if p.Availability != nil {
		v := *p.Availability
		a.Availability = &v
	}
	return a, nil
}
