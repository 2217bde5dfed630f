package agent

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/task"
)

func available(names ...string) []Agent {
	out := make([]Agent, len(names))
	for i, n := range names {
		out[i] = Agent{Name: n, Status: StatusAvailable}
	}
	return out
}

func TestAssignAgent_LeastWorkload(t *testing.T) {
	tasks := []*task.Task{{ID: 1, Agent: "A", Status: task.StatusInProgress}}

	got, err := AssignAgent(tasks, available("A", "B"))
	if err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}
	if got != "B" {
		t.Errorf("AssignAgent = %q, want B", got)
	}
}

func TestAssignAgent_IgnoresDoneTasks(t *testing.T) {
	tasks := []*task.Task{
		{ID: 1, Agent: "A", Status: task.StatusDone},
		{ID: 2, Agent: "B", Status: task.StatusPending},
	}
	got, err := AssignAgent(tasks, available("A", "B"))
	if err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}
	if got != "A" {
		t.Errorf("AssignAgent = %q, want A", got)
	}
}

func TestAssignAgent_SkipsUnavailable(t *testing.T) {
	tasks := []*task.Task{
		{ID: 1, Agent: "B", Status: task.StatusPending},
		{ID: 2, Agent: "B", Status: task.StatusPending},
	}
	agents := []Agent{
		{Name: "A", Status: StatusBusy},
		{Name: "B", Status: StatusAvailable},
		{Name: "C", Status: StatusOffline},
	}
	got, err := AssignAgent(tasks, agents)
	if err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}
	if got != "B" {
		t.Errorf("AssignAgent = %q, want B (only available agent)", got)
	}
}

func TestAssignAgent_TieGoesToFirst(t *testing.T) {
	got, err := AssignAgent(nil, available("X", "Y", "Z"))
	if err != nil {
		t.Fatalf("AssignAgent: %v", err)
	}
	if got != "X" {
		t.Errorf("AssignAgent = %q, want X", got)
	}
}

func TestAssignAgent_Errors(t *testing.T) {
	if _, err := AssignAgent(nil, nil); !errors.Is(err, ErrNoAgents) {
		t.Errorf("empty roster err = %v", err)
	}
	_, err := AssignAgent(nil, []Agent{{Name: "A", Status: StatusBusy}})
	if !errors.Is(err, ErrNoAvailableAgents) {
		t.Errorf("no available err = %v", err)
	}
	if errs.KindOf(err) != errs.KindPreconditionFailed {
		t.Errorf("kind = %q, want precondition failed", errs.KindOf(err))
	}
}

func TestDelegate(t *testing.T) {
	tasks := []*task.Task{
		{ID: 1, Agent: "A", Status: task.StatusInProgress},
		{ID: 2, Status: task.StatusPending},
		{ID: 3, Status: task.StatusReview},
	}
	agents := available("A", "B")
	now := time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)

	got, err := Delegate(tasks, agents, "2", now)
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if got.Agent != "B" || got.Status != task.StatusInProgress {
		t.Errorf("delegated = %+v", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
	}

	// A and B now hold one open task each; the tie goes to A.
	third, err := Delegate(tasks, agents, "3", now)
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if third.Agent != "A" || third.Status != task.StatusReview {
		t.Errorf("delegated = %+v, want agent A with status kept", third)
	}
}

func TestDelegate_Errors(t *testing.T) {
	tasks := []*task.Task{{ID: 1}}
	for _, raw := range []string{"abc", "0", "-4", ""} {
		if _, err := Delegate(tasks, available("A"), raw, time.Time{}); !errors.Is(err, errs.InvalidInput) {
			t.Errorf("Delegate(%q) err = %v, want invalid input", raw, err)
		}
	}
	if _, err := Delegate(tasks, available("A"), "7", time.Time{}); !errors.Is(err, errs.NotFound) {
		t.Errorf("missing task err = %v, want not found", err)
	}
	if _, err := Delegate(tasks, nil, "1", time.Time{}); !errors.Is(err, ErrNoAgents) {
		t.Errorf("no agents err = %v", err)
	}
	if tasks[0].Agent != "" {
		t.Errorf("failed delegate mutated task: %+v", tasks[0])
	}
}

func TestAssignRoundRobin(t *testing.T) {
	tasks := []*task.Task{
		{ID: 1},
		{ID: 2, Agent: "keep"},
		{ID: 3},
		{ID: 4},
	}
	agents := []Agent{
		{Name: "A", Status: StatusAvailable},
		{Name: "B", Status: StatusOffline},
		{Name: "C", Status: StatusAvailable},
	}
	now := time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)
	got, err := AssignRoundRobin(tasks, agents, now)
	if err != nil {
		t.Fatalf("AssignRoundRobin: %v", err)
	}
	want := []Assignment{{1, "B"}, {3, "A"}, {4, "B"}}
	if len(got) != len(want) {
		t.Fatalf("assignments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assignment[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if tasks[1].Agent != "keep" {
		t.Errorf("assigned task was overwritten: %q", tasks[1].Agent)
	}
	if !tasks[0].UpdatedAt.Equal(now) || !tasks[1].UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt = %v / %v, want only assigned tasks stamped", tasks[0].UpdatedAt, tasks[1].UpdatedAt)
	}

	if _, err := AssignRoundRobin(tasks, nil, now); !errors.Is(err, ErrNoAgents) {
		t.Errorf("empty roster err = %v", err)
	}
}

func TestWorkload(t *testing.T) {
	tasks := []*task.Task{
		{ID: 1, Agent: "A", Status: task.StatusDone},
		{ID: 2, Agent: "A", Status: task.StatusBlocked},
		{ID: 3, Agent: "ghost", Status: task.StatusPending},
	}
	loads := Workload(tasks, available("A", "B"))
	if loads[0] != (Load{Agent: "A", Status: StatusAvailable, Open: 1, Done: 1, Total: 2}) {
		t.Errorf("A = %+v", loads[0])
	}
	if loads[1].Total != 0 {
		t.Errorf("B = %+v", loads[1])
	}
}

func TestRoster_LoadUpdateSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	body := `{"agents":[{"id":"a1","name":"Ada","status":"available"},{"id":"b2"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if r.Agents[1].Key() != "b2" || r.Agents[1].Status != StatusAvailable {
		t.Errorf("agent without name = %+v", r.Agents[1])
	}

	busy := StatusBusy
	if _, err := r.Update("a1", Patch{Status: &busy}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	bad := 1.5
	if _, err := r.Update("Ada", Patch{Availability: &bad}); !errors.Is(err, errs.InvalidInput) {
		t.Errorf("availability 1.5 err = %v", err)
	}
	if _, err := r.Update("nobody", Patch{}); !errors.Is(err, errs.NotFound) {
		t.Errorf("missing agent err = %v", err)
	}
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Agents[0].Status != StatusBusy {
		t.Errorf("status after reload = %q", again.Agents[0].Status)
	}
}

func TestLoadRoster_Missing(t *testing.T) {
	r, err := LoadRoster(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if len(r.Agents) != 0 {
		t.Errorf("agents = %v", r.Agents)
	}
}

func TestLoadRoster_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.json")
	if err := os.WriteFile(path, []byte(`{"agents":[{"name":"A"},{"name":"A"}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRoster(path); !errors.Is(err, errs.InvalidInput) {
		t.Errorf("duplicate agent err = %v", err)
	}
}
