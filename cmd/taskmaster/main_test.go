package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/sprint"
	"github.com/GoCodeAlone/taskmaster/task"
)

func init() { color.NoColor = true }

// run executes one CLI invocation against dir and returns its stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{out: &out}
	root := newRootCmd(a)
	root.SetArgs(append([]string{"--dir", dir, "--user", "tester"}, args...))
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	a.close()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestTaskLifecycle(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "add-task", "--title", "Schema")
	if !strings.Contains(out, "created task 1: Schema") {
		t.Errorf("add-task output = %q", out)
	}
	mustRun(t, dir, "add-task", "--title", "API", "--priority", "high", "--dependencies", "1")
	mustRun(t, dir, "add-subtask", "--parent", "1", "--title", "Tables")

	out = mustRun(t, dir, "set-status", "--id", "1", "--status", "done")
	if !strings.Contains(out, "1: pending → done") {
		t.Errorf("set-status output = %q", out)
	}
	if !strings.Contains(out, "1.1: pending → done (cascaded)") {
		t.Errorf("cascade missing from %q", out)
	}

	out = mustRun(t, dir, "set-status", "--id", "1", "--status", "done")
	if !strings.Contains(out, "nothing to do") {
		t.Errorf("repeat set-status output = %q", out)
	}

	var tasks []task.Task
	if err := json.Unmarshal([]byte(mustRun(t, dir, "list", "--json")), &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Status != task.StatusDone || tasks[1].Priority != task.PriorityHigh {
		t.Errorf("tasks = %+v", tasks)
	}

	out = mustRun(t, dir, "show", "2")
	if !strings.Contains(out, "Task 2: API") || !strings.Contains(out, "Priority:     High") {
		t.Errorf("show output = %q", out)
	}

	var entries []activity.Entry
	if err := json.Unmarshal([]byte(mustRun(t, dir, "activity", "--json", "--task", "1")), &entries); err != nil {
		t.Fatalf("decode activity: %v", err)
	}
	if len(entries) == 0 || entries[0].UserID != "tester" {
		t.Errorf("activity = %+v", entries)
	}
}

func TestSetStatus_Errors(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "add-task", "--title", "Only")

	_, err := run(t, dir, "set-status", "--id", "1,9", "--status", "done")
	if !errors.Is(err, errs.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = run(t, dir, "set-status", "--id", "1", "--status", "finished")
	if !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	var buf bytes.Buffer
	printError(&buf, errs.E(errs.KindNotFound, "set-status", "task 9 not found"), true)
	if !strings.Contains(buf.String(), "kind: not_found") || !strings.Contains(buf.String(), "ops:  set-status") {
		t.Errorf("debug error output = %q", buf.String())
	}
}

func TestSetStatus_MissingTasksFile(t *testing.T) {
	_, err := run(t, t.TempDir(), "set-status", "--id", "1", "--status", "done")
	if !errors.Is(err, errs.IOFailure) {
		t.Fatalf("expected io failure, got %v", err)
	}
}

func TestSprintCommands(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "add-task", "--title", "Low", "--priority", "low")
	mustRun(t, dir, "add-task", "--title", "High", "--priority", "high")

	out := mustRun(t, dir, "sprint", "create", "--name", "First")
	if !strings.Contains(out, "created sprint sprint-1") {
		t.Errorf("create output = %q", out)
	}

	var res sprint.PlanResult
	if err := json.Unmarshal([]byte(mustRun(t, dir, "sprint", "plan", "sprint-1", "--json")), &res); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(res.Included) != 2 || res.Included[0] != 2 {
		t.Errorf("included = %v, want high priority first", res.Included)
	}

	mustRun(t, dir, "set-status", "--id", "2", "--status", "done")

	var ms []sprint.Metrics
	if err := json.Unmarshal([]byte(mustRun(t, dir, "sprint", "metrics", "--json")), &ms); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if len(ms) != 1 || ms[0].Completed != 1 || ms[0].CompletionRate != 50 {
		t.Errorf("metrics = %+v", ms)
	}

	out = mustRun(t, dir, "sprint", "report", "sprint-1")
	if !strings.Contains(out, "1/2 complete") {
		t.Errorf("report output = %q", out)
	}
}

func TestVersionAndConfig(t *testing.T) {
	dir := t.TempDir()
	if out := mustRun(t, dir, "version"); !strings.HasPrefix(out, "taskmaster ") {
		t.Errorf("version output = %q", out)
	}
	out := mustRun(t, dir, "config", "show")
	if !strings.Contains(out, "tasks_file: tasks.json") {
		t.Errorf("config output = %q", out)
	}
}
