package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/agent"
	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/internal/logging"
	"github.com/GoCodeAlone/taskmaster/server/api"
	"github.com/GoCodeAlone/taskmaster/sprint"
	"github.com/GoCodeAlone/taskmaster/task"
	"github.com/GoCodeAlone/taskmaster/tracker"
)

const tasksJSON = `{
  "tasks": [
    {"id": 1, "title": "Schema", "status": "pending", "priority": "medium",
     "subtasks": [{"id": 1, "title": "Tables", "status": "pending"}]},
    {"id": 2, "title": "API", "status": "done", "priority": "low"},
    {"id": 3, "title": "UI", "status": "pending", "priority": "high", "dependencies": [2]}
  ]
}`

const agentsJSON = `{"agents": [{"name": "Ada", "status": "available"}]}`

const sprintsJSON = `{"sprints": [{"id": "s1", "name": "First", "status": "active", "tasks": [1, 2]}]}`

type env struct {
	dir string
	svc *tracker.Service
	mux *http.ServeMux
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"tasks.json":   tasksJSON,
		"agents.json":  agentsJSON,
		"sprints.json": sprintsJSON,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	l, err := activity.OpenSQLite(filepath.Join(dir, "activity.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	svc := tracker.New(tracker.Options{
		TasksPath:   filepath.Join(dir, "tasks.json"),
		AgentsPath:  filepath.Join(dir, "agents.json"),
		SprintsPath: filepath.Join(dir, "sprints.json"),
		Log:         l,
	})
	h := &api.Handlers{Backend: svc, Logger: logging.Discard(), Version: "test"}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &env{dir: dir, svc: svc, mux: mux}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, code int, kind errs.Kind) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
	body := decodeBody[api.ErrorBody](t, w)
	if body.Kind != kind {
		t.Errorf("expected kind %q, got %q (%s)", kind, body.Kind, body.Error)
	}
}

// --- Task tests ---

func TestListTasks(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "GET", "/api/tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	tasks := decodeBody[[]task.Task](t, w)
	if len(tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(tasks))
	}

	w = e.do(t, "GET", "/api/tasks?status=done", nil)
	tasks = decodeBody[[]task.Task](t, w)
	if len(tasks) != 1 || tasks[0].ID != 2 {
		t.Errorf("status filter returned %+v", tasks)
	}
}

func TestListTasks_BadFilter(t *testing.T) {
	e := newEnv(t)
	expectError(t, e.do(t, "GET", "/api/tasks?status=bogus", nil), http.StatusBadRequest, errs.KindInvalidInput)
	expectError(t, e.do(t, "GET", "/api/tasks?limit=-1", nil), http.StatusBadRequest, errs.KindInvalidInput)
}

func TestGetTask(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "GET", "/api/tasks/3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decodeBody[task.Task](t, w)
	if got.Title != "UI" {
		t.Errorf("expected title UI, got %q", got.Title)
	}

	expectError(t, e.do(t, "GET", "/api/tasks/99", nil), http.StatusNotFound, errs.KindNotFound)
	expectError(t, e.do(t, "GET", "/api/tasks/abc", nil), http.StatusBadRequest, errs.KindInvalidInput)
}

func TestCreateAndDeleteTask(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "POST", "/api/tasks", map[string]any{"title": "Docs", "priority": "high"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody[task.Task](t, w)
	if created.ID != 4 || created.Status != task.StatusPending {
		t.Errorf("created = %+v", created)
	}

	if w := e.do(t, "DELETE", "/api/tasks/4", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	expectError(t, e.do(t, "GET", "/api/tasks/4", nil), http.StatusNotFound, errs.KindNotFound)
}

func TestCreateTask_InvalidBody(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest("POST", "/api/tasks", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, errs.KindInvalidInput)
}

func TestUpdateTask_StatusCascades(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "PUT", "/api/tasks/1", map[string]any{"title": "Schema v2", "status": "done"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[task.Task](t, w)
	if got.Title != "Schema v2" || got.Status != task.StatusDone {
		t.Errorf("updated = %+v", got)
	}
	if len(got.Subtasks) != 1 || got.Subtasks[0].Status != task.StatusDone {
		t.Errorf("subtask not cascaded: %+v", got.Subtasks)
	}
}

func TestSubtaskRoutes(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "POST", "/api/tasks/1/subtasks", map[string]any{"title": "Indexes"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	sub := decodeBody[task.Subtask](t, w)
	if sub.ID != 2 {
		t.Errorf("expected subtask id 2, got %d", sub.ID)
	}

	if w := e.do(t, "DELETE", "/api/tasks/1/subtasks/2", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	expectError(t, e.do(t, "DELETE", "/api/tasks/1/subtasks/2", nil), http.StatusNotFound, errs.KindNotFound)
}

func TestSetStatus(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "POST", "/api/tasks/status", map[string]string{"ids": "1,1.1", "status": "in-progress"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	sum := decodeBody[task.Summary](t, w)
	if !sum.Success {
		t.Error("expected success")
	}
	if len(sum.UpdatedTasks) != 2 || sum.UpdatedTasks[0].ID != "1" || sum.UpdatedTasks[1].ID != "1.1" {
		t.Errorf("updatedTasks = %+v", sum.UpdatedTasks)
	}
	for _, u := range sum.UpdatedTasks {
		if u.Status != task.StatusInProgress {
			t.Errorf("task %s status %q", u.ID, u.Status)
		}
	}

	w = e.do(t, "GET", "/api/tasks/1/activity", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	entries := decodeBody[[]activity.Entry](t, w)
	if len(entries) != 2 {
		t.Errorf("expected 2 activity entries, got %d", len(entries))
	}
}

func TestSetStatus_Errors(t *testing.T) {
	e := newEnv(t)
	expectError(t, e.do(t, "POST", "/api/tasks/status", map[string]string{"ids": "1", "status": "finished"}),
		http.StatusBadRequest, errs.KindInvalidInput)
	expectError(t, e.do(t, "POST", "/api/tasks/status", map[string]string{"ids": "", "status": "done"}),
		http.StatusBadRequest, errs.KindInvalidInput)
	expectError(t, e.do(t, "POST", "/api/tasks/status", map[string]string{"ids": "1,99", "status": "done"}),
		http.StatusNotFound, errs.KindNotFound)

	// the failed batch left task 1 untouched
	got := decodeBody[task.Task](t, e.do(t, "GET", "/api/tasks/1", nil))
	if got.Status != task.StatusPending {
		t.Errorf("task 1 status = %q after failed batch", got.Status)
	}
}

func TestValidateDependencies(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "GET", "/api/dependencies/validate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody[map[string]any](t, w)
	if body["valid"] != true {
		t.Errorf("expected valid dependencies, got %v", body)
	}
}

// --- Agent tests ---

func TestDelegateAndAgentMetrics(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "POST", "/api/tasks/3/delegate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[task.Task](t, w)
	if got.Agent != "Ada" {
		t.Errorf("expected Ada, got %q", got.Agent)
	}

	w = e.do(t, "GET", "/api/agents/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Ada")) {
		t.Errorf("metrics missing Ada: %s", w.Body.String())
	}
}

func TestDelegate_NoAvailableAgents(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "PUT", "/api/agents/Ada", map[string]string{"status": "away"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	a := decodeBody[agent.Agent](t, w)
	if a.Status != agent.StatusAway {
		t.Errorf("status = %q", a.Status)
	}

	expectError(t, e.do(t, "POST", "/api/tasks/3/delegate", nil), http.StatusConflict, errs.KindPreconditionFailed)
	expectError(t, e.do(t, "PUT", "/api/agents/Zed", map[string]string{"status": "away"}), http.StatusNotFound, errs.KindNotFound)
}

func TestListAgentsAndAssign(t *testing.T) {
	e := newEnv(t)
	agents := decodeBody[[]agent.Agent](t, e.do(t, "GET", "/api/agents", nil))
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}

	w := e.do(t, "POST", "/api/agents/assign", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody[map[string]any](t, w)
	// every unassigned task, done or not
	if body["assigned"] != float64(3) {
		t.Errorf("assigned = %v", body["assigned"])
	}
}

// --- Sprint tests ---

func TestSprintRoutes(t *testing.T) {
	e := newEnv(t)
	sprints := decodeBody[[]sprint.Sprint](t, e.do(t, "GET", "/api/sprints", nil))
	if len(sprints) != 1 || sprints[0].ID != "s1" {
		t.Fatalf("sprints = %+v", sprints)
	}

	w := e.do(t, "GET", "/api/sprints/metrics?id=s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ms := decodeBody[[]sprint.Metrics](t, w)
	if len(ms) != 1 || ms[0].Total != 2 || ms[0].Completed != 1 || ms[0].CompletionRate != 50 {
		t.Errorf("metrics = %+v", ms)
	}

	expectError(t, e.do(t, "GET", "/api/sprints/nope", nil), http.StatusNotFound, errs.KindNotFound)
	expectError(t, e.do(t, "GET", "/api/sprints/metrics?id=nope", nil), http.StatusNotFound, errs.KindNotFound)

	w = e.do(t, "GET", "/api/sprints/s1/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rep := decodeBody[sprint.Report](t, w)
	if rep.Summary.Total != 2 || rep.Summary.Completed != 1 {
		t.Errorf("report summary = %+v", rep.Summary)
	}
}

func TestCreateAndPlanSprint(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "POST", "/api/sprints", map[string]any{"name": "Second"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody[sprint.Sprint](t, w)
	if created.Status != sprint.StatusPlanning {
		t.Errorf("status = %q", created.Status)
	}

	w = e.do(t, "POST", "/api/sprints/"+string(created.ID)+"/plan", map[string]int{"limit": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[sprint.PlanResult](t, w)
	// task 3 is high priority; task 2 is done
	if len(res.Included) != 1 || res.Included[0] != 3 {
		t.Errorf("included = %v", res.Included)
	}

	expectError(t, e.do(t, "POST", "/api/sprints", map[string]any{"goal": "no name"}),
		http.StatusBadRequest, errs.KindInvalidInput)
	expectError(t, e.do(t, "POST", "/api/sprints/s1/plan", map[string]int{"limit": -1}),
		http.StatusBadRequest, errs.KindInvalidInput)
}

// --- Status / metrics tests ---

func TestMetricsOverview(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "GET", "/api/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	o := decodeBody[tracker.Overview](t, w)
	if o.Total != 3 || o.Completed != 1 {
		t.Errorf("overview = %+v", o)
	}
}

func TestStatusDegradedWhenTasksMissing(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "GET", "/api/status", nil)
	body := decodeBody[map[string]any](t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}

	if err := os.Remove(filepath.Join(e.dir, "tasks.json")); err != nil {
		t.Fatal(err)
	}
	w = e.do(t, "GET", "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body = decodeBody[map[string]any](t, w)
	if body["status"] != "degraded" {
		t.Errorf("status = %v", body["status"])
	}

	expectError(t, e.do(t, "GET", "/api/tasks", nil), http.StatusInternalServerError, errs.KindIOFailure)
}

func TestHealthAndVersion(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, "GET", "/api/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}
	body := decodeBody[map[string]string](t, e.do(t, "GET", "/api/version", nil))
	if body["version"] != "test" {
		t.Errorf("version = %q", body["version"])
	}
}

func TestMessages(t *testing.T) {
	e := newEnv(t)
	e.do(t, "POST", "/api/tasks/status", map[string]string{"ids": "3", "status": "review"})

	w := e.do(t, "GET", "/api/messages?topic=tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var msgs []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0]["type"] != "status_changed" {
		t.Errorf("messages = %v", msgs)
	}
}
