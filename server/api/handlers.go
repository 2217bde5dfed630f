package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/taskmaster/activity"
	"github.com/GoCodeAlone/taskmaster/agent"
	"github.com/GoCodeAlone/taskmaster/comms"
	"github.com/GoCodeAlone/taskmaster/internal/errs"
	"github.com/GoCodeAlone/taskmaster/sprint"
	"github.com/GoCodeAlone/taskmaster/task"
	"github.com/GoCodeAlone/taskmaster/tracker"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Backend Backend
	Logger  *slog.Logger
	Version string
	StartAt time.Time
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("POST /api/tasks/status", h.setStatus)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/subtasks", h.addSubtask)
	mux.HandleFunc("DELETE /api/tasks/{id}/subtasks/{sub}", h.removeSubtask)
	mux.HandleFunc("POST /api/tasks/{id}/delegate", h.delegate)
	mux.HandleFunc("GET /api/tasks/{id}/activity", h.taskActivity)
	mux.HandleFunc("GET /api/dependencies/validate", h.validateDependencies)

	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("PUT /api/agents/{id}", h.updateAgent)
	mux.HandleFunc("GET /api/agents/metrics", h.agentMetrics)
	mux.HandleFunc("POST /api/agents/assign", h.assignAgents)

	mux.HandleFunc("GET /api/sprints", h.listSprints)
	mux.HandleFunc("POST /api/sprints", h.createSprint)
	mux.HandleFunc("GET /api/sprints/metrics", h.sprintMetrics)
	mux.HandleFunc("GET /api/sprints/{id}", h.getSprint)
	mux.HandleFunc("PUT /api/sprints/{id}", h.updateSprint)
	mux.HandleFunc("POST /api/sprints/{id}/plan", h.planSprint)
	mux.HandleFunc("GET /api/sprints/{id}/report", h.sprintReport)

	mux.HandleFunc("GET /api/activity", h.listActivity)
	mux.HandleFunc("GET /api/messages", h.listMessages)

	mux.HandleFunc("GET /api/metrics", h.metrics)
	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string    `json:"error"`
	Kind  errs.Kind `json:"kind,omitempty"`
}

// writeError answers with the status code for err's kind.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
	}
	writeJSON(w, status, ErrorBody{Error: err.Error(), Kind: kind})
}

// decode reads the JSON body into v. Failures are invalid input.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.E(errs.KindInvalidInput, "decode", "invalid request body: %v", err)
	}
	return nil
}

func pathTaskID(r *http.Request) (int, error) {
	return task.ParseTaskID(r.PathValue("id"))
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errs.E(errs.KindInvalidInput, "query", "%s must be a non-negative integer", name)
	}
	return n, nil
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.Filter{
		Agent:  q.Get("agent"),
		Sprint: q.Get("sprint"),
	}
	if s := q.Get("status"); s != "" {
		st, err := task.ParseStatus(s)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.Status = &st
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}

	tasks, err := h.Backend.ListTasks(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := decode(r, &t); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.Backend.CreateTask(r.Context(), &t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathTaskID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.Backend.GetTask(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathTaskID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var u tracker.TaskUpdate
	if err := decode(r, &u); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.Backend.UpdateTask(r.Context(), id, u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathTaskID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.Backend.DeleteTask(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) addSubtask(w http.ResponseWriter, r *http.Request) {
	id, err := pathTaskID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var sub task.Subtask
	if err := decode(r, &sub); err != nil {
		h.writeError(w, r, err)
		return
	}
	added, err := h.Backend.AddSubtask(r.Context(), id, &sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handlers) removeSubtask(w http.ResponseWriter, r *http.Request) {
	id, err := pathTaskID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := task.ParseTaskID(r.PathValue("sub"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Backend.RemoveSubtask(r.Context(), id, sub); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setStatusRequest is the body accepted by POST /api/tasks/status.
type setStatusRequest struct {
	IDs    string `json:"ids"`
	Status string `json:"status"`
}

func (h *Handlers) setStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Backend.SetStatus(r.Context(), req.IDs, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Summary())
}

func (h *Handlers) delegate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Backend.Delegate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) taskActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathTaskID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.Backend.Activity(r.Context(), activity.Query{TaskID: strconv.Itoa(id), Limit: limit})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) validateDependencies(w http.ResponseWriter, r *http.Request) {
	issues, err := h.Backend.ValidateDependencies(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

// --- Agent handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Backend.ListAgents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if agents == nil {
		agents = []agent.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) updateAgent(w http.ResponseWriter, r *http.Request) {
	var p agent.Patch
	if err := decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.Backend.UpdateAgent(r.Context(), r.PathValue("id"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) agentMetrics(w http.ResponseWriter, r *http.Request) {
	loads, err := h.Backend.AgentMetrics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loads)
}

func (h *Handlers) assignAgents(w http.ResponseWriter, r *http.Request) {
	out, err := h.Backend.AssignAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assigned":    len(out),
		"assignments": out,
	})
}

// --- Sprint handlers ---

func (h *Handlers) listSprints(w http.ResponseWriter, r *http.Request) {
	sprints, err := h.Backend.ListSprints(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sprints)
}

func (h *Handlers) createSprint(w http.ResponseWriter, r *http.Request) {
	var s sprint.Sprint
	if err := decode(r, &s); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.Backend.CreateSprint(r.Context(), &s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) getSprint(w http.ResponseWriter, r *http.Request) {
	s, err := h.Backend.GetSprint(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) updateSprint(w http.ResponseWriter, r *http.Request) {
	var p sprint.Patch
	if err := decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.Backend.UpdateSprint(r.Context(), r.PathValue("id"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// planRequest is the optional body of POST /api/sprints/{id}/plan.
type planRequest struct {
	Limit int `json:"limit"`
}

func (h *Handlers) planSprint(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if req.Limit < 0 {
		h.writeError(w, r, errs.E(errs.KindInvalidInput, "plan", "limit cannot be negative"))
		return
	}
	res, err := h.Backend.PlanSprint(r.Context(), r.PathValue("id"), req.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) sprintMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.Backend.SprintMetrics(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) sprintReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Backend.SprintReport(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// --- Activity / message handlers ---

func (h *Handlers) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = 50
	}
	q := activity.Query{
		TaskID: r.URL.Query().Get("task"),
		Kind:   activity.Kind(r.URL.Query().Get("kind")),
		Limit:  limit,
	}
	entries, err := h.Backend.Activity(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = comms.AllTopics
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	msgs, err := h.Backend.History(topic, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*comms.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- Metrics / status / version ---

func (h *Handlers) metrics(w http.ResponseWriter, r *http.Request) {
	o, err := h.Backend.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handlers) status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": h.Version,
	}
	if !h.StartAt.IsZero() {
		resp["uptime"] = time.Since(h.StartAt).Round(time.Second).String()
	}
	o, err := h.Backend.Overview(r.Context())
	switch {
	case err == nil:
		resp["tasks"] = o.Total
		resp["revision"] = o.Revision
	case errors.Is(err, errs.IOFailure):
		resp["status"] = "degraded"
		resp["error"] = err.Error()
	default:
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthHandler returns the liveness handler for external registration.
func (h *Handlers) HealthHandler() http.HandlerFunc {
	return h.health
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
