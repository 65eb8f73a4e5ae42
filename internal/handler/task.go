package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/progression"
	"github.com/dukerupert/famboard/internal/store"
	"github.com/dukerupert/famboard/internal/websocket"
)

type TaskHandler struct {
	taskStore *store.TaskStore
	hub       *websocket.Hub
	logger    *slog.Logger
	now       func() time.Time
}

func NewTaskHandler(ts *store.TaskStore, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{taskStore: ts, hub: hub, logger: logger, now: time.Now}
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Energy      string `json:"energy"`
	AssignedTo  int64  `json:"assigned_to"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if req.AssignedTo == 0 {
		req.AssignedTo = ac.MemberID
	}

	task, err := h.taskStore.Create(ac.FamilyID, req.AssignedTo, req.Title, req.Description, req.Category, req.Energy)
	if err != nil {
		writeStoreError(w, h.logger, err, "create task")
		return
	}

	h.hub.Broadcast(ac.FamilyID, websocket.NewMessage("task", "created", task.ID, nil))
	writeJSON(w, http.StatusCreated, task)
}

// List returns the family's tasks, optionally filtered by assigned_to and
// status (open or done).
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var assignee int64
	if s := q.Get("assigned_to"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assigned_to"})
			return
		}
		assignee = id
	}
	status := q.Get("status")
	if status != "" && status != "open" && status != "done" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be open or done"})
		return
	}

	tasks, err := h.taskStore.ListByFamily(auth.FamilyID(r.Context()))
	if err != nil {
		writeStoreError(w, h.logger, err, "list tasks")
		return
	}

	out := []model.Task{}
	for _, t := range tasks {
		if assignee != 0 && t.AssignedTo != assignee {
			continue
		}
		if (status == "open" && t.Completed) || (status == "done" && !t.Completed) {
			continue
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, out)
}

// familyTask loads the task named by {id}, answering 404 unless it belongs
// to the caller's family.
func (h *TaskHandler) familyTask(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	task, err := h.taskStore.GetByID(id)
	if err != nil {
		writeStoreError(w, h.logger, err, "get task")
		return nil, false
	}
	if task == nil || task.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.familyTask(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AssignedTo == 0 {
		req.AssignedTo = existing.AssignedTo
	}
	if req.Energy == "" {
		req.Energy = existing.Energy
	}

	task, err := h.taskStore.Update(existing.ID, req.AssignedTo, req.Title, req.Description, req.Category, req.Energy)
	if err != nil {
		writeStoreError(w, h.logger, err, "update task")
		return
	}

	h.hub.Broadcast(task.FamilyID, websocket.NewMessage("task", "updated", task.ID, nil))
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.familyTask(w, r)
	if !ok {
		return
	}

	if err := h.taskStore.Delete(existing.ID); err != nil {
		writeStoreError(w, h.logger, err, "delete task")
		return
	}

	h.hub.Broadcast(existing.FamilyID, websocket.NewMessage("task", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Complete marks the task done and credits its assignee.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.familyTask(w, r)
	if !ok {
		return
	}

	c, err := h.taskStore.Complete(existing.ID, h.now())
	if err != nil {
		writeStoreError(w, h.logger, err, "complete task")
		return
	}

	levelUp := c.Member.Level > progression.Level(c.Member.Points-c.PointsAwarded)
	h.logger.Info("task completed",
		"task_id", c.Task.ID,
		"member_id", c.Member.ID,
		"points", c.PointsAwarded,
		"level", c.Member.Level,
		"streak", c.Member.Streak,
	)
	h.hub.Broadcast(c.Task.FamilyID, websocket.NewMessage("task", "completed", c.Task.ID, map[string]any{
		"member_id":      c.Member.ID,
		"points_awarded": c.PointsAwarded,
		"points":         c.Member.Points,
		"level":          c.Member.Level,
		"streak":         c.Member.Streak,
		"level_up":       levelUp,
	}))
	writeJSON(w, http.StatusOK, c)
}
