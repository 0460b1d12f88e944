package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/services"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/go-chi/chi/v5"
)

// TaskService defines the interface for task business logic
type TaskService interface {
	GetTask(ctx context.Context, ownerID, id string) (*models.Task, error)
	ListTasks(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error)
	ListCalendar(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error)
	CreateTask(ctx context.Context, ownerID string, task *models.Task) (*models.Task, error)
	UpdateTask(ctx context.Context, ownerID, id string, upd services.TaskUpdate) (*models.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
	ImportLocalTasks(ctx context.Context, ownerID string, tasks []*models.Task) (*services.ImportResult, error)
}

// TaskHandler handles task and calendar HTTP requests
type TaskHandler struct {
	service TaskService
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(service TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// Request/Response DTOs

// CreateTaskRequest represents the request body for creating a task
type CreateTaskRequest struct {
	Title     string     `json:"title" validate:"required,max=500"`
	Notes     string     `json:"notes" validate:"max=10000"`
	Status    string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority  string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueAt     *time.Time `json:"dueAt"`
	Tags      []string   `json:"tags" validate:"max=20,dive,min=1,max=50"`
	ProjectID *string    `json:"projectId" validate:"omitempty,max=100"`
}

// UpdateTaskRequest represents the request body for updating a task; omitted fields are unchanged
type UpdateTaskRequest struct {
	Title     *string    `json:"title" validate:"omitempty,min=1,max=500"`
	Notes     *string    `json:"notes" validate:"omitempty,max=10000"`
	Status    *string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority  *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueAt     *time.Time `json:"dueAt"`
	ClearDue  bool       `json:"clearDue"`
	Tags      []string   `json:"tags" validate:"omitempty,max=20,dive,min=1,max=50"`
	ProjectID *string    `json:"projectId" validate:"omitempty,max=100"`
}

// ImportTaskRequest is one task read from browser storage
type ImportTaskRequest struct {
	ClientID  string     `json:"clientId" validate:"required,max=100"`
	Title     string     `json:"title" validate:"required,max=500"`
	Notes     string     `json:"notes" validate:"max=10000"`
	Status    string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority  string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueAt     *time.Time `json:"dueAt"`
	Tags      []string   `json:"tags" validate:"max=20,dive,min=1,max=50"`
	ProjectID *string    `json:"projectId" validate:"omitempty,max=100"`
	CreatedAt *time.Time `json:"createdAt"`
}

// ImportTasksRequest represents the request body of the browser storage migration
type ImportTasksRequest struct {
	Tasks []ImportTaskRequest `json:"tasks" validate:"required,max=1000,dive"`
}

// TaskResponse represents a task in the HTTP response
type TaskResponse struct {
	ID        string   `json:"id"`
	ClientID  *string  `json:"clientId,omitempty"`
	ProjectID *string  `json:"projectId,omitempty"`
	Title     string   `json:"title"`
	Notes     string   `json:"notes"`
	Status    string   `json:"status"`
	Priority  string   `json:"priority"`
	DueAt     *string  `json:"dueAt"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// ListTasksResponse represents a list of tasks
type ListTasksResponse struct {
	Tasks []*TaskResponse `json:"tasks"`
	Total int             `json:"total"`
}

func taskModelToResponse(task *models.Task) *TaskResponse {
	resp := &TaskResponse{
		ID:        task.ID,
		ClientID:  task.ClientID,
		ProjectID: task.ProjectID,
		Title:     task.Title,
		Notes:     task.Notes,
		Status:    task.Status,
		Priority:  task.Priority,
		Tags:      task.Tags,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
		UpdatedAt: task.UpdatedAt.Format(time.RFC3339),
	}
	if task.DueAt != nil {
		due := task.DueAt.Format(time.RFC3339)
		resp.DueAt = &due
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	return resp
}

func taskListResponse(tasks []*models.Task) *ListTasksResponse {
	response := &ListTasksResponse{
		Tasks: make([]*TaskResponse, len(tasks)),
		Total: len(tasks),
	}
	for i, task := range tasks {
		response.Tasks[i] = taskModelToResponse(task)
	}
	return response
}

// ListTasks handles GET /api/tasks
// Accepts ?limit (1..200, default 50), ?offset and ?status.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if _, err := parseIntParam(l, &limit, 1, 200); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if _, err := parseIntParam(o, &offset, 0, 100000); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid offset parameter")
			return
		}
	}

	tasks, err := h.service.ListTasks(r.Context(), ownerID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, err, "Task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(taskListResponse(tasks))
}

// GetTask handles GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "Task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(taskModelToResponse(task))
}

// CreateTask handles POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	task := &models.Task{
		Title:     strings.TrimSpace(req.Title),
		Notes:     req.Notes,
		Status:    req.Status,
		Priority:  req.Priority,
		DueAt:     req.DueAt,
		Tags:      req.Tags,
		ProjectID: req.ProjectID,
	}

	created, err := h.service.CreateTask(r.Context(), ownerID, task)
	if err != nil {
		writeServiceError(w, err, "Task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(taskModelToResponse(created))
}

// UpdateTask handles PUT /api/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	updated, err := h.service.UpdateTask(r.Context(), ownerID, chi.URLParam(r, "id"), services.TaskUpdate{
		Title:     req.Title,
		Notes:     req.Notes,
		Status:    req.Status,
		Priority:  req.Priority,
		DueAt:     req.DueAt,
		ClearDue:  req.ClearDue,
		Tags:      req.Tags,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		writeServiceError(w, err, "Task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(taskModelToResponse(updated))
}

// DeleteTask handles DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "Task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCalendar handles GET /api/calendar?from=&to=
// Both bounds are RFC 3339 timestamps or YYYY-MM-DD dates.
func (h *TaskHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	from, err := parseCalendarBound(r.URL.Query().Get("from"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid from parameter")
		return
	}
	to, err := parseCalendarBound(r.URL.Query().Get("to"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid to parameter")
		return
	}

	tasks, err := h.service.ListCalendar(r.Context(), ownerID, from, to)
	if err != nil {
		writeServiceError(w, err, "Task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(taskListResponse(tasks))
}

// ImportTasks handles POST /api/migrate
// Replays tasks kept in browser storage; tasks already imported are skipped.
func (h *TaskHandler) ImportTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req ImportTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	tasks := make([]*models.Task, len(req.Tasks))
	for i, t := range req.Tasks {
		clientID := t.ClientID
		tasks[i] = &models.Task{
			ClientID:  &clientID,
			ProjectID: t.ProjectID,
			Title:     t.Title,
			Notes:     t.Notes,
			Status:    t.Status,
			Priority:  t.Priority,
			DueAt:     t.DueAt,
			Tags:      t.Tags,
		}
		if t.CreatedAt != nil {
			tasks[i].CreatedAt = *t.CreatedAt
		}
	}

	result, err := h.service.ImportLocalTasks(r.Context(), ownerID, tasks)
	if err != nil {
		writeServiceError(w, err, "Task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// requireOwner returns the session user id, writing 401 when there is none
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.UserID() == "" {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return "", false
	}
	return session.UserID(), true
}

// writeServiceError maps service sentinel errors to HTTP responses
func writeServiceError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, resource+" not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, resource+" already exists")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func parseCalendarBound(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing value")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, value)
}
