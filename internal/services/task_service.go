package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.Task, error)
	ListByOwner(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error)
	ListDueBetween(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) (*models.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
	ImportBatch(ctx context.Context, ownerID string, tasks []*models.Task) (int, error)
}

// ImportResult reports the outcome of a browser-storage migration
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// maxImportBatch bounds a single migration request
const maxImportBatch = 1000

// TaskService handles task business logic
type TaskService struct {
	repo   TaskRepository
	logger *slog.Logger
}

// NewTaskService creates a new TaskService
func NewTaskService(repo TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
	}
}

// GetTask retrieves one task owned by ownerID
func (s *TaskService) GetTask(ctx context.Context, ownerID, id string) (*models.Task, error) {
	task, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get task", slog.String("task_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return task, nil
}

// ListTasks retrieves tasks with pagination and an optional status filter
func (s *TaskService) ListTasks(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error) {
	if status != "" && !models.IsValidTaskStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrBadRequest, status)
	}

	tasks, err := s.repo.ListByOwner(ctx, ownerID, status, limit, offset)
	if err != nil {
		s.logger.Error("failed to list tasks", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return tasks, nil
}

// ListCalendar returns the tasks due inside [from, to)
func (s *TaskService) ListCalendar(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after start", models.ErrBadRequest)
	}
	if to.Sub(from) > 366*24*time.Hour {
		return nil, fmt.Errorf("%w: range must not exceed one year", models.ErrBadRequest)
	}

	tasks, err := s.repo.ListDueBetween(ctx, ownerID, from, to)
	if err != nil {
		s.logger.Error("failed to list calendar tasks", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return tasks, nil
}

// CreateTask creates a task for ownerID, applying default status and priority
func (s *TaskService) CreateTask(ctx context.Context, ownerID string, task *models.Task) (*models.Task, error) {
	task.OwnerID = ownerID
	if err := normalizeTask(task); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, task)
	if err != nil {
		s.logger.Error("failed to create task", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("task created", slog.String("task_id", created.ID))
	return created, nil
}

// TaskUpdate holds the fields a client may change; nil means unchanged
type TaskUpdate struct {
	Title     *string
	Notes     *string
	Status    *string
	Priority  *string
	DueAt     *time.Time
	ClearDue  bool
	Tags      []string
	ProjectID *string
}

// UpdateTask applies a partial update to an existing task
func (s *TaskService) UpdateTask(ctx context.Context, ownerID, id string, upd TaskUpdate) (*models.Task, error) {
	existing, err := s.GetTask(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		existing.Title = *upd.Title
	}
	if upd.Notes != nil {
		existing.Notes = *upd.Notes
	}
	if upd.Status != nil {
		existing.Status = *upd.Status
	}
	if upd.Priority != nil {
		existing.Priority = *upd.Priority
	}
	if upd.ClearDue {
		existing.DueAt = nil
	} else if upd.DueAt != nil {
		existing.DueAt = upd.DueAt
	}
	if upd.Tags != nil {
		existing.Tags = upd.Tags
	}
	if upd.ProjectID != nil {
		existing.ProjectID = upd.ProjectID
	}

	if err := normalizeTask(existing); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update task", slog.String("task_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("task updated", slog.String("task_id", id))
	return updated, nil
}

// DeleteTask deletes a task
func (s *TaskService) DeleteTask(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete task", slog.String("task_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("task deleted", slog.String("task_id", id))
	return nil
}

// ImportLocalTasks replays tasks kept in browser storage into the database.
// Records already imported (same client id) are skipped, so the migration can be retried.
func (s *TaskService) ImportLocalTasks(ctx context.Context, ownerID string, tasks []*models.Task) (*ImportResult, error) {
	if len(tasks) == 0 {
		return &ImportResult{}, nil
	}
	if len(tasks) > maxImportBatch {
		return nil, fmt.Errorf("%w: at most %d tasks per import", models.ErrBadRequest, maxImportBatch)
	}

	for i, task := range tasks {
		task.OwnerID = ownerID
		if err := normalizeTask(task); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
	}

	imported, err := s.repo.ImportBatch(ctx, ownerID, tasks)
	if err != nil {
		s.logger.Error("failed to import local tasks", slog.Int("count", len(tasks)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result := &ImportResult{
		Imported: imported,
		Skipped:  len(tasks) - imported,
		Total:    len(tasks),
	}
	s.logger.Info("local tasks imported",
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// normalizeTask trims input, fills defaults and validates enumerations
func normalizeTask(task *models.Task) error {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return fmt.Errorf("%w: title is required", models.ErrBadRequest)
	}

	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	if !models.IsValidTaskStatus(task.Status) {
		return fmt.Errorf("%w: unknown status %q", models.ErrBadRequest, task.Status)
	}

	if task.Priority == "" {
		task.Priority = models.TaskPriorityMedium
	}
	if !models.IsValidTaskPriority(task.Priority) {
		return fmt.Errorf("%w: unknown priority %q", models.ErrBadRequest, task.Priority)
	}

	if task.Tags == nil {
		task.Tags = []string{}
	}
	return nil
}
