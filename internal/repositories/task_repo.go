package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const taskColumns = `id, owner_id, client_id, project_id, title, notes, status, priority, due_at, tags, created_at, updated_at`

// TaskRepository handles task data access
type TaskRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTaskRow(scanner rowScanner) (*models.Task, error) {
	var task models.Task

	err := scanner.Scan(
		&task.ID, &task.OwnerID, &task.ClientID, &task.ProjectID,
		&task.Title, &task.Notes, &task.Status, &task.Priority,
		&task.DueAt, pq.Array(&task.Tags),
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if task.Tags == nil {
		task.Tags = []string{}
	}
	return &task, nil
}

func scanTaskRows(rows pgx.Rows) ([]*models.Task, error) {
	defer rows.Close()

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	task.ID = uuid.New().String()
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + taskColumns

	created, err := scanTaskRow(r.pool.QueryRow(ctx, query,
		task.ID, task.OwnerID, task.ClientID, task.ProjectID,
		task.Title, task.Notes, task.Status, task.Priority,
		task.DueAt, pq.Array(task.Tags),
		task.CreatedAt, task.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return created, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`

	return scanTaskRow(r.pool.QueryRow(ctx, query, id, ownerID))
}

// ListByOwner returns the owner's tasks, newest first. An empty status lists every status.
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, ownerID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	return scanTaskRows(rows)
}

// ListDueBetween returns tasks due in [from, to), ordered by due date
func (r *TaskRepository) ListDueBetween(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1 AND due_at >= $2 AND due_at < $3
		ORDER BY due_at ASC
	`

	rows, err := r.pool.Query(ctx, query, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar tasks: %w", err)
	}

	return scanTaskRows(rows)
}

func (r *TaskRepository) Update(ctx context.Context, task *models.Task) (*models.Task, error) {
	query := `
		UPDATE tasks
		SET title = $3, notes = $4, status = $5, priority = $6, due_at = $7, tags = $8,
		    project_id = $9, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + taskColumns

	updated, err := scanTaskRow(r.pool.QueryRow(ctx, query,
		task.ID, task.OwnerID,
		task.Title, task.Notes, task.Status, task.Priority, task.DueAt, pq.Array(task.Tags),
		task.ProjectID,
	))
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *TaskRepository) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ImportBatch inserts tasks in one transaction. Tasks whose client id was already
// imported for this owner are skipped. Returns the number of rows inserted.
func (r *TaskRepository) ImportBatch(ctx context.Context, ownerID string, tasks []*models.Task) (int, error) {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (owner_id, client_id) WHERE client_id IS NOT NULL DO NOTHING
	`

	inserted := 0
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		now := time.Now()
		for _, task := range tasks {
			task.ID = uuid.New().String()
			task.OwnerID = ownerID
			if task.CreatedAt.IsZero() {
				task.CreatedAt = now
			}
			task.UpdatedAt = now

			tag, err := tx.Exec(ctx, query,
				task.ID, task.OwnerID, task.ClientID, task.ProjectID,
				task.Title, task.Notes, task.Status, task.Priority,
				task.DueAt, pq.Array(task.Tags),
				task.CreatedAt, task.UpdatedAt,
			)
			if err != nil {
				return database.MapPostgresError(err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import tasks: %w", err)
	}

	return inserted, nil
}
