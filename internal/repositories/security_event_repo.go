package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepository persists security events for audit beyond the in-memory window
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent

	err := row.Scan(
		&event.Type, &event.Severity, &event.IP, &event.UserAgent,
		&event.Endpoint, &event.Details, &event.Blocked, &event.UserID,
		&event.Timestamp,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// RecordSecurityEvent stores one event
func (r *SecurityEventRepository) RecordSecurityEvent(ctx context.Context, event models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			event_type, severity, ip_address, user_agent, endpoint, details, blocked, user_id, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		string(event.Type), string(event.Severity), event.IP, event.UserAgent,
		event.Endpoint, event.Details, event.Blocked, event.UserID, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record security event: %w", database.MapPostgresError(err))
	}

	return nil
}

// ListByIP returns the newest persisted events for ip
func (r *SecurityEventRepository) ListByIP(ctx context.Context, ip string, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT event_type, severity, ip_address, user_agent, endpoint, details, blocked, user_id, occurred_at
		FROM security_events
		WHERE ip_address = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// DeleteOlderThan removes events that occurred before cutoff and returns how many were removed
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM security_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old security events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Cleanup removes events older than retention
func (r *SecurityEventRepository) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return r.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
