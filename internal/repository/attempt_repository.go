// internal/repository/attempt_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"servo-commissioning/internal/database"
	"servo-commissioning/internal/model"
)

const attemptColumns = `id, robot_part, device_name, device_kind, status, outcome,
		detail, result, started_at, completed_at, duration_ms`

// attemptRepository implements AttemptRepository on PostgreSQL
type attemptRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAttemptRepository creates a PostgreSQL backed attempt repository
func NewAttemptRepository(db *database.DB, logger *zap.Logger) AttemptRepository {
	return &attemptRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new attempt
func (r *attemptRepository) Create(ctx context.Context, attempt *model.AttemptRecord) error {
	query := `
		INSERT INTO commissioning_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.RobotPart, attempt.DeviceName, attempt.DeviceKind,
		attempt.Status, attempt.Outcome, attempt.Detail, attempt.Result,
		attempt.StartedAt, attempt.CompletedAt, attempt.DurationMs,
	)
	if err != nil {
		r.logger.Error("Failed to create attempt", zap.Error(err))
		return fmt.Errorf("failed to create attempt: %w", err)
	}

	return nil
}

// Update stores the attempt's terminal state
func (r *attemptRepository) Update(ctx context.Context, attempt *model.AttemptRecord) error {
	query := `
		UPDATE commissioning_attempts SET
			status = $2, outcome = $3, detail = $4, result = $5,
			completed_at = $6, duration_ms = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.Status, attempt.Outcome, attempt.Detail,
		attempt.Result, attempt.CompletedAt, attempt.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAttemptNotFound, attempt.ID)
	}

	return nil
}

// GetByID retrieves an attempt by ID
func (r *attemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	query := `SELECT ` + attemptColumns + ` FROM commissioning_attempts WHERE id = $1`

	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAttemptNotFound, id)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	return attempt, nil
}

// List retrieves attempts, newest first, with filtering and pagination
func (r *attemptRepository) List(ctx context.Context, filter *AttemptFilter) ([]*model.AttemptRecord, int, error) {
	filter.Normalize()
	q := buildListQuery(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, q.count, q.countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, q.list, q.listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*model.AttemptRecord{}
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			r.logger.Error("Failed to scan attempt row", zap.Error(err))
			continue
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate attempts: %w", err)
	}

	return attempts, total, nil
}

// DeleteOlderThan removes completed attempts started before the cutoff
func (r *attemptRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM commissioning_attempts WHERE started_at < $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, olderThan, model.AttemptStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old attempts: %w", err)
	}

	return result.RowsAffected()
}

// listQuery is the COUNT and page query pair for one filter
type listQuery struct {
	count     string
	countArgs []interface{}
	list      string
	listArgs  []interface{}
}

// buildListQuery expects a normalized filter
func buildListQuery(filter *AttemptFilter) listQuery {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.RobotPart != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("robot_part = $%d", argIndex))
		args = append(args, *filter.RobotPart)
		argIndex++
	}

	if filter.DeviceKind != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("device_kind = $%d", argIndex))
		args = append(args, *filter.DeviceKind)
		argIndex++
	}

	if filter.Outcome != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("outcome = $%d", argIndex))
		args = append(args, *filter.Outcome)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	list := fmt.Sprintf(`
		SELECT %s FROM commissioning_attempts %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d
	`, attemptColumns, whereClause, argIndex, argIndex+1)
	offset := (filter.Page - 1) * filter.PerPage

	return listQuery{
		count:     fmt.Sprintf("SELECT COUNT(*) FROM commissioning_attempts %s", whereClause),
		countArgs: args,
		list:      list,
		listArgs:  append(append([]interface{}{}, args...), filter.PerPage, offset),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*model.AttemptRecord, error) {
	attempt := &model.AttemptRecord{}
	var outcome sql.NullString
	err := row.Scan(
		&attempt.ID, &attempt.RobotPart, &attempt.DeviceName, &attempt.DeviceKind,
		&attempt.Status, &outcome, &attempt.Detail, &attempt.Result,
		&attempt.StartedAt, &attempt.CompletedAt, &attempt.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	if outcome.Valid {
		kind := model.OutcomeKind(outcome.String)
		attempt.Outcome = &kind
	}
	return attempt, nil
}
