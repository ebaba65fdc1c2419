// Package postgres implements the descriptor store on a gen_tasks table.
// Status lives in an indexed column and role transitions are guarded
// updates, so a terminal record can never be rewritten by a late poller.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fablereel/fablereel/internal/platform/logger"
	"github.com/fablereel/fablereel/internal/store"
	"github.com/fablereel/fablereel/internal/task"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// TaskStore implements task.Store using PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{db: db}
}

// Save inserts a brand-new record. The primary key turns a duplicate task
// ID into task.ErrDuplicateTaskID.
func (s *TaskStore) Save(ctx context.Context, d *task.Descriptor) error {
	log := logger.FromContext(ctx)

	if err := d.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO gen_tasks (
			task_id, unit, kind, output_path, filename,
			prompt, negative_prompt, image_ref, duration_seconds,
			status, submit_time, completed_time, failed_time,
			error_message, attempt_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.TaskID,
		d.Unit,
		string(d.Kind),
		d.OutputPath,
		d.Filename,
		d.Inputs.Prompt,
		d.Inputs.NegativePrompt,
		d.Inputs.ImageRef,
		d.Inputs.DurationSeconds,
		string(d.Status),
		d.SubmitTime,
		d.CompletedTime,
		d.FailedTime,
		d.ErrorMessage,
		d.AttemptCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", task.ErrDuplicateTaskID, d.TaskID)
		}
		log.Error("failed to save task record",
			"task_id", d.TaskID,
			"unit", d.Unit,
			"error", err)
		return fmt.Errorf("failed to save task record: %w", err)
	}

	return nil
}

// Update rewrites a non-terminal record. The status guard keeps a late
// writer from resurrecting a record another pass already finalized.
func (s *TaskStore) Update(ctx context.Context, d *task.Descriptor) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE gen_tasks
		SET status = $1, completed_time = $2, failed_time = $3,
		    error_message = $4, attempt_count = $5
		WHERE task_id = $6
		  AND status NOT IN ('completed', 'failed')
	`

	result, err := s.db.ExecContext(ctx, query,
		string(d.Status),
		d.CompletedTime,
		d.FailedTime,
		d.ErrorMessage,
		d.AttemptCount,
		d.TaskID,
	)
	if err != nil {
		log.Error("failed to update task record",
			"task_id", d.TaskID,
			"status", d.Status,
			"error", err)
		return fmt.Errorf("failed to update task record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, d.TaskID)
	}

	return nil
}

// Get returns the record for taskID.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*task.Descriptor, error) {
	query := selectColumns + ` WHERE task_id = $1`
	row := s.db.QueryRowContext(ctx, query, taskID)
	d, err := scanDescriptor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task record: %w", err)
	}
	return d, nil
}

// ListPending returns the unit's non-terminal records ordered by submission
// time.
func (s *TaskStore) ListPending(ctx context.Context, unit string) ([]*task.Descriptor, error) {
	query := selectColumns + `
		WHERE unit = $1 AND status IN ('submitted', 'processing')
		ORDER BY submit_time ASC, task_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, unit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*task.Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task records: %w", err)
	}
	return out, nil
}

// Archive writes the record's terminal fields. The status guard makes a
// repeat archive of an already-terminal record a no-op.
func (s *TaskStore) Archive(ctx context.Context, d *task.Descriptor) error {
	log := logger.FromContext(ctx)

	if !d.Terminal() {
		return fmt.Errorf("%w: %s is %s", task.ErrNotTerminal, d.TaskID, d.Status)
	}

	query := `
		UPDATE gen_tasks
		SET status = $1, completed_time = $2, failed_time = $3, error_message = $4
		WHERE task_id = $5
		  AND status NOT IN ('completed', 'failed')
	`

	result, err := s.db.ExecContext(ctx, query,
		string(d.Status),
		d.CompletedTime,
		d.FailedTime,
		d.ErrorMessage,
		d.TaskID,
	)
	if err != nil {
		log.Error("failed to archive task record",
			"task_id", d.TaskID,
			"status", d.Status,
			"error", err)
		return fmt.Errorf("failed to archive task record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either already terminal (idempotent archive) or missing entirely.
		existing, err := s.Get(ctx, d.TaskID)
		if err != nil {
			return err
		}
		if !existing.Terminal() {
			return fmt.Errorf("failed to archive task record %s", d.TaskID)
		}
		return nil
	}

	return nil
}

// Units lists the distinct units present in the table.
func (s *TaskStore) Units(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT unit FROM gen_tasks ORDER BY unit ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var units []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

const selectColumns = `
	SELECT task_id, unit, kind, output_path, filename,
	       prompt, negative_prompt, image_ref, duration_seconds,
	       status, submit_time, completed_time, failed_time,
	       error_message, attempt_count
	FROM gen_tasks
`

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row scanner) (*task.Descriptor, error) {
	var (
		d             task.Descriptor
		kind, status  string
		completedTime sql.NullTime
		failedTime    sql.NullTime
		errorMessage  sql.NullString
	)
	err := row.Scan(
		&d.TaskID,
		&d.Unit,
		&kind,
		&d.OutputPath,
		&d.Filename,
		&d.Inputs.Prompt,
		&d.Inputs.NegativePrompt,
		&d.Inputs.ImageRef,
		&d.Inputs.DurationSeconds,
		&status,
		&d.SubmitTime,
		&completedTime,
		&failedTime,
		&errorMessage,
		&d.AttemptCount,
	)
	if err != nil {
		return nil, err
	}
	d.Kind = task.Kind(kind)
	d.Status = task.Status(status)
	d.SubmitTime = d.SubmitTime.UTC()
	if completedTime.Valid {
		t := completedTime.Time.UTC()
		d.CompletedTime = &t
	}
	if failedTime.Valid {
		t := failedTime.Time.UTC()
		d.FailedTime = &t
	}
	if errorMessage.Valid {
		d.ErrorMessage = errorMessage.String
	}
	return &d, nil
}
