package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

const taskColumns = `id, user_id, title, description, category, status, points, ai_confidence,
	reviewed, date_epoch, reviewed_at_epoch, completed_at_epoch, created_at_epoch`

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t          models.Task
		dateMs     int64
		createdMs  int64
		reviewedAt sql.NullInt64
		completeAt sql.NullInt64
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category, &t.Status, &t.Points, &t.AIConfidence,
		&t.Reviewed, &dateMs, &reviewedAt, &completeAt, &createdMs,
	)
	if err != nil {
		return nil, err
	}
	t.Date = fromEpoch(dateMs)
	t.CreatedAt = fromEpoch(createdMs)
	t.ReviewedAt = fromNullEpoch(reviewedAt)
	t.CompletedAt = fromNullEpoch(completeAt)
	return &t, nil
}

// CreateTask stores a new task. An empty ID is filled in.
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = db.NewID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	_, err := s.execContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.Title, task.Description, string(task.Category), string(task.Status),
		task.Points, task.AIConfidence, task.Reviewed, toEpoch(task.Date),
		nullEpoch(task.ReviewedAt), nullEpoch(task.CompletedAt), toEpoch(task.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("task %s: %w", task.ID, db.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask returns a task owned by userID.
func (s *Store) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	row := s.queryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching filter ordered by date then creation.
func (s *Store) ListTasks(ctx context.Context, filter db.TaskFilter) ([]*models.Task, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.From.IsZero() {
		where = append(where, "date_epoch >= ?")
		args = append(args, toEpoch(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "date_epoch < ?")
		args = append(args, toEpoch(filter.To))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_epoch, created_at_epoch, id"

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask overwrites the mutable task fields.
func (s *Store) UpdateTask(ctx context.Context, task *models.Task) error {
	res, err := s.execContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, category = ?, status = ?, points = ?, ai_confidence = ?,
			reviewed = ?, date_epoch = ?, reviewed_at_epoch = ?, completed_at_epoch = ?
		WHERE id = ? AND user_id = ?`,
		task.Title, task.Description, string(task.Category), string(task.Status), task.Points, task.AIConfidence,
		task.Reviewed, toEpoch(task.Date), nullEpoch(task.ReviewedAt), nullEpoch(task.CompletedAt),
		task.ID, task.UserID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", task.ID, db.ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task owned by userID.
func (s *Store) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := s.execContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	return nil
}

// DeleteUserTasks removes every task of userID.
func (s *Store) DeleteUserTasks(ctx context.Context, userID string) (int64, error) {
	res, err := s.execContext(ctx, `DELETE FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user tasks: %w", err)
	}
	return res.RowsAffected()
}
