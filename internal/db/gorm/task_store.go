package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/dailyscore/internal/db"
	"github.com/thebtf/dailyscore/pkg/models"
)

// CreateTask stores a new task. An empty ID is filled in.
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = db.NewID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	err := s.DB.WithContext(ctx).Create(taskFromModel(task)).Error
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
	var row Task
	err := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return row.toModel(), nil
}

// ListTasks returns tasks matching filter ordered by date then creation.
func (s *Store) ListTasks(ctx context.Context, filter db.TaskFilter) ([]*models.Task, error) {
	q := s.DB.WithContext(ctx).Model(&Task{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		q = q.Where("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("date < ?", filter.To)
	}

	var rows []Task
	if err := q.Order("date, created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]*models.Task, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, rows[i].toModel())
	}
	return tasks, nil
}

// UpdateTask overwrites the mutable task fields.
func (s *Store) UpdateTask(ctx context.Context, task *models.Task) error {
	row := taskFromModel(task)
	res := s.DB.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Select("title", "description", "category", "status", "points", "ai_confidence",
			"reviewed", "date", "reviewed_at", "completed_at").
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", task.ID, db.ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task owned by userID.
func (s *Store) DeleteTask(ctx context.Context, userID, taskID string) error {
	res := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", taskID, userID).Delete(&Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	return nil
}

// DeleteUserTasks removes every task of userID.
func (s *Store) DeleteUserTasks(ctx context.Context, userID string) (int64, error) {
	res := s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete user tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
