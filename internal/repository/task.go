package repository

import (
	"time"

	"gorm.io/gorm/clause"

	"inksync/internal/db"
	"inksync/internal/model"
)

// TaskRepository persists the push retry queue. One row per
// (workspace, remote, branch); re-enqueueing refreshes the row instead of
// duplicating it, and the queue never grows past capacity.
type TaskRepository struct {
	capacity int
}

func NewTaskRepository(capacity int) *TaskRepository {
	return &TaskRepository{capacity: capacity}
}

func (r *TaskRepository) Enqueue(task model.PushTask) error {
	err := db.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "workspace"}, {Name: "remote"}, {Name: "branch"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"credential", "enqueued_at", "attempts", "next_attempt", "last_error", "updated_at",
		}),
	}).Create(&task).Error
	if err != nil {
		return err
	}

	return r.trim()
}

// trim evicts oldest-first once the queue exceeds capacity.
func (r *TaskRepository) trim() error {
	if r.capacity <= 0 {
		return nil
	}

	var count int64
	if err := db.DB.Model(&model.PushTask{}).Count(&count).Error; err != nil {
		return err
	}

	excess := int(count) - r.capacity
	if excess <= 0 {
		return nil
	}

	var victims []model.PushTask
	if err := db.DB.Order("enqueued_at asc").Limit(excess).Find(&victims).Error; err != nil {
		return err
	}

	return db.DB.Unscoped().Delete(&victims).Error
}

// Pending returns the queue in enqueue order.
func (r *TaskRepository) Pending() ([]model.PushTask, error) {
	var tasks []model.PushTask
	return tasks, db.DB.Order("enqueued_at asc").Find(&tasks).Error
}

func (r *TaskRepository) Delete(id uint) error {
	return db.DB.Unscoped().Delete(&model.PushTask{}, id).Error
}

func (r *TaskRepository) MarkFailed(id uint, attempts int, next time.Time, msg string) error {
	return db.DB.Model(&model.PushTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":     attempts,
			"next_attempt": next,
			"last_error":   msg,
		}).Error
}

func (r *TaskRepository) Count() (int64, error) {
	var count int64
	return count, db.DB.Model(&model.PushTask{}).Count(&count).Error
}

func (r *TaskRepository) CountForWorkspace(path string) (int64, error) {
	var count int64
	return count, db.DB.Model(&model.PushTask{}).
		Where("workspace = ?", path).
		Count(&count).Error
}
