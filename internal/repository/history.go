package repository

import (
	"time"

	"inksync/internal/db"
	"inksync/internal/model"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Record(workspace string, action model.Action, status model.Status, detail string) error {
	history := model.SyncHistory{
		Workspace:  workspace,
		Action:     action,
		Status:     status,
		Detail:     detail,
		OccurredAt: time.Now(),
	}

	return db.DB.Create(&history).Error
}

type Stats struct {
	Total   int64
	Success int64
	Failed  int64
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.SyncHistory{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.SyncHistory{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.SyncHistory{}).
		Where("status = ?", model.StatusFailed).
		Count(&stats.Failed).Error; err != nil {
		return stats, err
	}

	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.SyncHistory, error) {
	var histories []model.SyncHistory
	result := db.DB.
		Order("occurred_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed() ([]model.SyncHistory, error) {
	var histories []model.SyncHistory
	result := db.DB.
		Where("status = ?", model.StatusFailed).
		Order("occurred_at desc").
		Find(&histories)

	return histories, result.Error
}
