package repository

import (
	"inksync/internal/db"
	"inksync/internal/model"
)

type WorkspaceRepository struct{}

func NewWorkspaceRepository() *WorkspaceRepository {
	return &WorkspaceRepository{}
}

func (r *WorkspaceRepository) Add(path, remote, branch string) (model.Workspace, error) {
	ws := model.Workspace{
		Path:   path,
		Remote: remote,
		Branch: branch,
		Status: model.WorkspaceActive,
	}

	err := db.DB.Create(&ws).Error
	return ws, err
}

func (r *WorkspaceRepository) GetAll() ([]model.Workspace, error) {
	var workspaces []model.Workspace
	return workspaces, db.DB.Find(&workspaces).Error
}

func (r *WorkspaceRepository) GetByID(id uint) (model.Workspace, error) {
	var ws model.Workspace
	return ws, db.DB.First(&ws, id).Error
}

func (r *WorkspaceRepository) GetByPath(path string) (model.Workspace, error) {
	var ws model.Workspace
	return ws, db.DB.Where("path = ?", path).First(&ws).Error
}

func (r *WorkspaceRepository) UpdateStatus(id uint, status model.WorkspaceStatus) error {
	return db.DB.Model(&model.Workspace{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *WorkspaceRepository) Delete(id uint) error {
	return db.DB.Delete(&model.Workspace{}, id).Error
}
