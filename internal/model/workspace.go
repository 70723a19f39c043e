package model

import "gorm.io/gorm"

type WorkspaceStatus string

const (
	WorkspaceActive  WorkspaceStatus = "ACTIVE"
	WorkspacePaused  WorkspaceStatus = "PAUSED"
	WorkspaceStopped WorkspaceStatus = "STOPPED"
)

// Workspace is a registered document workspace. The daemon runs one engine
// per ACTIVE row; a PAUSED workspace keeps saving locally but skips
// periodic snapshots.
type Workspace struct {
	gorm.Model
	Path   string          `gorm:"not null;uniqueIndex"`
	Remote string          `gorm:"not null"`
	Branch string          `gorm:"not null"`
	Status WorkspaceStatus `gorm:"not null;default:'ACTIVE'"`
}
