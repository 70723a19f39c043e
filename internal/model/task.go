package model

import (
	"time"

	"gorm.io/gorm"
)

// PushTask is a durable retry entry for a push that could not reach the
// remote. At most one row exists per (workspace, remote, branch); rows are
// hard-deleted so the unique index never collides with tombstones.
type PushTask struct {
	gorm.Model
	Workspace   string `gorm:"not null;uniqueIndex:idx_push_target"`
	Remote      string `gorm:"not null;uniqueIndex:idx_push_target"`
	Branch      string `gorm:"not null;uniqueIndex:idx_push_target"`
	Credential  string
	EnqueuedAt  time.Time `gorm:"not null"`
	Attempts    int       `gorm:"not null;default:0"`
	NextAttempt time.Time
	LastError   string
}
