package model

import (
	"time"

	"gorm.io/gorm"
)

type Action string

const (
	ActionSave    Action = "SAVE"
	ActionCommit  Action = "COMMIT"
	ActionSync    Action = "SYNC"
	ActionPush    Action = "PUSH"
	ActionRetry   Action = "RETRY"
	ActionResolve Action = "RESOLVE"
)

type SyncHistory struct {
	gorm.Model
	Workspace  string    `gorm:"not null"`
	Action     Action    `gorm:"not null"`
	Status     Status    `gorm:"not null"`
	Detail     string
	OccurredAt time.Time `gorm:"not null"`
}
