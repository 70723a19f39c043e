package model

import "time"

type EventType string

const (
	EventCreate EventType = "CREATE"
	EventWrite  EventType = "WRITE"
	EventRemove EventType = "REMOVE"
	EventRename EventType = "RENAME"
)

// FileEvent is an out-of-band workspace change observed on disk, as
// opposed to an edit arriving through the API.
type FileEvent struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}
