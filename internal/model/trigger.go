package model

// CommitTrigger names the lifecycle signal that requested a snapshot.
type CommitTrigger string

const (
	TriggerPeriodic     CommitTrigger = "PERIODIC"
	TriggerBackgrounded CommitTrigger = "BACKGROUNDED"
	TriggerForegrounded CommitTrigger = "FOREGROUNDED"
	TriggerShutdown     CommitTrigger = "SHUTDOWN"
)

func (t CommitTrigger) Valid() bool {
	switch t {
	case TriggerPeriodic, TriggerBackgrounded, TriggerForegrounded, TriggerShutdown:
		return true
	default:
		return false
	}
}
