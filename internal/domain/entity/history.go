package entity

import "time"

// HistoryEvent is one immutable record in an instance's audit trail. Seq is a
// per-instance monotonically increasing sequence assigned in the same
// transaction as the mutation it records, so replaying the log in seq order
// reproduces the instance's exact transition history.
type HistoryEvent struct {
	ID             int64     `json:"id"`
	InstanceID     int64     `json:"instance_id"`
	Seq            int64     `json:"seq"`
	EventType      string    `json:"event_type"`
	StageNumber    int       `json:"stage_number,omitempty"` // execution order, 0 for instance-level events
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	Actor          string    `json:"actor,omitempty"` // user id, or "system" for automated transitions
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// SystemActor marks transitions injected by the orchestrator itself
// (escalation sweeps, rule effects) so that automated and manual events share
// one audit pipeline.
const SystemActor = "system"
