package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceStarted   Type = "instance.started"
	TypeInstanceCompleted Type = "instance.completed"
	TypeInstanceRejected  Type = "instance.rejected"
	TypeInstanceCancelled Type = "instance.cancelled"
	TypeInstanceHeld      Type = "instance.held"
	TypeInstanceResumed   Type = "instance.resumed"
	TypeStageStarted      Type = "stage.started"
	TypeStageCompleted    Type = "stage.completed"
	TypeStageSkipped      Type = "stage.skipped"
	TypeStageEscalated    Type = "stage.escalated"
	TypeAssignmentCreated Type = "assignment.created"
	TypeAssignmentActed   Type = "assignment.acted"
	TypeNotifyRequested   Type = "notification.requested"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceStarted,
		TypeInstanceCompleted,
		TypeInstanceRejected,
		TypeInstanceCancelled,
		TypeInstanceHeld,
		TypeInstanceResumed,
		TypeStageStarted,
		TypeStageCompleted,
		TypeStageSkipped,
		TypeStageEscalated,
		TypeAssignmentCreated,
		TypeAssignmentActed,
		TypeNotifyRequested:
		return true
	default:
		return false
	}
}
