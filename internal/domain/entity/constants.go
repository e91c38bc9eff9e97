package entity

// Status constants for WorkflowInstance
const (
	InstanceNotStarted = "NOT_STARTED"
	InstanceInProgress = "IN_PROGRESS"
	InstanceOnHold     = "ON_HOLD"
	InstanceCompleted  = "COMPLETED"
	InstanceRejected   = "REJECTED"
	InstanceCancelled  = "CANCELLED"
)

// Status constants for StageInstance
const (
	StagePending          = "PENDING"
	StageInProgress       = "IN_PROGRESS"
	StageWaitingSignature = "WAITING_SIGNATURE"
	StageCompleted        = "COMPLETED"
	StageSkipped          = "SKIPPED"
	StageEscalated        = "ESCALATED"
)

// Outcome constants for a closed StageInstance or Assignment
const (
	OutcomeApproved         = "APPROVED"
	OutcomeRejected         = "REJECTED"
	OutcomeChangesRequested = "CHANGES_REQUESTED"
	OutcomeDelegated        = "DELEGATED"
	OutcomeSkipped          = "SKIPPED"
)

// Approval type constants for a stage's quorum rule
const (
	ApprovalAllRequired = "ALL_REQUIRED"
	ApprovalAnyOne      = "ANY_ONE"
	ApprovalThreshold   = "THRESHOLD"
	ApprovalPercentage  = "PERCENTAGE"
	ApprovalWeighted    = "WEIGHTED"
)

// Assignment type constants
const (
	AssignmentRequired = "REQUIRED"
	AssignmentOptional = "OPTIONAL"
	AssignmentObserver = "OBSERVER"
)

// Assignment status constants
const (
	AssignmentOpen   = "OPEN"
	AssignmentClosed = "CLOSED"
)

// Assignment strategy constants
const (
	StrategyManual       = "MANUAL"
	StrategyRoleBased    = "ROLE_BASED"
	StrategyLoadBalanced = "LOAD_BALANCED"
	StrategyRoundRobin   = "ROUND_ROBIN"
)

// Group completion type constants
const (
	GroupAll       = "ALL"
	GroupAny       = "ANY"
	GroupThreshold = "THRESHOLD"
)

// Rule action constants
const (
	RuleInjectStage      = "INJECT_STAGE"
	RuleSkipStage        = "SKIP_STAGE"
	RuleChangeApprovers  = "CHANGE_APPROVERS"
	RuleSetDeadline      = "SET_DEADLINE"
	RuleRequireSignature = "REQUIRE_SIGNATURE"
	RuleNotify           = "NOTIFY"
)

// Escalation action constants for an overdue stage
const (
	EscalateAutoDelegate     = "AUTO_DELEGATE"
	EscalateNotifySupervisor = "NOTIFY_SUPERVISOR"
)

// History event type constants
const (
	HistoryAssignmentActed     = "ASSIGNMENT_ACTED"
	HistoryAssignmentDelegated = "ASSIGNMENT_DELEGATED"
	HistoryStageCompleted      = "STAGE_COMPLETED"
	HistoryStageSkipped        = "STAGE_SKIPPED"
	HistoryStageEscalated      = "STAGE_ESCALATED"
	HistorySignatureCaptured   = "SIGNATURE_CAPTURED"
	HistoryDeadlineExtended    = "DEADLINE_EXTENDED"
	HistoryInstanceCompleted   = "INSTANCE_COMPLETED"
	HistoryInstanceRejected    = "INSTANCE_REJECTED"
	HistoryInstanceCancelled   = "INSTANCE_CANCELLED"
	HistoryInstanceHeld        = "INSTANCE_HELD"
	HistoryInstanceResumed     = "INSTANCE_RESUMED"
)

// IsTerminalInstanceStatus returns true if no further transitions are allowed
// from the given instance status.
func IsTerminalInstanceStatus(status string) bool {
	switch status {
	case InstanceCompleted, InstanceRejected, InstanceCancelled:
		return true
	default:
		return false
	}
}

// IsClosedStageStatus returns true if the stage can no longer accept approver actions.
func IsClosedStageStatus(status string) bool {
	switch status {
	case StageCompleted, StageSkipped:
		return true
	default:
		return false
	}
}
