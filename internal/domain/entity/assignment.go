package entity

import "time"

// Assignment is a single approver's (or role slot's) task within a stage.
// An assignment closes exactly once: the first terminal action wins and any
// later action is rejected, never merged.
type Assignment struct {
	ID              int64      `json:"id"`
	InstanceID      int64      `json:"instance_id"`
	StageInstanceID int64      `json:"stage_instance_id"`
	UserID          string     `json:"user_id"`
	Role            string     `json:"role,omitempty"`
	Type            string     `json:"type"` // REQUIRED, OPTIONAL, OBSERVER
	GroupName       string     `json:"group_name,omitempty"`
	Weight          float64    `json:"weight"`
	Status          string     `json:"status"` // OPEN, CLOSED
	Outcome         string     `json:"outcome,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	DelegatedFrom   int64      `json:"delegated_from,omitempty"` // id of the assignment this one replaced
	SignatureRef    string     `json:"signature_ref,omitempty"`
	ActedBy         string     `json:"acted_by,omitempty"`
	ActedAt         *time.Time `json:"acted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsOpen returns true while the assignment can still accept an action.
func (a *Assignment) IsOpen() bool {
	return a.Status == AssignmentOpen
}

// CoordinationGroup is the persisted record of a parallel group within a
// stage: a named partition of assignments with its own quorum. Counters are
// recomputed from the assignment set on every evaluation pass and stored for
// reporting.
type CoordinationGroup struct {
	ID              int64     `json:"id"`
	StageInstanceID int64     `json:"stage_instance_id"`
	Name            string    `json:"name"`
	CompletionType  string    `json:"completion_type"`
	ThresholdValue  int       `json:"threshold_value,omitempty"`
	TotalCount      int       `json:"total_count"`
	CompletedCount  int       `json:"completed_count"`
	ApprovedCount   int       `json:"approved_count"`
	RejectedCount   int       `json:"rejected_count"`
	Status          string    `json:"status"`  // PENDING, COMPLETED
	Decision        string    `json:"decision"` // PENDING, APPROVED, REJECTED
	CreatedAt       time.Time `json:"created_at"`
}

// Delegation is a standing redirect consulted at assignment-creation time.
// It never rewrites assignments that already exist.
type Delegation struct {
	ID           int64      `json:"id"`
	DelegatorID  string     `json:"delegator_id"`
	DelegateeID  string     `json:"delegatee_id"`
	WorkflowType string     `json:"workflow_type,omitempty"` // empty = all types
	Reason       string     `json:"reason,omitempty"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AppliesTo reports whether the redirect covers the given workflow type at
// the given moment.
func (d *Delegation) AppliesTo(workflowType string, now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.WorkflowType != "" && d.WorkflowType != workflowType {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return false
	}
	return true
}
