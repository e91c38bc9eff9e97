package entity

import "time"

// EntityRef is a polymorphic reference to the business object a workflow
// governs (ECO, NCR, CAPA, document, FAIR, change request, ...). The
// orchestrator never dereferences the entity itself; the tag and id are passed
// through to the external metadata-lookup collaborator.
type EntityRef struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
}

func (r EntityRef) String() string {
	return r.Type + ":" + r.ID
}

// WorkflowInstance is one live execution of a definition. At most one active
// instance may exist per entity reference. The revision column is the
// optimistic-concurrency guard: every mutating call commits with a
// compare-and-swap on it.
type WorkflowInstance struct {
	ID           int64          `json:"id"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	DefinitionID int64          `json:"definition_id"`
	WorkflowType string         `json:"workflow_type"`
	CurrentStage int            `json:"current_stage"` // execution order of the active stage
	Status       string         `json:"status"`
	Revision     int64          `json:"revision"`
	Priority     string         `json:"priority,omitempty"`
	ImpactLevel  string         `json:"impact_level,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	StartedBy    string         `json:"started_by"`
	StartedAt    time.Time      `json:"started_at"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Ref returns the instance's entity reference.
func (i *WorkflowInstance) Ref() EntityRef {
	return EntityRef{Type: i.EntityType, ID: i.EntityID}
}

// IsTerminal returns true once the instance reached a final status.
func (i *WorkflowInstance) IsTerminal() bool {
	return IsTerminalInstanceStatus(i.Status)
}

// StageInstance is one stage actually executed for an instance. ExecutionOrder
// is a per-instance monotonically increasing counter independent of the
// definition's static stage numbers, so rule-injected stages slot in without
// mutating the definition.
type StageInstance struct {
	ID              int64      `json:"id"`
	InstanceID      int64      `json:"instance_id"`
	ExecutionOrder  int        `json:"execution_order"`
	DefinitionStage int        `json:"definition_stage"` // 0 for rule-injected stages
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	Outcome         string     `json:"outcome,omitempty"`

	// Approval configuration snapshotted from the stage spec (plus any rule
	// mutations applied before the stage started).
	ApprovalType     string   `json:"approval_type"`
	MinimumApprovals int      `json:"minimum_approvals,omitempty"`
	PercentThreshold float64  `json:"percent_threshold,omitempty"`
	MinimumWeight    float64  `json:"minimum_weight,omitempty"`
	RequiredRoles    []string `json:"required_roles,omitempty"`
	OptionalRoles    []string `json:"optional_roles,omitempty"`
	ObserverRoles    []string `json:"observer_roles,omitempty"`
	NamedApprovers   []string `json:"named_approvers,omitempty"`
	Strategy         string   `json:"strategy"`
	DeadlineHours    int      `json:"deadline_hours,omitempty"`
	AllowDelegation  bool     `json:"allow_delegation"`
	EscalationAction string   `json:"escalation_action,omitempty"`
	EscalationTarget string   `json:"escalation_target,omitempty"`
	Groups           []GroupSpec `json:"groups,omitempty"`

	SignatureType string `json:"signature_type,omitempty"`
	SignatureRef  string `json:"signature_ref,omitempty"`

	// AppliedRules prevents a rule from firing twice on the same stage
	// transition.
	AppliedRules []string `json:"applied_rules,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsClosed returns true once the stage holds a final status.
func (s *StageInstance) IsClosed() bool {
	return IsClosedStageStatus(s.Status)
}

// Overdue reports whether the stage is running past its deadline and has not
// yet been escalated for the current deadline configuration.
func (s *StageInstance) Overdue(now time.Time) bool {
	if s.Status != StageInProgress || s.Deadline == nil {
		return false
	}
	return s.EscalatedAt == nil && now.After(*s.Deadline)
}

// RuleApplied reports whether the named rule already fired on this stage.
func (s *StageInstance) RuleApplied(name string) bool {
	for _, applied := range s.AppliedRules {
		if applied == name {
			return true
		}
	}
	return false
}
