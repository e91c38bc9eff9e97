package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDefinition is the sentinel wrapped around every structural
// validation failure of a definition draft.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// WorkflowDefinition is an immutable, versioned sign-off template. Stages and
// rules are stored as JSON columns and decoded once at load; the decoded value
// is shared read-only across all concurrent instances.
type WorkflowDefinition struct {
	ID           int64       `json:"id"`
	WorkflowType string      `json:"workflow_type"`
	Version      int         `json:"version"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Stages       []StageSpec `json:"stages"`
	Rules        []RuleSpec  `json:"rules"`
	Active       bool        `json:"active"`
	CreatedBy    string      `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
}

// StageSpec describes one sequential gate of a definition.
type StageSpec struct {
	StageNumber      int         `json:"stage_number"`
	Name             string      `json:"name"`
	ApprovalType     string      `json:"approval_type"`
	MinimumApprovals int         `json:"minimum_approvals,omitempty"` // THRESHOLD
	PercentThreshold float64     `json:"percent_threshold,omitempty"` // PERCENTAGE, 0..1
	MinimumWeight    float64     `json:"minimum_weight,omitempty"`    // WEIGHTED
	RequiredRoles    []string    `json:"required_roles,omitempty"`
	OptionalRoles    []string    `json:"optional_roles,omitempty"`
	ObserverRoles    []string    `json:"observer_roles,omitempty"`
	NamedApprovers   []string    `json:"named_approvers,omitempty"`
	Strategy         string      `json:"strategy"`
	DeadlineHours    int         `json:"deadline_hours,omitempty"`
	EscalationAction string      `json:"escalation_action,omitempty"`
	EscalationTarget string      `json:"escalation_target,omitempty"`
	AllowDelegation  bool        `json:"allow_delegation"`
	SignatureType    string      `json:"signature_type,omitempty"`
	Groups           []GroupSpec `json:"groups,omitempty"`
}

// GroupSpec partitions a stage's assignments into a named subset with its own
// quorum. When a stage declares groups, every approver must belong to exactly
// one group.
type GroupSpec struct {
	Name           string   `json:"name"`
	CompletionType string   `json:"completion_type"`
	ThresholdValue int      `json:"threshold_value,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	Approvers      []string `json:"approvers,omitempty"`
}

// RuleSpec is a condition/action pair evaluated on every stage transition.
// The condition is a (field, operator, value) triple over instance context
// plus derived facts; it is compiled and validated at publish time.
type RuleSpec struct {
	Name          string  `json:"name"`
	Field         string  `json:"field"`
	Operator      string  `json:"operator"`
	Value         any     `json:"value"`
	Action        string  `json:"action"`
	Priority      int     `json:"priority"`
	TargetStage   int     `json:"target_stage,omitempty"`   // SKIP_STAGE, CHANGE_APPROVERS, SET_DEADLINE, REQUIRE_SIGNATURE
	InjectedStage *StageSpec `json:"injected_stage,omitempty"` // INJECT_STAGE
	Approvers     []string `json:"approvers,omitempty"`      // CHANGE_APPROVERS
	DeadlineHours int     `json:"deadline_hours,omitempty"` // SET_DEADLINE
	SignatureType string  `json:"signature_type,omitempty"` // REQUIRE_SIGNATURE
	NotifyUser    string  `json:"notify_user,omitempty"`    // NOTIFY
	NotifyEvent   string  `json:"notify_event,omitempty"`   // NOTIFY
}

// Validate checks the structural invariants of a definition draft. Rule
// condition syntax is validated separately by the rule engine at publish time.
func (d *WorkflowDefinition) Validate() error {
	if d.WorkflowType == "" {
		return fmt.Errorf("workflow type is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("definition requires at least one stage")
	}

	seen := make(map[int]bool, len(d.Stages))
	for i, stage := range d.Stages {
		if stage.StageNumber != i+1 {
			return fmt.Errorf("stage numbers must be contiguous starting at 1, got %d at position %d", stage.StageNumber, i)
		}
		if seen[stage.StageNumber] {
			return fmt.Errorf("duplicate stage number %d", stage.StageNumber)
		}
		seen[stage.StageNumber] = true

		if err := stage.Validate(); err != nil {
			return fmt.Errorf("stage %d: %w", stage.StageNumber, err)
		}
	}

	return nil
}

// Validate checks a single stage spec.
func (s *StageSpec) Validate() error {
	switch s.ApprovalType {
	case ApprovalAllRequired, ApprovalAnyOne:
	case ApprovalThreshold:
		if s.MinimumApprovals < 1 {
			return fmt.Errorf("threshold stage requires minimum_approvals >= 1")
		}
	case ApprovalPercentage:
		if s.PercentThreshold <= 0 || s.PercentThreshold > 1 {
			return fmt.Errorf("percentage stage requires percent_threshold in (0, 1]")
		}
	case ApprovalWeighted:
		if s.MinimumWeight <= 0 {
			return fmt.Errorf("weighted stage requires minimum_weight > 0")
		}
	default:
		return fmt.Errorf("unknown approval type %q", s.ApprovalType)
	}

	switch s.Strategy {
	case StrategyManual:
		if len(s.NamedApprovers) == 0 && len(s.Groups) == 0 {
			return fmt.Errorf("manual stage requires named approvers")
		}
	case StrategyRoleBased, StrategyLoadBalanced, StrategyRoundRobin:
		if len(s.RequiredRoles) == 0 && len(s.Groups) == 0 {
			return fmt.Errorf("%s stage requires required roles", s.Strategy)
		}
	case "":
		return fmt.Errorf("assignment strategy is required")
	default:
		return fmt.Errorf("unknown assignment strategy %q", s.Strategy)
	}

	if s.EscalationAction != "" {
		if s.EscalationAction != EscalateAutoDelegate && s.EscalationAction != EscalateNotifySupervisor {
			return fmt.Errorf("unknown escalation action %q", s.EscalationAction)
		}
		if s.EscalationAction == EscalateAutoDelegate && s.EscalationTarget == "" {
			return fmt.Errorf("auto-delegate escalation requires a target")
		}
	}

	groupNames := make(map[string]bool, len(s.Groups))
	for _, g := range s.Groups {
		if g.Name == "" {
			return fmt.Errorf("group name is required")
		}
		if groupNames[g.Name] {
			return fmt.Errorf("duplicate group name %q", g.Name)
		}
		groupNames[g.Name] = true

		switch g.CompletionType {
		case GroupAll, GroupAny:
		case GroupThreshold:
			if g.ThresholdValue < 1 {
				return fmt.Errorf("group %q: threshold completion requires threshold_value >= 1", g.Name)
			}
		default:
			return fmt.Errorf("group %q: unknown completion type %q", g.Name, g.CompletionType)
		}
		if len(g.Roles) == 0 && len(g.Approvers) == 0 {
			return fmt.Errorf("group %q: requires roles or approvers", g.Name)
		}
	}

	return nil
}
