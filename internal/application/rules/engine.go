// Package rules implements the conditional rule engine that reshapes
// in-flight workflows. Conditions are compiled once at definition-publish
// time; evaluation at transition time is pure parameter substitution over the
// instance context plus derived facts.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	domainwf "github.com/steiner385/MachShop-sub008/internal/domain/workflow"
)

// Derived fact keys available to rule conditions alongside the instance
// context map.
const (
	FactStageOutcome = "stage_outcome"
	FactStageNumber  = "stage_number"
	FactElapsedHours = "elapsed_hours"
	FactImpactLevel  = "impact_level"
	FactPriority     = "priority"
)

var allowedOperators = map[string]bool{
	"==": true,
	"!=": true,
	">":  true,
	">=": true,
	"<":  true,
	"<=": true,
}

var knownActions = map[string]bool{
	entity.RuleInjectStage:      true,
	entity.RuleSkipStage:        true,
	entity.RuleChangeApprovers:  true,
	entity.RuleSetDeadline:      true,
	entity.RuleRequireSignature: true,
	entity.RuleNotify:           true,
}

// CompiledRule pairs a rule spec with its parsed condition expression and its
// position in the definition, which breaks priority ties deterministically.
type CompiledRule struct {
	Spec  entity.RuleSpec
	expr  *govaluate.EvaluableExpression
	order int
}

// Name returns the rule's name.
func (r *CompiledRule) Name() string {
	return r.Spec.Name
}

// Compile validates and compiles a definition's rules. Any malformed
// condition or unknown action is an ErrInvalidRuleCondition: definitions with
// bad rules are rejected at publish time and never reach evaluation.
func Compile(specs []entity.RuleSpec) ([]CompiledRule, error) {
	compiled := make([]CompiledRule, 0, len(specs))
	names := make(map[string]bool, len(specs))

	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: rule %d has no name", domainwf.ErrInvalidRuleCondition, i)
		}
		if names[spec.Name] {
			return nil, fmt.Errorf("%w: duplicate rule name %q", domainwf.ErrInvalidRuleCondition, spec.Name)
		}
		names[spec.Name] = true

		if spec.Field == "" {
			return nil, fmt.Errorf("%w: rule %q has no condition field", domainwf.ErrInvalidRuleCondition, spec.Name)
		}
		if !allowedOperators[spec.Operator] {
			return nil, fmt.Errorf("%w: rule %q uses unsupported operator %q", domainwf.ErrInvalidRuleCondition, spec.Name, spec.Operator)
		}
		if !knownActions[spec.Action] {
			return nil, fmt.Errorf("%w: rule %q uses unknown action %q", domainwf.ErrInvalidRuleCondition, spec.Name, spec.Action)
		}
		if err := validateActionParams(spec); err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", domainwf.ErrInvalidRuleCondition, spec.Name, err)
		}

		expr, err := govaluate.NewEvaluableExpression(conditionExpression(spec))
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", domainwf.ErrInvalidRuleCondition, spec.Name, err)
		}

		compiled = append(compiled, CompiledRule{Spec: spec, expr: expr, order: i})
	}

	return compiled, nil
}

// conditionExpression renders the (field, operator, value) triple as a
// govaluate expression. Bracketing the field name permits dotted context keys.
func conditionExpression(spec entity.RuleSpec) string {
	return fmt.Sprintf("[%s] %s %s", spec.Field, spec.Operator, literal(spec.Value))
}

func literal(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "\\'") + "'"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case nil:
		return "''"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func validateActionParams(spec entity.RuleSpec) error {
	switch spec.Action {
	case entity.RuleInjectStage:
		if spec.InjectedStage == nil {
			return fmt.Errorf("inject action requires an injected stage spec")
		}
		if err := spec.InjectedStage.Validate(); err != nil {
			return fmt.Errorf("injected stage: %v", err)
		}
	case entity.RuleSkipStage, entity.RuleSetDeadline, entity.RuleChangeApprovers, entity.RuleRequireSignature:
		if spec.TargetStage < 1 {
			return fmt.Errorf("%s action requires a target stage", spec.Action)
		}
		if spec.Action == entity.RuleSetDeadline && spec.DeadlineHours < 1 {
			return fmt.Errorf("set-deadline action requires deadline hours")
		}
		if spec.Action == entity.RuleChangeApprovers && len(spec.Approvers) == 0 {
			return fmt.Errorf("change-approvers action requires approvers")
		}
		if spec.Action == entity.RuleRequireSignature && spec.SignatureType == "" {
			return fmt.Errorf("require-signature action requires a signature type")
		}
	case entity.RuleNotify:
		if spec.NotifyUser == "" {
			return fmt.Errorf("notify action requires a user")
		}
	}
	return nil
}

// Evaluate runs the compiled rules in (priority, definition order) against
// the given parameters and returns the specs of every rule whose condition
// holds, excluding rules the skip predicate marks as already applied.
// Conditions referencing a parameter absent from the context are false, not
// errors: context shape varies per entity type.
func Evaluate(compiled []CompiledRule, params map[string]any, alreadyApplied func(name string) bool) []entity.RuleSpec {
	ordered := make([]CompiledRule, len(compiled))
	copy(ordered, compiled)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Spec.Priority != ordered[j].Spec.Priority {
			return ordered[i].Spec.Priority < ordered[j].Spec.Priority
		}
		return ordered[i].order < ordered[j].order
	})

	var fired []entity.RuleSpec
	for _, rule := range ordered {
		if alreadyApplied != nil && alreadyApplied(rule.Spec.Name) {
			continue
		}

		result, err := rule.expr.Evaluate(params)
		if err != nil {
			continue
		}
		if hold, ok := result.(bool); ok && hold {
			fired = append(fired, rule.Spec)
		}
	}

	return fired
}
