package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
	domainwf "github.com/steiner385/MachShop-sub008/internal/domain/workflow"
)

// pick is one resolved approver slot before it becomes an assignment row.
type pick struct {
	userID string
	role   string
	kind   string // REQUIRED, OPTIONAL, OBSERVER
	group  string
	weight float64
}

// materializeStage resolves the stage's approver configuration into
// assignment (and coordination group) rows. Standing delegation redirects are
// applied here, at creation time; they never rewrite assignments that already
// exist. A stage whose required slots resolve to nobody is unresolvable.
func (e *engineImpl) materializeStage(ctx context.Context, instance *entity.WorkflowInstance, stage *entity.StageInstance) ([]*entity.Assignment, []*entity.CoordinationGroup, error) {
	var picks []pick
	var groups []*entity.CoordinationGroup
	now := e.now()

	if len(stage.Groups) > 0 {
		for _, spec := range stage.Groups {
			members, err := e.groupMembers(ctx, instance, spec)
			if err != nil {
				return nil, nil, err
			}
			if len(members) == 0 {
				return nil, nil, fmt.Errorf("group %q: %w", spec.Name, domainwf.ErrUnresolvableAssignment)
			}
			picks = append(picks, members...)
			groups = append(groups, &entity.CoordinationGroup{
				StageInstanceID: stage.ID,
				Name:            spec.Name,
				CompletionType:  spec.CompletionType,
				ThresholdValue:  spec.ThresholdValue,
				TotalCount:      len(members),
				Status:          "PENDING",
				Decision:        "PENDING",
				CreatedAt:       now,
			})
		}
	} else {
		required, err := e.requiredPicks(ctx, instance, stage)
		if err != nil {
			return nil, nil, err
		}
		if len(required) == 0 {
			return nil, nil, domainwf.ErrUnresolvableAssignment
		}
		picks = append(picks, required...)
	}

	for _, role := range stage.OptionalRoles {
		candidates, err := e.resolveRole(ctx, instance, role)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range candidates {
			picks = append(picks, pick{userID: c.UserID, role: role, kind: entity.AssignmentOptional, weight: c.Weight})
		}
	}
	for _, role := range stage.ObserverRoles {
		candidates, err := e.resolveRole(ctx, instance, role)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range candidates {
			picks = append(picks, pick{userID: c.UserID, role: role, kind: entity.AssignmentObserver, weight: c.Weight})
		}
	}

	picks, err := e.applyStandingDelegations(ctx, instance.WorkflowType, picks, now)
	if err != nil {
		return nil, nil, err
	}
	picks = dedupePicks(picks)

	assignments := make([]*entity.Assignment, 0, len(picks))
	for _, p := range picks {
		weight := p.weight
		if weight == 0 {
			weight = 1
		}
		assignments = append(assignments, &entity.Assignment{
			InstanceID:      instance.ID,
			StageInstanceID: stage.ID,
			UserID:          p.userID,
			Role:            p.role,
			Type:            p.kind,
			GroupName:       p.group,
			Weight:          weight,
			Status:          entity.AssignmentOpen,
			CreatedAt:       now,
		})
	}
	return assignments, groups, nil
}

// requiredPicks resolves the stage's required approver slots according to its
// assignment strategy.
func (e *engineImpl) requiredPicks(ctx context.Context, instance *entity.WorkflowInstance, stage *entity.StageInstance) ([]pick, error) {
	switch stage.Strategy {
	case entity.StrategyManual:
		picks := make([]pick, 0, len(stage.NamedApprovers))
		for _, user := range stage.NamedApprovers {
			picks = append(picks, pick{userID: user, kind: entity.AssignmentRequired, weight: 1})
		}
		return picks, nil

	case entity.StrategyRoleBased:
		var picks []pick
		for _, role := range stage.RequiredRoles {
			candidates, err := e.resolveRole(ctx, instance, role)
			if err != nil {
				return nil, err
			}
			for _, c := range candidates {
				picks = append(picks, pick{userID: c.UserID, role: role, kind: entity.AssignmentRequired, weight: c.Weight})
			}
		}
		return picks, nil

	case entity.StrategyLoadBalanced:
		var picks []pick
		for _, role := range stage.RequiredRoles {
			candidates, err := e.resolveRole(ctx, instance, role)
			if err != nil {
				return nil, err
			}
			chosen, err := e.leastLoaded(ctx, candidates)
			if err != nil {
				return nil, err
			}
			if chosen == nil {
				continue
			}
			picks = append(picks, pick{userID: chosen.UserID, role: role, kind: entity.AssignmentRequired, weight: chosen.Weight})
		}
		return picks, nil

	case entity.StrategyRoundRobin:
		var picks []pick
		for _, role := range stage.RequiredRoles {
			candidates, err := e.resolveRole(ctx, instance, role)
			if err != nil {
				return nil, err
			}
			if len(candidates) == 0 {
				continue
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i].UserID < candidates[j].UserID })
			// Deterministic rotation keyed on instance and stage position, so
			// repeated runs and retries pick the same candidate.
			idx := int(instance.ID+int64(stage.ExecutionOrder)) % len(candidates)
			picks = append(picks, pick{userID: candidates[idx].UserID, role: role, kind: entity.AssignmentRequired, weight: candidates[idx].Weight})
		}
		return picks, nil

	default:
		return nil, fmt.Errorf("unknown assignment strategy %q", stage.Strategy)
	}
}

// groupMembers resolves one group spec to REQUIRED picks tagged with the
// group's name. Quorum arithmetic inside a group treats every member as
// required.
func (e *engineImpl) groupMembers(ctx context.Context, instance *entity.WorkflowInstance, spec entity.GroupSpec) ([]pick, error) {
	var picks []pick
	for _, user := range spec.Approvers {
		picks = append(picks, pick{userID: user, kind: entity.AssignmentRequired, group: spec.Name, weight: 1})
	}
	for _, role := range spec.Roles {
		candidates, err := e.resolveRole(ctx, instance, role)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			picks = append(picks, pick{userID: c.UserID, role: role, kind: entity.AssignmentRequired, group: spec.Name, weight: c.Weight})
		}
	}
	return picks, nil
}

func (e *engineImpl) resolveRole(ctx context.Context, instance *entity.WorkflowInstance, role string) ([]port.Candidate, error) {
	siteScope, _ := instance.Context["site"].(string)
	candidates, err := e.roleResolver.Resolve(ctx, role, siteScope)
	if err != nil {
		// A resolver failure (timeout, directory outage) parks the stage in
		// ESCALATED like an empty candidate set would, instead of failing the
		// transaction that triggered the stage start.
		return nil, fmt.Errorf("%w: resolve role %q: %v", domainwf.ErrUnresolvableAssignment, role, err)
	}
	return candidates, nil
}

// leastLoaded picks the candidate with the fewest open assignments, breaking
// ties by user id for determinism.
func (e *engineImpl) leastLoaded(ctx context.Context, candidates []port.Candidate) (*port.Candidate, error) {
	var best *port.Candidate
	bestCount := -1
	sorted := make([]port.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	for i := range sorted {
		count, err := e.assignmentRepo.CountOpenByUser(ctx, sorted[i].UserID)
		if err != nil {
			return nil, fmt.Errorf("count open assignments for %s: %w", sorted[i].UserID, err)
		}
		if best == nil || count < bestCount {
			best = &sorted[i]
			bestCount = count
		}
	}
	return best, nil
}

// applyStandingDelegations swaps each picked user for their active delegatee
// when a standing redirect covers this workflow type. Single hop only; a
// delegatee's own redirects are not chased.
func (e *engineImpl) applyStandingDelegations(ctx context.Context, workflowType string, picks []pick, now time.Time) ([]pick, error) {
	for i, p := range picks {
		redirects, err := e.delegationRepo.GetActiveForUser(ctx, p.userID)
		if err != nil {
			return nil, fmt.Errorf("load delegations for %s: %w", p.userID, err)
		}
		for _, d := range redirects {
			if d.AppliesTo(workflowType, now) {
				picks[i].userID = d.DelegateeID
				break
			}
		}
	}
	return picks, nil
}

// dedupePicks collapses duplicate users within a stage. The strongest
// participation kind wins: REQUIRED over OPTIONAL over OBSERVER.
func dedupePicks(picks []pick) []pick {
	rank := map[string]int{
		entity.AssignmentRequired: 3,
		entity.AssignmentOptional: 2,
		entity.AssignmentObserver: 1,
	}
	seen := make(map[string]int, len(picks)) // userID -> index into out
	out := make([]pick, 0, len(picks))
	for _, p := range picks {
		key := p.userID + "\x00" + p.group
		if idx, ok := seen[key]; ok {
			if rank[p.kind] > rank[out[idx].kind] {
				out[idx] = p
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, p)
	}
	return out
}
