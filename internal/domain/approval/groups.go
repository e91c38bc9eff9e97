package approval

import "github.com/steiner385/MachShop-sub008/internal/domain/entity"

// GroupQuorum is one named partition of a stage's assignments with its own
// completion rule.
type GroupQuorum struct {
	Name           string
	CompletionType string // ALL, ANY, THRESHOLD
	ThresholdValue int
}

// GroupResult pairs a group with its computed closure state and vote counts.
type GroupResult struct {
	Name           string
	Result         Result
	TotalCount     int
	CompletedCount int
	ApprovedCount  int
	RejectedCount  int
}

// StageDecision is the aggregate of a grouped stage's evaluation: the stage
// closes only when every group closed, and fails fast as soon as any single
// group rejects, mirroring the instance-level fail-fast contract at a finer
// grain.
type StageDecision struct {
	Result Result
	Groups []GroupResult
}

// groupQuorum maps a group completion type onto the shared quorum arithmetic.
// Group members count as REQUIRED within their scope: a group's ALL means all
// of its members.
func groupQuorum(g GroupQuorum) Quorum {
	switch g.CompletionType {
	case entity.GroupAny:
		return Quorum{Type: entity.ApprovalAnyOne}
	case entity.GroupThreshold:
		return Quorum{Type: entity.ApprovalThreshold, MinimumApprovals: g.ThresholdValue}
	default:
		return Quorum{Type: entity.ApprovalAllRequired}
	}
}

// EvaluateGroups computes each group's closure over its own vote subset and
// derives the stage decision as the conjunction of group outcomes.
func EvaluateGroups(groups []GroupQuorum, votes []Vote) StageDecision {
	decision := StageDecision{Groups: make([]GroupResult, 0, len(groups))}

	allApproved := true
	for _, g := range groups {
		scoped := make([]Vote, 0, len(votes))
		gr := GroupResult{Name: g.Name}
		for _, v := range votes {
			if v.Group != g.Name {
				continue
			}
			if v.Type == entity.AssignmentObserver {
				continue
			}
			// Members of a group always carry required semantics within it.
			v.Type = entity.AssignmentRequired
			scoped = append(scoped, v)

			if v.Outcome == entity.OutcomeDelegated || v.Outcome == entity.OutcomeSkipped {
				continue
			}
			gr.TotalCount++
			if v.Outcome != "" {
				gr.CompletedCount++
			}
			switch v.Outcome {
			case entity.OutcomeApproved:
				gr.ApprovedCount++
			case entity.OutcomeRejected:
				gr.RejectedCount++
			}
		}

		gr.Result = Evaluate(groupQuorum(g), scoped)
		decision.Groups = append(decision.Groups, gr)

		if gr.Result.Closed && gr.Result.Outcome != entity.OutcomeApproved {
			// Fail fast: one rejecting group sinks the stage even while other
			// groups are still open.
			decision.Result = Result{Closed: true, Outcome: gr.Result.Outcome}
			return decision
		}
		if !gr.Result.Closed {
			allApproved = false
		}
	}

	if allApproved && len(groups) > 0 {
		decision.Result = Result{Closed: true, Outcome: entity.OutcomeApproved}
	}
	return decision
}

// GroupQuorumsFromSpecs projects persisted group specs into coordinator quorums.
func GroupQuorumsFromSpecs(specs []entity.GroupSpec) []GroupQuorum {
	quorums := make([]GroupQuorum, 0, len(specs))
	for _, g := range specs {
		quorums = append(quorums, GroupQuorum{
			Name:           g.Name,
			CompletionType: g.CompletionType,
			ThresholdValue: g.ThresholdValue,
		})
	}
	return quorums
}
