// Package approval holds the pure stage-closure arithmetic. Everything here
// is deterministic over an in-memory snapshot of a stage's assignments: no
// clocks, no I/O, no ordering dependency beyond "first terminal action wins"
// per assignment, which the orchestrator enforces before calling in.
package approval

import "github.com/steiner385/MachShop-sub008/internal/domain/entity"

// Quorum describes the closure rule of a stage or coordination group.
type Quorum struct {
	Type             string
	MinimumApprovals int     // THRESHOLD
	PercentThreshold float64 // PERCENTAGE, 0..1
	MinimumWeight    float64 // WEIGHTED
}

// Vote is the evaluator's view of one assignment. Outcome is empty while the
// assignment is open.
type Vote struct {
	AssignmentID int64
	Type         string // REQUIRED, OPTIONAL, OBSERVER
	Group        string
	Weight       float64
	Outcome      string
}

// Result is the computed closure state of a stage or group.
type Result struct {
	Closed  bool
	Outcome string // APPROVED, REJECTED or CHANGES_REQUESTED once closed
}

var pending = Result{}

// Evaluate computes whether the quorum is satisfied, failed, or still open.
//
// Observers never count. Assignments closed as DELEGATED or SKIPPED drop out
// of the arithmetic entirely: a delegated assignment was replaced by a
// successor that votes in its place. A REQUIRED changes-requested closes the
// quorum immediately with outcome CHANGES_REQUESTED regardless of type: the
// submission is being sent back, so counting further approvals is pointless.
func Evaluate(q Quorum, votes []Vote) Result {
	var (
		requiredTotal    int
		requiredApproved int
		requiredRejected int
		requiredOpen     int
		approved         int
		open             int
		approvedWeight   float64
		openWeight       float64
	)

	for _, v := range votes {
		if v.Type == entity.AssignmentObserver {
			continue
		}
		if v.Outcome == entity.OutcomeDelegated || v.Outcome == entity.OutcomeSkipped {
			continue
		}

		if v.Type == entity.AssignmentRequired && v.Outcome == entity.OutcomeChangesRequested {
			return Result{Closed: true, Outcome: entity.OutcomeChangesRequested}
		}

		switch v.Outcome {
		case entity.OutcomeApproved:
			approved++
			approvedWeight += v.Weight
		case "":
			open++
			openWeight += v.Weight
		}

		if v.Type == entity.AssignmentRequired {
			requiredTotal++
			switch v.Outcome {
			case entity.OutcomeApproved:
				requiredApproved++
			case entity.OutcomeRejected:
				requiredRejected++
			case "":
				requiredOpen++
			}
		}
	}

	switch q.Type {
	case entity.ApprovalAllRequired:
		if requiredRejected > 0 {
			return Result{Closed: true, Outcome: entity.OutcomeRejected}
		}
		if requiredOpen == 0 {
			return Result{Closed: true, Outcome: entity.OutcomeApproved}
		}
		return pending

	case entity.ApprovalAnyOne:
		if approved > 0 {
			return Result{Closed: true, Outcome: entity.OutcomeApproved}
		}
		if requiredTotal > 0 && requiredRejected == requiredTotal {
			return Result{Closed: true, Outcome: entity.OutcomeRejected}
		}
		return pending

	case entity.ApprovalThreshold:
		if approved >= q.MinimumApprovals {
			return Result{Closed: true, Outcome: entity.OutcomeApproved}
		}
		if approved+open < q.MinimumApprovals {
			return Result{Closed: true, Outcome: entity.OutcomeRejected}
		}
		return pending

	case entity.ApprovalPercentage:
		if requiredTotal == 0 {
			return Result{Closed: true, Outcome: entity.OutcomeApproved}
		}
		denom := float64(requiredTotal)
		if float64(requiredApproved)/denom >= q.PercentThreshold {
			return Result{Closed: true, Outcome: entity.OutcomeApproved}
		}
		if float64(requiredApproved+requiredOpen)/denom < q.PercentThreshold {
			return Result{Closed: true, Outcome: entity.OutcomeRejected}
		}
		return pending

	case entity.ApprovalWeighted:
		if approvedWeight >= q.MinimumWeight {
			return Result{Closed: true, Outcome: entity.OutcomeApproved}
		}
		if approvedWeight+openWeight < q.MinimumWeight {
			return Result{Closed: true, Outcome: entity.OutcomeRejected}
		}
		return pending
	}

	return pending
}

// StageQuorum extracts the quorum configuration snapshotted on a stage instance.
func StageQuorum(stage *entity.StageInstance) Quorum {
	return Quorum{
		Type:             stage.ApprovalType,
		MinimumApprovals: stage.MinimumApprovals,
		PercentThreshold: stage.PercentThreshold,
		MinimumWeight:    stage.MinimumWeight,
	}
}

// VotesFromAssignments projects persisted assignments into evaluator votes.
func VotesFromAssignments(assignments []*entity.Assignment) []Vote {
	votes := make([]Vote, 0, len(assignments))
	for _, a := range assignments {
		votes = append(votes, Vote{
			AssignmentID: a.ID,
			Type:         a.Type,
			Group:        a.GroupName,
			Weight:       a.Weight,
			Outcome:      a.Outcome,
		})
	}
	return votes
}
