package approval

import (
	"testing"

	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

func required(id int64, outcome string) Vote {
	return Vote{AssignmentID: id, Type: entity.AssignmentRequired, Weight: 1, Outcome: outcome}
}

func optional(id int64, outcome string) Vote {
	return Vote{AssignmentID: id, Type: entity.AssignmentOptional, Weight: 1, Outcome: outcome}
}

func TestEvaluate_AllRequired(t *testing.T) {
	q := Quorum{Type: entity.ApprovalAllRequired}

	tests := []struct {
		name        string
		votes       []Vote
		wantClosed  bool
		wantOutcome string
	}{
		{
			name:  "all open stays pending",
			votes: []Vote{required(1, ""), required(2, "")},
		},
		{
			name:  "partial approval stays pending",
			votes: []Vote{required(1, entity.OutcomeApproved), required(2, "")},
		},
		{
			name:        "every required approved closes approved",
			votes:       []Vote{required(1, entity.OutcomeApproved), required(2, entity.OutcomeApproved)},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name:        "first required rejection closes rejected regardless of open votes",
			votes:       []Vote{required(1, entity.OutcomeRejected), required(2, ""), required(3, "")},
			wantClosed:  true,
			wantOutcome: entity.OutcomeRejected,
		},
		{
			name:        "optional rejection does not sink the stage",
			votes:       []Vote{required(1, entity.OutcomeApproved), optional(2, entity.OutcomeRejected)},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name: "delegated assignment drops out of the arithmetic",
			votes: []Vote{
				required(1, entity.OutcomeDelegated),
				required(2, entity.OutcomeApproved),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name:        "changes requested closes the stage as changes requested",
			votes:       []Vote{required(1, entity.OutcomeChangesRequested), required(2, "")},
			wantClosed:  true,
			wantOutcome: entity.OutcomeChangesRequested,
		},
		{
			name: "observers never count",
			votes: []Vote{
				required(1, entity.OutcomeApproved),
				{AssignmentID: 2, Type: entity.AssignmentObserver, Outcome: entity.OutcomeRejected},
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(q, tt.votes)
			if got.Closed != tt.wantClosed || got.Outcome != tt.wantOutcome {
				t.Errorf("Evaluate() = %+v, want closed=%v outcome=%q", got, tt.wantClosed, tt.wantOutcome)
			}
		})
	}
}

func TestEvaluate_AnyOne(t *testing.T) {
	q := Quorum{Type: entity.ApprovalAnyOne}

	tests := []struct {
		name        string
		votes       []Vote
		wantClosed  bool
		wantOutcome string
	}{
		{
			name:        "first approval closes approved",
			votes:       []Vote{required(1, entity.OutcomeApproved), required(2, ""), required(3, "")},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name:  "one rejection with others open stays pending",
			votes: []Vote{required(1, entity.OutcomeRejected), required(2, "")},
		},
		{
			name:        "all required rejected closes rejected",
			votes:       []Vote{required(1, entity.OutcomeRejected), required(2, entity.OutcomeRejected)},
			wantClosed:  true,
			wantOutcome: entity.OutcomeRejected,
		},
		{
			name:        "optional approval satisfies any-one",
			votes:       []Vote{required(1, ""), optional(2, entity.OutcomeApproved)},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(q, tt.votes)
			if got.Closed != tt.wantClosed || got.Outcome != tt.wantOutcome {
				t.Errorf("Evaluate() = %+v, want closed=%v outcome=%q", got, tt.wantClosed, tt.wantOutcome)
			}
		})
	}
}

func TestEvaluate_Threshold(t *testing.T) {
	q := Quorum{Type: entity.ApprovalThreshold, MinimumApprovals: 2}

	tests := []struct {
		name        string
		votes       []Vote
		wantClosed  bool
		wantOutcome string
	}{
		{
			name:  "one of three approved stays pending",
			votes: []Vote{required(1, entity.OutcomeApproved), required(2, ""), required(3, "")},
		},
		{
			name: "closes approved as soon as n approvals recorded and no earlier",
			votes: []Vote{
				required(1, entity.OutcomeApproved),
				required(2, entity.OutcomeRejected),
				required(3, entity.OutcomeApproved),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name: "closes rejected once success is mathematically impossible",
			votes: []Vote{
				required(1, entity.OutcomeRejected),
				required(2, entity.OutcomeRejected),
				required(3, ""),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeRejected,
		},
		{
			name: "rejections that leave success possible stay pending",
			votes: []Vote{
				required(1, entity.OutcomeRejected),
				required(2, entity.OutcomeApproved),
				required(3, ""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(q, tt.votes)
			if got.Closed != tt.wantClosed || got.Outcome != tt.wantOutcome {
				t.Errorf("Evaluate() = %+v, want closed=%v outcome=%q", got, tt.wantClosed, tt.wantOutcome)
			}
		})
	}
}

func TestEvaluate_Percentage(t *testing.T) {
	q := Quorum{Type: entity.ApprovalPercentage, PercentThreshold: 0.5}

	tests := []struct {
		name        string
		votes       []Vote
		wantClosed  bool
		wantOutcome string
	}{
		{
			name: "half of four approved closes approved",
			votes: []Vote{
				required(1, entity.OutcomeApproved),
				required(2, entity.OutcomeApproved),
				required(3, ""),
				required(4, ""),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name: "three of four rejected makes half impossible",
			votes: []Vote{
				required(1, entity.OutcomeRejected),
				required(2, entity.OutcomeRejected),
				required(3, entity.OutcomeRejected),
				required(4, ""),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeRejected,
		},
		{
			name: "one of four approved stays pending",
			votes: []Vote{
				required(1, entity.OutcomeApproved),
				required(2, ""),
				required(3, ""),
				required(4, ""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(q, tt.votes)
			if got.Closed != tt.wantClosed || got.Outcome != tt.wantOutcome {
				t.Errorf("Evaluate() = %+v, want closed=%v outcome=%q", got, tt.wantClosed, tt.wantOutcome)
			}
		})
	}
}

func TestEvaluate_Weighted(t *testing.T) {
	q := Quorum{Type: entity.ApprovalWeighted, MinimumWeight: 5}

	weighted := func(id int64, weight float64, outcome string) Vote {
		return Vote{AssignmentID: id, Type: entity.AssignmentRequired, Weight: weight, Outcome: outcome}
	}

	tests := []struct {
		name        string
		votes       []Vote
		wantClosed  bool
		wantOutcome string
	}{
		{
			name: "weighted approvals meet the minimum",
			votes: []Vote{
				weighted(1, 3, entity.OutcomeApproved),
				weighted(2, 2, entity.OutcomeApproved),
				weighted(3, 1, ""),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name: "remaining weight cannot reach the minimum",
			votes: []Vote{
				weighted(1, 3, entity.OutcomeRejected),
				weighted(2, 2, entity.OutcomeRejected),
				weighted(3, 1, ""),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeRejected,
		},
		{
			name: "open weight keeps success possible",
			votes: []Vote{
				weighted(1, 3, entity.OutcomeApproved),
				weighted(2, 4, ""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(q, tt.votes)
			if got.Closed != tt.wantClosed || got.Outcome != tt.wantOutcome {
				t.Errorf("Evaluate() = %+v, want closed=%v outcome=%q", got, tt.wantClosed, tt.wantOutcome)
			}
		})
	}
}

// Evaluation must be a pure function of the vote set: permuting the slice must
// never change the answer.
func TestEvaluate_OrderIndependent(t *testing.T) {
	q := Quorum{Type: entity.ApprovalThreshold, MinimumApprovals: 2}
	votes := []Vote{
		required(1, entity.OutcomeApproved),
		required(2, entity.OutcomeRejected),
		required(3, entity.OutcomeApproved),
	}

	want := Evaluate(q, votes)
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		permuted := []Vote{votes[p[0]], votes[p[1]], votes[p[2]]}
		if got := Evaluate(q, permuted); got != want {
			t.Errorf("Evaluate() order-dependent: %+v != %+v for permutation %v", got, want, p)
		}
	}
}
