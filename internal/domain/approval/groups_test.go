package approval

import (
	"testing"

	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

func grouped(id int64, group, outcome string) Vote {
	return Vote{AssignmentID: id, Type: entity.AssignmentRequired, Group: group, Weight: 1, Outcome: outcome}
}

func TestEvaluateGroups_AnyClosesOnFirstApproval(t *testing.T) {
	groups := []GroupQuorum{{Name: "quality", CompletionType: entity.GroupAny}}
	votes := []Vote{
		grouped(1, "quality", entity.OutcomeApproved),
		grouped(2, "quality", ""),
		grouped(3, "quality", ""),
	}

	d := EvaluateGroups(groups, votes)
	if !d.Result.Closed || d.Result.Outcome != entity.OutcomeApproved {
		t.Fatalf("expected closed approved, got %+v", d.Result)
	}
	if len(d.Groups) != 1 || d.Groups[0].ApprovedCount != 1 {
		t.Errorf("unexpected group counters: %+v", d.Groups)
	}
}

func TestEvaluateGroups_ConjunctionOfAllGroups(t *testing.T) {
	groups := []GroupQuorum{
		{Name: "engineering", CompletionType: entity.GroupAll},
		{Name: "quality", CompletionType: entity.GroupThreshold, ThresholdValue: 1},
	}

	tests := []struct {
		name        string
		votes       []Vote
		wantClosed  bool
		wantOutcome string
	}{
		{
			name: "one group closed, the other open, stage stays pending",
			votes: []Vote{
				grouped(1, "engineering", entity.OutcomeApproved),
				grouped(2, "quality", ""),
			},
		},
		{
			name: "all groups approved closes the stage approved",
			votes: []Vote{
				grouped(1, "engineering", entity.OutcomeApproved),
				grouped(2, "quality", entity.OutcomeApproved),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeApproved,
		},
		{
			name: "one rejecting group fails the stage while another is still open",
			votes: []Vote{
				grouped(1, "engineering", entity.OutcomeRejected),
				grouped(2, "quality", ""),
			},
			wantClosed:  true,
			wantOutcome: entity.OutcomeRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EvaluateGroups(groups, tt.votes)
			if d.Result.Closed != tt.wantClosed || d.Result.Outcome != tt.wantOutcome {
				t.Errorf("EvaluateGroups() = %+v, want closed=%v outcome=%q", d.Result, tt.wantClosed, tt.wantOutcome)
			}
		})
	}
}

func TestEvaluateGroups_MembersCarryRequiredSemantics(t *testing.T) {
	// An OPTIONAL assignment inside a group still counts toward the group's
	// ALL quorum.
	groups := []GroupQuorum{{Name: "g", CompletionType: entity.GroupAll}}
	votes := []Vote{
		{AssignmentID: 1, Type: entity.AssignmentOptional, Group: "g", Weight: 1, Outcome: ""},
		grouped(2, "g", entity.OutcomeApproved),
	}

	d := EvaluateGroups(groups, votes)
	if d.Result.Closed {
		t.Fatalf("expected pending while optional member is open, got %+v", d.Result)
	}
}
