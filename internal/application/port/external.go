package port

import "context"

// Candidate is one user a role resolves to, with the weight used by WEIGHTED
// stage evaluation (1 when the directory assigns none).
type Candidate struct {
	UserID string
	Weight float64
}

// RoleResolver resolves an approver role to candidate users. Implementations
// wrap the external identity/role-membership system; calls are expected to be
// bounded by the caller's context deadline. An empty candidate set is a valid
// answer and surfaces as an unresolvable assignment, not an error.
type RoleResolver interface {
	Resolve(ctx context.Context, role, siteScope string) ([]Candidate, error)
}

// MetadataLookup fetches context fields for the business entity a workflow
// governs (impact level, cost, affected-part count, ...). Used to seed and
// refresh the instance context the rule engine evaluates against.
type MetadataLookup interface {
	Lookup(ctx context.Context, entityType, entityID string) (map[string]any, error)
}
