package policy

import (
	"context"
	"sort"
)

// AllPolicies evaluates every applicable policy and merges the results
// (logical AND). With FailFast set, evaluation stops as soon as merging in
// a policy's result produces an Error-severity violation, leaving later
// policies unevaluated for this request.
type AllPolicies struct {
	Policies []Policy
	FailFast bool
}

func sortedByPriority(policies []Policy) []Policy {
	sorted := make([]Policy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return sorted
}

// Evaluate runs every policy that applies to req.Trigger, in priority
// order, and merges their results.
func (a AllPolicies) Evaluate(ctx context.Context, req Request) PolicyResult {
	result := Allow()
	for _, p := range sortedByPriority(a.Policies) {
		if !p.AppliesTo(req.Trigger) {
			continue
		}
		result = result.Merge(p.Evaluate(ctx, req))
		if a.FailFast && result.HasErrors() {
			break
		}
	}
	return result
}

// AnyPolicy passes if at least one applicable policy passes (logical OR),
// used to express alternative-satisfies-the-gate rules (e.g. either a
// human review or an automated check clears RequireCodeReview). If no
// policy applies, AnyPolicy allows by default — there's nothing to gate on.
type AnyPolicy struct {
	Policies []Policy
}

func (a AnyPolicy) Evaluate(ctx context.Context, req Request) PolicyResult {
	var violations []Violation
	applied := false
	for _, p := range sortedByPriority(a.Policies) {
		if !p.AppliesTo(req.Trigger) {
			continue
		}
		applied = true
		r := p.Evaluate(ctx, req)
		if r.Allowed {
			return Allow()
		}
		violations = append(violations, r.Violations...)
	}
	if !applied {
		return Allow()
	}
	return PolicyResult{Allowed: false, Violations: violations}
}
