package policy

import (
	"context"
	"fmt"

	"github.com/flowctl/flowctl/internal/workflow"
)

// PolicyInfo describes a registered policy for listing purposes
// (list_policies in spec.md §6.1).
type PolicyInfo struct {
	Name        string
	Description string
	Priority    int
}

// GuardProvider is the C6 composition root: a fixed set of registered
// policies evaluated together as an AllPolicies for every guarded
// transition.
type GuardProvider struct {
	policies []Policy
	byName   map[string]Policy
	failFast bool
}

// NewGuardProvider registers policies and returns a GuardProvider. Later
// entries with a duplicate Name overwrite earlier ones in byName lookup,
// but all are still evaluated (registration order is for ListPolicies
// display only; Evaluate always runs priority order).
func NewGuardProvider(policies []Policy, failFast bool) *GuardProvider {
	byName := make(map[string]Policy, len(policies))
	for _, p := range policies {
		byName[p.Name()] = p
	}
	return &GuardProvider{policies: policies, byName: byName, failFast: failFast}
}

// Evaluate runs every registered policy applicable to req.Trigger.
func (g *GuardProvider) Evaluate(ctx context.Context, req Request) PolicyResult {
	return AllPolicies{Policies: g.policies, FailFast: g.failFast}.Evaluate(ctx, req)
}

// ListPolicies returns every registered policy's name, description, and
// priority, in registration order.
func (g *GuardProvider) ListPolicies() []PolicyInfo {
	infos := make([]PolicyInfo, len(g.policies))
	for i, p := range g.policies {
		infos[i] = PolicyInfo{Name: p.Name(), Description: p.Description(), Priority: p.Priority()}
	}
	return infos
}

// DryRun evaluates a single named policy without requiring it to apply to
// any particular trigger tag check beyond what AppliesTo reports, letting
// an operator preview one policy's verdict against a hypothetical
// trigger/context pair (the check_policies CLI action with a policy_name
// filter).
func (g *GuardProvider) DryRun(ctx context.Context, name string, req Request) (PolicyResult, error) {
	p, ok := g.byName[name]
	if !ok {
		return PolicyResult{}, fmt.Errorf("policy %q is not registered", name)
	}
	if !p.AppliesTo(req.Trigger) {
		return Allow(), nil
	}
	return p.Evaluate(ctx, req), nil
}

// triggerTagIn reports whether trig's tag is one of tags, the small helper
// every built-in's AppliesTo uses to restrict itself to relevant triggers.
func triggerTagIn(trig workflow.Trigger, tags ...workflow.TriggerTag) bool {
	for _, t := range tags {
		if trig.Tag == t {
			return true
		}
	}
	return false
}
