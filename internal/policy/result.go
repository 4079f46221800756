package policy

import "strings"

// Severity classifies a Violation. Only Error severity blocks a transition;
// Warning and Info are surfaced but don't change PolicyResult.Allowed.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Violation is one policy's objection to a trigger/context pair.
type Violation struct {
	PolicyName string
	Message    string
	Severity   Severity
	Suggestion string
}

// PolicyResult is the outcome of evaluating one or more policies.
type PolicyResult struct {
	Allowed    bool
	Violations []Violation
}

// Allow returns an empty, permitting result.
func Allow() PolicyResult {
	return PolicyResult{Allowed: true}
}

// FromViolations builds a PolicyResult from a violation set, allowed unless
// any violation carries Error severity.
func FromViolations(violations []Violation) PolicyResult {
	allowed := true
	for _, v := range violations {
		if v.Severity == SeverityError {
			allowed = false
			break
		}
	}
	return PolicyResult{Allowed: allowed, Violations: violations}
}

// Merge combines two results: allowed iff both are allowed, violations
// concatenated in order. Merge is associative, so fold order over a policy
// slice never changes the outcome.
func (r PolicyResult) Merge(other PolicyResult) PolicyResult {
	violations := make([]Violation, 0, len(r.Violations)+len(other.Violations))
	violations = append(violations, r.Violations...)
	violations = append(violations, other.Violations...)
	return PolicyResult{
		Allowed:    r.Allowed && other.Allowed,
		Violations: violations,
	}
}

// HasErrors reports whether any violation carries Error severity.
func (r PolicyResult) HasErrors() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Summary renders the violation messages as one human-readable line, used
// for log output and the CLI's check_policies action.
func (r PolicyResult) Summary() string {
	if len(r.Violations) == 0 {
		return "no violations"
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.PolicyName + ": " + v.Message
	}
	return strings.Join(msgs, "; ")
}
