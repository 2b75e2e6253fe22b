package validate

import "fmt"

// checkInvariants evaluates every FHIRPath constraint.Expression carried by
// the profile's elements against resource, in the element's own context,
// skipping invariants whose Source names a profile other than this one.
// Root-level constraints run the expression directly; element-level
// constraints are wrapped as "<path>.all(<expression>)" so they run once
// per occurrence of a repeating element, mirroring how a full validator
// scopes invariants to the element they were declared on.
func (v *Validator) checkInvariants(resource []byte, result *Result) {
	for _, elem := range v.profile.All() {
		rel := relativePath(elem.Path, v.profile.Type)

		for _, inv := range elem.Invariants {
			if inv.Expression == "" {
				continue
			}
			if inv.Source != "" && inv.Source != v.profile.URL {
				continue
			}

			fullExpr := inv.Expression
			if rel != "" {
				fullExpr = fmt.Sprintf("%s.all(%s)", rel, inv.Expression)
			}

			expr, err := v.cache.Get(fullExpr)
			if err != nil {
				result.add(SeverityWarning, "processing", elem.Path, "failed to compile constraint %s: %v", inv.Key, err)
				continue
			}

			outcome, err := expr.Evaluate(resource)
			if err != nil {
				result.add(SeverityWarning, "processing", elem.Path, "failed to evaluate constraint %s: %v", inv.Key, err)
				continue
			}

			if !isTruthy(outcome) {
				severity := SeverityError
				if inv.Severity == "warning" {
					severity = SeverityWarning
				}
				result.add(severity, "invariant", elem.Path, "constraint %s violated: %s", inv.Key, inv.Human)
			}
		}
	}
}
