package validate

import (
	"github.com/fhirkit/conformance/pkg/canonical"
	"github.com/fhirkit/conformance/pkg/fhirpath/types"
)

// checkBinding performs the structural half of binding conformance: for
// elements with a required or extensible binding, it confirms a non-empty
// code is actually present. It never expands the bound ValueSet or checks
// membership — that is terminology-server work, explicitly out of scope
// (spec's terminology-expansion non-goal); only the valueSet URL and
// strength travel through CanonicalElement.Binding for a caller that does
// have a terminology service to consult.
func (v *Validator) checkBinding(resource []byte, rel string, elem *canonical.CanonicalElement, result *Result) {
	binding := elem.Binding
	if binding == nil || rel == "" {
		return
	}
	if binding.Strength != "required" && binding.Strength != "extensible" {
		return
	}

	expr, err := v.cache.Get(rel)
	if err != nil {
		return
	}
	values, err := expr.Evaluate(resource)
	if err != nil || values.Empty() {
		return
	}

	for _, value := range values {
		if !hasNonEmptyCode(value) {
			severity := SeverityWarning
			if binding.Strength == "required" {
				severity = SeverityError
			}
			result.add(severity, "code-invalid", elem.Path, "bound element has no code value (binding %s against %s)", binding.Strength, binding.ValueSetURL)
		}
	}
}

// hasNonEmptyCode reports whether value carries a non-empty code: a
// non-empty code/string primitive, or a Coding/CodeableConcept object with
// at least one non-empty "code" field.
func hasNonEmptyCode(value types.Value) bool {
	switch v := value.(type) {
	case types.String:
		return v.Value() != ""
	case *types.ObjectValue:
		if code, ok := v.Get("code"); ok {
			if s, ok := code.(types.String); ok {
				return s.Value() != ""
			}
		}
		if coding := v.GetCollection("coding"); len(coding) > 0 {
			for _, c := range coding {
				if hasNonEmptyCode(c) {
					return true
				}
			}
			return false
		}
		return false
	default:
		return !value.IsEmpty()
	}
}
