package validate

import (
	"encoding/json"

	"github.com/fhirkit/conformance/pkg/canonical"
	"github.com/fhirkit/conformance/pkg/fhirpath/types"
)

// checkFixedPattern compares the instance value at rel against elem's
// fixed/pattern constraint, when either is present. fixed requires exact
// structural equality; pattern requires every field named in the pattern
// to be present and equal in the instance (FHIR's partial-match rule),
// checked recursively for object patterns.
func (v *Validator) checkFixedPattern(resource []byte, rel string, elem *canonical.CanonicalElement, result *Result) {
	if len(elem.Fixed) == 0 && len(elem.Pattern) == 0 {
		return
	}
	if rel == "" {
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
	actual, ok := values.First()
	if !ok {
		return
	}
	actualJSON, err := marshalValue(actual)
	if err != nil {
		return
	}

	if len(elem.Fixed) > 0 {
		if !jsonEqual(elem.Fixed, actualJSON) {
			result.add(SeverityError, "value", elem.Path, "value does not match fixed %s value", elem.FixedType)
		}
	}
	if len(elem.Pattern) > 0 {
		if !jsonMatchesPattern(elem.Pattern, actualJSON) {
			result.add(SeverityError, "value", elem.Path, "value does not match pattern %s value", elem.PatternType)
		}
	}
}

// marshalValue renders a FHIRPath Value back to the JSON shape it would
// have had on the wire, so it can be compared against a raw fixed/pattern
// value captured straight off the StructureDefinition.
func marshalValue(v types.Value) ([]byte, error) {
	switch val := v.(type) {
	case *types.ObjectValue:
		return val.Data(), nil
	case types.Boolean:
		return json.Marshal(val.Bool())
	case types.String:
		return json.Marshal(val.Value())
	default:
		return json.Marshal(val.String())
	}
}

func jsonEqual(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	aj, _ := json.Marshal(av)
	bj, _ := json.Marshal(bv)
	return string(aj) == string(bj)
}

// jsonMatchesPattern reports whether every field pattern names is present
// and equal in actual. Non-object patterns fall back to exact equality.
func jsonMatchesPattern(pattern, actual []byte) bool {
	var pv, av interface{}
	if json.Unmarshal(pattern, &pv) != nil || json.Unmarshal(actual, &av) != nil {
		return false
	}
	return matchesPattern(pv, av)
}

func matchesPattern(pattern, actual interface{}) bool {
	pm, ok := pattern.(map[string]interface{})
	if !ok {
		pj, _ := json.Marshal(pattern)
		aj, _ := json.Marshal(actual)
		return string(pj) == string(aj)
	}
	am, ok := actual.(map[string]interface{})
	if !ok {
		return false
	}
	for key, pval := range pm {
		aval, present := am[key]
		if !present || !matchesPattern(pval, aval) {
			return false
		}
	}
	return true
}
