package validate

import "github.com/fhirkit/conformance/pkg/fhirpath/types"

// isTruthy applies the FHIRPath constraint-evaluation rule: an empty
// collection is false, a single boolean is its own value, and any other
// non-empty collection is true.
func isTruthy(result types.Collection) bool {
	if result.Empty() {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}
