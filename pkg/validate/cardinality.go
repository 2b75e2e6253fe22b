package validate

import (
	"strconv"

	"github.com/fhirkit/conformance/pkg/canonical"
)

// checkCardinality evaluates rel as a FHIRPath selection against resource
// and compares the result count to elem's min/max. Root elements (rel=="")
// describe the resource itself and have no cardinality of their own.
//
// The selection is flattened across the whole resource, so cardinality
// nested two or more levels under a repeating ancestor (e.g. a min=1 child
// of a repeating BackboneElement) is checked in aggregate rather than
// per-ancestor-instance — precise for elements that are themselves direct,
// non-repeating-ancestor children, an approximation otherwise.
func (v *Validator) checkCardinality(resource []byte, rel string, elem *canonical.CanonicalElement, result *Result) {
	if rel == "" {
		return
	}

	expr, err := v.cache.Get(rel)
	if err != nil {
		result.add(SeverityWarning, "processing", elem.Path, "could not compile path expression %q: %v", rel, err)
		return
	}

	values, err := expr.Evaluate(resource)
	if err != nil {
		result.add(SeverityWarning, "processing", elem.Path, "could not evaluate %q: %v", rel, err)
		return
	}

	count := values.Count()
	if count < elem.Min {
		result.add(SeverityError, "required", elem.Path, "element has %d item(s), minimum is %d", count, elem.Min)
	}
	if !elem.MaxUnbounded {
		if max, err := strconv.Atoi(elem.Max); err == nil && count > max {
			result.add(SeverityError, "structure", elem.Path, "element has %d item(s), maximum is %d", count, max)
		}
	}
}
