package validate

import "strings"

// relativePath turns a CanonicalElement's absolute path (e.g.
// "Patient.contact.name") into a FHIRPath expression evaluable against an
// instance of rootType directly ("contact.name"). Choice elements keep
// their base name and drop the "[x]" marker — pkg/choice's dispatcher
// resolves the concrete suffix (e.g. deceasedBoolean) when the evaluator
// navigates the bare property, so "deceased[x]" becomes "deceased".
func relativePath(path, rootType string) string {
	rel := strings.TrimPrefix(path, rootType)
	rel = strings.TrimPrefix(rel, ".")
	rel = strings.ReplaceAll(rel, "[x]", "")
	return rel
}
