package validate

import (
	"encoding/json"
	"fmt"

	"github.com/fhirkit/conformance/pkg/canonical"
	"github.com/fhirkit/conformance/pkg/fhirpath"
)

// Severity mirrors the FHIR OperationOutcome severity vocabulary.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one conformance violation found against the profile.
type Issue struct {
	Severity Severity
	Code     string
	Message  string
	Path     string
}

// Result accumulates the Issues found by a single Validate call.
type Result struct {
	Issues []Issue
}

func (r *Result) add(severity Severity, code, path, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{
		Severity: severity,
		Code:     code,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Valid reports whether no error-severity issue was recorded.
func (r *Result) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Options configures which checks Validate runs. All default to enabled;
// the zero value of Options turns every check on.
type Options struct {
	SkipCardinality bool
	SkipFixedPattern bool
	SkipBindings    bool
	SkipInvariants  bool
}

// Validator walks a CanonicalProfile and checks resource instances against
// it, reusing pkg/fhirpath for both path navigation and invariant
// evaluation — it never re-implements JSON tree walking of its own.
type Validator struct {
	profile *canonical.CanonicalProfile
	opts    Options
	cache   *fhirpath.ExpressionCache
}

// NewValidator builds a Validator for the given profile. profile must have
// come from canonical.Build on a resolved snapshot.
func NewValidator(profile *canonical.CanonicalProfile, opts Options) *Validator {
	return &Validator{
		profile: profile,
		opts:    opts,
		cache:   fhirpath.NewExpressionCache(256),
	}
}

// Validate checks resource (a FHIR instance as JSON) against v's profile.
func (v *Validator) Validate(resource []byte) (*Result, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal(resource, &parsed); err != nil {
		return nil, fmt.Errorf("validate: invalid resource JSON: %w", err)
	}
	resourceType, _ := parsed["resourceType"].(string)
	if resourceType == "" {
		return nil, fmt.Errorf("validate: resource has no resourceType")
	}
	if resourceType != v.profile.Type {
		return nil, fmt.Errorf("validate: resource type %q does not match profile type %q", resourceType, v.profile.Type)
	}

	result := &Result{}

	for _, elem := range v.profile.All() {
		rel := relativePath(elem.Path, v.profile.Type)

		if !v.opts.SkipCardinality {
			v.checkCardinality(resource, rel, elem, result)
		}
		if !v.opts.SkipFixedPattern {
			v.checkFixedPattern(resource, rel, elem, result)
		}
		if !v.opts.SkipBindings {
			v.checkBinding(resource, rel, elem, result)
		}
	}

	if !v.opts.SkipInvariants {
		v.checkInvariants(resource, result)
	}

	return result, nil
}
