// Package validate is a thin consumer of the conformance toolkit: given a
// pkg/canonical.CanonicalProfile and a resource instance, it walks the
// profile's elements and reports cardinality, fixed/pattern, binding, and
// FHIRPath invariant violations. It exists to demonstrate the core
// packages working together end to end, not to replace a full validator.
package validate
