// Package canonical builds a CanonicalProfile from a populated snapshot:
// a normalized, insertion-ordered view of an ElementDefinition tree with
// every optional field defaulted, every choice-typed constraint lowered
// into a plain Go shape, and slicing/binding/invariant definitions reduced
// to exactly what a consumer such as pkg/validate needs to check an
// instance against. pkg/fhirpath has no `conformsTo` function and does not
// use this package.
package canonical
