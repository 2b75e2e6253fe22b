// Package snapshot implements the Snapshot Generator (spec.md §4.3): it
// flattens a profile's differential against its resolved base snapshot,
// producing a complete element tree plus a list of accumulated issues.
//
// The generator never returns an error for a merge violation — violations
// (cardinality widening, binding weakening, incompatible types, illegal
// slice additions, ...) are collected as Issues so that one bad element
// never blinds the rest of the merge (spec.md §7). An unresolvable base is
// reported the same way, as a "BaseNotFound" error Issue; Generate's Go
// error return is always nil.
package snapshot
