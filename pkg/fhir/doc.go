// Package fhir provides the conformance data model: StructureDefinition and
// ElementDefinition, the artifacts the Context/Registry, Snapshot Generator,
// and Canonical Builder all operate on.
//
// These are deliberately a simplified, version-tagged projection of the
// full FHIR R4 resources — only the fields the core engine consumes — not
// a generated one-to-one mapping of every FHIR data type.
package fhir
