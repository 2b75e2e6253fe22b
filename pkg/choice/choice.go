// Package choice resolves FHIR's `value[x]` polymorphic "choice type"
// elements: a single logical property (declared in an ElementDefinition as
// `value[x]`) that appears on the wire as one concretely-typed property per
// instance, e.g. `valueString`, `valueQuantity`, `valueCodeableConcept`.
//
// Grounded on the suffix-matching/type-allow-listing approach of
// gofhir-validator's walker/choice.go, adapted from instance-data validation
// to the conformance-model and FHIRPath evaluator's needs described in
// spec.md §4.2.
//
// This package deliberately does not import pkg/fhir: pkg/fhir's own
// ElementDefinition JSON codec dispatches through this package (see
// Dispatch in host.go), so a dependency the other way would cycle.
// ResolveAgainst takes a TypeDeclarer instead of *fhir.ElementDefinition
// directly; pkg/fhir.ElementDefinition satisfies it.
package choice

import (
	"strings"
)

// primitiveSuffixes are FHIR primitive type codes, PascalCase as they
// appear in a choice suffix.
var primitiveSuffixes = []string{
	"Base64Binary", "Boolean", "Canonical", "Code", "Date", "DateTime",
	"Decimal", "Id", "Instant", "Integer", "Integer64", "Markdown", "Oid",
	"PositiveInt", "String", "Time", "UnsignedInt", "Uri", "Url", "Uuid",
}

// complexSuffixes are FHIR complex (non-primitive, non-resource) data
// types that legally appear as a choice-type suffix.
var complexSuffixes = []string{
	"Address", "Age", "Annotation", "Attachment", "CodeableConcept",
	"CodeableReference", "Coding", "ContactDetail", "ContactPoint",
	"Contributor", "Count", "DataRequirement", "Distance", "Dosage",
	"Duration", "Expression", "HumanName", "Identifier", "Meta", "Money",
	"MoneyQuantity", "Narrative", "ParameterDefinition", "Period",
	"Quantity", "Range", "Ratio", "RatioRange", "Reference",
	"RelatedArtifact", "SampledData", "Signature", "SimpleQuantity",
	"Timing", "TriggerDefinition", "UsageContext",
}

// suffixes is primitiveSuffixes ++ complexSuffixes, longest-first so that,
// e.g., "Integer64" is tried before "Integer" matches its prefix.
var suffixes = sortedByLengthDesc(append(append([]string{}, primitiveSuffixes...), complexSuffixes...))

func sortedByLengthDesc(in []string) []string {
	out := append([]string{}, in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

var primitiveSet = toSet(primitiveSuffixes)

func toSet(in []string) map[string]bool {
	m := make(map[string]bool, len(in))
	for _, s := range in {
		m[s] = true
	}
	return m
}

// Resolution is the outcome of resolving a wire-format property key against
// a choice-typed element.
type Resolution struct {
	IsChoice bool
	// Base is the element's logical name, e.g. "value" for "valueString".
	Base string
	// TypeCode is the FHIR type code: lower-camel for primitives
	// ("boolean"), PascalCase for complex types ("CodeableConcept").
	TypeCode string
	// Path is the `[x]`-suffixed declared path, e.g. "value[x]".
	Path string
}

// Resolve determines whether key is a choice-type wire property and, if so,
// splits it into its base name and resolved type code. It does not require
// an ElementDefinition — pure suffix matching, as used by a snapshot or
// FHIRPath navigator that only has the instance key in hand.
func Resolve(key string) Resolution {
	for _, suffix := range suffixes {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		base := strings.TrimSuffix(key, suffix)
		if base == "" {
			continue
		}
		typeCode := suffix
		if primitiveSet[suffix] {
			typeCode = lowerFirst(suffix)
		}
		return Resolution{IsChoice: true, Base: base, TypeCode: typeCode, Path: base + "[x]"}
	}
	return Resolution{}
}

// TypeDeclarer is the minimal view of an ElementDefinition ResolveAgainst
// and TypeAllowed need: its declared `type` list's type codes.
// pkg/fhir.ElementDefinition satisfies this via DeclaredTypes.
type TypeDeclarer interface {
	DeclaredTypes() []string
}

// ResolveAgainst resolves key the same way Resolve does, then confirms the
// resolved type code is actually permitted by elem's declared `type` list —
// the authoritative check once an ElementDefinition is available (spec.md
// §4.2: "the resolved type must be a member of the declared type list").
func ResolveAgainst(key string, elem TypeDeclarer) Resolution {
	res := Resolve(key)
	if !res.IsChoice || elem == nil {
		return res
	}
	if !TypeAllowed(elem, res.TypeCode) {
		return Resolution{}
	}
	return res
}

// TypeAllowed reports whether typeCode appears in elem's declared types,
// comparing case-insensitively and tolerating FHIRPath system-type URLs via
// NormalizeSystemType.
func TypeAllowed(elem TypeDeclarer, typeCode string) bool {
	if elem == nil {
		return false
	}
	want := NormalizeSystemType(typeCode)
	for _, code := range elem.DeclaredTypes() {
		if strings.EqualFold(NormalizeSystemType(code), want) {
			return true
		}
	}
	return false
}

// systemTypeMapping maps FHIRPath System.* type URLs to their FHIR
// primitive equivalents, as used when an ElementDefinition's type list names
// a FHIRPath system type rather than a FHIR type code (common for
// `Element.value[x]` extension declarations).
var systemTypeMapping = map[string]string{
	"http://hl7.org/fhirpath/System.String":   "string",
	"http://hl7.org/fhirpath/System.Boolean":  "boolean",
	"http://hl7.org/fhirpath/System.Integer":  "integer",
	"http://hl7.org/fhirpath/System.Decimal":  "decimal",
	"http://hl7.org/fhirpath/System.Date":     "date",
	"http://hl7.org/fhirpath/System.DateTime": "dateTime",
	"http://hl7.org/fhirpath/System.Time":     "time",
	"http://hl7.org/fhirpath/System.Quantity": "Quantity",
}

// NormalizeSystemType converts a FHIRPath System.* URL into its FHIR type
// code; any other input is returned unchanged.
func NormalizeSystemType(typeCode string) string {
	if normalized, ok := systemTypeMapping[typeCode]; ok {
		return normalized
	}
	return typeCode
}

// IsPrimitive reports whether typeCode (lower-camel, e.g. "boolean") names a
// FHIR primitive type.
func IsPrimitive(typeCode string) bool {
	return primitiveSet[upperFirst(typeCode)]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
