package choice

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field names one of the choice-typed properties spec.md §4.2 requires a
// fixed per-host-type allowed-type list for: Extension.value,
// UsageContext.value, ElementDefinition.{defaultValue,fixed,pattern,
// minValue,maxValue}, and ElementDefinitionExample.value.
type Field string

const (
	FieldExtensionValue           Field = "Extension.value"
	FieldUsageContextValue        Field = "UsageContext.value"
	FieldElementDefault           Field = "ElementDefinition.defaultValue"
	FieldElementFixed             Field = "ElementDefinition.fixed"
	FieldElementPattern           Field = "ElementDefinition.pattern"
	FieldElementMinValue          Field = "ElementDefinition.minValue"
	FieldElementMaxValue          Field = "ElementDefinition.maxValue"
	FieldElementDefinitionExample Field = "ElementDefinitionExample.value"
)

// orderableSuffixes is the restricted type list spec.md §4.2 requires for
// ElementDefinition.minValue/maxValue: only types with a well-defined
// ordering comparison, as opposed to the full FHIR set every other choice
// field accepts.
var orderableSuffixes = []string{
	"Date", "DateTime", "Instant", "Time", "Decimal", "Integer",
	"PositiveInt", "UnsignedInt", "Quantity",
}

// usageContextSuffixes is UsageContext.value[x]'s declared four-type list.
var usageContextSuffixes = []string{"CodeableConcept", "Quantity", "Range", "Reference"}

type hostSpec struct {
	base    string
	allowed map[string]bool
}

// hostRegistry is the fixed per-host-type allowed-type table spec.md §4.2
// calls for — each declared choice field paired with the base property name
// it dispatches on and the type-suffix allow-list enforced for it.
var hostRegistry = map[Field]hostSpec{
	FieldExtensionValue:           {base: "value", allowed: toSet(suffixes)},
	FieldUsageContextValue:        {base: "value", allowed: toSet(usageContextSuffixes)},
	FieldElementDefault:           {base: "defaultValue", allowed: toSet(suffixes)},
	FieldElementFixed:             {base: "fixed", allowed: toSet(suffixes)},
	FieldElementPattern:           {base: "pattern", allowed: toSet(suffixes)},
	FieldElementMinValue:          {base: "minValue", allowed: toSet(orderableSuffixes)},
	FieldElementMaxValue:          {base: "maxValue", allowed: toSet(orderableSuffixes)},
	FieldElementDefinitionExample: {base: "value", allowed: toSet(suffixes)},
}

// MultipleChoiceValuesError reports that more than one wire key matched the
// same choice-typed base simultaneously, e.g. both `valueString` and
// `valueBoolean` present alongside each other.
type MultipleChoiceValuesError struct {
	Base string
	Keys []string
}

func (e *MultipleChoiceValuesError) Error() string {
	return fmt.Sprintf("choice: multiple values for %q[x]: %s", e.Base, strings.Join(e.Keys, ", "))
}

// InvalidChoiceTypeError reports a wire key that looks like a choice-typed
// property (the base name followed by an uppercase-led suffix) but names a
// type not permitted for this host field — either unknown entirely, or
// known but excluded by a restricted allowed-type list (e.g. a
// `minValueCodeableConcept`, which is not orderable).
type InvalidChoiceTypeError struct {
	Base string
	Key  string
}

func (e *InvalidChoiceTypeError) Error() string {
	return fmt.Sprintf("choice: %q is not a valid type for %q[x]", e.Key, e.Base)
}

// Resolution is the outcome of dispatching one choice-typed host field
// against a raw wire object.
type Resolution struct {
	IsChoice bool
	// Base is the element's logical name, e.g. "value" for "valueString".
	Base string
	// TypeCode is the FHIR type code: lower-camel for primitives
	// ("boolean"), PascalCase for complex types ("CodeableConcept").
	TypeCode string
	// Path is the `[x]`-suffixed declared path, e.g. "value[x]".
	Path string
	// Key is the matched wire key, e.g. "valueQuantity".
	Key string
	// Extension is the sibling "_<key>" primitive-extension payload, when
	// present alongside the value key.
	Extension json.RawMessage
	// ConsumedKeys lists every raw object key this resolution accounted
	// for — the value key and, when present, its sibling extension key —
	// so the caller can detect leftover unrecognized properties.
	ConsumedKeys []string
}

// Dispatch resolves field against raw, per spec.md §4.2's fixed
// per-host-type registry. It never aborts: a MultipleChoiceValuesError
// still returns the first match as Resolution so parsing can continue, and
// an InvalidChoiceTypeError returns a zero Resolution so the caller can
// record the issue and move on to the next field.
func Dispatch(field Field, raw map[string]json.RawMessage) (Resolution, error) {
	spec, ok := hostRegistry[field]
	if !ok {
		return Resolution{}, fmt.Errorf("choice: unknown host field %q", field)
	}
	return dispatchBase(spec.base, spec.allowed, raw)
}

// MatchHostKey reports whether key is a valid value[x] wire key for field —
// i.e. it starts with field's declared base followed by a type suffix in
// field's allowed list — returning the resolved FHIRPath-facing type code.
// Unlike Dispatch, this takes a single candidate key rather than a whole
// wire object, for callers (like fhirpath's extension-value lookup) that
// walk an already-parsed object's keys one at a time.
func MatchHostKey(field Field, key string) (typeCode string, ok bool) {
	spec, known := hostRegistry[field]
	if !known || key == spec.base || !strings.HasPrefix(key, spec.base) {
		return "", false
	}
	suffix := key[len(spec.base):]
	if suffix == "" || suffix[0] < 'A' || suffix[0] > 'Z' {
		return "", false
	}
	resolvedSuffix, typeCode, matched := matchSuffixExact(suffix)
	if !matched || !spec.allowed[resolvedSuffix] {
		return "", false
	}
	return typeCode, true
}

func dispatchBase(base string, allowed map[string]bool, raw map[string]json.RawMessage) (Resolution, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type match struct {
		key, suffix, typeCode string
	}
	var matches []match
	var invalidKey string

	for _, key := range keys {
		if key == base || !strings.HasPrefix(key, base) {
			continue
		}
		suffix := key[len(base):]
		if suffix == "" || suffix[0] < 'A' || suffix[0] > 'Z' {
			continue
		}
		resolvedSuffix, typeCode, known := matchSuffixExact(suffix)
		if !known || !allowed[resolvedSuffix] {
			if invalidKey == "" {
				invalidKey = key
			}
			continue
		}
		matches = append(matches, match{key: key, suffix: resolvedSuffix, typeCode: typeCode})
	}

	if len(matches) == 0 {
		if invalidKey != "" {
			return Resolution{}, &InvalidChoiceTypeError{Base: base, Key: invalidKey}
		}
		return Resolution{}, nil
	}

	first := matches[0]
	res := Resolution{
		IsChoice:     true,
		Base:         base,
		TypeCode:     first.typeCode,
		Path:         base + "[x]",
		Key:          first.key,
		ConsumedKeys: []string{first.key},
	}
	if ext, ok := raw["_"+first.key]; ok {
		res.Extension = ext
		res.ConsumedKeys = append(res.ConsumedKeys, "_"+first.key)
	}

	if len(matches) > 1 {
		keys := make([]string, len(matches))
		for i, m := range matches {
			keys[i] = m.key
		}
		return res, &MultipleChoiceValuesError{Base: base, Keys: keys}
	}
	return res, nil
}

// matchSuffixExact matches s against a known FHIR type suffix in full (not
// merely as a prefix, unlike Resolve, since the caller already knows the
// exact base to strip), returning the canonical suffix name and its
// FHIRPath-facing type code.
func matchSuffixExact(s string) (suffix, typeCode string, ok bool) {
	for _, candidate := range suffixes {
		if candidate == s {
			if primitiveSet[candidate] {
				return candidate, lowerFirst(candidate), true
			}
			return candidate, candidate, true
		}
	}
	return "", "", false
}
