package snapshot

import (
	"encoding/json"

	"github.com/fhirkit/conformance/pkg/common"
	"github.com/fhirkit/conformance/pkg/fhir"
)

// mergeElement applies Phase C (spec.md §4.3) to produce a snapshot element
// from a base element and its matched differential counterpart. diff may be
// nil, in which case the result is simply a clone of base. isSlice
// suppresses the CardinalityViolation emitted for a narrower min, since
// "slices may declare min=0 beneath a required base".
func mergeElement(result *Result, base, diff *fhir.ElementDefinition, isSlice bool) *fhir.ElementDefinition {
	merged := common.Clone(base)
	if diff == nil {
		return merged
	}

	mergeCardinality(result, merged, diff, isSlice)
	mergeTypes(result, merged, diff)
	mergeBinding(result, merged, diff)
	mergeConstraints(merged, diff)
	mergeDocumentation(merged, diff)
	mergeSummaryFlag(result, merged, diff)
	mergeNaturalKeyLists(merged, diff)
	mergeBaseTraceability(merged, base)

	if diff.SliceName != "" {
		merged.SliceName = diff.SliceName
	}
	return merged
}

func mergeCardinality(result *Result, merged, diff *fhir.ElementDefinition, isSlice bool) {
	if diff.Min != nil {
		if !isSlice && *diff.Min < merged.MinOf() {
			result.addError(CodeCardinalityViolation, merged.Path,
				"diff min is less than base min")
		}
		merged.Min = diff.Min
	}
	if diff.Max != "" {
		cmp, err := fhir.CompareMax(diff.Max, merged.Max)
		if err == nil && cmp > 0 {
			result.addError(CodeCardinalityViolation, merged.Path,
				"diff max is greater than base max")
		}
		merged.Max = diff.Max
	}
}

// typeCompatible implements spec.md §4.3's Types rule: diff.code equals any
// base.code, or base.code is "*" (wildcard) or "Resource" (any resource),
// or diff.code is "Extension", or the pair is the historical {string, uri}
// equivalence.
func typeCompatible(baseTypes []fhir.TypeRef, candidate fhir.TypeRef) bool {
	for _, bt := range baseTypes {
		switch {
		case bt.Code == candidate.Code:
			return true
		case bt.Code == "*":
			return true
		case bt.Code == "Resource":
			return true
		case candidate.Code == "Extension":
			return true
		case (bt.Code == "string" && candidate.Code == "uri") || (bt.Code == "uri" && candidate.Code == "string"):
			return true
		}
	}
	return false
}

func mergeTypes(result *Result, merged, diff *fhir.ElementDefinition) {
	if len(diff.Type) == 0 {
		return // inherit base, already present in merged via clone
	}
	var kept []fhir.TypeRef
	for _, dt := range diff.Type {
		if typeCompatible(merged.Type, dt) {
			kept = append(kept, dt)
		} else {
			result.addError(CodeTypeIncompatible, merged.Path,
				"diff type "+dt.Code+" is not compatible with base type list")
		}
	}
	merged.Type = kept
}

func mergeBinding(result *Result, merged, diff *fhir.ElementDefinition) {
	if diff.Binding == nil {
		return
	}
	if merged.Binding == nil {
		merged.Binding = diff.Binding
		return
	}
	if merged.Binding.Strength.Weaker(diff.Binding.Strength) {
		result.addError(CodeBindingViolation, merged.Path,
			"diff binding strength "+string(diff.Binding.Strength)+" weakens base strength "+string(merged.Binding.Strength))
	}
	merged.Binding = diff.Binding
}

func mergeConstraints(merged, diff *fhir.ElementDefinition) {
	if len(diff.Constraint) == 0 {
		return
	}
	byKey := map[string]int{}
	for i, c := range merged.Constraint {
		byKey[c.Key] = i
	}
	for _, c := range diff.Constraint {
		if i, ok := byKey[c.Key]; ok {
			merged.Constraint[i] = c
			continue
		}
		merged.Constraint = append(merged.Constraint, c)
		byKey[c.Key] = len(merged.Constraint) - 1
	}
}

// mergeDocumentation overwrites the documentation/value fields per
// spec.md §4.3's "Documentation & value fields" rule.
func mergeDocumentation(merged, diff *fhir.ElementDefinition) {
	if diff.Short != "" {
		merged.Short = diff.Short
	}
	if diff.Definition != "" {
		merged.Definition = diff.Definition
	}
	if diff.Comment != "" {
		merged.Comment = diff.Comment
	}
	if diff.Requirements != "" {
		merged.Requirements = diff.Requirements
	}
	if diff.Label != "" {
		merged.Label = diff.Label
	}
	if len(diff.Fixed) > 0 {
		merged.Fixed, merged.FixedType = diff.Fixed, diff.FixedType
	}
	if len(diff.Pattern) > 0 {
		merged.Pattern, merged.PatternType = diff.Pattern, diff.PatternType
	}
	if len(diff.Example) > 0 {
		merged.Example = diff.Example
	}
	if diff.MaxLength != nil {
		merged.MaxLength = diff.MaxLength
	}
	if diff.MustSupport != nil {
		merged.MustSupport = diff.MustSupport
	}
	if diff.IsModifier != nil {
		merged.IsModifier = diff.IsModifier
	}
	if diff.IsModifierReason != "" {
		merged.IsModifierReason = diff.IsModifierReason
	}
}

// mergeSummaryFlag implements the special rule: isSummary may be set when
// base omits it, but changing an already-set value is an InvalidConstraint
// and the base value wins.
func mergeSummaryFlag(result *Result, merged, diff *fhir.ElementDefinition) {
	if diff.IsSummary == nil {
		return
	}
	if merged.IsSummary == nil {
		merged.IsSummary = diff.IsSummary
		return
	}
	if *merged.IsSummary != *diff.IsSummary {
		result.addError(CodeInvalidConstraint, merged.Path,
			"diff attempts to change an already-set isSummary value")
		return
	}
	merged.IsSummary = diff.IsSummary
}

// mergeNaturalKeyLists unions alias/mapping as spec.md §4.3 describes:
// deduplicated by a natural key (the alias string, or the mapping
// identity), base entries first.
func mergeNaturalKeyLists(merged, diff *fhir.ElementDefinition) {
	if len(diff.Alias) > 0 {
		seen := map[string]bool{}
		var out []string
		for _, a := range merged.Alias {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
		for _, a := range diff.Alias {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
		merged.Alias = out
	}

	if len(diff.Mapping) > 0 {
		seen := map[string]int{}
		var out []fhir.Mapping
		for _, m := range merged.Mapping {
			seen[m.Identity] = len(out)
			out = append(out, m)
		}
		for _, m := range diff.Mapping {
			if i, ok := seen[m.Identity]; ok {
				out[i] = m
				continue
			}
			seen[m.Identity] = len(out)
			out = append(out, m)
		}
		merged.Mapping = out
	}
}

// mergeBaseTraceability populates element.base from the farthest ancestor:
// if the immediate base already carries .base, copy that; otherwise use
// the base's own path/min/max.
func mergeBaseTraceability(merged, base *fhir.ElementDefinition) {
	if base.Base != nil {
		cp := *base.Base
		merged.Base = &cp
		return
	}
	merged.Base = &fhir.ElementBase{Path: base.Path, Min: base.MinOf(), Max: base.Max}
}

// cloneForNewSlice builds a brand-new slice element from a template base
// element (the unsliced primary, or a path-matched fallback template) plus
// its diff definition — used for slices that have no direct base
// counterpart (Phase D, new slice on unsliced or open/openAtEnd base).
func cloneForNewSlice(result *Result, template, diff *fhir.ElementDefinition) *fhir.ElementDefinition {
	merged := mergeElement(result, template, diff, true)
	merged.Slicing = nil
	merged.SliceName = diff.SliceName
	return merged
}

// jsonEqual compares two json.RawMessage values structurally. No code in
// this package calls it.
func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	aj, _ := json.Marshal(av)
	bj, _ := json.Marshal(bv)
	return string(aj) == string(bj)
}
