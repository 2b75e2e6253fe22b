package snapshot

import (
	"strings"

	"github.com/fhirkit/conformance/pkg/fhir"
)

// defaultExtensionSlicing is the synthesized slicing block spec.md §4.3
// Phase D Case A specifies for `.extension`/`.modifierExtension` paths that
// introduce slicing without an explicit `slicing` block in the diff.
func defaultExtensionSlicing() *fhir.Slicing {
	return &fhir.Slicing{
		Discriminator: []fhir.Discriminator{{Type: "value", Path: "url"}},
		Rules:         fhir.RulesOpen,
		Ordered:       false,
	}
}

func isExtensionPath(path string) bool {
	return strings.HasSuffix(path, ".extension") || strings.HasSuffix(path, ".modifierExtension")
}

// walker holds the two indices and consumption bookkeeping for one
// generator run.
type walker struct {
	base      *elementIndex
	diff      *elementIndex
	templates map[string]*fhir.ElementDefinition
	consumed  map[string]bool
	result    *Result
}

// merge runs Phase B/C/D starting from the root and returns the flattened
// snapshot element list in definition order.
func merge(baseElements, diffElements []fhir.ElementDefinition, result *Result) []fhir.ElementDefinition {
	w := &walker{
		base:      buildIndex(baseElements),
		diff:      buildIndex(diffElements),
		templates: basePathTemplate(baseElements),
		consumed:  make(map[string]bool),
		result:    result,
	}

	out := w.mergeChildren("")
	w.reportUnconsumed()
	return out
}

// reportUnconsumed emits a DifferentialNotConsumed warning for every diff
// element never matched to a base family (spec.md §4.3 Phase B).
func (w *walker) reportUnconsumed() {
	for _, qid := range w.diff.order {
		if w.consumed[qid] {
			continue
		}
		e := w.diff.byID[qid]
		w.result.addWarning(CodeDifferentialNotConsumed, e.Path,
			"differential element was not matched to any base element")
	}
}

// mergeChildren merges every base family directly under parentQID with its
// diff counterpart, recursing into each family's own children. A diff
// family with no base family at the same path is not merged; its elements
// are left to reportUnconsumed.
func (w *walker) mergeChildren(parentQID string) []fhir.ElementDefinition {
	var out []fhir.ElementDefinition

	baseFamilies := families(w.base, w.base.children[parentQID])
	diffFamilyByPath := indexFamiliesByPath(families(w.diff, w.diff.children[parentQID]))

	seenPaths := map[string]bool{}
	for _, bf := range baseFamilies {
		seenPaths[bf.path] = true
		out = append(out, w.mergeFamily(bf, diffFamilyByPath[bf.path])...)
	}
	return out
}

func indexFamiliesByPath(fams []*family) map[string]*family {
	out := make(map[string]*family, len(fams))
	for _, f := range fams {
		out[f.path] = f
	}
	return out
}

// mergeFamily merges one base family (a primary element plus any existing
// slice siblings) against its diff counterpart, and recurses into every
// resulting element's own children.
func (w *walker) mergeFamily(bf *family, df *family) []fhir.ElementDefinition {
	var out []fhir.ElementDefinition

	var basePrimary, diffPrimary *fhir.ElementDefinition
	if bf.primaryID != "" {
		basePrimary = w.base.byID[bf.primaryID]
	}
	if df != nil && df.primaryID != "" {
		diffPrimary = w.diff.byID[df.primaryID]
		w.consumed[df.primaryID] = true
	}
	if basePrimary == nil {
		return nil // no unsliced root in base for this path: nothing to anchor the family to
	}

	merged := mergeElement(w.result, basePrimary, diffPrimary, false)

	hasBaseSlicing := basePrimary.Slicing != nil || len(bf.sliceIDs) > 0
	var diffSliceIDs []string
	if df != nil {
		diffSliceIDs = df.sliceIDs
	}

	switch {
	case !hasBaseSlicing && (len(diffSliceIDs) > 0 || (diffPrimary != nil && diffPrimary.Slicing != nil)):
		out = append(out, w.mergeNewSlicing(basePrimary, diffPrimary, merged, diffSliceIDs)...)
	case hasBaseSlicing:
		out = append(out, w.mergeExistingSlicing(bf, basePrimary, diffPrimary, merged, diffSliceIDs)...)
	default:
		out = append(out, *merged)
		out = append(out, w.mergeChildren(bf.primaryID)...)
	}
	return out
}

// mergeNewSlicing implements Phase D Case A.
func (w *walker) mergeNewSlicing(basePrimary, diffPrimary, merged *fhir.ElementDefinition, diffSliceIDs []string) []fhir.ElementDefinition {
	var slicing *fhir.Slicing
	switch {
	case diffPrimary != nil && diffPrimary.Slicing != nil:
		slicing = diffPrimary.Slicing
	case isExtensionPath(basePrimary.Path):
		slicing = defaultExtensionSlicing()
	default:
		w.result.addError(CodeSlicingError, basePrimary.Path,
			"new slice introduced without a slicing definition")
	}
	merged.Slicing = slicing

	out := []fhir.ElementDefinition{*merged}
	if slicing == nil {
		// No usable slicing root: surface the primary only, drop the
		// would-be slices (mirrors the closed-slicing rejection path).
		return out
	}

	for _, sliceQID := range diffSliceIDs {
		sliceDiff := w.diff.byID[sliceQID]
		w.consumed[sliceQID] = true
		sliceElem := cloneForNewSlice(w.result, basePrimary, sliceDiff)
		out = append(out, *sliceElem)
		out = append(out, w.mergeNewSliceChildren(basePrimary.Path, sliceQID)...)
	}
	return out
}

// mergeExistingSlicing implements Phase D Case B.
func (w *walker) mergeExistingSlicing(bf *family, basePrimary, diffPrimary, merged *fhir.ElementDefinition, diffSliceIDs []string) []fhir.ElementDefinition {
	baseSlicing := basePrimary.Slicing
	merged.Slicing = baseSlicing

	if diffPrimary != nil && diffPrimary.Slicing != nil && baseSlicing != nil {
		if baseSlicing.CompatibleWith(*diffPrimary.Slicing) {
			merged.Slicing = diffPrimary.Slicing
		} else {
			w.result.addError(CodeSlicingError, basePrimary.Path,
				"diff slicing definition is not a compatible narrowing of the base slicing")
		}
	}

	out := []fhir.ElementDefinition{*merged}

	diffSliceByName := map[string]string{} // sliceName -> diff qid
	for _, qid := range diffSliceIDs {
		diffSliceByName[w.diff.byID[qid].SliceName] = qid
	}
	baseSliceNames := map[string]bool{}

	for _, baseSliceQID := range bf.sliceIDs {
		baseSlice := w.base.byID[baseSliceQID]
		baseSliceNames[baseSlice.SliceName] = true

		var diffSlice *fhir.ElementDefinition
		if qid, ok := diffSliceByName[baseSlice.SliceName]; ok {
			diffSlice = w.diff.byID[qid]
			w.consumed[qid] = true
		}
		mergedSlice := mergeElement(w.result, baseSlice, diffSlice, true)
		out = append(out, *mergedSlice)
		out = append(out, w.mergeChildren(baseSliceQID)...)
	}

	for _, qid := range diffSliceIDs {
		name := w.diff.byID[qid].SliceName
		if baseSliceNames[name] {
			continue
		}
		w.consumed[qid] = true
		rules := fhir.RulesOpen
		if merged.Slicing != nil {
			rules = merged.Slicing.Rules
		}
		if rules == fhir.RulesClosed {
			w.result.addError(CodeSlicingError, basePrimary.Path,
				"cannot add new slice '"+name+"' to a closed slicing")
			continue
		}
		sliceDiff := w.diff.byID[qid]
		sliceElem := cloneForNewSlice(w.result, basePrimary, sliceDiff)
		out = append(out, *sliceElem)
		out = append(out, w.mergeNewSliceChildren(basePrimary.Path, qid)...)
	}

	return out
}

// mergeNewSliceChildren merges the diff-only children of a brand-new slice
// (one with no base counterpart), using the primary path's own base
// children as a cardinality/type template where one exists at the same
// relative path.
func (w *walker) mergeNewSliceChildren(primaryPath, sliceQID string) []fhir.ElementDefinition {
	childQIDs := w.diff.children[sliceQID]
	if len(childQIDs) == 0 {
		return nil
	}
	var out []fhir.ElementDefinition
	for _, qid := range childQIDs {
		diffChild := w.diff.byID[qid]
		w.consumed[qid] = true
		template := w.templates[diffChild.Path]
		if template == nil {
			template = diffChild
		}
		merged := mergeElement(w.result, template, diffChild, true)
		out = append(out, *merged)
	}
	return out
}
