package snapshot

import (
	"strings"

	"github.com/fhirkit/conformance/pkg/fhir"
)

// qualifiedID returns the element's effective id: its explicit ID when set,
// else its Path qualified with ":<sliceName>" when it is a slice, else its
// bare Path. This mirrors the real FHIR convention (`Patient.identifier:MRN`)
// and is what the merge tree is keyed and nested by (spec.md §3: "an id
// that usually equals path but may carry slice qualifiers").
func qualifiedID(e *fhir.ElementDefinition) string {
	if e.ID != "" {
		return e.ID
	}
	if e.SliceName != "" {
		return e.Path + ":" + e.SliceName
	}
	return e.Path
}

// parentQID returns the qualified id of qid's structural parent, found by
// dropping qid's last dot-delimited segment — which, because a slice
// qualifier is embedded mid-segment ("identifier:MRN"), naturally places
// slice siblings under the same parent as their unsliced root.
func parentQID(qid string) string {
	idx := strings.LastIndex(qid, ".")
	if idx < 0 {
		return ""
	}
	return qid[:idx]
}

// elementIndex is a lookup/grouping structure built once per element list
// (base or diff): every element keyed by its qualifiedID, and every
// element's qid appended to its parent's child list in list order.
type elementIndex struct {
	byID     map[string]*fhir.ElementDefinition
	children map[string][]string // parentQID -> ordered child qids
	order    []string            // all qids, in list order
}

func buildIndex(elements []fhir.ElementDefinition) *elementIndex {
	idx := &elementIndex{
		byID:     make(map[string]*fhir.ElementDefinition, len(elements)),
		children: make(map[string][]string),
	}
	for i := range elements {
		e := &elements[i]
		qid := qualifiedID(e)
		idx.byID[qid] = e
		idx.order = append(idx.order, qid)
		parent := parentQID(qid)
		idx.children[parent] = append(idx.children[parent], qid)
	}
	return idx
}

// family groups a primary (unsliced) element with its slice siblings, all
// sharing the same Path and the same structural parent.
type family struct {
	path      string
	primaryID string // "" if the family has no unsliced root (slices only)
	sliceIDs  []string
}

// families groups childQIDs (as returned by elementIndex.children[parent])
// into an ordered list of families, first-occurrence order by Path.
func families(idx *elementIndex, childQIDs []string) []*family {
	var order []string
	byPath := map[string]*family{}
	for _, qid := range childQIDs {
		e := idx.byID[qid]
		f, ok := byPath[e.Path]
		if !ok {
			f = &family{path: e.Path}
			byPath[e.Path] = f
			order = append(order, e.Path)
		}
		if e.SliceName == "" {
			f.primaryID = qid
		} else {
			f.sliceIDs = append(f.sliceIDs, qid)
		}
	}
	out := make([]*family, 0, len(order))
	for _, p := range order {
		out = append(out, byPath[p])
	}
	return out
}

// basePathTemplate returns, for each distinct Path among elements, the
// first (primary, preferably unsliced) element found at that path — used
// as a cardinality/type template for brand-new slice children that have no
// direct base counterpart.
func basePathTemplate(elements []fhir.ElementDefinition) map[string]*fhir.ElementDefinition {
	out := make(map[string]*fhir.ElementDefinition)
	for i := range elements {
		e := &elements[i]
		if existing, ok := out[e.Path]; !ok || (existing.SliceName != "" && e.SliceName == "") {
			out[e.Path] = e
		}
	}
	return out
}
