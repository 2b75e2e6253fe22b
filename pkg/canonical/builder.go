package canonical

import (
	"strings"

	"github.com/fhirkit/conformance/pkg/fhir"
	"golang.org/x/exp/slices"
)

// Build walks sd's snapshot and produces a CanonicalProfile, per spec.md
// §4.4. sd must already carry a populated snapshot — generate one with
// pkg/snapshot first; Build never resolves a base chain itself.
func Build(sd *fhir.StructureDefinition) (*CanonicalProfile, error) {
	if sd.Snapshot == nil || len(sd.Snapshot.Element) == 0 {
		return nil, &NoSnapshotError{URL: sd.URL}
	}

	profile := &CanonicalProfile{
		URL:             sd.URL,
		Version:         sd.Version,
		Name:            sd.Name,
		Type:            sd.Type,
		Kind:            string(sd.Kind),
		Derivation:      string(sd.Derivation),
		BaseDefinition:  sd.BaseDefinition,
		OrderedElements: make([]string, 0, len(sd.Snapshot.Element)),
		Elements:        make(map[string]*CanonicalElement, len(sd.Snapshot.Element)),
	}

	for i := range sd.Snapshot.Element {
		ce := normalizeElement(&sd.Snapshot.Element[i])
		profile.OrderedElements = append(profile.OrderedElements, ce.ID)
		profile.Elements[ce.ID] = ce
	}
	return profile, nil
}

// normalizeElement applies spec.md §4.4's per-element defaulting/lowering
// rules to one snapshot ElementDefinition.
func normalizeElement(e *fhir.ElementDefinition) *CanonicalElement {
	ce := &CanonicalElement{
		ID:          e.IDOrPath(),
		Path:        e.Path,
		SliceName:   e.SliceName,
		Min:         e.MinOf(),
		Max:         maxOrDefault(e.Max),
		MustSupport: e.MustSupportOf(),
		IsModifier:  e.IsModifierOf(),
		IsSummary:   e.IsSummaryOf(),
		Short:       e.Short,
		Definition:  e.Definition,
		Fixed:       []byte(e.Fixed),
		FixedType:   e.FixedType,
		Pattern:     []byte(e.Pattern),
		PatternType: e.PatternType,
	}
	ce.MaxUnbounded = ce.Max == "*"

	for _, t := range e.Type {
		ce.Types = append(ce.Types, normalizeType(t))
	}
	if e.Binding != nil {
		ce.Binding = &BindingConstraint{
			Strength:    string(e.Binding.Strength),
			ValueSetURL: e.Binding.ValueSet,
			Description: e.Binding.Description,
		}
	}
	for _, c := range e.Constraint {
		ce.Invariants = append(ce.Invariants, Invariant{
			Key: c.Key, Severity: c.Severity, Human: c.Human,
			Expression: c.Expression, Source: c.Source,
		})
	}
	if e.Slicing != nil {
		sd := &SlicingDefinition{Ordered: e.Slicing.Ordered, Rules: string(e.Slicing.Rules)}
		for _, d := range e.Slicing.Discriminator {
			sd.Discriminators = append(sd.Discriminators, DiscriminatorDef{Type: d.Type, Path: d.Path})
		}
		ce.Slicing = sd
	}
	return ce
}

func maxOrDefault(max string) string {
	if max == "" {
		return "1"
	}
	return max
}

// normalizeType lowers one ElementDefinition.type entry, folding the
// legacy pre-R4 convention of a profile URL living directly in `code`
// (rather than in `profile`) into Profiles, per spec.md §4.4's "dropping
// FHIR-ism URIs".
func normalizeType(t fhir.TypeRef) TypeConstraint {
	code := t.Code
	profiles := append([]string{}, t.Profile...)

	if strings.Contains(code, "://") {
		if !slices.Contains(profiles, code) {
			profiles = append(profiles, code)
		}
		code = "Extension"
	}

	return TypeConstraint{
		Code:           code,
		Profiles:       profiles,
		TargetProfiles: append([]string{}, t.TargetProfile...),
	}
}
