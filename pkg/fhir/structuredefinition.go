package fhir

import (
	"encoding/json"
	"fmt"

	"github.com/fhirkit/conformance/pkg/common"
)

// Kind enumerates the FHIR StructureDefinition.kind values this core cares about.
type Kind string

const (
	KindPrimitiveType Kind = "primitive-type"
	KindComplexType   Kind = "complex-type"
	KindResource      Kind = "resource"
	KindLogical       Kind = "logical"
)

// Derivation enumerates StructureDefinition.derivation.
type Derivation string

const (
	DerivationSpecialization Derivation = "specialization"
	DerivationConstraint     Derivation = "constraint"
)

// Strength enumerates ElementDefinition.binding.strength.
type Strength string

const (
	StrengthRequired   Strength = "required"
	StrengthExtensible Strength = "extensible"
	StrengthPreferred  Strength = "preferred"
	StrengthExample    Strength = "example"
)

// strengthRank orders binding strengths from weakest to strongest, so that
// "MUST NOT weaken" can be expressed as a rank comparison.
var strengthRank = map[Strength]int{
	StrengthExample:    0,
	StrengthPreferred:  1,
	StrengthExtensible: 2,
	StrengthRequired:   3,
}

// Weaker reports whether candidate is a weaker binding strength than s.
// Unknown strengths rank the same as example, the lowest rank, so a
// malformed diff can never accidentally "strengthen" a binding.
func (s Strength) Weaker(candidate Strength) bool {
	return strengthRank[candidate] < strengthRank[s]
}

// SlicingRule enumerates ElementDefinition.slicing.rules.
type SlicingRule string

const (
	RulesClosed     SlicingRule = "closed"
	RulesOpen       SlicingRule = "open"
	RulesOpenAtEnd  SlicingRule = "openAtEnd"
)

// rulesRank orders slicing rules from loosest to tightest.
var rulesRank = map[SlicingRule]int{
	RulesOpen:      0,
	RulesOpenAtEnd: 1,
	RulesClosed:    2,
}

// TighterOrEqual reports whether candidate is at least as restrictive as r.
func (r SlicingRule) TighterOrEqual(candidate SlicingRule) bool {
	return rulesRank[candidate] >= rulesRank[r]
}

// StructureDefinition is a FHIR R4 conformance artifact: canonical URL,
// optional version, kind, derivation, and the snapshot/differential
// element lists. See spec.md §3.
type StructureDefinition struct {
	URL            string       `json:"url"`
	Version        string       `json:"version,omitempty"`
	Name           string       `json:"name,omitempty"`
	Kind           Kind         `json:"kind,omitempty"`
	Type           string       `json:"type,omitempty"`
	Abstract       bool         `json:"abstract,omitempty"`
	Derivation     Derivation   `json:"derivation,omitempty"`
	BaseDefinition string       `json:"baseDefinition,omitempty"`
	Snapshot       *ElementList `json:"snapshot,omitempty"`
	Differential   *ElementList `json:"differential,omitempty"`
}

// ElementList wraps an ordered list of ElementDefinitions, matching the
// FHIR JSON shape of both `snapshot` and `differential`.
type ElementList struct {
	Element []ElementDefinition `json:"element"`
}

// Validate checks the invariant from spec.md §3: a constraint profile must
// declare a base.
func (sd *StructureDefinition) Validate() error {
	if sd.URL == "" {
		return &InvalidStructureDefinitionError{Reason: "missing url"}
	}
	if sd.Derivation == DerivationConstraint && sd.BaseDefinition == "" {
		return &InvalidStructureDefinitionError{
			URL:    sd.URL,
			Reason: "derivation=constraint requires baseDefinition",
		}
	}
	return nil
}

// CanonicalKey returns the registry key for this definition: "url|version"
// when a version is present, otherwise the bare url.
func (sd *StructureDefinition) CanonicalKey() string {
	if sd.Version == "" {
		return sd.URL
	}
	return sd.URL + "|" + sd.Version
}

// ElementBase records the farthest-ancestor declaration path/cardinality
// for an element, per spec.md §4.3 Phase C "Base traceability".
type ElementBase struct {
	Path string `json:"path"`
	Min  int    `json:"min"`
	Max  string `json:"max"`
}

// Discriminator identifies which slice an instance element belongs to.
type Discriminator struct {
	Type string `json:"type"` // value | exists | pattern | type | profile
	Path string `json:"path"`
}

// Equal compares two discriminators by type+path, per spec.md §4.3
// "Discriminator equality".
func (d Discriminator) Equal(o Discriminator) bool {
	return d.Type == o.Type && d.Path == o.Path
}

// Slicing describes how a repeating element is sliced into named variants.
type Slicing struct {
	Discriminator []Discriminator `json:"discriminator,omitempty"`
	Description   string          `json:"description,omitempty"`
	Ordered       bool            `json:"ordered"`
	Rules         SlicingRule     `json:"rules"`
}

// CompatibleWith reports whether a diff's slicing root is a legal narrowing
// of base slicing, per spec.md §4.3 Phase D Case B: same discriminators in
// the same order, same-or-greater count, rules only tightened, ordered only
// tightened (false→true).
func (base Slicing) CompatibleWith(diff Slicing) bool {
	if len(diff.Discriminator) < len(base.Discriminator) {
		return false
	}
	for i, bd := range base.Discriminator {
		if !bd.Equal(diff.Discriminator[i]) {
			return false
		}
	}
	if !base.Rules.TighterOrEqual(diff.Rules) {
		return false
	}
	if base.Ordered && !diff.Ordered {
		return false
	}
	return true
}

// TypeRef is a single entry in ElementDefinition.type.
type TypeRef struct {
	Code          string   `json:"code"`
	Profile       []string `json:"profile,omitempty"`
	TargetProfile []string `json:"targetProfile,omitempty"`
	Aggregation   []string `json:"aggregation,omitempty"`
	Versioning    string   `json:"versioning,omitempty"`
}

// Binding is ElementDefinition.binding.
type Binding struct {
	Strength    Strength `json:"strength"`
	ValueSet    string   `json:"valueSet,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Constraint is a single ElementDefinition.constraint entry — a FHIRPath
// invariant.
type Constraint struct {
	Key          string `json:"key"`
	Severity     string `json:"severity"` // error | warning
	Human        string `json:"human"`
	Expression   string `json:"expression,omitempty"`
	Requirements string `json:"requirements,omitempty"`
	Source       string `json:"source,omitempty"`
}

// Example is an ElementDefinition.example entry: a label plus a choice-typed
// value[x] property, resolved against pkg/choice's
// ElementDefinitionExample.value host entry (the full FHIR type set).
type Example struct {
	Label     string `json:"label"`
	Value     json.RawMessage
	ValueType string
	// ValueIssue records a non-aborting MultipleChoiceValuesError or
	// InvalidChoiceTypeError raised while resolving Value, per spec.md §4.2.
	ValueIssue error
}

// Mapping is an ElementDefinition.mapping entry.
type Mapping struct {
	Identity string `json:"identity"`
	Language string `json:"language,omitempty"`
	Map      string `json:"map"`
	Comment  string `json:"comment,omitempty"`
}

// ElementDefinition addresses one node in a (snapshot or differential)
// element tree. See spec.md §3.
type ElementDefinition struct {
	ID               string       `json:"id,omitempty"`
	Path             string       `json:"path"`
	SliceName        string       `json:"sliceName,omitempty"`
	Slicing          *Slicing     `json:"slicing,omitempty"`
	Short            string       `json:"short,omitempty"`
	Definition       string       `json:"definition,omitempty"`
	Comment          string       `json:"comment,omitempty"`
	Requirements     string       `json:"requirements,omitempty"`
	Label            string       `json:"label,omitempty"`
	Alias            []string     `json:"alias,omitempty"`
	Min              *int         `json:"min,omitempty"`
	Max              string       `json:"max,omitempty"`
	Base             *ElementBase `json:"base,omitempty"`
	ContentReference string       `json:"contentReference,omitempty"`
	Type             []TypeRef    `json:"type,omitempty"`
	Binding          *Binding     `json:"binding,omitempty"`
	Constraint       []Constraint `json:"constraint,omitempty"`
	Mapping          []Mapping    `json:"mapping,omitempty"`
	MustSupport      *bool        `json:"mustSupport,omitempty"`
	IsModifier       *bool        `json:"isModifier,omitempty"`
	IsModifierReason string       `json:"isModifierReason,omitempty"`
	IsSummary        *bool        `json:"isSummary,omitempty"`
	MaxLength        *int         `json:"maxLength,omitempty"`
	Example          []Example    `json:"example,omitempty"`

	// Choice-typed value holders. Extracted by pkg/choice as *[x] suffixed
	// properties on the wire; kept here as raw JSON plus the resolved
	// suffix/type recorded during unmarshal by UnmarshalJSON.
	Fixed        json.RawMessage `json:"-"`
	FixedType    string          `json:"-"`
	Pattern      json.RawMessage `json:"-"`
	PatternType  string          `json:"-"`
	DefaultValue json.RawMessage `json:"-"`
	DefaultType  string          `json:"-"`
	MinValue     json.RawMessage `json:"-"`
	MinValueType string          `json:"-"`
	MaxValue     json.RawMessage `json:"-"`
	MaxValueType string          `json:"-"`

	// raw holds the original wire object so MarshalJSON can round-trip the
	// choice-typed fields and any sibling `_fixedBoolean`-style extensions
	// this struct doesn't model explicitly.
	raw map[string]json.RawMessage `json:"-"`

	// ChoiceIssues records non-aborting diagnostics pkg/choice.Dispatch
	// raised while resolving this element's choice-typed fields —
	// MultipleChoiceValuesError or InvalidChoiceTypeError — so a caller can
	// surface them as validation Issues without failing the parse.
	ChoiceIssues []error `json:"-"`
}

// MaxUnbounded is the sentinel `max` value for the "*" token.
const MaxUnbounded = -1

// MaxValueAsInt parses ElementDefinition.Max into an int, returning
// MaxUnbounded for "*". Per spec.md §3: "unbounded" compares greater than
// any integer.
func MaxValueAsInt(max string) (int, error) {
	if max == "" {
		return 0, fmt.Errorf("empty max")
	}
	if max == "*" {
		return MaxUnbounded, nil
	}
	var n int
	if _, err := fmt.Sscanf(max, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid max %q: %w", max, err)
	}
	return n, nil
}

// CompareMax compares two max cardinalities per spec.md §3/§4.3:
// "unbounded" > any integer; integers compare numerically. Returns -1, 0, 1.
func CompareMax(a, b string) (int, error) {
	ai, err := MaxValueAsInt(a)
	if err != nil {
		return 0, err
	}
	bi, err := MaxValueAsInt(b)
	if err != nil {
		return 0, err
	}
	switch {
	case ai == MaxUnbounded && bi == MaxUnbounded:
		return 0, nil
	case ai == MaxUnbounded:
		return 1, nil
	case bi == MaxUnbounded:
		return -1, nil
	case ai < bi:
		return -1, nil
	case ai > bi:
		return 1, nil
	default:
		return 0, nil
	}
}

// MinOf returns Min with the FHIR default of 0 when unset.
func (e *ElementDefinition) MinOf() int { return common.IntVal(e.Min) }

// MustSupportOf, IsModifierOf, IsSummaryOf return the flag with its FHIR
// default of false when unset.
func (e *ElementDefinition) MustSupportOf() bool { return common.BoolVal(e.MustSupport) }
func (e *ElementDefinition) IsModifierOf() bool  { return common.BoolVal(e.IsModifier) }
func (e *ElementDefinition) IsSummaryOf() bool   { return common.BoolVal(e.IsSummary) }

// DeclaredTypes returns the type codes from Type, satisfying
// pkg/choice.TypeDeclarer so ResolveAgainst/TypeAllowed can check a
// resolved choice-type suffix against this element's declared `type` list
// without pkg/choice importing pkg/fhir (that would cycle, since this
// package's JSON codec dispatches through pkg/choice.Dispatch).
func (e *ElementDefinition) DeclaredTypes() []string {
	if e == nil {
		return nil
	}
	codes := make([]string, len(e.Type))
	for i, t := range e.Type {
		codes[i] = t.Code
	}
	return codes
}

// IDOrPath returns ID, defaulting to Path per the Canonical Builder's rule.
func (e *ElementDefinition) IDOrPath() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Path
}
