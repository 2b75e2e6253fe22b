package canonical

// CanonicalProfile is the normalized, consumer-facing view of a snapshot:
// every CanonicalElement defaulted and lowered, addressable by id/path, in
// the same order the snapshot declared them (spec.md §4.4: "Map insertion
// order must equal snapshot element order").
type CanonicalProfile struct {
	URL            string
	Version        string
	Name           string
	Type           string
	Kind           string
	Derivation     string
	BaseDefinition string

	// OrderedElements is the id/path key sequence in snapshot order;
	// Elements is the lookup table. Kept as a parallel slice + map rather
	// than a single ordered-map type since Go has none built in.
	OrderedElements []string
	Elements        map[string]*CanonicalElement
}

// Get returns the element keyed by id (or path, for unsliced elements
// whose id was never set), or nil if absent.
func (p *CanonicalProfile) Get(idOrPath string) *CanonicalElement {
	return p.Elements[idOrPath]
}

// Len returns the number of elements, equivalently len(OrderedElements).
func (p *CanonicalProfile) Len() int {
	return len(p.OrderedElements)
}

// All iterates elements in snapshot order.
func (p *CanonicalProfile) All() []*CanonicalElement {
	out := make([]*CanonicalElement, 0, len(p.OrderedElements))
	for _, id := range p.OrderedElements {
		out = append(out, p.Elements[id])
	}
	return out
}

// CanonicalElement is one normalized snapshot element: every optional
// field given its FHIR default, every choice-typed or nested constraint
// lowered to a plain struct.
type CanonicalElement struct {
	ID        string // defaults to Path when the snapshot element had none
	Path      string
	SliceName string

	Min          int  // defaults to 0
	Max          string
	MaxUnbounded bool // true when Max == "*"

	MustSupport bool
	IsModifier  bool
	IsSummary   bool

	Short      string
	Definition string

	Types      []TypeConstraint
	Binding    *BindingConstraint
	Invariants []Invariant
	Slicing    *SlicingDefinition

	// Fixed/pattern values are carried through for pkg/validate's
	// instance-conformance checks; spec.md §4.4 does not lower these
	// (they pass through verbatim, the raw JSON produced by pkg/fhir's
	// choice-type unmarshaling).
	Fixed       []byte
	FixedType   string
	Pattern     []byte
	PatternType string
}

// TypeConstraint is ElementDefinition.type lowered: the FHIR type code,
// plus the profile/targetProfile URL lists an instance must conform to.
type TypeConstraint struct {
	Code           string
	Profiles       []string
	TargetProfiles []string
}

// BindingConstraint is ElementDefinition.binding lowered.
type BindingConstraint struct {
	Strength    string
	ValueSetURL string
	Description string
}

// Invariant is one ElementDefinition.constraint entry lowered into the
// shape pkg/validate's FHIRPath invariant checker consumes directly.
type Invariant struct {
	Key        string
	Severity   string
	Human      string
	Expression string
	Source     string
}

// SlicingDefinition is ElementDefinition.slicing lowered; Ordered is
// always defined (spec.md §4.4: "ordered always defined, default false"),
// never left as a zero-value ambiguity between "false" and "absent".
type SlicingDefinition struct {
	Discriminators []DiscriminatorDef
	Ordered        bool
	Rules          string
}

// DiscriminatorDef is one ElementDefinition.slicing.discriminator entry.
type DiscriminatorDef struct {
	Type string
	Path string
}
