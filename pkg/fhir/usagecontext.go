package fhir

import (
	"encoding/json"

	"github.com/fhirkit/conformance/pkg/choice"
)

// Coding is a single code+system pair, used wherever FHIR's CodeableConcept
// or bare Coding element shows up in conformance metadata (here: as
// UsageContext.code and as one of UsageContext.value[x]'s four permitted
// wire shapes).
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// UsageContext describes the applicable context a conformance resource (a
// StructureDefinition, ValueSet, etc.) was authored for — e.g. a particular
// workflow, jurisdiction, or clinical focus. Its value[x] is restricted to
// exactly four types, enforced via pkg/choice's UsageContext.value host
// entry (spec.md §4.2), unlike Extension.value's full FHIR type set.
type UsageContext struct {
	Code      Coding `json:"code"`
	Value     json.RawMessage
	ValueType string
	// ValueIssue records a non-aborting MultipleChoiceValuesError or
	// InvalidChoiceTypeError raised while resolving Value.
	ValueIssue error
}

type usageContextAlias struct {
	Code Coding `json:"code"`
}

// UnmarshalJSON decodes UsageContext.value[x], restricted to
// CodeableConcept, Quantity, Range, or Reference — any other suffix (e.g. a
// `valueString`) is recorded in ValueIssue rather than accepted.
func (u *UsageContext) UnmarshalJSON(data []byte) error {
	var alias usageContextAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	u.Code = alias.Code

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	res, err := choice.Dispatch(choice.FieldUsageContextValue, raw)
	if err != nil {
		u.ValueIssue = err
	}
	if res.IsChoice {
		u.Value, u.ValueType = raw[res.Key], res.TypeCode
	}
	return nil
}

// MarshalJSON reinstates UsageContext's `value<Type>` choice key from the
// resolved ValueType.
func (u UsageContext) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	code, err := json.Marshal(u.Code)
	if err != nil {
		return nil, err
	}
	merged["code"] = code
	addChoice(merged, "value", u.ValueType, u.Value)
	return json.Marshal(merged)
}
