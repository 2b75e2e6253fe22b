package fhir

import (
	"encoding/json"
	"strings"

	"github.com/fhirkit/conformance/pkg/choice"
)

// elementDefinitionAlias has the same shape as ElementDefinition but none of
// its methods, used to unmarshal the fixed-shape fields without recursing.
type elementDefinitionAlias ElementDefinition

// choiceFields lists ElementDefinition's five declared choice-typed
// properties against the pkg/choice host entry that carries their allowed
// wire-type list — minValue/maxValue are restricted to the orderable set,
// the rest accept the full FHIR type set. Per spec.md §4.2 this registry is
// fixed, not inferred from the wire payload.
var choiceFields = []struct {
	field choice.Field
	set   func(e *ElementDefinition, value json.RawMessage, typ string)
}{
	{choice.FieldElementFixed, func(e *ElementDefinition, value json.RawMessage, typ string) {
		e.Fixed, e.FixedType = value, typ
	}},
	{choice.FieldElementPattern, func(e *ElementDefinition, value json.RawMessage, typ string) {
		e.Pattern, e.PatternType = value, typ
	}},
	{choice.FieldElementDefault, func(e *ElementDefinition, value json.RawMessage, typ string) {
		e.DefaultValue, e.DefaultType = value, typ
	}},
	{choice.FieldElementMinValue, func(e *ElementDefinition, value json.RawMessage, typ string) {
		e.MinValue, e.MinValueType = value, typ
	}},
	{choice.FieldElementMaxValue, func(e *ElementDefinition, value json.RawMessage, typ string) {
		e.MaxValue, e.MaxValueType = value, typ
	}},
}

// UnmarshalJSON decodes the fixed-shape fields normally, then dispatches
// each of ElementDefinition's five declared choice-typed properties against
// pkg/choice's fixed host registry (spec.md §4.2). A MultipleChoiceValues or
// InvalidChoiceType condition does not abort the parse — it is recorded in
// ChoiceIssues for the caller to surface as a validation Issue.
func (e *ElementDefinition) UnmarshalJSON(data []byte) error {
	var alias elementDefinitionAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*e = ElementDefinition(alias)

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.raw = raw

	for _, cf := range choiceFields {
		res, err := choice.Dispatch(cf.field, raw)
		if err != nil {
			e.ChoiceIssues = append(e.ChoiceIssues, err)
		}
		if res.IsChoice {
			cf.set(e, raw[res.Key], res.TypeCode)
		}
	}
	return nil
}

// MarshalJSON re-encodes the fixed-shape fields, reinstates the
// `<prefix><Type>` choice keys from the resolved raw value, and carries
// through any sibling `_<key>` extension objects from the parsed wire
// object. Other properties the struct does not model are not written.
func (e ElementDefinition) MarshalJSON() ([]byte, error) {
	alias := elementDefinitionAlias(e)
	base, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}

	addChoice(merged, "fixed", e.FixedType, e.Fixed)
	addChoice(merged, "pattern", e.PatternType, e.Pattern)
	addChoice(merged, "defaultValue", e.DefaultType, e.DefaultValue)
	addChoice(merged, "minValue", e.MinValueType, e.MinValue)
	addChoice(merged, "maxValue", e.MaxValueType, e.MaxValue)

	for k, v := range e.raw {
		if _, ok := merged[k]; !ok && strings.HasPrefix(k, "_") {
			merged[k] = v
		}
	}

	return json.Marshal(merged)
}

func addChoice(dst map[string]json.RawMessage, prefix, typ string, value json.RawMessage) {
	if typ == "" || len(value) == 0 {
		return
	}
	dst[prefix+upperFirst(typ)] = value
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// exampleAlias has Example's Label field only, so UnmarshalJSON can decode
// it without recursing into the choice-typed Value.
type exampleAlias struct {
	Label string `json:"label"`
}

// UnmarshalJSON decodes Example.value[x] (e.g. `valueString`,
// `valueQuantity`) against pkg/choice's ElementDefinitionExample.value host
// entry (spec.md §4.2), recording both the raw value and its resolved FHIR
// type.
func (ex *Example) UnmarshalJSON(data []byte) error {
	var alias exampleAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	ex.Label = alias.Label

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	res, err := choice.Dispatch(choice.FieldElementDefinitionExample, raw)
	if err != nil {
		ex.ValueIssue = err
	}
	if res.IsChoice {
		ex.Value, ex.ValueType = raw[res.Key], res.TypeCode
	}
	return nil
}

// MarshalJSON reinstates Example's `value<Type>` choice key from the
// resolved ValueType.
func (ex Example) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	label, err := json.Marshal(ex.Label)
	if err != nil {
		return nil, err
	}
	merged["label"] = label
	addChoice(merged, "value", ex.ValueType, ex.Value)
	return json.Marshal(merged)
}
