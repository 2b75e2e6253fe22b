package fhir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructureDefinition_Validate(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		sd := &StructureDefinition{}
		err := sd.Validate()
		require.Error(t, err)
	})

	t.Run("constraint without base", func(t *testing.T) {
		sd := &StructureDefinition{URL: "http://example.org/sd/foo", Derivation: DerivationConstraint}
		err := sd.Validate()
		require.Error(t, err)
		var invalid *InvalidStructureDefinitionError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("valid specialization", func(t *testing.T) {
		sd := &StructureDefinition{URL: "http://hl7.org/fhir/StructureDefinition/Patient", Derivation: DerivationSpecialization}
		assert.NoError(t, sd.Validate())
	})

	t.Run("valid constraint with base", func(t *testing.T) {
		sd := &StructureDefinition{
			URL:            "http://example.org/sd/my-patient",
			Derivation:     DerivationConstraint,
			BaseDefinition: "http://hl7.org/fhir/StructureDefinition/Patient",
		}
		assert.NoError(t, sd.Validate())
	})
}

func TestStructureDefinition_CanonicalKey(t *testing.T) {
	sd := &StructureDefinition{URL: "http://example.org/sd/foo"}
	assert.Equal(t, "http://example.org/sd/foo", sd.CanonicalKey())

	sd.Version = "1.0.0"
	assert.Equal(t, "http://example.org/sd/foo|1.0.0", sd.CanonicalKey())
}

func TestCompareMax(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "1", 0},
		{"1", "2", -1},
		{"2", "1", 1},
		{"1", "*", -1},
		{"*", "1", 1},
		{"*", "*", 0},
		{"0", "0", 0},
	}
	for _, tt := range tests {
		got, err := CompareMax(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "CompareMax(%q, %q)", tt.a, tt.b)
	}
}

func TestSlicing_CompatibleWith(t *testing.T) {
	base := Slicing{
		Discriminator: []Discriminator{{Type: "value", Path: "system"}},
		Rules:         RulesOpen,
	}

	t.Run("tighten rules is compatible", func(t *testing.T) {
		diff := base
		diff.Rules = RulesClosed
		assert.True(t, base.CompatibleWith(diff))
	})

	t.Run("loosen rules is incompatible", func(t *testing.T) {
		strictBase := base
		strictBase.Rules = RulesClosed
		diff := base
		diff.Rules = RulesOpen
		assert.False(t, strictBase.CompatibleWith(diff))
	})

	t.Run("adding a discriminator is compatible", func(t *testing.T) {
		diff := base
		diff.Discriminator = append(append([]Discriminator{}, base.Discriminator...), Discriminator{Type: "value", Path: "code"})
		assert.True(t, base.CompatibleWith(diff))
	})

	t.Run("dropping a discriminator is incompatible", func(t *testing.T) {
		diff := Slicing{Rules: RulesOpen}
		assert.False(t, base.CompatibleWith(diff))
	})

	t.Run("unordered base allows ordered diff, not vice versa", func(t *testing.T) {
		orderedBase := base
		orderedBase.Ordered = true
		diff := base
		diff.Ordered = false
		assert.False(t, orderedBase.CompatibleWith(diff))

		diff.Ordered = true
		assert.True(t, orderedBase.CompatibleWith(diff))
	})
}

func TestStrength_Weaker(t *testing.T) {
	assert.True(t, StrengthRequired.Weaker(StrengthExtensible))
	assert.False(t, StrengthExtensible.Weaker(StrengthRequired))
	assert.False(t, StrengthRequired.Weaker(StrengthRequired))
}

func TestElementDefinition_ChoiceTypeRoundTrip(t *testing.T) {
	in := `{
		"path": "Patient.deceased[x]",
		"min": 0,
		"max": "1",
		"fixedBoolean": false,
		"patternCodeableConcept": {"text": "example"}
	}`

	var e ElementDefinition
	require.NoError(t, json.Unmarshal([]byte(in), &e))

	assert.Equal(t, "boolean", e.FixedType)
	assert.JSONEq(t, "false", string(e.Fixed))
	assert.Equal(t, "CodeableConcept", e.PatternType)
	assert.JSONEq(t, `{"text":"example"}`, string(e.Pattern))

	out, err := json.Marshal(e)
	require.NoError(t, err)

	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTrip))
	assert.Equal(t, false, roundTrip["fixedBoolean"])
	assert.Equal(t, "example", roundTrip["patternCodeableConcept"].(map[string]any)["text"])
}

func TestElementDefinition_MinOf_DefaultsToZero(t *testing.T) {
	e := ElementDefinition{}
	assert.Equal(t, 0, e.MinOf())

	one := 1
	e.Min = &one
	assert.Equal(t, 1, e.MinOf())
}

func TestElementDefinition_IDOrPath(t *testing.T) {
	e := ElementDefinition{Path: "Patient.name"}
	assert.Equal(t, "Patient.name", e.IDOrPath())

	e.ID = "Patient.name:official"
	assert.Equal(t, "Patient.name:official", e.IDOrPath())
}
