package canonical

import (
	"testing"

	"github.com/fhirkit/conformance/pkg/common"
	"github.com/fhirkit/conformance/pkg/fhir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_NoSnapshot(t *testing.T) {
	sd := &fhir.StructureDefinition{URL: "http://example.org/sd/empty"}
	_, err := Build(sd)
	require.Error(t, err)
	assert.IsType(t, &NoSnapshotError{}, err)

	sd2 := &fhir.StructureDefinition{URL: "http://example.org/sd/empty2", Snapshot: &fhir.ElementList{}}
	_, err = Build(sd2)
	require.Error(t, err)
}

func TestBuild_DefaultsAndOrder(t *testing.T) {
	sd := &fhir.StructureDefinition{
		URL:  "http://example.org/sd/patient-lite",
		Name: "PatientLite",
		Type: "Patient",
		Kind: fhir.KindResource,
		Snapshot: &fhir.ElementList{Element: []fhir.ElementDefinition{
			{Path: "Patient"},
			{Path: "Patient.identifier", Max: "*"},
			{Path: "Patient.active", Min: common.Int(1), Max: "1", MustSupport: common.Bool(true)},
		}},
	}

	profile, err := Build(sd)
	require.NoError(t, err)
	require.Equal(t, 3, profile.Len())
	assert.Equal(t, []string{"Patient", "Patient.identifier", "Patient.active"}, profile.OrderedElements)

	root := profile.Get("Patient")
	require.NotNil(t, root)
	assert.Equal(t, 0, root.Min)
	assert.Equal(t, "1", root.Max) // missing max defaults to 1
	assert.False(t, root.MaxUnbounded)
	assert.False(t, root.MustSupport)

	identifier := profile.Get("Patient.identifier")
	require.NotNil(t, identifier)
	assert.True(t, identifier.MaxUnbounded)

	active := profile.Get("Patient.active")
	require.NotNil(t, active)
	assert.Equal(t, 1, active.Min)
	assert.True(t, active.MustSupport)
}

func TestBuild_SliceKeyedByID(t *testing.T) {
	sd := &fhir.StructureDefinition{
		URL:  "http://example.org/sd/sliced",
		Type: "Patient",
		Snapshot: &fhir.ElementList{Element: []fhir.ElementDefinition{
			{Path: "Patient.identifier", Slicing: &fhir.Slicing{
				Discriminator: []fhir.Discriminator{{Type: "value", Path: "system"}},
				Rules:         fhir.RulesOpen,
			}},
			{ID: "Patient.identifier:MRN", Path: "Patient.identifier", SliceName: "MRN"},
		}},
	}

	profile, err := Build(sd)
	require.NoError(t, err)

	root := profile.Get("Patient.identifier")
	require.NotNil(t, root)
	require.NotNil(t, root.Slicing)
	assert.Equal(t, "open", root.Slicing.Rules)
	require.Len(t, root.Slicing.Discriminators, 1)
	assert.Equal(t, "system", root.Slicing.Discriminators[0].Path)

	slice := profile.Get("Patient.identifier:MRN")
	require.NotNil(t, slice)
	assert.Equal(t, "MRN", slice.SliceName)
}

func TestBuild_TypeBindingInvariantLowering(t *testing.T) {
	sd := &fhir.StructureDefinition{
		URL:  "http://example.org/sd/value-element",
		Type: "Patient",
		Snapshot: &fhir.ElementList{Element: []fhir.ElementDefinition{
			{
				Path: "Patient.value",
				Type: []fhir.TypeRef{
					{Code: "Quantity"},
					{Code: "http://example.org/StructureDefinition/custom-extension"},
				},
				Binding: &fhir.Binding{Strength: fhir.StrengthRequired, ValueSet: "http://example.org/vs/units"},
				Constraint: []fhir.Constraint{
					{Key: "val-1", Severity: "error", Human: "must have a unit", Expression: "unit.exists()"},
				},
			},
		}},
	}

	profile, err := Build(sd)
	require.NoError(t, err)

	el := profile.Get("Patient.value")
	require.NotNil(t, el)
	require.Len(t, el.Types, 2)
	assert.Equal(t, "Quantity", el.Types[0].Code)
	assert.Equal(t, "Extension", el.Types[1].Code)
	assert.Equal(t, []string{"http://example.org/StructureDefinition/custom-extension"}, el.Types[1].Profiles)

	require.NotNil(t, el.Binding)
	assert.Equal(t, "required", el.Binding.Strength)
	assert.Equal(t, "http://example.org/vs/units", el.Binding.ValueSetURL)

	require.Len(t, el.Invariants, 1)
	assert.Equal(t, "val-1", el.Invariants[0].Key)
	assert.Equal(t, "unit.exists()", el.Invariants[0].Expression)
}
