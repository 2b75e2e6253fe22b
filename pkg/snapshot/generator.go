package snapshot

import (
	"context"
	"fmt"

	"github.com/fhirkit/conformance/pkg/common"
	"github.com/fhirkit/conformance/pkg/fhir"
)

// Resolver is the subset of registry.Provider the generator needs to walk
// a profile's base chain. Declared locally (rather than importing
// pkg/registry's concrete type) so the generator only depends on the
// capability it actually uses.
type Resolver interface {
	Get(ctx context.Context, url string) (*fhir.StructureDefinition, error)
}

// Generator produces snapshots by resolving bases through a Resolver.
type Generator struct {
	Resolver Resolver
}

// New creates a Generator backed by resolver (typically a *registry.Registry).
func New(resolver Resolver) *Generator {
	return &Generator{Resolver: resolver}
}

// Generate populates sd's snapshot, returning a new StructureDefinition
// (sd is never mutated) and a Result describing every accumulated issue.
// The returned error is always nil: an unresolvable base chain is reported
// as a BaseNotFound Issue, like every other failure mode, in the returned
// Result.
func (g *Generator) Generate(ctx context.Context, sd *fhir.StructureDefinition) (*fhir.StructureDefinition, *Result, error) {
	result := &Result{Success: true}
	working := common.Clone(sd)

	if working.BaseDefinition == "" {
		if working.Snapshot != nil && len(working.Snapshot.Element) > 0 {
			return working, result, nil
		}
		result.addError(CodeBaseNotFound, working.URL, "no baseDefinition and no pre-existing snapshot")
		return working, result, nil
	}

	baseSD, err := g.resolveWithSnapshot(ctx, working.BaseDefinition, map[string]bool{working.URL: true})
	if err != nil {
		result.addError(CodeBaseNotFound, working.URL, err.Error())
		return working, result, nil
	}
	baseElements := baseSD.Snapshot.Element

	if working.Differential == nil || len(working.Differential.Element) == 0 {
		working.Snapshot = &fhir.ElementList{Element: common.CloneSlice(baseElements)}
		return working, result, nil
	}

	merged := merge(baseElements, working.Differential.Element, result)
	working.Snapshot = &fhir.ElementList{Element: merged}
	return working, result, nil
}

// resolveWithSnapshot returns a StructureDefinition guaranteed to carry a
// populated snapshot, recursively generating one from its own base when
// necessary (spec.md §4.3 Phase A). visiting guards against a base cycle
// that ResolveChain would otherwise catch at the registry level; here it
// protects Generate itself when called directly against an un-registered
// ancestor chain.
func (g *Generator) resolveWithSnapshot(ctx context.Context, url string, visiting map[string]bool) (*fhir.StructureDefinition, error) {
	sd, err := g.Resolver.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("resolving base %q: %w", url, err)
	}
	if sd.Snapshot != nil && len(sd.Snapshot.Element) > 0 {
		return sd, nil
	}
	if sd.BaseDefinition == "" {
		return nil, fmt.Errorf("%q has neither a snapshot nor a baseDefinition", url)
	}
	if visiting[url] {
		return nil, fmt.Errorf("circular baseDefinition chain at %q", url)
	}
	visiting[url] = true

	base, err := g.resolveWithSnapshot(ctx, sd.BaseDefinition, visiting)
	if err != nil {
		return nil, err
	}

	result := &Result{Success: true}
	var merged []fhir.ElementDefinition
	if sd.Differential == nil || len(sd.Differential.Element) == 0 {
		merged = common.CloneSlice(base.Snapshot.Element)
	} else {
		merged = merge(base.Snapshot.Element, sd.Differential.Element, result)
	}

	clone := common.Clone(sd)
	clone.Snapshot = &fhir.ElementList{Element: merged}
	return clone, nil
}
