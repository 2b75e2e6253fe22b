package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fhirkit/conformance/pkg/common"
	"github.com/fhirkit/conformance/pkg/fhir"
)

// Loader produces StructureDefinitions to be registered. Implementations
// mirror the teacher's LoadFromFile/LoadFromBundle/LoadFromDirectory
// methods, factored out as a pluggable protocol per spec.md §4.1 rather
// than methods hung directly on Registry.
type Loader interface {
	Load(ctx context.Context) ([]*fhir.StructureDefinition, error)
}

// InMemoryLoader returns a fixed, pre-parsed slice of definitions. Used in
// tests and wherever definitions are already in memory (e.g. freshly
// generated by the Snapshot Generator itself).
type InMemoryLoader struct {
	Definitions []*fhir.StructureDefinition
}

// Load returns l.Definitions verbatim.
func (l *InMemoryLoader) Load(ctx context.Context) ([]*fhir.StructureDefinition, error) {
	return l.Definitions, nil
}

// FilesystemLoader reads every `*.json` file directly under Dir (non-
// recursive, matching the teacher's LoadFromDirectory/PackageLoader
// content-dir convention), parsing each as a single StructureDefinition or
// a Bundle of them.
type FilesystemLoader struct {
	Dir string
}

// Load walks Dir and parses every JSON file found.
func (l *FilesystemLoader) Load(ctx context.Context) ([]*fhir.StructureDefinition, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, common.WrapPath(l.Dir, err)
	}

	var out []*fhir.StructureDefinition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(l.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, common.WrapPath(path, err)
		}
		defs, err := parseJSON(data)
		if err != nil {
			return nil, common.WrapPath(path, err)
		}
		out = append(out, defs...)
	}
	return out, nil
}

// CompositeLoader tries each Loader in order and concatenates the
// definitions they return, keeping only the first definition for each
// canonical key. A failing loader aborts the composite load — callers that
// want best-effort loading across sources should wrap unreliable loaders
// with a Loader that swallows its own errors before placing them in a
// CompositeLoader.
type CompositeLoader struct {
	Loaders []Loader
}

// Load runs each loader in sequence, returning the concatenation of their
// results with later definitions of an already-seen canonical key dropped,
// so the first loader to define a key wins — order Loaders from most to
// least authoritative.
func (l *CompositeLoader) Load(ctx context.Context) ([]*fhir.StructureDefinition, error) {
	var out []*fhir.StructureDefinition
	seen := map[string]bool{}
	for _, sub := range l.Loaders {
		defs, err := sub.Load(ctx)
		if err != nil {
			return nil, err
		}
		for _, sd := range defs {
			if sd != nil {
				if seen[sd.CanonicalKey()] {
					continue
				}
				seen[sd.CanonicalKey()] = true
			}
			out = append(out, sd)
		}
	}
	return out, nil
}

// parseJSON auto-detects a single StructureDefinition vs. a Bundle of them,
// per the teacher's LoadFromJSON.
func parseJSON(data []byte) ([]*fhir.StructureDefinition, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidJSON, err)
	}

	switch probe.ResourceType {
	case "Bundle":
		return parseBundle(data)
	case "StructureDefinition":
		var sd fhir.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrUnmarshalFailed, err)
		}
		return []*fhir.StructureDefinition{&sd}, nil
	default:
		return nil, fmt.Errorf("unsupported resourceType: %s", probe.ResourceType)
	}
}

// parseBundle extracts StructureDefinition entries from a FHIR Bundle,
// skipping any entry that fails to parse (malformed entries are not fatal
// to the rest of the bundle).
func parseBundle(data []byte) ([]*fhir.StructureDefinition, error) {
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidJSON, err)
	}

	var out []*fhir.StructureDefinition
	for _, entry := range bundle.Entry {
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil || probe.ResourceType != "StructureDefinition" {
			continue
		}
		var sd fhir.StructureDefinition
		if err := json.Unmarshal(entry.Resource, &sd); err != nil {
			continue
		}
		out = append(out, &sd)
	}
	return out, nil
}
