// Package registry implements the Context/Registry described in spec.md
// §4.1: a thread-safe store of StructureDefinitions keyed by canonical
// "url|version" (with a "latest" fallback when only one version is
// registered, or when the caller omits a version), plus inheritance-chain
// resolution with cycle detection.
//
// Grounded on the teacher's pkg/validator/registry.go (sync.RWMutex-guarded
// byURL/byType maps, Register/Get/List/Size shape) generalized from
// validator-internal StructureDef/ElementDef to the shared pkg/fhir model,
// and on pkg/validator/interfaces.go's StructureDefinitionProvider
// interface, which this Registry implements.
package registry

import (
	"context"
	"sync"

	"github.com/fhirkit/conformance/pkg/fhir"
)

// Provider is the read-only interface the Snapshot Generator and Canonical
// Builder depend on — mirrors the teacher's StructureDefinitionProvider.
type Provider interface {
	Get(ctx context.Context, url string) (*fhir.StructureDefinition, error)
	GetVersion(ctx context.Context, url, version string) (*fhir.StructureDefinition, error)
	List(ctx context.Context) ([]string, error)
}

// Registry is a Provider that additionally supports registration, bulk
// loading via Loader, and inheritance-chain resolution.
type Registry struct {
	mu sync.RWMutex

	// byKey indexes every registered definition by its full "url|version"
	// canonical key (CanonicalKey()).
	byKey map[string]*fhir.StructureDefinition

	// byURL indexes all versions registered under a bare url, most recently
	// registered last, so "latest" can resolve deterministically.
	byURL map[string][]*fhir.StructureDefinition

	// chainCache memoizes ResolveChain results; invalidated whenever
	// Register adds a definition that could be part of an existing chain.
	chainCache map[string][]*fhir.StructureDefinition

	// disposed is set by Dispose; every operation after that fails with
	// DisposedError.
	disposed bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byKey:      make(map[string]*fhir.StructureDefinition),
		byURL:      make(map[string][]*fhir.StructureDefinition),
		chainCache: make(map[string][]*fhir.StructureDefinition),
	}
}

// Register adds sd to the registry, indexing it by its canonical key and
// by its bare URL. Re-registering the same key overwrites it and
// invalidates any cached inheritance chain (a profile's base may change
// between package loads).
func (r *Registry) Register(sd *fhir.StructureDefinition) error {
	if sd == nil {
		return &ResourceNotFoundError{Key: ""}
	}
	if err := sd.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return &DisposedError{}
	}

	r.byKey[sd.CanonicalKey()] = sd
	r.byURL[sd.URL] = append(r.byURL[sd.URL], sd)
	r.chainCache = make(map[string][]*fhir.StructureDefinition)
	return nil
}

// Get resolves url, preferring an exact "url|version" match when url
// already embeds a version (separated by "|"), otherwise falling back to
// the most recently registered ("latest") version under that bare URL.
func (r *Registry) Get(ctx context.Context, url string) (*fhir.StructureDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.disposed {
		return nil, &DisposedError{}
	}

	if sd, ok := r.byKey[url]; ok {
		return sd, nil
	}
	if versions := r.byURL[url]; len(versions) > 0 {
		return versions[len(versions)-1], nil
	}
	return nil, &ResourceNotFoundError{Key: url}
}

// GetVersion resolves an explicit url+version pair. An empty version
// behaves like Get.
func (r *Registry) GetVersion(ctx context.Context, url, version string) (*fhir.StructureDefinition, error) {
	if version == "" {
		return r.Get(ctx, url)
	}
	key := url + "|" + version
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.disposed {
		return nil, &DisposedError{}
	}
	if sd, ok := r.byKey[key]; ok {
		return sd, nil
	}
	return nil, &ResourceNotFoundError{Key: key}
}

// List returns every registered canonical key.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.disposed {
		return nil, &DisposedError{}
	}

	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	return keys, nil
}

// Size returns the number of registered StructureDefinitions, or 0 once
// disposed.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Disposed reports whether Dispose has been called.
func (r *Registry) Disposed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disposed
}

// Load runs l.Load and registers every returned StructureDefinition,
// per spec.md §4.1's loader protocol. Returns the count successfully
// registered; a single malformed definition does not abort the rest.
func (r *Registry) Load(ctx context.Context, l Loader) (int, error) {
	r.mu.RLock()
	disposed := r.disposed
	r.mu.RUnlock()
	if disposed {
		return 0, &DisposedError{}
	}

	defs, err := l.Load(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, sd := range defs {
		if err := r.Register(sd); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// Delete removes a single versioned key from the registry. An empty
// version deletes the bare, unversioned key. If the removed definition was
// the most recently registered ("latest") one under its bare URL, the
// latest index now points at whichever remains most recently registered —
// or is cleared entirely if none remain, per spec.md §4.1.
func (r *Registry) Delete(url, version string) error {
	key := url
	if version != "" {
		key = url + "|" + version
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return &DisposedError{}
	}

	sd, ok := r.byKey[key]
	if !ok {
		return &ResourceNotFoundError{Key: key}
	}
	delete(r.byKey, key)

	versions := r.byURL[sd.URL]
	for i, candidate := range versions {
		if candidate == sd {
			versions = append(versions[:i], versions[i+1:]...)
			break
		}
	}
	if len(versions) == 0 {
		delete(r.byURL, sd.URL)
	} else {
		r.byURL[sd.URL] = versions
	}

	r.chainCache = make(map[string][]*fhir.StructureDefinition)
	return nil
}

// Dispose permanently empties the Registry. Every subsequent operation
// that returns an error — Register, Get, GetVersion, List, Load, Delete,
// ResolveChain, Ancestors, and Dispose itself — returns DisposedError;
// Size, which has no error result, returns 0.
func (r *Registry) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return &DisposedError{}
	}

	r.disposed = true
	r.byKey = nil
	r.byURL = nil
	r.chainCache = nil
	return nil
}
