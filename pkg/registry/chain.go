package registry

import (
	"context"

	"github.com/fhirkit/conformance/pkg/fhir"
)

// ResolveChain walks url's `baseDefinition` ancestry up to its root
// specialization, per spec.md §4.1/§4.3 Phase A: the result is ordered
// root-first (index 0 is the farthest ancestor, the last element is the
// definition named by url itself). A cycle (any URL revisited before
// reaching a specialization root) is reported as CircularDependencyError
// rather than looping forever.
//
// Results are memoized per url so the Snapshot Generator can call
// ResolveChain repeatedly without re-walking shared ancestry; the cache is
// invalidated by Register.
func (r *Registry) ResolveChain(ctx context.Context, url string) ([]*fhir.StructureDefinition, error) {
	r.mu.RLock()
	if r.disposed {
		r.mu.RUnlock()
		return nil, &DisposedError{}
	}
	if cached, ok := r.chainCache[url]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	sd, err := r.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var chain []*fhir.StructureDefinition
	seen := map[string]bool{sd.CanonicalKey(): true}
	visitOrder := []string{sd.CanonicalKey()}
	chain = append(chain, sd)

	current := sd
	for current.Derivation == fhir.DerivationConstraint && current.BaseDefinition != "" {
		base, err := r.Get(ctx, current.BaseDefinition)
		if err != nil {
			return nil, err
		}
		key := base.CanonicalKey()
		if seen[key] {
			visitOrder = append(visitOrder, key)
			return nil, &CircularDependencyError{Chain: visitOrder}
		}
		seen[key] = true
		visitOrder = append(visitOrder, key)
		chain = append(chain, base)
		current = base
	}

	// reverse to root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	r.mu.Lock()
	r.chainCache[url] = chain
	r.mu.Unlock()

	return chain, nil
}

// Ancestors is ResolveChain without the url's own definition — just its
// base chain, root-first.
func (r *Registry) Ancestors(ctx context.Context, url string) ([]*fhir.StructureDefinition, error) {
	chain, err := r.ResolveChain(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[:len(chain)-1], nil
}
