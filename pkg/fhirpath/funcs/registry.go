// Package funcs provides FHIRPath function implementations.
package funcs

import (
	"sync"

	"github.com/fhirkit/conformance/pkg/fhirpath/eval"
)

// FuncDef is an alias for eval.FuncDef.
type FuncDef = eval.FuncDef

// Registry holds registered functions.
type Registry struct {
	funcs map[string]eval.FuncDef
	mu    sync.RWMutex
}

// NewRegistry creates a new, empty function registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]eval.FuncDef),
	}
}

// Register adds a function to the registry.
func (r *Registry) Register(def eval.FuncDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[def.Name] = def
}

// Get retrieves a function by name.
func (r *Registry) Get(name string) (eval.FuncDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has checks if a function exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// List returns all registered function names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// registrars lists every function family's registration function, in a
// fixed order. BuildRegistry calls each exactly once. Adding a new function
// family means adding one entry here — not a new init() in a new file.
var registrars = []func(*Registry){
	registerExistenceFuncs,
	registerFilteringFuncs,
	registerSubsettingFuncs,
	registerAggregateFuncs,
	registerStringsFuncs,
	registerMathFuncs,
	registerTemporalFuncs,
	registerConversionFuncs,
	registerTypecheckingFuncs,
	registerUtilityFuncs,
	registerFHIRFuncs,
}

// BuildRegistry constructs a fully populated function registry in one
// deterministic pass. This replaces a previous design where each function
// family registered itself into a package-level mutable global via its own
// init(), scattered across eleven files with registration order left to the
// Go runtime's package-initialization ordering. Here the dispatch table is
// built fresh, once, from an explicit, ordered list of registrar functions —
// no mutable global accumulates registrations as a side effect of importing
// a file.
func BuildRegistry() *Registry {
	r := NewRegistry()
	for _, register := range registrars {
		register(r)
	}
	return r
}

// defaultRegistry is built exactly once, the first time any of Get/Has/List
// below is called, from BuildRegistry's fixed dispatch table. Unlike the
// previous design, nothing ever calls Register on it afterward — these
// package-level functions are read-only convenience wrappers (used
// extensively by this package's own tests) over a table that is fixed at
// construction, not accumulated into over a program's lifetime.
var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

func defaultFuncRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = BuildRegistry()
	})
	return defaultRegistry
}

// DefaultRegistry returns the package's lazily-built, never-mutated-after
// default function registry — the table every Expression evaluates
// against unless the caller supplies its own.
func DefaultRegistry() *Registry {
	return defaultFuncRegistry()
}

// Get retrieves a function by name from the default registry.
func Get(name string) (eval.FuncDef, bool) {
	return defaultFuncRegistry().Get(name)
}

// Has reports whether name is registered in the default registry.
func Has(name string) bool {
	return defaultFuncRegistry().Has(name)
}

// List returns every function name registered in the default registry.
func List() []string {
	return defaultFuncRegistry().List()
}
