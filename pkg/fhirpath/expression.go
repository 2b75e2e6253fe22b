package fhirpath

import (
	"github.com/fhirkit/conformance/pkg/fhirpath/ast"
	"github.com/fhirkit/conformance/pkg/fhirpath/eval"
	"github.com/fhirkit/conformance/pkg/fhirpath/funcs"
	"github.com/fhirkit/conformance/pkg/fhirpath/types"
)

// Expression represents a compiled FHIRPath expression.
type Expression struct {
	source string
	tree   ast.Atom
}

// Evaluate executes the expression against a JSON resource.
func (e *Expression) Evaluate(resource []byte) (types.Collection, error) {
	ctx := eval.NewContext(resource)
	return e.EvaluateWithContext(ctx)
}

// EvaluateWithContext executes the expression with a custom context. It
// dispatches against funcs.DefaultRegistry(), a dispatch table built once
// from a fixed, ordered registrar list (see pkg/fhirpath/funcs.BuildRegistry)
// rather than accumulated via scattered per-file init() functions.
func (e *Expression) EvaluateWithContext(ctx *eval.Context) (types.Collection, error) {
	evaluator := eval.NewEvaluator(ctx, funcs.DefaultRegistry())
	return evaluator.Evaluate(e.tree)
}

// String returns the original expression string.
func (e *Expression) String() string {
	return e.source
}
