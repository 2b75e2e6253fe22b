package eval

import (
	"context"
	"strconv"
	"strings"

	"github.com/fhirkit/conformance/pkg/choice"
	"github.com/fhirkit/conformance/pkg/fhirpath/ast"
	"github.com/fhirkit/conformance/pkg/fhirpath/types"
)

// FuncImpl is the signature for function implementations.
type FuncImpl func(ctx *Context, input types.Collection, args []interface{}) (types.Collection, error)

// FuncDef defines a FHIRPath function.
type FuncDef struct {
	Name    string
	MinArgs int
	MaxArgs int
	Fn      FuncImpl
}

// FuncRegistry is an interface for function lookup.
type FuncRegistry interface {
	Get(name string) (FuncDef, bool)
}

// Resolver handles FHIR reference resolution.
type Resolver interface {
	Resolve(ctx context.Context, reference string) ([]byte, error)
}

// Evaluator evaluates a parsed FHIRPath ast.Atom tree against a Context.
type Evaluator struct {
	ctx   *Context
	funcs FuncRegistry
}

// Context holds the evaluation state. It is a linked chain — WithThis and
// WithIndex return a child frame that overrides one field and defers
// everything else to parent, per spec.md's "a linked chain of variable
// maps; lookup walks parent-ward until found", rather than copying the
// whole struct on every nested evaluation.
type Context struct {
	parent *Context

	root types.Collection

	this    types.Collection
	hasThis bool

	index    int
	hasIndex bool

	total types.Value

	variables map[string]types.Collection
	limits    map[string]int
	goCtx     context.Context
	resolver  Resolver
}

// NewContext creates a new evaluation context.
// Automatically sets %resource and %context to the root resource for FHIR constraint evaluation.
// Per FHIRPath spec:
//   - %resource: the root resource being evaluated
//   - %context: the original node passed to the evaluation engine (same as %resource for top-level evaluation)
func NewContext(resource []byte) *Context {
	//nolint:errcheck // Empty collection is acceptable for invalid JSON in context creation
	root, _ := types.JSONToCollection(resource)

	// Initialize variables map with %resource and %context pointing to root
	// %resource is required by FHIR constraints like bdl-3, bdl-4
	// %context represents the evaluation context (same as root for top-level evaluation)
	variables := make(map[string]types.Collection)
	variables["resource"] = root
	variables["context"] = root

	return &Context{
		root:      root,
		this:      root,
		hasThis:   true,
		variables: variables,
		limits:    make(map[string]int),
		goCtx:     context.Background(),
	}
}

// SetLimit sets a limit value (e.g., maxDepth, maxCollectionSize) on this frame.
func (c *Context) SetLimit(name string, value int) {
	if c.limits == nil {
		c.limits = make(map[string]int)
	}
	c.limits[name] = value
}

// GetLimit gets a limit value, walking parent-ward if unset on this frame.
func (c *Context) GetLimit(name string) int {
	if v, ok := c.limits[name]; ok {
		return v
	}
	if c.parent != nil {
		return c.parent.GetLimit(name)
	}
	return 0
}

// SetContext sets the Go context for cancellation.
func (c *Context) SetContext(ctx context.Context) {
	c.goCtx = ctx
}

// Context returns the Go context, walking parent-ward if unset.
func (c *Context) Context() context.Context {
	if c.goCtx != nil {
		return c.goCtx
	}
	if c.parent != nil {
		return c.parent.Context()
	}
	return context.Background()
}

// SetResolver sets the reference resolver.
func (c *Context) SetResolver(r Resolver) {
	c.resolver = r
}

// GetResolver returns the reference resolver, walking parent-ward if unset.
func (c *Context) GetResolver() Resolver {
	if c.resolver != nil {
		return c.resolver
	}
	if c.parent != nil {
		return c.parent.GetResolver()
	}
	return nil
}

// CheckCancellation checks if the context has been canceled.
func (c *Context) CheckCancellation() error {
	goCtx := c.Context()
	select {
	case <-goCtx.Done():
		return goCtx.Err()
	default:
		return nil
	}
}

// CheckCollectionSize validates that a collection doesn't exceed the maximum size.
// Returns an error if the collection is too large.
func (c *Context) CheckCollectionSize(col types.Collection) error {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return NewEvalError(ErrInvalidExpression,
			"collection size %d exceeds maximum allowed %d", len(col), maxSize)
	}
	return nil
}

// EnforceCollectionLimit truncates a collection if it exceeds the maximum size.
// Returns the (possibly truncated) collection and whether truncation occurred.
func (c *Context) EnforceCollectionLimit(col types.Collection) (types.Collection, bool) {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return col[:maxSize], true
	}
	return col, false
}

// Root returns the root collection, walking parent-ward to find it.
func (c *Context) Root() types.Collection {
	if c.parent != nil {
		return c.parent.Root()
	}
	return c.root
}

// This returns the current $this value, walking parent-ward if unset.
func (c *Context) This() types.Collection {
	if c.hasThis {
		return c.this
	}
	if c.parent != nil {
		return c.parent.This()
	}
	return nil
}

// WithThis returns a child context with $this rebound.
func (c *Context) WithThis(this types.Collection) *Context {
	return &Context{parent: c, this: this, hasThis: true}
}

// Index returns the current $index value, walking parent-ward if unset.
func (c *Context) Index() int {
	if c.hasIndex {
		return c.index
	}
	if c.parent != nil {
		return c.parent.Index()
	}
	return 0
}

// WithIndex returns a child context with $index rebound.
func (c *Context) WithIndex(index int) *Context {
	return &Context{parent: c, index: index, hasIndex: true}
}

// SetVariable sets an external variable on this frame.
func (c *Context) SetVariable(name string, value types.Collection) {
	if c.variables == nil {
		c.variables = make(map[string]types.Collection)
	}
	c.variables[name] = value
}

// GetVariable looks up an external variable, walking parent-ward until found.
func (c *Context) GetVariable(name string) (types.Collection, bool) {
	if v, ok := c.variables[name]; ok {
		return v, true
	}
	if c.parent != nil {
		return c.parent.GetVariable(name)
	}
	return nil, false
}

// NewEvaluator creates a new evaluator with the given context and function registry.
func NewEvaluator(ctx *Context, funcs FuncRegistry) *Evaluator {
	return &Evaluator{ctx: ctx, funcs: funcs}
}

// Evaluate evaluates a parsed expression tree and returns the result.
func (e *Evaluator) Evaluate(tree ast.Atom) (types.Collection, error) {
	result := e.eval(tree)
	if err, ok := result.(error); ok {
		return nil, err
	}
	if col, ok := result.(types.Collection); ok {
		return col, nil
	}
	return types.Collection{}, nil
}

// eval dispatches on the concrete ast.Atom type and returns either a
// types.Collection or an error.
func (e *Evaluator) eval(atom ast.Atom) interface{} {
	if atom == nil {
		return types.Collection{}
	}

	switch node := atom.(type) {
	case *ast.Literal:
		return e.evalLiteral(node)
	case *ast.EmptySet:
		return types.Collection{}
	case *ast.Symbol:
		return e.evalSymbol(node)
	case *ast.ExternalConstant:
		if value, ok := e.ctx.GetVariable(node.Name); ok {
			return value
		}
		return NewEvalError(ErrInvalidPath, "undefined variable: %"+node.Name)
	case *ast.Unary:
		return e.evalUnary(node)
	case *ast.Dot:
		return e.evalDot(node)
	case *ast.Indexer:
		return e.evalIndexer(node)
	case *ast.FunctionCall:
		return e.evalFunctionCall(node)
	case *ast.Binary:
		return e.evalBinary(node)
	case *ast.TypeExpr:
		return e.evalTypeExpr(node)
	default:
		return NewEvalError(ErrInvalidExpression, "unhandled atom type %T", atom)
	}
}

// evalCollection runs eval and normalizes the result to a Collection/error
// pair, for callers that always want one or the other.
func (e *Evaluator) evalCollection(atom ast.Atom) (types.Collection, error) {
	result := e.eval(atom)
	if err, ok := result.(error); ok {
		return nil, err
	}
	if col, ok := result.(types.Collection); ok {
		return col, nil
	}
	return types.Collection{}, nil
}

func (e *Evaluator) evalLiteral(lit *ast.Literal) interface{} {
	switch lit.Kind {
	case ast.LiteralBoolean:
		return types.Collection{types.NewBoolean(lit.Text == "true")}

	case ast.LiteralString:
		return types.Collection{types.NewString(lit.Text)}

	case ast.LiteralInteger:
		if i, err := strconv.ParseInt(lit.Text, 10, 64); err == nil {
			return types.Collection{types.NewInteger(i)}
		}
		return ParseError("invalid integer: " + lit.Text)

	case ast.LiteralDecimal:
		d, err := types.NewDecimal(lit.Text)
		if err != nil {
			return ParseError("invalid number: " + lit.Text)
		}
		return types.Collection{d}

	case ast.LiteralDate:
		d, err := types.NewDate(strings.TrimPrefix(lit.Text, "@"))
		if err != nil {
			return ParseError("invalid date: " + lit.Text)
		}
		return types.Collection{d}

	case ast.LiteralDateTime:
		dt, err := types.NewDateTime(strings.TrimPrefix(lit.Text, "@"))
		if err != nil {
			return ParseError("invalid datetime: " + lit.Text)
		}
		return types.Collection{dt}

	case ast.LiteralTime:
		t, err := types.NewTime(strings.TrimPrefix(lit.Text, "@"))
		if err != nil {
			return ParseError("invalid time: " + lit.Text)
		}
		return types.Collection{t}

	case ast.LiteralQuantity:
		q, err := types.NewQuantity(lit.Source())
		if err != nil {
			return ParseError("invalid quantity: " + lit.Source())
		}
		return types.Collection{q}

	default:
		return types.Collection{}
	}
}

func (e *Evaluator) evalSymbol(sym *ast.Symbol) interface{} {
	switch sym.Kind {
	case ast.SymbolThis:
		return e.ctx.This()
	case ast.SymbolIndex:
		return types.Collection{types.NewInteger(int64(e.ctx.Index()))}
	case ast.SymbolTotal:
		if e.ctx.total != nil {
			return types.Collection{e.ctx.total}
		}
		return types.Collection{}
	default:
		return e.navigateMember(e.ctx.This(), stripBackticks(sym.Name))
	}
}

func (e *Evaluator) evalUnary(u *ast.Unary) interface{} {
	result := e.eval(u.Operand)
	if err, ok := result.(error); ok {
		return err
	}
	col := result.(types.Collection)

	if col.Empty() {
		return col
	}
	if len(col) != 1 {
		return SingletonError(len(col))
	}
	if u.Op == "-" {
		negated, err := Negate(col[0])
		if err != nil {
			return err
		}
		return types.Collection{negated}
	}
	return col
}

// evalDot evaluates left.right: left's result becomes right's $this.
func (e *Evaluator) evalDot(d *ast.Dot) interface{} {
	base, err := e.evalCollection(d.Left)
	if err != nil {
		return err
	}

	oldThis := e.ctx.this
	oldHasThis := e.ctx.hasThis
	e.ctx.this = base
	e.ctx.hasThis = true
	defer func() {
		e.ctx.this = oldThis
		e.ctx.hasThis = oldHasThis
	}()

	return e.eval(d.Right)
}

func (e *Evaluator) evalIndexer(idx *ast.Indexer) interface{} {
	baseCol, err := e.evalCollection(idx.Target)
	if err != nil {
		return err
	}

	indexCol, err := e.evalCollection(idx.Index)
	if err != nil {
		return err
	}
	if indexCol.Empty() {
		return types.Collection{}
	}

	i, ok := indexCol[0].(types.Integer)
	if !ok {
		return TypeError("Integer", indexCol[0].Type(), "indexer")
	}

	pos := int(i.Value())
	if pos < 0 || pos >= len(baseCol) {
		return types.Collection{}
	}
	return types.Collection{baseCol[pos]}
}

func (e *Evaluator) evalBinary(b *ast.Binary) interface{} {
	switch b.Kind {
	case ast.BinaryMultiplicative:
		return e.evalMultiplicative(b)
	case ast.BinaryAdditive:
		return e.evalAdditive(b)
	case ast.BinaryUnion:
		return e.evalUnion(b)
	case ast.BinaryInequality:
		return e.evalInequality(b)
	case ast.BinaryEquality:
		return e.evalEquality(b)
	case ast.BinaryMembership:
		return e.evalMembership(b)
	case ast.BinaryAnd:
		return e.evalAnd(b)
	case ast.BinaryOr:
		return e.evalOrXor(b)
	case ast.BinaryImplies:
		return e.evalImplies(b)
	default:
		return types.Collection{}
	}
}

func (e *Evaluator) evalMultiplicative(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}
	if leftCol.Empty() || rightCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 || len(rightCol) != 1 {
		return SingletonError(len(leftCol) + len(rightCol))
	}

	var result types.Value
	switch b.Op {
	case "*":
		result, err = Multiply(leftCol[0], rightCol[0])
	case "/":
		result, err = Divide(leftCol[0], rightCol[0])
	case "div":
		result, err = IntegerDivide(leftCol[0], rightCol[0])
	case "mod":
		result, err = Modulo(leftCol[0], rightCol[0])
	}
	if err != nil {
		return err
	}
	return types.Collection{result}
}

func (e *Evaluator) evalAdditive(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}

	if b.Op == "&" {
		return Concatenate(leftCol, rightCol)
	}

	if leftCol.Empty() || rightCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 || len(rightCol) != 1 {
		return SingletonError(len(leftCol) + len(rightCol))
	}

	var result types.Value
	switch b.Op {
	case "+":
		result, err = Add(leftCol[0], rightCol[0])
	case "-":
		result, err = Subtract(leftCol[0], rightCol[0])
	}
	if err != nil {
		return err
	}
	return types.Collection{result}
}

func (e *Evaluator) evalUnion(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}
	return Union(leftCol, rightCol)
}

func (e *Evaluator) evalInequality(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}
	if leftCol.Empty() || rightCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 || len(rightCol) != 1 {
		return SingletonError(len(leftCol) + len(rightCol))
	}

	var result types.Collection
	switch b.Op {
	case "<":
		result, err = LessThan(leftCol[0], rightCol[0])
	case "<=":
		result, err = LessOrEqual(leftCol[0], rightCol[0])
	case ">":
		result, err = GreaterThan(leftCol[0], rightCol[0])
	case ">=":
		result, err = GreaterOrEqual(leftCol[0], rightCol[0])
	default:
		return types.Collection{}
	}
	if err != nil {
		return err
	}
	return result
}

func (e *Evaluator) evalEquality(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}

	switch b.Op {
	case "=":
		return Equal(leftCol, rightCol)
	case "!=":
		return NotEqual(leftCol, rightCol)
	case "~":
		return Equivalent(leftCol, rightCol)
	case "!~":
		return NotEquivalent(leftCol, rightCol)
	}
	return types.Collection{}
}

func (e *Evaluator) evalMembership(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}

	switch b.Op {
	case "in":
		return In(leftCol, rightCol)
	case "contains":
		return Contains(leftCol, rightCol)
	}
	return types.Collection{}
}

func (e *Evaluator) evalAnd(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}
	return And(leftCol, rightCol)
}

func (e *Evaluator) evalOrXor(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}

	switch b.Op {
	case "or":
		return Or(leftCol, rightCol)
	case "xor":
		return Xor(leftCol, rightCol)
	}
	return types.Collection{}
}

func (e *Evaluator) evalImplies(b *ast.Binary) interface{} {
	leftCol, err := e.evalCollection(b.Left)
	if err != nil {
		return err
	}
	rightCol, err := e.evalCollection(b.Right)
	if err != nil {
		return err
	}
	return Implies(leftCol, rightCol)
}

func (e *Evaluator) evalTypeExpr(te *ast.TypeExpr) interface{} {
	leftCol, err := e.evalCollection(te.Operand)
	if err != nil {
		return err
	}
	if leftCol.Empty() {
		return types.Collection{}
	}
	if len(leftCol) != 1 {
		return SingletonError(len(leftCol))
	}

	actualType := leftCol[0].Type()
	switch te.Op {
	case "is":
		return types.Collection{types.NewBoolean(TypeMatches(actualType, te.TypeName))}
	case "as":
		if TypeMatches(actualType, te.TypeName) {
			return leftCol
		}
		return types.Collection{}
	}
	return types.Collection{}
}

// evalFunctionCall dispatches a function-call atom: either one of the
// lazy-argument forms (where/exists/all/select/is/as/ofType/iif), which
// need access to the unevaluated argument atom, or a plain function whose
// arguments are evaluated eagerly against the current $this.
func (e *Evaluator) evalFunctionCall(fc *ast.FunctionCall) interface{} {
	name := stripBackticks(fc.Name)

	fn, ok := e.funcs.Get(name)
	if !ok {
		return FunctionNotFoundError(name)
	}

	argCount := len(fc.Args)
	if argCount < fn.MinArgs {
		return InvalidArgumentsError(name, fn.MinArgs, argCount)
	}
	if fn.MaxArgs >= 0 && argCount > fn.MaxArgs {
		return InvalidArgumentsError(name, fn.MaxArgs, argCount)
	}

	input := e.ctx.This()
	if argCount > 0 {
		switch name {
		case "where":
			return e.evaluateWhere(input, fc.Args[0])
		case "exists":
			return e.evaluateExists(input, fc.Args[0])
		case "all":
			return e.evaluateAll(input, fc.Args[0])
		case "select":
			return e.evaluateSelect(input, fc.Args[0])
		case "is":
			return e.evaluateIsFunction(input, fc.Args[0])
		case "as":
			return e.evaluateAsFunction(input, fc.Args[0])
		case "ofType":
			return e.evaluateOfType(input, fc.Args[0])
		case "iif":
			if argCount >= 2 {
				return e.evaluateIif(fc.Args)
			}
		}
	}

	args := make([]interface{}, argCount)
	for i, argAtom := range fc.Args {
		result := e.eval(argAtom)
		if err, ok := result.(error); ok {
			return err
		}
		args[i] = result
	}

	result, err := fn.Fn(e.ctx, e.ctx.This(), args)
	if err != nil {
		return err
	}
	return result
}

// withThisIndex runs fn with $this and $index rebound to item/i, restoring
// the prior binding afterward regardless of outcome.
func (e *Evaluator) withThisIndex(item types.Value, i int, fn func() interface{}) interface{} {
	oldThis, oldHasThis := e.ctx.this, e.ctx.hasThis
	oldIndex, oldHasIndex := e.ctx.index, e.ctx.hasIndex
	e.ctx.this = types.Collection{item}
	e.ctx.hasThis = true
	e.ctx.index = i
	e.ctx.hasIndex = true
	defer func() {
		e.ctx.this, e.ctx.hasThis = oldThis, oldHasThis
		e.ctx.index, e.ctx.hasIndex = oldIndex, oldHasIndex
	}()
	return fn()
}

// evaluateWhere evaluates the where() function with per-element criteria.
func (e *Evaluator) evaluateWhere(input types.Collection, criteria ast.Atom) interface{} {
	result := types.Collection{}

	if err := e.ctx.CheckCollectionSize(input); err != nil {
		return err
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		criteriaResult := e.withThisIndex(item, i, func() interface{} { return e.eval(criteria) })
		if err, ok := criteriaResult.(error); ok {
			return err
		}
		if col, ok := criteriaResult.(types.Collection); ok && !col.Empty() {
			if b, ok := col[0].(types.Boolean); ok && b.Bool() {
				result = append(result, item)
			}
		}
	}

	return result
}

// evaluateExists evaluates exists() with optional criteria.
func (e *Evaluator) evaluateExists(input types.Collection, criteria ast.Atom) interface{} {
	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		criteriaResult := e.withThisIndex(item, i, func() interface{} { return e.eval(criteria) })
		if err, ok := criteriaResult.(error); ok {
			return err
		}
		if col, ok := criteriaResult.(types.Collection); ok && !col.Empty() {
			if b, ok := col[0].(types.Boolean); ok && b.Bool() {
				return types.Collection{types.NewBoolean(true)}
			}
		}
	}

	return types.Collection{types.NewBoolean(false)}
}

// evaluateAll evaluates all() - returns true if all elements match criteria.
func (e *Evaluator) evaluateAll(input types.Collection, criteria ast.Atom) interface{} {
	if input.Empty() {
		return types.Collection{types.NewBoolean(true)}
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		criteriaResult := e.withThisIndex(item, i, func() interface{} { return e.eval(criteria) })
		if err, ok := criteriaResult.(error); ok {
			return err
		}
		if col, ok := criteriaResult.(types.Collection); ok {
			if col.Empty() {
				return types.Collection{types.NewBoolean(false)}
			}
			if b, ok := col[0].(types.Boolean); ok && !b.Bool() {
				return types.Collection{types.NewBoolean(false)}
			}
		}
	}

	return types.Collection{types.NewBoolean(true)}
}

// evaluateSelect evaluates select() - projects each element.
func (e *Evaluator) evaluateSelect(input types.Collection, projection ast.Atom) interface{} {
	result := types.Collection{}

	if err := e.ctx.CheckCollectionSize(input); err != nil {
		return err
	}

	for i, item := range input {
		if i%100 == 0 {
			if err := e.ctx.CheckCancellation(); err != nil {
				return err
			}
		}

		projResult := e.withThisIndex(item, i, func() interface{} { return e.eval(projection) })
		if err, ok := projResult.(error); ok {
			return err
		}
		if col, ok := projResult.(types.Collection); ok {
			result = append(result, col...)
			if err := e.ctx.CheckCollectionSize(result); err != nil {
				return err
			}
		}
	}

	return result
}

// evaluateIsFunction evaluates is() function - checks if input is of specified type.
func (e *Evaluator) evaluateIsFunction(input types.Collection, typeExpr ast.Atom) interface{} {
	if input.Empty() {
		return types.Collection{}
	}
	if len(input) != 1 {
		return SingletonError(len(input))
	}

	typeName := extractTypeName(typeExpr)
	if typeName == "" {
		return InvalidArgumentsError("is", 1, 0)
	}

	actualType := input[0].Type()
	return types.Collection{types.NewBoolean(TypeMatches(actualType, typeName))}
}

// evaluateAsFunction evaluates as() function - casts input to specified type.
func (e *Evaluator) evaluateAsFunction(input types.Collection, typeExpr ast.Atom) interface{} {
	if input.Empty() {
		return types.Collection{}
	}
	if len(input) != 1 {
		return SingletonError(len(input))
	}

	typeName := extractTypeName(typeExpr)
	if typeName == "" {
		return InvalidArgumentsError("as", 1, 0)
	}

	actualType := input[0].Type()
	if TypeMatches(actualType, typeName) {
		return input
	}
	return types.Collection{}
}

// extractTypeName extracts a type name from a FHIRPath argument atom.
// Handles bare identifiers like Composition, Patient, and qualified names
// like FHIR.Patient (parsed as a chain of Dot over Symbols).
func extractTypeName(atom ast.Atom) string {
	switch node := atom.(type) {
	case *ast.Symbol:
		return node.Name
	case *ast.Dot:
		left := extractTypeName(node.Left)
		right := extractTypeName(node.Right)
		if left == "" {
			return right
		}
		return left + "." + right
	default:
		return ""
	}
}

// evaluateOfType evaluates ofType() function - filters collection by type.
func (e *Evaluator) evaluateOfType(input types.Collection, typeExpr ast.Atom) interface{} {
	if input.Empty() {
		return types.Collection{}
	}

	typeName := extractTypeName(typeExpr)
	if typeName == "" {
		return InvalidArgumentsError("ofType", 1, 0)
	}

	result := types.Collection{}
	for _, item := range input {
		actualType := item.Type()
		if obj, ok := item.(*types.ObjectValue); ok {
			actualType = obj.Type()
		}
		if TypeMatches(actualType, typeName) {
			result = append(result, item)
		}
	}
	return result
}

// evaluateIif evaluates the iif() function with lazy evaluation.
// Only the matching branch is evaluated, preventing errors from the other branch.
// Signature: iif(criterion, true-result [, otherwise-result])
func (e *Evaluator) evaluateIif(argAtoms []ast.Atom) interface{} {
	if len(argAtoms) < 2 {
		return InvalidArgumentsError("iif", 2, len(argAtoms))
	}

	criterionResult := e.eval(argAtoms[0])
	if err, ok := criterionResult.(error); ok {
		return err
	}

	criterion := false
	if coll, ok := criterionResult.(types.Collection); ok && !coll.Empty() {
		if b, ok := coll[0].(types.Boolean); ok {
			criterion = b.Bool()
		}
	}

	if criterion {
		result := e.eval(argAtoms[1])
		if err, ok := result.(error); ok {
			return err
		}
		if coll, ok := result.(types.Collection); ok {
			return coll
		}
		return types.Collection{}
	}

	if len(argAtoms) > 2 {
		result := e.eval(argAtoms[2])
		if err, ok := result.(error); ok {
			return err
		}
		if coll, ok := result.(types.Collection); ok {
			return coll
		}
	}

	return types.Collection{}
}

// nonDomainResources contains FHIR resources that inherit directly from Resource,
// not from DomainResource. All other resources inherit from DomainResource.
var nonDomainResources = map[string]bool{
	"Bundle":     true,
	"Binary":     true,
	"Parameters": true,
}

// IsDomainResource returns true if the given resource type inherits from DomainResource.
// Bundle, Binary, and Parameters inherit directly from Resource, not DomainResource.
func IsDomainResource(resourceType string) bool {
	return !nonDomainResources[resourceType]
}

// IsSubtypeOf checks if actualType is a subtype of (or equal to) baseType.
// This handles the FHIR type hierarchy:
//
//	Resource
//	  └── DomainResource
//	        ├── Patient
//	        ├── Observation
//	        └── ... (most resources)
//	  └── Bundle, Binary, Parameters (directly inherit from Resource)
func IsSubtypeOf(actualType, baseType string) bool {
	if actualType == baseType {
		return true
	}
	if strings.EqualFold(actualType, baseType) {
		return true
	}

	if baseType == "Resource" || strings.EqualFold(baseType, "resource") {
		return isPossibleResourceType(actualType)
	}

	if baseType == "DomainResource" || strings.EqualFold(baseType, "domainresource") {
		return isPossibleResourceType(actualType) && IsDomainResource(actualType)
	}

	return false
}

// isPossibleResourceType checks if the type looks like a FHIR resource type.
// Resource types are PascalCase and are not primitive types.
func isPossibleResourceType(typeName string) bool {
	if typeName == "" {
		return false
	}

	primitiveTypes := map[string]bool{
		"Boolean": true, "String": true, "Integer": true, "Decimal": true,
		"Date": true, "DateTime": true, "Time": true, "Quantity": true,
		"Object": true,
	}
	if primitiveTypes[typeName] {
		return false
	}

	return typeName[0] >= 'A' && typeName[0] <= 'Z'
}

// TypeMatches checks if actualType matches the requested typeName.
// Handles case-insensitive comparison and FHIR type aliases.
// This function is exported for use by the is() function implementation.
func TypeMatches(actualType, typeName string) bool {
	if actualType == typeName {
		return true
	}

	actualLower := strings.ToLower(actualType)
	typeNameLower := strings.ToLower(typeName)

	if actualLower == typeNameLower {
		return true
	}

	if IsSubtypeOf(actualType, typeName) {
		return true
	}

	// FHIR primitive type mappings (FHIR uses lowercase, FHIRPath uses PascalCase)
	fhirToFHIRPath := map[string]string{
		"boolean":        "Boolean",
		"string":         "String",
		"integer":        "Integer",
		"decimal":        "Decimal",
		"date":           "Date",
		"datetime":       "DateTime",
		"time":           "Time",
		"instant":        "DateTime",
		"uri":            "String",
		"url":            "String",
		"canonical":      "String",
		"base64binary":   "String",
		"code":           "String",
		"id":             "String",
		"markdown":       "String",
		"oid":            "String",
		"uuid":           "String",
		"positiveint":    "Integer",
		"unsignedint":    "Integer",
		"integer64":      "Integer",
		"quantity":       "Quantity",
		"simplequantity": "Quantity",
		"age":            "Quantity",
		"count":          "Quantity",
		"distance":       "Quantity",
		"duration":       "Quantity",
		"money":          "Quantity",
	}

	if fhirPathType, ok := fhirToFHIRPath[typeNameLower]; ok {
		if actualType == fhirPathType {
			return true
		}
	}

	if fhirPathType, ok := fhirToFHIRPath[actualLower]; ok {
		if fhirPathType == typeName || strings.EqualFold(fhirPathType, typeName) {
			return true
		}
	}

	// System type namespace handling (FHIR.* and System.*)
	if strings.HasPrefix(typeNameLower, "system.") {
		systemType := typeName[7:]
		if strings.EqualFold(actualType, systemType) {
			return true
		}
	}

	if strings.HasPrefix(typeNameLower, "fhir.") {
		fhirType := typeName[5:]
		if strings.EqualFold(actualType, fhirType) {
			return true
		}
	}

	return false
}

// navigateMember navigates to a member of objects in the collection.
// Supports FHIR polymorphic elements (value[x] pattern) through
// pkg/choice, the same suffix-resolution package pkg/fhir uses to decode
// ElementDefinition's choice-typed fields, rather than a duplicated local
// table.
func (e *Evaluator) navigateMember(input types.Collection, name string) types.Collection {
	result := types.Collection{}

	for _, item := range input {
		obj, ok := item.(*types.ObjectValue)
		if !ok {
			continue
		}

		if IsSubtypeOf(obj.Type(), name) {
			result = append(result, obj)
			continue
		}

		children := obj.GetCollection(name)
		if len(children) > 0 {
			result = append(result, children...)
			continue
		}

		result = append(result, resolvePolymorphicField(obj, name)...)
	}

	return result
}

// resolvePolymorphicField attempts to resolve a polymorphic FHIR element by
// scanning the object's actual wire keys for one that choice.Resolve
// reports as a "value[x]"-style variant of name, e.g. requesting "value"
// matches a present "valueQuantity" key.
func resolvePolymorphicField(obj *types.ObjectValue, name string) types.Collection {
	for _, key := range obj.Keys() {
		res := choice.Resolve(key)
		if !res.IsChoice || res.Base != name {
			continue
		}
		if children := obj.GetCollection(key); len(children) > 0 {
			return children
		}
	}
	return types.Collection{}
}

// stripBackticks removes backtick delimiters from delimited identifiers.
// FHIRPath allows backticks for identifiers with special characters: `PID-1`
func stripBackticks(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}
