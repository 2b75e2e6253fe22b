// Package parser implements a hand-rolled precedence-climbing parser that
// turns a pkg/fhirpath/lexer token stream into a pkg/fhirpath/ast tree, per
// spec.md §4.5's precedence table. It replaces the project's former
// ANTLR-generated grammar: every precedence level below is one recursive
// descent function, from loosest (implies) down to the postfix chain
// (dot/indexer/function-call) that binds tightest.
package parser

import (
	"fmt"
	"strings"

	"github.com/fhirkit/conformance/pkg/fhirpath/ast"
	"github.com/fhirkit/conformance/pkg/fhirpath/lexer"
)

// calendarUnits are the bare (unquoted) keyword units a Quantity literal
// may carry, per spec.md §4.5: "a bare calendar keyword (recoded as
// UCUM-like {unit})".
var calendarUnits = map[string]bool{
	"year": true, "years": true,
	"month": true, "months": true,
	"week": true, "weeks": true,
	"day": true, "days": true,
	"hour": true, "hours": true,
	"minute": true, "minutes": true,
	"second": true, "seconds": true,
	"millisecond": true, "milliseconds": true,
}

// Parse tokenizes and parses a full FHIRPath expression, returning its root
// ast.Atom. Comment tokens are dropped before parsing begins — the lexer
// preserves them (per spec.md §4.5) but the parser has no use for them.
func Parse(source string) (ast.Atom, error) {
	tokens, err := lexer.Tokenize(source)
	if err != nil {
		return nil, fmt.Errorf("fhirpath parse error: %w", err)
	}
	filtered := tokens[:0:0]
	for _, t := range tokens {
		if t.Kind != lexer.Comment {
			filtered = append(filtered, t)
		}
	}

	p := &parser{source: source, tokens: filtered}
	root, err := p.parseImplies()
	if err != nil {
		return nil, fmt.Errorf("fhirpath parse error: %w", err)
	}
	if p.peek().Kind != lexer.EOF {
		return nil, fmt.Errorf("fhirpath parse error: unexpected token %q at position %d", p.peek().Value, p.peek().Pos)
	}
	return root, nil
}

type parser struct {
	source string
	tokens []lexer.Token
	pos    int
}

func (p *parser) peek() lexer.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return lexer.Token{Kind: lexer.EOF}
}

func (p *parser) peekAt(offset int) lexer.Token {
	i := p.pos + offset
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return lexer.Token{Kind: lexer.EOF}
}

func (p *parser) advance() lexer.Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind lexer.Kind) (lexer.Token, error) {
	t := p.advance()
	if t.Kind != kind {
		return t, fmt.Errorf("unexpected token %q at position %d", t.Value, t.Pos)
	}
	return t, nil
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.Kind == lexer.Keyword && t.Value == word
}

// span returns the source substring from a starting token position to the
// current position, for an atom's Source().
func (p *parser) span(startPos int) string {
	end := len(p.source)
	if p.pos < len(p.tokens) {
		end = p.tokens[p.pos].Pos
	}
	if startPos > end || startPos > len(p.source) {
		return ""
	}
	if end > len(p.source) {
		end = len(p.source)
	}
	return strings.TrimSpace(p.source[startPos:end])
}

// implies — precedence 13, loosest, right side parsed one level tighter
// (xor/or) so `a implies b implies c` parses as `a implies (b implies c)`
// is not required by the spec; left-associative chaining is adequate here.
func (p *parser) parseImplies() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseOrXor()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("implies") {
		p.advance()
		right, err := p.parseOrXor()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryImplies, "implies", left, right)
	}
	return left, nil
}

// or/xor — precedence 12.
func (p *parser) parseOrXor() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isKeyword("xor") {
		op := p.advance().Value
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryOr, op, left, right)
	}
	return left, nil
}

// and — precedence 11.
func (p *parser) parseAnd() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseInContains()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.advance()
		right, err := p.parseInContains()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryAnd, "and", left, right)
	}
	return left, nil
}

// in/contains — precedence 10.
func (p *parser) parseInContains() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("in") || p.isKeyword("contains") {
		op := p.advance().Value
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryMembership, op, left, right)
	}
	return left, nil
}

// equality family — precedence 9: = != ~ !~
func (p *parser) parseEquality() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		var op string
		switch t.Kind {
		case lexer.Eq:
			op = "="
		case lexer.Neq:
			op = "!="
		case lexer.Equiv:
			op = "~"
		case lexer.NotEquiv:
			op = "!~"
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryEquality, op, left, right)
	}
}

// comparison — precedence 8: < <= > >=
func (p *parser) parseComparison() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		var op string
		switch t.Kind {
		case lexer.Lt:
			op = "<"
		case lexer.Le:
			op = "<="
		case lexer.Gt:
			op = ">"
		case lexer.Ge:
			op = ">="
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnion()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryInequality, op, left, right)
	}
}

// union — precedence 7: |
func (p *parser) parseUnion() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseIsAs()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == lexer.Pipe {
		p.advance()
		right, err := p.parseIsAs()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryUnion, "|", left, right)
	}
	return left, nil
}

// is/as — precedence 6. The right operand is a type specifier (a dotted
// identifier like FHIR.Patient or System.String), not a general expression.
func (p *parser) parseIsAs() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("is") || p.isKeyword("as") {
		op := p.advance().Value
		typeName, err := p.parseTypeSpecifier()
		if err != nil {
			return nil, err
		}
		left = ast.NewTypeExpr(p.span(start), op, left, typeName)
	}
	return left, nil
}

func (p *parser) parseTypeSpecifier() (string, error) {
	t := p.peek()
	if t.Kind != lexer.Symbol {
		return "", fmt.Errorf("expected type name at position %d, got %q", t.Pos, t.Value)
	}
	p.advance()
	name := t.Value
	for p.peek().Kind == lexer.Dot && p.peekAt(1).Kind == lexer.Symbol {
		p.advance()
		name += "." + p.advance().Value
	}
	return name, nil
}

// additive — precedence 5: + - &
func (p *parser) parseAdditive() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		var op string
		switch t.Kind {
		case lexer.Plus:
			op = "+"
		case lexer.Minus:
			op = "-"
		case lexer.Ampersand:
			op = "&"
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryAdditive, op, left, right)
	}
}

// multiplicative — precedence 4: * / div mod
func (p *parser) parseMultiplicative() (ast.Atom, error) {
	start := p.peek().Pos
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		var op string
		switch {
		case t.Kind == lexer.Star:
			op = "*"
		case t.Kind == lexer.Slash:
			op = "/"
		case t.Kind == lexer.Keyword && t.Value == "div":
			op = "div"
		case t.Kind == lexer.Keyword && t.Value == "mod":
			op = "mod"
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(p.span(start), ast.BinaryMultiplicative, op, left, right)
	}
}

// unary — precedence 3: prefix + or -
func (p *parser) parseUnary() (ast.Atom, error) {
	start := p.peek().Pos
	t := p.peek()
	if t.Kind == lexer.Plus || t.Kind == lexer.Minus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(p.span(start), t.Value, operand), nil
	}
	return p.parsePostfix()
}

// postfix — precedences 0-2: dot navigation, indexer, function-call,
// chained left-to-right on a single primary term.
func (p *parser) parsePostfix() (ast.Atom, error) {
	start := p.peek().Pos
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().Kind {
		case lexer.Dot:
			p.advance()
			right, err := p.parseDotTarget()
			if err != nil {
				return nil, err
			}
			node = ast.NewDot(p.span(start), node, right)

		case lexer.LBrack:
			p.advance()
			idx, err := p.parseImplies()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RBrack); err != nil {
				return nil, err
			}
			node = ast.NewIndexer(p.span(start), node, idx)

		default:
			return node, nil
		}
	}
}

// parseDotTarget parses the right-hand side of a `.`: either a bare
// identifier (field navigation) or an identifier immediately followed by
// `(` (a method-style function call). Function-call is only legal here
// because the preceding token is a plain symbol, per spec.md §4.5: "Function
// call is only valid when the left operand is a symbol".
func (p *parser) parseDotTarget() (ast.Atom, error) {
	t := p.peek()
	switch t.Kind {
	case lexer.Symbol:
		p.advance()
		if p.peek().Kind == lexer.LParen {
			return p.parseFunctionCall(t)
		}
		return ast.NewSymbol(t.Value, t.Value), nil
	case lexer.Keyword:
		// A reserved word used as a property name after `.`, e.g. `.as`,
		// is only valid as a function name (as() the function vs the `as`
		// operator). Disallow anything else.
		p.advance()
		if p.peek().Kind == lexer.LParen {
			return p.parseFunctionCall(t)
		}
		return nil, fmt.Errorf("%q is a reserved word and cannot be used as a property name at position %d", t.Value, t.Pos)
	default:
		return nil, fmt.Errorf("expected identifier after '.' at position %d, got %q", t.Pos, t.Value)
	}
}

func (p *parser) parseFunctionCall(name lexer.Token) (ast.Atom, error) {
	p.advance() // consume '('
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.RParen)
	if err != nil {
		return nil, err
	}
	source := p.source
	if name.Pos <= end.Pos+1 && end.Pos+1 <= len(source) {
		source = strings.TrimSpace(source[name.Pos : end.Pos+1])
	}
	return ast.NewFunctionCall(source, name.Value, args), nil
}

func (p *parser) parseArgList() ([]ast.Atom, error) {
	var args []ast.Atom
	if p.peek().Kind == lexer.RParen {
		return args, nil
	}
	for {
		arg, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().Kind != lexer.Comma {
			break
		}
		p.advance()
	}
	return args, nil
}

func (p *parser) parsePrimary() (ast.Atom, error) {
	t := p.peek()

	switch t.Kind {
	case lexer.LParen:
		p.advance()
		inner, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return inner, nil

	case lexer.LBrace:
		p.advance()
		if _, err := p.expect(lexer.RBrace); err != nil {
			return nil, fmt.Errorf("expected '}' to close empty set literal: %w", err)
		}
		return ast.NewEmptySet("{}"), nil

	case lexer.String:
		p.advance()
		return ast.NewLiteral(t.Value, ast.LiteralString, t.Value), nil

	case lexer.Number:
		p.advance()
		return p.parseNumberOrQuantity(t)

	case lexer.DateTime:
		p.advance()
		return ast.NewLiteral(t.Value, classifyDateTime(t.Value), t.Value), nil

	case lexer.Dollar:
		p.advance()
		switch t.Value {
		case "this":
			return ast.NewSpecialSymbol("$this", ast.SymbolThis), nil
		case "index":
			return ast.NewSpecialSymbol("$index", ast.SymbolIndex), nil
		default:
			return ast.NewSpecialSymbol("$total", ast.SymbolTotal), nil
		}

	case lexer.Percent:
		p.advance()
		return p.parseExternalConstant()

	case lexer.Keyword:
		if t.Value == "true" || t.Value == "false" {
			p.advance()
			return ast.NewLiteral(t.Value, ast.LiteralBoolean, t.Value), nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at position %d", t.Value, t.Pos)

	case lexer.Symbol:
		p.advance()
		if p.peek().Kind == lexer.LParen {
			return p.parseFunctionCall(t)
		}
		return ast.NewSymbol(t.Value, t.Value), nil

	case lexer.EOF:
		return nil, fmt.Errorf("unexpected end of expression")

	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", t.Value, t.Pos)
	}
}

func (p *parser) parseExternalConstant() (ast.Atom, error) {
	t := p.peek()
	switch t.Kind {
	case lexer.Symbol:
		p.advance()
		return ast.NewExternalConstant("%"+t.Value, t.Value), nil
	case lexer.Keyword:
		p.advance()
		return ast.NewExternalConstant("%"+t.Value, t.Value), nil
	case lexer.String:
		p.advance()
		return ast.NewExternalConstant("%'"+t.Value+"'", t.Value), nil
	default:
		return nil, fmt.Errorf("expected a name after '%%' at position %d", t.Pos)
	}
}

// parseNumberOrQuantity consumes an already-lexed Number token and, if a
// unit (quoted string or bare calendar keyword) directly follows, folds it
// into a Quantity literal per spec.md §4.5.
func (p *parser) parseNumberOrQuantity(numTok lexer.Token) (ast.Atom, error) {
	next := p.peek()
	if next.Kind == lexer.String {
		p.advance()
		return ast.NewQuantityLiteral(numTok.Value+" '"+next.Value+"'", numTok.Value, next.Value), nil
	}
	if next.Kind == lexer.Symbol && calendarUnits[next.Value] {
		p.advance()
		return ast.NewQuantityLiteral(numTok.Value+" "+next.Value, numTok.Value, next.Value), nil
	}
	kind := ast.LiteralInteger
	if strings.Contains(numTok.Value, ".") {
		kind = ast.LiteralDecimal
	}
	return ast.NewLiteral(numTok.Value, kind, numTok.Value), nil
}

// classifyDateTime decides whether an @-prefixed lexeme (with its leading
// @ still attached) denotes a Date, a DateTime, or a Time literal.
func classifyDateTime(lexeme string) ast.LiteralKind {
	body := strings.TrimPrefix(lexeme, "@")
	if strings.HasPrefix(body, "T") {
		return ast.LiteralTime
	}
	if strings.Contains(body, "T") {
		return ast.LiteralDateTime
	}
	return ast.LiteralDate
}
