package lexer

import "testing"

func kinds(tokens []Token) []Kind {
	out := make([]Kind, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Kind)
	}
	return out
}

func assertKinds(t *testing.T, input string, want ...Kind) {
	t.Helper()
	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize(%q) error: %v", input, err)
	}
	got := kinds(tokens)
	if len(got) != len(want) {
		t.Fatalf("Tokenize(%q) = %v, want %v", input, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize(%q)[%d] = %v, want %v (full: %v)", input, i, got[i], want[i], got)
		}
	}
}

func TestTokenize_Punctuation(t *testing.T) {
	assertKinds(t, "a.b", Symbol, Dot, Symbol, EOF)
	assertKinds(t, "a[0]", Symbol, LBrack, Number, RBrack, EOF)
	assertKinds(t, "f(a, b)", Symbol, LParen, Symbol, Comma, Symbol, RParen, EOF)
	assertKinds(t, "{}", LBrace, RBrace, EOF)
}

func TestTokenize_Operators(t *testing.T) {
	assertKinds(t, "a = b", Symbol, Eq, Symbol, EOF)
	assertKinds(t, "a != b", Symbol, Neq, Symbol, EOF)
	assertKinds(t, "a <= b", Symbol, Le, Symbol, EOF)
	assertKinds(t, "a >= b", Symbol, Ge, Symbol, EOF)
	assertKinds(t, "a ~ b", Symbol, Equiv, Symbol, EOF)
	assertKinds(t, "a !~ b", Symbol, NotEquiv, Symbol, EOF)
	assertKinds(t, "a | b", Symbol, Pipe, Symbol, EOF)
	assertKinds(t, "a & b", Symbol, Ampersand, Symbol, EOF)
}

func TestTokenize_String(t *testing.T) {
	tokens, err := Tokenize(`'hello\nworld'`)
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Kind != String || tokens[0].Value != "hello\nworld" {
		t.Fatalf("got %+v", tokens[0])
	}
}

func TestTokenize_UnterminatedString(t *testing.T) {
	_, err := Tokenize(`'unterminated`)
	if err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestTokenize_Number(t *testing.T) {
	tokens, err := Tokenize("3.14")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Kind != Number || tokens[0].Value != "3.14" {
		t.Fatalf("got %+v", tokens[0])
	}

	tokens, err = Tokenize("3.years")
	if err != nil {
		t.Fatal(err)
	}
	// a dot followed by a letter is navigation, not a decimal point
	assertKinds(t, "3.years", Number, Dot, Symbol, EOF)
	if tokens[0].Value != "3" {
		t.Fatalf("expected bare integer before dot-navigation, got %q", tokens[0].Value)
	}
}

func TestTokenize_DateTime(t *testing.T) {
	tokens, err := Tokenize("@2024-01-15T10:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Kind != DateTime || tokens[0].Value != "@2024-01-15T10:30:00Z" {
		t.Fatalf("got %+v", tokens[0])
	}
}

func TestTokenize_BacktickIdentifier(t *testing.T) {
	tokens, err := Tokenize("`PID-1`.value")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Kind != Symbol || tokens[0].Value != "PID-1" {
		t.Fatalf("got %+v", tokens[0])
	}
}

func TestTokenize_Keywords(t *testing.T) {
	assertKinds(t, "a and b", Symbol, Keyword, Symbol, EOF)
	assertKinds(t, "a or b", Symbol, Keyword, Symbol, EOF)
	assertKinds(t, "a implies b", Symbol, Keyword, Symbol, EOF)
	assertKinds(t, "a in b", Symbol, Keyword, Symbol, EOF)
	assertKinds(t, "true", Keyword, EOF)
}

func TestTokenize_SpecialVariables(t *testing.T) {
	assertKinds(t, "$this.name", Dollar, Dot, Symbol, EOF)
	assertKinds(t, "$index", Dollar, EOF)
	assertKinds(t, "%resource", Percent, Symbol, EOF)
}

func TestTokenize_Comments(t *testing.T) {
	tokens, err := Tokenize("a // trailing comment\n.b")
	if err != nil {
		t.Fatal(err)
	}
	var sawComment bool
	for _, tok := range tokens {
		if tok.Kind == Comment {
			sawComment = true
		}
	}
	if !sawComment {
		t.Fatal("expected a Comment token to be preserved")
	}

	tokens, err = Tokenize("/* block */a")
	if err != nil {
		t.Fatal(err)
	}
	if tokens[0].Kind != Comment {
		t.Fatalf("expected leading block comment token, got %+v", tokens[0])
	}
}

func TestTokenize_UnexpectedBang(t *testing.T) {
	_, err := Tokenize("a ! b")
	if err == nil {
		t.Fatal("expected error for bare '!'")
	}
}
