package lexer_test

import (
	"testing"

	"github.com/pyxlang/pyx/pkg/compiler/lexer"
)

func scanKinds(src string) []lexer.Kind {
	s := lexer.NewScanner([]byte(src))
	var kinds []lexer.Kind
	for {
		tok := s.Next()
		kinds = append(kinds, tok.Kind)
		if tok.Kind == lexer.KindEOF {
			return kinds
		}
	}
}

func scanAll(src string) []lexer.Token {
	s := lexer.NewScanner([]byte(src))
	var toks []lexer.Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Kind == lexer.KindEOF || tok.Kind == lexer.KindError {
			return toks
		}
	}
}

func kindsEqual(a, b []lexer.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIndentationBalance(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []lexer.Kind
	}{
		{
			name: "simple block",
			src:  "if x:\n  y\n",
			want: []lexer.Kind{
				lexer.KindIf, lexer.KindIdentifier, lexer.KindOperator, lexer.KindEOL,
				lexer.KindIndent, lexer.KindIdentifier, lexer.KindEOL,
				lexer.KindDedent, lexer.KindEOF,
			},
		},
		{
			name: "eof drains open levels",
			src:  "if x:\n  if y:\n    z",
			want: []lexer.Kind{
				lexer.KindIf, lexer.KindIdentifier, lexer.KindOperator, lexer.KindEOL,
				lexer.KindIndent, lexer.KindIf, lexer.KindIdentifier, lexer.KindOperator, lexer.KindEOL,
				lexer.KindIndent, lexer.KindIdentifier,
				lexer.KindDedent, lexer.KindDedent, lexer.KindEOF,
			},
		},
		{
			name: "multi level close queues dedents",
			src:  "if x:\n  if y:\n    z\nw\n",
			want: []lexer.Kind{
				lexer.KindIf, lexer.KindIdentifier, lexer.KindOperator, lexer.KindEOL,
				lexer.KindIndent, lexer.KindIf, lexer.KindIdentifier, lexer.KindOperator, lexer.KindEOL,
				lexer.KindIndent, lexer.KindIdentifier, lexer.KindEOL,
				lexer.KindDedent, lexer.KindDedent, lexer.KindIdentifier, lexer.KindEOL,
				lexer.KindEOF,
			},
		},
		{
			name: "blank lines do not close blocks",
			src:  "if x:\n  y\n\n  z\n",
			want: []lexer.Kind{
				lexer.KindIf, lexer.KindIdentifier, lexer.KindOperator, lexer.KindEOL,
				lexer.KindIndent, lexer.KindIdentifier, lexer.KindEOL,
				lexer.KindIdentifier, lexer.KindEOL,
				lexer.KindDedent, lexer.KindEOF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanKinds(tt.src)
			if !kindsEqual(got, tt.want) {
				t.Errorf("kinds = %v, want %v", got, tt.want)
			}
		})
	}
}

// Re-indenting a program with a different uniform width must not change
// its token stream.
func TestReindentInvariance(t *testing.T) {
	two := "def f(x):\n  if x:\n    return 1\n  return 2\n"
	four := "def f(x):\n    if x:\n        return 1\n    return 2\n"
	tab := "def f(x):\n\tif x:\n\t\treturn 1\n\treturn 2\n"

	base := scanKinds(two)
	if got := scanKinds(four); !kindsEqual(got, base) {
		t.Errorf("four-space kinds = %v, want %v", got, base)
	}
	if got := scanKinds(tab); !kindsEqual(got, base) {
		t.Errorf("tab kinds = %v, want %v", got, base)
	}
}

func TestIndentationErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "mixed tabs and spaces",
			src:     "if a:\n  b\n\tc\n",
			wantMsg: "cannot mix tabs and spaces in indentation",
		},
		{
			name:    "tab module rejects spaces",
			src:     "if a:\n\tb\n  c\n",
			wantMsg: "cannot mix tabs and spaces in indentation",
		},
		{
			name:    "unindent to unknown level",
			src:     "if a:\n    b\n  c\n",
			wantMsg: "unindent does not match any outer indentation level (width 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := scanAll(tt.src)
			last := toks[len(toks)-1]
			if last.Kind != lexer.KindError {
				t.Fatalf("expected an error token, got %v", last.Kind)
			}
			if last.Text != tt.wantMsg {
				t.Errorf("error = %q, want %q", last.Text, tt.wantMsg)
			}
		})
	}
}

// The stream must keep moving after a mixed-indentation error so the
// parser can resynchronize instead of reading the same token forever.
func TestMixedIndentationRecovery(t *testing.T) {
	s := lexer.NewScanner([]byte("if a:\n  b\n\tc\n"))
	var kinds []lexer.Kind
	errTokens := 0
	for i := 0; i < 50; i++ {
		tok := s.Next()
		kinds = append(kinds, tok.Kind)
		if tok.Kind == lexer.KindError {
			errTokens++
		}
		if tok.Kind == lexer.KindEOF {
			break
		}
	}
	if kinds[len(kinds)-1] != lexer.KindEOF {
		t.Fatalf("scanner never reached eof: %v", kinds)
	}
	if errTokens != 1 {
		t.Errorf("error tokens = %d, want 1", errTokens)
	}
}

// A blank line indented with a tab must not fix the module's indentation
// character before any real indentation is seen.
func TestBlankLineDoesNotFixIndentChar(t *testing.T) {
	src := "x\n\t\nif a:\n  b\n"
	toks := scanAll(src)
	for _, tok := range toks {
		if tok.Kind == lexer.KindError {
			t.Fatalf("unexpected error token: %s", tok.Text)
		}
	}
}

func TestTabWidth(t *testing.T) {
	// four spaces open a block
	src := "if a:\n    b\n"
	toks := scanKinds(src)
	wantIndent := false
	for _, k := range toks {
		if k == lexer.KindIndent {
			wantIndent = true
		}
	}
	if !wantIndent {
		t.Fatal("expected an indent token")
	}

	// a single tab expands to width 8 and opens a block by itself
	s := lexer.NewScanner([]byte("\tx"))
	tok := s.Next()
	if tok.Kind != lexer.KindIndent {
		t.Fatalf("got %v, want indent", tok.Kind)
	}
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantKind lexer.Kind
		wantText string
		wantNum  float64
	}{
		{name: "integer", src: "42", wantKind: lexer.KindNumber, wantNum: 42},
		{name: "fraction", src: ".5", wantKind: lexer.KindNumber, wantNum: 0.5},
		{name: "decimal", src: "1.25", wantKind: lexer.KindNumber, wantNum: 1.25},
		{name: "two dots", src: "1.2.3", wantKind: lexer.KindError, wantText: "malformed number literal '1.2.3'"},
		{name: "string", src: `"hi"`, wantKind: lexer.KindString, wantText: "hi"},
		{name: "string escapes", src: `"a\n\t\"b\""`, wantKind: lexer.KindString, wantText: "a\n\t\"b\""},
		{name: "unterminated string", src: `"abc`, wantKind: lexer.KindError, wantText: "unterminated string literal"},
		{name: "unknown escape", src: `"a\q"`, wantKind: lexer.KindError, wantText: `unknown escape sequence '\q'`},
		{name: "keyword", src: "while", wantKind: lexer.KindWhile, wantText: "while"},
		{name: "identifier", src: "_x9", wantKind: lexer.KindIdentifier, wantText: "_x9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := lexer.NewScanner([]byte(tt.src)).Next()
			if tok.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", tok.Kind, tt.wantKind)
			}
			if tt.wantText != "" && tok.Text != tt.wantText {
				t.Errorf("text = %q, want %q", tok.Text, tt.wantText)
			}
			if tt.wantNum != 0 && tok.Num != tt.wantNum {
				t.Errorf("num = %g, want %g", tok.Num, tt.wantNum)
			}
		})
	}
}

func TestCommentsAndPositions(t *testing.T) {
	src := "x # trailing comment\ny\n"
	toks := scanAll(src)
	want := []lexer.Kind{
		lexer.KindIdentifier, lexer.KindEOL,
		lexer.KindIdentifier, lexer.KindEOL, lexer.KindEOF,
	}
	var kinds []lexer.Kind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	if !kindsEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	if toks[2].Line != 2 || toks[2].Column != 1 {
		t.Errorf("y at %d:%d, want 2:1", toks[2].Line, toks[2].Column)
	}
}
