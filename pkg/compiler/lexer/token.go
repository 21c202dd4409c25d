package lexer

import "fmt"

// Kind represents the type of token produced by the scanner.
type Kind uint8

const (
	KindEOF Kind = iota
	KindEOL
	KindError

	// block structure synthesized from leading whitespace
	KindIndent
	KindDedent

	// primary
	KindIdentifier
	KindNumber
	KindString

	// keywords
	KindDef
	KindExtern
	KindReturn
	KindIf
	KindElif
	KindElse
	KindFor
	KindIn
	KindRange
	KindVar
	KindWhile
	KindNot
	KindAnd
	KindOr

	// any other single character: '(' ')' ',' ':' '@' '=' '<' '+' ...
	KindOperator
)

var kindNames = map[Kind]string{
	KindEOF:        "<eof>",
	KindEOL:        "<eol>",
	KindError:      "<error>",
	KindIndent:     "<indent>",
	KindDedent:     "<dedent>",
	KindIdentifier: "<identifier>",
	KindNumber:     "<number>",
	KindString:     "<string>",
	KindDef:        "<def>",
	KindExtern:     "<extern>",
	KindReturn:     "<return>",
	KindIf:         "<if>",
	KindElif:       "<elif>",
	KindElse:       "<else>",
	KindFor:        "<for>",
	KindIn:         "<in>",
	KindRange:      "<range>",
	KindVar:        "<var>",
	KindWhile:      "<while>",
	KindNot:        "<not>",
	KindAnd:        "<and>",
	KindOr:         "<or>",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "<operator>"
}

var keywords = map[string]Kind{
	"def":    KindDef,
	"extern": KindExtern,
	"return": KindReturn,
	"if":     KindIf,
	"elif":   KindElif,
	"else":   KindElse,
	"for":    KindFor,
	"in":     KindIn,
	"range":  KindRange,
	"var":    KindVar,
	"while":  KindWhile,
	"not":    KindNot,
	"and":    KindAnd,
	"or":     KindOr,
}

// Token is a lexical unit with its source position. Text carries the
// identifier/operator spelling, the decoded string payload, or the error
// message for KindError. Num is filled in for KindNumber.
type Token struct {
	Kind   Kind
	Text   string
	Num    float64
	Line   int
	Column int
}

// IsChar reports whether the token is the single operator character c.
func (t Token) IsChar(c byte) bool {
	return t.Kind == KindOperator && len(t.Text) == 1 && t.Text[0] == c
}

// Describe returns the token the way diagnostics show it: the captured
// text for identifiers and literals, the kind name for the rest.
func (t Token) Describe() string {
	switch t.Kind {
	case KindIdentifier, KindOperator:
		return fmt.Sprintf("'%s'", t.Text)
	case KindNumber:
		return fmt.Sprintf("number %g", t.Num)
	case KindString:
		return fmt.Sprintf("string %q", t.Text)
	case KindError:
		return "<error>"
	default:
		return t.Kind.String()
	}
}
