package lexer

import (
	"fmt"
	"strconv"
)

// Scanner performs lexical analysis on pyx source, synthesizing indent and
// dedent tokens from leading whitespace the way Python does.
type Scanner struct {
	source []byte
	cursor int
	line   int
	col    int // 1-based column of the next unread character

	atLineStart bool
	indents     []int   // widths of open blocks, bottom always 0
	pending     []Token // queued dedents from a multi-level close
	indentChar  byte    // ' ' or '\t' once fixed for the module, 0 before
}

// NewScanner creates a new scanner for the given source.
func NewScanner(source []byte) *Scanner {
	return &Scanner{
		source:      source,
		line:        1,
		col:         1,
		atLineStart: true,
		indents:     []int{0},
	}
}

// Next returns the next token from the source.
func (s *Scanner) Next() Token {
	if len(s.pending) > 0 {
		tok := s.pending[0]
		s.pending = s.pending[1:]
		return tok
	}

	if s.atLineStart {
		if tok, emitted := s.scanLineStart(); emitted {
			return tok
		}
	}

	s.skipSpaces()

	line, col := s.line, s.col

	if s.cursor >= len(s.source) {
		return s.drainIndents(line, col)
	}

	ch := s.source[s.cursor]

	switch {
	case ch == '\n' || ch == '\r':
		s.consumeNewline()
		s.atLineStart = true
		return Token{Kind: KindEOL, Line: line, Column: col}

	case ch == '#':
		for s.cursor < len(s.source) && s.source[s.cursor] != '\n' && s.source[s.cursor] != '\r' {
			s.advance()
		}
		return s.Next()

	case isAlpha(ch) || ch == '_':
		return s.scanIdentifier(line, col)

	case isDigit(ch) || (ch == '.' && s.cursor+1 < len(s.source) && isDigit(s.source[s.cursor+1])):
		return s.scanNumber(line, col)

	case ch == '"':
		return s.scanString(line, col)

	default:
		s.advance()
		return Token{Kind: KindOperator, Text: string(ch), Line: line, Column: col}
	}
}

// scanLineStart measures leading whitespace at a logical line start and
// compares it against the indentation stack. It reports whether a token
// was emitted; when it returns false the line continues at the same level.
func (s *Scanner) scanLineStart() (Token, bool) {
	width, err := s.measureIndent()
	if err != nil {
		s.indents = s.indents[:1]
		s.pending = s.pending[:0]
		// scanning resumes after the broken leading whitespace, so the
		// stream keeps moving toward eol/eof
		s.atLineStart = false
		tok := Token{Kind: KindError, Text: err.Error(), Line: s.line, Column: s.col}
		s.skipSpaces()
		return tok, true
	}
	s.atLineStart = false

	if s.cursor >= len(s.source) {
		// Nothing but trailing whitespace; EOF handling drains the stack.
		return Token{}, false
	}

	line, col := s.line, 1
	top := s.indents[len(s.indents)-1]
	switch {
	case width > top:
		s.indents = append(s.indents, width)
		return Token{Kind: KindIndent, Line: line, Column: col}, true

	case width < top:
		n := 0
		for width < s.indents[len(s.indents)-1] {
			s.indents = s.indents[:len(s.indents)-1]
			n++
		}
		if width != s.indents[len(s.indents)-1] {
			s.indents = s.indents[:1]
			s.pending = s.pending[:0]
			msg := fmt.Sprintf("unindent does not match any outer indentation level (width %d)", width)
			return Token{Kind: KindError, Text: msg, Line: line, Column: col}, true
		}
		for i := 1; i < n; i++ {
			s.pending = append(s.pending, Token{Kind: KindDedent, Line: line, Column: col})
		}
		return Token{Kind: KindDedent, Line: line, Column: col}, true
	}
	return Token{}, false
}

// measureIndent consumes leading whitespace and blank lines, returning the
// visual width of the first non-blank line. Tabs advance to the next
// multiple of 8. The first indented line fixes the module's indentation
// character; mixing afterwards is a lexical error.
func (s *Scanner) measureIndent() (int, error) {
	for {
		width := 0
		fixedHere := false
		for s.cursor < len(s.source) {
			ch := s.source[s.cursor]
			if ch != ' ' && ch != '\t' {
				break
			}
			if s.indentChar == 0 {
				s.indentChar = ch
				fixedHere = true
			} else if ch != s.indentChar {
				return 0, fmt.Errorf("cannot mix tabs and spaces in indentation")
			}
			if ch == '\t' {
				width += 8 - width%8
			} else {
				width++
			}
			s.advance()
		}

		if s.cursor < len(s.source) && (s.source[s.cursor] == '\n' || s.source[s.cursor] == '\r') {
			// Blank line: produces nothing, and must not fix the module
			// indentation character.
			if fixedHere {
				s.indentChar = 0
			}
			s.consumeNewline()
			continue
		}
		return width, nil
	}
}

func (s *Scanner) drainIndents(line, col int) Token {
	n := len(s.indents) - 1
	if n > 0 {
		s.indents = s.indents[:1]
		for i := 1; i < n; i++ {
			s.pending = append(s.pending, Token{Kind: KindDedent, Line: line, Column: col})
		}
		s.pending = append(s.pending, Token{Kind: KindEOF, Line: line, Column: col})
		return Token{Kind: KindDedent, Line: line, Column: col}
	}
	return Token{Kind: KindEOF, Line: line, Column: col}
}

func (s *Scanner) scanIdentifier(line, col int) Token {
	start := s.cursor
	for s.cursor < len(s.source) {
		ch := s.source[s.cursor]
		if !isAlpha(ch) && !isDigit(ch) && ch != '_' {
			break
		}
		s.advance()
	}
	text := string(s.source[start:s.cursor])
	if kind, ok := keywords[text]; ok {
		return Token{Kind: kind, Text: text, Line: line, Column: col}
	}
	return Token{Kind: KindIdentifier, Text: text, Line: line, Column: col}
}

func (s *Scanner) scanNumber(line, col int) Token {
	start := s.cursor
	for s.cursor < len(s.source) {
		ch := s.source[s.cursor]
		if !isDigit(ch) && ch != '.' {
			break
		}
		s.advance()
	}
	text := string(s.source[start:s.cursor])
	val, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{Kind: KindError, Text: fmt.Sprintf("malformed number literal '%s'", text), Line: line, Column: col}
	}
	return Token{Kind: KindNumber, Text: text, Num: val, Line: line, Column: col}
}

func (s *Scanner) scanString(line, col int) Token {
	s.advance() // opening quote
	var buf []byte
	for {
		if s.cursor >= len(s.source) || s.source[s.cursor] == '\n' || s.source[s.cursor] == '\r' {
			return Token{Kind: KindError, Text: "unterminated string literal", Line: line, Column: col}
		}
		ch := s.source[s.cursor]
		s.advance()
		if ch == '"' {
			return Token{Kind: KindString, Text: string(buf), Line: line, Column: col}
		}
		if ch != '\\' {
			buf = append(buf, ch)
			continue
		}
		if s.cursor >= len(s.source) {
			return Token{Kind: KindError, Text: "unterminated string literal", Line: line, Column: col}
		}
		esc := s.source[s.cursor]
		s.advance()
		switch esc {
		case 'n':
			buf = append(buf, '\n')
		case 't':
			buf = append(buf, '\t')
		case 'r':
			buf = append(buf, '\r')
		case '0':
			buf = append(buf, 0)
		case '\\':
			buf = append(buf, '\\')
		case '"':
			buf = append(buf, '"')
		default:
			return Token{Kind: KindError, Text: fmt.Sprintf("unknown escape sequence '\\%c'", esc), Line: line, Column: col}
		}
	}
}

func (s *Scanner) skipSpaces() {
	for s.cursor < len(s.source) {
		ch := s.source[s.cursor]
		if ch != ' ' && ch != '\t' {
			return
		}
		s.advance()
	}
}

func (s *Scanner) consumeNewline() {
	if s.source[s.cursor] == '\r' && s.cursor+1 < len(s.source) && s.source[s.cursor+1] == '\n' {
		s.cursor++
	}
	s.cursor++
	s.line++
	s.col = 1
}

func (s *Scanner) advance() {
	s.cursor++
	s.col++
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
