package parser

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

func (t token) is(text string) bool {
	return t.kind != tokString && t.text == text
}

func (t token) ident() bool { return t.kind == tokIdent }

// lexer splits source text into the few token classes the header grammars
// need. Comment syntax and identifier rules depend on the notation.
type lexer struct {
	unit     source.Handle
	notation module.Notation
	src      []byte
	pos      int
	line     int
	col      int
	diags    []*diag.Diagnostic
}

func newLexer(unit source.Handle, notation module.Notation, src []byte) *lexer {
	return &lexer{unit: unit, notation: notation, src: src, line: 1, col: 1}
}

func tokenize(unit source.Handle, notation module.Notation, src []byte) ([]token, []*diag.Diagnostic) {
	lx := newLexer(unit, notation, src)
	var toks []token
	for {
		tok := lx.next()
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, lx.diags
		}
	}
}

func (lx *lexer) errorf(line, col int, format string, args ...any) {
	lx.diags = append(lx.diags, diag.NewError(diag.CodeSyntax, format, args...).
		At(source.Location{Unit: lx.unit, Line: line, Column: col}).
		InPhase(diag.PhaseSyntax))
}

func (lx *lexer) peekByte(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

func (lx *lexer) advance(n int) {
	for i := 0; i < n && lx.pos < len(lx.src); i++ {
		if lx.src[lx.pos] == '\n' {
			lx.line++
			lx.col = 1
		} else {
			lx.col++
		}
		lx.pos++
	}
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f':
			lx.advance(1)
		case c == '/' && lx.peekByte(1) == '*':
			lx.blockComment()
		case c == '/' && lx.peekByte(1) == '/' && lx.notation == module.NotationTTCN:
			lx.lineComment()
		case c == '-' && lx.peekByte(1) == '-' && lx.notation == module.NotationASN1:
			lx.asn1Comment()
		default:
			return
		}
	}
}

func (lx *lexer) blockComment() {
	line, col := lx.line, lx.col
	lx.advance(2)
	depth := 1
	for lx.pos < len(lx.src) {
		switch {
		case lx.src[lx.pos] == '*' && lx.peekByte(1) == '/':
			lx.advance(2)
			depth--
			if depth == 0 {
				return
			}
		case lx.src[lx.pos] == '/' && lx.peekByte(1) == '*' && lx.notation == module.NotationASN1:
			lx.advance(2)
			depth++
		default:
			lx.advance(1)
		}
	}
	lx.errorf(line, col, "unterminated block comment")
}

func (lx *lexer) lineComment() {
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.advance(1)
	}
}

// asn1Comment consumes "--" up to the next "--" or the end of the line.
func (lx *lexer) asn1Comment() {
	lx.advance(2)
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '\n' {
			return
		}
		if c == '-' && lx.peekByte(1) == '-' {
			lx.advance(2)
			return
		}
		lx.advance(1)
	}
}

func (lx *lexer) next() token {
	lx.skipSpaceAndComments()
	line, col := lx.line, lx.col
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, line: line, col: col}
	}

	start := lx.pos
	c := lx.src[lx.pos]
	switch {
	case isIdentStart(c):
		lx.advance(1)
		for lx.pos < len(lx.src) {
			c := lx.src[lx.pos]
			if isIdentPart(c) {
				lx.advance(1)
				continue
			}
			// ASN.1 allows single hyphens inside names, never at the end
			// and never doubled (which would start a comment).
			if c == '-' && lx.notation == module.NotationASN1 && isIdentPart(lx.peekByte(1)) {
				lx.advance(1)
				continue
			}
			break
		}
		return token{kind: tokIdent, text: string(lx.src[start:lx.pos]), line: line, col: col}

	case c >= '0' && c <= '9':
		for lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
			lx.advance(1)
		}
		if lx.peekByte(0) == '.' && lx.peekByte(1) >= '0' && lx.peekByte(1) <= '9' {
			lx.advance(1)
			for lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
				lx.advance(1)
			}
		}
		return token{kind: tokNumber, text: string(lx.src[start:lx.pos]), line: line, col: col}

	case c == '"':
		lx.quoted('"')
		return token{kind: tokString, text: string(lx.src[start:lx.pos]), line: line, col: col}

	case c == '\'':
		lx.quoted('\'')
		if isLetter(lx.peekByte(0)) {
			lx.advance(1)
		}
		return token{kind: tokString, text: string(lx.src[start:lx.pos]), line: line, col: col}
	}

	for _, p := range punctuators {
		if hasPrefixAt(lx.src, lx.pos, p) {
			lx.advance(len(p))
			return token{kind: tokPunct, text: p, line: line, col: col}
		}
	}

	r, size := utf8.DecodeRune(lx.src[lx.pos:])
	lx.advance(size)
	if !unicode.IsPrint(r) {
		lx.errorf(line, col, "unexpected character %U", r)
		return lx.next()
	}
	return token{kind: tokPunct, text: string(r), line: line, col: col}
}

// quoted consumes a string delimited by q. A doubled delimiter is an escape.
func (lx *lexer) quoted(q byte) {
	line, col := lx.line, lx.col
	lx.advance(1)
	for lx.pos < len(lx.src) {
		if lx.src[lx.pos] == q {
			if lx.peekByte(1) == q {
				lx.advance(2)
				continue
			}
			lx.advance(1)
			return
		}
		lx.advance(1)
	}
	lx.errorf(line, col, "unterminated string literal")
}

// Longest first.
var punctuators = []string{"::=", "...", "..", ":=", "[[", "]]", "==", "!=", "<=", ">=", "->", "=>"}

func hasPrefixAt(src []byte, pos int, p string) bool {
	if pos+len(p) > len(src) {
		return false
	}
	return string(src[pos:pos+len(p)]) == p
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentStart(c byte) bool {
	return isLetter(c)
}

func isIdentPart(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9' || c == '_'
}

func isUpper(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

// cursor walks a token slice.
type cursor struct {
	toks []token
	i    int
}

func (c *cursor) peek() token { return c.at(0) }

func (c *cursor) at(off int) token {
	if c.i+off < len(c.toks) {
		return c.toks[c.i+off]
	}
	return c.toks[len(c.toks)-1]
}

func (c *cursor) next() token {
	t := c.peek()
	if c.i < len(c.toks)-1 {
		c.i++
	}
	return t
}

func (c *cursor) eof() bool { return c.peek().kind == tokEOF }

func (c *cursor) accept(text string) bool {
	if c.peek().is(text) {
		c.next()
		return true
	}
	return false
}

// skipGroup consumes a balanced group starting at the current open token and
// returns the tokens strictly inside it.
func (c *cursor) skipGroup() []token {
	open := c.next()
	closeText := map[string]string{"{": "}", "(": ")", "[": "]"}[open.text]
	start := c.i
	depth := 1
	for !c.eof() {
		t := c.next()
		switch {
		case t.is(open.text):
			depth++
		case t.is(closeText):
			depth--
			if depth == 0 {
				return c.toks[start : c.i-1]
			}
		}
	}
	return c.toks[start:c.i]
}

func describe(t token) string {
	if t.kind == tokEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", t.text)
}
