package parser

import (
	"strings"

	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

// ASN1Grammar extracts the module header, EXPORTS, IMPORTS and top-level
// assignment names of an ASN.1 module. Assignment bodies are only scanned for
// type, class and set references.
type ASN1Grammar struct{}

func (ASN1Grammar) Parse(h source.Handle, text []byte) (*module.Module, []*diag.Diagnostic) {
	toks, diags := tokenize(h, module.NotationASN1, text)
	p := &asn1Parser{unit: h, c: cursor{toks: toks}, diags: diags}
	m := p.parse()
	return m, p.diags
}

var asn1Keywords = toSet(`ABSENT ABSTRACT-SYNTAX ALL APPLICATION AUTOMATIC BEGIN BIT BMPString BOOLEAN BY
CHARACTER CHOICE CLASS COMPONENT COMPONENTS CONSTRAINED CONTAINING DATE DATE-TIME DEFAULT DEFINITIONS
DURATION EMBEDDED ENCODED ENCODING-CONTROL END ENUMERATED EXCEPT EXPLICIT EXPORTS EXTENSIBILITY EXTERNAL
FALSE FROM GeneralizedTime GeneralString GraphicString IA5String IDENTIFIER IMPLICIT IMPLIED IMPORTS
INCLUDES INSTANCE INSTRUCTIONS INTEGER INTERSECTION ISO646String MAX MIN MINUS-INFINITY NOT-A-NUMBER NULL
NumericString OBJECT ObjectDescriptor OCTET OF OID-IRI OPTIONAL PATTERN PDV PLUS-INFINITY PRESENT
PrintableString PRIVATE REAL RELATIVE-OID RELATIVE-OID-IRI SEQUENCE SET SETTINGS SIZE STRING SYNTAX T61String
TAGS TeletexString TIME TIME-OF-DAY TRUE TYPE-IDENTIFIER UNION UNIQUE UNIVERSAL UniversalString UTCTime
UTF8String VideotexString VisibleString WITH SUCCESSORS DESCENDANTS`)

func toSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

type asn1Parser struct {
	unit  source.Handle
	c     cursor
	diags []*diag.Diagnostic
}

func (p *asn1Parser) loc(t token) source.Location {
	return source.Location{Unit: p.unit, Line: t.line, Column: t.col}
}

func (p *asn1Parser) errorf(t token, format string, args ...any) {
	p.diags = append(p.diags, diag.NewError(diag.CodeSyntax, format, args...).At(p.loc(t)).InPhase(diag.PhaseSyntax))
}

func (p *asn1Parser) ident(t token) module.Identifier {
	return module.NewIdentifier(t.text, module.NotationASN1, p.loc(t))
}

func (p *asn1Parser) parse() *module.Module {
	c := &p.c
	nameTok := c.peek()
	if !nameTok.ident() || asn1Keywords[nameTok.text] {
		p.errorf(nameTok, "expected module reference, found %s", describe(nameTok))
		return nil
	}
	c.next()
	if c.peek().is("{") {
		c.skipGroup()
	}
	if c.peek().kind == tokString {
		c.next()
	}
	if !c.accept("DEFINITIONS") {
		p.errorf(c.peek(), "expected DEFINITIONS after module reference, found %s", describe(c.peek()))
		return nil
	}
	for !c.eof() && !c.peek().is("::=") {
		c.next()
	}
	if !c.accept("::=") {
		p.errorf(c.peek(), "expected \"::=\" in module header")
		return nil
	}

	m := module.New(p.ident(nameTok), p.unit)
	if !c.accept("BEGIN") {
		p.errorf(c.peek(), "expected BEGIN, found %s", describe(c.peek()))
	}

	if c.peek().is("EXPORTS") {
		p.parseExports(m)
	}
	if c.peek().is("IMPORTS") {
		p.parseImports(m)
	}
	p.parseAssignments(m)

	if !c.accept("END") {
		p.errorf(c.peek(), "missing END of module %s", m.Name.Name)
		return m
	}
	if !c.eof() {
		t := c.peek()
		p.diags = append(p.diags, diag.NewWarning(diag.CodeSyntax,
			"only one module per source unit is analyzed; content after END is ignored").
			At(p.loc(t)).InPhase(diag.PhaseSyntax))
	}
	return m
}

func (p *asn1Parser) parseExports(m *module.Module) {
	c := &p.c
	kw := c.next()
	m.Exports = module.Exports{Location: p.loc(kw)}
	if c.accept("ALL") {
		m.Exports.All = true
	}
	for !c.eof() && !c.peek().is(";") {
		t := c.peek()
		switch {
		case t.is("END"), t.is("IMPORTS"):
			p.errorf(t, "missing \";\" after EXPORTS")
			return
		case t.is("{"):
			// Parameterized reference marker "Name{}".
			c.skipGroup()
		case t.ident():
			c.next()
			if !m.Exports.All {
				m.Exports.Symbols = append(m.Exports.Symbols, module.Symbol{Identifier: p.ident(t)})
			}
		case t.is(","):
			c.next()
		default:
			c.next()
			p.errorf(t, "unexpected %s in EXPORTS", describe(t))
		}
	}
	if !c.accept(";") {
		p.errorf(c.peek(), "missing \";\" after EXPORTS")
	}
}

func (p *asn1Parser) parseImports(m *module.Module) {
	c := &p.c
	c.next()
	var pending []module.Symbol
	for !c.eof() && !c.peek().is(";") {
		t := c.peek()
		switch {
		case t.is("END"):
			p.errorf(t, "missing \";\" after IMPORTS")
			return
		case t.is("FROM"):
			c.next()
			target := c.next()
			if !target.ident() {
				p.errorf(target, "expected module reference after FROM, found %s", describe(target))
				continue
			}
			var edge *module.ImportEdge
			if len(pending) == 0 {
				edge = module.NewImportAll(p.ident(target), p.loc(target))
			} else {
				edge = module.NewImportSymbols(p.ident(target), p.loc(target), pending...)
			}
			m.Imports.Edges = append(m.Imports.Edges, edge)
			pending = nil
			p.skipAssignedIdentifier()
		case t.is(","):
			c.next()
		case t.is("{"):
			c.skipGroup()
		case t.ident():
			c.next()
			pending = append(pending, module.Symbol{Identifier: p.ident(t)})
		default:
			c.next()
			p.errorf(t, "unexpected %s in IMPORTS", describe(t))
		}
	}
	if len(pending) > 0 {
		p.errorf(c.peek(), "imported symbols without FROM clause")
	}
	if !c.accept(";") {
		p.errorf(c.peek(), "missing \";\" after IMPORTS")
	}
}

// skipAssignedIdentifier consumes the optional object identifier after the
// module reference of a FROM clause. A lowercase name followed by "," or FROM
// starts the next symbol list instead.
func (p *asn1Parser) skipAssignedIdentifier() {
	c := &p.c
	switch t := c.peek(); {
	case t.is("{"):
		c.skipGroup()
	case t.ident() && !isUpper(t.text) && !asn1Keywords[t.text]:
		after := c.at(1)
		if !after.is(",") && !after.is("FROM") && !after.is("{") {
			c.next()
		}
	}
	if c.peek().is("WITH") {
		c.next()
		c.next()
	}
}

func (p *asn1Parser) parseAssignments(m *module.Module) {
	c := &p.c
	start := c.i
	depth := 0
	end := start
	var assigns []int
scan:
	for ; end < len(c.toks); end++ {
		t := c.toks[end]
		if t.kind == tokEOF {
			break
		}
		switch {
		case t.is("{"), t.is("("), t.is("["), t.is("[["):
			depth++
		case t.is("}"), t.is(")"), t.is("]"), t.is("]]"):
			if depth > 0 {
				depth--
			}
		case depth == 0 && t.is("END"):
			break scan
		case depth == 0 && t.is("::="):
			assigns = append(assigns, end)
		}
	}
	body := c.toks[start:end]
	c.i = end

	starts := make([]int, len(assigns))
	for k, a := range assigns {
		lo := 0
		if k > 0 {
			lo = assigns[k-1] - start + 2
		}
		starts[k] = headerStart(body, a-start, lo)
	}
	if len(starts) > 0 && starts[0] > 0 {
		p.errorf(body[0], "unexpected %s before first assignment", describe(body[0]))
	} else if len(assigns) == 0 && len(body) > 0 {
		p.errorf(body[0], "expected an assignment, found %s", describe(body[0]))
	}

	for k, a := range assigns {
		a -= start
		hs := starts[k]
		next := len(body)
		if k+1 < len(starts) {
			next = starts[k+1]
		}
		if hs >= a || !body[hs].ident() {
			p.errorf(body[a], "assignment without a name")
			continue
		}
		if a+1 > next {
			next = a + 1
		}
		m.AddAssignment(p.assignment(body[hs:a], body[a+1:next]))
	}
}

// headerStart finds where the assignment whose "::=" is at index a begins:
// the first token on the same line, or on the previous line when "::=" opens
// its line. It never goes below lo.
func headerStart(body []token, a, lo int) int {
	line := body[a].line
	if a > 0 && body[a-1].line != line {
		line = body[a-1].line
	}
	i := a
	for i > lo && body[i-1].line == line {
		i--
	}
	if i < lo {
		i = lo
	}
	for i < a && (!body[i].ident() || asn1Keywords[body[i].text]) {
		i++
	}
	return i
}

func (p *asn1Parser) assignment(header, body []token) *module.Assignment {
	name := header[0]
	a := &module.Assignment{ID: p.ident(name), Kind: module.KindType}

	params := map[string]bool{}
	rest := header[1:]
	if len(rest) > 0 && rest[0].is("{") {
		sub := cursor{toks: append(append([]token(nil), rest...), token{kind: tokEOF})}
		for _, t := range sub.skipGroup() {
			if t.ident() {
				params[t.text] = true
			}
		}
		rest = rest[sub.i:]
	}

	var typeRef []token
	for _, t := range rest {
		if t.ident() && !asn1Keywords[t.text] {
			typeRef = append(typeRef, t)
		}
	}
	switch {
	case !isUpper(name.text):
		a.Kind = module.KindValue
		if len(typeRef) > 0 && isClassName(typeRef[len(typeRef)-1].text) {
			a.Kind = module.KindObject
		}
	case len(typeRef) > 0:
		a.Kind = module.KindValueSet
		if isClassName(typeRef[len(typeRef)-1].text) {
			a.Kind = module.KindObjectSet
		}
	case len(body) > 0 && body[0].is("CLASS"):
		a.Kind = module.KindObjectClass
	}

	seen := map[string]bool{}
	add := func(ref module.Reference) {
		key := ref.Module + "." + ref.Name
		if seen[key] {
			return
		}
		seen[key] = true
		a.References = append(a.References, ref)
	}
	p.collectRefs(rest, params, add)
	p.collectRefs(body, params, add)

	if a.Kind == module.KindValue && len(body) == 1 && body[0].ident() && !asn1Keywords[body[0].text] {
		add(module.Reference{Name: body[0].text, Location: p.loc(body[0])})
	}
	return a
}

// isClassName reports whether name follows the all-caps convention of
// information object classes.
func isClassName(name string) bool {
	if !isUpper(name) {
		return false
	}
	return strings.ToUpper(name) == name
}

func (p *asn1Parser) collectRefs(toks []token, params map[string]bool, add func(module.Reference)) {
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.is("SYNTAX") && i+1 < len(toks) && toks[i+1].is("{") {
			// WITH SYNTAX { ... } holds literal syntax words, not references.
			sub := cursor{toks: append(append([]token(nil), toks[i+1:]...), token{kind: tokEOF})}
			sub.skipGroup()
			i += sub.i
			continue
		}
		if !t.ident() || asn1Keywords[t.text] || params[t.text] {
			continue
		}
		if i > 0 && (toks[i-1].is("&") || toks[i-1].is(".")) {
			continue
		}
		if i+2 < len(toks) && toks[i+1].is(".") && toks[i+2].ident() && isUpper(t.text) &&
			toks[i+1].line == t.line && toks[i+2].col == toks[i+1].col+1 && toks[i+1].col == t.col+len(t.text) {
			add(module.Reference{Module: t.text, Name: toks[i+2].text, Location: p.loc(t)})
			i += 2
			continue
		}
		if isUpper(t.text) {
			add(module.Reference{Name: t.text, Location: p.loc(t)})
		}
	}
}
