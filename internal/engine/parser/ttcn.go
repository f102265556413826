package parser

import (
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

// TTCNGrammar extracts module definitions, imports and the type references of
// definition headers from a TTCN-3 module. Statement blocks are skipped.
type TTCNGrammar struct{}

func (TTCNGrammar) Parse(h source.Handle, text []byte) (*module.Module, []*diag.Diagnostic) {
	toks, diags := tokenize(h, module.NotationTTCN, text)
	p := &ttcnParser{unit: h, c: cursor{toks: toks}, diags: diags}
	m := p.parse()
	return m, p.diags
}

var ttcnKeywords = toSet(`action activate address alive all alt altstep and and4b any anytype bitstring boolean
break case call catch char charstring check clear complement component connect const continue control create
deactivate default disconnect display do done else encode enumerated error except exception execute extends
extension external fail false float for friend from function getverdict getcall getreply goto group halt
hexstring if ifpresent import in inconc infinity inout integer interleave kill killed label language length
log map match message mixed mod modifies module modulepar mtc noblock none not not4b nowait null objid
octetstring of omit on optional or or4b out override param pass pattern permutation port present private
procedure public raise read receive record recursive rem repeat reply return running runs select self send
sender set setencode setverdict signature start stop subset superset system template testcase timeout timer
to trigger true type union universal unmap value valueof var variant verdicttype while with xor xor4b
universal`)

// Tokens that may open a definition at module or group level.
var ttcnDefinitionStarts = toSet(`type const template function altstep testcase modulepar import group external
signature control friend public private var timer`)

type ttcnParser struct {
	unit  source.Handle
	c     cursor
	diags []*diag.Diagnostic
	m     *module.Module

	private  []string
	exported []module.Symbol
}

func (p *ttcnParser) loc(t token) source.Location {
	return source.Location{Unit: p.unit, Line: t.line, Column: t.col}
}

func (p *ttcnParser) errorf(t token, format string, args ...any) {
	p.diags = append(p.diags, diag.NewError(diag.CodeSyntax, format, args...).At(p.loc(t)).InPhase(diag.PhaseSyntax))
}

func (p *ttcnParser) ident(t token) module.Identifier {
	return module.NewIdentifier(t.text, module.NotationTTCN, p.loc(t))
}

func (p *ttcnParser) parse() *module.Module {
	c := &p.c
	if !c.accept("module") {
		p.errorf(c.peek(), "expected \"module\", found %s", describe(c.peek()))
		return nil
	}
	nameTok := c.next()
	if !nameTok.ident() || ttcnKeywords[nameTok.text] {
		p.errorf(nameTok, "expected module name, found %s", describe(nameTok))
		return nil
	}
	p.m = module.New(p.ident(nameTok), p.unit)

	if c.accept("language") {
		for c.peek().kind == tokString || c.peek().is(",") {
			c.next()
		}
	}
	if !c.accept("{") {
		p.errorf(c.peek(), "expected \"{\" after module name, found %s", describe(c.peek()))
		return p.m
	}
	if closed := p.definitions(false); !closed {
		p.errorf(c.peek(), "missing \"}\" at end of module %s", p.m.Name.Name)
	}
	for c.accept("with") {
		if c.peek().is("{") {
			c.skipGroup()
		}
	}
	c.accept(";")
	if !c.eof() {
		p.diags = append(p.diags, diag.NewWarning(diag.CodeSyntax,
			"only one module per source unit is analyzed; trailing content is ignored").
			At(p.loc(c.peek())).InPhase(diag.PhaseSyntax))
	}

	// Private definitions narrow the export set; otherwise everything is visible.
	if len(p.private) > 0 {
		p.m.Exports = module.Exports{Symbols: p.exported}
	}
	return p.m
}

// definitions parses definitions until the closing brace of the enclosing
// module or group. It returns false when the input ended first.
func (p *ttcnParser) definitions(private bool) bool {
	c := &p.c
	for {
		t := c.peek()
		switch {
		case t.kind == tokEOF:
			return false
		case t.is("}"):
			c.next()
			return true
		case t.is(";"):
			c.next()
			continue
		}

		if t.is("friend") && c.at(1).is("module") {
			p.skipDefinition()
			continue
		}
		vis := private
		switch {
		case c.accept("private"):
			vis = true
		case c.accept("public"), c.accept("friend"):
		}

		t = c.peek()
		switch t.text {
		case "import":
			p.parseImport()
		case "group":
			c.next()
			c.next()
			if !c.accept("{") {
				p.errorf(c.peek(), "expected \"{\" after group name")
				p.skipDefinition()
				continue
			}
			if !p.definitions(vis) {
				return false
			}
			p.skipAttributes()
		case "control":
			p.skipDefinition()
		case "external":
			c.next()
			p.parseDefinition(vis)
		default:
			if !ttcnDefinitionStarts[t.text] {
				p.errorf(t, "unexpected %s at module level", describe(t))
				p.skipDefinition()
				continue
			}
			p.parseDefinition(vis)
		}
	}
}

func (p *ttcnParser) skipAttributes() {
	c := &p.c
	for c.accept("with") {
		if c.peek().is("{") {
			c.skipGroup()
		}
	}
}

// takeDefinition returns the tokens of one definition. A definition ends at a
// top-level ";" (consumed) or after a closing brace followed by the start of
// another definition. Unbalanced ")" and "]" are swallowed.
func (p *ttcnParser) takeDefinition() []token {
	c := &p.c
	start := c.i
	depth := 0
	for !c.eof() {
		t := c.peek()
		switch {
		case t.is("{"), t.is("("), t.is("["):
			depth++
		case depth == 0 && (t.is(")") || t.is("]")):
			// stray closer, consumed so the caller always makes progress
		case t.is("}"), t.is(")"), t.is("]"):
			if depth == 0 {
				return c.toks[start:c.i]
			}
			depth--
			if depth == 0 && t.is("}") {
				c.next()
				after := c.peek()
				if after.is(";") {
					toks := c.toks[start:c.i]
					c.next()
					return toks
				}
				if after.kind == tokEOF || after.is("}") || ttcnDefinitionStarts[after.text] {
					return c.toks[start:c.i]
				}
				continue
			}
		case depth == 0 && t.is(";"):
			toks := c.toks[start:c.i]
			c.next()
			return toks
		}
		c.next()
	}
	return c.toks[start:c.i]
}

func (p *ttcnParser) skipDefinition() {
	p.takeDefinition()
}

func (p *ttcnParser) parseImport() {
	c := &p.c
	kw := c.next()
	toks := p.takeDefinition()
	sub := cursor{toks: append(append([]token(nil), toks...), token{kind: tokEOF})}
	if !sub.accept("from") {
		p.errorf(kw, "expected \"from\" after import")
		return
	}
	target := sub.next()
	if !target.ident() {
		p.errorf(target, "expected module name after \"import from\", found %s", describe(target))
		return
	}
	if sub.accept("language") {
		for sub.peek().kind == tokString || sub.peek().is(",") {
			sub.next()
		}
	}
	sub.accept("recursive")

	edge := module.NewImportAll(p.ident(target), p.loc(kw))
	switch {
	case sub.peek().is("all"):
	case sub.peek().is("{"):
		var symbols []module.Symbol
		importAll := false
		inner := sub.skipGroup()
		for i := 0; i < len(inner); i++ {
			t := inner[i]
			switch {
			case t.is("except") && i+1 < len(inner) && inner[i+1].is("{"):
				g := cursor{toks: append(append([]token(nil), inner[i+1:]...), token{kind: tokEOF})}
				g.skipGroup()
				i += g.i
			case t.is("all"):
				importAll = true
			case t.ident() && !ttcnKeywords[t.text]:
				symbols = append(symbols, module.Symbol{Identifier: p.ident(t)})
			}
		}
		if !importAll {
			edge = module.NewImportSymbols(p.ident(target), p.loc(kw), symbols...)
		}
	default:
		p.errorf(sub.peek(), "expected \"all\" or an import specification, found %s", describe(sub.peek()))
	}
	p.m.Imports.Edges = append(p.m.Imports.Edges, edge)
}

func (p *ttcnParser) parseDefinition(private bool) {
	c := &p.c
	kw := c.next()
	toks := p.takeDefinition()
	switch kw.text {
	case "type":
		p.typeDef(toks, private)
	case "const", "template", "var", "timer":
		p.declarations(kw, toks, private)
	case "modulepar":
		if len(toks) > 0 && toks[0].is("{") {
			g := cursor{toks: append(append([]token(nil), toks...), token{kind: tokEOF})}
			for _, decl := range splitTop(g.skipGroup(), ";") {
				p.declarations(kw, decl, private)
			}
			return
		}
		p.declarations(kw, toks, private)
	case "function", "altstep", "testcase", "signature":
		p.behaviour(kw, toks, private)
	default:
		p.errorf(kw, "unsupported definition %s", describe(kw))
	}
}

func (p *ttcnParser) add(a *module.Assignment, private bool) {
	p.m.AddAssignment(a)
	if private {
		p.private = append(p.private, a.ID.Name)
		return
	}
	p.exported = append(p.exported, module.Symbol{Identifier: a.ID})
}

// refs builds the reference list of a, dropping duplicates and the
// assignment's own name.
func (p *ttcnParser) refs(a *module.Assignment, toks []token) {
	key := func(r module.Reference) string {
		if r.Module == "" {
			return r.Name
		}
		return r.Module + "." + r.Name
	}
	seen := map[string]bool{a.ID.Name: true}
	for _, r := range a.References {
		seen[key(r)] = true
	}
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !t.ident() || ttcnKeywords[t.text] {
			continue
		}
		ref := module.Reference{Name: t.text, Location: p.loc(t)}
		if i+2 < len(toks) && toks[i+1].is(".") && toks[i+2].ident() {
			ref = module.Reference{Module: t.text, Name: toks[i+2].text, Location: p.loc(t)}
			i += 2
		}
		if seen[key(ref)] {
			continue
		}
		seen[key(ref)] = true
		a.References = append(a.References, ref)
	}
}

func (p *ttcnParser) typeDef(toks []token, private bool) {
	var header []token
	body := -1
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.is("length") && i+1 < len(toks) && toks[i+1].is("(") {
			g := cursor{toks: append(append([]token(nil), toks[i+1:]...), token{kind: tokEOF})}
			g.skipGroup()
			i += g.i
			continue
		}
		if t.is("{") || t.is("(") || t.is("extends") || t.is("runs") || t.is("return") || t.is("with") {
			body = i
			break
		}
		header = append(header, t)
	}

	nameIdx := -1
	for i := len(header) - 1; i >= 0; i-- {
		if header[i].ident() && !ttcnKeywords[header[i].text] {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		if len(toks) > 0 {
			p.errorf(toks[0], "type definition without a name")
		}
		return
	}
	// "type port P message {...}": the name precedes the port kind keyword,
	// and the last identifier is the name in every other form.
	name := header[nameIdx]
	a := &module.Assignment{ID: p.ident(name), Kind: module.KindType}
	p.refs(a, dotted(header[:nameIdx]))

	if body >= 0 {
		rest := toks[body:]
		switch {
		case len(header) > 0 && (header[0].is("record") || header[0].is("set") || header[0].is("union")) && rest[0].is("{"):
			g := cursor{toks: append(append([]token(nil), rest...), token{kind: tokEOF})}
			p.refs(a, fieldTypes(g.skipGroup()))
		case len(header) > 0 && header[0].is("component") && rest[0].is("{"):
			g := cursor{toks: append(append([]token(nil), rest...), token{kind: tokEOF})}
			for _, decl := range splitTop(g.skipGroup(), ";") {
				p.refs(a, declaredType(decl))
			}
		case len(header) > 0 && header[0].is("port") && rest[0].is("{"):
			g := cursor{toks: append(append([]token(nil), rest...), token{kind: tokEOF})}
			p.refs(a, g.skipGroup())
		case len(header) > 0 && header[0].is("function"):
			p.refs(a, signatureRefs(rest))
		case rest[0].is("extends") || rest[0].is("runs"):
			p.refs(a, signatureRefs(rest))
		}
	}
	p.add(a, private)
}

// fieldTypes returns the type tokens of each "Type name [optional]" field.
func fieldTypes(inner []token) []token {
	var res []token
	for _, field := range splitTop(inner, ",") {
		var idents []token
		for i := 0; i < len(field); i++ {
			t := field[i]
			if t.is("{") {
				g := cursor{toks: append(append([]token(nil), field[i:]...), token{kind: tokEOF})}
				res = append(res, fieldTypes(g.skipGroup())...)
				i += g.i - 1
				continue
			}
			if t.is("(") || t.is("optional") {
				break
			}
			idents = append(idents, t)
		}
		// Drop the field name.
		if len(idents) > 1 {
			res = append(res, dotted(idents[:len(idents)-1])...)
		}
	}
	return res
}

// declaredType returns the type tokens of "var|port|const|template Type name ...".
func declaredType(decl []token) []token {
	i := 0
	for i < len(decl) && (decl[i].is("var") || decl[i].is("port") || decl[i].is("const") || decl[i].is("template")) {
		i++
	}
	if i < len(decl) && decl[i].is("(") {
		g := cursor{toks: append(append([]token(nil), decl[i:]...), token{kind: tokEOF})}
		g.skipGroup()
		i += g.i
	}
	if i < len(decl) && decl[i].is("timer") {
		return nil
	}
	if i+2 < len(decl) && decl[i+1].is(".") {
		return decl[i : i+3]
	}
	if i < len(decl) {
		return decl[i : i+1]
	}
	return nil
}

// dotted keeps identifiers and the dots joining qualified names.
func dotted(toks []token) []token {
	res := make([]token, 0, len(toks))
	for _, t := range toks {
		if t.ident() || t.is(".") {
			res = append(res, t)
		}
	}
	return res
}

// signatureRefs returns the parameter types plus the runs on, mtc, system,
// return, extends and exception clauses of a behaviour header.
func signatureRefs(toks []token) []token {
	var res []token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.is("("):
			g := cursor{toks: append(append([]token(nil), toks[i:]...), token{kind: tokEOF})}
			inner := g.skipGroup()
			if i > 0 && toks[i-1].is("exception") {
				res = append(res, dotted(inner)...)
			} else {
				for _, param := range splitTop(inner, ",") {
					res = append(res, paramType(param)...)
				}
			}
			i += g.i - 1
		case t.is("{"):
			return res
		case t.is("on"), t.is("mtc"), t.is("system"), t.is("extends"):
			if i+1 < len(toks) && toks[i+1].ident() {
				res = append(res, declaredType(toks[i+1:])...)
			}
		case t.is("return"):
			j := i + 1
			if j < len(toks) && toks[j].is("template") {
				j++
			}
			if j < len(toks) {
				res = append(res, declaredType(toks[j:])...)
			}
		}
	}
	return res
}

// paramType extracts the type of "[in|out|inout] [template [(restr)]] Type name".
func paramType(param []token) []token {
	i := 0
	for i < len(param) && (param[i].is("in") || param[i].is("out") || param[i].is("inout")) {
		i++
	}
	if i < len(param) && param[i].is("timer") {
		return nil
	}
	return declaredType(param[i:])
}

func (p *ttcnParser) declarations(kw token, toks []token, private bool) {
	i := 0
	if i < len(toks) && (toks[i].is("const") || toks[i].is("template") || toks[i].is("var") || toks[i].is("modulepar")) {
		i++
	}
	for i < len(toks) && toks[i].is("@") {
		i += 2
	}
	if i < len(toks) && toks[i].is("(") {
		g := cursor{toks: append(append([]token(nil), toks[i:]...), token{kind: tokEOF})}
		g.skipGroup()
		i += g.i
	}

	var typ []token
	if !kw.is("timer") {
		typ = declaredType(toks[i:])
		i += len(typ)
		if len(typ) > 0 && (typ[0].is("record") || typ[0].is("set")) && i < len(toks) && toks[i].is("of") {
			// "record of T name"
			typ = declaredType(toks[i+1:])
			i += 1 + len(typ)
		}
	}

	kind := module.KindConst
	switch kw.text {
	case "template":
		kind = module.KindTemplate
	case "modulepar":
		kind = module.KindModulePar
	case "var", "timer":
		kind = module.KindValue
	}

	for _, decl := range splitTop(toks[i:], ",") {
		if len(decl) == 0 || !decl[0].ident() {
			continue
		}
		a := &module.Assignment{ID: p.ident(decl[0]), Kind: kind}
		p.refs(a, typ)
		if len(decl) > 1 && decl[1].is("(") {
			g := cursor{toks: append(append([]token(nil), decl[1:]...), token{kind: tokEOF})}
			for _, param := range splitTop(g.skipGroup(), ",") {
				p.refs(a, paramType(param))
			}
		}
		p.refs(a, qualifiedOnly(decl[1:]))
		p.add(a, private)
	}
}

// qualifiedOnly keeps the Module.name references of a value expression.
// Unqualified names in values may be enumeration literals or field names.
func qualifiedOnly(toks []token) []token {
	var res []token
	for i := 0; i+2 < len(toks); i++ {
		if toks[i].ident() && toks[i+1].is(".") && toks[i+2].ident() && isUpper(toks[i].text) &&
			(i == 0 || !toks[i-1].is(".")) {
			res = append(res, toks[i], toks[i+1], toks[i+2])
			i += 2
		}
	}
	return res
}

func (p *ttcnParser) behaviour(kw token, toks []token, private bool) {
	i := 0
	for i < len(toks) && toks[i].is("@") {
		i += 2
	}
	if i >= len(toks) || !toks[i].ident() {
		p.errorf(kw, "%s definition without a name", kw.text)
		return
	}
	kind := map[string]module.AssignmentKind{
		"function":  module.KindFunction,
		"altstep":   module.KindAltstep,
		"testcase":  module.KindTestcase,
		"signature": module.KindType,
	}[kw.text]
	a := &module.Assignment{ID: p.ident(toks[i]), Kind: kind}
	p.refs(a, signatureRefs(toks[i+1:]))
	p.add(a, private)
}

// splitTop splits toks on sep at nesting depth zero.
func splitTop(toks []token, sep string) [][]token {
	var res [][]token
	depth := 0
	start := 0
	for i, t := range toks {
		switch {
		case t.is("{"), t.is("("), t.is("["):
			depth++
		case t.is("}"), t.is(")"), t.is("]"):
			depth--
		case depth == 0 && t.is(sep):
			res = append(res, toks[start:i])
			start = i + 1
		}
	}
	if start < len(toks) {
		res = append(res, toks[start:])
	}
	return res
}
