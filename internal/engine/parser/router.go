package parser

import (
	"path/filepath"
	"sort"
	"strings"

	"crossmod/internal/core/ports"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

var (
	DefaultASN1Extensions = []string{".asn", ".asn1"}
	DefaultTTCNExtensions = []string{".ttcn", ".ttcn3", ".ttcnpp"}
)

// Router picks a grammar by file extension.
type Router struct {
	byExt     map[string]ports.Grammar
	notations map[string]module.Notation
}

var _ ports.Grammar = (*Router)(nil)

func NewRouter() *Router {
	return &Router{byExt: make(map[string]ports.Grammar), notations: make(map[string]module.Notation)}
}

// DefaultRouter maps the usual ASN.1 and TTCN-3 extensions to the header
// grammars of this package.
func DefaultRouter() *Router {
	r := NewRouter()
	r.Register(ASN1Grammar{}, module.NotationASN1, DefaultASN1Extensions...)
	r.Register(TTCNGrammar{}, module.NotationTTCN, DefaultTTCNExtensions...)
	return r
}

func (r *Router) Register(g ports.Grammar, notation module.Notation, exts ...string) {
	for _, ext := range exts {
		ext = normalizeExt(ext)
		r.byExt[ext] = g
		r.notations[ext] = notation
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Notation returns the notation registered for the unit's extension.
func (r *Router) Notation(h source.Handle) module.Notation {
	return r.notations[strings.ToLower(filepath.Ext(string(h)))]
}

func (r *Router) IsSupported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *Router) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (r *Router) Parse(h source.Handle, text []byte) (*module.Module, []*diag.Diagnostic) {
	ext := strings.ToLower(filepath.Ext(string(h)))
	g, ok := r.byExt[ext]
	if !ok {
		return nil, []*diag.Diagnostic{
			diag.NewError(diag.CodeSyntax, "no grammar registered for extension %q", ext).
				At(source.Location{Unit: h}).InPhase(diag.PhaseSyntax),
		}
	}
	return g.Parse(h, text)
}
