package resolver

import (
	"github.com/gobwas/glob"

	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
)

// UnusedImports reports the resolved edges of m that no lookup went through.
// It is meaningful only after m's body was checked. Targets matching one of
// the exclude patterns are never reported.
func UnusedImports(m *module.Module, excludes []glob.Glob) []*diag.Diagnostic {
	var res []*diag.Diagnostic
	for _, e := range m.Imports.Edges {
		if e.Excluded || e.UsedForImportation || !e.TargetID.Valid() {
			continue
		}
		if excludedTarget(e.Target.Name, excludes) {
			continue
		}
		res = append(res, diag.NewWarning(diag.CodeUnusedImport,
			"nothing imported from module %s is used", e.Target.Name).
			At(e.Location).
			InPhase(diag.PhaseSemantic))
	}
	return res
}

// CompileExcludes compiles module-name patterns for UnusedImports.
func CompileExcludes(patterns []string) ([]glob.Glob, error) {
	res := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, nil
}

func excludedTarget(name string, excludes []glob.Glob) bool {
	for _, g := range excludes {
		if g.Match(name) {
			return true
		}
	}
	return false
}
