package diag

import (
	"testing"

	"crossmod/internal/engine/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBag_ClearUnitByPhase(t *testing.T) {
	b := NewBag()
	loc := source.Location{Unit: "a.asn", Line: 1}
	b.Report(NewError(CodeSyntax, "bad token").At(loc).InPhase(PhaseSyntax))
	b.Report(NewError(CodeMissingModule, "no module B").At(loc).InPhase(PhaseImport))
	b.Report(NewWarning(CodeUnusedImport, "unused").At(loc).InPhase(PhaseSemantic))

	b.ClearUnit("a.asn", PhaseImport, PhaseSemantic)

	left := b.ForUnit("a.asn")
	require.Len(t, left, 1)
	assert.Equal(t, CodeSyntax, left[0].Code)

	b.ClearUnit("a.asn")
	assert.Zero(t, b.Len())
}

func TestBag_AllIsOrdered(t *testing.T) {
	b := NewBag()
	b.Report(NewError(CodeSelfImport, "x").At(source.Location{Unit: "b.asn", Line: 2}))
	b.Report(NewError(CodeSelfImport, "y").At(source.Location{Unit: "a.asn", Line: 9}))
	b.Report(NewError(CodeMissingModule, "z").At(source.Location{Unit: "a.asn", Line: 1}))

	all := b.All()
	require.Len(t, all, 3)
	assert.Equal(t, "z", all[0].Message)
	assert.Equal(t, "y", all[1].Message)
	assert.Equal(t, "x", all[2].Message)
}

func TestBag_Counts(t *testing.T) {
	b := NewBag()
	b.Report(NewError(CodeSyntax, "e1"))
	b.Report(NewError(CodeSyntax, "e2"))
	b.Report(NewWarning(CodeUnusedImport, "w1"))

	errs, warns := b.Counts()
	assert.Equal(t, 2, errs)
	assert.Equal(t, 1, warns)
	assert.True(t, b.HasErrors())
	assert.Len(t, b.WithCode(CodeSyntax), 2)
}

func TestPhaseSinkKeepsExplicitPhase(t *testing.T) {
	var c Collector
	s := PhaseSink(&c, PhaseImport)
	s.Report(NewError(CodeSelfImport, "a"))
	s.Report(NewError(CodeSyntax, "b").InPhase(PhaseSyntax))

	require.Len(t, c.Items, 2)
	assert.Equal(t, PhaseImport, c.Items[0].Phase)
	assert.Equal(t, PhaseSyntax, c.Items[1].Phase)
}

func TestDiagnosticBuilders(t *testing.T) {
	d := NewError(CodeDuplicateModule, "duplicate module %q", "M").
		At(source.Location{Unit: "one.asn", Line: 1, Column: 1}).
		WithRelated(source.Location{Unit: "two.asn", Line: 1, Column: 1}, "previous definition")

	assert.Equal(t, `duplicate module "M"`, d.Message)
	require.Len(t, d.Related, 1)
	assert.Equal(t, source.Handle("two.asn"), d.Related[0].Location.Unit)

	cp := d.Clone()
	cp.Related[0].Message = "changed"
	assert.Equal(t, "previous definition", d.Related[0].Message)
	assert.Contains(t, d.String(), "[DUPLICATEMODULE]")
}
