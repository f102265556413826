package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

func newModule(name string, unit source.Handle) *module.Module {
	return module.New(module.NewIdentifier(name, module.NotationASN1, source.Location{Unit: unit, Line: 1, Column: 1}), unit)
}

func TestAddModuleInstallsAndReplaces(t *testing.T) {
	r := New()
	first := newModule("A", "a.asn")
	res := r.AddModule(first)
	require.Equal(t, Installed, res.Status)
	assert.Equal(t, res.ID, first.ID)
	assert.False(t, r.IsUpToDate(res.ID))

	r.MarkUpToDate(res.ID)
	second := newModule("A", "a.asn")
	res2 := r.AddModule(second)
	require.Equal(t, Replaced, res2.Status)
	assert.Equal(t, res.ID, res2.ID, "ids are stable per name")
	assert.Same(t, first, res2.Previous)
	assert.False(t, r.IsUpToDate(res2.ID), "replacement is not up to date")

	shadow, ok := r.Outdated("A")
	require.True(t, ok)
	assert.Same(t, first, shadow)
	cur, _ := r.Lookup("A")
	assert.Same(t, second, cur)

	r.DropOutdated(res2.ID)
	_, ok = r.Outdated("A")
	assert.False(t, ok)
}

func TestAddModuleRejectsDuplicate(t *testing.T) {
	r := New()
	owner := newModule("M", "one.asn")
	r.AddModule(owner)

	res := r.AddModule(newModule("M", "two.asn"))
	require.Equal(t, Duplicate, res.Status)
	assert.Same(t, owner, res.Owner)
	require.Len(t, res.Diagnostics, 2)
	for _, d := range res.Diagnostics {
		assert.Equal(t, diag.CodeDuplicateModule, d.Code)
		require.Len(t, d.Related, 1)
	}
	assert.Equal(t, source.Handle("two.asn"), res.Diagnostics[0].Location.Unit)
	assert.Equal(t, source.Handle("one.asn"), res.Diagnostics[0].Related[0].Location.Unit)
	assert.Equal(t, source.Handle("one.asn"), res.Diagnostics[1].Location.Unit)

	cur, _ := r.Lookup("M")
	assert.Same(t, owner, cur)
	assert.Nil(t, r.ModuleOfUnit("two.asn"))
	assert.Equal(t, 1, r.Len())
}

func TestRenameReleasesOldName(t *testing.T) {
	r := New()
	r.AddModule(newModule("Old", "u.asn"))
	res := r.AddModule(newModule("New", "u.asn"))
	require.Equal(t, Installed, res.Status)

	_, ok := r.Lookup("Old")
	assert.False(t, ok)
	_, ok = r.Outdated("Old")
	assert.True(t, ok, "retired module stays in the shadow map")
	assert.Equal(t, []string{"New"}, r.Names())

	// Another unit can now take the old name.
	assert.Equal(t, Installed, r.AddModule(newModule("Old", "v.asn")).Status)
}

func TestRetireAndRemoveUnit(t *testing.T) {
	r := New()
	m := newModule("A", "a.asn")
	r.AddModule(m)
	r.MarkUpToDate(m.ID)

	assert.Same(t, m, r.Retire("a.asn"))
	assert.False(t, r.IsUpToDate(m.ID))
	assert.Nil(t, r.Retire("a.asn"))
	assert.Equal(t, 1, r.OutdatedCount())

	r.AddModule(newModule("B", "b.asn"))
	removed := r.RemoveUnit("b.asn")
	require.NotNil(t, removed)
	_, ok := r.Outdated("B")
	assert.False(t, ok, "removed units leave no shadow entry")
	assert.Zero(t, r.Len())
}

func TestInternedIDsForMissingModules(t *testing.T) {
	r := New()
	id := r.Intern("Missing")
	assert.Nil(t, r.ByID(id))
	assert.Equal(t, "Missing", r.Name(id))

	m := newModule("Missing", "m.asn")
	r.AddModule(m)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, 1, r.IDCount())

	r.MarkUpToDate(r.Intern("Ghost"))
	assert.Zero(t, r.UpToDateCount(), "ids without a module are never up to date")
}

func TestNamesAndPrefix(t *testing.T) {
	r := New()
	for _, n := range []string{"Gamma", "Alpha-One", "Alpha-Two", "Beta"} {
		r.AddModule(newModule(n, source.Handle(n+".asn")))
	}
	assert.Equal(t, []string{"Alpha_One", "Alpha_Two", "Beta", "Gamma"}, r.Names())
	assert.Equal(t, []string{"Alpha_One", "Alpha_Two"}, r.WithPrefix("Alpha"))
	mods := r.Modules()
	require.Len(t, mods, 4)
	assert.Equal(t, "Gamma", mods[3].Name.Name)
}
