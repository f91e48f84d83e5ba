package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLinkedMMU(t *testing.T) (*MMU, *Linker) {
	t.Helper()
	m := NewMMU(nil)
	id := m.AllocContextBuffer()
	m.ContextMut().BufferID = id
	l := NewLinker(nil)
	return m, l
}

func TestLinkerResolvesDirectOffset(t *testing.T) {
	m, l := newLinkedMMU(t)
	ref := NewDirectOffsetRef(SecData, 3)
	direct, err := l.Resolve(m, ref)
	require.NoError(t, err)
	assert.Equal(t, SecData, direct.Section)
	assert.Equal(t, int64(3), direct.Offset)
}

func TestLinkerResolvesSymbolDefinedAfterUse(t *testing.T) {
	m, l := newLinkedMMU(t)
	l.InitLinkSession()

	use := NewSymbolUse("loop")
	require.NoError(t, l.AddSymbols([]Symbol{use}))

	def := NewSymbolDef("loop", NewDirectOffsetRef(SecCode, 12))
	require.NoError(t, l.AddSymbols([]Symbol{def}))

	require.NoError(t, l.Finalize(m, false))

	direct, err := l.Resolve(m, NewSymbolRef(HashName("loop")))
	require.NoError(t, err)
	assert.Equal(t, SecCode, direct.Section)
	assert.Equal(t, int64(12), direct.Offset)
}

func TestLinkerRedefinitionIsAnError(t *testing.T) {
	m, l := newLinkedMMU(t)
	l.InitLinkSession()
	require.NoError(t, l.AddSymbols([]Symbol{NewSymbolDef("x", NewDirectOffsetRef(SecData, 0))}))
	require.NoError(t, l.Finalize(m, false))

	l.InitLinkSession()
	require.NoError(t, l.AddSymbols([]Symbol{NewSymbolDef("x", NewDirectOffsetRef(SecData, 1))}))
	err := l.Finalize(m, false)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrSymbolRedefinition))
}

func TestLinkerUnresolvedSymbolIsAnError(t *testing.T) {
	m, l := newLinkedMMU(t)
	l.InitLinkSession()
	require.NoError(t, l.AddSymbols([]Symbol{NewSymbolUse("ghost")}))
	require.NoError(t, l.Finalize(m, false))

	_, err := l.Resolve(m, NewSymbolRef(HashName("ghost")))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrSymbolUnresolved))
}

func TestLinkerAutoPlacementUsesSectionOffsets(t *testing.T) {
	m, l := newLinkedMMU(t)
	l.InitLinkSession()
	l.SetSectionOffsets(5, 0)

	label := Symbol{Name: "here", Hash: HashName("here"), Resolved: true,
		Ref: Reference{GlobalSection: SecCode, NeedsLinkerPlacement: true}}
	require.NoError(t, l.AddSymbols([]Symbol{label}))
	require.NoError(t, l.Finalize(m, false))

	direct, err := l.Resolve(m, NewSymbolRef(HashName("here")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), direct.Offset)
}

func TestLinkerIndirectComponentDereferences(t *testing.T) {
	m, l := newLinkedMMU(t)
	require.NoError(t, m.ReadSection(SecData, []Value{FromInt(42)}, 1))
	p, err := m.ARegister(0)
	require.NoError(t, err)
	*p = FromInt(0) // register 0 holds the data offset to dereference through

	// indirect through register 0 (holding 0) used as the data address
	direct, err := l.Resolve(m, Reference{
		GlobalSection: SecData,
		Components:    []Component{{Offset: 0, Section: SecRegister, Indirect: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, SecData, direct.Section)
	assert.Equal(t, int64(0), direct.Offset)
}

func TestLinkerRejectsTooManyComponents(t *testing.T) {
	m, l := newLinkedMMU(t)
	_, err := l.Resolve(m, Reference{Components: []Component{{}, {}, {}}})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidReference))
}
