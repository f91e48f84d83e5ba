package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssemblerFixture(t *testing.T) *Interpreter {
	t.Helper()
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)
	id := interp.MMU.AllocContextBuffer()
	interp.MMU.ContextMut().BufferID = id
	return interp
}

func TestAssembleSimpleProgram(t *testing.T) {
	interp := newAssemblerFixture(t)

	source := `
		// compute (2 + 3) and halt
		push 2
		push 3
		add
		quit
	`
	require.NoError(t, Assemble(interp.CS, interp.Linker, interp.MMU, source, false))
	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Integer)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), top.Int())
}

func TestAssembleFloatSuffixSelectsFloatExecutor(t *testing.T) {
	interp := newAssemblerFixture(t)

	source := `
		push 2.5
		push 1.5
		add.f
		quit
	`
	require.NoError(t, Assemble(interp.CS, interp.Linker, interp.MMU, source, false))
	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Float)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, top.Float())
}

func TestAssembleLabelForwardReference(t *testing.T) {
	interp := newAssemblerFixture(t)

	source := `
		jmp skip
		push 999
	skip:
		push 7
		quit
	`
	require.NoError(t, Assemble(interp.CS, interp.Linker, interp.MMU, source, false))
	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Integer)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), top.Int())

	_, err = interp.MMU.StackTop(1)
	require.Error(t, err)
}

func TestAssembleExplicitSectionReference(t *testing.T) {
	interp := newAssemblerFixture(t)

	source := `
		push 9
		stint register:0
		ldint register:0
		quit
	`
	require.NoError(t, Assemble(interp.CS, interp.Linker, interp.MMU, source, false))
	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Integer)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), top.Int())
}

func TestAssembleRejectsUnknownMnemonic(t *testing.T) {
	interp := newAssemblerFixture(t)
	err := Assemble(interp.CS, interp.Linker, interp.MMU, "frobnicate\n", false)
	require.Error(t, err)
}
