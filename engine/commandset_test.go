package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandSetDefineAndLookup(t *testing.T) {
	cs := NewCommandSet()
	require.NoError(t, cs.Define(0, "push", "push a value", ArgImmediate, false))

	id, ok := cs.IDOf("push")
	require.True(t, ok)
	assert.Equal(t, uint16(0), id)

	traits, err := cs.TraitsByMnemonic("push")
	require.NoError(t, err)
	assert.Equal(t, ArgImmediate, traits.ArgType)
}

func TestCommandSetDuplicateIDRejected(t *testing.T) {
	cs := NewCommandSet()
	require.NoError(t, cs.Define(0, "push", "", ArgImmediate, false))
	err := cs.Define(0, "pop", "", ArgNone, false)
	require.Error(t, err)
}

func TestCommandSetGenerationBumpsOnMutation(t *testing.T) {
	cs := NewCommandSet()
	require.NoError(t, cs.Define(0, "push", "", ArgImmediate, false))
	g1 := cs.Generation()
	require.NoError(t, cs.AddCommandImpl("push", ExecutorInt, "push"))
	assert.Greater(t, cs.Generation(), g1)
}

func TestCommandSetHandleLookup(t *testing.T) {
	cs := NewCommandSet()
	require.NoError(t, cs.Define(0, "push", "", ArgImmediate, false))
	require.NoError(t, cs.AddCommandImpl("push", ExecutorInt, "push"))

	h, ok := cs.Handle(0, ExecutorInt)
	require.True(t, ok)
	assert.Equal(t, "push", h)

	_, ok = cs.Handle(0, ExecutorFloat)
	assert.False(t, ok)
}

func TestStandardCommandSetRegistersAllMnemonics(t *testing.T) {
	cs, err := NewStandardCommandSet()
	require.NoError(t, err)

	for _, m := range []string{"push", "pop", "add", "sub", "jmp", "call", "ret", "sys", "sqrt"} {
		_, ok := cs.IDOf(m)
		assert.True(t, ok, "missing mnemonic %q", m)
	}
}
