package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatExecutorSqrtAndFlags(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	sqrt := mustID(t, interp.CS, "sqrt")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandImmediate(push, Float, FromFloat(16.0)),
		NewCommand(sqrt, Float),
		NewCommand(quit, NoneType),
	})

	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Float)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, top.Float())
	assert.False(t, interp.MMU.Context().Flags.Has(FlagInvalidFP))
}

func TestFloatExecutorSqrtOfNegativeSetsInvalidFP(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	sqrt := mustID(t, interp.CS, "sqrt")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandImmediate(push, Float, FromFloat(-4.0)),
		NewCommand(sqrt, Float),
		NewCommand(quit, NoneType),
	})

	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Float)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(top.Float()))
	assert.True(t, interp.MMU.Context().Flags.Has(FlagInvalidFP))
}

func TestFloatExecutorNFCSuppressesAnalyze(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	snfc := mustID(t, interp.CS, "snfc")
	add := mustID(t, interp.CS, "add")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandImmediate(push, Float, FromFloat(-1.0)),
		NewCommandImmediate(push, Float, FromFloat(-1.0)),
		NewCommand(snfc, NoneType),
		NewCommand(add, Float), // -1 + -1 = -2, would normally set Negative
		NewCommand(quit, NoneType),
	})

	require.NoError(t, interp.Run())
	assert.False(t, interp.MMU.Context().Flags.Has(FlagNegative))
}
