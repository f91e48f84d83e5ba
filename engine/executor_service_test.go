package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDirectRefRoundTrip(t *testing.T) {
	d := DirectReference{Section: SecData, Offset: 12345}
	encoded := encodeDirectRef(d)

	section := Section(byte(encoded >> 56))
	offset := encoded & 0x00FFFFFFFFFFFFFF
	assert.Equal(t, SecData, section)
	assert.Equal(t, int64(12345), offset)
}

func TestLeaStoresEncodedAddressInRF(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	lea := mustID(t, interp.CS, "lea")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandReference(lea, NoneType, NewDirectOffsetRef(SecData, 9)),
		NewCommand(quit, NoneType),
	})

	require.NoError(t, interp.Run())

	reg, err := interp.MMU.ARegister(int64(RegF))
	require.NoError(t, err)
	section := Section(byte(reg.Int() >> 56))
	offset := reg.Int() & 0x00FFFFFFFFFFFFFF
	assert.Equal(t, SecData, section)
	assert.Equal(t, int64(9), offset)
}

func TestQuitSetsExitFlag(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommand(quit, NoneType),
		NewCommandImmediate(push, Integer, FromInt(1)), // never executed
	})

	require.NoError(t, interp.Run())
	assert.True(t, interp.MMU.Context().Flags.Has(FlagExit))

	interp.MMU.SelectStack(Integer)
	_, err = interp.MMU.StackTop(0)
	require.Error(t, err, "quit should stop execution before the following push runs")
}

func TestDefaultSyscallShutdownSetsExit(t *testing.T) {
	m := NewMMU(nil)
	id := m.AllocContextBuffer()
	m.ContextMut().BufferID = id

	fn := DefaultSyscalls()[3]
	require.NoError(t, fn(m))
	assert.True(t, m.Context().Flags.Has(FlagExit))
}
