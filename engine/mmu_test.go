package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMMUBufferLifecycle(t *testing.T) {
	m := NewMMU(nil)
	id := m.AllocContextBuffer()
	m.ContextMut().BufferID = id

	buf, err := m.CurrentBuffer()
	require.NoError(t, err)
	assert.NotNil(t, buf)

	require.NoError(t, m.ResetBuffers(id))
	buf2, err := m.CurrentBuffer()
	require.NoError(t, err)
	assert.Empty(t, buf2.Commands)
}

func TestMMUStackSelectionIsolatesIntAndFloat(t *testing.T) {
	m := NewMMU(nil)
	m.SelectStack(Integer)
	m.StackPush(FromInt(1))
	m.SelectStack(Float)
	m.StackPush(FromFloat(2.0))

	v, err := m.StackPop()
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Float())

	m.SelectStack(Integer)
	v, err = m.StackPop()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int())
}

func TestMMUStackPopUnderflow(t *testing.T) {
	m := NewMMU(nil)
	_, err := m.StackPop()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrOutOfBounds))
}

func TestMMUSaveRestoreContext(t *testing.T) {
	m := NewMMU(nil)
	id := m.AllocContextBuffer()
	m.ContextMut().BufferID = id
	m.ContextMut().IP = 7

	m.SaveContext()
	assert.Equal(t, 1, m.CallStackDepth())
	m.ContextMut().IP = 99

	require.NoError(t, m.RestoreContext())
	assert.Equal(t, int64(7), m.Context().IP)
	assert.Equal(t, 0, m.CallStackDepth())
}

func TestMMURestoreContextUnderflow(t *testing.T) {
	m := NewMMU(nil)
	err := m.RestoreContext()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrOutOfBounds))
}

func TestMMUFrameStackRelativeAddressing(t *testing.T) {
	m := NewMMU(nil)
	id := m.AllocContextBuffer()
	m.ContextMut().BufferID = id

	m.PushFrameLocal(FromInt(10)) // caller's param, frame-back slot
	m.SaveContext()               // frame pointer snapshot = 1
	m.PushFrameLocal(FromInt(20)) // callee local at frame+0

	local, err := m.AStackFrame(0)
	require.NoError(t, err)
	assert.Equal(t, int64(20), local.Int())

	back, err := m.AStackFrame(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), back.Int())
}

func TestMMUBytePoolPrivilegeWindow(t *testing.T) {
	m := NewMMU(nil)
	id := m.AllocContextBuffer()
	m.ContextMut().BufferID = id
	buf, _ := m.Buffer(id)

	require.NoError(t, m.ReadSection(SecBytePool, make([]byte, 16), 16))
	m.SetPrivileged(buf, false)
	m.SetHeapBounds(buf, 4, 8)

	_, err := m.ABytePool(2)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrOutOfBounds))

	_, err = m.ABytePool(5)
	require.NoError(t, err)
}

func TestMMUPasteFromContextRebasesOffsets(t *testing.T) {
	m := NewMMU(nil)
	srcID := m.AllocContextBuffer()
	m.ContextMut().BufferID = srcID
	require.NoError(t, m.ReadSection(SecData, []Value{FromInt(1), FromInt(2)}, 2))
	srcBuf, _ := m.Buffer(srcID)
	srcBuf.Symbols[HashName("x")] = &Symbol{
		Name: "x", Hash: HashName("x"), Resolved: true,
		Ref: NewDirectOffsetRef(SecData, 1),
	}

	dstID := m.AllocContextBuffer()
	m.ContextMut().BufferID = dstID
	require.NoError(t, m.ReadSection(SecData, []Value{FromInt(100)}, 1))

	require.NoError(t, m.PasteFromContext(srcID))

	dstBuf, _ := m.CurrentBuffer()
	require.Len(t, dstBuf.Data, 3)
	assert.Equal(t, int64(1), dstBuf.Data[1].Int())

	sym := dstBuf.Symbols[HashName("x")]
	require.NotNil(t, sym)
	assert.Equal(t, int64(2), sym.Ref.Components[0].Offset) // 1 (orig) + 1 (dataBase)
}
