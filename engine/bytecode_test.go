package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytecodeRoundTrip(t *testing.T) {
	src := newContextBuffer()
	src.Commands = []Command{
		NewCommandImmediate(OpPush, Integer, FromInt(7)),
		NewCommandReference(OpJmp, NoneType, NewDirectOffsetRef(SecCode, 3)),
	}
	src.Data = []Value{FromInt(1), FromFloat(2.5)}
	src.BytePool = []byte{1, 2, 3, 4}
	src.Symbols[HashName("loop")] = &Symbol{
		Name: "loop", Hash: HashName("loop"), Resolved: true,
		Ref: NewDirectOffsetRef(SecCode, 0),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBytecode(&buf, src))

	dst := &ContextBuffer{}
	require.NoError(t, ReadBytecode(&buf, dst))

	require.Len(t, dst.Commands, 2)
	assert.Equal(t, OpPush, dst.Commands[0].ID)
	assert.Equal(t, int64(7), dst.Commands[0].Immediate.Int())
	assert.Equal(t, OpJmp, dst.Commands[1].ID)
	assert.Equal(t, SecCode, dst.Commands[1].Ref.GlobalSection)
	assert.Equal(t, int64(3), dst.Commands[1].Ref.Components[0].Offset)

	require.Len(t, dst.Data, 2)
	assert.Equal(t, int64(1), dst.Data[0].Int())
	assert.Equal(t, 2.5, dst.Data[1].Float())

	assert.Equal(t, []byte{1, 2, 3, 4}, dst.BytePool)

	sym, ok := dst.Symbols[HashName("loop")]
	require.True(t, ok)
	assert.True(t, sym.Resolved)
	assert.Equal(t, "loop", sym.Name)
}

func TestReadBytecodeRejectsBadSignature(t *testing.T) {
	buf := bytes.NewBufferString("NOPE" + "\x00")
	err := ReadBytecode(buf, &ContextBuffer{})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrFormatError))
}
