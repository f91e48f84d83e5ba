package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kt-fork/vvm/engine"
)

func TestBackendCompilesPushAddAbs(t *testing.T) {
	b := NewBackend()
	cmds := []engine.Command{
		engine.NewCommandImmediate(engine.OpPush, engine.Integer, engine.FromInt(-7)),
		engine.NewCommandImmediate(engine.OpPush, engine.Integer, engine.FromInt(3)),
		engine.NewCommand(engine.OpAdd, engine.Integer),
		engine.NewCommand(engine.OpAbs, engine.Integer),
	}

	img, translated, err := b.CompileOrReuse(1, cmds)
	require.NoError(t, err)
	defer img.Release()
	assert.Equal(t, 4, translated)

	tag, bits, under := img.Run()
	assert.Equal(t, engine.Integer, tag)
	assert.Equal(t, int64(4), int64(bits)) // abs(-7 + 3) == 4
	assert.Empty(t, under)
}

func TestBackendRejectsFloatAndReferenceCommands(t *testing.T) {
	b := NewBackend()

	_, _, err := b.CompileOrReuse(2, []engine.Command{
		engine.NewCommand(engine.OpAdd, engine.Float),
	})
	require.ErrorIs(t, err, ErrUnsupported)

	_, _, err = b.CompileOrReuse(3, []engine.Command{
		engine.NewCommandReference(engine.OpLd, engine.Integer, engine.NewDirectOffsetRef(engine.SecData, 0)),
	})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestBackendCachesByChecksum(t *testing.T) {
	b := NewBackend()
	cmds := []engine.Command{
		engine.NewCommandImmediate(engine.OpPush, engine.Integer, engine.FromInt(1)),
	}

	first, firstTranslated, err := b.CompileOrReuse(42, cmds)
	require.NoError(t, err)
	defer first.Release()

	second, secondTranslated, err := b.CompileOrReuse(42, cmds)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, firstTranslated, secondTranslated)
}

func TestBackendStopsAtIneligibleCommandAndReportsPartialTranslation(t *testing.T) {
	b := NewBackend()
	cmds := []engine.Command{
		engine.NewCommandImmediate(engine.OpPush, engine.Integer, engine.FromInt(5)),
		engine.NewCommandReference(engine.OpLd, engine.Integer, engine.NewDirectOffsetRef(engine.SecData, 0)),
		engine.NewCommand(engine.OpAdd, engine.Integer),
	}

	img, translated, err := b.CompileOrReuse(4, cmds)
	require.NoError(t, err)
	defer img.Release()
	assert.Equal(t, 1, translated)

	tag, bits, under := img.Run()
	assert.Equal(t, engine.Integer, tag)
	assert.Equal(t, int64(5), int64(bits))
	assert.Empty(t, under)
}

func TestBackendCompilesQuit(t *testing.T) {
	b := NewBackend()
	cmds := []engine.Command{
		engine.NewCommandImmediate(engine.OpPush, engine.Integer, engine.FromInt(1)),
		engine.NewCommandImmediate(engine.OpPush, engine.Integer, engine.FromInt(2)),
		engine.NewCommand(engine.OpQuit, engine.NoneType),
	}

	img, translated, err := b.CompileOrReuse(5, cmds)
	require.NoError(t, err)
	defer img.Release()
	assert.Equal(t, 3, translated)

	tag, bits, under := img.Run()
	assert.Equal(t, engine.Integer, tag)
	assert.Equal(t, int64(2), int64(bits))
	require.Len(t, under, 1)
	assert.Equal(t, int64(1), under[0])
}
