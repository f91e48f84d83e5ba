package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, cs *CommandSet, mnemonic string) uint16 {
	t.Helper()
	id, ok := cs.IDOf(mnemonic)
	require.True(t, ok, "no such mnemonic %q", mnemonic)
	return id
}

func loadProgram(t *testing.T, interp *Interpreter, cmds []Command) {
	t.Helper()
	bufID := interp.MMU.AllocContextBuffer()
	interp.MMU.ContextMut().BufferID = bufID
	buf, err := interp.MMU.Buffer(bufID)
	require.NoError(t, err)
	buf.Commands = cmds
}

func TestInterpreterIntegerDivision(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	div := mustID(t, interp.CS, "div")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandImmediate(push, Integer, FromInt(10)),
		NewCommandImmediate(push, Integer, FromInt(3)),
		NewCommand(div, Integer),
		NewCommand(quit, NoneType),
	})

	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Integer)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), top.Int())
}

func TestInterpreterDivisionByZeroFaults(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	div := mustID(t, interp.CS, "div")

	loadProgram(t, interp, []Command{
		NewCommandImmediate(push, Integer, FromInt(1)),
		NewCommandImmediate(push, Integer, FromInt(0)),
		NewCommand(div, Integer),
	})

	err = interp.Run()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrOutOfBounds))
}

func TestInterpreterJumpSkipsInstructions(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	jmp := mustID(t, interp.CS, "jmp")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandReference(jmp, NoneType, NewDirectOffsetRef(SecCode, 2)),
		NewCommandImmediate(push, Integer, FromInt(999)),
		NewCommandImmediate(push, Integer, FromInt(42)),
		NewCommand(quit, NoneType),
	})

	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Integer)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), top.Int())

	_, err = interp.MMU.StackTop(1)
	require.Error(t, err, "only one value should ever have been pushed")
}

func TestInterpreterCallAndReturn(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	call := mustID(t, interp.CS, "call")
	ret := mustID(t, interp.CS, "ret")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandReference(call, NoneType, NewDirectOffsetRef(SecCode, 3)), // 0: call func
		NewCommandImmediate(push, Integer, FromInt(100)),                    // 1: push 100
		NewCommand(quit, NoneType),                                          // 2: quit
		NewCommandImmediate(push, Integer, FromInt(7)),                      // 3: func: push 7
		NewCommand(ret, NoneType),                                           // 4: ret
	})

	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Integer)
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), top.Int())

	second, err := interp.MMU.StackTop(1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), second.Int())
}

func TestInterpreterFlagsDriveConditionalJump(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	push := mustID(t, interp.CS, "push")
	cmp := mustID(t, interp.CS, "cmp")
	je := mustID(t, interp.CS, "je")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandImmediate(push, Integer, FromInt(5)), // 0
		NewCommandImmediate(push, Integer, FromInt(5)), // 1
		NewCommand(cmp, Integer),                       // 2: 5-5 == 0 -> Zero flag set
		NewCommandReference(je, NoneType, NewDirectOffsetRef(SecCode, 5)), // 3
		NewCommandImmediate(push, Integer, FromInt(-1)), // 4: skipped
		NewCommand(quit, NoneType),                      // 5
	})

	require.NoError(t, interp.Run())

	interp.MMU.SelectStack(Integer)
	// cmp pops one 5 and peeks the other without removing it, leaving one
	// operand on the stack; je should have jumped past the push -1.
	top, err := interp.MMU.StackTop(0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), top.Int())

	_, err = interp.MMU.StackTop(1)
	require.Error(t, err)
}

func TestInterpreterSyscallTableIsPluggable(t *testing.T) {
	interp, err := NewInterpreter(nil)
	require.NoError(t, err)

	var captured int64
	serviceExec := interp.Logic.executors[ExecutorService].(*ServiceExecutor)
	serviceExec.Syscall[42] = func(mmu *MMU) error {
		r, err := mmu.ARegister(0)
		if err != nil {
			return err
		}
		captured = r.Int()
		return nil
	}

	sys := mustID(t, interp.CS, "sys")
	push := mustID(t, interp.CS, "push")
	stint := mustID(t, interp.CS, "stint")
	quit := mustID(t, interp.CS, "quit")

	loadProgram(t, interp, []Command{
		NewCommandImmediate(push, Integer, FromInt(77)),
		NewCommandReference(stint, Integer, NewDirectOffsetRef(SecRegister, 0)),
		NewCommandImmediate(sys, NoneType, FromInt(42)),
		NewCommand(quit, NoneType),
	})

	require.NoError(t, interp.Run())
	assert.Equal(t, int64(77), captured)
}
