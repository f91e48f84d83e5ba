package engine

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

var stdinReader = bufio.NewReader(os.Stdin)

// ServiceExecutor implements instructions with no selected operand stack:
// branches, call/ret, flag control, and the sys/sleep/dump/init/quit service
// group. Its Execute never touches MMU.SelectStack — Logic skips stack
// selection entirely for Service instructions.
type ServiceExecutor struct {
	// Syscall is the pluggable sys dispatch table. It is exported so a host
	// can install additional handlers or swap stdio for tests.
	Syscall map[int64]SyscallFunc
}

// SyscallFunc implements one sys instruction case: it is handed the MMU so
// it can read/write the byte pool and registers directly.
type SyscallFunc func(mmu *MMU) error

func NewServiceExecutor() *ServiceExecutor {
	return &ServiceExecutor{Syscall: DefaultSyscalls()}
}

func (e *ServiceExecutor) SupportedType() ValueType { return NoneType }
func (e *ServiceExecutor) ID() ExecutorID           { return ExecutorService }

func (e *ServiceExecutor) ResetImplementations(cs *CommandSet) error {
	for _, mnemonic := range []string{
		"lea",
		"je", "jne", "ja", "jna", "jae", "jnae", "jb", "jnb", "jbe", "jnbe", "jmp", "call", "ret",
		"snfc", "cnfc",
		"init", "sleep", "sys", "dump", "quit",
	} {
		if err := cs.AddCommandImpl(mnemonic, ExecutorService, mnemonic); err != nil {
			return err
		}
	}
	return nil
}

func (e *ServiceExecutor) Execute(l *Logic, handle string, cmd *Command) error {
	switch handle {
	case "lea":
		direct, err := l.linker.Resolve(l.mmu, cmd.Ref)
		if err != nil {
			return err
		}
		p, err := l.mmu.ARegister(int64(RegF))
		if err != nil {
			return err
		}
		*p = FromInt(encodeDirectRef(direct))
		return nil
	case "je":
		return condJump(l, cmd, func(ctx Context) bool { return ctx.Flags.Has(FlagZero) })
	case "jne":
		return condJump(l, cmd, func(ctx Context) bool { return !ctx.Flags.Has(FlagZero) })
	case "ja":
		return condJump(l, cmd, func(ctx Context) bool { return !ctx.Flags.Has(FlagZero) && !ctx.Flags.Has(FlagNegative) })
	case "jna":
		return condJump(l, cmd, func(ctx Context) bool { return ctx.Flags.Has(FlagZero) || ctx.Flags.Has(FlagNegative) })
	case "jae":
		return condJump(l, cmd, func(ctx Context) bool { return !ctx.Flags.Has(FlagNegative) })
	case "jnae":
		return condJump(l, cmd, func(ctx Context) bool { return ctx.Flags.Has(FlagNegative) })
	case "jb":
		return condJump(l, cmd, func(ctx Context) bool { return ctx.Flags.Has(FlagNegative) })
	case "jnb":
		return condJump(l, cmd, func(ctx Context) bool { return !ctx.Flags.Has(FlagNegative) })
	case "jbe":
		return condJump(l, cmd, func(ctx Context) bool { return ctx.Flags.Has(FlagNegative) || ctx.Flags.Has(FlagZero) })
	case "jnbe":
		return condJump(l, cmd, func(ctx Context) bool { return !ctx.Flags.Has(FlagNegative) && !ctx.Flags.Has(FlagZero) })
	case "jmp":
		return l.Jump(cmd.Ref)
	case "call":
		l.mmu.SaveContext()
		if err := l.Jump(cmd.Ref); err != nil {
			_ = l.mmu.RestoreContext()
			return err
		}
		return nil
	case "ret":
		return l.mmu.RestoreContext()
	case "snfc":
		l.mmu.ContextMut().Flags |= FlagNFC
		return nil
	case "cnfc":
		l.mmu.ContextMut().Flags &^= FlagNFC
		return nil
	case "init":
		id := l.mmu.NextContextBuffer()
		_ = id
		return nil
	case "sleep":
		n, err := cmd.Immediate.Expect(Integer, false)
		if err != nil {
			return err
		}
		if n.Int() > 0 {
			time.Sleep(time.Duration(n.Int()) * time.Millisecond)
		}
		return nil
	case "sys":
		return execSyscall(l, e, cmd)
	case "dump":
		entry := l.log.WithField("ip", l.mmu.Context().IP).
			WithField("flags", l.mmu.Context().Flags).
			WithField("buffer", l.mmu.Context().BufferID)
		if code, err := l.mmu.WriteSection(SecCode); err == nil {
			entry = entry.WithField("code_len", len(code.([]Command)))
		}
		if data, err := l.mmu.WriteSection(SecData); err == nil {
			entry = entry.WithField("data_len", len(data.([]Value)))
		}
		if pool, err := l.mmu.WriteSection(SecBytePool); err == nil {
			entry = entry.WithField("bytepool_len", len(pool.([]byte)))
		}
		entry.Info("vm state dump")
		return nil
	case "quit":
		l.mmu.ContextMut().Flags |= FlagExit
		return nil
	default:
		return newErr(ErrInvalidReference, "service executor has no implementation for %q", handle)
	}
}

// condJump calls Jump only if pred holds against the context as it stood
// before the branch (the flags a preceding cmp/anal/arithmetic op set).
func condJump(l *Logic, cmd *Command, pred func(Context) bool) error {
	if pred(l.mmu.Context()) {
		return l.Jump(cmd.Ref)
	}
	return nil
}

// RegF is the register lea stores a resolved address's encoded form into.
const RegF = RegisterCount - 1

// encodeDirectRef packs a DirectReference into a single int64: section in
// the high byte, offset in the remaining 56 bits.
func encodeDirectRef(d DirectReference) int64 {
	return int64(byte(d.Section))<<56 | (d.Offset & 0x00FFFFFFFFFFFFFF)
}

// DefaultSyscalls builds the sys dispatch table: 0 is a no-op, 1 writes
// bytes from the byte pool to stdout, 2 reads one rune from stdin into the
// byte pool, 3 requests shutdown (equivalent to quit).
func DefaultSyscalls() map[int64]SyscallFunc {
	return map[int64]SyscallFunc{
		0: func(mmu *MMU) error { return nil },
		1: syscallWrite,
		2: syscallRead,
		3: func(mmu *MMU) error {
			mmu.ContextMut().Flags |= FlagExit
			return nil
		},
	}
}

// syscallWrite writes len bytes starting at offset, both read from registers
// R_A (offset) and R_B (length), from the byte pool to stdout.
func syscallWrite(mmu *MMU) error {
	offReg, err := mmu.ARegister(0)
	if err != nil {
		return err
	}
	lenReg, err := mmu.ARegister(1)
	if err != nil {
		return err
	}
	off, err := offReg.Expect(Integer, false)
	if err != nil {
		return err
	}
	n, err := lenReg.Expect(Integer, false)
	if err != nil {
		return err
	}
	for i := int64(0); i < n.Int(); i++ {
		b, err := mmu.ABytePool(off.Int() + i)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(os.Stdout, "%c", *b); err != nil {
			return newErr(ErrIOError, "sys write: %v", err)
		}
	}
	return nil
}

// syscallRead reads one rune from stdin and stores its low byte at the byte
// pool offset named by register R_A.
func syscallRead(mmu *MMU) error {
	offReg, err := mmu.ARegister(0)
	if err != nil {
		return err
	}
	off, err := offReg.Expect(Integer, false)
	if err != nil {
		return err
	}
	r, _, err := stdinReader.ReadRune()
	if err != nil {
		return newErr(ErrIOError, "sys read: %v", err)
	}
	p, err := mmu.ABytePool(off.Int())
	if err != nil {
		return err
	}
	*p = byte(r)
	return nil
}

func execSyscall(l *Logic, e *ServiceExecutor, cmd *Command) error {
	n, err := cmd.Immediate.Expect(Integer, false)
	if err != nil {
		return err
	}
	fn, ok := e.Syscall[n.Int()]
	if !ok {
		return newErr(ErrInvalidReference, "no syscall handler registered for %d", n.Int())
	}
	return fn(l.mmu)
}
