package engine

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/sirupsen/logrus"
)

// Logic is the single-instruction dispatch engine: executor/handle
// resolution and caching, flag analysis, jump/read/write routing, and the
// execution-relevant state checksum the native backend keys its image
// cache on.
type Logic struct {
	log *logrus.Entry

	mmu    *MMU
	linker *Linker
	cs     *CommandSet

	executors map[ExecutorID]Executor
}

func NewLogic(mmu *MMU, linker *Linker, cs *CommandSet, intExec, floatExec, serviceExec Executor, log *logrus.Entry) *Logic {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Logic{
		log:    log,
		mmu:    mmu,
		linker: linker,
		cs:     cs,
		executors: map[ExecutorID]Executor{
			intExec.ID():     intExec,
			floatExec.ID():   floatExec,
			serviceExec.ID(): serviceExec,
		},
	}
}

// ExecuteSingleCommand is the per-instruction entry point.
func (l *Logic) ExecuteSingleCommand(cmd *Command) error {
	traits, err := l.cs.TraitsByID(cmd.ID)
	if err != nil {
		return l.annotate(err, cmd)
	}

	if !cmd.cache.valid || cmd.cache.generation != l.cs.generation {
		execID := l.executorForCommand(traits, cmd)
		handle, ok := l.cs.Handle(cmd.ID, execID)
		if !ok {
			return l.annotate(newErr(ErrInvalidReference, "no handle registered for %q on executor %d", traits.Mnemonic, execID), cmd)
		}
		cmd.cache = dispatchCache{valid: true, generation: l.cs.generation, executor: l.executors[execID], handle: handle}
	}

	ctx := l.mmu.ContextMut()
	ctx.Flags &^= FlagWasJump

	if !traits.IsService {
		l.mmu.SelectStack(cmd.Type)
	}

	handleStr, _ := cmd.cache.handle.(string)
	if err := cmd.cache.executor.Execute(l, handleStr, cmd); err != nil {
		return l.annotate(err, cmd)
	}
	return nil
}

// executorForCommand resolves which executor should run cmd: Service
// instructions always go to the service executor; every other instruction
// is routed by cmd.Type, because one mnemonic is shared by the Integer and
// Float executors.
func (l *Logic) executorForCommand(traits *Traits, cmd *Command) ExecutorID {
	if traits.IsService {
		return ExecutorService
	}
	if cmd.Type == Float {
		return ExecutorFloat
	}
	return ExecutorInt
}

func (l *Logic) annotate(err error, cmd *Command) error {
	if ee, ok := err.(*EngineError); ok {
		if !ee.HasIP {
			traits, terr := l.cs.TraitsByID(cmd.ID)
			mnemonic := "?"
			if terr == nil {
				mnemonic = traits.Mnemonic
			}
			ee.IP = int(l.mmu.Context().IP)
			ee.Mnemonic = mnemonic
			ee.HasIP = true
		}
		return ee
	}
	return err
}

// Analyze clears Zero/Negative/InvalidFP, then sets them from v.
func (l *Logic) Analyze(v Value) {
	ctx := l.mmu.ContextMut()
	ctx.Flags &^= FlagZero | FlagNegative | FlagInvalidFP

	switch v.Type() {
	case Integer:
		n := v.Int()
		if n == 0 {
			ctx.Flags |= FlagZero
		}
		if n < 0 {
			ctx.Flags |= FlagNegative
		}
	case Float:
		f := v.Float()
		if f == 0 {
			ctx.Flags |= FlagZero
		}
		if f < 0 {
			ctx.Flags |= FlagNegative
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || isSubnormal(f) {
			ctx.Flags |= FlagInvalidFP
		}
	}
}

func isSubnormal(f float64) bool {
	const minNormal = 2.2250738585072014e-308
	abs := math.Abs(f)
	return abs != 0 && abs < minNormal
}

// Jump resolves ref and, if it names Code, sets ip and F_WAS_JUMP. Any other
// section is an InvalidJumpTarget.
func (l *Logic) Jump(ref Reference) error {
	direct, err := l.linker.Resolve(l.mmu, ref)
	if err != nil {
		return err
	}
	if direct.Section != SecCode {
		return newErr(ErrInvalidJumpTarget, "jump target resolves to section %s, not code", direct.Section)
	}
	ctx := l.mmu.ContextMut()
	ctx.IP = direct.Offset
	ctx.Flags |= FlagWasJump
	return nil
}

// Read resolves ref and routes to the matching MMU accessor. FrameBack(k)
// maps to AStackFrame(-k).
func (l *Logic) Read(ref Reference) (Value, error) {
	direct, err := l.linker.Resolve(l.mmu, ref)
	if err != nil {
		return Value{}, err
	}
	if err := l.mmu.VerifyReference(direct); err != nil {
		return Value{}, err
	}
	switch direct.Section {
	case SecCode:
		cmd, err := l.mmu.ACommand(direct.Offset)
		if err != nil {
			return Value{}, err
		}
		if cmd.Kind == ArgImmediate {
			return cmd.Immediate, nil
		}
		return Value{}, newErr(ErrTypeError, "code reference at %d carries no immediate value", direct.Offset)
	case SecData:
		p, err := l.mmu.AData(direct.Offset)
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecRegister:
		p, err := l.mmu.ARegister(direct.Offset)
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecFrame:
		p, err := l.mmu.AStackFrame(int(direct.Offset))
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecFrameBack:
		p, err := l.mmu.AStackFrame(-int(direct.Offset))
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecBytePool:
		p, err := l.mmu.ABytePool(direct.Offset)
		if err != nil {
			return Value{}, err
		}
		return FromInt(int64(*p)), nil
	default:
		return Value{}, newErr(ErrInvalidReference, "cannot read section %s", direct.Section)
	}
}

// Write resolves ref and routes to the matching MMU accessor. Writes to Code
// are dropped with a diagnostic; BytePool requires an Integer value and
// stores its low byte.
func (l *Logic) Write(ref Reference, v Value) error {
	direct, err := l.linker.Resolve(l.mmu, ref)
	if err != nil {
		return err
	}
	if err := l.mmu.VerifyReference(direct); err != nil {
		return err
	}
	switch direct.Section {
	case SecCode:
		l.log.WithField("offset", direct.Offset).Warn("write to code section dropped")
		return nil
	case SecData:
		p, err := l.mmu.AData(direct.Offset)
		if err != nil {
			return err
		}
		*p = v
		return nil
	case SecRegister:
		p, err := l.mmu.ARegister(direct.Offset)
		if err != nil {
			return err
		}
		*p = v
		return nil
	case SecFrame:
		p, err := l.mmu.AStackFrame(int(direct.Offset))
		if err != nil {
			return err
		}
		*p = v
		return nil
	case SecFrameBack:
		p, err := l.mmu.AStackFrame(-int(direct.Offset))
		if err != nil {
			return err
		}
		*p = v
		return nil
	case SecBytePool:
		iv, err := v.Expect(Integer, false)
		if err != nil {
			return err
		}
		p, err := l.mmu.ABytePool(direct.Offset)
		if err != nil {
			return err
		}
		*p = byte(iv.Int())
		return nil
	default:
		return newErr(ErrInvalidReference, "cannot write section %s", direct.Section)
	}
}

// ChecksumState computes a 64-bit digest over the current Context and the
// current buffer's text image. The native backend uses this as the identity
// of a compiled image; the interpreter computes it to decide whether a
// cached native image is still valid.
func (l *Logic) ChecksumState() (uint64, error) {
	buf, err := l.mmu.CurrentBuffer()
	if err != nil {
		return 0, err
	}
	h := fnv.New64a()

	var scratch [40]byte
	ctx := l.mmu.Context()
	binary.LittleEndian.PutUint64(scratch[0:8], uint64(ctx.IP))
	binary.LittleEndian.PutUint64(scratch[8:16], uint64(ctx.Flags))
	binary.LittleEndian.PutUint64(scratch[16:24], uint64(ctx.BufferID))
	binary.LittleEndian.PutUint64(scratch[24:32], uint64(ctx.Depth))
	binary.LittleEndian.PutUint64(scratch[32:40], uint64(ctx.Frame))
	_, _ = h.Write(scratch[:])

	for _, cmd := range buf.Commands {
		var cs [24]byte
		binary.LittleEndian.PutUint16(cs[0:2], cmd.ID)
		cs[2] = byte(cmd.Type)
		cs[3] = byte(cmd.Kind)
		binary.LittleEndian.PutUint64(cs[4:12], cmd.Immediate.bits)
		cs[12] = byte(cmd.Immediate.tag)
		_, _ = h.Write(cs[:])
		_ = writeReference(h, cmd.Ref)
	}
	return h.Sum64(), nil
}
