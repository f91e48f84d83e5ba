// Package native compiles a run of pure-integer, branch-free engine commands
// to x86-64 machine code and executes it directly instead of stepping
// through Logic.ExecuteSingleCommand, for hot arithmetic loops. It builds
// machine instructions with golang-asm's obj.Prog builder, assembles to a
// byte slice, and runs it from an mmap'd executable page reached through a
// small assembly trampoline.
package native

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/kt-fork/vvm/engine"
)

// ErrUnsupported is returned only when not even a single leading command is
// eligible: a reference argument (ld/st/lea/jumps), a Float-typed command,
// or a Service instruction other than quit. A run that translates at least
// one command never returns this error, even if it stops short of the full
// slice — see Backend.compile.
var ErrUnsupported = fmt.Errorf("native: command sequence not eligible for compilation")

// stackBaseReg/stackLenReg are the registers call_amd64.s hands the working
// stack pointer and current depth in; R8 carries the running depth so it
// survives across the whole compiled body without spilling.
const (
	stackBaseReg = x86.REG_BX
	stackLenReg  = x86.REG_R8
	scratchReg   = x86.REG_CX
	scratch2Reg  = x86.REG_DX
)

// Backend turns a straight-line, integer-only command run into an Image.
// Supported commands operate purely on a caller-supplied int64 stack
// threaded through the generated code's own frame — they never touch MMU
// state directly, so only pure computations (no ld/st/branches) are
// eligible. Float commands are never eligible: the x86-64 calling contract
// this backend targets keeps the float accumulator on the x87 stack, and
// golang-asm (forked from the Go compiler's amd64 backend, which has emitted
// SSE2 and never x87 since Go 1.1) carries no x87 opcodes to emit it with —
// so float runs always fall back to the interpreter, by construction, not
// as an oversight.
//
// compile does not require translating the whole command slice: it stops
// at the first ineligible command (or at a trailing quit, which always
// ends the compiled run) and reports how many commands it actually
// translated. A caller holding the untranslated remainder is expected to
// interpret it — the "command gate" — rather than discard the whole run.
type Backend struct {
	MaxCachedImages int

	cache *imageCache
}

// NewBackend constructs a Backend with the default image-cache bound: 8
// cached images, LRU eviction.
func NewBackend() *Backend {
	return NewBackendWithCapacity(8)
}

// NewBackendWithCapacity constructs a Backend whose image cache holds at
// most max compiled images (see engineconfig.Config.Native.MaxCachedImages).
func NewBackendWithCapacity(max int) *Backend {
	return &Backend{MaxCachedImages: max, cache: newImageCache(max)}
}

// CompileOrReuse returns a cached Image and its translated-instruction count
// for checksum if present, otherwise compiles cmds and caches the result.
func (b *Backend) CompileOrReuse(checksum uint64, cmds []engine.Command) (*Image, int, error) {
	if entry, ok := b.cache.get(checksum); ok {
		return entry.image, entry.translated, nil
	}
	img, translated, err := b.compile(cmds)
	if err != nil {
		return nil, 0, err
	}
	b.cache.put(checksum, img, translated)
	return img, translated, nil
}

// EngineBackend adapts *Backend to engine.NativeBackend, converting the
// concrete *Image result to the engine.NativeImage interface. engine cannot
// import internal/native (it would cycle back through engine), so the
// interpreter depends only on these two narrow interfaces.
type EngineBackend struct {
	*Backend
}

func (e EngineBackend) CompileOrReuse(checksum uint64, cmds []engine.Command) (engine.NativeImage, int, error) {
	img, translated, err := e.Backend.CompileOrReuse(checksum, cmds)
	if err != nil {
		return nil, 0, err
	}
	return img, translated, nil
}

// eligibleOp reports the opcode to compile for cmd, and whether cmd can be
// compiled at all. quit is always eligible — it carries no operand and its
// Type is NoneType (it is a Service instruction), so it must be checked
// before the Integer/ArgReference filter that excludes everything else.
func eligibleOp(cmd engine.Command) (uint16, bool) {
	if cmd.ID == engine.OpQuit {
		return engine.OpQuit, true
	}
	if cmd.Type != engine.Integer || cmd.Kind == engine.ArgReference {
		return 0, false
	}
	switch cmd.ID {
	case engine.OpPush, engine.OpAdd, engine.OpSub, engine.OpMul, engine.OpNeg, engine.OpInc, engine.OpDec, engine.OpAbs:
		return cmd.ID, true
	default:
		return 0, false
	}
}

// compile lowers as much of cmds' eligible prefix as it can to x86-64
// machine code operating on a caller-supplied []int64 stack (see
// call_amd64.s): BX holds the stack base pointer, R8 the current stack
// depth. The compiled body always ends with emitExit, which materializes
// the top of the integer stack (or Uninitialised if empty) into the
// out_tag/AX calling contract described in image.go. Stopping short of the
// full slice is not an error — it returns however many commands it managed,
// so long as that count is at least one.
func (b *Backend) compile(cmds []engine.Command) (*Image, int, error) {
	builder, err := asm.NewBuilder("amd64", len(cmds)*4+16)
	if err != nil {
		return nil, 0, err
	}

	translated := 0
loop:
	for _, cmd := range cmds {
		op, ok := eligibleOp(cmd)
		if !ok {
			break loop
		}
		switch op {
		case engine.OpPush:
			emitPushImm(builder, cmd.Immediate.Int())
		case engine.OpAdd:
			emitBinOp(builder, x86.AADDQ)
		case engine.OpSub:
			// sub: top is subtrahend; result = second - top.
			emitSub(builder)
		case engine.OpMul:
			emitBinOp(builder, x86.AIMULQ)
		case engine.OpNeg:
			emitUnOp(builder, x86.ANEGQ)
		case engine.OpInc:
			emitIncDec(builder, x86.AINCQ)
		case engine.OpDec:
			emitIncDec(builder, x86.ADECQ)
		case engine.OpAbs:
			emitAbs(builder)
		case engine.OpQuit:
			// No codegen of its own: the shared exit tail below is quit's
			// entire effect (materialize top-of-stack, return).
		}
		translated++
		if op == engine.OpQuit {
			break loop
		}
	}
	if translated == 0 {
		return nil, 0, ErrUnsupported
	}
	emitExit(builder)

	code := builder.Assemble()
	img, err := newImage(code)
	if err != nil {
		return nil, 0, err
	}
	return img, translated, nil
}

func newProg(b *asm.Builder) *obj.Prog {
	p := b.NewProg()
	return p
}

// emitPushImm: MOVQ $imm, (BX)(R8*8); INCQ R8.
func emitPushImm(b *asm.Builder, imm int64) {
	mov := newProg(b)
	mov.As = x86.AMOVQ
	mov.From.Type = obj.TYPE_CONST
	mov.From.Offset = imm
	mov.To.Type = obj.TYPE_MEM
	mov.To.Reg = stackBaseReg
	mov.To.Index = stackLenReg
	mov.To.Scale = 8
	b.AddInstruction(mov)

	inc := newProg(b)
	inc.As = x86.AINCQ
	inc.To.Type = obj.TYPE_REG
	inc.To.Reg = stackLenReg
	b.AddInstruction(inc)
}

// popInto loads (BX)(R8-1*8) into reg and decrements R8.
func popInto(b *asm.Builder, reg int16) {
	dec := newProg(b)
	dec.As = x86.ADECQ
	dec.To.Type = obj.TYPE_REG
	dec.To.Reg = stackLenReg
	b.AddInstruction(dec)

	mov := newProg(b)
	mov.As = x86.AMOVQ
	mov.From.Type = obj.TYPE_MEM
	mov.From.Reg = stackBaseReg
	mov.From.Index = stackLenReg
	mov.From.Scale = 8
	mov.To.Type = obj.TYPE_REG
	mov.To.Reg = reg
	b.AddInstruction(mov)
}

// pushFrom stores reg at (BX)(R8*8) and increments R8.
func pushFrom(b *asm.Builder, reg int16) {
	mov := newProg(b)
	mov.As = x86.AMOVQ
	mov.From.Type = obj.TYPE_REG
	mov.From.Reg = reg
	mov.To.Type = obj.TYPE_MEM
	mov.To.Reg = stackBaseReg
	mov.To.Index = stackLenReg
	mov.To.Scale = 8
	b.AddInstruction(mov)

	inc := newProg(b)
	inc.As = x86.AINCQ
	inc.To.Type = obj.TYPE_REG
	inc.To.Reg = stackLenReg
	b.AddInstruction(inc)
}

// emitBinOp pops top (scratchReg) then second (scratch2Reg), computes
// scratch2Reg = scratch2Reg <op> scratchReg, pushes scratch2Reg. Valid for
// commutative ops (add, mul).
func emitBinOp(b *asm.Builder, as obj.As) {
	popInto(b, scratchReg)
	popInto(b, scratch2Reg)

	op := newProg(b)
	op.As = as
	op.From.Type = obj.TYPE_REG
	op.From.Reg = scratchReg
	op.To.Type = obj.TYPE_REG
	op.To.Reg = scratch2Reg
	b.AddInstruction(op)

	pushFrom(b, scratch2Reg)
}

// emitSub pops the subtrahend (scratchReg), pops the minuend (scratch2Reg),
// computes scratch2Reg -= scratchReg, pushes scratch2Reg.
func emitSub(b *asm.Builder) {
	popInto(b, scratchReg)
	popInto(b, scratch2Reg)

	op := newProg(b)
	op.As = x86.ASUBQ
	op.From.Type = obj.TYPE_REG
	op.From.Reg = scratchReg
	op.To.Type = obj.TYPE_REG
	op.To.Reg = scratch2Reg
	b.AddInstruction(op)

	pushFrom(b, scratch2Reg)
}

func emitUnOp(b *asm.Builder, as obj.As) {
	popInto(b, scratchReg)

	op := newProg(b)
	op.As = as
	op.To.Type = obj.TYPE_REG
	op.To.Reg = scratchReg
	b.AddInstruction(op)

	pushFrom(b, scratchReg)
}

// emitIncDec adjusts the top-of-stack value in place without changing depth:
// pop, INC/DEC, push.
func emitIncDec(b *asm.Builder, as obj.As) {
	emitUnOp(b, as)
}

// emitAbs computes the absolute value via negate-if-negative: pop, test
// sign, conditionally negate, push. Implemented as MOV+NEG into scratch2,
// TEST of the original value, then CMOVQLT selecting the negated copy when
// the original was negative.
func emitAbs(b *asm.Builder) {
	popInto(b, scratchReg)

	neg := newProg(b)
	neg.As = x86.AMOVQ
	neg.From.Type = obj.TYPE_REG
	neg.From.Reg = scratchReg
	neg.To.Type = obj.TYPE_REG
	neg.To.Reg = scratch2Reg
	b.AddInstruction(neg)

	negate := newProg(b)
	negate.As = x86.ANEGQ
	negate.To.Type = obj.TYPE_REG
	negate.To.Reg = scratch2Reg
	b.AddInstruction(negate)

	test := newProg(b)
	test.As = x86.ATESTQ
	test.From.Type = obj.TYPE_REG
	test.From.Reg = scratchReg
	test.To.Type = obj.TYPE_REG
	test.To.Reg = scratchReg
	b.AddInstruction(test)

	cmov := newProg(b)
	cmov.As = x86.ACMOVQLT
	cmov.From.Type = obj.TYPE_REG
	cmov.From.Reg = scratch2Reg
	cmov.To.Type = obj.TYPE_REG
	cmov.To.Reg = scratchReg
	b.AddInstruction(cmov)

	pushFrom(b, scratchReg)
}

// writeTag stores the one-byte ValueType tag at (R11), the out_tag pointer
// the caller hands in per call_amd64.s/image.go's calling contract.
func writeTag(b *asm.Builder, tag engine.ValueType) {
	mov := newProg(b)
	mov.As = x86.AMOVB
	mov.From.Type = obj.TYPE_CONST
	mov.From.Offset = int64(tag)
	mov.To.Type = obj.TYPE_MEM
	mov.To.Reg = x86.REG_R11
	b.AddInstruction(mov)
}

// emitExit materializes the top of the working stack into AX and writes its
// tag through R11, then returns R8 (remaining depth) as the second return
// value. An empty stack reports Uninitialised with AX cleared; this is the
// shared tail for both a genuine quit and a command-gate stop, since quit's
// own interpreted semantics never touch the stack — splicing the top back
// uniformly is correct either way.
func emitExit(b *asm.Builder) {
	cmp := newProg(b)
	cmp.As = x86.ACMPQ
	cmp.From.Type = obj.TYPE_REG
	cmp.From.Reg = stackLenReg
	cmp.To.Type = obj.TYPE_CONST
	cmp.To.Offset = 0
	b.AddInstruction(cmp)

	jeq := newProg(b)
	jeq.As = x86.AJEQ
	jeq.To.Type = obj.TYPE_BRANCH
	b.AddInstruction(jeq)

	popInto(b, x86.REG_AX)
	writeTag(b, engine.Integer)

	jmpDone := newProg(b)
	jmpDone.As = obj.AJMP
	jmpDone.To.Type = obj.TYPE_BRANCH
	b.AddInstruction(jmpDone)

	empty := newProg(b)
	empty.As = obj.ANOP
	b.AddInstruction(empty)
	jeq.To.SetTarget(empty)

	xor := newProg(b)
	xor.As = x86.AXORQ
	xor.From.Type = obj.TYPE_REG
	xor.From.Reg = x86.REG_AX
	xor.To.Type = obj.TYPE_REG
	xor.To.Reg = x86.REG_AX
	b.AddInstruction(xor)
	writeTag(b, engine.Uninitialised)

	done := newProg(b)
	done.As = obj.ANOP
	b.AddInstruction(done)
	jmpDone.To.SetTarget(done)

	ret := newProg(b)
	ret.As = obj.ARET
	b.AddInstruction(ret)
}
