package engine

// Instruction ids for the fixed initial command set.
const (
	OpPush uint16 = iota
	OpPop
	OpTop
	OpCmp
	OpSwap
	OpDup
	OpAnal

	OpLea
	OpLd
	OpSt
	OpLdInt
	OpStInt
	OpSetType

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpInc
	OpDec
	OpNeg
	OpAbs
	OpSqrt
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan

	OpJe
	OpJne
	OpJa
	OpJna
	OpJae
	OpJnae
	OpJb
	OpJnb
	OpJbe
	OpJnbe
	OpJmp
	OpCall
	OpRet

	OpSnfc
	OpCnfc

	OpInit
	OpSleep
	OpSys
	OpDump
	OpQuit
)

// NewStandardCommandSet builds the fixed initial CommandSet: stack ops,
// memory ops, integer/float arithmetic, branches, flag control, and service
// instructions. Arithmetic/comparison mnemonics are shared across the
// Integer and Float executors — CommandSet dispatch distinguishes them by
// the Command's declared Type, not by mnemonic, so one mnemonic, "add",
// carries both behaviors keyed by Command.Type.
func NewStandardCommandSet() (*CommandSet, error) {
	cs := NewCommandSet()

	type def struct {
		id        uint16
		mnemonic  string
		desc      string
		argType   ArgKind
		isService bool
	}

	defs := []def{
		{OpPush, "push", "push a value onto the selected operand stack", ArgImmediate, false},
		{OpPop, "pop", "pop and discard the top of the selected operand stack", ArgNone, false},
		{OpTop, "top", "push a copy of the operand at the given depth from the top", ArgImmediate, false},
		{OpCmp, "cmp", "pop one operand, peek the other, compute peek-minus-pop", ArgNone, false},
		{OpSwap, "swap", "swap the top two operands of the selected stack", ArgNone, false},
		{OpDup, "dup", "duplicate the top of the selected operand stack", ArgNone, false},
		{OpAnal, "anal", "analyze the top of the selected operand stack", ArgNone, false},

		{OpLea, "lea", "store a resolved address into register R_F", ArgReference, true},
		{OpLd, "ld", "push the value at a reference", ArgReference, false},
		{OpSt, "st", "pop and store the value at a reference", ArgReference, false},
		{OpLdInt, "ldint", "push an integer-typed value at a reference", ArgReference, false},
		{OpStInt, "stint", "pop and store an integer-typed value at a reference", ArgReference, false},
		{OpSetType, "settype", "retag the top of the selected stack", ArgImmediate, false},

		{OpAdd, "add", "add", ArgNone, false},
		{OpSub, "sub", "subtract (top is the subtrahend)", ArgNone, false},
		{OpMul, "mul", "multiply", ArgNone, false},
		{OpDiv, "div", "divide (top is the divisor)", ArgNone, false},
		{OpMod, "mod", "remainder", ArgNone, false},
		{OpInc, "inc", "increment", ArgNone, false},
		{OpDec, "dec", "decrement", ArgNone, false},
		{OpNeg, "neg", "negate", ArgNone, false},
		{OpAbs, "abs", "absolute value", ArgNone, false},
		{OpSqrt, "sqrt", "square root", ArgNone, false},
		{OpSin, "sin", "sine", ArgNone, false},
		{OpCos, "cos", "cosine", ArgNone, false},
		{OpTan, "tan", "tangent", ArgNone, false},
		{OpAsin, "asin", "arc sine", ArgNone, false},
		{OpAcos, "acos", "arc cosine", ArgNone, false},
		{OpAtan, "atan", "arc tangent", ArgNone, false},

		{OpJe, "je", "jump if Zero", ArgReference, true},
		{OpJne, "jne", "jump if not Zero", ArgReference, true},
		{OpJa, "ja", "jump if above", ArgReference, true},
		{OpJna, "jna", "jump if not above", ArgReference, true},
		{OpJae, "jae", "jump if above or equal", ArgReference, true},
		{OpJnae, "jnae", "jump if not above or equal", ArgReference, true},
		{OpJb, "jb", "jump if below (Negative)", ArgReference, true},
		{OpJnb, "jnb", "jump if not below", ArgReference, true},
		{OpJbe, "jbe", "jump if below or equal", ArgReference, true},
		{OpJnbe, "jnbe", "jump if not below or equal", ArgReference, true},
		{OpJmp, "jmp", "unconditional jump", ArgReference, true},
		{OpCall, "call", "save context then jump", ArgReference, true},
		{OpRet, "ret", "restore context", ArgNone, true},

		{OpSnfc, "snfc", "set the no-flag-change flag", ArgNone, true},
		{OpCnfc, "cnfc", "clear the no-flag-change flag", ArgNone, true},

		{OpInit, "init", "save the context and switch to a newly allocated empty buffer; existing buffers and stacks are not reset", ArgNone, true},
		{OpSleep, "sleep", "sleep for the immediate's number of milliseconds", ArgImmediate, true},
		{OpSys, "sys", "invoke syscall k", ArgImmediate, true},
		{OpDump, "dump", "print a diagnostic dump of VM state", ArgNone, true},
		{OpQuit, "quit", "set the exit flag", ArgNone, true},
	}

	for _, d := range defs {
		if err := cs.Define(d.id, d.mnemonic, d.desc, d.argType, d.isService); err != nil {
			return nil, err
		}
	}
	return cs, nil
}
