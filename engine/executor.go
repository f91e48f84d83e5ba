package engine

// Executor implements instruction semantics against an MMU/Linker. Three
// instances exist: IntExecutor (Integer), FloatExecutor (Float), and
// ServiceExecutor (NoneType — instructions that never touch an operand
// stack).
type Executor interface {
	SupportedType() ValueType
	ID() ExecutorID

	// ResetImplementations re-registers this executor's handles in cs,
	// called whenever a fresh CommandSet needs wiring.
	ResetImplementations(cs *CommandSet) error

	// Execute runs the instruction named by handle against cmd.
	Execute(l *Logic, handle string, cmd *Command) error
}

// arithTemplate implements the uniform pop/compute/push/analyze shape
// shared by arithmetic executors: pop 0/1/2 typed arguments, compute, push
// the result, and — unless F_NFC is set — call logic.analyze(result).
//
// nargs is 1 or 2. op receives the popped argument(s) (args[0] is the value
// popped first — i.e. the former top of stack) and returns the result to
// push.
func arithTemplate(l *Logic, nargs int, op func(args []Value) (Value, error)) error {
	args := make([]Value, nargs)
	for i := 0; i < nargs; i++ {
		v, err := l.mmu.StackPop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	result, err := op(args)
	if err != nil {
		return err
	}
	l.mmu.StackPush(result)
	if !l.mmu.current.Flags.Has(FlagNFC) {
		l.Analyze(result)
	}
	return nil
}
