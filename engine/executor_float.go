package engine

import "math"

// FloatExecutor implements instruction semantics for Float-typed commands.
// It shares the stack/memory/arithmetic mnemonics with IntExecutor but
// additionally registers the transcendental functions, which make sense
// only for Float.
type FloatExecutor struct{}

func NewFloatExecutor() *FloatExecutor { return &FloatExecutor{} }

func (e *FloatExecutor) SupportedType() ValueType { return Float }
func (e *FloatExecutor) ID() ExecutorID           { return ExecutorFloat }

func (e *FloatExecutor) ResetImplementations(cs *CommandSet) error {
	shared := []string{
		"push", "pop", "top", "cmp", "swap", "dup", "anal",
		"ld", "st", "ldint", "stint", "settype",
		"add", "sub", "mul", "div", "mod", "inc", "dec", "neg", "abs",
	}
	floatOnly := []string{"sqrt", "sin", "cos", "tan", "asin", "acos", "atan"}

	for _, mnemonic := range shared {
		if err := cs.AddCommandImpl(mnemonic, ExecutorFloat, mnemonic); err != nil {
			return err
		}
	}
	for _, mnemonic := range floatOnly {
		if err := cs.AddCommandImpl(mnemonic, ExecutorFloat, mnemonic); err != nil {
			return err
		}
	}
	return nil
}

func (e *FloatExecutor) Execute(l *Logic, handle string, cmd *Command) error {
	switch handle {
	case "push":
		v, err := cmd.Immediate.Expect(Float, false)
		if err != nil {
			return err
		}
		l.mmu.StackPush(v)
		return nil
	case "pop":
		_, err := l.mmu.StackPop()
		return err
	case "top":
		off, err := cmd.Immediate.Expect(Integer, false)
		if err != nil {
			return err
		}
		p, err := l.mmu.StackTop(int(off.Int()))
		if err != nil {
			return err
		}
		l.mmu.StackPush(*p)
		return nil
	case "swap":
		a, err := l.mmu.StackTop(0)
		if err != nil {
			return err
		}
		b, err := l.mmu.StackTop(1)
		if err != nil {
			return err
		}
		*a, *b = *b, *a
		return nil
	case "dup":
		p, err := l.mmu.StackTop(0)
		if err != nil {
			return err
		}
		l.mmu.StackPush(*p)
		return nil
	case "anal":
		p, err := l.mmu.StackTop(0)
		if err != nil {
			return err
		}
		l.Analyze(*p)
		return nil
	case "cmp":
		return execCompare(l)
	case "ld":
		return execLoad(l, cmd, false)
	case "st":
		return execStore(l, cmd, false)
	case "ldint":
		return execLoad(l, cmd, true)
	case "stint":
		return execStore(l, cmd, true)
	case "settype":
		p, err := l.mmu.StackTop(0)
		if err != nil {
			return err
		}
		tag, err := cmd.Immediate.Expect(Integer, false)
		if err != nil {
			return err
		}
		*p = FromABI(p.ToABI(), ValueType(tag.Int()))
		return nil
	case "add":
		return arithTemplate(l, 2, func(a []Value) (Value, error) { return floatBinOp(a, func(x, y float64) float64 { return x + y }) })
	case "sub":
		return arithTemplate(l, 2, func(a []Value) (Value, error) {
			return floatBinOp(a, func(sub, minuend float64) float64 { return minuend - sub })
		})
	case "mul":
		return arithTemplate(l, 2, func(a []Value) (Value, error) { return floatBinOp(a, func(x, y float64) float64 { return x * y }) })
	case "div":
		return arithTemplate(l, 2, func(a []Value) (Value, error) {
			return floatBinOp(a, func(divisor, minuend float64) float64 { return minuend / divisor })
		})
	case "mod":
		return arithTemplate(l, 2, func(a []Value) (Value, error) {
			return floatBinOp(a, func(divisor, minuend float64) float64 { return math.Mod(minuend, divisor) })
		})
	case "inc":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, func(x float64) float64 { return x + 1 }) })
	case "dec":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, func(x float64) float64 { return x - 1 }) })
	case "neg":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, func(x float64) float64 { return -x }) })
	case "abs":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Abs) })
	case "sqrt":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Sqrt) })
	case "sin":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Sin) })
	case "cos":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Cos) })
	case "tan":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Tan) })
	case "asin":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Asin) })
	case "acos":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Acos) })
	case "atan":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return floatUnOp(a, math.Atan) })
	default:
		return newErr(ErrInvalidReference, "float executor has no implementation for %q", handle)
	}
}

func floatBinOp(args []Value, op func(x, y float64) float64) (Value, error) {
	x, err := args[0].Expect(Float, false)
	if err != nil {
		return Value{}, err
	}
	y, err := args[1].Expect(Float, false)
	if err != nil {
		return Value{}, err
	}
	return FromFloat(op(x.Float(), y.Float())), nil
}

func floatUnOp(args []Value, op func(x float64) float64) (Value, error) {
	x, err := args[0].Expect(Float, false)
	if err != nil {
		return Value{}, err
	}
	return FromFloat(op(x.Float())), nil
}
