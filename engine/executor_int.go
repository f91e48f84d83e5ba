package engine

// IntExecutor implements instruction semantics for Integer-typed commands.
type IntExecutor struct{}

func NewIntExecutor() *IntExecutor { return &IntExecutor{} }

func (e *IntExecutor) SupportedType() ValueType { return Integer }
func (e *IntExecutor) ID() ExecutorID           { return ExecutorInt }

func (e *IntExecutor) ResetImplementations(cs *CommandSet) error {
	for _, mnemonic := range []string{
		"push", "pop", "top", "cmp", "swap", "dup", "anal",
		"ld", "st", "ldint", "stint", "settype",
		"add", "sub", "mul", "div", "mod", "inc", "dec", "neg", "abs",
	} {
		if err := cs.AddCommandImpl(mnemonic, ExecutorInt, mnemonic); err != nil {
			return err
		}
	}
	return nil
}

func (e *IntExecutor) Execute(l *Logic, handle string, cmd *Command) error {
	switch handle {
	case "push":
		v, err := cmd.Immediate.Expect(Integer, false)
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
		return arithTemplate(l, 2, func(a []Value) (Value, error) { return intBinOp(a, func(x, y int64) int64 { return x + y }) })
	case "sub":
		// top is the subtrahend: a[0] popped first (top) is the subtrahend.
		return arithTemplate(l, 2, func(a []Value) (Value, error) { return intBinOp(a, func(sub, minuend int64) int64 { return minuend - sub }) })
	case "mul":
		return arithTemplate(l, 2, func(a []Value) (Value, error) { return intBinOp(a, func(x, y int64) int64 { return x * y }) })
	case "div":
		return arithTemplate(l, 2, func(a []Value) (Value, error) {
			divisor, minuend := a[0], a[1]
			dv, err := divisor.Expect(Integer, false)
			if err != nil {
				return Value{}, err
			}
			mv, err := minuend.Expect(Integer, false)
			if err != nil {
				return Value{}, err
			}
			if dv.Int() == 0 {
				return Value{}, newErr(ErrOutOfBounds, "integer division by zero")
			}
			return FromInt(mv.Int() / dv.Int()), nil
		})
	case "mod":
		return arithTemplate(l, 2, func(a []Value) (Value, error) {
			divisor, minuend := a[0], a[1]
			dv, err := divisor.Expect(Integer, false)
			if err != nil {
				return Value{}, err
			}
			mv, err := minuend.Expect(Integer, false)
			if err != nil {
				return Value{}, err
			}
			if dv.Int() == 0 {
				return Value{}, newErr(ErrOutOfBounds, "integer modulo by zero")
			}
			return FromInt(mv.Int() % dv.Int()), nil
		})
	case "inc":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return intUnOp(a, func(x int64) int64 { return x + 1 }) })
	case "dec":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return intUnOp(a, func(x int64) int64 { return x - 1 }) })
	case "neg":
		return arithTemplate(l, 1, func(a []Value) (Value, error) { return intUnOp(a, func(x int64) int64 { return -x }) })
	case "abs":
		return arithTemplate(l, 1, func(a []Value) (Value, error) {
			return intUnOp(a, func(x int64) int64 {
				if x < 0 {
					return -x
				}
				return x
			})
		})
	default:
		return newErr(ErrInvalidReference, "int executor has no implementation for %q", handle)
	}
}

func intBinOp(args []Value, op func(x, y int64) int64) (Value, error) {
	x, err := args[0].Expect(Integer, false)
	if err != nil {
		return Value{}, err
	}
	y, err := args[1].Expect(Integer, false)
	if err != nil {
		return Value{}, err
	}
	return FromInt(op(x.Int(), y.Int())), nil
}

func intUnOp(args []Value, op func(x int64) int64) (Value, error) {
	x, err := args[0].Expect(Integer, false)
	if err != nil {
		return Value{}, err
	}
	return FromInt(op(x.Int())), nil
}

// execCompare implements cmp: pops one operand, peeks the other, computes
// peek-minus-pop, discards the difference after flag analysis. Always
// analyzes regardless of F_NFC.
func execCompare(l *Logic) error {
	popped, err := l.mmu.StackPop()
	if err != nil {
		return err
	}
	peeked, err := l.mmu.StackTop(0)
	if err != nil {
		return err
	}
	diff, err := computeDiff(*peeked, popped)
	if err != nil {
		return err
	}
	l.Analyze(diff)
	return nil
}

func computeDiff(peeked, popped Value) (Value, error) {
	if peeked.Type() == Float || popped.Type() == Float {
		p, err := peeked.Expect(Float, false)
		if err != nil {
			return Value{}, err
		}
		q, err := popped.Expect(Float, false)
		if err != nil {
			return Value{}, err
		}
		return FromFloat(p.Float() - q.Float()), nil
	}
	p, err := peeked.Expect(Integer, false)
	if err != nil {
		return Value{}, err
	}
	q, err := popped.Expect(Integer, false)
	if err != nil {
		return Value{}, err
	}
	return FromInt(p.Int() - q.Int()), nil
}

func execLoad(l *Logic, cmd *Command, forceInt bool) error {
	v, err := l.Read(cmd.Ref)
	if err != nil {
		return err
	}
	if forceInt {
		if _, err := v.Expect(Integer, false); err != nil {
			return err
		}
	}
	l.mmu.StackPush(v)
	return nil
}

func execStore(l *Logic, cmd *Command, forceInt bool) error {
	v, err := l.mmu.StackPop()
	if err != nil {
		return err
	}
	if forceInt {
		if _, err := v.Expect(Integer, false); err != nil {
			return err
		}
	}
	return l.Write(cmd.Ref, v)
}
