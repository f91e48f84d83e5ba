package engine

// ArgKind tags what a Command's argument carries.
type ArgKind uint8

const (
	ArgNone ArgKind = iota
	ArgImmediate
	ArgReference
)

// dispatchCache holds the (executor, handle) pair Logic caches on a Command
// after its first dispatch. It is never cleared in place: Logic compares
// its stored generation against CommandSet.Generation() on every dispatch
// and simply re-resolves (overwriting the stale entry) on a mismatch, so a
// registry change invalidates every outstanding cache lazily rather than
// requiring a sweep over live Command values.
type dispatchCache struct {
	valid      bool
	generation uint64
	executor   Executor
	handle     any
}

// Command is a single decoded instruction: an id looked up in a CommandSet,
// its operand type, and at most one argument.
type Command struct {
	ID   uint16
	Type ValueType
	Kind ArgKind

	Immediate Value
	Ref       Reference

	cache dispatchCache
}

// NewCommand builds an argument-less Command.
func NewCommand(id uint16, typ ValueType) Command {
	return Command{ID: id, Type: typ, Kind: ArgNone}
}

func NewCommandImmediate(id uint16, typ ValueType, v Value) Command {
	return Command{ID: id, Type: typ, Kind: ArgImmediate, Immediate: v}
}

func NewCommandReference(id uint16, typ ValueType, ref Reference) Command {
	return Command{ID: id, Type: typ, Kind: ArgReference, Ref: ref}
}
