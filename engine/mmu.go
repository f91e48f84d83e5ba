package engine

import "github.com/sirupsen/logrus"

// RegisterCount is the number of general registers R_A..R_F exposed by a
// ContextBuffer's register file.
const RegisterCount = 6

// ContextBuffer holds all per-module state: code, data, a byte pool, a
// symbol table, and a register file. Buffers are created by
// AllocContextBuffer and addressed by a monotonically assigned index.
type ContextBuffer struct {
	Commands []Command
	Data     []Value
	BytePool []byte
	Symbols  map[uint64]*Symbol
	Registers [RegisterCount]Value

	// privileged gates the BytePool addressing window: privileged contexts
	// see the whole pool, unprivileged ones only [poolMin, poolMax).
	privileged  bool
	poolMin     int
	poolMax     int
}

func newContextBuffer() *ContextBuffer {
	cb := &ContextBuffer{
		Symbols:    make(map[uint64]*Symbol),
		privileged: true,
	}
	for i := range cb.Registers {
		cb.Registers[i] = NewValue(Uninitialised)
	}
	return cb
}

func (cb *ContextBuffer) poolWindow() (int, int) {
	if cb.privileged {
		return 0, len(cb.BytePool)
	}
	return cb.poolMin, cb.poolMax
}

// MMU owns all per-context state: the set of ContextBuffers, the current
// Context, the call stack, and the two typed operand stacks plus the
// always-integer frame stack.
type MMU struct {
	log *logrus.Entry

	buffers      map[int]*ContextBuffer
	nextBufferID int

	current  Context
	callStack []Context

	selected   ValueType
	intStack   []Value
	floatStack []Value
	frameStack []Value
}

func NewMMU(log *logrus.Entry) *MMU {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &MMU{
		log:     log,
		buffers: make(map[int]*ContextBuffer),
		current: NewContext(),
		selected: Integer,
	}
	return m
}

// --- Context access ---

func (m *MMU) Context() Context       { return m.current }
func (m *MMU) ContextMut() *Context   { return &m.current }

// --- Buffer lifecycle ---

// AllocContextBuffer creates a new, empty ContextBuffer and returns its
// monotonically assigned index.
func (m *MMU) AllocContextBuffer() int {
	id := m.nextBufferID
	m.nextBufferID++
	m.buffers[id] = newContextBuffer()
	return id
}

func (m *MMU) Buffer(id int) (*ContextBuffer, error) {
	cb, ok := m.buffers[id]
	if !ok {
		return nil, newErr(ErrOutOfBounds, "no context buffer %d", id)
	}
	return cb, nil
}

func (m *MMU) CurrentBuffer() (*ContextBuffer, error) {
	if m.current.BufferID == NoBuffer {
		return nil, newErr(ErrOutOfBounds, "no buffer bound to current context")
	}
	return m.Buffer(m.current.BufferID)
}

// ResetBuffers replaces the named buffer's contents with an empty buffer,
// keeping its index.
func (m *MMU) ResetBuffers(id int) error {
	if _, ok := m.buffers[id]; !ok {
		return newErr(ErrOutOfBounds, "no context buffer %d", id)
	}
	m.buffers[id] = newContextBuffer()
	return nil
}

// ResetEverything destroys all buffers and stacks, restoring the MMU to its
// initial state. The next buffer index resumes from 0.
func (m *MMU) ResetEverything() {
	m.buffers = make(map[int]*ContextBuffer)
	m.nextBufferID = 0
	m.current = NewContext()
	m.callStack = nil
	m.intStack = nil
	m.floatStack = nil
	m.frameStack = nil
	m.selected = Integer
}

// --- Context control ---

// SaveContext pushes the current Context onto the call stack and captures a
// fresh frame pointer from the current frame-stack length (invariant 5):
// locals the callee pushes onto the frame stack are then addressed relative
// to that snapshot via AStackFrame.
func (m *MMU) SaveContext() {
	m.callStack = append(m.callStack, m.current)
	m.current.Frame = len(m.frameStack)
	m.current.Depth++
}

// ClearContext zeros ip/flags/frame/depth but keeps the bound buffer id.
func (m *MMU) ClearContext() {
	buf := m.current.BufferID
	m.current = NewContext()
	m.current.BufferID = buf
}

// RestoreContext pops the most recently saved Context and makes it current.
func (m *MMU) RestoreContext() error {
	n := len(m.callStack)
	if n == 0 {
		return newErr(ErrOutOfBounds, "call stack underflow on restore_context")
	}
	m.current = m.callStack[n-1]
	m.callStack = m.callStack[:n-1]
	return nil
}

// NextContextBuffer saves the current context, clears it, and allocates and
// binds the next buffer slot.
func (m *MMU) NextContextBuffer() int {
	m.SaveContext()
	m.ClearContext()
	id := m.AllocContextBuffer()
	m.current.BufferID = id
	return id
}

// CallStackDepth reports the number of saved contexts (used by the
// interpreter driver to detect "back at the initial buffer").
func (m *MMU) CallStackDepth() int { return len(m.callStack) }

// --- Stack selection & operand stack access ---

func (m *MMU) SelectStack(t ValueType) {
	if t == Integer || t == Float {
		m.selected = t
	}
}

func (m *MMU) selectedStack() *[]Value {
	if m.selected == Float {
		return &m.floatStack
	}
	return &m.intStack
}

func (m *MMU) StackPush(v Value) {
	s := m.selectedStack()
	*s = append(*s, v)
}

func (m *MMU) StackPop() (Value, error) {
	s := m.selectedStack()
	n := len(*s)
	if n == 0 {
		return Value{}, newErr(ErrOutOfBounds, "pop from empty %s stack", m.selected)
	}
	v := (*s)[n-1]
	*s = (*s)[:n-1]
	return v, nil
}

// StackTop returns a pointer into the selected stack at offset from the top
// (0 = top element) so callers can mutate it in place (e.g. cmp/analyze).
func (m *MMU) StackTop(offset int) (*Value, error) {
	s := m.selectedStack()
	idx := len(*s) - 1 - offset
	if idx < 0 || idx >= len(*s) {
		return nil, newErr(ErrOutOfBounds, "%s stack offset %d out of range (len %d)", m.selected, offset, len(*s))
	}
	return &(*s)[idx], nil
}

// IntStackDepth reports the number of values currently on the integer
// stack, independent of which stack is selected. The native run driver
// requires this to be zero before attempting native compilation: a
// non-empty integer stack means a caller is mid-expression and the
// compiled image's depth-0 assumption (see internal/native) would be
// wrong.
func (m *MMU) IntStackDepth() int { return len(m.intStack) }

// AStackFrame accesses the frame stack relative to the current context's
// frame pointer: positive k addresses locals, negative k addresses incoming
// parameters (FrameBack).
func (m *MMU) AStackFrame(k int) (*Value, error) {
	idx := m.current.Frame + k
	if idx < 0 || idx >= len(m.frameStack) {
		return nil, newErr(ErrOutOfBounds, "frame offset %d out of range (frame=%d len=%d)", k, m.current.Frame, len(m.frameStack))
	}
	return &m.frameStack[idx], nil
}

// PushFrameLocal appends a new local slot to the frame stack (used by call
// sequences that spill parameters/locals before SaveContext snapshots the
// frame pointer for the callee).
func (m *MMU) PushFrameLocal(v Value) { m.frameStack = append(m.frameStack, v) }

func (m *MMU) PopFrameLocal() (Value, error) {
	n := len(m.frameStack)
	if n == 0 {
		return Value{}, newErr(ErrOutOfBounds, "frame stack underflow")
	}
	v := m.frameStack[n-1]
	m.frameStack = m.frameStack[:n-1]
	return v, nil
}

// --- Privilege / byte pool window ---

func (m *MMU) SetPrivileged(buf *ContextBuffer, privileged bool) {
	buf.privileged = privileged
}

func (m *MMU) SetHeapBounds(buf *ContextBuffer, min, max int) {
	buf.poolMin, buf.poolMax = min, max
}

// --- Typed memory accessors ---

func (m *MMU) ACommand(ip int64) (*Command, error) {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	if ip < 0 || int(ip) >= len(buf.Commands) {
		return nil, newErr(ErrOutOfBounds, "ip %d out of range (len %d)", ip, len(buf.Commands))
	}
	return &buf.Commands[ip], nil
}

func (m *MMU) AData(addr int64) (*Value, error) {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	if addr < 0 || int(addr) >= len(buf.Data) {
		return nil, newErr(ErrOutOfBounds, "data address %d out of range (len %d)", addr, len(buf.Data))
	}
	return &buf.Data[addr], nil
}

func (m *MMU) ARegister(r int64) (*Value, error) {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	if r < 0 || int(r) >= RegisterCount {
		return nil, newErr(ErrOutOfBounds, "register %d out of range (max %d)", r, RegisterCount)
	}
	return &buf.Registers[r], nil
}

func (m *MMU) ASymbol(hash uint64) (*Symbol, error) {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	sym, ok := buf.Symbols[hash]
	if !ok {
		return nil, newErr(ErrSymbolUnresolved, "symbol hash %#x not found", hash)
	}
	return sym, nil
}

func (m *MMU) ABytePool(offset int64) (*byte, error) {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	min, max := buf.poolWindow()
	if int(offset) < min || int(offset) >= max {
		return nil, newErr(ErrOutOfBounds, "byte pool offset %d out of window [%d,%d)", offset, min, max)
	}
	return &buf.BytePool[offset], nil
}

// --- Reference bounds verification ---

func (m *MMU) VerifyReference(ref DirectReference) error {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return err
	}
	switch ref.Section {
	case SecCode:
		if ref.Offset < 0 || int(ref.Offset) >= len(buf.Commands) {
			return newErr(ErrOutOfBounds, "code offset %d out of range", ref.Offset)
		}
	case SecData:
		if ref.Offset < 0 || int(ref.Offset) >= len(buf.Data) {
			return newErr(ErrOutOfBounds, "data offset %d out of range", ref.Offset)
		}
	case SecRegister:
		if ref.Offset < 0 || int(ref.Offset) >= RegisterCount {
			return newErr(ErrOutOfBounds, "register offset %d out of range", ref.Offset)
		}
	case SecFrame, SecFrameBack:
		idx := m.current.Frame + int(ref.Offset)
		if ref.Section == SecFrameBack {
			idx = m.current.Frame - int(ref.Offset)
		}
		if idx < 0 || idx >= len(m.frameStack) {
			return newErr(ErrOutOfBounds, "frame offset %d out of range", ref.Offset)
		}
	case SecBytePool:
		min, max := buf.poolWindow()
		if int(ref.Offset) < min || int(ref.Offset) >= max {
			return newErr(ErrOutOfBounds, "bytepool offset %d out of window [%d,%d)", ref.Offset, min, max)
		}
	case SecNone:
		return newErr(ErrInvalidReference, "cannot verify a reference with no section")
	}
	return nil
}

// --- Bulk section I/O ---

// ReadSection appends count entries of raw image data to the named section
// of the current buffer.
func (m *MMU) ReadSection(kind Section, image any, count int) error {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return err
	}
	switch kind {
	case SecCode:
		cmds, ok := image.([]Command)
		if !ok {
			return newErr(ErrFormatError, "read_section(code): expected []Command")
		}
		buf.Commands = append(buf.Commands, cmds[:count]...)
	case SecData:
		vals, ok := image.([]Value)
		if !ok {
			return newErr(ErrFormatError, "read_section(data): expected []Value")
		}
		buf.Data = append(buf.Data, vals[:count]...)
	case SecBytePool:
		bytes, ok := image.([]byte)
		if !ok {
			return newErr(ErrFormatError, "read_section(bytepool): expected []byte")
		}
		buf.BytePool = append(buf.BytePool, bytes[:count]...)
		buf.poolMax = len(buf.BytePool)
	default:
		return newErr(ErrFormatError, "read_section: unsupported section %s", kind)
	}
	return nil
}

// WriteSection returns a copy of a section's current contents ([]Command,
// []Value or []byte), supporting a round-trip dump/restore of buffer state.
func (m *MMU) WriteSection(kind Section) (any, error) {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	switch kind {
	case SecCode:
		out := make([]Command, len(buf.Commands))
		copy(out, buf.Commands)
		return out, nil
	case SecData:
		out := make([]Value, len(buf.Data))
		copy(out, buf.Data)
		return out, nil
	case SecBytePool:
		out := make([]byte, len(buf.BytePool))
		copy(out, buf.BytePool)
		return out, nil
	default:
		return nil, newErr(ErrFormatError, "write_section: unsupported section %s", kind)
	}
}

// installSymbolImage replaces buf's symbol table wholesale. Shared by
// ReadSymbolImage and ReadBytecode's symbol-section load — the two places
// a complete symbol table ever arrives from outside the incremental
// Linker.AddSymbols/Finalize path.
func installSymbolImage(buf *ContextBuffer, symbols map[uint64]*Symbol) {
	buf.Symbols = symbols
}

// ReadSymbolImage installs a final, fully-resolved symbol table into the
// current buffer, replacing whatever was there.
func (m *MMU) ReadSymbolImage(symbols map[uint64]*Symbol) error {
	buf, err := m.CurrentBuffer()
	if err != nil {
		return err
	}
	installSymbolImage(buf, symbols)
	return nil
}

// PasteFromContext overlays another buffer's sections onto the current one,
// used to implement a merge of two previously loaded modules.
func (m *MMU) PasteFromContext(srcID int) error {
	dst, err := m.CurrentBuffer()
	if err != nil {
		return err
	}
	src, err := m.Buffer(srcID)
	if err != nil {
		return err
	}
	codeBase := len(dst.Commands)
	dataBase := len(dst.Data)
	poolBase := len(dst.BytePool)

	dst.Commands = append(dst.Commands, src.Commands...)
	dst.Data = append(dst.Data, src.Data...)
	dst.BytePool = append(dst.BytePool, src.BytePool...)
	dst.poolMax = len(dst.BytePool)

	for hash, sym := range src.Symbols {
		rebased := *sym
		if sym.Resolved {
			rebased.Ref = rebaseReference(sym.Ref, codeBase, dataBase, poolBase)
		}
		dst.Symbols[hash] = &rebased
	}
	return nil
}

func rebaseReference(ref Reference, codeBase, dataBase, poolBase int) Reference {
	out := ref
	out.Components = make([]Component, len(ref.Components))
	for i, c := range ref.Components {
		if !c.HasSymbol {
			switch ref.GlobalSection {
			case SecCode:
				c.Offset += int64(codeBase)
			case SecData:
				c.Offset += int64(dataBase)
			case SecBytePool:
				c.Offset += int64(poolBase)
			}
		}
		out.Components[i] = c
	}
	return out
}
