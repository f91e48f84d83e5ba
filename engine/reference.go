package engine

// Section identifies one of the MMU's addressable global sections.
type Section uint8

const (
	SecNone Section = iota
	SecCode
	SecData
	SecRegister
	SecFrame
	SecFrameBack
	SecBytePool
)

func (s Section) String() string {
	switch s {
	case SecNone:
		return "none"
	case SecCode:
		return "code"
	case SecData:
		return "data"
	case SecRegister:
		return "register"
	case SecFrame:
		return "frame"
	case SecFrameBack:
		return "frame_back"
	case SecBytePool:
		return "bytepool"
	default:
		return "?unknown-section?"
	}
}

// DirectReference is a fully resolved (section, offset) pair — the only form
// the MMU accepts for a load/store/jump.
type DirectReference struct {
	Section Section
	Offset  int64
}

// Component is one half of a (possibly two-part) Reference. It is either
// direct (a symbol hash or a literal offset) or indirect, in which case its
// value must first be dereferenced through Section before being used as an
// address.
type Component struct {
	// SymbolHash is non-zero when this component names a symbol rather than
	// carrying a literal Offset. Exactly one of SymbolHash/Offset applies,
	// selected by HasSymbol.
	HasSymbol  bool
	SymbolHash uint64
	Offset     int64

	Indirect bool
	// Section is where an indirect component is dereferenced through, and the
	// section a direct literal-offset component contributes. A direct
	// component naming a symbol ignores Section and contributes the symbol's
	// own section; only Reference.GlobalSection overrides that.
	Section Section
}

// Reference is a logical, possibly symbolic, possibly indirect, possibly
// two-component address.
type Reference struct {
	GlobalSection        Section
	NeedsLinkerPlacement bool
	Components           []Component // length 1 or 2
}

// NewDirectOffsetRef builds the common case: a single direct literal offset
// in the given section, e.g. Data:4 or Register:2.
func NewDirectOffsetRef(section Section, offset int64) Reference {
	return Reference{
		GlobalSection: section,
		Components:    []Component{{Offset: offset}},
	}
}

// NewSymbolRef builds a reference to a named symbol (use site or definition
// site depending on whether the linker has seen a definition for hash yet).
func NewSymbolRef(hash uint64) Reference {
	return Reference{Components: []Component{{HasSymbol: true, SymbolHash: hash}}}
}
