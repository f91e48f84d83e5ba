package engine

import (
	"reflect"

	"github.com/sirupsen/logrus"
)

// Linker resolves two-component References against MMU state. It stages
// symbol adds in a temporary map scoped between InitLinkSession and
// Finalize, turning a single-pass label table into a staged,
// redefinition-checked table that tolerates forward references.
type Linker struct {
	log *logrus.Entry

	staging map[uint64]*Symbol
	// codeOffset/dataOffset track the current section write offsets used for
	// auto-placement of labels that arrive with NeedsLinkerPlacement set.
	codeOffset int
	dataOffset int

	// uat reserves the "unit-at-a-time" link mode: successive AddSymbols
	// calls overlay earlier references with matching definitions, and
	// Finalize(uat=true) does not clear the staging map between commits.
	uat bool
}

func NewLinker(log *logrus.Entry) *Linker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Linker{log: log}
}

// InitLinkSession clears the staging map, beginning a new link session.
func (l *Linker) InitLinkSession() {
	l.staging = make(map[uint64]*Symbol)
	l.codeOffset, l.dataOffset = 0, 0
}

// SetSectionOffsets tells the linker the current write offsets for
// auto-placement: the position a label should receive if it arrives with
// NeedsLinkerPlacement set.
func (l *Linker) SetSectionOffsets(codeOffset, dataOffset int) {
	l.codeOffset, l.dataOffset = codeOffset, dataOffset
}

// AddSymbols merges a batch of symbols into the staging map, auto-placing
// labels (NeedsLinkerPlacement + Code/Data section) at the current section
// write offset. A non-label symbol with the placement flag set is a hard
// error.
func (l *Linker) AddSymbols(symbols []Symbol) error {
	if l.staging == nil {
		l.InitLinkSession()
	}
	for _, sym := range symbols {
		sym := sym
		if sym.Resolved && sym.Ref.NeedsLinkerPlacement {
			switch sym.Ref.GlobalSection {
			case SecCode:
				sym.Ref = NewDirectOffsetRef(SecCode, int64(l.codeOffset))
			case SecData:
				sym.Ref = NewDirectOffsetRef(SecData, int64(l.dataOffset))
			default:
				return newErr(ErrInvalidReference, "symbol %q requests auto-placement in non-label section %s", sym.Name, sym.Ref.GlobalSection)
			}
		}

		if existing, ok := l.staging[sym.Hash]; ok {
			// Prefer a definition over a bare reference already staged.
			if sym.Resolved {
				*existing = sym
			} else if !existing.Resolved {
				*existing = sym
			}
			continue
		}
		s := sym
		l.staging[sym.Hash] = &s
	}
	return nil
}

// Finalize collapses the staging map into the MMU's symbol image. uat
// requests the unit-at-a-time mode (see DESIGN.md Open Question); when
// false, the staging map is cleared on return.
func (l *Linker) Finalize(mmu *MMU, uat bool) error {
	l.uat = uat
	buf, err := mmu.CurrentBuffer()
	if err != nil {
		return err
	}
	if buf.Symbols == nil {
		buf.Symbols = make(map[uint64]*Symbol)
	}
	for hash, incoming := range l.staging {
		existing, ok := buf.Symbols[hash]
		if ok && existing.Resolved && incoming.Resolved {
			if uat && reflect.DeepEqual(*existing, *incoming) {
				continue // committed unchanged by an earlier unit-at-a-time Finalize
			}
			return newErr(ErrSymbolRedefinition, "symbol %q redefined", incoming.Name)
		}
		if ok && existing.Resolved && !incoming.Resolved {
			continue // keep the existing definition, drop the stale use site
		}
		s := *incoming
		buf.Symbols[hash] = &s
	}
	if !uat {
		l.staging = make(map[uint64]*Symbol)
	}
	return nil
}

// Resolve walks up to two components of ref, sums their addresses, and
// returns the fully resolved DirectReference.
func (l *Linker) Resolve(mmu *MMU, ref Reference) (DirectReference, error) {
	if len(ref.Components) == 0 || len(ref.Components) > 2 {
		return DirectReference{}, newErr(ErrInvalidReference, "reference must have 1 or 2 components, got %d", len(ref.Components))
	}

	var sum int64
	var contributedSection Section
	haveSection := false

	for _, c := range ref.Components {
		addr, sec, err := l.resolveComponent(mmu, c, 0)
		if err != nil {
			return DirectReference{}, err
		}
		if sec != SecNone {
			if haveSection {
				return DirectReference{}, newErr(ErrInvalidReference, "reference components both contribute a section")
			}
			contributedSection = sec
			haveSection = true
		}
		sum += addr
	}

	final := DirectReference{Offset: sum}
	if ref.GlobalSection != SecNone {
		final.Section = ref.GlobalSection
	} else if haveSection {
		final.Section = contributedSection
	} else {
		return DirectReference{}, newErr(ErrInvalidReference, "reference resolves with no section")
	}
	return final, nil
}

const maxIndirectDepth = 8

// resolveComponent computes one component's base address and, if it
// carries a section of its own (a direct symbol reference or an indirect
// dereference), returns that section too.
func (l *Linker) resolveComponent(mmu *MMU, c Component, depth int) (int64, Section, error) {
	if depth > maxIndirectDepth {
		return 0, SecNone, newErr(ErrInvalidReference, "reference indirection too deep")
	}

	var base int64
	var baseSection Section

	if c.HasSymbol {
		sym, err := mmu.ASymbol(c.SymbolHash)
		if err != nil {
			return 0, SecNone, err
		}
		if !sym.Resolved {
			return 0, SecNone, newErr(ErrSymbolUnresolved, "symbol %q is never defined", sym.Name)
		}
		direct, err := l.Resolve(mmu, sym.Ref)
		if err != nil {
			return 0, SecNone, err
		}
		base = direct.Offset
		baseSection = direct.Section
	} else {
		base = c.Offset
		baseSection = c.Section
	}

	if !c.Indirect {
		return base, baseSection, nil
	}

	// Dereference: read the base as an integer from the component's declared
	// section (or the symbol's own section if the component didn't specify
	// one), then use that integer as the address. The section is cleared —
	// an indirect component's final address carries no section of its own.
	derefSection := c.Section
	if derefSection == SecNone {
		derefSection = baseSection
	}
	v, err := readSectionValue(mmu, derefSection, base)
	if err != nil {
		return 0, SecNone, err
	}
	iv, err := v.Expect(Integer, false)
	if err != nil {
		return 0, SecNone, err
	}
	return iv.Int(), SecNone, nil
}

func readSectionValue(mmu *MMU, section Section, offset int64) (Value, error) {
	switch section {
	case SecData:
		p, err := mmu.AData(offset)
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecRegister:
		p, err := mmu.ARegister(offset)
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecFrame:
		p, err := mmu.AStackFrame(int(offset))
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecFrameBack:
		p, err := mmu.AStackFrame(-int(offset))
		if err != nil {
			return Value{}, err
		}
		return *p, nil
	case SecBytePool:
		p, err := mmu.ABytePool(offset)
		if err != nil {
			return Value{}, err
		}
		return FromInt(int64(*p)), nil
	default:
		return Value{}, newErr(ErrInvalidReference, "cannot dereference through section %s", section)
	}
}
