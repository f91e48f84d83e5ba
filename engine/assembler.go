package engine

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Assemble is a minimal textual front end for the command set: one
// instruction per line, optional "label:" lines, "//" line comments, and at
// most one argument per instruction. It exists as a convenience for building
// test fixtures and the `asm` CLI command rather than a full
// macro assembler: strip comments, split into mnemonic/argument, track
// label offsets across a single pass over the source, then hand the result
// to the Command/Reference model.
//
// Argument forms:
//
//	push 42            integer immediate
//	push 3.5           float immediate (selects the Float executor)
//	add.f              ".f" suffix selects the Float executor for a
//	                    mnemonic shared between Int and Float (add, sub,
//	                    cmp, ld, st, ...)
//	jmp loop           bare identifier: a symbolic code reference, resolved
//	                    against a "loop:" label defined anywhere in the unit
//	ld data:3          explicit "section:offset" reference
//	sys 1              service instructions take a plain integer immediate
//
// Assemble appends the assembled instructions to the current buffer's code
// section and finalizes them against mmu's symbol table (uat selects the
// linking mode, see DESIGN.md).
func Assemble(cs *CommandSet, linker *Linker, mmu *MMU, source string, uat bool) error {
	buf, err := mmu.CurrentBuffer()
	if err != nil {
		return err
	}
	base := len(buf.Commands)

	type pendingLine struct {
		mnemonic string
		arg      string
	}

	var lines []pendingLine
	var labels []Symbol

	scanner := bufio.NewScanner(strings.NewReader(source))
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			name := strings.TrimSuffix(line, ":")
			if name == "" || strings.ContainsAny(name, " \t") {
				return newErr(ErrFormatError, "invalid label: %q", line)
			}
			labels = append(labels, NewSymbolDef(name, NewDirectOffsetRef(SecCode, int64(base+len(lines)))))
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		pl := pendingLine{mnemonic: strings.TrimSpace(fields[0])}
		if len(fields) == 2 {
			pl.arg = strings.TrimSpace(fields[1])
		}
		lines = append(lines, pl)
	}
	if err := scanner.Err(); err != nil {
		return newErr(ErrIOError, "assemble: %v", err)
	}

	cmds := make([]Command, 0, len(lines))
	for _, pl := range lines {
		cmd, err := assembleLine(cs, pl.mnemonic, pl.arg)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}

	if err := mmu.ReadSection(SecCode, cmds, len(cmds)); err != nil {
		return err
	}

	linker.SetSectionOffsets(len(buf.Commands), len(buf.Data))
	if err := linker.AddSymbols(labels); err != nil {
		return err
	}
	return linker.Finalize(mmu, uat)
}

func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func assembleLine(cs *CommandSet, mnemonic, arg string) (Command, error) {
	typ := Integer
	if strings.HasSuffix(mnemonic, ".f") {
		typ = Float
		mnemonic = strings.TrimSuffix(mnemonic, ".f")
	}

	traits, err := cs.TraitsByMnemonic(mnemonic)
	if err != nil {
		return Command{}, err
	}
	id, _ := cs.IDOf(mnemonic)
	if traits.IsService {
		typ = NoneType
	}

	switch traits.ArgType {
	case ArgNone:
		return NewCommand(id, typ), nil
	case ArgImmediate:
		if typ == Integer {
			if _, ierr := ParseInt(arg); ierr != nil {
				if _, ferr := ParseFloat(arg); ferr == nil {
					typ = Float
				}
			}
		}
		v, err := parseImmediate(arg, typ)
		if err != nil {
			return Command{}, err
		}
		return NewCommandImmediate(id, typ, v), nil
	case ArgReference:
		ref, err := parseReference(arg)
		if err != nil {
			return Command{}, err
		}
		return NewCommandReference(id, typ, ref), nil
	default:
		return Command{}, newErr(ErrFormatError, "unknown argument kind for %q", mnemonic)
	}
}

// parseImmediate parses a service instruction's plain integer immediate
// (typ == NoneType, e.g. "sys 1") or a stack instruction's typed immediate.
func parseImmediate(arg string, typ ValueType) (Value, error) {
	if arg == "" {
		return Value{}, newErr(ErrFormatError, "missing immediate argument")
	}
	if typ == Float {
		return ParseFloat(arg)
	}
	return ParseInt(arg)
}

var sectionNames = map[string]Section{
	"code":      SecCode,
	"data":      SecData,
	"register":  SecRegister,
	"frame":     SecFrame,
	"frameback": SecFrameBack,
	"bytepool":  SecBytePool,
}

// parseReference parses either "section:offset" (a direct literal reference)
// or a bare identifier (a symbolic reference resolved against a label
// defined somewhere in the assembled unit).
func parseReference(arg string) (Reference, error) {
	if arg == "" {
		return Reference{}, newErr(ErrFormatError, "missing reference argument")
	}
	if sec, offset, ok := strings.Cut(arg, ":"); ok {
		section, known := sectionNames[sec]
		if !known {
			return Reference{}, newErr(ErrFormatError, "unknown section %q", sec)
		}
		n, err := strconv.ParseInt(offset, 0, 64)
		if err != nil {
			return Reference{}, newErr(ErrFormatError, "bad offset in reference %q: %v", arg, err)
		}
		return NewDirectOffsetRef(section, n), nil
	}
	return NewSymbolRef(HashName(arg)), nil
}
