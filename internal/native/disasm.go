package native

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble decodes img's machine code for diagnostics, one instruction
// per line as "<offset>: <mnemonic>".
func Disassemble(img *Image) (string, error) {
	var out strings.Builder
	code := img.Code()
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return out.String(), fmt.Errorf("native: disassemble at offset %d: %w", off, err)
		}
		fmt.Fprintf(&out, "%04x: %s\n", off, x86asm.GNUSyntax(inst, uint64(off), nil))
		if inst.Len == 0 {
			break
		}
		off += inst.Len
	}
	return out.String(), nil
}
