package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kt-fork/vvm/engine"
)

func newAsmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asm <source.vasm> <out.bcde>",
		Short: "assemble a textual source file into a binary bytecode image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			mmu := engine.NewMMU(nil)
			id := mmu.AllocContextBuffer()
			mmu.ContextMut().BufferID = id

			cs, err := engine.NewStandardCommandSet()
			if err != nil {
				return err
			}
			linker := engine.NewLinker(nil)

			if err := engine.Assemble(cs, linker, mmu, string(src), false); err != nil {
				return fmt.Errorf("assemble: %w", err)
			}

			buf, err := mmu.CurrentBuffer()
			if err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer out.Close()

			if err := engine.WriteBytecode(out, buf); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			return nil
		},
	}
	return cmd
}
