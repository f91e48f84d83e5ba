package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kt-fork/vvm/engine"
	"github.com/kt-fork/vvm/internal/native"
)

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <image.bcde>",
		Short: "compile an image's code section to native x86-64 and print the disassembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()

			mmu := engine.NewMMU(nil)
			id := mmu.AllocContextBuffer()
			mmu.ContextMut().BufferID = id

			buf, err := mmu.CurrentBuffer()
			if err != nil {
				return err
			}
			if err := engine.ReadBytecode(f, buf); err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			cs, err := engine.NewStandardCommandSet()
			if err != nil {
				return err
			}
			linker := engine.NewLinker(nil)
			logic := engine.NewLogic(mmu, linker, cs, engine.NewIntExecutor(), engine.NewFloatExecutor(), engine.NewServiceExecutor(), nil)
			checksum, err := logic.ChecksumState()
			if err != nil {
				return fmt.Errorf("checksum state: %w", err)
			}

			backend := native.NewBackend()
			img, _, err := backend.CompileOrReuse(checksum, buf.Commands)
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}
			defer img.Release()

			text, err := native.Disassemble(img)
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}
	return cmd
}
