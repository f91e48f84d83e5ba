package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kt-fork/vvm/engine"
	"github.com/kt-fork/vvm/internal/native"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <image.bcde>",
		Short: "force native compilation of a bytecode image and report its checksum and translated-instruction count",
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

			backend := native.NewBackendWithCapacity(cfg.Native.MaxCachedImages)
			img, translated, err := backend.CompileOrReuse(checksum, buf.Commands)
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}
			defer img.Release()

			fmt.Printf("checksum=%#016x translated=%d/%d\n", checksum, translated, len(buf.Commands))
			return nil
		},
	}
	return cmd
}
