package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kt-fork/vvm/engine"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <out.bcde> <in.bcde>...",
		Short: "merge one or more bytecode images into a single output image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, inPaths := args[0], args[1:]

			mmu := engine.NewMMU(nil)
			dstID := mmu.AllocContextBuffer()
			mmu.ContextMut().BufferID = dstID

			for _, p := range inPaths {
				f, err := os.Open(p)
				if err != nil {
					return fmt.Errorf("open %s: %w", p, err)
				}
				srcID := mmu.AllocContextBuffer()
				mmu.ContextMut().BufferID = srcID
				srcBuf, err := mmu.CurrentBuffer()
				if err != nil {
					f.Close()
					return err
				}
				err = engine.ReadBytecode(f, srcBuf)
				f.Close()
				if err != nil {
					return fmt.Errorf("read %s: %w", p, err)
				}

				mmu.ContextMut().BufferID = dstID
				if err := mmu.PasteFromContext(srcID); err != nil {
					return fmt.Errorf("link %s: %w", p, err)
				}
			}

			dstBuf, err := mmu.Buffer(dstID)
			if err != nil {
				return err
			}

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer out.Close()

			if err := engine.WriteBytecode(out, dstBuf); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			return nil
		},
	}
	return cmd
}
