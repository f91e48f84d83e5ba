package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kt-fork/vvm/engine"
	"github.com/kt-fork/vvm/internal/native"
)

func newRunCmd() *cobra.Command {
	var debug bool
	var useNative bool
	cmd := &cobra.Command{
		Use:   "run <image.bcde>",
		Short: "load a bytecode image and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := logrus.NewEntry(log)
			interp, err := engine.NewInterpreter(entry)
			if err != nil {
				return err
			}
			interp.DisableGCDuringRun = cfg.Engine.DisableGCDuringRun
			if useNative && cfg.Native.Enabled {
				interp.Native = native.EngineBackend{Backend: native.NewBackendWithCapacity(cfg.Native.MaxCachedImages)}
			}

			bufID := interp.MMU.AllocContextBuffer()
			interp.MMU.ContextMut().BufferID = bufID

			buf, err := interp.MMU.Buffer(bufID)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()
			if err := engine.ReadBytecode(f, buf); err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			if debug {
				return interp.RunDebug(os.Stdin, os.Stdout)
			}
			if interp.Native != nil {
				if err := interp.RunNative(); err != nil {
					return err
				}
			} else if err := interp.Run(); err != nil {
				return err
			}
			entry.Info("program finished")
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "drive execution interactively, one instruction at a time")
	cmd.Flags().BoolVar(&useNative, "native", false, "compile straight-line integer runs to native machine code instead of interpreting every instruction")
	return cmd
}
