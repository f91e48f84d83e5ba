// Command vvm runs, links, and inspects programs for the vvm stack engine.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kt-fork/vvm/internal/engineconfig"
)

var (
	cfgPath string
	cfg     *engineconfig.Config
	log     = logrus.New()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vvm",
		Short: "vvm runs bytecode images for the stack-based virtual machine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = engineconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Logging.Format == "json" {
				log.SetFormatter(&logrus.JSONFormatter{})
			}
			level, err := logrus.ParseLevel(cfg.Logging.Level)
			if err != nil {
				level = logrus.InfoLevel
			}
			log.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "vvm.toml", "path to vvm.toml")

	root.AddCommand(newRunCmd())
	root.AddCommand(newDisasmCmd())
	root.AddCommand(newCompileCmd())
	root.AddCommand(newAsmCmd())
	root.AddCommand(newLinkCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.NewEntry(log).Error(err)
		os.Exit(1)
	}
}
