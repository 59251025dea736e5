package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edenschool/examparse/pkg/config"
	"github.com/edenschool/examparse/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "examparse",
		Short:         "Extract and structure exam documents (HWP, HWPX, PDF)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts.cfg = cfg
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults apply when empty)")

	root.AddCommand(
		newRunCmd(opts),
		newExtractCmd(),
		newAnalyzeCmd(opts),
		newGeneratedCmd(),
		newClassifyCmd(),
		newTypesCmd(),
		newLedgerCmd(opts),
	)
	return root
}
