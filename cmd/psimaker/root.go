package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"psimaker/internal/config"
	"psimaker/internal/logging"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "psimaker",
		Short: "Convert interaction spreadsheets into grouped interaction records",
		Long: `psimaker reads delimited tables where every row describes one participant
of a molecular interaction, groups consecutive rows sharing an interaction
number, and stores the resulting interactions in batches.

Every conversion is recorded in the run ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Logging.Level = "debug"
			}
			logger, _, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "psimaker.yaml", "configuration file (missing file means defaults)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newConvertCmd(a), newRunsCmd(a))
	return root
}
