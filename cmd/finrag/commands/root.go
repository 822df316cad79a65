// Package commands defines the Cobra commands of the finrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/finrag-go/internal/audit"
	"github.com/54b3r/finrag-go/internal/config"
	"github.com/54b3r/finrag-go/internal/logging"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// logOptions reads LOG_LEVEL and LOG_FORMAT, which the config file may
// have just set, and applies the flag overrides.
func (f *globalFlags) logOptions() logging.Options {
	opts := logging.OptionsFromEnv()
	if f.logLevel != "" {
		opts.Level = f.logLevel
	}
	if f.logFormat != "" {
		opts.Format = f.logFormat
	}
	return opts
}

// NewRootCmd returns the finrag command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "finrag",
		Short: "Retrieval-augmented answers over investment books and market data",
		Long: `finrag indexes investment books and market snapshots into vector
collections and answers questions from the closest passages.

Settings are read from the environment, then .env, then a YAML file
(--config, FINRAG_CONFIG, ~/.finrag/config.yaml or ./finrag.yaml). A value
already in the environment is never overwritten.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bootstrap := logging.NewWithOptions(flags.logOptions())
			path, err := config.Load(flags.configPath, bootstrap)
			if err != nil {
				return err
			}
			log := logging.NewWithOptions(flags.logOptions())
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (default ~/.finrag/config.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "json or text (overrides LOG_FORMAT)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)
	return root
}
