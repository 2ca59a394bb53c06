// Package cli implements the mindly command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/DasMonkey/mindly-core/internal/config"
	"github.com/DasMonkey/mindly-core/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mindly",
		Short: "Local-first AI text operations with cloud fallback",
		Long: "mindly routes text operations (grammar, translation, summarization,\n" +
			"rewriting, generation, chat) across a local model runtime and a cloud\n" +
			"API, preferring the local one and failing over automatically.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level, "pretty")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.mindly/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newTranslateCmd())
	cmd.AddCommand(newSummarizeCmd())
	cmd.AddCommand(newRewriteCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newChatCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
