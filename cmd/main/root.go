package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// newRootCommand creates the root command of the cadence binary.
func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cadence",
		Short: "Cadence - symbolic music generator",
		Long: `Cadence learns order-k Markov chains or hidden Markov models from
note/chord/rest sequences and samples new sequences from them.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "./cadence.json", "config file (.json, .yaml or .yml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newGenerateCommand(opts))
	cmd.AddCommand(newRenderCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newRunsCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cadence %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

// loadCommandConfig loads the config file named by the global flags.
func loadCommandConfig(opts *RootOptions) (*Config, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}
