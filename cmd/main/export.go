package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/CTAG07/Cadence/pkg/compose"
	"github.com/CTAG07/Cadence/pkg/markov"
	"github.com/CTAG07/Cadence/pkg/score"
)

// Exported model file names. Solo parts prefix them with "<part>.".
const (
	chainFile = "chain.json"
	hmmFile   = "hmm.json"
)

// exportModel writes the model learned for res into dir: the transition
// table of a Markov result or the parameters of an HMM result. Insufficient
// results have no model and write nothing.
func exportModel[S markov.Symbol](dir, prefix string, res *compose.Result[S]) error {
	var buf bytes.Buffer
	var name string
	switch {
	case res.Chain != nil:
		name = prefix + chainFile
		if err := res.Chain.Export(&buf); err != nil {
			return err
		}
	case res.HMM != nil:
		name = prefix + hmmFile
		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(res.HMM); err != nil {
			return err
		}
	default:
		return nil
	}
	if err := atomic.WriteFile(filepath.Join(dir, name), &buf); err != nil {
		return fmt.Errorf("could not export model: %w", err)
	}
	return nil
}

// loadChain reads a chain written by exportModel. Solo chains load as
// single-instrument joint states.
func loadChain(path string) (*markov.Chain[score.JointState], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return markov.Import(file, score.ParseJointKey)
}

func newInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <chain.json>",
		Short: "Summarize a transition table exported by generate --export-chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), "warn", rootOpts.Verbose)
			chain, err := loadChain(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load chain", err)
			}
			chain.SetLogger(logger)

			stats := chain.Stats()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Order:         %d\n", stats.Order)
			_, _ = fmt.Fprintf(out, "Contexts:      %d\n", stats.Contexts)
			_, _ = fmt.Fprintf(out, "Transitions:   %d\n", stats.Transitions)
			_, _ = fmt.Fprintf(out, "Observed:      %d\n", stats.TotalFrequency)
			_, _ = fmt.Fprintf(out, "Symbols:       %d\n", stats.Symbols)
			return nil
		},
	}
}
