package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Cadence/pkg/score"
)

func newRenderCommand(rootOpts *RootOptions) *cobra.Command {
	var bpm float64

	cmd := &cobra.Command{
		Use:   "render <dir> <out.mid>",
		Short: "Render the CSV streams of a directory to a MIDI file",
		Long: `Render reads every CSV file of a directory as one instrument and writes a
type 1 MIDI file with one track per instrument. Streams holding the
insufficient-data marker become empty tracks.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !(bpm > 0) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid tempo %g: must be positive", bpm))
			}
			logger := newLogger(cmd.ErrOrStderr(), "info", rootOpts.Verbose)

			streams, err := score.ReadStreamDir(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read streams", err)
			}
			if len(streams) == 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("no CSV files in %s", args[0]))
			}
			if err = score.RenderMIDIFile(args[1], streams, bpm); err != nil {
				return WrapExitError(ExitFailure, "failed to render MIDI", err)
			}
			logger.Debug("MIDI file written", "path", args[1], "tracks", len(streams))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d track(s) to %s\n", len(streams), args[1])
			return nil
		},
	}

	cmd.Flags().Float64Var(&bpm, "bpm", 120, "tempo in quarter notes per minute")

	return cmd
}
