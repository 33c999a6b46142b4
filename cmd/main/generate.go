package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Cadence/pkg/archive"
	"github.com/CTAG07/Cadence/pkg/compose"
	"github.com/CTAG07/Cadence/pkg/score"
)

// generateOptions holds the flags of the generate command. A flag only
// overrides the config file when it was set on the command line.
type generateOptions struct {
	input           string
	output          string
	mode            string
	model           string
	archive         string
	order           int
	length          int
	states          int
	measures        float64
	beatsPerMeasure float64
	seed            uint64
	midi            bool
	exportChain     bool
}

func newGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate new sequences for every song folder of the input directory",
		Long: `Generate walks every sub-directory of the input directory. Each CSV file
of a folder is one instrument part.

In joint mode all parts of a folder are aligned and modelled together and the
result is written to <output>/<folder>_generated_joint (or _generated_hmm).
In solo mode every part is modelled on its own and written to
<output>/<folder>_generated, with _data in the folder name replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCommandConfig(rootOpts)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err = cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, rootOpts.Verbose)
			return runGenerate(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "directory of song folders")
	flags.StringVarP(&opts.output, "output", "o", "", "directory generated folders are written to")
	flags.StringVar(&opts.mode, "mode", "", "batch mode (joint|solo)")
	flags.StringVar(&opts.model, "model", "", "sequence model (markov|hmm)")
	flags.StringVar(&opts.archive, "archive", "", "SQLite archive recording every run")
	flags.IntVarP(&opts.order, "order", "k", 0, "Markov order")
	flags.IntVarP(&opts.length, "length", "n", 0, "number of states to generate")
	flags.IntVar(&opts.states, "states", 0, "number of HMM hidden states")
	flags.Float64Var(&opts.measures, "measures", 0, "generate this many measures instead of a fixed length")
	flags.Float64Var(&opts.beatsPerMeasure, "beats-per-measure", 0, "beats per measure for --measures")
	flags.Uint64Var(&opts.seed, "seed", 0, "random seed (0 picks one)")
	flags.BoolVar(&opts.midi, "midi", false, "also render full.mid for every generated folder")
	flags.BoolVar(&opts.exportChain, "export-chain", false, "also write the learned model (chain.json or hmm.json)")

	return cmd
}

// apply copies every flag given on the command line into cfg.
func (o *generateOptions) apply(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputDir = o.input
	}
	if flags.Changed("output") {
		cfg.OutputDir = o.output
	}
	if flags.Changed("mode") {
		cfg.Mode = o.mode
	}
	if flags.Changed("archive") {
		cfg.ArchivePath = o.archive
	}
	if flags.Changed("midi") {
		cfg.RenderMIDI = o.midi
	}
	if flags.Changed("export-chain") {
		cfg.ExportChains = o.exportChain
	}

	gen := &cfg.Generation
	if flags.Changed("model") {
		gen.Model = o.model
	}
	if flags.Changed("order") {
		gen.Order = o.order
	}
	if flags.Changed("length") {
		gen.Length = o.length
	}
	if flags.Changed("states") {
		gen.States = o.states
	}
	if flags.Changed("measures") {
		gen.Measures = o.measures
	}
	if flags.Changed("beats-per-measure") {
		gen.BeatsPerMeasure = o.beatsPerMeasure
	}
	if flags.Changed("seed") {
		gen.Seed = o.seed
	}
}

// batch is one generate invocation over an input directory.
type batch struct {
	cfg    *Config
	gen    *compose.Generator
	arc    *archive.Archive
	params json.RawMessage
	logger *slog.Logger
}

// runGenerate processes every folder of cfg.InputDir in name order. A
// failing unit is logged and skipped; the batch then ends with ExitFailure.
func runGenerate(ctx context.Context, cfg *Config, logger *slog.Logger, out io.Writer) error {
	gen, err := compose.New(cfg.Generation, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid generation config", err)
	}

	entries, err := os.ReadDir(cfg.InputDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input directory", err)
	}

	params := gen.Config()
	params.Seed = gen.Seed()
	rawParams, err := json.Marshal(params)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode generation parameters", err)
	}

	b := &batch{cfg: cfg, gen: gen, params: rawParams, logger: logger}
	if cfg.ArchivePath != "" {
		db, arc, err := openArchive(cfg.ArchivePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open archive", err)
		}
		defer closeArchive(db, arc, logger)
		arc.SetLogger(logger)
		b.arc = arc
	}

	logger.InfoContext(ctx, "Starting batch",
		slog.String("input", cfg.InputDir),
		slog.String("output", cfg.OutputDir),
		slog.String("mode", cfg.Mode),
		slog.String("model", params.Model),
		slog.Uint64("seed", params.Seed),
	)

	var done, failed int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err = ctx.Err(); err != nil {
			break
		}
		var d, f int
		if cfg.Mode == ModeSolo {
			d, f = b.solo(ctx, entry.Name())
		} else {
			d, f = b.joint(ctx, entry.Name())
		}
		done += d
		failed += f
	}
	if err = ctx.Err(); err != nil {
		return WrapExitError(ExitFailure, "generation interrupted", err)
	}

	_, _ = fmt.Fprintf(out, "generated %d unit(s), %d failed\n", done, failed)
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d unit(s) failed", failed))
	}
	return nil
}

// joint generates all parts of a folder together.
func (b *batch) joint(ctx context.Context, folder string) (done, failed int) {
	logger := b.logger.With(slog.String("unit", folder))

	parts, err := score.ReadDir(filepath.Join(b.cfg.InputDir, folder))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read unit", slog.Any("error", err))
		return 0, 1
	}
	if len(parts) == 0 {
		logger.WarnContext(ctx, "No CSV files in folder, skipping")
		return 0, 0
	}

	res, err := b.gen.Joint(ctx, folder, parts)
	if err != nil {
		if !isInterrupted(err) {
			logger.ErrorContext(ctx, "Failed to generate unit", slog.Any("error", err))
		}
		return 0, 1
	}

	target := filepath.Join(b.cfg.OutputDir, jointDirName(folder, res.Model))
	if err = b.write(target, res.Streams()); err != nil {
		logger.ErrorContext(ctx, "Failed to write unit", slog.Any("error", err))
		return 0, 1
	}
	if b.cfg.ExportChains {
		if err = exportModel(target, "", res.Result); err != nil {
			logger.ErrorContext(ctx, "Failed to write unit", slog.Any("error", err))
			return 0, 1
		}
	}

	err = b.record(ctx, archive.Run{
		Unit:         folder,
		Model:        res.Model,
		Mode:         ModeJoint,
		Instruments:  res.Instruments,
		Seed:         res.Seed,
		Elapsed:      res.Elapsed,
		Insufficient: res.Insufficient,
		States:       res.Symbols,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to archive run", slog.Any("error", err))
		return 0, 1
	}

	logger.InfoContext(ctx, "Unit written", slog.String("path", target))
	return 1, 0
}

// solo generates every part of a folder on its own. Each part is a unit of
// its own, so one bad file does not stop the others.
func (b *batch) solo(ctx context.Context, folder string) (done, failed int) {
	paths, err := score.ListCSV(filepath.Join(b.cfg.InputDir, folder))
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to list unit", slog.String("unit", folder), slog.Any("error", err))
		return 0, 1
	}

	target := filepath.Join(b.cfg.OutputDir, soloDirName(folder))
	var streams []score.Stream
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		unit := folder + "/" + name
		stream, err := b.soloPart(ctx, unit, name, path, target)
		if err != nil {
			if !isInterrupted(err) {
				b.logger.ErrorContext(ctx, "Failed to generate unit", slog.String("unit", unit), slog.Any("error", err))
			}
			failed++
			continue
		}
		streams = append(streams, stream)
		done++
	}

	if b.cfg.RenderMIDI && len(streams) > 0 {
		if err = score.RenderMIDIFile(filepath.Join(target, "full.mid"), streams, b.cfg.Tempo); err != nil {
			b.logger.ErrorContext(ctx, "Failed to render MIDI", slog.String("unit", folder), slog.Any("error", err))
			failed++
		}
	}
	return done, failed
}

func (b *batch) soloPart(ctx context.Context, unit, name, path, target string) (score.Stream, error) {
	events, err := score.ReadEventsFile(path)
	if err != nil {
		return score.Stream{}, err
	}
	res, err := b.gen.Solo(ctx, unit, events)
	if err != nil {
		return score.Stream{}, err
	}
	stream := compose.SoloStream(name, res)
	if err = score.WriteStreams(target, []score.Stream{stream}); err != nil {
		return score.Stream{}, err
	}
	if b.cfg.ExportChains {
		if err = exportModel(target, name+".", res); err != nil {
			return score.Stream{}, err
		}
	}

	states := make([]score.JointState, len(res.Symbols))
	for i, e := range res.Symbols {
		states[i] = score.JointState{e}
	}
	err = b.record(ctx, archive.Run{
		Unit:         unit,
		Model:        res.Model,
		Mode:         ModeSolo,
		Instruments:  []string{name},
		Seed:         res.Seed,
		Elapsed:      res.Elapsed,
		Insufficient: res.Insufficient,
		States:       states,
	})
	if err != nil {
		return score.Stream{}, fmt.Errorf("could not archive run: %w", err)
	}
	return stream, nil
}

// write stores the streams of a joint unit and renders them when asked to.
func (b *batch) write(dir string, streams []score.Stream) error {
	if err := score.WriteStreams(dir, streams); err != nil {
		return err
	}
	if b.cfg.RenderMIDI {
		if err := score.RenderMIDIFile(filepath.Join(dir, "full.mid"), streams, b.cfg.Tempo); err != nil {
			return fmt.Errorf("could not render MIDI: %w", err)
		}
	}
	return nil
}

// record archives run when an archive is configured.
func (b *batch) record(ctx context.Context, run archive.Run) error {
	if b.arc == nil {
		return nil
	}
	run.Params = b.params
	id, err := b.arc.RecordRun(ctx, run)
	if err != nil {
		return err
	}
	b.logger.DebugContext(ctx, "Run archived", slog.String("unit", run.Unit), slog.String("run_id", id))
	return nil
}

func jointDirName(folder, model string) string {
	if model == compose.ModelHMM {
		return folder + "_generated_hmm"
	}
	return folder + "_generated_joint"
}

func soloDirName(folder string) string {
	if strings.Contains(folder, "_data") {
		return strings.ReplaceAll(folder, "_data", "_generated")
	}
	return folder + "_generated"
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
