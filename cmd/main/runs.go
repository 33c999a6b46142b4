package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/CTAG07/Cadence/pkg/archive"
)

// openArchive opens the SQLite archive at path, creating its schema when
// needed.
func openArchive(path string) (*sql.DB, *archive.Archive, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, nil, err
	}
	if err = archive.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup archive schema: %w", err)
	}
	arc, err := archive.New(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to prepare archive statements: %w", err)
	}
	return db, arc, nil
}

func closeArchive(db *sql.DB, arc *archive.Archive, logger *slog.Logger) {
	arc.Close()
	if err := db.Close(); err != nil {
		logger.Error("Failed to close archive database", "error", err)
	}
}

type runsOptions struct {
	archivePath string
}

func newRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run archive",
		Long: `Runs lists, shows, exports and removes archived generation runs. The
archive defaults to archive_path of the config file.`,
	}

	cmd.PersistentFlags().StringVar(&opts.archivePath, "archive", "", "SQLite archive path")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, rootOpts, opts, func(ctx context.Context, arc *archive.Archive) error {
				runs, err := arc.ListRuns(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list runs", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tCREATED\tUNIT\tMODEL\tMODE\tSTEPS\tSTATUS")
				for _, run := range runs {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						run.ID, run.CreatedAt.Format(time.DateTime), run.Unit, run.Model, run.Mode, run.Steps, runStatus(run))
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, rootOpts, opts, func(ctx context.Context, arc *archive.Archive) error {
				run, err := arc.GetRun(ctx, args[0])
				if err != nil {
					return runError(args[0], err)
				}
				streams, err := arc.Streams(ctx, run.ID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read run steps", err)
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Run:         %s\n", run.ID)
				_, _ = fmt.Fprintf(out, "Unit:        %s\n", run.Unit)
				_, _ = fmt.Fprintf(out, "Model:       %s (%s)\n", run.Model, run.Mode)
				_, _ = fmt.Fprintf(out, "Created:     %s\n", run.CreatedAt.Format(time.RFC3339))
				_, _ = fmt.Fprintf(out, "Seed:        %d\n", run.Seed)
				_, _ = fmt.Fprintf(out, "Steps:       %d\n", run.Steps)
				_, _ = fmt.Fprintf(out, "Elapsed:     %g beats\n", run.Elapsed)
				_, _ = fmt.Fprintf(out, "Status:      %s\n", runStatus(run))
				_, _ = fmt.Fprintf(out, "Parameters:  %s\n", run.Params)
				for _, s := range streams {
					_, _ = fmt.Fprintf(out, "  %-16s %d event(s)\n", s.Instrument, len(s.Events))
				}
				return nil
			})
		},
	})

	var exportPath string
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export one archived run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, rootOpts, opts, func(ctx context.Context, arc *archive.Archive) error {
				var buf bytes.Buffer
				if err := arc.ExportRun(ctx, args[0], &buf); err != nil {
					return runError(args[0], err)
				}
				if exportPath == "" {
					_, err := buf.WriteTo(cmd.OutOrStdout())
					return err
				}
				if err := atomic.WriteFile(exportPath, &buf); err != nil {
					return WrapExitError(ExitFailure, "failed to write export", err)
				}
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "write the export to a file instead of stdout")
	cmd.AddCommand(exportCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove one archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, rootOpts, opts, func(ctx context.Context, arc *archive.Archive) error {
				if err := arc.RemoveRun(ctx, args[0]); err != nil {
					return runError(args[0], err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed run %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Summarize the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, rootOpts, opts, func(ctx context.Context, arc *archive.Archive) error {
				stats, err := arc.Stats(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read archive stats", err)
				}
				models := make([]string, 0, len(stats.Models))
				for model := range stats.Models {
					models = append(models, model)
				}
				sort.Strings(models)
				perModel := make([]string, 0, len(models))
				for _, model := range models {
					perModel = append(perModel, fmt.Sprintf("%s=%d", model, stats.Models[model]))
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Runs:          %d\n", stats.Runs)
				_, _ = fmt.Fprintf(out, "Insufficient:  %d\n", stats.Insufficient)
				_, _ = fmt.Fprintf(out, "Step rows:     %d\n", stats.Steps)
				_, _ = fmt.Fprintf(out, "Models:        %s\n", strings.Join(perModel, " "))
				return nil
			})
		},
	})

	return cmd
}

// withArchive resolves the archive path from the flag or the config file,
// opens it and runs fn.
func withArchive(cmd *cobra.Command, rootOpts *RootOptions, opts *runsOptions, fn func(context.Context, *archive.Archive) error) error {
	path := opts.archivePath
	level := "info"
	if path == "" {
		cfg, err := loadCommandConfig(rootOpts)
		if err != nil {
			return err
		}
		path = cfg.ArchivePath
		level = cfg.LogLevel
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no archive configured: pass --archive or set archive_path")
	}

	logger := newLogger(cmd.ErrOrStderr(), level, rootOpts.Verbose)
	db, arc, err := openArchive(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer closeArchive(db, arc, logger)
	arc.SetLogger(logger)

	return fn(cmd.Context(), arc)
}

func runError(id string, err error) error {
	if errors.Is(err, archive.ErrRunNotFound) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("run %s", id), err)
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("run %s", id), err)
}

func runStatus(run archive.Run) string {
	if run.Insufficient {
		return "insufficient"
	}
	return "ok"
}
