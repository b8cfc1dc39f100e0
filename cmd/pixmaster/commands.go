package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/backmassage/pixmaster/internal/check"
	"github.com/backmassage/pixmaster/internal/checkpoint"
	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/display"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/pipeline"
	"github.com/backmassage/pixmaster/internal/recovery"
	"github.com/backmassage/pixmaster/internal/term"
)

// app carries the state shared by every command: the bound flags and, once
// setup has run, the effective config and logger.
type app struct {
	flags *config.Flags
	cfg   *config.Config
	log   *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pixmaster [flags] <input_dir> <output_dir>",
		Short: "Convert an image tree to web formats with per-path quality rules",
		Long: `pixmaster walks input_dir, picks a quality for every image from the
configured rules, and writes the converted outputs under output_dir with
the same relative layout. Progress is checkpointed so an interrupted run
can continue with --resume.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args, false)
		},
	}
	a.flags = config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "watch [flags] <input_dir> <output_dir>",
			Short: "Run a batch, then convert files as they change",
			Args:  cobra.MaximumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runBatch(cmd, args, true)
			},
		},
		a.checkCmd(),
		a.statusCmd(),
		a.clearCmd(),
	)
	return root
}

// setup loads and validates the configuration and opens the logger. The
// caller closes a.log.
func (a *app) setup(args []string, needDirs bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(a.flags, args, os.Getenv, cwd)
	if err != nil {
		return err
	}
	if needDirs {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateSettings()
	}
	if err != nil {
		return err
	}
	log, err := logging.NewLogger(cfg)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// runBatch is the root command: validate paths and tools, run the job, and
// print the summary. With watch set it keeps running afterwards.
func (a *app) runBatch(cmd *cobra.Command, args []string, watch bool) error {
	if err := a.setup(args, true); err != nil {
		return err
	}
	defer a.log.Close()
	cfg, log := a.cfg, a.log
	out := cmd.OutOrStdout()

	display.PrintBanner(out, version)

	// Output must not live inside input, or the next run would discover
	// its own outputs.
	inputAbs, err := absPath(cfg.InputDir)
	if err != nil {
		log.Error("Input not found: %s", cfg.InputDir)
		return &silentError{err}
	}
	outputAbs, err := absPath(cfg.OutputDir)
	if err != nil {
		log.Error("Cannot resolve output path: %s", cfg.OutputDir)
		return &silentError{err}
	}
	if err := cfg.ValidatePaths(inputAbs, outputAbs); err != nil {
		log.Error("%v", err)
		log.Error("Choose an output path outside: %s", cfg.InputDir)
		return &silentError{err}
	}

	log.Info("=== Pixmaster v%s (%s) ===", version, commit)
	log.Info("In:  %s", cfg.InputDir)
	log.Info("Out: %s", cfg.OutputDir)
	if cfg.DryRun {
		log.Warn("DRY RUN: no files or checkpoint will be written")
	} else if err := check.CheckDeps(cfg); err != nil {
		log.Error("%v", err)
		return &silentError{&recovery.FatalError{Err: err}}
	}
	log.Info("")

	tel := newTelemetry(log.Slog())
	defer tel.shutdown(context.Background())
	metrics, err := pipeline.NewMetrics(tel.meters)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	runner, err := pipeline.NewRunner(cfg, log,
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(tel.tracer()),
	)
	if err != nil {
		return err
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, runErr := runner.Run(ctx)
	log.Raw(stats.Summary(runner.ErrorLog().Path(), cfg.Checkpoint).Render(term.Enabled()))

	if runErr == nil && watch {
		runErr = runner.Watch(ctx, nil)
	}
	if cfg.Metrics {
		if err := tel.writeMetrics(context.Background(), out); err != nil {
			log.Warn("Could not collect metrics: %v", err)
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		if !cfg.DryRun {
			log.Warn("Stopped. Continue with --resume (checkpoint: %s)", cfg.Checkpoint)
		}
	default:
		log.Error("%v", runErr)
	}
	return &silentError{runErr}
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report ffmpeg, ffprobe, git-lfs and encoder availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(nil, false); err != nil {
				return err
			}
			defer a.log.Close()
			display.PrintBanner(cmd.OutOrStdout(), version)
			if !check.RunCheck(a.cfg, a.log) {
				return &silentError{errors.New("system check failed")}
			}
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved checkpoint and the most recent errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(nil, false); err != nil {
				return err
			}
			defer a.log.Close()

			st, err := loadCheckpoint(a.cfg.Checkpoint)
			if err != nil {
				return err
			}
			entries, err := recovery.ReadEntries(a.cfg.ErrorLog)
			if err != nil {
				return err
			}
			writeStatus(cmd.OutOrStdout(), a.cfg, st, entries, last, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&last, "errors", "n", 10, "Number of recent errors to show")
	return cmd
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the checkpoint and the error log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(nil, false); err != nil {
				return err
			}
			defer a.log.Close()

			backend, err := checkpoint.OpenBackend(a.cfg.Checkpoint)
			if err != nil {
				return err
			}
			store := checkpoint.NewStore(backend, recovery.NewErrorLog(a.cfg.ErrorLog), nil)
			defer store.Close()
			if err := store.Clear(nil); err != nil {
				return err
			}
			a.log.Success("Removed %s and %s", a.cfg.Checkpoint, a.cfg.ErrorLog)
			return nil
		},
	}
}

func loadCheckpoint(path string) (*checkpoint.JobState, error) {
	backend, err := checkpoint.OpenBackend(path)
	if err != nil {
		return nil, err
	}
	store := checkpoint.NewStore(backend, nil, nil)
	defer store.Close()
	return store.Load()
}

// writeStatus prints the checkpoint progress and the last n error log
// entries, newest last.
func writeStatus(w io.Writer, cfg *config.Config, st *checkpoint.JobState, entries []recovery.Entry, n int, now time.Time) {
	if st == nil {
		fmt.Fprintf(w, "No checkpoint at %s\n", cfg.Checkpoint)
	} else {
		p := st.Progress
		fmt.Fprintf(w, "Run %s\n", st.RunID)
		fmt.Fprintf(w, "  Started:   %s (%s)\n", st.StartedAt.Local().Format(time.DateTime), humanize.RelTime(st.StartedAt, now, "ago", "from now"))
		fmt.Fprintf(w, "  Updated:   %s (%s)\n", st.LastUpdatedAt.Local().Format(time.DateTime), humanize.RelTime(st.LastUpdatedAt, now, "ago", "from now"))
		fmt.Fprintf(w, "  Processed: %s of %s\n", display.FormatCount(p.Processed), display.FormatCount(p.Total))
		fmt.Fprintf(w, "  Succeeded: %s (%s skipped)\n", display.FormatCount(p.Succeeded), display.FormatCount(p.Skipped))
		fmt.Fprintf(w, "  Failed:    %s\n", display.FormatCount(p.Failed))
		fmt.Fprintf(w, "  Remaining: %s\n", display.FormatCount(p.Remaining))
		if in, ok := st.Configuration["inputDir"].(string); ok {
			fmt.Fprintf(w, "  Input:     %s\n", in)
		}
	}

	if len(entries) == 0 {
		fmt.Fprintf(w, "No errors logged in %s\n", cfg.ErrorLog)
		return
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	fmt.Fprintf(w, "Last %d error(s) from %s:\n", len(entries), cfg.ErrorLog)
	for _, e := range entries {
		code := e.Error.Code
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(w, "  %s  %-12s %s: %s\n", e.Timestamp.Local().Format(time.DateTime), code, e.File, e.Error.Message)
	}
}

// absPath returns the absolute path with symlinks resolved. A path that
// does not exist yet resolves through its nearest existing ancestor, so an
// output directory that a dry run never creates can still be compared
// against the input.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(abs)
	if parent == abs {
		return "", err
	}
	base, perr := absPath(parent)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(base, filepath.Base(abs)), nil
}
