package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/backmassage/pixmaster/internal/checkpoint"
	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/display"
	"github.com/backmassage/pixmaster/internal/lfs"
	"github.com/backmassage/pixmaster/internal/logging"
	"github.com/backmassage/pixmaster/internal/planner"
	"github.com/backmassage/pixmaster/internal/probe"
	"github.com/backmassage/pixmaster/internal/recovery"
	"github.com/backmassage/pixmaster/internal/term"
)

// Skip reasons recorded in the ledger.
const (
	SkipUpToDate   = "up-to-date"
	SkipLFSPointer = "lfs-pointer"
	SkipResumed    = "resumed" // covered by a count-only checkpoint
)

// LFS detects and fetches Git LFS pointer files.
type LFS interface {
	IsPointer(path string) bool
	Pull(ctx context.Context, path string) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithCodec replaces the ffmpeg processor.
func WithCodec(p codec.Processor) Option { return func(r *Runner) { r.codec = p } }

// WithLFS replaces the git-lfs client.
func WithLFS(l LFS) Option { return func(r *Runner) { r.lfs = l } }

// WithModTime replaces the os.Stat timestamp oracle.
func WithModTime(fn ModTimeFunc) Option { return func(r *Runner) { r.modTime = fn } }

// WithDimensions replaces the image dimension probe.
func WithDimensions(fn planner.DimensionsFunc) Option { return func(r *Runner) { r.dims = fn } }

// WithMetrics sets the metrics recorder. The default records nothing.
func WithMetrics(m Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithTracer sets the tracer for run and file spans. The default uses the
// global tracer provider.
func WithTracer(t trace.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// WithSleep replaces the retry backoff sleep, for tests.
func WithSleep(fn func(time.Duration)) Option { return func(r *Runner) { r.sleep = fn } }

// Runner owns everything one job needs: the planner, the recovery
// coordinator with its error log, and the checkpoint store with the ledger
// of processed files.
type Runner struct {
	cfg     *config.Config
	log     *logging.Logger
	codec   codec.Processor
	lfs     LFS
	modTime ModTimeFunc
	dims    planner.DimensionsFunc
	metrics Metrics
	tracer  trace.Tracer
	sleep   func(time.Duration)

	planner  *planner.Planner
	errLog   *recovery.ErrorLog
	coord    *recovery.Coordinator
	store    *checkpoint.Store
	ledger   *checkpoint.Ledger
	progress *display.ProgressLine
}

// NewRunner wires a Runner for cfg, which must already be validated.
func NewRunner(cfg *config.Config, log *logging.Logger, opts ...Option) (*Runner, error) {
	prober := &probe.Prober{Bin: cfg.FFprobePath}
	r := &Runner{
		cfg:     cfg,
		log:     log,
		codec:   codec.NewFFmpeg(cfg.FFmpegPath, cfg.Verbose, nil),
		lfs:     &lfs.Client{Git: cfg.GitPath},
		modTime: StatModTime,
		dims:    prober.Dimensions,
		metrics: NoopMetrics{},
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}

	backend, err := checkpoint.OpenBackend(cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	r.errLog = recovery.NewErrorLog(cfg.ErrorLog)
	r.store = checkpoint.NewStore(backend, r.errLog, cfg.Snapshot())
	r.ledger = checkpoint.NewLedger()

	coordOpts := []recovery.Option{
		recovery.WithRetryHook(r.onRetry),
		recovery.WithLogFailureHook(r.onLogFailure),
	}
	if r.sleep != nil {
		coordOpts = append(coordOpts, recovery.WithSleep(r.sleep))
	}
	policy := recovery.Policy{
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.RetryDelay,
		Exponential: cfg.ExponentialBackoff,
	}
	r.coord = recovery.NewCoordinator(policy, r.errLog, cfg.ContinueOnError, coordOpts...)
	r.planner = planner.New(cfg, r.dims)
	r.progress = display.NewProgressLine(20, term.Enabled())
	return r, nil
}

// Close releases the checkpoint backend.
func (r *Runner) Close() error { return r.store.Close() }

// ErrorLog returns the job's error log.
func (r *Runner) ErrorLog() *recovery.ErrorLog { return r.errLog }

// Ledger returns the processed-file ledger.
func (r *Runner) Ledger() *checkpoint.Ledger { return r.ledger }

// RunID identifies the job in the checkpoint.
func (r *Runner) RunID() string { return r.store.RunID() }

// Run processes every discovered file in order. The returned error is a
// *recovery.FatalError for job-level failures and for per-file failures
// with continue-on-error off, or the context error when interrupted. Stats
// are valid in every case.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	start := time.Now()
	stats := RunStats{DryRun: r.cfg.DryRun}

	ctx, span := r.tracer.Start(ctx, "pixmaster.run",
		trace.WithAttributes(
			attribute.String("input.dir", r.cfg.InputDir),
			attribute.Bool("dry_run", r.cfg.DryRun),
		),
	)
	err := r.run(ctx, &stats)
	stats.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.String("run.id", r.store.RunID()),
		attribute.Int("files.total", stats.Total),
		attribute.Int("files.failed", stats.Failed),
	)
	endSpan(span, err)
	return stats, err
}

func (r *Runner) run(ctx context.Context, stats *RunStats) error {
	if !r.cfg.DryRun {
		if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
			return &recovery.FatalError{Err: fmt.Errorf("create output directory: %w", err)}
		}
	}

	files, err := Discover(r.cfg.InputDir, r.cfg.Extensions)
	if err != nil {
		return &recovery.FatalError{Err: fmt.Errorf("discover input files: %w", err)}
	}
	stats.Total = len(files)

	skipFirst := 0
	if r.cfg.Resume {
		if skipFirst, err = r.resume(); err != nil {
			return &recovery.FatalError{Err: err}
		}
	}
	r.log.Info("Found %d files in %s", len(files), r.cfg.InputDir)

	sinceSave := 0
	for i, rel := range files {
		if ctx.Err() != nil {
			stats.Interrupted = true
			r.log.Warn("Interrupted")
			break
		}
		if i < skipFirst || r.ledger.IsProcessed(rel) {
			if _, ok := r.ledger.Get(rel); !ok {
				// The next save must list it, or a later resume would
				// convert it again.
				r.ledger.Record(checkpoint.FileRecord{
					Path:       rel,
					Status:     checkpoint.StatusSkipped,
					SkipReason: SkipResumed,
				})
			}
			r.planner.Claim(rel)
			stats.Resumed++
			continue
		}

		r.log.Info("%s", r.progress.Render(i+1, len(files), rel))
		out, ferr := r.processFile(ctx, r.planner.Plan(ctx, rel))
		if ctx.Err() != nil && out.Record.Status == checkpoint.StatusFailed {
			// Cut short by cancellation; leave it pending.
			stats.Interrupted = true
			r.log.Warn("Interrupted while processing %s", rel)
			break
		}
		r.ledger.Record(out.Record)
		stats.add(out)

		if r.cfg.DryRun {
			if ferr != nil {
				return ferr
			}
			continue
		}
		sinceSave++
		if ferr != nil || sinceSave >= r.cfg.CheckpointInterval {
			r.save(r.pending(files[i+1:]))
			sinceSave = 0
		}
		if ferr != nil {
			return ferr
		}
	}

	if r.cfg.DryRun {
		return ctx.Err()
	}
	if stats.Interrupted {
		r.save(r.pending(files))
		return ctx.Err()
	}

	if len(r.ledger.Failed()) == 0 {
		if err := r.store.Clear(r.ledger); err != nil {
			r.log.Warn("Could not remove checkpoint state: %v", err)
		} else {
			stats.Cleared = true
		}
		return nil
	}
	r.save(nil)
	return nil
}

// resume loads the checkpoint into the ledger. It returns a count of
// leading files to skip only for a checkpoint that records progress but no
// paths; otherwise the ledger decides.
func (r *Runner) resume() (int, error) {
	st, err := r.store.Load()
	if errors.Is(err, checkpoint.ErrCorrupt) {
		r.log.Warn("Ignoring unreadable checkpoint %s: %v", r.cfg.Checkpoint, err)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if st == nil {
		r.log.Info("No checkpoint at %s; starting from the beginning", r.cfg.Checkpoint)
		return 0, nil
	}

	r.store.Adopt(st)
	r.ledger = checkpoint.LedgerFromState(st)
	r.log.Info("Resuming run %s: %d of %d files processed, %d failed",
		st.RunID, st.Progress.Processed, st.Progress.Total, st.Progress.Failed)
	if r.ledger.Len() == 0 {
		return st.StartIndex(), nil
	}
	return 0, nil
}

// pending returns the paths in rest that have no ledger record yet.
func (r *Runner) pending(rest []string) []string {
	out := make([]string, 0, len(rest))
	for _, p := range rest {
		if _, ok := r.ledger.Get(p); !ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Runner) save(pending []string) {
	if err := r.store.Save(r.ledger, pending); err != nil {
		r.log.Warn("Checkpoint save failed: %v", err)
	}
}

// ProcessOne runs relPath through the per-file state machine outside a
// batch, as watch mode does. The outcome is recorded in the ledger but no
// checkpoint is written.
func (r *Runner) ProcessOne(ctx context.Context, relPath string) (checkpoint.FileRecord, error) {
	out, err := r.processFile(ctx, r.planner.Plan(ctx, relPath))
	r.ledger.Record(out.Record)
	return out.Record, err
}

// fileOutcome is what processFile reports back to the batch loop.
type fileOutcome struct {
	Record      checkpoint.FileRecord
	LFSPointer  bool
	InputBytes  int64
	OutputBytes int64
}

func (o *fileOutcome) fail(err error, attempts int) {
	o.Record.Status = checkpoint.StatusFailed
	o.Record.Attempts = attempts
	o.Record.Error = &checkpoint.FileError{Message: err.Error(), Code: recovery.Code(err)}
}

func (o *fileOutcome) skip(reason string) {
	o.Record.Status = checkpoint.StatusSkipped
	o.Record.SkipReason = reason
}

// processFile drives one file to a terminal state. A non-nil error is
// always a *recovery.FatalError.
func (r *Runner) processFile(ctx context.Context, plan *planner.FilePlan) (out fileOutcome, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "pixmaster.file",
		trace.WithAttributes(attribute.String("file.path", plan.RelPath)))
	defer func() {
		span.SetAttributes(
			attribute.String("file.status", string(out.Record.Status)),
			attribute.Int("file.attempts", out.Record.Attempts),
		)
		spanErr := err
		if spanErr == nil && out.Record.Error != nil {
			spanErr = errors.New(out.Record.Error.Message)
		}
		endSpan(span, spanErr)
		r.metrics.RecordFile(ctx, out.Record.Status, time.Since(start))
	}()

	rel := plan.RelPath
	out.Record = checkpoint.FileRecord{Path: rel, Attempts: 1}
	wc := recovery.Context{
		File:      rel,
		Operation: "convert",
		Extra:     map[string]any{"input": plan.InputPath, "outputs": plan.OutputPaths()},
	}

	for _, rule := range plan.Rules {
		r.log.Debug(r.cfg.Verbose, "  rule %s", rule)
	}
	if plan.Note != "" {
		r.log.Warn("  %s", plan.Note)
	}

	// --- LFS ---
	if r.lfs.IsPointer(plan.InputPath) {
		if !r.cfg.AutoPull || r.cfg.DryRun {
			out.LFSPointer = true
			out.skip(SkipLFSPointer)
			r.log.Skip("LFS pointer, not fetched (use --auto-pull): %s", rel)
			return out, nil
		}
		pullCtx := wc
		pullCtx.Operation = "lfs-pull"
		res, ferr := recovery.Execute(ctx, r.coord, pullCtx, func(ctx context.Context, _ int) (struct{}, error) {
			if err := r.lfs.Pull(ctx, plan.InputPath); err != nil {
				return struct{}{}, err
			}
			if r.lfs.IsPointer(plan.InputPath) {
				return struct{}{}, recovery.NewCodedError(lfs.CodeLFS, "file is still an LFS pointer after pull", nil)
			}
			return struct{}{}, nil
		})
		if !res.Success {
			out.fail(res.Err, res.Attempts)
			r.log.Error("LFS pull failed for %s: %v", rel, res.Err)
			return out, ferr
		}
		r.log.Info("  pulled LFS object")
	}

	// --- Freshness ---
	switch NeedsProcessing(plan.InputPath, plan.OutputPaths(), r.cfg.Force, r.modTime) {
	case InputMissing:
		missing := recovery.NewCodedError("ENOENT", "input file is missing", nil)
		r.coord.Record(wc, missing, 1)
		out.fail(missing, 1)
		r.log.Error("Missing input: %s", rel)
		if !r.coord.ContinueOnError() {
			return out, &recovery.FatalError{File: rel, Attempts: 1, Err: missing}
		}
		return out, nil
	case UpToDate:
		out.skip(SkipUpToDate)
		r.log.Skip("Up to date: %s", rel)
		return out, nil
	}

	// --- Dry run ---
	if r.cfg.DryRun {
		for _, o := range plan.Outputs {
			r.log.Info("  [DRY] %s q=%d -> %s", o.Format, o.Options.Quality, o.OutputPath)
		}
		out.Record.Status = checkpoint.StatusSuccess
		out.Record.Outputs = plan.OutputPaths()
		return out, nil
	}

	// --- Convert ---
	res, ferr := recovery.Execute(ctx, r.coord, wc, func(ctx context.Context, _ int) ([]codec.OutputResult, error) {
		return r.codec.Process(ctx, plan.InputPath, plan.Outputs)
	})
	if !res.Success {
		out.fail(res.Err, res.Attempts)
		if ctx.Err() == nil {
			r.log.Error("Failed after %d attempt(s): %s: %v", res.Attempts, rel, res.Err)
		}
		return out, ferr
	}

	out.Record.Status = checkpoint.StatusSuccess
	out.Record.Attempts = res.Attempts
	out.Record.Outputs = plan.OutputPaths()
	for _, o := range res.Value {
		out.OutputBytes += o.Bytes
	}
	if fi, err := os.Stat(plan.InputPath); err == nil {
		out.InputBytes = fi.Size()
	}
	r.metrics.RecordBytes(ctx, out.InputBytes, out.OutputBytes)

	if saved := display.FormatSavings(out.InputBytes, out.OutputBytes); saved != "" {
		r.log.Success("Converted %s: %s", rel, saved)
	} else {
		r.log.Success("Converted %s", rel)
	}
	return out, nil
}

func (r *Runner) onRetry(file string, attempt int, delay time.Duration, err error) {
	r.log.Warn("Retry %d/%d for %s in %s: %v", attempt+1, r.coord.Policy().Attempts(), file, delay, err)
	r.metrics.RecordRetry(context.Background(), recovery.Code(err))
}

func (r *Runner) onLogFailure(file string, err, logErr error) {
	r.log.Warn("Could not write %s to the error log (%v): %v", file, logErr, err)
}
