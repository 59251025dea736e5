// Package pipeline runs exam files through extraction, segmentation and
// persistence. Each file is handled start to finish by one worker; files fan
// out across a bounded pool and every outcome lands in the run manifest.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/edenschool/examparse/internal/events"
	"github.com/edenschool/examparse/internal/exam"
	"github.com/edenschool/examparse/internal/extractor"
	"github.com/edenschool/examparse/internal/segmenter"
	"github.com/edenschool/examparse/internal/store"
	"github.com/edenschool/examparse/pkg/config"
	apperrors "github.com/edenschool/examparse/pkg/errors"
	"github.com/edenschool/examparse/pkg/logger"
	"github.com/edenschool/examparse/pkg/metrics"
	"github.com/edenschool/examparse/pkg/resilience"
	"github.com/edenschool/examparse/pkg/tracing"
)

// Input is one source file. Data is read from Path when nil.
type Input struct {
	MetaID   int64
	FileID   int64
	FileName string
	Path     string
	Data     []byte
	// Category overrides the category derived from FileName.
	Category exam.Category
}

func (in Input) ref() store.FileRef {
	return store.FileRef{MetaID: in.MetaID, FileID: in.FileID}
}

func (in Input) baseName() string {
	return fmt.Sprintf("meta_%d_file_%d", in.MetaID, in.FileID)
}

// FileResult is what Process produced for one file. Analysis is nil unless
// the file reached segmentation.
type FileResult struct {
	Entry    Entry
	Text     string
	Analysis *exam.Analysis
	Err      error
}

type Options struct {
	Workers       int
	FileTimeout   time.Duration
	MaxFileSize   int64
	MinTextLength int
	MinPrintable  float64
	OutputDir     string
	WriteText     bool
	WriteAnalysis bool
	DryRun        bool
}

func OptionsFromConfig(c config.PipelineConfig) Options {
	return Options{
		Workers:       c.Workers,
		FileTimeout:   c.FileTimeout,
		MaxFileSize:   c.MaxFileSize,
		MinTextLength: c.MinTextLength,
		MinPrintable:  c.MinPrintable,
		OutputDir:     c.OutputDir,
		WriteText:     c.WriteText,
		WriteAnalysis: c.WriteAnalysis,
		DryRun:        c.DryRun,
	}
}

// AnalysisWriter persists one analysis atomically. *store.Writer implements it.
type AnalysisWriter interface {
	WriteAnalysis(ctx context.Context, a *exam.Analysis) (store.WriteStats, error)
	Imported(ctx context.Context, ref store.FileRef) (bool, error)
}

// Ledger remembers processed files. *ledger.Ledger implements it.
type Ledger interface {
	Done(ctx context.Context, ref store.FileRef) (bool, error)
	Mark(ctx context.Context, ref store.FileRef) (bool, error)
}

// Tracker receives one event per finished file. *events.Collector implements it.
type Tracker interface {
	Track(ev events.FileProcessed)
}

// Deps are the collaborators of a Pipeline. Only Registry and Segmenter are
// required.
type Deps struct {
	Registry  *extractor.Registry
	Segmenter *segmenter.Segmenter
	Writer    AnalysisWriter
	// SinkDriver labels sink metrics.
	SinkDriver string
	Ledger     Ledger
	Events     Tracker
	Metrics    *metrics.Metrics
}

type Pipeline struct {
	opts     Options
	deps     Deps
	metrics  *metrics.Metrics
	manifest *Manifest
	extracts singleflight.Group
}

func New(opts Options, deps Deps) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = 50
	}
	if opts.MinPrintable <= 0 {
		opts.MinPrintable = 0.85
	}
	if deps.Registry == nil {
		deps.Registry = extractor.NewRegistry(nil)
	}
	if deps.Segmenter == nil {
		deps.Segmenter = segmenter.New(segmenter.DefaultPassageKeyRunes)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Pipeline{
		opts:     opts,
		deps:     deps,
		metrics:  m,
		manifest: &Manifest{},
	}
}

func (p *Pipeline) Manifest() *Manifest {
	return p.manifest
}

// Run processes inputs on a pool of Workers goroutines. File failures are
// recorded in the manifest, never returned; the error is non-nil only when
// ctx ends before every file was handed out.
func (p *Pipeline) Run(ctx context.Context, inputs []Input) (Summary, error) {
	log := logger.WithComponent("pipeline")
	log.Info("run started", "files", len(inputs), "workers", p.opts.Workers, "dry_run", p.opts.DryRun)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.Process(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	summary := p.manifest.Summary()
	log.Info("run finished",
		"total", summary.Total,
		"success", summary.Success,
		"skip", summary.Skip,
		"error", summary.Error,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// Process handles one file and appends its manifest entry.
func (p *Pipeline) Process(ctx context.Context, in Input) FileResult {
	start := time.Now()
	ctx = logger.WithFile(ctx, in.MetaID, in.FileID)
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "file", in.baseName())

	p.metrics.FilesInFlight.Inc()
	defer p.metrics.FilesInFlight.Dec()

	// The worker may outlive a timeout, so its result travels over a channel
	// and is dropped once the deadline has passed.
	done := make(chan FileResult, 1)
	err := resilience.WithTimeout(ctx, p.opts.FileTimeout, "processing "+in.FileName, func(ctx context.Context) error {
		res := p.process(ctx, in)
		done <- res
		return res.Err
	})
	var res FileResult
	select {
	case res = <-done:
	default:
		res = FileResult{Err: err}
	}
	span.Fail(res.Err)
	span.End()

	entry := &res.Entry
	entry.MetaID = in.MetaID
	entry.FileID = in.FileID
	entry.FileName = in.FileName
	entry.Status = apperrors.ManifestStatus(res.Err)
	entry.Reason = apperrors.Reason(res.Err)
	entry.DurationMs = time.Since(start).Milliseconds()
	entry.StagesMs = span.StageDurations()

	format := entry.Format
	if format == "" {
		format = "unknown"
	}
	p.metrics.FilesProcessedTotal.WithLabelValues(string(entry.Status), format).Inc()
	p.metrics.FileParseDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
	p.manifest.Add(*entry)
	if p.deps.Events != nil {
		p.deps.Events.Track(events.FileProcessed{
			MetaID:     in.MetaID,
			FileID:     in.FileID,
			FileName:   in.FileName,
			Format:     entry.Format,
			Status:     string(entry.Status),
			Reason:     entry.Reason,
			Passages:   entry.Passages,
			Questions:  entry.Questions,
			DurationMs: entry.DurationMs,
			Timestamp:  time.Now().UTC(),
		})
	}

	span.SetAttr("status", string(entry.Status))
	span.Log(log)
	switch entry.Status {
	case apperrors.StatusSuccess:
		log.Info("file processed",
			"file", in.FileName,
			"passages", entry.Passages,
			"questions", entry.Questions,
			"duration_ms", entry.DurationMs,
		)
	case apperrors.StatusSkip:
		log.Info("file skipped", "file", in.FileName, "reason", entry.Reason)
	default:
		log.Warn("file failed", "file", in.FileName, "reason", entry.Reason)
	}
	return res
}

func (p *Pipeline) process(ctx context.Context, in Input) FileResult {
	var res FileResult
	fail := func(err error) FileResult {
		res.Err = err
		return res
	}

	if p.deps.Ledger != nil && !p.opts.DryRun {
		done, err := p.deps.Ledger.Done(ctx, in.ref())
		if err != nil {
			logger.FromContext(ctx).Warn("ledger unavailable, processing anyway", "error", err)
		} else if done {
			return fail(apperrors.New(apperrors.ErrAlreadyProcessed, apperrors.StatusSkip, in.baseName()))
		}
	}

	// Rows written by an earlier run without the ledger still count.
	if p.deps.Writer != nil && !p.opts.DryRun {
		imported, err := p.deps.Writer.Imported(ctx, in.ref())
		if err != nil {
			return fail(fmt.Errorf("checking import state: %w", err))
		}
		if imported {
			p.markDone(ctx, in)
			return fail(apperrors.New(apperrors.ErrAlreadyProcessed, apperrors.StatusSkip, "rows already stored"))
		}
	}

	data := in.Data
	if data == nil && in.Path != "" {
		b, err := os.ReadFile(in.Path)
		if err != nil {
			return fail(fmt.Errorf("reading %s: %w", in.Path, err))
		}
		data = b
	}
	if len(data) == 0 {
		return fail(apperrors.New(apperrors.ErrEmptyContent, apperrors.StatusSkip, ""))
	}
	if p.opts.MaxFileSize > 0 && int64(len(data)) > p.opts.MaxFileSize {
		return fail(apperrors.Newf(apperrors.ErrTooLarge, apperrors.StatusSkip, "%d bytes exceeds %d", len(data), p.opts.MaxFileSize))
	}

	ext, err := p.extract(ctx, in.FileName, data)
	res.Entry.Format = string(ext.Format)
	if err != nil {
		return fail(err)
	}
	res.Text = ext.Text
	res.Entry.TextLength, err = checkQuality(ext.Text, p.opts.MinTextLength, p.opts.MinPrintable)
	if err != nil {
		return fail(err)
	}

	_, segSpan := tracing.StartChildSpan(ctx, "segment")
	analysis := p.deps.Segmenter.Segment(ext.Text, segmenter.Source{
		MetaID:   in.MetaID,
		FileID:   in.FileID,
		FileName: in.FileName,
		Category: in.Category,
	})
	segSpan.End()
	res.Analysis = analysis
	res.Entry.Passages = len(analysis.Passages)
	res.Entry.Questions = analysis.QuestionCount()
	p.observeAnalysis(analysis)

	if p.deps.Writer != nil && !p.opts.DryRun {
		err := tracing.Stage(ctx, "persist", func(ctx context.Context) error {
			_, err := p.deps.Writer.WriteAnalysis(ctx, analysis)
			return err
		})
		if err != nil {
			p.metrics.SinkWritesTotal.WithLabelValues(p.deps.SinkDriver, "rolled_back").Inc()
			return fail(err)
		}
		p.metrics.SinkWritesTotal.WithLabelValues(p.deps.SinkDriver, "committed").Inc()
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	outputFile, err := p.writeOutputs(in, res.Text, analysis)
	res.Entry.OutputFile = outputFile
	if err != nil {
		return fail(err)
	}

	p.markDone(ctx, in)
	return res
}

func (p *Pipeline) markDone(ctx context.Context, in Input) {
	if p.deps.Ledger == nil || p.opts.DryRun {
		return
	}
	if _, err := p.deps.Ledger.Mark(ctx, in.ref()); err != nil {
		logger.FromContext(ctx).Warn("could not mark file processed", "error", err)
	}
}

// extract shares one extraction between concurrent files with identical
// bytes. The shared Result is read-only.
func (p *Pipeline) extract(ctx context.Context, name string, data []byte) (extractor.Result, error) {
	_, span := tracing.StartChildSpan(ctx, "extract")
	defer span.End()

	sum := sha256.Sum256(data)
	key := fmt.Sprintf("%x", sum)
	// The shared call outlives any one caller; each caller still stops on
	// its own context.
	ch := p.extracts.DoChan(key, func() (any, error) {
		return p.deps.Registry.Extract(context.WithoutCancel(ctx), name, data)
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		span.Fail(ctx.Err())
		return extractor.Result{}, ctx.Err()
	}
	res, _ := r.Val.(extractor.Result)
	err := r.Err
	if r.Shared {
		span.SetAttr("shared", true)
	}
	if err != nil {
		span.Fail(err)
		return res, err
	}
	for strategy, n := range res.Strategies {
		p.metrics.SectionDecodeTotal.WithLabelValues(strategy).Add(float64(n))
	}
	if res.TruncatedSections > 0 {
		p.metrics.TruncatedStreamsTotal.Add(float64(res.TruncatedSections))
	}
	span.SetAttr("format", string(res.Format))
	return res, nil
}

func (p *Pipeline) observeAnalysis(a *exam.Analysis) {
	p.metrics.PassagesTotal.Add(float64(len(a.Passages)))
	a.Questions(func(q *exam.Question) {
		p.metrics.QuestionsTotal.WithLabelValues(string(q.Category)).Inc()
		p.metrics.ClassificationTotal.WithLabelValues(q.Classification.Code).Inc()
		p.metrics.ClassificationConfidence.Observe(q.Classification.Confidence)
	})
}

// writeOutputs stores the analysis JSON and, optionally, the raw text next
// to it. It returns the name of the analysis file.
func (p *Pipeline) writeOutputs(in Input, text string, a *exam.Analysis) (string, error) {
	if p.opts.OutputDir == "" || (!p.opts.WriteAnalysis && !p.opts.WriteText) {
		return "", nil
	}
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	var outputFile string
	if p.opts.WriteText {
		outputFile = in.baseName() + ".txt"
		if err := os.WriteFile(filepath.Join(p.opts.OutputDir, outputFile), []byte(text), 0o644); err != nil {
			return "", fmt.Errorf("writing text output: %w", err)
		}
	}
	if p.opts.WriteAnalysis {
		data, err := MarshalAnalysis(a)
		if err != nil {
			return "", err
		}
		outputFile = in.baseName() + ".json"
		if err := os.WriteFile(filepath.Join(p.opts.OutputDir, outputFile), data, 0o644); err != nil {
			return "", fmt.Errorf("writing analysis output: %w", err)
		}
	}
	return outputFile, nil
}

// MarshalAnalysis renders a as indented JSON. Equal analyses give equal
// bytes.
func MarshalAnalysis(a *exam.Analysis) ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	return append(data, '\n'), nil
}
