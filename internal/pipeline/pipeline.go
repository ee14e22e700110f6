package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/couchcryptid/radiance-feature-etl/internal/observability"
	"github.com/google/uuid"
)

// SampleLister discovers the sample directories of a run.
type SampleLister interface {
	List(ctx context.Context) ([]domain.SampleRef, error)
}

// SampleReader decodes the radiance and label files of one sample.
type SampleReader interface {
	ReadSample(ctx context.Context, ref domain.SampleRef) (domain.RawSample, error)
}

// Transformer normalizes a raw sample into features and labels.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawSample) (domain.Sample, error)
}

// Loader persists the stacked batch.
type Loader interface {
	Load(ctx context.Context, batch domain.Batch) error
}

// Recorder stores the summary of a finished run.
type Recorder interface {
	RecordRun(ctx context.Context, run domain.RunSummary) error
}

// Previewer renders a processed sample for inspection.
type Previewer interface {
	Preview(ctx context.Context, sample domain.Sample) error
}

// Settings identifies a run in logs and in the run summary.
type Settings struct {
	BasePath      string
	OutputDir     string
	SkipUnlabeled bool
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithRecorder records every successful run.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPreviewer renders every kept sample.
func WithPreviewer(pv Previewer) Option {
	return func(p *Pipeline) { p.previewer = pv }
}

// Pipeline runs one pass over the sample directories and saves the stacked arrays.
type Pipeline struct {
	lister      SampleLister
	reader      SampleReader
	transformer Transformer
	loader      Loader
	recorder    Recorder
	previewer   Previewer
	settings    Settings
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(l SampleLister, r SampleReader, t Transformer, ld Loader, settings Settings, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		lister:      l,
		reader:      r,
		transformer: t,
		loader:      ld,
		settings:    settings,
		logger:      logger,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every sample in order. The first error aborts the run before
// anything is written.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	summary := domain.NewRunSummary(uuid.NewString(), p.settings.BasePath, p.settings.OutputDir)
	logger := p.logger.With("run_id", summary.ID)

	logger.Info("pipeline started",
		"base_path", p.settings.BasePath,
		"output_dir", p.settings.OutputDir,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if err := p.run(ctx, logger, &summary); err != nil {
		p.metrics.LastRunFailed.Set(1)
		logger.Error("pipeline failed", "error", err)
		return summary, err
	}

	p.metrics.LastRunFailed.Set(0)
	p.metrics.LastSuccess.Set(float64(summary.FinishedAt.Unix()))
	p.metrics.RunDuration.Set(summary.Duration().Seconds())
	logger.Info("pipeline finished",
		"samples", len(summary.Samples),
		"feature_shape", summary.FeatureShape,
		"label_shape", summary.LabelShape,
		"duration", summary.Duration(),
	)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary) error {
	refs, err := p.lister.List(ctx)
	if err != nil {
		return err
	}
	logger.Info("samples discovered", "count", len(refs))

	samples := make([]domain.Sample, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline cancelled: %w", err)
		}

		sample, keep, err := p.processSample(ctx, logger, ref)
		if err != nil {
			p.metrics.TransformErrors.Inc()
			return err
		}
		if !keep {
			continue
		}
		samples = append(samples, sample)
		summary.AddSample(sample)
	}

	batch, err := domain.NewBatch(samples)
	if err != nil {
		return err
	}
	p.checkAlignment(logger, batch)

	if err := p.loader.Load(ctx, batch); err != nil {
		return fmt.Errorf("save outputs: %w", err)
	}
	p.metrics.OutputSamples.WithLabelValues("features").Set(float64(batch.Features.Samples))
	if batch.Labels != nil {
		p.metrics.OutputSamples.WithLabelValues("labels").Set(float64(batch.Labels.Samples))
	}

	summary.Finish(batch)

	if p.recorder != nil {
		if err := p.recorder.RecordRun(ctx, *summary); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	return nil
}

// processSample reads, transforms and previews one sample. keep is false when
// an unlabeled sample is skipped.
func (p *Pipeline) processSample(ctx context.Context, logger *slog.Logger, ref domain.SampleRef) (domain.Sample, bool, error) {
	start := time.Now()

	raw, err := p.reader.ReadSample(ctx, ref)
	if err != nil {
		return domain.Sample{}, false, err
	}
	sample, err := p.transformer.Transform(ctx, raw)
	if err != nil {
		return domain.Sample{}, false, fmt.Errorf("transform sample %s: %w", ref.Name, err)
	}

	if sample.Labels == nil && p.settings.SkipUnlabeled {
		logger.Warn("unlabeled sample skipped", "sample", ref.Name)
		p.metrics.SamplesSkipped.Inc()
		return domain.Sample{}, false, nil
	}

	if p.previewer != nil {
		if err := p.previewer.Preview(ctx, sample); err != nil {
			return domain.Sample{}, false, fmt.Errorf("preview sample %s: %w", ref.Name, err)
		}
	}

	p.metrics.SamplesProcessed.Inc()
	p.metrics.SampleProcessingDuration.Observe(time.Since(start).Seconds())
	logger.Info("sample processed",
		"sample", ref.Name,
		"shape", []int{sample.Features.Rows, sample.Features.Cols, sample.Features.Channels},
		"labeled", sample.Labels != nil,
	)
	return sample, true, nil
}

func (p *Pipeline) checkAlignment(logger *slog.Logger, batch domain.Batch) {
	switch {
	case batch.Aligned():
	case batch.Labels == nil:
		logger.Warn("no labeled samples, labels will not be saved",
			"feature_samples", len(batch.FeatureSamples),
		)
	default:
		logger.Warn("feature and label stacks are misaligned",
			"feature_samples", len(batch.FeatureSamples),
			"label_samples", len(batch.LabelSamples),
		)
	}
}
