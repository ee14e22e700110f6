package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/couchcryptid/radiance-feature-etl/internal/observability"
)

// FeatureTransformer implements Transformer with the domain normalization
// and label combination functions.
type FeatureTransformer struct {
	opts    domain.NormalizeOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTransformer creates a FeatureTransformer.
func NewTransformer(opts domain.NormalizeOptions, logger *slog.Logger, metrics *observability.Metrics) *FeatureTransformer {
	return &FeatureTransformer{
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

func (t *FeatureTransformer) Transform(ctx context.Context, raw domain.RawSample) (domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sample{}, err
	}

	features, stats, err := domain.BuildFeatures(raw.Layers, t.opts)
	if err != nil {
		return domain.Sample{}, err
	}

	for _, st := range stats {
		t.metrics.LayersProcessed.Inc()
		t.logger.Debug("layer normalized",
			"sample", raw.Ref.Name,
			"layer", st.Name,
			"mean", st.Mean,
			"std", st.StdDev,
		)
		if st.NonFinite > 0 {
			t.metrics.NonFiniteValues.Add(float64(st.NonFinite))
		}
		if st.Sanitized {
			t.metrics.LayersSanitized.Inc()
			t.logger.Warn("non-finite values replaced with zero",
				"sample", raw.Ref.Name,
				"layer", st.Name,
				"count", st.NonFinite,
			)
		}
		if st.ZeroVariance {
			t.metrics.ZeroVariance.Inc()
			t.logger.Warn("constant layer filled with zeros",
				"sample", raw.Ref.Name,
				"layer", st.Name,
			)
		}
	}

	sample := domain.Sample{
		Name:     raw.Ref.Name,
		Features: features,
		Stats:    stats,
	}

	if len(raw.Labels) == 0 {
		return sample, nil
	}

	labels, err := domain.CombineLabels(raw.Labels, features.Rows, features.Cols)
	if err != nil {
		return domain.Sample{}, err
	}
	sample.Labels = &labels
	sample.ClassCounts = domain.ClassCounts(labels)
	t.metrics.SamplesLabeled.Inc()

	return sample, nil
}
