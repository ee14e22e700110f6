package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/catalog"
	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/filesystem"
	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/npy"
	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/quicklook"
	"github.com/couchcryptid/radiance-feature-etl/internal/config"
	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/couchcryptid/radiance-feature-etl/internal/observability"
	"github.com/couchcryptid/radiance-feature-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, logger, metrics)

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("metrics export failed", "error", err)
		}
	}
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) int {
	walker := filesystem.NewWalker(cfg.BasePath, cfg.RadianceGlob, cfg.LabelFiles, logger)
	reader := netcdf.NewReader(cfg.RadianceVariable, cfg.Workers, logger)
	transformer := pipeline.NewTransformer(domain.NormalizeOptions{
		Mode:              domain.NormalizeMode(cfg.Normalization),
		SanitizeNonFinite: cfg.SanitizeNonFinite,
		ZeroVariance:      domain.ZeroVariancePolicy(cfg.ZeroVariancePolicy),
	}, logger, metrics)

	var loader pipeline.Loader
	switch cfg.OutputFormat {
	case config.FormatNetCDF:
		loader = netcdf.NewWriter(cfg.OutputDir, logger)
	default:
		loader = npy.NewWriter(cfg.OutputDir, logger)
	}

	var opts []pipeline.Option
	if cfg.CatalogEnabled {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			logger.Error("failed to create output dir", "error", err)
			return 1
		}
		store, err := catalog.Open(cfg.CatalogPath)
		if err != nil {
			logger.Error("failed to open catalog", "error", err)
			return 1
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("catalog close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithRecorder(store))
		logger.Info("run catalog enabled", "path", cfg.CatalogPath)
	}
	if cfg.QuicklookDir != "" {
		opts = append(opts, pipeline.WithPreviewer(quicklook.NewRenderer(cfg.QuicklookDir, logger)))
		logger.Info("quicklook previews enabled", "dir", cfg.QuicklookDir)
	}

	p := pipeline.New(walker, reader, transformer, loader, pipeline.Settings{
		BasePath:      cfg.BasePath,
		OutputDir:     cfg.OutputDir,
		SkipUnlabeled: cfg.SkipUnlabeled,
	}, logger, metrics, opts...)

	if _, err := p.Run(ctx); err != nil {
		return 1
	}
	return 0
}
