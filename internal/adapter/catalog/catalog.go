// Package catalog records run summaries in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	_ "modernc.org/sqlite"
)

// schema.sql creates the runs, samples and layers tables.
//
//go:embed schema.sql
var schemaSQL string

// ErrNoRuns is returned by LatestRun on an empty catalog.
var ErrNoRuns = errors.New("no runs recorded")

// Store is a run catalog backed by SQLite.
// It implements pipeline.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores the run, its samples and their layer statistics in one transaction.
func (s *Store) RecordRun(ctx context.Context, run domain.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	featureShape, err := json.Marshal(run.FeatureShape)
	if err != nil {
		return fmt.Errorf("encode feature shape: %w", err)
	}
	var labelShape sql.NullString
	if run.LabelShape != nil {
		b, err := json.Marshal(run.LabelShape)
		if err != nil {
			return fmt.Errorf("encode label shape: %w", err)
		}
		labelShape = sql.NullString{String: string(b), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, base_path, output_dir, started_at, finished_at, feature_shape, label_shape, aligned, sample_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BasePath, run.OutputDir,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(featureShape), labelShape, run.Aligned, len(run.Samples),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, sample := range run.Samples {
		var counts sql.NullString
		if sample.ClassCounts != nil {
			b, err := json.Marshal(sample.ClassCounts)
			if err != nil {
				return fmt.Errorf("encode class counts: %w", err)
			}
			counts = sql.NullString{String: string(b), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO samples (run_id, position, name, rows, cols, channels, labeled, class_counts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, sample.Position, sample.Name, sample.Rows, sample.Cols, sample.Channels, sample.Labeled, counts,
		)
		if err != nil {
			return fmt.Errorf("insert sample %s: %w", sample.Name, err)
		}

		for channel, st := range sample.Stats {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO layers (run_id, sample_position, channel, name, source, mean, std_dev, min_value, max_value, nonfinite, sanitized, zero_variance)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, sample.Position, channel, st.Name, st.Source, finite(st.Mean), finite(st.StdDev),
				finite(st.Min), finite(st.Max), st.NonFinite, st.Sanitized, st.ZeroVariance,
			)
			if err != nil {
				return fmt.Errorf("insert layer %s: %w", st.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog transaction: %w", err)
	}
	return nil
}

// LatestRun loads the most recently finished run with its samples and layer statistics.
func (s *Store) LatestRun(ctx context.Context) (domain.RunSummary, error) {
	var (
		run                   domain.RunSummary
		startedAt, finishedAt string
		featureShape          string
		labelShape            sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, base_path, output_dir, started_at, finished_at, feature_shape, label_shape, aligned
		FROM runs ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.BasePath, &run.OutputDir, &startedAt, &finishedAt, &featureShape, &labelShape, &run.Aligned)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunSummary{}, ErrNoRuns
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("query latest run: %w", err)
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return domain.RunSummary{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return domain.RunSummary{}, fmt.Errorf("parse finished_at: %w", err)
	}
	if err := json.Unmarshal([]byte(featureShape), &run.FeatureShape); err != nil {
		return domain.RunSummary{}, fmt.Errorf("decode feature shape: %w", err)
	}
	if labelShape.Valid {
		if err := json.Unmarshal([]byte(labelShape.String), &run.LabelShape); err != nil {
			return domain.RunSummary{}, fmt.Errorf("decode label shape: %w", err)
		}
	}

	if run.Samples, err = s.samples(ctx, run.ID); err != nil {
		return domain.RunSummary{}, err
	}
	return run, nil
}

func (s *Store) samples(ctx context.Context, runID string) ([]domain.SampleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, name, rows, cols, channels, labeled, class_counts
		FROM samples WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []domain.SampleSummary
	for rows.Next() {
		var (
			sample domain.SampleSummary
			counts sql.NullString
		)
		if err := rows.Scan(&sample.Position, &sample.Name, &sample.Rows, &sample.Cols, &sample.Channels, &sample.Labeled, &counts); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if counts.Valid {
			if err := json.Unmarshal([]byte(counts.String), &sample.ClassCounts); err != nil {
				return nil, fmt.Errorf("decode class counts: %w", err)
			}
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	rows.Close()

	for i := range samples {
		if samples[i].Stats, err = s.layers(ctx, runID, samples[i].Position); err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func (s *Store) layers(ctx context.Context, runID string, position int) ([]domain.LayerStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, source, mean, std_dev, min_value, max_value, nonfinite, sanitized, zero_variance
		FROM layers WHERE run_id = ? AND sample_position = ? ORDER BY channel`, runID, position)
	if err != nil {
		return nil, fmt.Errorf("query layers: %w", err)
	}
	defer rows.Close()

	var stats []domain.LayerStats
	for rows.Next() {
		var (
			st                  domain.LayerStats
			mean, std, min, max sql.NullFloat64
		)
		if err := rows.Scan(&st.Name, &st.Source, &mean, &std, &min, &max, &st.NonFinite, &st.Sanitized, &st.ZeroVariance); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		st.Mean = nullOrNaN(mean)
		st.StdDev = nullOrNaN(std)
		st.Min = nullOrNaN(min)
		st.Max = nullOrNaN(max)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate layers: %w", err)
	}
	return stats, nil
}

// finite maps NaN and Inf to NULL; SQLite has no representation for NaN.
func finite(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
