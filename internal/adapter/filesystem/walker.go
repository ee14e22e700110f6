// Package filesystem discovers sample directories under a base path.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
)

// ErrNoRadianceFiles is returned when a sample directory holds no file
// matching the radiance glob.
var ErrNoRadianceFiles = errors.New("no radiance files")

// Walker lists sample directories.
// It implements pipeline.SampleLister.
type Walker struct {
	basePath     string
	radianceGlob string
	labelFiles   []string
	logger       *slog.Logger
}

// NewWalker creates a Walker over the immediate subdirectories of basePath.
func NewWalker(basePath, radianceGlob string, labelFiles []string, logger *slog.Logger) *Walker {
	return &Walker{
		basePath:     basePath,
		radianceGlob: radianceGlob,
		labelFiles:   labelFiles,
		logger:       logger,
	}
}

// List returns one SampleRef per subdirectory, sorted by directory name.
// Label paths are set only when every label file is present.
func (w *Walker) List(ctx context.Context) ([]domain.SampleRef, error) {
	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}

	var refs []domain.SampleRef
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		ref, err := w.sample(entry.Name())
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (w *Walker) sample(name string) (domain.SampleRef, error) {
	dir := filepath.Join(w.basePath, name)

	radiance, err := filepath.Glob(filepath.Join(dir, w.radianceGlob))
	if err != nil {
		return domain.SampleRef{}, fmt.Errorf("match radiance files in %s: %w", dir, err)
	}
	if len(radiance) == 0 {
		return domain.SampleRef{}, fmt.Errorf("%w: %s matches nothing in %s", ErrNoRadianceFiles, w.radianceGlob, dir)
	}
	sort.Strings(radiance)

	ref := domain.SampleRef{Name: name, Dir: dir, RadiancePaths: radiance}

	var labels, missing []string
	for _, file := range w.labelFiles {
		path := filepath.Join(dir, file)
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			labels = append(labels, path)
		case err == nil || errors.Is(err, os.ErrNotExist):
			missing = append(missing, file)
		default:
			return domain.SampleRef{}, fmt.Errorf("stat label file: %w", err)
		}
	}

	switch {
	case len(missing) == 0:
		ref.LabelPaths = labels
	case len(labels) > 0:
		w.logger.Warn("incomplete label set ignored",
			"sample", name,
			"missing", missing,
		)
	default:
		w.logger.Debug("sample has no labels", "sample", name)
	}

	return ref, nil
}
