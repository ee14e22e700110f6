// Package npy writes stacked arrays in NumPy's .npy format, version 1.0.
package npy

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
)

// Output file names written by Writer.
const (
	FeaturesFile = "preprocessed_data.npy"
	LabelsFile   = "labels.npy"
)

// Little-endian dtype descriptors.
const (
	DescrFloat32 = "<f4"
	DescrInt64   = "<i8"
)

var magic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y', 0x01, 0x00}

// headerUnit is the alignment of magic, header length and header dict together.
const headerUnit = 64

// Writer saves the stacked arrays as .npy files.
// It implements pipeline.Loader.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates an npy sink writing into dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Load writes preprocessed_data.npy and, when the batch has labels, labels.npy.
func (w *Writer) Load(_ context.Context, batch domain.Batch) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	featuresPath := filepath.Join(w.dir, FeaturesFile)
	if err := WriteFloat32(featuresPath, batch.Features.Shape(), batch.Features.Values); err != nil {
		return err
	}
	w.logger.Info("features saved", "path", featuresPath, "shape", batch.Features.Shape())

	if batch.Labels == nil {
		return nil
	}
	labelsPath := filepath.Join(w.dir, LabelsFile)
	if err := WriteInt64(labelsPath, batch.Labels.Shape(), batch.Labels.Values); err != nil {
		return err
	}
	w.logger.Info("labels saved", "path", labelsPath, "shape", batch.Labels.Shape())
	return nil
}

// WriteFloat32 writes data as a C-ordered <f4 array of the given shape.
func WriteFloat32(path string, shape []int, data []float32) error {
	return write(path, DescrFloat32, shape, data, len(data))
}

// WriteInt64 writes data as a C-ordered <i8 array of the given shape.
func WriteInt64(path string, shape []int, data []int64) error {
	return write(path, DescrInt64, shape, data, len(data))
}

func write(path, descr string, shape []int, data any, n int) error {
	want := 1
	for _, d := range shape {
		if d < 0 {
			return fmt.Errorf("write npy %s: negative dimension in shape %v", path, shape)
		}
		want *= d
	}
	if want != n {
		return fmt.Errorf("write npy %s: %d values, shape %v needs %d", path, n, shape, want)
	}

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create npy: %w", err)
	}
	bw := bufio.NewWriter(fh)
	if _, err := bw.Write(Header(descr, shape)); err != nil {
		fh.Close()
		return fmt.Errorf("write npy header %s: %w", path, err)
	}
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		fh.Close()
		return fmt.Errorf("write npy data %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		fh.Close()
		return fmt.Errorf("write npy data %s: %w", path, err)
	}
	return fh.Close()
}

// Header returns the magic string, header length and space-padded header dict,
// newline terminated and sized to a multiple of 64 bytes.
func Header(descr string, shape []int) []byte {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple(shape))

	const preamble = 10 // magic + uint16 header length
	total := preamble + len(dict) + 1
	if rem := total % headerUnit; rem != 0 {
		total += headerUnit - rem
	}
	headerLen := total - preamble

	out := make([]byte, 0, total)
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint16(out, uint16(headerLen))
	out = append(out, dict...)
	for len(out) < total-1 {
		out = append(out, ' ')
	}
	return append(out, '\n')
}

func shapeTuple(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
