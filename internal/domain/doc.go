// Package domain models radiance feature tensors and ground-truth label grids
// built from satellite imagery samples.
//
// # Data Source
//
// Each sample is one directory of co-registered NetCDF files produced by the
// imagery export step. Radiance channels arrive one file per channel, named
// "S<n>_radiance_in.nc" and holding a variable whose name contains
// "radiance_in". All channels of a sample share the (rows, columns) grid of the
// instrument swath.
//
// # Label Conventions
//
// Ground truth comes as binary masks, one file per class, in a fixed order:
//
//	ice_labels.nc    -> class 1 (ice)
//	clear_labels.nc  -> class 2 (clear)
//	cloud_labels.nc  -> class 3 (cloud)
//
// A cell whose mask value equals 1 takes the class index of that file. Masks
// are applied in order, so a later mask overwrites an earlier one where they
// overlap. Cells covered by no mask keep class 0 (unlabeled / background).
// A sample only carries labels when all mask files are present.
//
// # Normalization
//
// Every channel is normalized on its own:
//
//	standardize:  z = (x - mean) / std      (std uses the N-1 estimator)
//	minmax:       standardize, then (z - min(z)) / (max(z) - min(z))
//
// NaN and ±Inf values (fill pixels decoded by the reader) are replaced by 0
// before the statistics are taken unless sanitization is disabled, in which
// case they poison the channel statistics and propagate into the output.
//
// A constant channel has std = 0 and cannot be standardized. That condition
// is reported as [ErrZeroVariance]; the zero-variance policy decides whether
// the run aborts or the channel is filled with zeros.
//
// # Output Layout
//
// Feature tensors are (rows, cols, channels) float32, row-major with the
// channel axis fastest. Stacks add a leading sample axis:
//
//	features: (samples, rows, cols, channels)  float32
//	labels:   (samples, rows, cols)            int64
package domain
