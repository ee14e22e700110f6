package domain

// CombineLabels collapses binary masks into one class grid. The mask at
// position i marks class i+1 wherever its value equals 1; later masks
// overwrite earlier ones. Every mask must be (rows, cols).
func CombineLabels(masks []Layer, rows, cols int) (LabelGrid, error) {
	out := LabelGrid{Rows: rows, Cols: cols, Classes: make([]int64, rows*cols)}

	for idx, mask := range masks {
		if !mask.Grid.SameShape(rows, cols) {
			return LabelGrid{}, shapeError(labelSource(mask), mask.Grid.Rows, mask.Grid.Cols, rows, cols)
		}
		class := int64(idx + 1)
		for i, v := range mask.Grid.Values {
			if v == 1 {
				out.Classes[i] = class
			}
		}
	}

	return out, nil
}

// ClassCounts tallies cells per class.
func ClassCounts(labels LabelGrid) map[int64]int {
	counts := make(map[int64]int)
	for _, c := range labels.Classes {
		counts[c]++
	}
	return counts
}

func labelSource(mask Layer) string {
	if mask.Source != "" {
		return "label " + mask.Source
	}
	return "label " + mask.Name
}
