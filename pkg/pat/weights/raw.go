// Package weights implements the foreign pretrained-weight loader.
// Weights ship in a nested-group tensor dump using a naming convention
// copied from the upstream PAT release — a flat map of
// slash-separated tensor names to shape + row-major float data.
package weights

import (
	"encoding/json"
	"fmt"
	"io"
)

// RawTensor is one named tensor exactly as it appears in the foreign dump:
// row-major float64 data plus its shape.
type RawTensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// RawDump is the full foreign file: tensor name -> tensor.
type RawDump map[string]RawTensor

func decodeDump(r io.Reader) (RawDump, error) {
	var dump RawDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("weights: decode tensor dump: %w", err)
	}
	return dump, nil
}

func (t RawTensor) as2D() ([][]float64, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("weights: expected rank-2 tensor, got shape %v", t.Shape)
	}
	return reshape2D(t.Data, t.Shape[0], t.Shape[1]), nil
}

func (t RawTensor) as1D() ([]float64, error) {
	if len(t.Shape) != 1 {
		return nil, fmt.Errorf("weights: expected rank-1 tensor, got shape %v", t.Shape)
	}
	out := make([]float64, len(t.Data))
	copy(out, t.Data)
	return out, nil
}

func reshape2D(data []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = append([]float64(nil), data[i*cols:(i+1)*cols]...)
	}
	return out
}

// reshape3D views flat row-major data as [d0][d1][d2].
func reshape3D(data []float64, d0, d1, d2 int) [][][]float64 {
	out := make([][][]float64, d0)
	stride0 := d1 * d2
	for i := 0; i < d0; i++ {
		out[i] = reshape2D(data[i*stride0:(i+1)*stride0], d1, d2)
	}
	return out
}

// sliceMiddleAxis extracts t[:, h, :] from a [d0][d1][d2] tensor, producing a
// [d0][d2] matrix for head h.
func sliceMiddleAxis(t [][][]float64, h int) [][]float64 {
	d0 := len(t)
	out := make([][]float64, d0)
	for i := 0; i < d0; i++ {
		out[i] = append([]float64(nil), t[i][h]...)
	}
	return out
}

// sliceFirstAxis extracts t[h, :, :] from a [d0][d1][d2] tensor.
func sliceFirstAxis(t [][][]float64, h int) [][]float64 {
	out := make([][]float64, len(t[h]))
	for i, row := range t[h] {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// flattenFirstTwoAxes reshapes a [d0][d1][d2] tensor into [d0*d1][d2] by
// concatenating rows across the first two axes, matching the foreign
// format's attention_output kernel layout.
func flattenFirstTwoAxes(t [][][]float64) [][]float64 {
	var out [][]float64
	for _, plane := range t {
		out = append(out, plane...)
	}
	return out
}

func transpose2D(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	rows, cols := len(m), len(m[0])
	out := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = make([]float64, rows)
		for i := 0; i < rows; i++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}
