package fusion

import "math"

func zeros2D(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func matmul(x, w [][]float64, bias []float64) [][]float64 {
	rows := len(x)
	inner := len(w)
	cols := 0
	if inner > 0 {
		cols = len(w[0])
	}
	out := zeros2D(rows, cols)
	for i := 0; i < rows; i++ {
		for k := 0; k < inner; k++ {
			xv := x[i][k]
			if xv == 0 {
				continue
			}
			wr := w[k]
			for j := 0; j < cols; j++ {
				out[i][j] += xv * wr[j]
			}
		}
		if bias != nil {
			for j := 0; j < cols; j++ {
				out[i][j] += bias[j]
			}
		}
	}
	return out
}

func transpose(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return nil
	}
	rows, cols := len(x), len(x[0])
	out := zeros2D(cols, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j][i] = x[i][j]
		}
	}
	return out
}

func softmaxRows(x [][]float64) {
	for i := range x {
		row := x[i]
		if len(row) == 0 {
			continue
		}
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(v - max)
			row[j] = e
			sum += e
		}
		for j := range row {
			row[j] /= sum
		}
	}
}

func meanPool(x [][]float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	dim := len(x[0])
	out := make([]float64, dim)
	for _, row := range x {
		for j, v := range row {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(x))
	}
	return out
}

// sinusoidalEncoding mirrors the standard transformer scheme used for PAT's
// patch positions, reused here over the fixed modality order
// instead of time steps.
func sinusoidalEncoding(positions, dim int) [][]float64 {
	pe := zeros2D(positions, dim)
	for pos := 0; pos < positions; pos++ {
		for i := 0; i < dim; i += 2 {
			freq := math.Pow(10000, float64(i)/float64(dim))
			angle := float64(pos) / freq
			pe[pos][i] = math.Sin(angle)
			if i+1 < dim {
				pe[pos][i+1] = math.Cos(angle)
			}
		}
	}
	return pe
}

func addInPlace(a, b [][]float64) {
	for i := range a {
		for j := range a[i] {
			a[i][j] += b[i][j]
		}
	}
}
