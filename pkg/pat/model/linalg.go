package model

import "math"

// matmul computes x (rows x inner) · w (inner x cols) + bias.
func matmul(x [][]float64, w [][]float64, bias []float64) [][]float64 {
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

func addInPlace(a, b [][]float64) {
	for i := range a {
		for j := range a[i] {
			a[i][j] += b[i][j]
		}
	}
}

func relu(x [][]float64) [][]float64 {
	out := zeros2D(len(x), len(x[0]))
	for i := range x {
		for j := range x[i] {
			v := x[i][j]
			if v < 0 {
				v = 0
			}
			out[i][j] = v
		}
	}
	return out
}

// layerNorm standardizes each row then applies an elementwise affine.
func layerNorm(x [][]float64, w NormWeights) [][]float64 {
	const eps = 1e-5
	rows, cols := len(x), 0
	if rows > 0 {
		cols = len(x[0])
	}
	out := zeros2D(rows, cols)
	for i := 0; i < rows; i++ {
		var mean float64
		for j := 0; j < cols; j++ {
			mean += x[i][j]
		}
		mean /= float64(cols)
		var variance float64
		for j := 0; j < cols; j++ {
			d := x[i][j] - mean
			variance += d * d
		}
		variance /= float64(cols)
		invStd := 1.0 / math.Sqrt(variance+eps)
		for j := 0; j < cols; j++ {
			out[i][j] = (x[i][j]-mean)*invStd*w.Weight[j] + w.Bias[j]
		}
	}
	return out
}

// softmaxRows applies softmax along each row in place.
func softmaxRows(x [][]float64) {
	for i := range x {
		row := x[i]
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

func transpose(x [][]float64) [][]float64 {
	rows := len(x)
	if rows == 0 {
		return nil
	}
	cols := len(x[0])
	out := zeros2D(cols, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j][i] = x[i][j]
		}
	}
	return out
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}
