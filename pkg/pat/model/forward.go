package model

import "math"

// Model is a loaded PAT instance: a fixed Config and its Weights. Inference
// runs with dropout disabled: identical inputs
// always produce bitwise-identical outputs.
type Model struct {
	Config          Config
	Weights         Weights
	WeightsVerified bool
}

// New wraps an already-resolved Config/Weights pair (produced by the
// foreign-weight loader or RandomInit) into an inference-ready Model.
func New(cfg Config, w Weights, verified bool) *Model {
	return &Model{Config: cfg, Weights: w, WeightsVerified: verified}
}

// Output is the raw forward-pass result before clinical postprocessing.
type Output struct {
	Embedding [EmbeddingDim]float64
	Logits    [ClassificationLogits]float64
}

// Infer runs the full patch-embed → transformer → mean-pool → classification
// head pipeline on one week-long actigraphy sequence.
func (m *Model) Infer(sequence []float64) (Output, error) {
	cfg := m.Config
	if len(sequence) != cfg.InputLen {
		return Output{}, errInputLength(len(sequence), cfg.InputLen)
	}

	patches := toPatches(sequence, cfg.PatchSize)
	z := matmul(patches, m.Weights.PatchEmbedding.Weight, m.Weights.PatchEmbedding.Bias)
	addInPlace(z, positionalEncoding(len(patches), cfg.EmbedDim))

	for _, layer := range m.Weights.Layers {
		attnOut := multiHeadAttention(z, layer.Attention, cfg)
		addInPlace(attnOut, z) // residual
		z = layerNorm(attnOut, layer.Norm1)

		ffnOut := feedForward(z, layer.FF1, layer.FF2)
		addInPlace(ffnOut, z) // residual
		z = layerNorm(ffnOut, layer.Norm2)
	}

	pooled := meanPool(z)

	var out Output
	copy(out.Embedding[:], pooled)

	logits := classify(pooled, m.Weights.Head)
	copy(out.Logits[:], logits)
	return out, nil
}

type inputLengthError struct{ got, want int }

func (e inputLengthError) Error() string {
	return "pat: actigraphy sequence length mismatch"
}

func errInputLength(got, want int) error {
	return inputLengthError{got: got, want: want}
}

// toPatches reshapes a flat [InputLen] sequence into [numPatches][patchSize].
func toPatches(sequence []float64, patchSize int) [][]float64 {
	numPatches := len(sequence) / patchSize
	out := make([][]float64, numPatches)
	for p := 0; p < numPatches; p++ {
		out[p] = append([]float64(nil), sequence[p*patchSize:(p+1)*patchSize]...)
	}
	return out
}

// positionalEncoding is the standard sinusoidal scheme: even dims get sin,
// odd dims get cos, at geometrically decreasing frequencies.
func positionalEncoding(seqLen, dim int) [][]float64 {
	pe := zeros2D(seqLen, dim)
	for pos := 0; pos < seqLen; pos++ {
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

// multiHeadAttention implements non-standard attention: every
// head gets a full EmbedDim x HeadDim projection (HeadDim == EmbedDim here),
// not a slice of one shared projection.
func multiHeadAttention(z [][]float64, w AttentionWeights, cfg Config) [][]float64 {
	headDim := cfg.HeadDim()
	scale := 1.0 / math.Sqrt(float64(headDim))

	seqLen := len(z)
	concat := zeros2D(seqLen, cfg.Heads*headDim)

	for h := 0; h < cfg.Heads; h++ {
		q := matmul(z, w.Q[h].Weight, w.Q[h].Bias)
		k := matmul(z, w.K[h].Weight, w.K[h].Bias)
		v := matmul(z, w.V[h].Weight, w.V[h].Bias)

		scores := matmul(q, transpose(k), nil)
		for i := range scores {
			for j := range scores[i] {
				scores[i][j] *= scale
			}
		}
		softmaxRows(scores)

		headOut := matmul(scores, v, nil)
		for i := 0; i < seqLen; i++ {
			copy(concat[i][h*headDim:(h+1)*headDim], headOut[i])
		}
	}

	return matmul(concat, w.OutputProj.Weight, w.OutputProj.Bias)
}

func feedForward(z [][]float64, ff1, ff2 LinearWeights) [][]float64 {
	hidden := matmul(z, ff1.Weight, ff1.Bias)
	hidden = relu(hidden)
	return matmul(hidden, ff2.Weight, ff2.Bias)
}

// meanPool averages over the patch (sequence) dimension, producing the
// user-facing embedding.
func meanPool(z [][]float64) []float64 {
	if len(z) == 0 {
		return nil
	}
	dim := len(z[0])
	out := make([]float64, dim)
	for _, row := range z {
		for j, v := range row {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(z))
	}
	return out
}

// classify runs the classification head: LayerNorm → Linear(96→48) → ReLU →
// Linear(48→18), then sigmoid (dropout is a no-op at inference).
func classify(pooled []float64, head ClassificationHead) []float64 {
	row := [][]float64{pooled}
	normed := layerNorm(row, head.Norm)
	hidden := matmul(normed, head.FC1.Weight, head.FC1.Bias)
	hidden = relu(hidden)
	logits := matmul(hidden, head.FC2.Weight, head.FC2.Bias)

	out := make([]float64, len(logits[0]))
	for i, v := range logits[0] {
		out[i] = sigmoid(v)
	}
	return out
}
