package fusion

import "math/rand"

// CommonDim is the shared projection dimension every modality vector is
// mapped into before attention.
const CommonDim = 64

// FusedDim is the output dimensionality of the fused vector. Kept equal to
// the PAT embedding's canonical dimension (pkg/pat/model.EmbeddingDim) so
// every feature vector downstream of inference shares one width.
const FusedDim = 96

// AttentionHeads splits CommonDim using the standard even-slice convention.
// Unlike PAT's full-width-per-head attention, the fusion combiner uses the
// simpler, conventional per-head split.
const AttentionHeads = 4

type linear struct {
	Weight [][]float64
	Bias   []float64
}

type norm struct {
	Weight []float64
	Bias   []float64
}

type headProjection struct {
	Weight [][]float64
	Bias   []float64
}

type attentionWeights struct {
	Q, K, V    []headProjection
	OutputProj linear
}

// weights holds the lazily-initialized fusion network: one per-modality
// input projection plus a single shared attention block and output
// projection. Never loaded from pretrained files.
type weights struct {
	modalityProj map[string]linear // keyed by "<modality>:<inputDim>"
	attention    attentionWeights
	outputProj   linear
	initialized  bool
}

func randMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	m := zeros2D(rows, cols)
	for i := range m {
		for j := range m[i] {
			m[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	return m
}

func randVector(rng *rand.Rand, n int, scale float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * scale
	}
	return v
}

func newModalityProjection(rng *rand.Rand, inputDim int) linear {
	const scale = 0.05
	return linear{
		Weight: randMatrix(rng, inputDim, CommonDim, scale),
		Bias:   make([]float64, CommonDim),
	}
}

func newAttentionBlock(rng *rand.Rand) attentionWeights {
	const scale = 0.05
	headDim := CommonDim / AttentionHeads
	var attn attentionWeights
	for h := 0; h < AttentionHeads; h++ {
		attn.Q = append(attn.Q, headProjection{Weight: randMatrix(rng, CommonDim, headDim, scale), Bias: make([]float64, headDim)})
		attn.K = append(attn.K, headProjection{Weight: randMatrix(rng, CommonDim, headDim, scale), Bias: make([]float64, headDim)})
		attn.V = append(attn.V, headProjection{Weight: randMatrix(rng, CommonDim, headDim, scale), Bias: make([]float64, headDim)})
	}
	attn.OutputProj = linear{
		Weight: randMatrix(rng, AttentionHeads*headDim, CommonDim, scale),
		Bias:   make([]float64, CommonDim),
	}
	return attn
}

func newOutputProjection(rng *rand.Rand) linear {
	const scale = 0.05
	return linear{
		Weight: randMatrix(rng, CommonDim, FusedDim, scale),
		Bias:   make([]float64, FusedDim),
	}
}
