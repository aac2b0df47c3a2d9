package model

import "math/rand"

// LinearWeights is a dense affine transform: y = x·Weight + Bias.
type LinearWeights struct {
	Weight [][]float64 // [in][out]
	Bias   []float64   // [out]
}

// NormWeights is an elementwise affine applied after layer-norm's
// standardization step.
type NormWeights struct {
	Weight []float64
	Bias   []float64
}

// HeadProjection is one head's Q, K or V projection. PAT's non-standard
// attention gives every head its own full EmbedDim x HeadDim matrix rather
// than a slice of one shared projection.
type HeadProjection struct {
	Weight [][]float64 // [embedDim][headDim]
	Bias   []float64   // [headDim]
}

// AttentionWeights holds per-head Q/K/V projections plus the shared output
// projection that maps the concatenated per-head outputs back to EmbedDim.
type AttentionWeights struct {
	Q, K, V    []HeadProjection
	OutputProj LinearWeights // [heads*headDim][embedDim]
}

// EncoderLayer is one post-norm residual-attention + residual-FFN block.
type EncoderLayer struct {
	Attention AttentionWeights
	Norm1     NormWeights
	FF1       LinearWeights // [embedDim][ffDim]
	FF2       LinearWeights // [ffDim][embedDim]
	Norm2     NormWeights
}

// PatchEmbedding projects a raw patch vector into embedding space.
type PatchEmbedding struct {
	Weight [][]float64 // [patchSize][embedDim]
	Bias   []float64   // [embedDim]
}

// ClassificationHead produces the 18 raw logits from the pooled embedding.
type ClassificationHead struct {
	Norm NormWeights
	FC1  LinearWeights // [embedDim][48]
	FC2  LinearWeights // [48][ClassificationLogits]
}

// Weights is the full set of learned parameters for one Config.
type Weights struct {
	PatchEmbedding PatchEmbedding
	Layers         []EncoderLayer
	Head           ClassificationHead
}

func zeros2D(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
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

func onesVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// RandomInit builds a deterministic (fixed-seed) random parameter set for a
// Config. It is used whenever no pretrained weights are available or
// integrity verification fails — the model must still be able to run, with
// a prominent "not verified" flag set by the caller.
func RandomInit(cfg Config, seed int64) Weights {
	rng := rand.New(rand.NewSource(seed))
	const initScale = 0.02

	w := Weights{
		PatchEmbedding: PatchEmbedding{
			Weight: randMatrix(rng, cfg.PatchSize, cfg.EmbedDim, initScale),
			Bias:   make([]float64, cfg.EmbedDim),
		},
	}

	headDim := cfg.HeadDim()
	for l := 0; l < cfg.Layers; l++ {
		layer := EncoderLayer{
			Norm1: NormWeights{Weight: onesVector(cfg.EmbedDim), Bias: make([]float64, cfg.EmbedDim)},
			Norm2: NormWeights{Weight: onesVector(cfg.EmbedDim), Bias: make([]float64, cfg.EmbedDim)},
			FF1: LinearWeights{
				Weight: randMatrix(rng, cfg.EmbedDim, cfg.FFDim, initScale),
				Bias:   make([]float64, cfg.FFDim),
			},
			FF2: LinearWeights{
				Weight: randMatrix(rng, cfg.FFDim, cfg.EmbedDim, initScale),
				Bias:   make([]float64, cfg.EmbedDim),
			},
		}
		for h := 0; h < cfg.Heads; h++ {
			layer.Attention.Q = append(layer.Attention.Q, HeadProjection{
				Weight: randMatrix(rng, cfg.EmbedDim, headDim, initScale),
				Bias:   randVector(rng, headDim, initScale),
			})
			layer.Attention.K = append(layer.Attention.K, HeadProjection{
				Weight: randMatrix(rng, cfg.EmbedDim, headDim, initScale),
				Bias:   randVector(rng, headDim, initScale),
			})
			layer.Attention.V = append(layer.Attention.V, HeadProjection{
				Weight: randMatrix(rng, cfg.EmbedDim, headDim, initScale),
				Bias:   randVector(rng, headDim, initScale),
			})
		}
		layer.Attention.OutputProj = LinearWeights{
			Weight: randMatrix(rng, cfg.Heads*headDim, cfg.EmbedDim, initScale),
			Bias:   make([]float64, cfg.EmbedDim),
		}
		w.Layers = append(w.Layers, layer)
	}

	w.Head = ClassificationHead{
		Norm: NormWeights{Weight: onesVector(cfg.EmbedDim), Bias: make([]float64, cfg.EmbedDim)},
		FC1: LinearWeights{
			Weight: randMatrix(rng, cfg.EmbedDim, 48, initScale),
			Bias:   make([]float64, 48),
		},
		FC2: LinearWeights{
			Weight: randMatrix(rng, 48, ClassificationLogits, initScale),
			Bias:   make([]float64, ClassificationLogits),
		},
	}
	return w
}
