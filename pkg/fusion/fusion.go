// Package fusion combines per-modality feature vectors produced by
// pkg/processor into a single fused embedding via a small
// attention-over-modalities combiner.
package fusion

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/clarity-digital-twin/clarity-backend/pkg/router"
)

// legacyEmbeddingDim is the dimension some older clients still emit for the
// sleep modality's fusion vector. It is truncated to the native 8-wide sleep
// vector rather than rejected.
const legacyEmbeddingDim = 128

// Service is a process-wide fusion combiner. Its weights are initialized
// lazily, the first time each modality dimension is observed, and held for
// the lifetime of the service.
type Service struct {
	mu   sync.Mutex
	rng  *rand.Rand
	w    weights
	warn func(modality router.Modality, gotDim, wantDim int)
}

// New builds a Service with a fixed seed, so that within one process
// lifetime repeated Fuse calls over the same modality set are deterministic
// (the weights themselves are never re-rolled once created).
func New(seed int64) *Service {
	return &Service{
		rng: rand.New(rand.NewSource(seed)),
		w:   weights{modalityProj: make(map[string]linear)},
		warn: func(router.Modality, int, int) {},
	}
}

// OnDimensionWarning installs a callback invoked whenever a sleep vector
// arrives at the legacy 128 length and is truncated — used by the caller to surface the legacy-dimension warning via structured
// logging without fusion depending on a logger directly.
func (s *Service) OnDimensionWarning(fn func(modality router.Modality, gotDim, wantDim int)) {
	s.warn = fn
}

// Fuse combines the present modality vectors into one fused vector
//. Returns (nil, nil) when no modality is present — callers
// must not write an analysis result in that case.
func (s *Service) Fuse(vectors map[router.Modality][]float64) ([]float64, error) {
	present := presentModalities(vectors)
	if len(present) == 0 {
		return nil, nil
	}
	if len(present) == 1 {
		only := vectors[present[0]]
		out := make([]float64, len(only))
		copy(out, only)
		return out, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stacked := zeros2D(len(present), CommonDim)
	for i, m := range present {
		vec := normalizeDim(s, m, vectors[m])
		proj := s.projectionFor(m, len(vec))
		row := matmul([][]float64{vec}, proj.Weight, proj.Bias)
		stacked[i] = row[0]
	}

	if !s.w.initialized {
		s.w.attention = newAttentionBlock(s.rng)
		s.w.outputProj = newOutputProjection(s.rng)
		s.w.initialized = true
	}

	addInPlace(stacked, sinusoidalEncoding(len(present), CommonDim))
	attended := attend(stacked, s.w.attention)
	pooled := meanPool(attended)

	out := matmul([][]float64{pooled}, s.w.outputProj.Weight, s.w.outputProj.Bias)
	return out[0], nil
}

func presentModalities(vectors map[router.Modality][]float64) []router.Modality {
	var present []router.Modality
	for _, m := range router.Order {
		if len(vectors[m]) > 0 {
			present = append(present, m)
		}
	}
	return present
}

// normalizeDim handles the sleep modality's legacy 128-length vectors: warn
// and truncate to the first 8 entries rather than rejecting. Every other
// vector is returned unchanged.
func normalizeDim(s *Service, m router.Modality, vec []float64) []float64 {
	if m != router.Sleep || len(vec) != legacyEmbeddingDim {
		return vec
	}
	const nativeSleepDim = 8
	s.warn(m, len(vec), nativeSleepDim)
	out := make([]float64, nativeSleepDim)
	copy(out, vec[:8])
	return out
}

func (s *Service) projectionFor(m router.Modality, dim int) linear {
	key := fmt.Sprintf("%s:%d", m, dim)
	if p, ok := s.w.modalityProj[key]; ok {
		return p
	}
	p := newModalityProjection(s.rng, dim)
	s.w.modalityProj[key] = p
	return p
}

// attend runs one standard (even-split) multi-head self-attention block
// over the stacked modality matrix.
func attend(z [][]float64, w attentionWeights) [][]float64 {
	heads := len(w.Q)
	headDim := 0
	if heads > 0 {
		headDim = len(w.Q[0].Weight[0])
	}
	scale := 1.0 / math.Sqrt(float64(headDim))

	seqLen := len(z)
	concat := zeros2D(seqLen, heads*headDim)

	for h := 0; h < heads; h++ {
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

	out := matmul(concat, w.OutputProj.Weight, w.OutputProj.Bias)
	addInPlace(out, z) // residual, mirroring the encoder's post-norm-free small combiner
	return out
}
