package weights

import (
	"fmt"

	"github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
)

// Translate maps a RawDump's foreign tensor names onto model.Weights using
// the source checkpoint's naming convention. The classification head is
// never present in the dump (it is newly initialized per release) — the
// caller is responsible for filling it in, typically via model.RandomInit's
// head.
//
// unexpectedKeys lists dump entries that were never consumed; the caller
// should log and skip them rather than fail the load.
func Translate(dump RawDump, cfg model.Config) (trunk model.Weights, unexpectedKeys []string, err error) {
	used := make(map[string]bool, len(dump))

	take := func(key string) (RawTensor, bool) {
		t, ok := dump[key]
		if ok {
			used[key] = true
		}
		return t, ok
	}

	patchKernel, ok := take("dense/dense/kernel:0")
	if !ok {
		return model.Weights{}, nil, fmt.Errorf("weights: missing required key dense/dense/kernel:0")
	}
	patchWeight, err := patchKernel.as2D()
	if err != nil {
		return model.Weights{}, nil, err
	}
	// The foreign kernel ships as [patch_size, embed_dim], which is already
	// the [in][out] layout our matmul expects; no transpose needed here.
	patchBiasRaw, ok := take("dense/dense/bias:0")
	if !ok {
		return model.Weights{}, nil, fmt.Errorf("weights: missing required key dense/dense/bias:0")
	}
	patchBias, err := patchBiasRaw.as1D()
	if err != nil {
		return model.Weights{}, nil, err
	}

	trunk.PatchEmbedding = model.PatchEmbedding{Weight: patchWeight, Bias: patchBias}

	for i := 1; i <= cfg.Layers; i++ {
		layer, layerErr := translateLayer(dump, take, i, cfg)
		if layerErr != nil {
			return model.Weights{}, nil, layerErr
		}
		trunk.Layers = append(trunk.Layers, layer)
	}

	for key := range dump {
		if !used[key] {
			unexpectedKeys = append(unexpectedKeys, key)
		}
	}
	return trunk, unexpectedKeys, nil
}

func translateLayer(dump RawDump, take func(string) (RawTensor, bool), i int, cfg model.Config) (model.EncoderLayer, error) {
	prefix := fmt.Sprintf("encoder_layer_%d_transformer/encoder_layer_%d_attention", i, i)
	var layer model.EncoderLayer

	qkv, err := translateQKV(dump, take, prefix, cfg)
	if err != nil {
		return layer, err
	}
	layer.Attention = qkv

	outKernel, ok := take(prefix + "/attention_output/kernel:0")
	if !ok {
		return layer, fmt.Errorf("weights: missing %s/attention_output/kernel:0", prefix)
	}
	if len(outKernel.Shape) != 3 {
		return layer, fmt.Errorf("weights: attention_output/kernel:0 expected rank 3, got %v", outKernel.Shape)
	}
	heads, headDim, embedDim := outKernel.Shape[0], outKernel.Shape[1], outKernel.Shape[2]
	raw3D := reshape3D(outKernel.Data, heads, headDim, embedDim)
	// Foreign layout is already [heads][headDim][embedDim]; flattening the
	// first two axes gives exactly the [heads*headDim][embedDim] our output
	// projection expects.
	outWeight := flattenFirstTwoAxes(raw3D)

	outBiasRaw, ok := take(prefix + "/attention_output/bias:0")
	if !ok {
		return layer, fmt.Errorf("weights: missing %s/attention_output/bias:0", prefix)
	}
	outBias, err := outBiasRaw.as1D()
	if err != nil {
		return layer, err
	}
	layer.Attention.OutputProj = model.LinearWeights{Weight: outWeight, Bias: outBias}

	ff1, err := translateLinear(dump, take, fmt.Sprintf("encoder_layer_%d_ff1", i))
	if err != nil {
		return layer, err
	}
	layer.FF1 = ff1

	ff2, err := translateLinear(dump, take, fmt.Sprintf("encoder_layer_%d_ff2", i))
	if err != nil {
		return layer, err
	}
	layer.FF2 = ff2

	norm1, err := translateNorm(dump, take, fmt.Sprintf("encoder_layer_%d_norm1", i))
	if err != nil {
		return layer, err
	}
	layer.Norm1 = norm1

	norm2, err := translateNorm(dump, take, fmt.Sprintf("encoder_layer_%d_norm2", i))
	if err != nil {
		return layer, err
	}
	layer.Norm2 = norm2

	return layer, nil
}

func translateQKV(dump RawDump, take func(string) (RawTensor, bool), prefix string, cfg model.Config) (model.AttentionWeights, error) {
	var attn model.AttentionWeights

	for _, part := range []struct {
		name string
		dst  *[]model.HeadProjection
	}{
		{"query", &attn.Q},
		{"key", &attn.K},
		{"value", &attn.V},
	} {
		kernel, ok := take(fmt.Sprintf("%s/%s/kernel:0", prefix, part.name))
		if !ok {
			return attn, fmt.Errorf("weights: missing %s/%s/kernel:0", prefix, part.name)
		}
		if len(kernel.Shape) != 3 {
			return attn, fmt.Errorf("weights: %s/%s/kernel:0 expected rank 3, got %v", prefix, part.name, kernel.Shape)
		}
		embedDim, heads, headDim := kernel.Shape[0], kernel.Shape[1], kernel.Shape[2]
		raw3D := reshape3D(kernel.Data, embedDim, heads, headDim)

		biasRaw, ok := take(fmt.Sprintf("%s/%s/bias:0", prefix, part.name))
		if !ok {
			return attn, fmt.Errorf("weights: missing %s/%s/bias:0", prefix, part.name)
		}
		if len(biasRaw.Shape) != 2 {
			return attn, fmt.Errorf("weights: %s/%s/bias:0 expected rank 2, got %v", prefix, part.name, biasRaw.Shape)
		}
		bias2D := reshape2D(biasRaw.Data, biasRaw.Shape[0], biasRaw.Shape[1])

		heads_ := heads
		projections := make([]model.HeadProjection, heads_)
		for h := 0; h < heads_; h++ {
			// Slicing the middle axis of [embed_dim, heads, head_dim] at head h
			// yields [embed_dim][head_dim], already the layout HeadProjection
			// expects: no further transpose needed for our matmul convention.
			projections[h] = model.HeadProjection{
				Weight: sliceMiddleAxis(raw3D, h),
				Bias:   append([]float64(nil), bias2D[h]...),
			}
		}
		*part.dst = projections
	}

	return attn, nil
}

func translateLinear(dump RawDump, take func(string) (RawTensor, bool), prefix string) (model.LinearWeights, error) {
	kernel, ok := take(prefix + "/kernel:0")
	if !ok {
		return model.LinearWeights{}, fmt.Errorf("weights: missing %s/kernel:0", prefix)
	}
	weight, err := kernel.as2D()
	if err != nil {
		return model.LinearWeights{}, err
	}
	biasRaw, ok := take(prefix + "/bias:0")
	if !ok {
		return model.LinearWeights{}, fmt.Errorf("weights: missing %s/bias:0", prefix)
	}
	bias, err := biasRaw.as1D()
	if err != nil {
		return model.LinearWeights{}, err
	}
	return model.LinearWeights{Weight: weight, Bias: bias}, nil
}

func translateNorm(dump RawDump, take func(string) (RawTensor, bool), prefix string) (model.NormWeights, error) {
	gamma, ok := take(prefix + "/gamma:0")
	if !ok {
		return model.NormWeights{}, fmt.Errorf("weights: missing %s/gamma:0", prefix)
	}
	weight, err := gamma.as1D()
	if err != nil {
		return model.NormWeights{}, err
	}
	beta, ok := take(prefix + "/beta:0")
	if !ok {
		return model.NormWeights{}, fmt.Errorf("weights: missing %s/beta:0", prefix)
	}
	bias, err := beta.as1D()
	if err != nil {
		return model.NormWeights{}, err
	}
	return model.NormWeights{Weight: weight, Bias: bias}, nil
}
