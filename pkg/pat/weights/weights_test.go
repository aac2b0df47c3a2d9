package weights_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/pat/weights"
)

func expectedDigest(fileBytes, sigKey []byte) string {
	sum := sha256.Sum256(fileBytes)
	hexDigest := hex.EncodeToString(sum[:])
	mac := hmac.New(sha256.New, sigKey)
	mac.Write([]byte(hexDigest))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("VerifyIntegrity", func() {
	It("accepts a digest matching the expected table", func() {
		data := []byte(`{"fake":"dump"}`)
		key := []byte("signature-key")
		digest := expectedDigest(data, key)

		ok := weights.VerifyIntegrity(data, key, model.SizeMedium, weights.ExpectedDigests{
			model.SizeMedium: digest,
		})
		Expect(ok).To(BeTrue())
	})

	It("rejects a tampered file", func() {
		data := []byte(`{"fake":"dump"}`)
		key := []byte("signature-key")
		digest := expectedDigest(data, key)

		tampered := append(append([]byte(nil), data...), byte('x'))
		ok := weights.VerifyIntegrity(tampered, key, model.SizeMedium, weights.ExpectedDigests{
			model.SizeMedium: digest,
		})
		Expect(ok).To(BeFalse())
	})

	It("rejects a variant with no known-good digest", func() {
		ok := weights.VerifyIntegrity([]byte("x"), []byte("k"), model.SizeLarge, weights.ExpectedDigests{})
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("SanitizePath", func() {
	It("accepts a path within the allow-list", func() {
		dir, err := os.MkdirTemp("", "pat-weights")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(dir) })

		target := filepath.Join(dir, "model.json")
		resolved, accepted := weights.SanitizePath(target, []string{dir}, filepath.Join(dir, "fallback.json"))
		Expect(accepted).To(BeTrue())
		Expect(resolved).To(Equal(target))
	})

	It("falls back on a traversal attempt outside the allow-list", func() {
		dir, err := os.MkdirTemp("", "pat-weights")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(dir) })

		fallback := filepath.Join(dir, "fallback.json")
		resolved, accepted := weights.SanitizePath("/etc/passwd", []string{dir}, fallback)
		Expect(accepted).To(BeFalse())
		Expect(resolved).To(Equal(fallback))
	})
})

var _ = Describe("Translate", func() {
	// A minimal synthetic config: 1 layer, 2 heads, embed_dim 4, patch_size 2.
	cfg := model.Config{Layers: 1, Heads: 2, EmbedDim: 4, FFDim: 4, PatchSize: 2, InputLen: 4}

	buildDump := func() weights.RawDump {
		dump := weights.RawDump{
			"dense/dense/kernel:0": {Shape: []int{2, 4}, Data: make([]float64, 8)},
			"dense/dense/bias:0":   {Shape: []int{4}, Data: make([]float64, 4)},
		}
		prefix := "encoder_layer_1_transformer/encoder_layer_1_attention"
		for _, name := range []string{"query", "key", "value"} {
			dump[prefix+"/"+name+"/kernel:0"] = weights.RawTensor{Shape: []int{4, 2, 2}, Data: make([]float64, 16)}
			dump[prefix+"/"+name+"/bias:0"] = weights.RawTensor{Shape: []int{2, 2}, Data: make([]float64, 4)}
		}
		dump[prefix+"/attention_output/kernel:0"] = weights.RawTensor{Shape: []int{2, 2, 4}, Data: make([]float64, 16)}
		dump[prefix+"/attention_output/bias:0"] = weights.RawTensor{Shape: []int{4}, Data: make([]float64, 4)}
		dump["encoder_layer_1_ff1/kernel:0"] = weights.RawTensor{Shape: []int{4, 4}, Data: make([]float64, 16)}
		dump["encoder_layer_1_ff1/bias:0"] = weights.RawTensor{Shape: []int{4}, Data: make([]float64, 4)}
		dump["encoder_layer_1_ff2/kernel:0"] = weights.RawTensor{Shape: []int{4, 4}, Data: make([]float64, 16)}
		dump["encoder_layer_1_ff2/bias:0"] = weights.RawTensor{Shape: []int{4}, Data: make([]float64, 4)}
		dump["encoder_layer_1_norm1/gamma:0"] = weights.RawTensor{Shape: []int{4}, Data: []float64{1, 1, 1, 1}}
		dump["encoder_layer_1_norm1/beta:0"] = weights.RawTensor{Shape: []int{4}, Data: make([]float64, 4)}
		dump["encoder_layer_1_norm2/gamma:0"] = weights.RawTensor{Shape: []int{4}, Data: []float64{1, 1, 1, 1}}
		dump["encoder_layer_1_norm2/beta:0"] = weights.RawTensor{Shape: []int{4}, Data: make([]float64, 4)}
		return dump
	}

	It("translates every required tensor with no unexpected keys", func() {
		trunk, unexpected, err := weights.Translate(buildDump(), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(unexpected).To(BeEmpty())
		Expect(trunk.Layers).To(HaveLen(1))
		Expect(trunk.Layers[0].Attention.Q).To(HaveLen(2))
		Expect(trunk.Layers[0].Attention.OutputProj.Weight).To(HaveLen(4)) // heads*headDim
		Expect(trunk.Layers[0].Attention.OutputProj.Weight[0]).To(HaveLen(4))
	})

	It("reports unrecognized keys instead of failing", func() {
		dump := buildDump()
		dump["some_unknown_tensor:0"] = weights.RawTensor{Shape: []int{1}, Data: []float64{0}}
		_, unexpected, err := weights.Translate(dump, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(unexpected).To(ContainElement("some_unknown_tensor:0"))
	})

	It("errors on a missing required tensor", func() {
		dump := buildDump()
		delete(dump, "dense/dense/kernel:0")
		_, _, err := weights.Translate(dump, cfg)
		Expect(err).To(HaveOccurred())
	})
})
