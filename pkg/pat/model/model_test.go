package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
)

var _ = Describe("ConfigFor", func() {
	It("returns the exact small variant", func() {
		cfg := model.ConfigFor(model.SizeSmall)
		Expect(cfg.Layers).To(Equal(1))
		Expect(cfg.Heads).To(Equal(6))
		Expect(cfg.EmbedDim).To(Equal(model.EmbeddingDim))
		Expect(cfg.PatchSize).To(Equal(18))
	})

	It("falls back to medium for an unknown size", func() {
		cfg := model.ConfigFor(model.Size("bogus"))
		Expect(cfg.Size).To(Equal(model.SizeMedium))
	})

	It("keeps HeadDim equal to EmbedDim (non-standard attention)", func() {
		cfg := model.ConfigFor(model.SizeLarge)
		Expect(cfg.HeadDim()).To(Equal(cfg.EmbedDim))
	})
})

var _ = Describe("Model.Infer", func() {
	var m *model.Model

	BeforeEach(func() {
		cfg := model.ConfigFor(model.SizeSmall)
		w := model.RandomInit(cfg, 42)
		m = model.New(cfg, w, false)
	})

	It("rejects a sequence of the wrong length", func() {
		_, err := m.Infer(make([]float64, 100))
		Expect(err).To(HaveOccurred())
	})

	It("produces a fixed-length embedding and logits vector", func() {
		out, err := m.Infer(make([]float64, model.ConfigFor(model.SizeSmall).InputLen))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Embedding).To(HaveLen(model.EmbeddingDim))
		Expect(out.Logits).To(HaveLen(model.ClassificationLogits))
	})

	It("produces sigmoid-bounded logits", func() {
		out, err := m.Infer(make([]float64, model.ConfigFor(model.SizeSmall).InputLen))
		Expect(err).NotTo(HaveOccurred())
		for _, v := range out.Logits {
			Expect(v).To(BeNumerically(">=", 0))
			Expect(v).To(BeNumerically("<=", 1))
		}
	})

	It("is deterministic on repeated identical input", func() {
		ok, err := m.SelfTest()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
})

var _ = Describe("Postprocess", func() {
	It("maps sleep_efficiency thresholds to the right insight", func() {
		var out model.Output
		out.Logits[0] = 0.9 // sleep_efficiency = 90
		a := model.Postprocess(out)
		Expect(a.SleepEfficiency).To(BeNumerically("~", 90, 0.01))
		Expect(a.SleepInsight).To(Equal("normal_sleep_efficiency"))
	})

	It("flags elevated depression risk", func() {
		var out model.Output
		out.Logits[9] = 0.8
		a := model.Postprocess(out)
		Expect(a.DepressionInsight).To(Equal("elevated_risk_indicators"))
	})

	It("computes confidence as the mean of the last three sleep logits", func() {
		var out model.Output
		out.Logits[5] = 0.6
		out.Logits[6] = 0.8
		out.Logits[7] = 1.0
		a := model.Postprocess(out)
		Expect(a.ConfidenceScore).To(BeNumerically("~", 0.8, 0.001))
	})
})
