package fusion_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clarity-digital-twin/clarity-backend/pkg/fusion"
	"github.com/clarity-digital-twin/clarity-backend/pkg/router"
)

var _ = Describe("Service.Fuse", func() {
	var svc *fusion.Service

	BeforeEach(func() {
		svc = fusion.New(7)
	})

	It("returns nil for no present modalities", func() {
		out, err := svc.Fuse(map[router.Modality][]float64{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeNil())
	})

	It("bypasses the network when exactly one modality is present", func() {
		cardio := []float64{1, 2, 3, 4, 5, 6, 7, 8}
		out, err := svc.Fuse(map[router.Modality][]float64{router.Cardio: cardio})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(cardio))
	})

	It("produces a FusedDim-length vector for multiple modalities", func() {
		out, err := svc.Fuse(map[router.Modality][]float64{
			router.Cardio:      {1, 2, 3, 4, 5, 6, 7, 8},
			router.Respiratory: {1, 2, 3, 4, 5, 6, 7, 8},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(fusion.FusedDim))
	})

	It("is deterministic across repeated calls with the same weights", func() {
		vectors := map[router.Modality][]float64{
			router.Cardio: {1, 2, 3, 4, 5, 6, 7, 8},
			router.Sleep:  {0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
		}
		first, err := svc.Fuse(vectors)
		Expect(err).NotTo(HaveOccurred())
		second, err := svc.Fuse(vectors)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(second))
	})

	It("warns and truncates a legacy 128-length sleep vector", func() {
		var warned bool
		svc.OnDimensionWarning(func(m router.Modality, got, want int) {
			warned = true
			Expect(m).To(Equal(router.Sleep))
			Expect(got).To(Equal(128))
		})
		legacy := make([]float64, 128)
		for i := range legacy {
			legacy[i] = float64(i)
		}
		out, err := svc.Fuse(map[router.Modality][]float64{
			router.Cardio: {1, 2, 3, 4, 5, 6, 7, 8},
			router.Sleep:  legacy,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(fusion.FusedDim))
		Expect(warned).To(BeTrue())
	})
})
