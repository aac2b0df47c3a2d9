package pipeline_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	patmodel "github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
	patweights "github.com/clarity-digital-twin/clarity-backend/pkg/pat/weights"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/pipeline"
)

func f(v float64) *float64 { return &v }

func newService() *pipeline.Service {
	return pipeline.New(pipeline.Config{
		PATConfig: patmodel.ConfigFor(patmodel.SizeSmall),
		WeightsOpts: patweights.Options{
			Path:         "",
			AllowedDirs:  []string{"models"},
			FallbackPath: "models/nonexistent.weights",
			RandomSeed:   42,
		},
		FusionSeed: 7,
	}, discardLogger(), nil)
}

var _ = Describe("Service.Analyze", func() {
	var svc *pipeline.Service

	BeforeEach(func() {
		svc = newService()
	})

	It("handles a single-modality (cardio-only) upload", func() {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		metrics := make([]model.HealthMetric, 0, 100)
		for i := 0; i < 100; i++ {
			hr := 60.0 + float64(i%20)
			metrics = append(metrics, model.HealthMetric{
				MetricID:  fmt.Sprintf("m-%d", i),
				UserID:    "U",
				Type:      model.MetricHeartRate,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
				Payload:   model.BiometricPayload{HeartRateBPM: f(hr)},
			})
		}

		result, err := svc.Analyze("P", "U", metrics)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CardioFeatures[0]).To(BeNumerically(">=", 60))
		Expect(result.CardioFeatures[0]).To(BeNumerically("<=", 80))
		Expect(result.ActivityEmbedding).To(Equal(make([]float64, patmodel.EmbeddingDim)))
		Expect(result.FusedVector).To(Equal(result.CardioFeatures))
	})

	It("fuses cardio and activity into a vector distinct from either input", func() {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		var metrics []model.HealthMetric
		for i := 0; i < 50; i++ {
			metrics = append(metrics, model.HealthMetric{
				MetricID:  fmt.Sprintf("hr-%d", i),
				UserID:    "U",
				Type:      model.MetricHeartRate,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
				Payload:   model.BiometricPayload{HeartRateBPM: f(65)},
			})
		}
		for i := 0; i < 50; i++ {
			metrics = append(metrics, model.HealthMetric{
				MetricID:  fmt.Sprintf("st-%d", i),
				UserID:    "U",
				Type:      model.MetricStepCount,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
				Payload:   model.ActivityPayload{Steps: f(100)},
			})
		}

		result, err := svc.Analyze("P", "U", metrics)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CardioFeatures).NotTo(BeEmpty())
		Expect(result.ActivityEmbedding).To(HaveLen(patmodel.EmbeddingDim))
		Expect(result.FusedVector).NotTo(Equal(result.CardioFeatures))
		Expect(result.FusedVector).NotTo(Equal(result.ActivityEmbedding))
	})

	It("rejects an upload with no recognized modality data", func() {
		metrics := []model.HealthMetric{{
			MetricID:  "m-1",
			UserID:    "U",
			Type:      model.MetricMentalHealthSurvey,
			CreatedAt: time.Now(),
			Payload:   model.MentalHealthPayload{SurveyName: "phq9", Score: 4},
		}}
		_, err := svc.Analyze("P", "U", metrics)
		Expect(err).To(HaveOccurred())
	})

	It("reports health check fields", func() {
		hc := svc.HealthCheck()
		Expect(hc.ModelLoaded).To(BeTrue())
	})
})
