package reference_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clarity-digital-twin/clarity-backend/pkg/reference"
)

var _ = Describe("ZScore", func() {
	It("returns 0 at the population mean", func() {
		Expect(reference.ZScore(reference.Stat{Mean: 10, StdDev: 2}, 10)).To(Equal(0.0))
	})

	It("returns 0 when stddev is zero, never dividing by zero", func() {
		Expect(reference.ZScore(reference.Stat{Mean: 10, StdDev: 0}, 50)).To(Equal(0.0))
	})

	It("is positive above the mean and negative below it", func() {
		Expect(reference.ZScore(reference.Stat{Mean: 10, StdDev: 2}, 12)).To(BeNumerically(">", 0))
		Expect(reference.ZScore(reference.Stat{Mean: 10, StdDev: 2}, 8)).To(BeNumerically("<", 0))
	})
})

var _ = Describe("CardioZScores", func() {
	It("returns one z-score per named cardio feature", func() {
		var v [8]float64
		for i := range v {
			v[i] = reference.CardioStats[i].Mean
		}
		scores := reference.CardioZScores(v)
		Expect(scores).To(HaveLen(8))
		for _, name := range reference.CardioFeatureNames {
			Expect(scores[name]).To(BeNumerically("~", 0, 1e-9))
		}
	})
})

var _ = Describe("ActivityZScores", func() {
	It("skips features with no reference entry", func() {
		scores := reference.ActivityZScores(map[string]float64{
			"total_steps":        7000,
			"unrecognized_thing": 42,
		}, 2025)
		Expect(scores).To(HaveKey("total_steps"))
		Expect(scores).NotTo(HaveKey("unrecognized_thing"))
	})
})

var _ = Describe("LookupActivityNorm", func() {
	It("resolves an exact survey year", func() {
		stat, err := reference.LookupActivityNorm(2025, "", "")
		Expect(err).NotTo(HaveOccurred())
		mean, stdDev, _, source := reference.ActivityNormInfo(2025)
		Expect(stat.Mean).To(Equal(mean))
		Expect(stat.StdDev).To(Equal(stdDev))
		Expect(source).NotTo(BeEmpty())
	})

	It("falls back to the default year for an unrecognized year rather than erroring", func() {
		stat, err := reference.LookupActivityNorm(1999, "", "")
		Expect(err).NotTo(HaveOccurred())
		defaultStat, _ := reference.LookupActivityNorm(0, "", "")
		Expect(stat).To(Equal(defaultStat))
	})

	It("falls back gracefully for an unrecognized age group", func() {
		stat, err := reference.LookupActivityNorm(2025, "not-a-real-band", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(stat.Mean).To(BeNumerically(">", 0))
	})

	It("stratifies by age group when recognized", func() {
		young, err := reference.LookupActivityNorm(2025, "18-29", "")
		Expect(err).NotTo(HaveOccurred())
		old, err := reference.LookupActivityNorm(2025, "70+", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(young.Mean).NotTo(Equal(old.Mean))
	})

	It("stratifies by sex case-insensitively", func() {
		lower, err := reference.LookupActivityNorm(2025, "", "female")
		Expect(err).NotTo(HaveOccurred())
		upper, err := reference.LookupActivityNorm(2025, "", "FEMALE")
		Expect(err).NotTo(HaveOccurred())
		Expect(lower).To(Equal(upper))

		male, _ := reference.LookupActivityNorm(2025, "", "male")
		Expect(male.Mean).NotTo(Equal(lower.Mean))
	})

	It("falls back gracefully for an unrecognized sex", func() {
		stat, err := reference.LookupActivityNorm(2025, "", "nonbinary-unlisted")
		Expect(err).NotTo(HaveOccurred())
		Expect(stat.Mean).To(BeNumerically(">", 0))
	})
})

var _ = Describe("ValidateProxyValues", func() {
	It("treats an empty batch as trivially passing", func() {
		result, err := reference.ValidateProxyValues(nil, 2025)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.TotalValues).To(Equal(0))
		Expect(result.ValidationPassed).To(BeTrue())
	})

	It("passes a batch clustered near the population mean", func() {
		mean, _, _, _ := reference.ActivityNormInfo(2025)
		values := []float64{mean, mean + 100, mean - 100, mean + 50}
		result, err := reference.ValidateProxyValues(values, 2025)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ValidationPassed).To(BeTrue())
		Expect(result.ReferenceYear).To(Equal(2025))
	})

	It("flags a batch of extreme outliers", func() {
		mean, stdDev, _, _ := reference.ActivityNormInfo(2025)
		values := []float64{
			mean + stdDev*10,
			mean - stdDev*10,
			mean + stdDev*12,
			mean - stdDev*11,
		}
		result, err := reference.ValidateProxyValues(values, 2025)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ExtremeLowCount + result.ExtremeHighCount).To(BeNumerically(">", 0))
		Expect(result.OutlierPercentage).To(BeNumerically(">", 0))
		Expect(result.ValidationPassed).To(BeFalse())
	})
})
