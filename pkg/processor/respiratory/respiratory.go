// Package respiratory implements the respiratory modality processor.
package respiratory

import (
	"github.com/clarity-digital-twin/clarity-backend/internal/statsutil"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
)

// VectorLength is the declared static dimensionality of the respiratory feature vector.
const VectorLength = 8

// Process extracts [mean_rr, std_rr, min_rr, mean_spo2, min_spo2,
// spo2_variability, respiratory_stability, oxygenation_efficiency].
func Process(metrics []model.HealthMetric) [VectorLength]float64 {
	var rr, spo2 []float64
	for _, m := range metrics {
		bp, ok := m.Payload.(model.BiometricPayload)
		if !ok {
			continue
		}
		if bp.RespiratoryRateBPM != nil {
			rr = append(rr, *bp.RespiratoryRateBPM)
		}
		if bp.BloodOxygenPercent != nil {
			spo2 = append(spo2, *bp.BloodOxygenPercent)
		}
	}
	if len(rr) == 0 && len(spo2) == 0 {
		return [VectorLength]float64{}
	}

	meanRR := statsutil.Mean(rr)
	stdRR := statsutil.StdDev(rr)
	minRR := statsutil.Min(rr)
	meanSpO2 := statsutil.Mean(spo2)
	minSpO2 := statsutil.Min(spo2)
	spo2Variability := statsutil.StdDev(spo2)
	stability := 1 - statsutil.CoefficientOfVariation(rr)
	if stability < 0 {
		stability = 0
	}
	efficiency := timeAboveThreshold(spo2, 95.0)

	return [VectorLength]float64{meanRR, stdRR, minRR, meanSpO2, minSpO2, spo2Variability, stability, efficiency}
}

// timeAboveThreshold returns the fraction of readings at or above the
// threshold, clamped to [0,1].
func timeAboveThreshold(xs []float64, threshold float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	above := 0
	for _, x := range xs {
		if x >= threshold {
			above++
		}
	}
	return float64(above) / float64(len(xs))
}
