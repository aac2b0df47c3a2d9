// Package cardio implements the cardio modality processor, extracting a
// fixed [8]float64 feature vector from the cardio modality bucket.
package cardio

import (
	"math"
	"sort"
	"time"

	"github.com/clarity-digital-twin/clarity-backend/internal/statsutil"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
)

// VectorLength is the declared static dimensionality of the cardio feature vector.
const VectorLength = 8

// reading is an internal (timestamp, value) pair extracted from a metric's payload.
type reading struct {
	t time.Time
	v float64
}

// Process extracts [mean_hr, std_hr, resting_hr, max_hr, mean_hrv, hrv_rmssd,
// hr_recovery, circadian_phase]. An empty bucket returns the zero vector —
// processors never error on empty input.
func Process(metrics []model.HealthMetric) [VectorLength]float64 {
	var hr, hrv []reading
	for _, m := range metrics {
		bp, ok := m.Payload.(model.BiometricPayload)
		if !ok {
			continue
		}
		if bp.HeartRateBPM != nil {
			hr = append(hr, reading{m.CreatedAt, *bp.HeartRateBPM})
		}
		if bp.HRVMillis != nil {
			hrv = append(hrv, reading{m.CreatedAt, *bp.HRVMillis})
		}
	}
	if len(hr) == 0 && len(hrv) == 0 {
		return [VectorLength]float64{}
	}

	sort.Slice(hr, func(i, j int) bool { return hr[i].t.Before(hr[j].t) })
	sort.Slice(hrv, func(i, j int) bool { return hrv[i].t.Before(hrv[j].t) })

	hrValues := values(hr)
	hrvValues := values(hrv)

	meanHR := statsutil.Mean(hrValues)
	stdHR := statsutil.StdDev(hrValues)
	restingHR := restingHeartRate(hr)
	maxHR := statsutil.Max(hrValues)
	meanHRV := statsutil.Mean(hrvValues)
	rmssd := hrvRMSSD(hrvValues)
	recovery := heartRateRecovery(hr)
	phase := circadianPhase(hr)

	return [VectorLength]float64{meanHR, stdHR, restingHR, maxHR, meanHRV, rmssd, recovery, phase}
}

func values(rs []reading) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.v
	}
	return out
}

// restingHeartRate is the 5th-percentile HR over the most recent 24h window
// observed in the bucket (falls back to the whole bucket if it spans less).
func restingHeartRate(hr []reading) float64 {
	if len(hr) == 0 {
		return 0
	}
	cutoff := hr[len(hr)-1].t.Add(-24 * time.Hour)
	var window []float64
	for _, r := range hr {
		if !r.t.Before(cutoff) {
			window = append(window, r.v)
		}
	}
	if len(window) == 0 {
		window = values(hr)
	}
	return statsutil.Percentile(window, 5)
}

// hrvRMSSD is the root-mean-square of successive differences, the standard
// autonomic-tone estimator computed here over successive HRV readings.
func hrvRMSSD(hrv []float64) float64 {
	if len(hrv) < 2 {
		return 0
	}
	var sumSq float64
	for i := 1; i < len(hrv); i++ {
		d := hrv[i] - hrv[i-1]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(hrv)-1))
}

// heartRateRecovery detects local peaks in the HR series and averages the
// drop from peak to the sample nearest 60s after it.
func heartRateRecovery(hr []reading) float64 {
	if len(hr) < 3 {
		return 0
	}
	var drops []float64
	for i := 1; i < len(hr)-1; i++ {
		if hr[i].v <= hr[i-1].v || hr[i].v <= hr[i+1].v {
			continue
		}
		peakTime := hr[i].t
		peakVal := hr[i].v
		target := peakTime.Add(60 * time.Second)
		best := -1
		bestDiff := time.Duration(math.MaxInt64)
		for j := i + 1; j < len(hr); j++ {
			diff := hr[j].t.Sub(target)
			if diff < 0 {
				diff = -diff
			}
			if diff < bestDiff {
				bestDiff = diff
				best = j
			}
		}
		if best != -1 {
			drops = append(drops, peakVal-hr[best].v)
		}
	}
	return statsutil.Mean(drops)
}

// circadianPhase fits a first-harmonic 24h sinusoid to hour-of-day-binned
// means and returns the argmax phase in radians via the discrete first
// Fourier coefficient's angle.
func circadianPhase(hr []reading) float64 {
	if len(hr) == 0 {
		return 0
	}
	var sumsByHour [24]float64
	var countsByHour [24]int
	for _, r := range hr {
		h := r.t.UTC().Hour()
		sumsByHour[h] += r.v
		countsByHour[h]++
	}
	var cosSum, sinSum float64
	for h := 0; h < 24; h++ {
		if countsByHour[h] == 0 {
			continue
		}
		mean := sumsByHour[h] / float64(countsByHour[h])
		angle := 2 * math.Pi * float64(h) / 24.0
		cosSum += mean * math.Cos(angle)
		sinSum += mean * math.Sin(angle)
	}
	return math.Atan2(sinSum, cosSum)
}
