// Package sleep implements the sleep modality processor, producing a
// structured SleepFeatures result (not a bare array — SleepFeatures has an
// explicit ToFusionVector() for the [8]float64 normalization table used by
// fusion).
package sleep

import (
	"sort"

	"github.com/clarity-digital-twin/clarity-backend/internal/statsutil"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
)

const stageAwake = "awake"

type segment struct {
	day      string
	stage    string
	duration float64
}

// Process aggregates the sleep bucket's stage segments into SleepFeatures.
// An empty bucket returns the zero value — processors never error on empty
// input.
func Process(metrics []model.HealthMetric) model.SleepFeatures {
	sorted := make([]model.HealthMetric, len(metrics))
	copy(sorted, metrics)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	var segs []segment
	for _, m := range sorted {
		sp, ok := m.Payload.(model.SleepPayload)
		if !ok {
			continue
		}
		segs = append(segs, segment{
			day:      m.CreatedAt.UTC().Format("2006-01-02"),
			stage:    sp.Stage,
			duration: sp.DurationMinutes,
		})
	}
	if len(segs) == 0 {
		return model.SleepFeatures{}
	}

	var totalSleep, totalAwake, remMin, deepMin, latency, waso float64
	awakenings := 0

	// sleep onset = first non-awake segment; everything before it is latency.
	onsetIdx := -1
	for i, s := range segs {
		if s.stage != stageAwake {
			onsetIdx = i
			break
		}
	}
	if onsetIdx == -1 {
		// All-awake input: no sleep observed.
		for _, s := range segs {
			totalAwake += s.duration
		}
		return model.SleepFeatures{}
	}
	for i := 0; i < onsetIdx; i++ {
		latency += segs[i].duration
	}

	// Find last non-awake segment; trailing awake after it doesn't count as WASO.
	lastSleepIdx := onsetIdx
	for i := len(segs) - 1; i >= onsetIdx; i-- {
		if segs[i].stage != stageAwake {
			lastSleepIdx = i
			break
		}
	}

	for i := onsetIdx; i <= lastSleepIdx; i++ {
		s := segs[i]
		switch s.stage {
		case stageAwake:
			waso += s.duration
			totalAwake += s.duration
			awakenings++
		case "rem":
			totalSleep += s.duration
			remMin += s.duration
		case "deep":
			totalSleep += s.duration
			deepMin += s.duration
		default: // "core"/"unspecified" still counts as sleep time
			totalSleep += s.duration
		}
	}

	efficiency := 0.0
	if denom := totalSleep + totalAwake; denom > 0 {
		efficiency = totalSleep / denom
	}
	remPct, deepPct := 0.0, 0.0
	if totalSleep > 0 {
		remPct = remMin / totalSleep
		deepPct = deepMin / totalSleep
	}

	consistency := consistencyScore(segs)

	return model.SleepFeatures{
		TotalSleepMinutes: totalSleep,
		SleepEfficiency:   clamp01(efficiency),
		SleepLatencyMin:   latency,
		WASOMinutes:       waso,
		AwakeningsCount:   float64(awakenings),
		REMPercentage:     clamp01(remPct),
		DeepPercentage:    clamp01(deepPct),
		ConsistencyScore:  consistency,
	}
}

// consistencyScore is 1 - Gini of per-day total sleep minutes, mirroring the
// activity processor's consistency measure over a different series.
func consistencyScore(segs []segment) float64 {
	perDay := make(map[string]float64)
	for _, s := range segs {
		if s.stage != stageAwake {
			perDay[s.day] += s.duration
		}
	}
	if len(perDay) < 2 {
		return 0
	}
	var totals []float64
	for _, v := range perDay {
		totals = append(totals, v)
	}
	score := 1 - statsutil.Gini(totals)
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
