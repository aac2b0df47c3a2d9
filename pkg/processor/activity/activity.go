// Package activity implements the activity modality processor, producing
// a list of named features rather than a fixed-position array, since these
// are surfaced to clients by name (AnalysisResult.ActivityFeatures).
package activity

import (
	"sort"

	"github.com/clarity-digital-twin/clarity-backend/internal/statsutil"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
)

// Feature names, stable and documented so API consumers can depend on them.
const (
	TotalSteps             = "total_steps"
	AverageDailySteps      = "average_daily_steps"
	TotalDistanceKM        = "total_distance_km"
	TotalActiveEnergy      = "total_active_energy"
	TotalExerciseMinutes   = "total_exercise_minutes"
	ActivityConsistency    = "activity_consistency_score"
	LatestVO2Max           = "latest_vo2_max"
)

// Process aggregates the activity bucket into named features. An empty
// bucket returns all-zero-valued features rather than erroring.
func Process(metrics []model.HealthMetric) []model.NamedFeature {
	var totalSteps, totalEnergy, totalDistance, totalExercise float64
	var latestVO2Max float64
	var latestVO2MaxSeen bool
	dailySteps := make(map[string]float64)

	sorted := make([]model.HealthMetric, len(metrics))
	copy(sorted, metrics)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	for _, m := range sorted {
		ap, ok := m.Payload.(model.ActivityPayload)
		if !ok {
			continue
		}
		day := m.CreatedAt.UTC().Format("2006-01-02")
		if ap.Steps != nil {
			totalSteps += *ap.Steps
			dailySteps[day] += *ap.Steps
		}
		if ap.ActiveEnergyKcal != nil {
			totalEnergy += *ap.ActiveEnergyKcal
		}
		if ap.DistanceMeters != nil {
			totalDistance += *ap.DistanceMeters
		}
		if ap.ExerciseMinutes != nil {
			totalExercise += *ap.ExerciseMinutes
		}
		if ap.VO2Max != nil {
			latestVO2Max = *ap.VO2Max
			latestVO2MaxSeen = true
		}
	}

	days := len(dailySteps)
	avgDailySteps := 0.0
	var perDay []float64
	for _, v := range dailySteps {
		perDay = append(perDay, v)
	}
	if days > 0 {
		avgDailySteps = totalSteps / float64(days)
	}
	consistency := 1 - statsutil.Gini(perDay)
	if consistency < 0 {
		consistency = 0
	}
	if days == 0 {
		consistency = 0
	}
	if !latestVO2MaxSeen {
		latestVO2Max = 0
	}

	return []model.NamedFeature{
		{Name: TotalSteps, Value: totalSteps},
		{Name: AverageDailySteps, Value: avgDailySteps},
		{Name: TotalDistanceKM, Value: totalDistance / 1000.0},
		{Name: TotalActiveEnergy, Value: totalEnergy},
		{Name: TotalExerciseMinutes, Value: totalExercise},
		{Name: ActivityConsistency, Value: consistency},
		{Name: LatestVO2Max, Value: latestVO2Max},
	}
}
