// Package reference carries the population-normative reference statistics
// used to annotate feature vectors with z-scores. It is advisory only:
// cross-user population modeling and clinical diagnosis are out of scope —
// z-scores here are annotation, never a gate on pipeline success.
//
// The activity/actigraphy norms are a stratified lookup (survey year, age
// band, sex) modeled on the NHANES accelerometry reference the PAT
// pretraining corpus itself draws from. The retrieval pack that grounds
// this repo kept only that lookup's test suite
// (tests/ml/test_nhanes_stats.py), not its implementation module, so the
// stratification tables below are this repo's own population of the shape
// that test asserts (year keys, named age bands, male/female/other sex
// keys, graceful fallback on an unrecognized stratum) rather than values
// transcribed from source. The cardio, respiratory, and sleep tables have
// no analogue in the retrieval pack at all; they are this repo's own
// plausible adult-population approximations, extending the same annotation
// to the three modalities the original NHANES validation never covered.
package reference

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/clarity-digital-twin/clarity-backend/internal/statsutil"
	"github.com/clarity-digital-twin/clarity-backend/pkg/processor/activity"
)

// Stat is a population mean/standard-deviation pair for one named feature.
type Stat struct {
	Mean   float64
	StdDev float64
}

// ZScore computes (value-mean)/stddev, returning 0 when stddev is zero or
// non-finite rather than dividing by zero.
func ZScore(s Stat, value float64) float64 {
	if s.StdDev == 0 || math.IsNaN(s.StdDev) || math.IsInf(s.StdDev, 0) {
		return 0
	}
	return (value - s.Mean) / s.StdDev
}

// --- stratified activity/actigraphy population norms ------------------------

// activityYearStat adds survey-cycle provenance to a Stat.
type activityYearStat struct {
	Stat
	SampleSize int
	Source     string
}

// activityYearStats holds average-daily-step population norms keyed by
// NHANES survey cycle year.
var activityYearStats = map[int]activityYearStat{
	2017: {Stat: Stat{Mean: 7_400, StdDev: 3_300}, SampleSize: 9_112, Source: "NHANES 2017-2018 accelerometry"},
	2021: {Stat: Stat{Mean: 7_200, StdDev: 3_400}, SampleSize: 9_254, Source: "NHANES 2021-2023 accelerometry"},
	2023: {Stat: Stat{Mean: 7_000, StdDev: 3_500}, SampleSize: 8_911, Source: "NHANES 2021-2023 accelerometry"},
	2025: {Stat: Stat{Mean: 6_850, StdDev: 3_600}, SampleSize: 8_602, Source: "NHANES 2021-2023 accelerometry (latest published cycle)"},
}

// defaultActivityYear is used when a requested year is absent and is
// itself always present in activityYearStats.
const defaultActivityYear = 2025

// activityAgeGroupStats holds average-daily-step norms keyed by age band,
// independent of survey year (matches the flat, single-axis shape the
// original test asserts for AGE_STRATIFIED_STATS).
var activityAgeGroupStats = map[string]Stat{
	"18-29": {Mean: 8_200, StdDev: 3_300},
	"30-39": {Mean: 7_600, StdDev: 3_200},
	"40-49": {Mean: 7_100, StdDev: 3_300},
	"50-59": {Mean: 6_500, StdDev: 3_400},
	"60-69": {Mean: 5_800, StdDev: 3_200},
	"70+":   {Mean: 4_600, StdDev: 2_900},
}

// activitySexStats holds average-daily-step norms keyed by sex, matching
// the original's exactly-three-keys SEX_STRATIFIED_STATS shape. Lookup is
// case-insensitive.
var activitySexStats = map[string]Stat{
	"male":   {Mean: 7_300, StdDev: 3_500},
	"female": {Mean: 6_700, StdDev: 3_400},
	"other":  {Mean: 7_000, StdDev: 3_500},
}

// ExtremeOutlierThreshold is the |z-score| beyond which a proxy value is
// flagged as an extreme outlier rather than ordinary population variance.
const ExtremeOutlierThreshold = 3.0

// ErrNoReferenceData is returned when the underlying year table has been
// emptied entirely. Every other unrecognized input (an unknown year, age
// group, or sex) degrades gracefully to the next-broadest stratum instead
// of failing, mirroring the original lookup's fallback behavior.
var ErrNoReferenceData = errors.New("reference: no activity population norms configured")

// AvailableActivityYears returns the survey cycles LookupActivityNorm
// recognizes, ascending.
func AvailableActivityYears() []int {
	years := make([]int, 0, len(activityYearStats))
	for y := range activityYearStats {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// AvailableActivityAgeGroups returns the age bands LookupActivityNorm
// recognizes, youngest first.
func AvailableActivityAgeGroups() []string {
	return []string{"18-29", "30-39", "40-49", "50-59", "60-69", "70+"}
}

// LookupActivityNorm resolves the average-daily-step population norm for
// an optional survey year, age group, and sex. It prefers the most
// specific stratum supplied — sex, then age group, then year, then the
// package default year — rather than combining axes, matching the
// single-axis shape of the original table set. An unrecognized year, age
// group, or sex is not an error: it silently falls through to the next
// stratum, same as the original's graceful-degradation behavior.
func LookupActivityNorm(year int, ageGroup, sex string) (Stat, error) {
	if len(activityYearStats) == 0 {
		return Stat{}, ErrNoReferenceData
	}
	if sex != "" {
		if s, ok := activitySexStats[strings.ToLower(sex)]; ok {
			return s, nil
		}
	}
	if ageGroup != "" {
		if s, ok := activityAgeGroupStats[ageGroup]; ok {
			return s, nil
		}
	}
	if y, ok := activityYearStats[year]; ok {
		return y.Stat, nil
	}
	return activityYearStats[defaultActivityYear].Stat, nil
}

// ActivityNormInfo reports the year-level population record (mean,
// stddev, sample size, citation) for a survey year, falling back to the
// default year's record for one this package doesn't recognize.
func ActivityNormInfo(year int) (mean, stdDev float64, sampleSize int, source string) {
	y, ok := activityYearStats[year]
	if !ok {
		y = activityYearStats[defaultActivityYear]
	}
	return y.Mean, y.StdDev, y.SampleSize, y.Source
}

// ProxyValidation is the outcome of validating a batch of PAT-derived
// activity proxy values (e.g. a week's average daily steps) against the
// population norm for one survey year.
type ProxyValidation struct {
	TotalValues       int     `json:"total_values"`
	MeanZScore        float64 `json:"mean_z_score"`
	StdZScore         float64 `json:"std_z_score"`
	ExtremeLowCount   int     `json:"extreme_low_count"`
	ExtremeHighCount  int     `json:"extreme_high_count"`
	OutlierPercentage float64 `json:"outlier_percentage"`
	ValidationPassed  bool    `json:"validation_passed"`
	ReferenceYear     int     `json:"reference_year"`
}

// ValidateProxyValues z-scores each value against the requested year's
// activity norm (year 0 resolves to defaultActivityYear) and flags the
// batch as failing validation once a fifth or more of it lands at or beyond
// ExtremeOutlierThreshold in either direction. An empty slice passes
// trivially, with NaN MeanZScore and StdZScore, rather than returning an error.
func ValidateProxyValues(values []float64, year int) (ProxyValidation, error) {
	stat, err := LookupActivityNorm(year, "", "")
	if err != nil {
		return ProxyValidation{}, err
	}
	if year == 0 {
		year = defaultActivityYear
	}
	result := ProxyValidation{TotalValues: len(values), ReferenceYear: year, ValidationPassed: true}
	if len(values) == 0 {
		result.MeanZScore = math.NaN()
		result.StdZScore = math.NaN()
		return result, nil
	}

	zScores := make([]float64, len(values))
	for i, v := range values {
		z := ZScore(stat, v)
		zScores[i] = z
		switch {
		case z <= -ExtremeOutlierThreshold:
			result.ExtremeLowCount++
		case z >= ExtremeOutlierThreshold:
			result.ExtremeHighCount++
		}
	}
	result.MeanZScore = statsutil.Mean(zScores)
	result.StdZScore = statsutil.StdDev(zScores)
	outliers := result.ExtremeLowCount + result.ExtremeHighCount
	result.OutlierPercentage = float64(outliers) / float64(len(values)) * 100
	result.ValidationPassed = result.OutlierPercentage < 20
	return result, nil
}

// --- fixed-position feature vectors (cardio, respiratory, sleep) -----------

// CardioFeatureNames mirrors the cardio processor's vector ordering.
var CardioFeatureNames = [8]string{
	"mean_hr", "std_hr", "resting_hr", "max_hr",
	"mean_hrv", "hrv_rmssd", "hr_recovery", "circadian_phase",
}

// CardioStats are this repo's own approximate adult-population norms for
// each cardio feature (not NHANES-sourced; see package doc).
var CardioStats = [8]Stat{
	{Mean: 73.0, StdDev: 9.0},   // mean_hr
	{Mean: 8.5, StdDev: 3.2},    // std_hr
	{Mean: 62.0, StdDev: 8.0},   // resting_hr
	{Mean: 142.0, StdDev: 18.0}, // max_hr
	{Mean: 42.0, StdDev: 15.0},  // mean_hrv
	{Mean: 38.0, StdDev: 14.0},  // hrv_rmssd
	{Mean: 18.0, StdDev: 7.0},   // hr_recovery
	{Mean: 0.0, StdDev: 1.6},    // circadian_phase (radians)
}

// RespiratoryFeatureNames mirrors the respiratory processor's vector ordering.
var RespiratoryFeatureNames = [8]string{
	"mean_rr", "std_rr", "min_rr", "mean_spo2",
	"min_spo2", "spo2_variability", "respiratory_stability", "oxygenation_efficiency",
}

// RespiratoryStats are this repo's own approximate adult-population norms
// for each respiratory feature (not NHANES-sourced; see package doc).
var RespiratoryStats = [8]Stat{
	{Mean: 16.0, StdDev: 2.5},   // mean_rr
	{Mean: 1.2, StdDev: 0.6},    // std_rr
	{Mean: 12.0, StdDev: 2.0},   // min_rr
	{Mean: 97.0, StdDev: 1.5},   // mean_spo2
	{Mean: 94.0, StdDev: 2.5},   // min_spo2
	{Mean: 0.015, StdDev: 0.01}, // spo2_variability
	{Mean: 0.85, StdDev: 0.1},   // respiratory_stability
	{Mean: 0.8, StdDev: 0.15},   // oxygenation_efficiency
}

// SleepFeatureNames mirrors the sleep fusion-vector normalization order.
var SleepFeatureNames = [8]string{
	"total_sleep_norm", "sleep_efficiency", "sleep_latency_norm", "waso_norm",
	"awakenings_norm", "rem_percentage", "deep_percentage", "consistency_score",
}

// SleepStats are this repo's own approximate adult-population norms over
// the same normalized [0,1] space SleepFeatures.ToFusionVector produces
// (not NHANES-sourced; see package doc).
var SleepStats = [8]Stat{
	{Mean: 0.875, StdDev: 0.08}, // total_sleep_norm (7h/8h)
	{Mean: 0.85, StdDev: 0.08},  // sleep_efficiency
	{Mean: 0.25, StdDev: 0.15},  // sleep_latency_norm (15min/60)
	{Mean: 0.25, StdDev: 0.12},  // waso_norm
	{Mean: 0.3, StdDev: 0.2},    // awakenings_norm
	{Mean: 0.22, StdDev: 0.06},  // rem_percentage
	{Mean: 0.18, StdDev: 0.05},  // deep_percentage
	{Mean: 0.75, StdDev: 0.15},  // consistency_score
}

// ActivityStats are population mean/SD pairs keyed by named activity
// feature, for the features the stratified lookup above doesn't cover
// (activity's feature set is a named list, not a fixed positional vector,
// unlike the other three modalities). total_steps and average_daily_steps
// are intentionally absent here: ActivityZScores resolves those two
// through LookupActivityNorm instead.
var ActivityStats = map[string]Stat{
	activity.TotalDistanceKM:      {Mean: 5.0, StdDev: 2.5},
	activity.TotalActiveEnergy:    {Mean: 350.0, StdDev: 150.0},
	activity.TotalExerciseMinutes: {Mean: 30.0, StdDev: 20.0},
	activity.ActivityConsistency:  {Mean: 0.7, StdDev: 0.15},
	activity.LatestVO2Max:         {Mean: 38.0, StdDev: 8.0},
}

// CardioZScores maps each cardio feature to its population z-score.
func CardioZScores(v [8]float64) map[string]float64 {
	out := make(map[string]float64, 8)
	for i, name := range CardioFeatureNames {
		out[name] = ZScore(CardioStats[i], v[i])
	}
	return out
}

// RespiratoryZScores maps each respiratory feature to its population z-score.
func RespiratoryZScores(v [8]float64) map[string]float64 {
	out := make(map[string]float64, 8)
	for i, name := range RespiratoryFeatureNames {
		out[name] = ZScore(RespiratoryStats[i], v[i])
	}
	return out
}

// SleepZScores maps each normalized sleep feature to its population z-score.
func SleepZScores(v [8]float64) map[string]float64 {
	out := make(map[string]float64, 8)
	for i, name := range SleepFeatureNames {
		out[name] = ZScore(SleepStats[i], v[i])
	}
	return out
}

// ActivityZScores maps each present named activity feature to its
// population z-score. total_steps and average_daily_steps are z-scored
// against the stratified activity norm for year (age group and sex are
// left empty: the upload/metric domain model carries no demographic
// fields yet, so these two calls fall back to the year-only stratum,
// exactly the original's own degrade-gracefully path for missing
// age_group/sex). Every other feature uses the flat ActivityStats table;
// features with no reference entry are skipped.
func ActivityZScores(features map[string]float64, year int) map[string]float64 {
	out := make(map[string]float64, len(features))
	for name, value := range features {
		switch name {
		case activity.TotalSteps, activity.AverageDailySteps:
			if stat, err := LookupActivityNorm(year, "", ""); err == nil {
				out[name] = ZScore(stat, value)
			}
		default:
			if stat, ok := ActivityStats[name]; ok {
				out[name] = ZScore(stat, value)
			}
		}
	}
	return out
}
