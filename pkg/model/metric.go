// Package model defines the core entities of the health-analysis domain:
// HealthMetric, Upload, ProcessingJob, AnalysisResult, AuditEvent and RawBlob.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MetricType discriminates the routing bucket and payload variant of a HealthMetric.
type MetricType string

const (
	MetricHeartRate             MetricType = "heart_rate"
	MetricHeartRateVariability  MetricType = "heart_rate_variability"
	MetricBloodPressure         MetricType = "blood_pressure"
	MetricRespiratoryRate       MetricType = "respiratory_rate"
	MetricBloodOxygen           MetricType = "blood_oxygen"
	MetricStepCount             MetricType = "step_count"
	MetricActiveEnergy          MetricType = "active_energy"
	MetricDistanceWalking       MetricType = "distance_walking"
	MetricExerciseTime          MetricType = "exercise_time"
	MetricActivityLevel         MetricType = "activity_level"
	MetricSleepAnalysis         MetricType = "sleep_analysis"
	MetricSleepDuration         MetricType = "sleep_duration"
	MetricMentalHealthSurvey    MetricType = "mental_health_survey"
)

// PayloadVariant names which one-of field is populated on a HealthMetric.
type PayloadVariant string

const (
	VariantBiometric    PayloadVariant = "biometric"
	VariantActivity     PayloadVariant = "activity"
	VariantSleep        PayloadVariant = "sleep"
	VariantMentalHealth PayloadVariant = "mental"
)

// HealthMetricPayload is a sealed union: exactly one concrete implementation
// is ever set on a HealthMetric. The unexported marker method statically
// prevents any type outside this package from satisfying the interface,
// enforcing that constraint without algebraic data types.
type HealthMetricPayload interface {
	Variant() PayloadVariant
	isHealthMetricPayload()
}

// BiometricPayload carries cardio/respiratory raw readings.
type BiometricPayload struct {
	HeartRateBPM        *float64 `json:"heart_rate_bpm,omitempty"`
	HRVMillis           *float64 `json:"hrv_millis,omitempty"`
	RespiratoryRateBPM  *float64 `json:"respiratory_rate_bpm,omitempty"`
	BloodOxygenPercent  *float64 `json:"blood_oxygen_percent,omitempty"`
	SystolicMMHG        *float64 `json:"systolic_mmhg,omitempty"`
	DiastolicMMHG       *float64 `json:"diastolic_mmhg,omitempty"`
}

func (BiometricPayload) Variant() PayloadVariant { return VariantBiometric }
func (BiometricPayload) isHealthMetricPayload()  {}

// ActivityPayload carries step/energy/distance/exercise readings.
type ActivityPayload struct {
	Steps            *float64 `json:"steps,omitempty"`
	ActiveEnergyKcal *float64 `json:"active_energy_kcal,omitempty"`
	DistanceMeters   *float64 `json:"distance_meters,omitempty"`
	ExerciseMinutes  *float64 `json:"exercise_minutes,omitempty"`
	ActivityCounts   *float64 `json:"activity_counts,omitempty"`
	VO2Max           *float64 `json:"vo2_max,omitempty"`
}

func (ActivityPayload) Variant() PayloadVariant { return VariantActivity }
func (ActivityPayload) isHealthMetricPayload()  {}

// SleepPayload carries a single sleep-stage observation.
type SleepPayload struct {
	Stage            string   `json:"stage"` // awake|rem|core|deep|unspecified
	DurationMinutes  float64  `json:"duration_minutes"`
}

func (SleepPayload) Variant() PayloadVariant { return VariantSleep }
func (SleepPayload) isHealthMetricPayload()  {}

// MentalHealthPayload carries a self-reported survey datapoint (not used by
// the PAT pipeline directly, but routed and stored like any other metric).
type MentalHealthPayload struct {
	SurveyName string  `json:"survey_name"`
	Score      float64 `json:"score"`
}

func (MentalHealthPayload) Variant() PayloadVariant { return VariantMentalHealth }
func (MentalHealthPayload) isHealthMetricPayload()  {}

// HealthMetric is one datapoint in an Upload.
type HealthMetric struct {
	MetricID  string              `json:"metric_id" validate:"required"`
	UserID    string              `json:"user_id" validate:"required"`
	Type      MetricType          `json:"metric_type" validate:"required"`
	CreatedAt time.Time           `json:"created_at" validate:"required"`
	DeviceID  *string             `json:"device_id,omitempty"`
	Payload   HealthMetricPayload `json:"-"`
	Raw       map[string]any      `json:"raw,omitempty"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
}

// healthMetricWire is HealthMetric's JSON wire and storage representation:
// Payload (excluded from the struct's own json tags, since it's an
// interface) is flattened into the object under "payload" and reconstructed
// on unmarshal into the concrete type ExpectedVariant(Type) names.
type healthMetricWire struct {
	MetricID  string            `json:"metric_id"`
	UserID    string            `json:"user_id"`
	Type      MetricType        `json:"metric_type"`
	CreatedAt time.Time         `json:"created_at"`
	DeviceID  *string           `json:"device_id,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Raw       map[string]any    `json:"raw,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON flattens Payload into the wire representation so it survives
// a round trip through storage and the HTTP API.
func (m HealthMetric) MarshalJSON() ([]byte, error) {
	var payload json.RawMessage
	if m.Payload != nil {
		encoded, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("model: marshal metric payload: %w", err)
		}
		payload = encoded
	}
	return json.Marshal(healthMetricWire{
		MetricID:  m.MetricID,
		UserID:    m.UserID,
		Type:      m.Type,
		CreatedAt: m.CreatedAt,
		DeviceID:  m.DeviceID,
		Payload:   payload,
		Raw:       m.Raw,
		Metadata:  m.Metadata,
	})
}

// UnmarshalJSON reconstructs Payload into the concrete type named by
// ExpectedVariant(Type), so processors' type assertions succeed on a
// metric read back from storage, not just on one freshly decoded from an
// inbound upload.
func (m *HealthMetric) UnmarshalJSON(data []byte) error {
	var wire healthMetricWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.MetricID = wire.MetricID
	m.UserID = wire.UserID
	m.Type = wire.Type
	m.CreatedAt = wire.CreatedAt
	m.DeviceID = wire.DeviceID
	m.Raw = wire.Raw
	m.Metadata = wire.Metadata

	if len(wire.Payload) == 0 || string(wire.Payload) == "null" {
		return nil
	}
	switch ExpectedVariant(wire.Type) {
	case VariantBiometric:
		var p BiometricPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("model: unmarshal biometric payload: %w", err)
		}
		m.Payload = p
	case VariantActivity:
		var p ActivityPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("model: unmarshal activity payload: %w", err)
		}
		m.Payload = p
	case VariantSleep:
		var p SleepPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("model: unmarshal sleep payload: %w", err)
		}
		m.Payload = p
	case VariantMentalHealth:
		var p MentalHealthPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("model: unmarshal mental health payload: %w", err)
		}
		m.Payload = p
	}
	return nil
}

// ExpectedVariant returns the payload variant a MetricType is required to carry.
func ExpectedVariant(t MetricType) PayloadVariant {
	switch t {
	case MetricHeartRate, MetricHeartRateVariability, MetricBloodPressure,
		MetricRespiratoryRate, MetricBloodOxygen:
		return VariantBiometric
	case MetricStepCount, MetricActiveEnergy, MetricDistanceWalking,
		MetricExerciseTime, MetricActivityLevel:
		return VariantActivity
	case MetricSleepAnalysis, MetricSleepDuration:
		return VariantSleep
	case MetricMentalHealthSurvey:
		return VariantMentalHealth
	default:
		return ""
	}
}
