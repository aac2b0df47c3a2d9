package model

import (
	"time"

	"github.com/go-faster/jx"
)

// Upload is the immutable, once-accepted payload a client submits. The
// `validate` tags drive pkg/upload's go-playground/validator payload and
// type-consistency validation pass.
type Upload struct {
	UploadID        string         `json:"upload_id" validate:"omitempty,uuid4"`
	UserID          string         `json:"user_id" validate:"required"`
	UploadSource    string         `json:"upload_source" validate:"required"`
	ClientTimestamp time.Time      `json:"client_timestamp" validate:"required"`
	ServerTimestamp time.Time      `json:"server_timestamp"`
	SyncToken       string         `json:"sync_token"`
	Metrics         []HealthMetric `json:"metrics" validate:"required,min=1,dive"`
	SizeBytes       int64          `json:"size_bytes" validate:"gte=0"`
}

// JobStatus is the ProcessingJob state machine's set of values.
type JobStatus string

const (
	JobReceived   JobStatus = "received"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a status is absorbing.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// ProcessingJob tracks one upload's journey through the pipeline.
type ProcessingJob struct {
	ProcessingID     string    `json:"processing_id"`
	UserID           string    `json:"user_id"`
	Status           JobStatus `json:"status"`
	TotalMetrics     int       `json:"total_metrics"`
	ProcessedMetrics int       `json:"processed_metrics"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	Error            *string   `json:"error,omitempty"`
}

// JobLeaseSeconds is the default orphan-job reclaim threshold.
const JobLeaseSeconds = 600

// JobRetentionDays is how long a ProcessingJob lives before expiry.
const JobRetentionDays = 30

// NamedFeature is a single {name, value} activity feature.
type NamedFeature struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// SleepFeatures is the sleep processor's structured output.
type SleepFeatures struct {
	TotalSleepMinutes float64 `json:"total_sleep_minutes"`
	SleepEfficiency   float64 `json:"sleep_efficiency"`
	SleepLatencyMin   float64 `json:"sleep_latency_minutes"`
	WASOMinutes       float64 `json:"waso_minutes"`
	AwakeningsCount   float64 `json:"awakenings_count"`
	REMPercentage     float64 `json:"rem_percentage"`
	DeepPercentage    float64 `json:"deep_percentage"`
	ConsistencyScore  float64 `json:"consistency_score"`
}

// ToFusionVector applies the sleep-feature normalization table, clamped to [0,1].
func (s SleepFeatures) ToFusionVector() [8]float64 {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return [8]float64{
		clamp(s.TotalSleepMinutes / 480.0),
		clamp(s.SleepEfficiency),
		clamp(s.SleepLatencyMin / 60.0),
		clamp(s.WASOMinutes / 120.0),
		clamp(s.AwakeningsCount / 10.0),
		clamp(s.REMPercentage),
		clamp(s.DeepPercentage),
		clamp(s.ConsistencyScore),
	}
}

// AnalysisResult is written once per job on success.
//
// Metadata holds pre-encoded JSON fragments (jx.Raw, a passthrough
// json.Marshaler/Unmarshaler analogous to json.RawMessage) rather than
// map[string]any: the pipeline computes each entry once and the struct's
// own encoding/json pass copies the bytes straight through instead of
// reflecting over nested maps a second time on every write to the
// structured store and the blob-store mirror.
type AnalysisResult struct {
	ProcessingID        string             `json:"processing_id"`
	UserID              string             `json:"user_id"`
	Timestamp           time.Time          `json:"timestamp"`
	CardioFeatures      []float64          `json:"cardio_features,omitempty"`
	RespiratoryFeatures []float64          `json:"respiratory_features,omitempty"`
	ActivityFeatures    []NamedFeature     `json:"activity_features,omitempty"`
	ActivityEmbedding   []float64          `json:"activity_embedding,omitempty"`
	SleepFeatures       *SleepFeatures     `json:"sleep_features,omitempty"`
	FusedVector         []float64          `json:"fused_vector"`
	SummaryStats        map[string]float64 `json:"summary_stats,omitempty"`
	Metadata            map[string]jx.Raw  `json:"metadata,omitempty"`
}

// RawBlob is the immutable, content-addressed raw payload record.
type RawBlob struct {
	Key                string            `json:"key"`
	Content            []byte            `json:"-"`
	ContentType        string            `json:"content_type"`
	ServerSideEncrypted bool             `json:"server_side_encrypted"`
	StorageClass       string            `json:"storage_class"`
	Metadata           map[string]string `json:"metadata"`
}
