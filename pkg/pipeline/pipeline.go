// Package pipeline implements the top-level analysis pipeline
// orchestration: it wires the modality router, the four modality
// processors, the PAT transformer and its foreign-weight loader, and the
// fusion layer into one `Analyze` call consumed by the worker tier
// (cmd/worker), and exposes a `HealthCheck` surface for model and fusion
// readiness.
package pipeline

import (
	"encoding/json"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-logr/logr"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
	"github.com/clarity-digital-twin/clarity-backend/internal/telemetry"
	"github.com/clarity-digital-twin/clarity-backend/pkg/fusion"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	patmodel "github.com/clarity-digital-twin/clarity-backend/pkg/pat/model"
	patweights "github.com/clarity-digital-twin/clarity-backend/pkg/pat/weights"
	"github.com/clarity-digital-twin/clarity-backend/pkg/preprocessor"
	"github.com/clarity-digital-twin/clarity-backend/pkg/processor/activity"
	"github.com/clarity-digital-twin/clarity-backend/pkg/processor/cardio"
	"github.com/clarity-digital-twin/clarity-backend/pkg/processor/respiratory"
	"github.com/clarity-digital-twin/clarity-backend/pkg/processor/sleep"
	"github.com/clarity-digital-twin/clarity-backend/pkg/reference"
	"github.com/clarity-digital-twin/clarity-backend/pkg/router"
)

// Config configures the pipeline's singleton dependencies, constructed once
// at worker boot explicit-constructor-injection guidance
// (replacing the source's "global analysis pipeline" accessor pattern).
type Config struct {
	PATConfig    patmodel.Config
	WeightsOpts  patweights.Options
	FusionSeed   int64
}

// Service is the process-wide pipeline dependency bundle. It is safe for
// concurrent use: the PAT model's weights are read-only after Load, and
// fusion.Service guards its own lazily-initialized weights with a mutex.
type Service struct {
	model        *patmodel.Model
	fusion       *fusion.Service
	preprocessor *preprocessor.Preprocessor
	log          logr.Logger
	metrics      *telemetry.Metrics
}

// New loads PAT weights (falling back to deterministic random init on any
// integrity or decode failure) and builds the fusion combiner.
// Construction never fails: a degraded model is still a valid,
// inference-ready Model with WeightsVerified=false.
func New(cfg Config, log logr.Logger, metrics *telemetry.Metrics) *Service {
	result := patweights.Load(log, cfg.PATConfig, cfg.WeightsOpts)
	if !result.Verified && metrics != nil {
		metrics.ModelIntegrityFail.Inc()
	}
	m := patmodel.New(cfg.PATConfig, result.Weights, result.Verified)

	fusionSvc := fusion.New(cfg.FusionSeed)
	fusionSvc.OnDimensionWarning(func(mod router.Modality, got, want int) {
		log.Info("fusion received legacy-dimension modality vector, normalizing",
			"modality", mod, "got", got, "want", want)
	})

	return &Service{
		model:        m,
		fusion:       fusionSvc,
		preprocessor: preprocessor.New(preprocessor.DefaultTargetLength),
		log:          log,
		metrics:      metrics,
	}
}

// HealthCheckResult reports "model_loaded: true, weights_verified: false,
// model_integrity_verified: false" when pretrained weights fail
// verification, even though inference keeps running.
type HealthCheckResult struct {
	ModelLoaded            bool `json:"model_loaded"`
	WeightsVerified        bool `json:"weights_verified"`
	ModelIntegrityVerified bool `json:"model_integrity_verified"`
	FusionReady            bool `json:"fusion_ready"`
}

// HealthCheck reports the pipeline's readiness, including the PAT
// determinism self-test.
func (s *Service) HealthCheck() HealthCheckResult {
	selfTestOK, _ := s.model.SelfTest()
	return HealthCheckResult{
		ModelLoaded:            true,
		WeightsVerified:        s.model.WeightsVerified,
		ModelIntegrityVerified: s.model.WeightsVerified && selfTestOK,
		FusionReady:            true,
	}
}

// Analyze runs the full data-flow pipeline (route by modality → extract
// per-modality features → fuse into one vector) over one upload's metrics,
// returning the AnalysisResult to be written by the caller (cmd/worker, via
// pkg/store/structured). The pipeline itself is a pure function of
// (userID, metrics) modulo the loaded model/fusion state, so re-running it
// on the same inputs is idempotent.
func (s *Service) Analyze(processingID, userID string, metrics []model.HealthMetric) (*model.AnalysisResult, error) {
	organized := router.Organize(metrics)

	cardioVec := cardio.Process(organized.Buckets[router.Cardio])
	respiratoryVec := respiratory.Process(organized.Buckets[router.Respiratory])
	activityFeatures := activity.Process(organized.Buckets[router.Activity])
	sleepFeatures := sleep.Process(organized.Buckets[router.Sleep])

	activityEmbedding, err := s.activityEmbedding(organized.Buckets[router.Activity])
	if err != nil {
		return nil, err
	}

	fusionVectors := map[router.Modality][]float64{}
	if len(organized.Buckets[router.Cardio]) > 0 {
		fusionVectors[router.Cardio] = cardioVec[:]
	}
	if len(organized.Buckets[router.Respiratory]) > 0 {
		fusionVectors[router.Respiratory] = respiratoryVec[:]
	}
	if len(organized.Buckets[router.Activity]) > 0 {
		fusionVectors[router.Activity] = activityEmbedding[:]
	}
	sleepVec := sleepFeatures.ToFusionVector()
	if len(organized.Buckets[router.Sleep]) > 0 {
		fusionVectors[router.Sleep] = sleepVec[:]
	}

	fused, err := s.fusion.Fuse(fusionVectors)
	if err != nil {
		return nil, clarityerrors.NewInference("fusion", "fusion layer failed", err)
	}
	if fused == nil {
		return nil, clarityerrors.NewDataValidation("upload", "no recognized modality data to analyze")
	}

	activityFeatureMap := make(map[string]float64, len(activityFeatures))
	for _, f := range activityFeatures {
		activityFeatureMap[f.Name] = f.Value
	}
	referenceYear := latestMetricYear(metrics)

	metadata := map[string]jx.Raw{
		"weights_verified": rawJSON(s.log, "weights_verified", s.model.WeightsVerified),
		"model_size":       rawJSON(s.log, "model_size", string(s.model.Config.Size)),
		"population_z_scores": rawJSON(s.log, "population_z_scores", map[string]any{
			"cardio":      reference.CardioZScores(cardioVec),
			"respiratory": reference.RespiratoryZScores(respiratoryVec),
			"activity":    reference.ActivityZScores(activityFeatureMap, referenceYear),
			"sleep":       reference.SleepZScores(sleepVec),
		}),
	}
	if avg, ok := activityFeatureMap[activity.AverageDailySteps]; ok && avg > 0 {
		if validation, err := reference.ValidateProxyValues([]float64{avg}, referenceYear); err == nil {
			metadata["activity_proxy_validation"] = rawJSON(s.log, "activity_proxy_validation", validation)
		}
	}

	return &model.AnalysisResult{
		ProcessingID:        processingID,
		UserID:              userID,
		Timestamp:           time.Now().UTC(),
		CardioFeatures:       cardioVec[:],
		RespiratoryFeatures:  respiratoryVec[:],
		ActivityFeatures:     activityFeatures,
		ActivityEmbedding:    activityEmbedding[:],
		SleepFeatures:        &sleepFeatures,
		FusedVector:          fused,
		SummaryStats:         summaryStats(cardioVec, respiratoryVec),
		Metadata:             metadata,
	}, nil
}

// activityEmbedding runs the preprocessor + PAT transformer over the
// activity bucket. An empty bucket short-circuits to the canonical
// all-zero embedding rather than invoking PAT at all — an upload with no
// activity data gets activity_embedding = zero vector, not a distorted
// inference over an all-zero sequence.
func (s *Service) activityEmbedding(metrics []model.HealthMetric) ([patmodel.EmbeddingDim]float64, error) {
	if len(metrics) == 0 {
		return patmodel.ZeroEmbedding(), nil
	}

	samples := make([]preprocessor.Sample, 0, len(metrics))
	for _, m := range metrics {
		ap, ok := m.Payload.(model.ActivityPayload)
		if !ok {
			continue
		}
		v, ok := actigraphyMagnitude(ap)
		if !ok {
			continue
		}
		samples = append(samples, preprocessor.Sample{Timestamp: m.CreatedAt, Value: v})
	}
	if len(samples) == 0 {
		return patmodel.ZeroEmbedding(), nil
	}

	sequence, err := s.preprocessor.Process(samples)
	if err != nil {
		return patmodel.ZeroEmbedding(), err
	}

	out, err := s.model.Infer(sequence)
	if err != nil {
		return patmodel.ZeroEmbedding(), clarityerrors.NewInference("pat", "PAT forward pass failed", err)
	}
	return out.Embedding, nil
}

// actigraphyMagnitude picks the best available per-minute activity
// magnitude proxy from an ActivityPayload, preferring the densest signal.
func actigraphyMagnitude(ap model.ActivityPayload) (float64, bool) {
	if ap.ActivityCounts != nil {
		return *ap.ActivityCounts, true
	}
	if ap.Steps != nil {
		return *ap.Steps, true
	}
	if ap.ActiveEnergyKcal != nil {
		return *ap.ActiveEnergyKcal, true
	}
	return 0, false
}

func summaryStats(cardioVec, respiratoryVec [8]float64) map[string]float64 {
	return map[string]float64{
		"mean_hr":   cardioVec[0],
		"mean_rr":   respiratoryVec[0],
		"mean_spo2": respiratoryVec[3],
	}
}

// latestMetricYear returns the survey year reference.LookupActivityNorm
// should stratify against: the calendar year of the most recent metric in
// the upload, or the current year for an empty upload. The domain model
// carries no per-user age/sex yet, so year is the only stratification axis
// Analyze can actually supply.
func latestMetricYear(metrics []model.HealthMetric) int {
	if len(metrics) == 0 {
		return time.Now().UTC().Year()
	}
	latest := metrics[0].CreatedAt
	for _, m := range metrics[1:] {
		if m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest.UTC().Year()
}

// rawJSON pre-encodes a metadata value once at construction time so the
// outer AnalysisResult's encoding/json pass copies these bytes verbatim
// (jx.Raw implements json.Marshaler as a literal passthrough) instead of
// reflecting over nested maps a second time when the worker mirrors the
// result to blob storage. A marshal failure degrades to a logged JSON null
// rather than failing the whole analysis.
func rawJSON(log logr.Logger, field string, v any) jx.Raw {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error(err, "failed to pre-encode analysis metadata field, embedding null", "field", field)
		return jx.Raw("null")
	}
	return jx.Raw(b)
}
