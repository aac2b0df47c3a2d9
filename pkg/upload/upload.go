// Package upload implements the upload control plane: it validates an
// inbound Upload, persists it across the raw blob store and the structured
// store, and publishes a job message for the worker tier to pick up. It
// also owns the user-erasure cascade (the DELETE right-to-erasure path),
// which is the one place a single AuditEvent is required to span both
// storage backends.
package upload

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/queue"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/audit"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/blob"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/structured"
)

// Service is the upload control plane. It depends on the blob store, the
// structured store, the job queue, and a dedicated audit.Writer for the
// combined-event erasure cascade — the structured store's own audit writer
// is not reused here because DeleteUserData deliberately emits no event of
// its own (see structured.Store.DeleteUserData's doc comment).
type Service struct {
	blob       *blob.Client
	structured *structured.Store
	queue      *queue.Queue
	audit      *audit.Writer
	validate   *validator.Validate
	log        logr.Logger
}

// New builds an upload Service.
func New(blobClient *blob.Client, store *structured.Store, q *queue.Queue, auditWriter *audit.Writer, log logr.Logger) *Service {
	return &Service{
		blob:       blobClient,
		structured: store,
		queue:      q,
		audit:      auditWriter,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
	}
}

// Accept runs the ordered upload sequence: validate, assign a
// processing_id, write the raw blob, write the ProcessingJob (with a
// compensating ORPHAN_BLOB audit event if that write fails after the blob
// already landed), batch-write the per-metric rows, and publish the job
// message. It returns the assigned processing_id.
func (s *Service) Accept(ctx context.Context, upload model.Upload) (string, error) {
	if err := s.validate.Struct(upload); err != nil {
		typed := clarityerrors.NewValidation("upload", "payload failed validation")
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				typed.AddFieldError(fe.Field(), fe.Tag())
			}
		}
		return "", typed
	}
	if err := validateMetricConsistency(upload.Metrics); err != nil {
		return "", err
	}

	processingID := uuid.NewString()
	now := time.Now().UTC()

	content, err := json.Marshal(upload)
	if err != nil {
		return "", clarityerrors.NewStorage("upload", "failed to marshal upload for blob storage", err)
	}

	rawKey, err := s.blob.PutRaw(ctx, now, upload.UserID, processingID, upload.UploadSource, len(upload.Metrics), content)
	if err != nil {
		return "", err
	}

	job := model.ProcessingJob{
		ProcessingID: processingID,
		UserID:       upload.UserID,
		Status:       model.JobReceived,
		TotalMetrics: len(upload.Metrics),
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.AddDate(0, 0, model.JobRetentionDays),
	}
	if err := s.structured.PutJob(ctx, job); err != nil {
		s.audit.Record(ctx, model.OpOrphanBlob, "raw_blob", rawKey, &upload.UserID, map[string]any{
			"processing_id": processingID,
			"reason":        "processing_job write failed after blob was persisted",
		})
		return "", err
	}

	if err := s.structured.BatchWriteHealthMetrics(ctx, upload.Metrics); err != nil {
		return "", err
	}

	msg := queue.Message{
		ProcessingID: processingID,
		UserID:       upload.UserID,
		RawBlobPath:  rawKey,
		EnqueuedAt:   now,
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		return "", clarityerrors.NewStorage("queue", "failed to publish job message", err)
	}

	return processingID, nil
}

// validateMetricConsistency enforces the payload/type-consistency rule: a
// metric's Payload must be the variant ExpectedVariant(Type) names.
func validateMetricConsistency(metrics []model.HealthMetric) error {
	for _, m := range metrics {
		if m.Payload == nil {
			continue
		}
		want := model.ExpectedVariant(m.Type)
		if m.Payload.Variant() != want {
			return clarityerrors.NewValidation("health_metric", "payload variant does not match metric_type").
				AddFieldError("metric_id", m.MetricID)
		}
	}
	return nil
}

// EraseUser deletes every stored record for userID across both storage
// backends and writes exactly one combined DELETE audit event carrying the
// summed row/object count as metadata.deleted_count.
func (s *Service) EraseUser(ctx context.Context, userID string) (int64, error) {
	structuredCount, err := s.structured.DeleteUserData(ctx, userID)
	if err != nil {
		return 0, err
	}
	blobCount, err := s.blob.DeleteUserData(ctx, userID)
	if err != nil {
		return structuredCount, err
	}

	total := structuredCount + int64(blobCount)
	s.audit.Record(ctx, model.OpDelete, "user", userID, &userID, map[string]any{"deleted_count": total})
	return total, nil
}
