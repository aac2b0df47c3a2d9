package structured

import (
	"context"
	"database/sql"
	"time"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
)

// PutJob inserts a new ProcessingJob row and emits a CREATE audit event.
func (s *Store) PutJob(ctx context.Context, job model.ProcessingJob) error {
	if err := s.exec(ctx, `
		INSERT INTO processing_jobs (processing_id, user_id, status, total_metrics, processed_metrics, created_at, updated_at, expires_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.ProcessingID, job.UserID, string(job.Status), job.TotalMetrics, job.ProcessedMetrics, job.CreatedAt, job.UpdatedAt, job.ExpiresAt, job.Error); err != nil {
		return clarityerrors.NewStorage("processing_jobs", "PutJob failed", err)
	}
	s.cache.Invalidate(ctx, "processing_jobs", job.ProcessingID)
	s.audit.Record(ctx, model.OpCreate, "processing_jobs", job.ProcessingID, &job.UserID, map[string]any{"status": job.Status})
	return nil
}

// GetJob reads a ProcessingJob directly; job status changes too frequently
// during processing for the read-through cache to be worth the staleness.
func (s *Store) GetJob(ctx context.Context, processingID string) (*model.ProcessingJob, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `
		SELECT processing_id, user_id, status, total_metrics, processed_metrics, created_at, updated_at, expires_at, error
		FROM processing_jobs WHERE processing_id = $1
	`, processingID)
	if err == sql.ErrNoRows {
		return nil, clarityerrors.NewNotFound("processing_jobs", "job not found")
	}
	if err != nil {
		return nil, clarityerrors.NewStorage("processing_jobs", "GetJob failed", err)
	}
	job := row.toJob()
	return &job, nil
}

// UpdateJobStatus performs a compare-and-swap transition: it only applies
// when the row's current status equals from, enforcing a terminal-state
// guard (a job already Completed/Failed/Cancelled cannot be transitioned
// again — this also backstops idempotency for a redelivered job message at
// the storage layer). Returns (applied=false, nil) when the CAS misses,
// which callers use to detect a stale/duplicate transition rather than an
// error.
func (s *Store) UpdateJobStatus(ctx context.Context, processingID string, from, to model.JobStatus, jobErr *string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status = $1, updated_at = $2, error = $3
		WHERE processing_id = $4 AND status = $5
	`, string(to), time.Now().UTC(), jobErr, processingID, string(from))
	if err != nil {
		return false, clarityerrors.NewStorage("processing_jobs", "UpdateJobStatus failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, clarityerrors.NewStorage("processing_jobs", "UpdateJobStatus RowsAffected failed", err)
	}
	if n == 0 {
		return false, nil
	}
	s.cache.Invalidate(ctx, "processing_jobs", processingID)
	s.audit.Record(ctx, model.OpUpdate, "processing_jobs", processingID, nil, map[string]any{"from": from, "to": to})
	return true, nil
}

// ListJobsByUser returns a user's jobs newest-first.
func (s *Store) ListJobsByUser(ctx context.Context, userID string, limit int) ([]model.ProcessingJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT processing_id, user_id, status, total_metrics, processed_metrics, created_at, updated_at, expires_at, error
		FROM processing_jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit); err != nil {
		return nil, clarityerrors.NewStorage("processing_jobs", "ListJobsByUser failed", err)
	}
	out := make([]model.ProcessingJob, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toJob())
	}
	return out, nil
}

// ReclaimOrphanedJobs transitions jobs stuck in "processing" past leaseSeconds
// back to "received" so a worker can retry them. It returns the
// processing_ids it reclaimed.
func (s *Store) ReclaimOrphanedJobs(ctx context.Context, leaseSeconds int) ([]string, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(leaseSeconds) * time.Second)
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `
		UPDATE processing_jobs SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
		RETURNING processing_id
	`, string(model.JobReceived), time.Now().UTC(), string(model.JobProcessing), cutoff); err != nil {
		return nil, clarityerrors.NewStorage("processing_jobs", "ReclaimOrphanedJobs failed", err)
	}
	for _, id := range ids {
		s.cache.Invalidate(ctx, "processing_jobs", id)
	}
	return ids, nil
}

// DeleteJob removes a ProcessingJob row (used by the retention sweep; user
// erasure goes through DeleteUserData instead so it can be folded into a
// single combined audit event).
func (s *Store) DeleteJob(ctx context.Context, processingID string) error {
	if err := s.exec(ctx, `DELETE FROM processing_jobs WHERE processing_id = $1`, processingID); err != nil {
		return clarityerrors.NewStorage("processing_jobs", "DeleteJob failed", err)
	}
	s.cache.Invalidate(ctx, "processing_jobs", processingID)
	return nil
}

type jobRow struct {
	ProcessingID     string         `db:"processing_id"`
	UserID           string         `db:"user_id"`
	Status           string         `db:"status"`
	TotalMetrics     int            `db:"total_metrics"`
	ProcessedMetrics int            `db:"processed_metrics"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	ExpiresAt        time.Time      `db:"expires_at"`
	Error            sql.NullString `db:"error"`
}

func (r jobRow) toJob() model.ProcessingJob {
	job := model.ProcessingJob{
		ProcessingID:     r.ProcessingID,
		UserID:           r.UserID,
		Status:           model.JobStatus(r.Status),
		TotalMetrics:     r.TotalMetrics,
		ProcessedMetrics: r.ProcessedMetrics,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		ExpiresAt:        r.ExpiresAt,
	}
	if r.Error.Valid {
		job.Error = &r.Error.String
	}
	return job
}
