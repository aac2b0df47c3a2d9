package structured

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
)

// PutAnalysisResult upserts the single AnalysisResult for a processing_id
// (the idx_analysis_results_processing_id unique index enforces exactly
// one result per job) and emits a CREATE audit event.
func (s *Store) PutAnalysisResult(ctx context.Context, result model.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return clarityerrors.NewStorage("analysis_results", "failed to marshal result", err)
	}
	if err := s.exec(ctx, `
		INSERT INTO analysis_results (processing_id, user_id, created_at, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (processing_id) DO UPDATE SET payload = EXCLUDED.payload
	`, result.ProcessingID, result.UserID, result.Timestamp, payload); err != nil {
		return clarityerrors.NewStorage("analysis_results", "PutAnalysisResult failed", err)
	}
	s.cache.Invalidate(ctx, "analysis_results", result.ProcessingID)
	s.audit.Record(ctx, model.OpCreate, "analysis_results", result.ProcessingID, &result.UserID, nil)
	return nil
}

// GetLatestAnalysisResult reads the result for one processing_id through the cache.
func (s *Store) GetLatestAnalysisResult(ctx context.Context, processingID string) (*model.AnalysisResult, error) {
	id := processingID
	if cached, hit := s.cache.Get(ctx, "analysis_results", id); hit {
		var r model.AnalysisResult
		if err := json.Unmarshal([]byte(cached), &r); err == nil {
			return &r, nil
		}
	}

	var row analysisRow
	err := s.db.GetContext(ctx, &row, `SELECT processing_id, user_id, created_at, payload FROM analysis_results WHERE processing_id = $1`, processingID)
	if err == sql.ErrNoRows {
		return nil, clarityerrors.NewNotFound("analysis_results", "result not found")
	}
	if err != nil {
		return nil, clarityerrors.NewStorage("analysis_results", "GetLatestAnalysisResult failed", err)
	}

	var r model.AnalysisResult
	if err := json.Unmarshal(row.Payload, &r); err != nil {
		return nil, clarityerrors.NewStorage("analysis_results", "failed to unmarshal result payload", err)
	}
	s.cache.Set(ctx, "analysis_results", id, string(row.Payload))
	return &r, nil
}

// ListAnalysisResults returns a user's results newest-first.
func (s *Store) ListAnalysisResults(ctx context.Context, userID string, limit int) ([]model.AnalysisResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []analysisRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT processing_id, user_id, created_at, payload FROM analysis_results
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit); err != nil {
		return nil, clarityerrors.NewStorage("analysis_results", "ListAnalysisResults failed", err)
	}
	out := make([]model.AnalysisResult, 0, len(rows))
	for _, row := range rows {
		var r model.AnalysisResult
		if err := json.Unmarshal(row.Payload, &r); err != nil {
			return nil, clarityerrors.NewStorage("analysis_results", "failed to unmarshal result payload", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteUserData removes every health_data, processing_jobs, and
// analysis_results row owned by userID and returns the total row count
// deleted. It deliberately does NOT emit its own audit events — erasure
// requires exactly one combined DELETE event spanning this plus the blob
// store's deletions, which the caller (the erasure orchestrator) is
// responsible for writing once with the summed count.
func (s *Store) DeleteUserData(ctx context.Context, userID string) (int64, error) {
	var total int64
	for _, table := range []string{"health_data", "processing_jobs", "analysis_results"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, userID)
		if err != nil {
			return total, clarityerrors.NewStorage(table, "DeleteUserData failed", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, clarityerrors.NewStorage(table, "DeleteUserData RowsAffected failed", err)
		}
		total += n
	}
	return total, nil
}

type analysisRow struct {
	ProcessingID string    `db:"processing_id"`
	UserID       string    `db:"user_id"`
	CreatedAt    time.Time `db:"created_at"`
	Payload      []byte    `db:"payload"`
}
