// Package structured implements the structured store for per-metric
// health_data records, processing_jobs, analysis_results, and (via
// pkg/store/audit) the append-only audit_logs table. It is
// backed by Postgres through pgx/v5's stdlib driver and jmoiron/sqlx,
// fronted by an in-process Redis read-through cache, and every mutation
// emits an AuditEvent after commit except DeleteUserData, DeleteJob and
// ReclaimOrphanedJobs, which emit none.
package structured

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker/v2"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/audit"
)

// BatchSize is the batch-write ceiling; callers with more items are split
// into multiple batches by BatchWriteHealthMetrics.
const BatchSize = 25

// MaxBatchRetries and the starting backoff give each batch write up to 3
// retries with exponential backoff starting at 100ms.
const MaxBatchRetries = 3

// Store is the structured-store client. One instance is shared across a
// process.
type Store struct {
	db      *sqlx.DB
	cache   *Cache
	audit   *audit.Writer
	breaker *gobreaker.CircuitBreaker[any]
	log     logr.Logger
}

// New builds a Store over an already-connected db and cache.
func New(db *sqlx.DB, cache *Cache, auditWriter *audit.Writer, log logr.Logger) *Store {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "structured-store",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &Store{db: db, cache: cache, audit: auditWriter, breaker: breaker, log: log}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
	return err
}

// --- health_data -----------------------------------------------------------

// PutHealthMetric upserts one metric record (idempotent on MetricID) and
// emits a CREATE audit event.
func (s *Store) PutHealthMetric(ctx context.Context, m model.HealthMetric) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return clarityerrors.NewStorage("health_data", "failed to marshal metric", err)
	}
	if err := s.exec(ctx, `
		INSERT INTO health_data (user_id, id, metric_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, id) DO UPDATE SET payload = EXCLUDED.payload, metric_type = EXCLUDED.metric_type
	`, m.UserID, m.MetricID, string(m.Type), payload, m.CreatedAt); err != nil {
		return clarityerrors.NewStorage("health_data", "PutHealthMetric failed", err)
	}
	s.cache.Invalidate(ctx, "health_data", cacheID(m.UserID, m.MetricID))
	s.audit.Record(ctx, model.OpCreate, "health_data", m.MetricID, &m.UserID, nil)
	return nil
}

// BatchWriteHealthMetrics splits metrics into chunks of BatchSize and writes
// each chunk with up to MaxBatchRetries retries at exponential backoff
// starting at 100ms.
func (s *Store) BatchWriteHealthMetrics(ctx context.Context, metrics []model.HealthMetric) error {
	for start := 0; start < len(metrics); start += BatchSize {
		end := start + BatchSize
		if end > len(metrics) {
			end = len(metrics)
		}
		chunk := metrics[start:end]
		if err := s.writeChunkWithRetry(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeChunkWithRetry(ctx context.Context, chunk []model.HealthMetric) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	policy := backoff.WithMaxRetries(bo, MaxBatchRetries)

	op := func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		for _, m := range chunk {
			payload, err := json.Marshal(m)
			if err != nil {
				_ = tx.Rollback()
				return backoff.Permanent(clarityerrors.NewStorage("health_data", "failed to marshal metric", err))
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO health_data (user_id, id, metric_type, payload, created_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (user_id, id) DO UPDATE SET payload = EXCLUDED.payload, metric_type = EXCLUDED.metric_type
			`, m.UserID, m.MetricID, string(m.Type), payload, m.CreatedAt); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	}

	if err := backoff.Retry(op, policy); err != nil {
		return clarityerrors.NewStorage("health_data", "batch write failed after retries", err)
	}
	for _, m := range chunk {
		s.cache.Invalidate(ctx, "health_data", cacheID(m.UserID, m.MetricID))
	}
	if len(chunk) > 0 {
		s.audit.Record(ctx, model.OpBatchWrite, "health_data", fmt.Sprintf("%d metrics", len(chunk)), &chunk[0].UserID, map[string]any{"count": len(chunk)})
	}
	return nil
}

// GetHealthMetric reads one metric through the cache.
func (s *Store) GetHealthMetric(ctx context.Context, userID, metricID string) (*model.HealthMetric, error) {
	id := cacheID(userID, metricID)
	if cached, hit := s.cache.Get(ctx, "health_data", id); hit {
		var m model.HealthMetric
		if err := json.Unmarshal([]byte(cached), &m); err == nil {
			return &m, nil
		}
	}

	var row healthDataRow
	err := s.db.GetContext(ctx, &row, `SELECT user_id, id, metric_type, payload, created_at FROM health_data WHERE user_id=$1 AND id=$2`, userID, metricID)
	if err == sql.ErrNoRows {
		return nil, clarityerrors.NewNotFound("health_data", "metric not found")
	}
	if err != nil {
		return nil, clarityerrors.NewStorage("health_data", "GetHealthMetric failed", err)
	}

	var m model.HealthMetric
	if err := json.Unmarshal(row.Payload, &m); err != nil {
		return nil, clarityerrors.NewStorage("health_data", "failed to unmarshal metric payload", err)
	}
	s.cache.Set(ctx, "health_data", id, string(row.Payload))
	return &m, nil
}

// QueryOptions filters a QueryHealthMetrics call.
type QueryOptions struct {
	MetricType *model.MetricType
	Start, End *time.Time
	Limit      int
	Offset     int
}

// QueryHealthMetrics reads a user's metrics within an optional time range
// and metric-type filter, newest-first, paginated by offset (the GET
// /v1/health-data/ cursor is an opaque encoding of this offset, owned by
// the ingress collaborator).
func (s *Store) QueryHealthMetrics(ctx context.Context, userID string, opts QueryOptions) ([]model.HealthMetric, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT user_id, id, metric_type, payload, created_at FROM health_data WHERE user_id = $1`
	args := []any{userID}
	if opts.MetricType != nil {
		args = append(args, string(*opts.MetricType))
		query += fmt.Sprintf(" AND metric_type = $%d", len(args))
	}
	if opts.Start != nil {
		args = append(args, *opts.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.End != nil {
		args = append(args, *opts.End)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	args = append(args, limit, opts.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var rows []healthDataRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, clarityerrors.NewStorage("health_data", "QueryHealthMetrics failed", err)
	}

	out := make([]model.HealthMetric, 0, len(rows))
	for _, r := range rows {
		var m model.HealthMetric
		if err := json.Unmarshal(r.Payload, &m); err != nil {
			return nil, clarityerrors.NewStorage("health_data", "failed to unmarshal metric payload", err)
		}
		out = append(out, m)
	}
	return out, nil
}

type healthDataRow struct {
	UserID     string    `db:"user_id"`
	ID         string    `db:"id"`
	MetricType string    `db:"metric_type"`
	Payload    []byte    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

func cacheID(userID, id string) string {
	return userID + "#" + id
}
